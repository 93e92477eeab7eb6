package astarte

import (
	"context"
	"fmt"

	"github.com/astarte-platform/astarte-device-sdk-go/bson"
	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/astarte-platform/astarte-device-sdk-go/propertystore"
)

// propertyQoS is the QoS every property set/unset publish uses. Astarte
// properties are last-write-wins state, the "unique" reliability level,
// which maps to MQTT QoS 2.
const propertyQoS = byte(interfaces.Unique)

// sendOptions accumulates the optional per-call overrides SendOption
// applies: an explicit timestamp and/or an explicit QoS.
type sendOptions struct {
	tsMillis *int64
	qos      *byte
}

// SendOption configures a single SendDatastream or SendObjectDatastream
// call.
type SendOption func(*sendOptions)

// WithTimestamp attaches an explicit timestamp, in milliseconds since
// the Unix epoch, to the published envelope.
func WithTimestamp(tsMillis int64) SendOption {
	return func(o *sendOptions) { o.tsMillis = &tsMillis }
}

// WithQoS overrides the publish QoS for this call. Without it, QoS
// defaults to the mapping's declared reliability, matched against the
// interface installed under interfaceName; if no installed interface
// or mapping matches path, it falls back to Guaranteed (QoS 1).
func WithQoS(qos byte) SendOption {
	return func(o *sendOptions) { o.qos = &qos }
}

// resolveQoS honors an explicit override, otherwise looks up path's
// mapping on the installed interfaceName and returns its declared
// reliability's QoS.
func (d *Device) resolveQoS(interfaceName, path string, explicit *byte) byte {
	if explicit != nil {
		return *explicit
	}
	if iface, ok := d.registry.Lookup(interfaceName); ok {
		if mapping, ok := iface.FindMapping(path); ok {
			return mapping.Reliability.QoS()
		}
	}
	return interfaces.Guaranteed.QoS()
}

// SendDatastream builds the BSON envelope {"v": value} (with an
// optional explicit timestamp) and publishes it to interfaceName+path.
// value must be one of the scalar or slice-of-scalar types
// bson.WrapValue accepts.
func (d *Device) SendDatastream(ctx context.Context, interfaceName, path string, value any, opts ...SendOption) error {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	qos := d.resolveQoS(interfaceName, path, o.qos)
	if qos > 2 {
		return newErr("SendDatastream", KindInvalidArgument, fmt.Errorf("qos %d out of range", qos))
	}
	doc, err := bson.WrapValue(value, o.tsMillis)
	if err != nil {
		return newErr("SendDatastream", KindSerializationFailed, err)
	}
	return d.publish(ctx, interfaceName, path, qos, doc)
}

// SendObjectDatastream publishes an object-aggregate interface's field
// set as a single sub-document embedded under "v".
func (d *Device) SendObjectDatastream(ctx context.Context, interfaceName, path string, fields map[string]any, opts ...SendOption) error {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	qos := d.resolveQoS(interfaceName, path, o.qos)
	if qos > 2 {
		return newErr("SendObjectDatastream", KindInvalidArgument, fmt.Errorf("qos %d out of range", qos))
	}
	doc, err := bson.WrapAggregate(fields, o.tsMillis)
	if err != nil {
		return newErr("SendObjectDatastream", KindSerializationFailed, err)
	}
	return d.publish(ctx, interfaceName, path, qos, doc)
}

// SetProperty publishes a device-owned property value at QoS 2. With
// persistence enabled, an identical (major, value) already on record
// short-circuits the publish entirely.
func (d *Device) SetProperty(ctx context.Context, interfaceName, path string, value any) error {
	doc, err := bson.WrapValue(value, nil)
	if err != nil {
		return newErr("SetProperty", KindSerializationFailed, err)
	}

	if !d.mu.tryLock(defaultLockWait) {
		return newErr("SetProperty", KindDeviceNotReady, nil)
	}
	defer d.mu.unlock()

	if d.cfg.PersistProperties && d.store != nil {
		major := int32(0)
		if iface, ok := d.registry.Lookup(interfaceName); ok {
			major = int32(iface.MajorVersion)
		}
		key := propertystore.Key{Interface: interfaceName, Path: path}
		dup, err := d.store.Contains(key, major, doc)
		if err != nil {
			return newErr("SetProperty", KindIOFailed, err)
		}
		if dup {
			return nil
		}
		if err := d.store.StoreRow(key, major, doc); err != nil {
			return newErr("SetProperty", KindIOFailed, err)
		}
	}
	return d.publishLocked(ctx, interfaceName, path, propertyQoS, doc)
}

// UnsetProperty publishes an empty payload at QoS 2 and, with
// persistence enabled, deletes the stored row. Calling it twice returns
// ok both times; the second delete is tolerated as not-found.
func (d *Device) UnsetProperty(ctx context.Context, interfaceName, path string) error {
	if !d.mu.tryLock(defaultLockWait) {
		return newErr("UnsetProperty", KindDeviceNotReady, nil)
	}
	defer d.mu.unlock()

	if d.cfg.PersistProperties && d.store != nil {
		key := propertystore.Key{Interface: interfaceName, Path: path}
		if err := d.store.Delete(key); err != nil && err != propertystore.ErrNotFound {
			return newErr("UnsetProperty", KindIOFailed, err)
		}
	}
	return d.publishLocked(ctx, interfaceName, path, propertyQoS, nil)
}

// publish publishes doc (or an empty payload for doc == nil), acquiring
// the session mutex for the duration of the call. The path is validated
// by publishLocked; qos is not checked here, callers range-check it.
func (d *Device) publish(ctx context.Context, interfaceName, path string, qos byte, doc []byte) error {
	if !d.mu.tryLock(defaultLockWait) {
		return newErr("publish", KindDeviceNotReady, nil)
	}
	defer d.mu.unlock()
	return d.publishLocked(ctx, interfaceName, path, qos, doc)
}

// publishLocked is the common tail of every publish path. Caller must
// hold d.mu.
func (d *Device) publishLocked(ctx context.Context, interfaceName, path string, qos byte, doc []byte) error {
	if d.tp == nil {
		return newErr("publish", KindDeviceNotReady, nil)
	}
	topic, err := dataTopic(d.deviceTopic, interfaceName, path)
	if err != nil {
		return err
	}
	if err := d.tp.Publish(ctx, topic, qos, doc); err != nil {
		return newErr("publish", KindPublishFailed, err)
	}
	d.metrics.Published.Inc()
	return nil
}
