package astarte

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/astarte-platform/astarte-device-sdk-go/propertystore"
)

// handleConnect is wired as the transport's OnConnect handler. It marks
// the device Connected and, iff sessionPresent is false, runs the
// post-connect handshake in a fixed order: subscriptions, then
// introspection, then empty-cache, then (if persistence is enabled)
// device-owned property reconciliation and the outbound purge.
func (d *Device) handleConnect(sessionPresent bool) {
	d.mu.lock()
	d.state = stateConnected
	d.metrics.ConnectionState.Set(1)
	d.metrics.Reconnects.Inc()
	d.mu.unlock()

	if !sessionPresent {
		ctx := context.Background()
		if err := d.runHandshake(ctx); err != nil {
			log.Printf("astarte: post-connect handshake failed: %v", err)
		}
	}

	if d.cfg.OnConnection != nil {
		d.cfg.OnConnection(sessionPresent)
	}
}

func (d *Device) handleConnectionLost(err error) {
	d.mu.lock()
	d.state = stateDisconnected
	d.metrics.ConnectionState.Set(0)
	d.mu.unlock()

	if d.cfg.OnDisconnection != nil {
		d.cfg.OnDisconnection()
	}

	if isTLSError(err) && d.reinit != nil && networkReachable(d.cfg.NetworkCheckURL) {
		d.reinit.requestReinit()
	}
}

func (d *Device) runHandshake(ctx context.Context) error {
	start := time.Now()
	defer func() { d.metrics.HandshakeSeconds.Observe(time.Since(start).Seconds()) }()

	if err := d.subscribeAll(ctx); err != nil {
		return fmt.Errorf("subscriptions: %w", err)
	}
	if err := d.publishIntrospection(ctx); err != nil {
		return fmt.Errorf("introspection: %w", err)
	}
	if err := d.publishEmptyCache(ctx); err != nil {
		return fmt.Errorf("empty cache: %w", err)
	}
	if d.cfg.PersistProperties {
		if err := d.reconcileDeviceProperties(ctx); err != nil {
			return fmt.Errorf("property reconciliation: %w", err)
		}
	}
	return nil
}

func (d *Device) subscribeAll(ctx context.Context) error {
	if err := d.tp.Subscribe(ctx, consumerPropsTopic(d.deviceTopic), 2); err != nil {
		return err
	}
	var subErr error
	d.registry.Iterate(func(iface *interfaces.Interface) bool {
		if iface.Ownership != interfaces.Server {
			return true
		}
		if err := d.tp.Subscribe(ctx, interfaceWildcard(d.deviceTopic, iface.Name), 2); err != nil {
			subErr = err
			return false
		}
		return true
	})
	return subErr
}

func (d *Device) publishIntrospection(ctx context.Context) error {
	return d.tp.Publish(ctx, deviceTopic(d.deviceTopic), 2, []byte(d.registry.IntrospectionString()))
}

func (d *Device) publishEmptyCache(ctx context.Context) error {
	return d.tp.Publish(ctx, emptyCacheTopic(d.deviceTopic), 2, []byte("1"))
}

// reconcileDeviceProperties drops rows whose interface vanished or whose
// major version changed, republishes surviving device-owned rows, and
// sends the resulting purge list.
func (d *Device) reconcileDeviceProperties(ctx context.Context) error {
	d.producerSet = make(map[string]struct{})

	rows, err := d.store.All()
	if err != nil {
		return err
	}
	for _, row := range rows {
		iface, ok := d.registry.Lookup(row.Interface)
		if !ok || int32(iface.MajorVersion) != row.Major {
			if err := d.store.Delete(row.Key); err != nil && err != propertystore.ErrNotFound {
				return err
			}
			continue
		}
		if iface.Ownership != interfaces.Device {
			continue
		}
		topic, err := dataTopic(d.deviceTopic, row.Interface, row.Path)
		if err != nil {
			return err
		}
		if err := d.tp.Publish(ctx, topic, 2, row.Value); err != nil {
			return err
		}
		d.producerSet[row.Interface+row.Path] = struct{}{}
	}

	return d.sendProducerPurge(ctx)
}

// sendProducerPurge builds and publishes the outbound
// /control/producer/properties purge message from d.producerSet.
func (d *Device) sendProducerPurge(ctx context.Context) error {
	entries := make([]string, 0, len(d.producerSet))
	for entry := range d.producerSet {
		entries = append(entries, entry)
	}
	payload, err := encodePurgePayload(entries)
	if err != nil {
		return err
	}
	d.metrics.PropertyPurges.Inc()
	return d.tp.Publish(ctx, producerPropsTopic(d.deviceTopic), 2, payload)
}

// isTLSError reports whether err looks like a certificate rejection
// rather than a generic connectivity failure. paho.mqtt.golang surfaces
// TLS failures as plain errors from the underlying crypto/tls package,
// so this matches on their static error text rather than a typed error —
// there is no exported *mqtt.TLSError to switch on.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"certificate", "tls:", "x509:"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
