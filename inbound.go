package astarte

import (
	"log"

	"github.com/astarte-platform/astarte-device-sdk-go/bson"
	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/astarte-platform/astarte-device-sdk-go/propertystore"
)

// handleMessage is wired as the transport's OnMessage handler and
// implements inbound message routing: control messages, unsets, and
// data payloads are each dispatched to their own handler.
func (d *Device) handleMessage(topic string, payload []byte) {
	d.metrics.Received.Inc()

	isControl, controlRel, ifaceName, path, ok := splitInbound(d.deviceTopic, topic)
	if !ok {
		log.Printf("astarte: dropping message on unrecognized topic %q", topic)
		return
	}
	if isControl {
		d.handleControl(controlRel, payload)
		return
	}
	if len(payload) == 0 {
		d.handleUnset(ifaceName, path)
		return
	}
	d.handleData(ifaceName, path, payload)
}

func (d *Device) handleUnset(ifaceName, path string) {
	if d.cfg.PersistProperties && d.store != nil {
		if iface, ok := d.registry.Lookup(ifaceName); ok && iface.Type == interfaces.Properties {
			key := propertystore.Key{Interface: ifaceName, Path: path}
			if err := d.store.Delete(key); err != nil && err != propertystore.ErrNotFound {
				log.Printf("astarte: delete on unset %s%s: %v", ifaceName, path, err)
			}
		}
	}
	if d.cfg.OnUnset != nil {
		d.cfg.OnUnset(ifaceName, path)
	}
}

func (d *Device) handleData(ifaceName, path string, payload []byte) {
	doc := bson.Document(payload)
	if !doc.CheckValidity() {
		log.Printf("astarte: dropping malformed BSON payload on %s%s", ifaceName, path)
		return
	}

	if d.cfg.PersistProperties && d.store != nil {
		if iface, ok := d.registry.Lookup(ifaceName); ok && iface.Type == interfaces.Properties {
			key := propertystore.Key{Interface: ifaceName, Path: path}
			major := int32(iface.MajorVersion)
			contains, err := d.store.Contains(key, major, payload)
			if err != nil {
				log.Printf("astarte: property store contains check failed: %v", err)
			} else if !contains {
				if err := d.store.StoreRow(key, major, payload); err != nil {
					log.Printf("astarte: property store write failed: %v", err)
				}
			}
		}
	}

	elem, ok := bson.ExtractV(doc)
	if !ok {
		log.Printf("astarte: payload on %s%s has no \"v\" field", ifaceName, path)
		return
	}
	value, ok := elem.Native()
	if !ok {
		log.Printf("astarte: payload on %s%s has an unrecognized \"v\" encoding", ifaceName, path)
		return
	}
	if d.cfg.OnData != nil {
		d.cfg.OnData(ifaceName, path, value)
	}
}

// handleControl dispatches an inbound /control/... message. Only the
// consumer-properties purge is inbound; the producer-properties topic
// is outbound only, and anything else under /control is unrecognized.
func (d *Device) handleControl(controlRel string, payload []byte) {
	if controlRel != consumerPropsRel {
		log.Printf("astarte: dropping unrecognized control message %q", controlRel)
		return
	}
	if err := d.handleConsumerPurge(payload); err != nil {
		log.Printf("astarte: consumer properties purge failed: %v", err)
	}
}

// handleConsumerPurge implements the inbound half of property purge
// reconciliation: any stored row belonging to an interface present in
// introspection and
// server-owned, but absent from the purge list, is deleted; rows whose
// interface vanished from introspection or whose major version no
// longer matches are deleted unconditionally.
func (d *Device) handleConsumerPurge(payload []byte) error {
	if d.store == nil {
		return nil
	}
	keep, err := decodePurgePayload(payload)
	if err != nil {
		return err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	d.metrics.PropertyPurges.Inc()

	rows, err := d.store.All()
	if err != nil {
		return err
	}
	for _, row := range rows {
		iface, ok := d.registry.Lookup(row.Interface)
		stale := !ok || int32(iface.MajorVersion) != row.Major
		serverOwned := ok && iface.Ownership == interfaces.Server
		_, kept := keepSet[row.Interface+row.Path]

		if stale || (serverOwned && !kept) {
			if err := d.store.Delete(row.Key); err != nil && err != propertystore.ErrNotFound {
				return err
			}
		}
	}
	return nil
}
