package astarte

import (
	"context"
	"testing"

	"github.com/astarte-platform/astarte-device-sdk-go/bson"
	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/astarte-platform/astarte-device-sdk-go/propertystore"
)

func wrapBoolForTest(v bool) ([]byte, error) {
	doc, err := bson.WrapValue(v, nil)
	return []byte(doc), err
}

// newTestDevice builds a Device with a fakeTransport already wired,
// bypassing Start's credential/pairing bootstrap entirely — the engine
// logic under test here is the handshake/publish/inbound behavior, not
// init_connection, which pairing/client_test.go and credentials/
// manager_test.go already cover independently.
func newTestDevice(t *testing.T, persist bool) (*Device, *fakeTransport) {
	t.Helper()
	d := &Device{
		cfg:         Config{PersistProperties: persist},
		deviceTopic: "dev1",
		registry:    interfaces.NewRegistry(),
		metrics:     newMetrics(),
		mu:          newBoundedMutex(),
		producerSet: make(map[string]struct{}),
		state:       stateConfigured,
	}
	if persist {
		d.store = propertystore.OpenMemory()
	}
	tp := newFakeTransport()
	d.tp = tp
	d.wireTransportLocked()
	return d, tp
}

func TestPathValidation(t *testing.T) {
	d, _ := newTestDevice(t, false)
	err := d.SendDatastream(context.Background(), "org.example.Foo", "bar", 1.0)
	if err == nil {
		t.Fatalf("expected invalid_argument for path without leading slash")
	}
	if aerr, ok := err.(*Error); !ok || aerr.Kind != KindInvalidArgument {
		t.Fatalf("got %v, want KindInvalidArgument", err)
	}

	if err := d.SendDatastream(context.Background(), "org.example.Foo", "/x", 1.0); err != nil {
		t.Fatalf("valid path should proceed: %v", err)
	}
}

func TestPropertyDedup(t *testing.T) {
	d, tp := newTestDevice(t, true)
	ctx := context.Background()

	if err := d.SetProperty(ctx, "Dev", "/a", true); err != nil {
		t.Fatalf("first SetProperty: %v", err)
	}
	if err := d.SetProperty(ctx, "Dev", "/a", true); err != nil {
		t.Fatalf("second SetProperty: %v", err)
	}
	if got := len(tp.published); got != 1 {
		t.Fatalf("got %d publishes, want exactly 1 (dedup)", got)
	}
	if tp.published[0].Topic != "dev1/Dev/a" || tp.published[0].QoS != 2 {
		t.Fatalf("unexpected publish: %+v", tp.published[0])
	}
}

func TestPropertyUnsetIdempotent(t *testing.T) {
	d, tp := newTestDevice(t, true)
	ctx := context.Background()

	_ = d.SetProperty(ctx, "Dev", "/a", true)
	if err := d.UnsetProperty(ctx, "Dev", "/a"); err != nil {
		t.Fatalf("first UnsetProperty: %v", err)
	}
	if err := d.UnsetProperty(ctx, "Dev", "/a"); err != nil {
		t.Fatalf("second UnsetProperty should also be ok: %v", err)
	}
	if got := len(tp.published); got != 3 {
		t.Fatalf("got %d publishes, want 3 (1 set + 2 unset)", got)
	}
	for _, p := range tp.published[1:] {
		if len(p.Payload) != 0 {
			t.Fatalf("unset publish should carry an empty payload, got %d bytes", len(p.Payload))
		}
	}
}

func TestHandshakeOrdering(t *testing.T) {
	d, tp := newTestDevice(t, true)
	mustAddIface(t, d, &interfaces.Interface{
		Name: "org.example.Srv", Ownership: interfaces.Server, Type: interfaces.Datastream,
		MajorVersion: 0, MinorVersion: 1,
	})

	d.handleConnect(false)

	topics := tp.publishedTopics()
	if len(topics) < 2 {
		t.Fatalf("expected at least introspection + empty cache publishes, got %v", topics)
	}
	if topics[0] != "dev1" {
		t.Fatalf("introspection should publish first, got %q", topics[0])
	}
	if topics[1] != "dev1/control/emptyCache" {
		t.Fatalf("empty cache should publish second, got %q", topics[1])
	}
	foundSub := false
	for _, s := range tp.subscriptions {
		if s == "dev1/org.example.Srv/#" {
			foundSub = true
		}
	}
	if !foundSub {
		t.Fatalf("expected a subscription to the server-owned interface wildcard, got %v", tp.subscriptions)
	}
}

func TestServerPurgeRemovesStaleRow(t *testing.T) {
	d, _ := newTestDevice(t, true)
	mustAddIface(t, d, &interfaces.Interface{
		Name: "Srv", Ownership: interfaces.Server, Type: interfaces.Properties,
		MajorVersion: 0, MinorVersion: 1,
	})
	_ = d.store.StoreRow(propertystore.Key{Interface: "Srv", Path: "/a"}, 0, []byte("a"))
	_ = d.store.StoreRow(propertystore.Key{Interface: "Srv", Path: "/b"}, 0, []byte("b"))
	_ = d.store.StoreRow(propertystore.Key{Interface: "Srv", Path: "/c"}, 0, []byte("c"))

	payload, err := encodePurgePayload([]string{"Srv/a", "Srv/c"})
	if err != nil {
		t.Fatalf("encodePurgePayload: %v", err)
	}
	if err := d.handleConsumerPurge(payload); err != nil {
		t.Fatalf("handleConsumerPurge: %v", err)
	}

	rows, err := d.store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	remaining := map[string]bool{}
	for _, r := range rows {
		remaining[r.Path] = true
	}
	if remaining["/b"] {
		t.Fatalf("expected /b to be purged, rows=%v", rows)
	}
	if !remaining["/a"] || !remaining["/c"] {
		t.Fatalf("expected /a and /c to survive, rows=%v", rows)
	}
}

func TestEmptyPurgeClearsAllServerRows(t *testing.T) {
	d, _ := newTestDevice(t, true)
	mustAddIface(t, d, &interfaces.Interface{
		Name: "Srv", Ownership: interfaces.Server, Type: interfaces.Properties,
		MajorVersion: 0, MinorVersion: 1,
	})
	_ = d.store.StoreRow(propertystore.Key{Interface: "Srv", Path: "/x"}, 0, []byte("x"))

	payload, _ := encodePurgePayload(nil)
	if err := d.handleConsumerPurge(payload); err != nil {
		t.Fatalf("handleConsumerPurge: %v", err)
	}
	rows, _ := d.store.All()
	if len(rows) != 0 {
		t.Fatalf("expected all server rows purged, got %v", rows)
	}
}

func TestUnsetEmptyPayload(t *testing.T) {
	d, _ := newTestDevice(t, true)
	mustAddIface(t, d, &interfaces.Interface{
		Name: "Srv", Ownership: interfaces.Server, Type: interfaces.Properties,
		MajorVersion: 0, MinorVersion: 1,
	})
	_ = d.store.StoreRow(propertystore.Key{Interface: "Srv", Path: "/y"}, 0, []byte("y"))

	var gotIface, gotPath string
	d.cfg.OnUnset = func(interfaceName, path string) {
		gotIface, gotPath = interfaceName, path
	}
	d.handleMessage("dev1/Srv/y", nil)

	if gotIface != "Srv" || gotPath != "/y" {
		t.Fatalf("unset callback got (%q,%q), want (Srv,/y)", gotIface, gotPath)
	}
	if _, err := d.store.Contains(propertystore.Key{Interface: "Srv", Path: "/y"}, 0, []byte("y")); err != nil {
		t.Fatalf("Contains: %v", err)
	}
	rows, _ := d.store.All()
	if len(rows) != 0 {
		t.Fatalf("expected the row to be deleted on unset, got %v", rows)
	}
}

func TestInboundDataDelivery(t *testing.T) {
	d, _ := newTestDevice(t, false)
	mustAddIface(t, d, &interfaces.Interface{
		Name: "org.example.Srv", Ownership: interfaces.Server, Type: interfaces.Datastream,
		MajorVersion: 0, MinorVersion: 1,
	})

	var gotIface, gotPath string
	var gotValue any
	d.cfg.OnData = func(interfaceName, path string, value any) {
		gotIface, gotPath, gotValue = interfaceName, path, value
	}

	doc, err := wrapBoolForTest(true)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	d.handleMessage("dev1/org.example.Srv/q", doc)

	if gotIface != "org.example.Srv" || gotPath != "/q" {
		t.Fatalf("got (%q,%q), want (org.example.Srv,/q)", gotIface, gotPath)
	}
	if b, ok := gotValue.(bool); !ok || !b {
		t.Fatalf("got value %v, want true", gotValue)
	}
}

func mustAddIface(t *testing.T, d *Device, iface *interfaces.Interface) {
	t.Helper()
	if _, err := d.registry.AddOrReplace(iface); err != nil {
		t.Fatalf("AddOrReplace(%s): %v", iface.Name, err)
	}
}
