package astarte

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory transport double used by the engine's
// own tests, in place of a live broker.
type fakeTransport struct {
	mu sync.Mutex

	connected     bool
	subscriptions []string
	published     []fakePublish

	onConnect     func(bool)
	onConnectLost func(error)
	onMessage     messageHandler

	nextSessionPresent bool
	connectErr         error
	publishErr         error
}

type fakePublish struct {
	Topic   string
	QoS     byte
	Payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	sessionPresent := f.nextSessionPresent
	handler := f.onConnect
	f.mu.Unlock()
	if handler != nil {
		handler(sessionPresent)
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.mu.Lock()
	f.published = append(f.published, fakePublish{Topic: topic, QoS: qos, Payload: cp})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic string, qos byte) error {
	f.mu.Lock()
	f.subscriptions = append(f.subscriptions, topic)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetOnConnect(fn func(bool))         { f.onConnect = fn }
func (f *fakeTransport) SetOnConnectionLost(fn func(error)) { f.onConnectLost = fn }
func (f *fakeTransport) SetOnMessage(fn messageHandler)     { f.onMessage = fn }

// deliver simulates an inbound broker publish.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.onMessage
	f.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func (f *fakeTransport) publishedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	for i, p := range f.published {
		out[i] = p.Topic
	}
	return out
}
