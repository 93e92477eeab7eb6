package astarte

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// messageHandler receives one inbound publish.
type messageHandler func(topic string, payload []byte)

// tlsCertificate pairs a PEM certificate and private key into the
// tls.Certificate the paho transport authenticates with.
func tlsCertificate(certPEM, keyPEM []byte) (tls.Certificate, error) {
	return tls.X509KeyPair(certPEM, keyPEM)
}

// transport is the MQTT collaborator the session engine drives. It is an
// interface, not a direct paho.mqtt.golang dependency, so the engine can
// be exercised against fakeTransport without a broker.
type transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Subscribe(ctx context.Context, topic string, qos byte) error
	SetOnConnect(func(sessionPresent bool))
	SetOnConnectionLost(func(err error))
	SetOnMessage(messageHandler)
}

// pahoTransport adapts eclipse/paho.mqtt.golang to the transport
// interface above.
type pahoTransport struct {
	client mqtt.Client

	mu            sync.Mutex
	everConnected bool
	cleanSession  bool
	onConnect     func(bool)
	onConnectLost func(error)
	onMessage     messageHandler
}

// newPahoTransport builds a paho client configured for client-certificate
// TLS auth against brokerURL, with clientID used as both the MQTT client
// ID and (by convention) the device topic prefix.
func newPahoTransport(brokerURL, clientID string, cert tls.Certificate, cleanSession bool) *pahoTransport {
	pt := &pahoTransport{cleanSession: cleanSession}

	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetTLSConfig(tlsCfg)
	opts.SetCleanSession(cleanSession)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		pt.mu.Lock()
		// paho's public API does not surface the broker's CONNACK
		// session-present bit. We approximate it: the first
		// connection of this transport's lifetime never has a prior
		// session to resume; a later automatic reconnect, having
		// asked for a persistent session (cleanSession == false), is
		// treated as resuming one. On the first connection a session
		// the broker did keep costs only a redundant handshake, which
		// dedup-on-store makes harmless; on a later reconnect the
		// handshake is skipped even if the broker dropped the session.
		sessionPresent := pt.everConnected && !pt.cleanSession
		pt.everConnected = true
		handler := pt.onConnect
		pt.mu.Unlock()
		if handler != nil {
			handler(sessionPresent)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		pt.mu.Lock()
		handler := pt.onConnectLost
		pt.mu.Unlock()
		if handler != nil {
			handler(err)
		}
	})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		pt.mu.Lock()
		handler := pt.onMessage
		pt.mu.Unlock()
		if handler != nil {
			handler(msg.Topic(), msg.Payload())
		}
	})

	pt.client = mqtt.NewClient(opts)
	return pt
}

func (t *pahoTransport) Connect(ctx context.Context) error {
	token := t.client.Connect()
	return waitToken(ctx, token)
}

func (t *pahoTransport) Disconnect() {
	t.client.Disconnect(250)
}

func (t *pahoTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *pahoTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	return waitToken(ctx, token)
}

func (t *pahoTransport) Subscribe(ctx context.Context, topic string, qos byte) error {
	token := t.client.Subscribe(topic, qos, nil)
	return waitToken(ctx, token)
}

func (t *pahoTransport) SetOnConnect(fn func(bool)) {
	t.mu.Lock()
	t.onConnect = fn
	t.mu.Unlock()
}

func (t *pahoTransport) SetOnConnectionLost(fn func(error)) {
	t.mu.Lock()
	t.onConnectLost = fn
	t.mu.Unlock()
}

func (t *pahoTransport) SetOnMessage(fn messageHandler) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// networkReachable performs a short, best-effort HTTP reachability check
// against url, used by the connection-lost handler before it requests a
// reinit, to disambiguate "broker rejected our certificate" from "device
// has no network at all". Any
// response at all, including a non-2xx status,
// counts as reachable; only a transport-level failure (DNS, dial,
// timeout) counts as unreachable.
func networkReachable(url string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
