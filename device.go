// Package astarte implements a device-side session engine for the
// Astarte telemetry and command platform: credential bootstrap, an
// MQTT/TLS connection lifecycle with certificate-expiry-driven recovery,
// the post-connect handshake, inbound message routing, and the
// property-persistence reconciliation protocol. The wire codec lives in
// the sibling bson package; declared schemas live in interfaces;
// persistence lives in propertystore.
package astarte

import (
	"context"
	"fmt"
	"log"

	"github.com/astarte-platform/astarte-device-sdk-go/credentials"
	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/astarte-platform/astarte-device-sdk-go/internal/hwid"
	"github.com/astarte-platform/astarte-device-sdk-go/pairing"
	"github.com/astarte-platform/astarte-device-sdk-go/propertystore"
	"github.com/prometheus/client_golang/prometheus"
)

// state is the device's position in its connection lifecycle:
// Unconfigured -> Configured -> Connecting -> Connected -> Disconnected
// -> (Reinitializing | Destroyed).
type state int

const (
	stateUnconfigured state = iota
	stateConfigured
	stateConnecting
	stateConnected
	stateDisconnected
	stateReinitializing
	stateDestroyed
)

func (s state) String() string {
	switch s {
	case stateUnconfigured:
		return "unconfigured"
	case stateConfigured:
		return "configured"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnected:
		return "disconnected"
	case stateReinitializing:
		return "reinitializing"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Device is the device session engine. The zero value is not usable;
// construct with New.
type Device struct {
	cfg Config

	hwID        string
	deviceTopic string // certificate CN
	credMgr     *credentials.Manager
	pairingCli  *pairing.Client
	registry    *interfaces.Registry
	store       propertystore.Store // nil when persistence is disabled
	metrics     *metrics

	mu    *boundedMutex // reinit_mutex equivalent
	state state
	tp    transport

	// producerSet accumulates interface_name+path for device-owned
	// properties republished during the post-connect handshake, so the
	// outbound purge can list exactly what survived reconciliation.
	producerSet map[string]struct{}

	reinit *reinitWorker
}

// New constructs a Device from options. It does not touch the network;
// beyond deriving a hardware identity if none was supplied, its only
// filesystem access is opening (or creating) the bbolt property store
// when persistence is enabled with a store path. Call Start to run
// init_connection and connect.
func New(opts ...Option) (*Device, error) {
	cfg := newConfig(opts...)
	if cfg.Realm == "" {
		return nil, newErr("New", KindInvalidArgument, fmt.Errorf("realm is required"))
	}

	hwID := cfg.HwID
	if hwID == "" {
		derived, err := hwid.Derive()
		if err != nil {
			return nil, newErr("New", KindInternal, err)
		}
		hwID = derived
	}

	var store propertystore.Store
	if cfg.PersistProperties {
		if cfg.PropertyStorePath == "" {
			store = propertystore.OpenMemory()
		} else {
			s, err := propertystore.OpenBolt(cfg.PropertyStorePath)
			if err != nil {
				return nil, newErr("New", KindIOFailed, err)
			}
			store = s
		}
	}

	d := &Device{
		cfg:         cfg,
		hwID:        hwID,
		credMgr:     credentials.NewManager(cfg.CredentialsDir),
		pairingCli:  pairing.New(cfg.PairingBaseURL),
		registry:    interfaces.NewRegistry(),
		store:       store,
		metrics:     newMetrics(),
		mu:          newBoundedMutex(),
		state:       stateUnconfigured,
		producerSet: make(map[string]struct{}),
	}

	registerer := cfg.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	d.metrics.register(registerer)

	return d, nil
}

// AddInterface installs or replaces a declared interface, delegating to
// the introspection registry under the session mutex.
func (d *Device) AddInterface(iface *interfaces.Interface) (replaced bool, err error) {
	if !d.mu.tryLock(defaultLockWait) {
		return false, newErr("AddInterface", KindDeviceNotReady, nil)
	}
	defer d.mu.unlock()

	replaced, rerr := d.registry.AddOrReplace(iface)
	if rerr != nil {
		switch rerr.(type) {
		case *interfaces.ErrInvalidInterface:
			return false, newErr("AddInterface", KindInvalidArgument, rerr)
		case *interfaces.ErrConflictingInterface:
			return false, newErr("AddInterface", KindConflictingInterface, rerr)
		default:
			return false, newErr("AddInterface", KindInternal, rerr)
		}
	}
	if replaced {
		log.Printf("astarte: interface %s overridden to %d.%d", iface.Name, iface.MajorVersion, iface.MinorVersion)
	}
	return replaced, nil
}

// HwID returns the device's encoded hardware identifier (derived or
// caller-supplied).
func (d *Device) HwID() string { return d.hwID }

// DeviceTopic returns the certificate-CN-derived topic prefix. It is
// empty until Start has completed init_connection.
func (d *Device) DeviceTopic() string { return d.deviceTopic }

// Start runs init_connection (credentials bootstrap, broker discovery,
// MQTT client construction) and connects. It returns device_not_ready
// only when the session mutex cannot be taken within the bounded wait;
// calling it again on an already-started device re-runs init_connection
// and replaces the transport.
func (d *Device) Start(ctx context.Context) error {
	if !d.mu.tryLock(defaultLockWait) {
		return newErr("Start", KindDeviceNotReady, nil)
	}
	defer d.mu.unlock()

	tp, topic, err := d.initConnectionLocked(ctx)
	if err != nil {
		return err
	}
	d.tp = tp
	d.deviceTopic = topic
	d.state = stateConfigured
	d.wireTransportLocked()

	d.state = stateConnecting
	if err := d.tp.Connect(ctx); err != nil {
		d.state = stateDisconnected
		return newErr("Start", KindTLSFailed, err)
	}
	return nil
}

// Stop synchronously disconnects the MQTT client and synthesizes the
// disconnection callback, since MQTT does not fire one for voluntary
// stops.
func (d *Device) Stop() error {
	if !d.mu.tryLock(defaultLockWait) {
		return newErr("Stop", KindDeviceNotReady, nil)
	}
	if d.tp == nil {
		d.mu.unlock()
		return nil
	}
	d.tp.Disconnect()
	d.state = stateDisconnected
	d.metrics.ConnectionState.Set(0)
	d.mu.unlock()

	// Invoked outside the session mutex, like every other application
	// callback.
	if d.cfg.OnDisconnection != nil {
		d.cfg.OnDisconnection()
	}
	return nil
}

// Destroy tears down the MQTT client, terminates the reinit worker, and
// releases the property store handle. After Destroy the Device must not
// be used again.
func (d *Device) Destroy() error {
	d.mu.lock()
	defer d.mu.unlock()

	if d.reinit != nil {
		d.reinit.terminate()
	}
	if d.tp != nil {
		d.tp.Disconnect()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.state = stateDestroyed
			return newErr("Destroy", KindIOFailed, err)
		}
	}
	d.state = stateDestroyed
	return nil
}

// initConnectionLocked runs the Unconfigured -> Configured transition:
// credential bootstrap, broker discovery, and MQTT client construction.
// Caller must hold d.mu.
func (d *Device) initConnectionLocked(ctx context.Context) (transport, string, error) {
	if err := d.credMgr.Init(); err != nil {
		return nil, "", newErr("initConnection", KindIOFailed, err)
	}

	secret := d.cfg.CredentialsSecret
	if secret == "" {
		registered, err := d.pairingCli.RegisterDevice(ctx, d.cfg.Realm, d.cfg.PairingJWT, d.hwID)
		if err != nil {
			return nil, "", newErr("initConnection", KindIOFailed, err)
		}
		secret = registered
	}

	if !d.credMgr.HasCertificate() {
		csrPEM, err := d.credMgr.GetCSR()
		if err != nil {
			return nil, "", newErr("initConnection", KindIOFailed, err)
		}
		certPEM, err := d.pairingCli.ObtainCertificate(ctx, d.cfg.Realm, d.hwID, secret, csrPEM)
		if err != nil {
			return nil, "", newErr("initConnection", KindTLSFailed, err)
		}
		if err := d.credMgr.SaveCertificate(certPEM); err != nil {
			return nil, "", newErr("initConnection", KindIOFailed, err)
		}
	}

	keyPEM, err := d.credMgr.GetKey()
	if err != nil {
		return nil, "", newErr("initConnection", KindIOFailed, err)
	}
	certPEM, err := d.credMgr.GetCertificate()
	if err != nil {
		return nil, "", newErr("initConnection", KindIOFailed, err)
	}
	cn, err := credentials.CertificateCommonName(certPEM)
	if err != nil {
		return nil, "", newErr("initConnection", KindTLSFailed, err)
	}

	brokerURL, err := d.pairingCli.FetchBrokerURL(ctx, d.cfg.Realm, d.hwID, secret)
	if err != nil {
		return nil, "", newErr("initConnection", KindIOFailed, err)
	}

	cert, err := tlsCertificate(certPEM, keyPEM)
	if err != nil {
		return nil, "", newErr("initConnection", KindTLSFailed, err)
	}

	cleanSession := !d.cfg.PersistProperties
	tp := newPahoTransport(brokerURL, cn, cert, cleanSession)
	return tp, cn, nil
}

// wireTransportLocked attaches the engine's connect/disconnect/message
// handlers to d.tp. Caller must hold d.mu; the handlers themselves must
// never be invoked while holding it, since the engine never calls back
// into the application under the session mutex, so each handler
// dispatches its own locking.
func (d *Device) wireTransportLocked() {
	d.tp.SetOnConnect(func(sessionPresent bool) {
		d.handleConnect(sessionPresent)
	})
	d.tp.SetOnConnectionLost(func(err error) {
		d.handleConnectionLost(err)
	})
	d.tp.SetOnMessage(func(topic string, payload []byte) {
		d.handleMessage(topic, payload)
	})

	if d.reinit == nil {
		d.reinit = newReinitWorker(d)
	}
}
