package astarte

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionHandler is invoked after the post-connect handshake runs (or
// is skipped because the broker reports a resumed session), with the raw
// session_present bit the broker reported.
type ConnectionHandler func(sessionPresent bool)

// DisconnectionHandler is invoked whenever the device drops off the
// broker, whether voluntarily (Stop) or not.
type DisconnectionHandler func()

// DataHandler is invoked for every inbound non-empty data or property
// payload, with the envelope's "v" field already decoded to its native
// Go type (bool, string, int32, int64, float64, []byte). Array and
// object values are delivered as the raw bson.Document, not as a Go
// slice or map.
type DataHandler func(interfaceName, path string, value any)

// UnsetHandler is invoked for every inbound empty (unset) payload.
type UnsetHandler func(interfaceName, path string)

// Config holds the device session's construction-time parameters:
// identity, realm, optional callbacks, and the persistence flag. The
// zero value is not usable; build one with newConfig(opts...).
type Config struct {
	Realm             string
	HwID              string
	CredentialsSecret string
	PairingBaseURL    string
	PairingJWT        string
	CredentialsDir    string
	PersistProperties bool
	PropertyStorePath string
	UserData          any

	OnConnection    ConnectionHandler
	OnDisconnection DisconnectionHandler
	OnData          DataHandler
	OnUnset         UnsetHandler

	ReinitBackoff   time.Duration
	NetworkCheckURL string

	MetricsRegisterer prometheus.Registerer
}

// Option configures a Config at construction, following the standard
// functional-options pattern.
type Option func(*Config)

func newConfig(opts ...Option) Config {
	cfg := Config{
		PersistProperties: true,
		ReinitBackoff:     30 * time.Second,
		NetworkCheckURL:   "https://api.astarte-platform.org",
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithRealm sets the required realm name.
func WithRealm(realm string) Option {
	return func(c *Config) { c.Realm = realm }
}

// WithHardwareID pins an explicit encoded hardware identifier, bypassing
// automatic derivation.
func WithHardwareID(hwID string) Option {
	return func(c *Config) { c.HwID = hwID }
}

// WithCredentialsSecret pins a pre-obtained credentials secret, bypassing
// pairing registration.
func WithCredentialsSecret(secret string) Option {
	return func(c *Config) { c.CredentialsSecret = secret }
}

// WithPairing configures the pairing API base URL and the JWT used only
// for the initial device registration call.
func WithPairing(baseURL, jwt string) Option {
	return func(c *Config) {
		c.PairingBaseURL = baseURL
		c.PairingJWT = jwt
	}
}

// WithCredentialsDir sets the directory the credential manager persists
// device.key/device.csr/device.crt under.
func WithCredentialsDir(dir string) Option {
	return func(c *Config) { c.CredentialsDir = dir }
}

// WithPropertyPersistence toggles property persistence and, when
// enabled, the path of the backing store file.
func WithPropertyPersistence(enabled bool, storePath string) Option {
	return func(c *Config) {
		c.PersistProperties = enabled
		c.PropertyStorePath = storePath
	}
}

// WithUserData stores an opaque value in Config.UserData. The callbacks
// do not receive it; their signatures carry no user-data argument.
func WithUserData(data any) Option {
	return func(c *Config) { c.UserData = data }
}

// WithConnectionHandler registers the connection callback.
func WithConnectionHandler(h ConnectionHandler) Option {
	return func(c *Config) { c.OnConnection = h }
}

// WithDisconnectionHandler registers the disconnection callback.
func WithDisconnectionHandler(h DisconnectionHandler) Option {
	return func(c *Config) { c.OnDisconnection = h }
}

// WithDataHandler registers the data callback.
func WithDataHandler(h DataHandler) Option {
	return func(c *Config) { c.OnData = h }
}

// WithUnsetHandler registers the unset callback.
func WithUnsetHandler(h UnsetHandler) Option {
	return func(c *Config) { c.OnUnset = h }
}

// WithReinitBackoff overrides the 30s default reinit retry backoff.
func WithReinitBackoff(d time.Duration) Option {
	return func(c *Config) { c.ReinitBackoff = d }
}

// WithNetworkCheckURL overrides the URL probed after a TLS-looking
// connection loss, before a reinit is requested, to disambiguate a
// rejected certificate from a severed network.
func WithNetworkCheckURL(url string) Option {
	return func(c *Config) { c.NetworkCheckURL = url }
}

// WithMetricsRegisterer overrides the prometheus.Registerer the session
// engine's metrics are registered against. Defaults to
// prometheus.DefaultRegisterer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.MetricsRegisterer = reg }
}
