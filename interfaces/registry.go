package interfaces

import "sync"

// Registry is an ordered, thread-safe collection of declared interfaces.
// It stores references — the caller must keep declared interfaces alive
// for the lifetime of whatever engine holds the Registry. Introspection
// lists rarely exceed a few dozen entries, so a map keyed by name is
// plenty; an insertion-order slice alongside it keeps introspection
// rendering and iteration stable.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Interface
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Interface)}
}

// AddOrReplace installs iface. A replacement of an already-installed
// interface is accepted only if ownership and type match and the
// version pair is greater-or-equal with at least one component strictly
// greater; such a replacement is reported via the replaced return value
// so the caller can log it as an override. The existing-name conflict
// check runs first, so a both-versions-zero candidate that collides
// with an already-installed interface is reported as a conflict rather
// than as merely invalid; Valid() is consulted only for genuinely new
// interface names.
func (r *Registry) AddOrReplace(iface *Interface) (replaced bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	installed, exists := r.entries[iface.Name]
	if !exists {
		if !iface.Valid() {
			return false, &ErrInvalidInterface{Name: iface.Name}
		}
		r.entries[iface.Name] = iface
		r.order = append(r.order, iface.Name)
		return false, nil
	}
	if !compatibleReplacement(installed, iface) {
		return false, &ErrConflictingInterface{Name: iface.Name}
	}
	r.entries[iface.Name] = iface
	return true, nil
}

// Lookup returns the currently installed interface with the given name,
// matched by full key equality — deliberately never a prefix or
// min-length comparison, which would let one interface's name
// accidentally shadow another's.
func (r *Registry) Lookup(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iface, ok := r.entries[name]
	return iface, ok
}

// Iterate calls fn for each installed interface in insertion order,
// stopping early if fn returns false.
func (r *Registry) Iterate(fn func(*Interface) bool) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	for _, name := range names {
		r.mu.RLock()
		iface, ok := r.entries[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(iface) {
			return
		}
	}
}

// IntrospectionString renders the currently installed interfaces as a
// semicolon-separated "name:major:minor" list, with no trailing
// separator.
func (r *Registry) IntrospectionString() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]byte, 0, 32*len(r.order))
	for i, name := range r.order {
		if i > 0 {
			out = append(out, ';')
		}
		iface := r.entries[name]
		out = append(out, name...)
		out = append(out, ':')
		out = appendInt(out, iface.MajorVersion)
		out = append(out, ':')
		out = appendInt(out, iface.MinorVersion)
	}
	return string(out)
}

func appendInt(dst []byte, v int) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(dst)
	for v > 0 {
		dst = append(dst, byte('0'+v%10))
		v /= 10
	}
	if neg {
		dst = append(dst, '-')
	}
	// reverse the digits just appended
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}
