// Package interfaces implements the declared-interface data model and
// introspection registry of the Astarte device protocol: typed schemas a
// device publishes on or receives on, and the in-memory, ordered
// collection of those currently installed.
package interfaces

import (
	"fmt"
	"strings"
)

// Type distinguishes a datastream (time-series) interface from a
// properties (last-write-wins) interface.
type Type int

const (
	Datastream Type = iota
	Properties
)

func (t Type) String() string {
	if t == Properties {
		return "properties"
	}
	return "datastream"
}

// Ownership identifies which side is authoritative for publishes on an
// interface.
type Ownership int

const (
	Device Ownership = iota
	Server
)

func (o Ownership) String() string {
	if o == Server {
		return "server"
	}
	return "device"
}

// Aggregation distinguishes individually-addressed mappings from a single
// object-aggregate publish.
type Aggregation int

const (
	Individual Aggregation = iota
	Object
)

// Reliability maps directly onto an MQTT QoS level.
type Reliability int

const (
	Unreliable Reliability = 0
	Guaranteed Reliability = 1
	Unique     Reliability = 2
)

// QoS returns the MQTT QoS level this reliability corresponds to.
func (r Reliability) QoS() byte { return byte(r) }

// MappingType is the wire type of a single endpoint.
type MappingType int

const (
	TypeDouble MappingType = iota
	TypeInteger32
	TypeInteger64
	TypeBoolean
	TypeString
	TypeBinaryBlob
	TypeDateTime
	TypeDoubleArray
	TypeInteger32Array
	TypeInteger64Array
	TypeBooleanArray
	TypeStringArray
	TypeBinaryBlobArray
	TypeDateTimeArray
	TypeObject
)

// Mapping is one endpoint within an Interface.
type Mapping struct {
	Endpoint          string
	Type              MappingType
	Reliability       Reliability
	ExplicitTimestamp bool
	AllowUnset        bool
}

// Interface is a declared, versioned schema.
type Interface struct {
	Name         string
	MajorVersion int
	MinorVersion int
	Type         Type
	Ownership    Ownership
	Aggregation  Aggregation
	Mappings     []Mapping
}

// Valid reports whether the interface satisfies its sole structural
// invariant: an interface with both versions zero is invalid.
func (i *Interface) Valid() bool {
	return i.MajorVersion != 0 || i.MinorVersion != 0
}

// FindMapping returns the mapping whose endpoint matches path, treating
// a "%{...}"-bracketed endpoint segment as a wildcard for one literal
// path segment. Both path and every mapping endpoint are compared
// slash-segment by slash-segment, so a path can only match an endpoint
// of the same depth.
func (i *Interface) FindMapping(path string) (*Mapping, bool) {
	pathSegs := pathSegments(path)
	for idx := range i.Mappings {
		m := &i.Mappings[idx]
		if endpointMatches(m.Endpoint, pathSegs) {
			return m, true
		}
	}
	return nil, false
}

func pathSegments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func endpointMatches(endpoint string, pathSegs []string) bool {
	endpointSegs := pathSegments(endpoint)
	if len(endpointSegs) != len(pathSegs) {
		return false
	}
	for i, seg := range endpointSegs {
		if strings.HasPrefix(seg, "%{") && strings.HasSuffix(seg, "}") {
			continue
		}
		if seg != pathSegs[i] {
			return false
		}
	}
	return true
}

// compatibleReplacement reports whether candidate may replace installed:
// (ownership, type) must match, and (major, minor) must be greater than
// or equal to the installed pair with at least one strictly greater.
func compatibleReplacement(installed, candidate *Interface) bool {
	if installed.Ownership != candidate.Ownership || installed.Type != candidate.Type {
		return false
	}
	if candidate.MajorVersion < installed.MajorVersion {
		return false
	}
	if candidate.MajorVersion == installed.MajorVersion && candidate.MinorVersion < installed.MinorVersion {
		return false
	}
	if candidate.MajorVersion == installed.MajorVersion && candidate.MinorVersion == installed.MinorVersion {
		return false
	}
	return true
}

// ErrConflictingInterface is returned by Registry.AddOrReplace when a
// candidate interface conflicts with an already-installed one.
type ErrConflictingInterface struct {
	Name string
}

func (e *ErrConflictingInterface) Error() string {
	return fmt.Sprintf("interfaces: %q conflicts with the installed interface", e.Name)
}

// ErrInvalidInterface is returned for an interface failing Valid().
type ErrInvalidInterface struct {
	Name string
}

func (e *ErrInvalidInterface) Error() string {
	return fmt.Sprintf("interfaces: %q has both major and minor version zero", e.Name)
}
