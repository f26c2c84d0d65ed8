// Package spec loads a YAML socket topology document describing the
// sockets a scalemqd process should create, their protocol role, and
// the endpoints they dial or listen on — the YAML analog of the
// teacher's FunctionSpec, adapted from internal/spec/function.go.
package spec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Role names a socket's place in a push/pull, pub/sub or pair arrangement.
// The core itself (spec.md) is protocol-agnostic; Role is metadata for
// whoever wires transports to sockets, not enforced by internal/socket.
type Role string

const (
	RolePush Role = "push"
	RolePull Role = "pull"
	RolePub  Role = "pub"
	RoleSub  Role = "sub"
	RolePair Role = "pair"
)

// EndpointSpec is one dial or listen address a SocketSpec attaches.
type EndpointSpec struct {
	Transport string `yaml:"transport"` // inproc, tcp, vsock, redisstream
	Address   string `yaml:"address"`
	Listen    bool   `yaml:"listen,omitempty"` // false = dial
}

// SocketSpec describes one socket in the topology.
type SocketSpec struct {
	Name string `yaml:"name"`
	Role Role   `yaml:"role"`

	SendCapacity int `yaml:"sendCapacity,omitempty"` // default: queue.default_capacity
	RecvCapacity int `yaml:"recvCapacity,omitempty"`

	Endpoints []EndpointSpec `yaml:"endpoints,omitempty"`

	Labels map[string]string `yaml:"labels,omitempty"`
}

// Topology holds every socket a process should stand up.
type Topology struct {
	APIVersion string       `yaml:"apiVersion,omitempty"`
	Kind       string       `yaml:"kind,omitempty"`
	Sockets    []SocketSpec `yaml:"sockets"`
}

// ParseFile loads a Topology from a YAML file on disk.
func ParseFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a Topology document from r. A document may declare
// multiple --- separated YAML documents, each contributing sockets;
// all are merged into a single Topology, matching the teacher's
// multi-document FunctionSpec decode loop.
func Parse(r io.Reader) (*Topology, error) {
	decoder := yaml.NewDecoder(r)
	var merged Topology

	for {
		var doc Topology
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode topology yaml: %w", err)
		}
		if merged.APIVersion == "" {
			merged.APIVersion = doc.APIVersion
		}
		if merged.Kind == "" {
			merged.Kind = doc.Kind
		}
		merged.Sockets = append(merged.Sockets, doc.Sockets...)
	}

	if len(merged.Sockets) == 0 {
		return nil, fmt.Errorf("no sockets declared in topology")
	}
	return &merged, nil
}

// Validate checks a SocketSpec's required fields and referential
// sanity, mirroring FunctionSpec.Validate's shape.
func (s *SocketSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("socket: name is required")
	}
	switch s.Role {
	case RolePush, RolePull, RolePub, RoleSub, RolePair:
	default:
		return fmt.Errorf("socket %q: invalid role %q (valid: push, pull, pub, sub, pair)", s.Name, s.Role)
	}
	for i, ep := range s.Endpoints {
		switch ep.Transport {
		case "inproc", "tcp", "vsock", "redisstream":
		default:
			return fmt.Errorf("socket %q endpoint %d: invalid transport %q", s.Name, i, ep.Transport)
		}
		if ep.Address == "" {
			return fmt.Errorf("socket %q endpoint %d: address is required", s.Name, i)
		}
	}
	return nil
}

// Validate checks every socket in the topology and that names are
// unique.
func (t *Topology) Validate() error {
	seen := make(map[string]bool, len(t.Sockets))
	for i := range t.Sockets {
		s := &t.Sockets[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate socket name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// ApplyDefaults fills SendCapacity/RecvCapacity from defaultCap for
// any socket that didn't specify one, the same "zero means inherit the
// process default" behaviour the teacher's FunctionSpec applies to
// MemoryMB/TimeoutS.
func (t *Topology) ApplyDefaults(defaultCap int) {
	for i := range t.Sockets {
		s := &t.Sockets[i]
		if s.SendCapacity == 0 {
			s.SendCapacity = defaultCap
		}
		if s.RecvCapacity == 0 {
			s.RecvCapacity = defaultCap
		}
	}
}
