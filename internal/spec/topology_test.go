package spec

import (
	"strings"
	"testing"
)

const exampleDoc = `
apiVersion: scalemq/v1
kind: Topology
sockets:
  - name: ingest
    role: pull
    sendCapacity: 16
    endpoints:
      - transport: tcp
        address: ":7700"
        listen: true
  - name: fanout
    role: pub
    endpoints:
      - transport: inproc
        address: "bus-1"
        listen: true
`

func TestParseMergesSockets(t *testing.T) {
	topo, err := Parse(strings.NewReader(exampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(topo.Sockets) != 2 {
		t.Fatalf("got %d sockets, want 2", len(topo.Sockets))
	}
	if topo.Sockets[0].Name != "ingest" || topo.Sockets[0].Role != RolePull {
		t.Fatalf("unexpected first socket: %+v", topo.Sockets[0])
	}
	if topo.Sockets[1].Endpoints[0].Transport != "inproc" {
		t.Fatalf("unexpected second socket endpoint: %+v", topo.Sockets[1].Endpoints[0])
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	s := SocketSpec{Name: "x", Role: "bogus"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	s := SocketSpec{Name: "x", Role: RolePair, Endpoints: []EndpointSpec{{Transport: "carrier-pigeon", Address: "x"}}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestTopologyValidateRejectsDuplicateNames(t *testing.T) {
	topo := &Topology{Sockets: []SocketSpec{
		{Name: "a", Role: RolePush},
		{Name: "a", Role: RolePull},
	}}
	if err := topo.Validate(); err == nil {
		t.Fatal("expected error for duplicate socket name")
	}
}

func TestApplyDefaultsFillsZeroCapacities(t *testing.T) {
	topo := &Topology{Sockets: []SocketSpec{{Name: "a", Role: RolePair}}}
	topo.ApplyDefaults(64)
	if topo.Sockets[0].SendCapacity != 64 || topo.Sockets[0].RecvCapacity != 64 {
		t.Fatalf("defaults not applied: %+v", topo.Sockets[0])
	}
}

func TestParseEmptyDocumentErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader("sockets: []\n")); err == nil {
		t.Fatal("expected error for empty socket list")
	}
}
