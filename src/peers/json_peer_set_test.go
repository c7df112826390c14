package peers

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/concordnetworks/concord/src/common"
	"github.com/sirupsen/logrus"
)

func TestJSONPeerSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	store := NewJSONPeerSet(path, logger)

	// Try a read with no registry, should get an empty set
	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 0 {
		t.Fatalf("expected empty peer-set, got %d peers", peerSet.Len())
	}

	peers := []*Peer{}
	for i := 0; i < 3; i++ {
		peers = append(peers, NewPeer(
			fmt.Sprintf("peer%d", i),
			fmt.Sprintf("http://127.0.0.1:%d", 8000+i),
		))
	}

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should find 3 peers
	peerSet, err = store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 3 {
		t.Fatalf("peers: %d, want 3", peerSet.Len())
	}

	if !reflect.DeepEqual(peerSet.Monikers(), []string{"peer0", "peer1", "peer2"}) {
		t.Fatalf("monikers: %v", peerSet.Monikers())
	}
}

func TestJSONPeerSetCustomFileName(t *testing.T) {
	// The registry path is honored as given; nothing rewrites the file
	// name to a fixed default.
	path := filepath.Join(t.TempDir(), "federation.json")

	raw := `[{"moniker": "alpha", "net_addr": "http://a"}]`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	store := NewJSONPeerSet(path, logger)

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(peerSet.Monikers(), []string{"alpha"}) {
		t.Fatalf("monikers: %v", peerSet.Monikers())
	}
}

func TestJSONPeerSetTolerantDecode(t *testing.T) {
	dir := t.TempDir()

	// One entry is missing its moniker: schema validation fails, but the
	// decode keeps the valid entries.
	raw := `[
		{"moniker": "alpha", "net_addr": "http://a"},
		{"net_addr": "http://orphan"},
		{"moniker": "beta", "net_addr": "http://b"}
	]`
	path := filepath.Join(dir, "peers.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	store := NewJSONPeerSet(path, logger)

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(peerSet.Monikers(), []string{"alpha", "beta"}) {
		t.Fatalf("monikers: %v", peerSet.Monikers())
	}
}

func TestPeerSetDeterministicOrder(t *testing.T) {
	ps1 := NewPeerSet([]*Peer{
		NewPeer("zulu", "http://z"),
		NewPeer("alpha", "http://a"),
		NewPeer("mike", "http://m"),
	})
	ps2 := NewPeerSet([]*Peer{
		NewPeer("mike", "http://m"),
		NewPeer("zulu", "http://z"),
		NewPeer("alpha", "http://a"),
	})

	if !reflect.DeepEqual(ps1.Monikers(), ps2.Monikers()) {
		t.Fatalf("order depends on input: %v vs %v", ps1.Monikers(), ps2.Monikers())
	}
	if !reflect.DeepEqual(ps1.Monikers(), []string{"alpha", "mike", "zulu"}) {
		t.Fatalf("monikers: %v", ps1.Monikers())
	}
}

func TestExcludePeer(t *testing.T) {
	peers := []*Peer{
		NewPeer("alpha", "http://a"),
		NewPeer("beta", "http://b"),
		NewPeer("gamma", "http://c"),
	}

	index, rest := ExcludePeer(peers, "beta")
	if index != 1 {
		t.Fatalf("index: %d, want 1", index)
	}
	if len(rest) != 2 {
		t.Fatalf("rest: %d, want 2", len(rest))
	}

	index, rest = ExcludePeer(peers, "unknown")
	if index != -1 {
		t.Fatalf("index: %d, want -1", index)
	}
	if len(rest) != 3 {
		t.Fatalf("rest: %d, want 3", len(rest))
	}
}
