package peers

import (
	"bytes"
	"encoding/json"
	"sort"
)

// PeerSet is a set of Peers forming a trust federation.
type PeerSet struct {
	Peers     []*Peer          `json:"peers"`
	ByMoniker map[string]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers. Peers are kept in
// deterministic order, sorted by moniker, regardless of input order.
// Duplicate monikers resolve to the last occurrence.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByMoniker: make(map[string]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByMoniker[peer.Moniker] = peer
	}

	sorted := make([]*Peer, 0, len(peerSet.ByMoniker))
	for _, peer := range peerSet.ByMoniker {
		sorted = append(sorted, peer)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Moniker < sorted[j].Moniker
	})

	peerSet.Peers = sorted

	return peerSet
}

// NewPeerSetFromPeerSliceBytes creates a new PeerSet from a JSON-encoded
// peer slice.
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	b := bytes.NewBuffer(peerSliceBytes)
	dec := json.NewDecoder(b)

	err := dec.Decode(&peers)
	if err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

// WithNewPeer returns a new PeerSet with a list of peers including the new
// one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := peerSet.Peers

	if _, ok := peerSet.ByMoniker[peer.Moniker]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet with a list of peers excluding the
// provided one.
func (peerSet *PeerSet) WithRemovedPeer(peer *Peer) *PeerSet {
	peers := []*Peer{}
	for _, p := range peerSet.Peers {
		if p.Moniker != peer.Moniker {
			peers = append(peers, p)
		}
	}
	return NewPeerSet(peers)
}

// Len returns the number of peers in the set.
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

// Monikers returns the sorted monikers of all peers in the set.
func (peerSet *PeerSet) Monikers() []string {
	monikers := make([]string, 0, len(peerSet.Peers))
	for _, p := range peerSet.Peers {
		monikers = append(monikers, p.Moniker)
	}
	return monikers
}
