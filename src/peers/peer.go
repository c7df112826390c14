package peers

// Peer is a remote collaborator whose self-reported integrity hashes and
// drift history feed the consensus computation.
type Peer struct {
	// Moniker is the unique user-friendly name of the peer.
	Moniker string `json:"moniker"`

	// NetAddr is the base address where the peer publishes its drift log and
	// artifact hash reports.
	NetAddr string `json:"net_addr"`
}

// NewPeer instantiates a Peer.
func NewPeer(moniker, netAddr string) *Peer {
	return &Peer{
		Moniker: moniker,
		NetAddr: netAddr,
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, moniker string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.Moniker != moniker {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
