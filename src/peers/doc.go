// Package peers defines the concept of a federation peer and implements
// functions to manage collections of peers.
//
// A peer is a remote collaborator that mirrors the same canonical artifacts
// and self-reports integrity hashes and agreement-drift history. Peers are
// identified by a moniker, a user-friendly name which must be unique within a
// registry, and carry a network address where their published reports can be
// fetched.
//
// Upon starting up, the engines expect to find a peers.json file in the data
// directory, listing the peers that take part in the weighted consensus
// computation. A missing or empty registry is not an error: it resolves to an
// empty peer-set, and downstream engines degrade to zero-weight results.
package peers
