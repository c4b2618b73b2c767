package service

// Registry is the set of open subscriber connections, keyed by peer ID.
//
// Registry is not safe for concurrent use. It is owned by the relay's
// dispatch loop, which serializes every mutation and snapshot.
type Registry struct {
	peers map[string]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Register moves p from CONNECTING to OPEN and adds it. A peer that is
// already a member yields ErrAlreadyRegistered; a peer that closed before
// registration yields ErrPeerClosed and is not added.
func (r *Registry) Register(p *Peer) error {
	if _, ok := r.peers[p.id]; ok {
		return ErrAlreadyRegistered
	}
	if !p.open() {
		return ErrPeerClosed
	}
	r.peers[p.id] = p
	return nil
}

// Unregister removes p and closes it. It reports whether p was a member;
// removing an absent peer is a no-op.
func (r *Registry) Unregister(p *Peer) bool {
	if _, ok := r.peers[p.id]; !ok {
		return false
	}
	delete(r.peers, p.id)
	p.close()
	return true
}

// Snapshot returns an independent copy of the current membership.
func (r *Registry) Snapshot() []*Peer {
	if len(r.peers) == 0 {
		return nil
	}
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Drain removes and closes every member, returning how many there were.
func (r *Registry) Drain() int {
	n := len(r.peers)
	for id, p := range r.peers {
		delete(r.peers, id)
		p.close()
	}
	return n
}

// Len returns the number of members.
func (r *Registry) Len() int {
	return len(r.peers)
}
