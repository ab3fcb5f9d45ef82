// Package registry is the append-only collection of per-node sessions,
// indexed by hardware identity and by assigned logical address.
package registry

import (
	"errors"
	"sync"

	"canbridge/canid"
	"canbridge/identity"
	"canbridge/packet"
	"canbridge/session"
)

// MaxNodes bounds the registry: logical addresses are assigned in
// [1, MaxNodes], with no reclamation.
const MaxNodes = canid.MaxNodeAddr

// ErrDuplicate is returned by Add when the identity is already registered.
var ErrDuplicate = errors.New("registry: identity already registered")

// ErrExhausted is returned by Add when MaxNodes sessions already exist.
var ErrExhausted = errors.New("registry: address space exhausted")

// Registry allocates logical addresses and owns every node session for the
// process lifetime. The i-th session holds address i+1, so address
// assignment is always len(sessions)+1.
type Registry struct {
	mu       sync.Mutex
	sessions []*session.Session

	sendFrame session.SendFrame
	outCh     chan<- packet.Inbound
}

// New constructs an empty registry. sendFrame is wired into every session's
// ISO-TP engine for transmission; out receives every session's reassembled
// packets.
func New(sendFrame session.SendFrame, out chan<- packet.Inbound) *Registry {
	return &Registry{sendFrame: sendFrame, outCh: out}
}

// FindByIdentity returns the existing session for id, if any.
func (r *Registry) FindByIdentity(id identity.NodeIdentity) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Identity() == id {
			return s
		}
	}
	return nil
}

// FindByAddress returns the session holding addr, if any. addr must be in
// [1, 254]; out-of-range addresses always return nil.
func (r *Registry) FindByAddress(addr byte) *session.Session {
	if addr < canid.MinNodeAddr || addr > canid.MaxNodeAddr {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := int(addr) - canid.MinNodeAddr
	if idx >= len(r.sessions) {
		return nil
	}
	return r.sessions[idx]
}

// Add registers a new session for id at the next available address. It
// fails with ErrDuplicate if id is already registered, or ErrExhausted if
// MaxNodes sessions already exist.
func (r *Registry) Add(id identity.NodeIdentity) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Identity() == id {
			return nil, ErrDuplicate
		}
	}
	if len(r.sessions) >= MaxNodes {
		return nil, ErrExhausted
	}

	addr := byte(len(r.sessions) + canid.MinNodeAddr)
	s := session.New(id, addr, r.sendFrame, r.outCh)
	r.sessions = append(r.sessions, s)
	return s, nil
}

// Len reports how many sessions are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns a copy of every registered session, for read-only
// reporting (e.g. the status API).
func (r *Registry) Snapshot() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}
