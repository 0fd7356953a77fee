// Package registry keeps the live sessions of a server, keyed by session id,
// and hands out the ids.
package registry

import (
	"github.com/cyberinferno/go-tcpsession/idgenerator"
	"github.com/cyberinferno/go-tcpsession/safemap"
	"github.com/cyberinferno/go-tcpsession/session"
)

// Registry is a concurrent session table. The zero value is not usable;
// call New.
type Registry struct {
	sessions *safemap.SafeMap[uint32, *session.Session]
	ids      *idgenerator.IdGenerator
}

// New creates a Registry whose first NextID returns startID+1. Ids never
// take the value zero.
//
// Parameters:
//   - startID: The value the id counter starts from
//
// Returns:
//   - An empty Registry
func New(startID uint32) *Registry {
	return &Registry{
		sessions: safemap.NewSafeMap[uint32, *session.Session](),
		ids:      idgenerator.NewIdGenerator(startID),
	}
}

// NextID returns the next session id. Safe for concurrent use.
func (r *Registry) NextID() uint32 {
	return r.ids.Id()
}

// Add stores s under its id, replacing any previous entry.
func (r *Registry) Add(s *session.Session) {
	r.sessions.Store(s.ID(), s)
}

// Remove deletes the entry for id if it still refers to s. A stale session
// never evicts a newer one stored under the same id.
//
// Returns:
//   - true if the entry was removed
func (r *Registry) Remove(s *session.Session) bool {
	return r.sessions.CompareAndDelete(s.ID(), s)
}

// Get returns the session stored under id.
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (r *Registry) Get(id uint32) (*session.Session, bool) {
	return r.sessions.Load(id)
}

// Range calls f for every session until f returns false.
func (r *Registry) Range(f func(s *session.Session) bool) {
	r.sessions.Range(func(_ uint32, s *session.Session) bool {
		return f(s)
	})
}

// Len counts the sessions. It walks the whole table.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// ShutdownAll shuts every registered session down with the given scope.
func (r *Registry) ShutdownAll(scope session.Scope) {
	r.Range(func(s *session.Session) bool {
		s.Shutdown(scope)
		return true
	})
}
