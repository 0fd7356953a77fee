// Package idgenerator hands out session ids.
package idgenerator

import "sync/atomic"

// IdGenerator generates increasing uint32 ids in a concurrency-safe manner.
// Zero is reserved to mean "no session": when the counter wraps it skips
// straight to 1.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id is startValue+1, or 1
// if that would be zero.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next id. It never returns zero.
func (g *IdGenerator) Id() uint32 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued id, or the start value if none was
// issued yet.
func (g *IdGenerator) Last() uint32 {
	return g.id.Load()
}
