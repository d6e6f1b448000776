package ldk

import (
	"sync/atomic"
)

// Nexter is a threadsafe monotonic ordinal generator. The Ingester uses one to
// number records in source order.
type Nexter struct {
	id *uint64
}

// NexterOption configures a Nexter.
type NexterOption func(*Nexter)

// NexterStartFrom sets the first ordinal Next will return.
func NexterStartFrom(start uint64) NexterOption {
	return func(n *Nexter) {
		*n.id = start
	}
}

// NewNexter creates a new ordinal generator starting at 0 unless an option
// says otherwise.
func NewNexter(opts ...NexterOption) *Nexter {
	var id uint64
	n := &Nexter{
		id: &id,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next generates a new ordinal and returns it.
func (n *Nexter) Next() (next uint64) {
	next = atomic.AddUint64(n.id, 1)
	return next - 1
}

// Last returns the most recently generated ordinal.
func (n *Nexter) Last() (last uint64) {
	last = atomic.LoadUint64(n.id) - 1
	return
}
