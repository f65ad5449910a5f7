package vts

import "sync/atomic"

// IDGenerator hands out the ids of orders, positions and transactions.
type IDGenerator interface {
	NextOrderID() int64
	NextPositionID() int64
	NextTransactionID() int64
	Reset()
}

// SequenceGenerator numbers each kind independently, starting at 1.
type SequenceGenerator struct {
	order       atomic.Int64
	position    atomic.Int64
	transaction atomic.Int64
}

var _ IDGenerator = (*SequenceGenerator)(nil)

func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{}
}

func (g *SequenceGenerator) NextOrderID() int64       { return g.order.Add(1) }
func (g *SequenceGenerator) NextPositionID() int64    { return g.position.Add(1) }
func (g *SequenceGenerator) NextTransactionID() int64 { return g.transaction.Add(1) }

func (g *SequenceGenerator) Reset() {
	g.order.Store(0)
	g.position.Store(0)
	g.transaction.Store(0)
}
