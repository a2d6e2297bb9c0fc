package admin

import "fmt"

// Sequenced is a value tagged with the sequence number it was accepted under.
type Sequenced[T any] struct {
	Seq   uint64
	Value T
}

// Resequencer releases values in sequence order regardless of the order they
// arrive in. A value that arrives early waits until every lower sequence has
// been released (head-of-line blocking).
//
// Not safe for concurrent use; it is owned by a single session.
type Resequencer[T any] struct {
	cursor  uint64       // next sequence eligible for release
	pending map[uint64]T // early arrivals, all keyed > cursor

	// Stats
	released int64
	maxDepth int
}

// NewResequencer creates a resequencer expecting sequence 0 first.
func NewResequencer[T any]() *Resequencer[T] {
	return &Resequencer[T]{
		pending: make(map[uint64]T),
	}
}

// Accept offers the value for seq and returns everything that became
// releasable, in order. The result is empty when seq is ahead of the cursor.
//
// A seq behind the cursor, or one already waiting, means the same sequence was
// answered twice; Accept reports ErrContractViolation and changes nothing.
func (r *Resequencer[T]) Accept(seq uint64, v T) ([]Sequenced[T], error) {
	if seq < r.cursor {
		return nil, fmt.Errorf("%w: sequence %d already released (cursor %d)", ErrContractViolation, seq, r.cursor)
	}

	if seq > r.cursor {
		if _, dup := r.pending[seq]; dup {
			return nil, fmt.Errorf("%w: sequence %d already buffered", ErrContractViolation, seq)
		}
		r.pending[seq] = v
		if len(r.pending) > r.maxDepth {
			r.maxDepth = len(r.pending)
		}
		return nil, nil
	}

	out := []Sequenced[T]{{Seq: seq, Value: v}}
	r.cursor++
	for {
		next, ok := r.pending[r.cursor]
		if !ok {
			break
		}
		delete(r.pending, r.cursor)
		out = append(out, Sequenced[T]{Seq: r.cursor, Value: next})
		r.cursor++
	}
	r.released += int64(len(out))

	return out, nil
}

// Cursor returns the next sequence eligible for release.
func (r *Resequencer[T]) Cursor() uint64 {
	return r.cursor
}

// Pending returns the number of buffered early arrivals.
func (r *Resequencer[T]) Pending() int {
	return len(r.pending)
}

// Stats returns resequencer statistics.
func (r *Resequencer[T]) Stats() ResequencerStats {
	return ResequencerStats{
		Cursor:   r.cursor,
		Pending:  len(r.pending),
		MaxDepth: r.maxDepth,
		Released: r.released,
	}
}

// ResequencerStats contains resequencer statistics.
type ResequencerStats struct {
	Cursor   uint64
	Pending  int
	MaxDepth int // High-water mark of Pending
	Released int64
}
