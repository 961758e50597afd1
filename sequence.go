package disruptor

import (
	"math"
	"strconv"
	"sync/atomic"
)

// InitialSequence is the value of every Sequence before anything has been
// claimed, published or consumed. The first valid slot is 0.
const InitialSequence int64 = -1

type (
	// SequenceReader is the read-only view of a Sequence, handed to every
	// component that observes progress it does not own (barriers, gating
	// sets, diagnostics).
	SequenceReader interface {
		Get() int64
	}

	// Sequence is a padded 64-bit progress counter. It is owned by whichever
	// component advances it (the sequencer for the producer cursor, a
	// processor for its consumer sequence) and shared by reference.
	//
	// sync/atomic operations are sequentially consistent, which subsumes the
	// acquire (Get), release (LazySet) and CAS orderings the counter needs.
	Sequence struct {
		// Optional padding to avoid false sharing with neighbouring fields
		_     [56]byte
		value atomic.Int64
		_     [56]byte
	}
)

// NewSequence returns a Sequence holding initial.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get is an acquire load: everything written before the matching
// LazySet/CompareAndSet is visible once the new value is observed.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set stores v. Only used during single-threaded initialisation, or by the
// sole owner before a release store publishes the value elsewhere.
func (s *Sequence) Set(v int64) {
	s.value.Store(v)
}

// LazySet is the release store used to publish progress: all writes made by
// the caller before LazySet (notably the payload) happen-before any load that
// observes v.
func (s *Sequence) LazySet(v int64) {
	s.value.Store(v)
}

// CompareAndSet atomically replaces expected with updated, reporting success.
func (s *Sequence) CompareAndSet(expected, updated int64) bool {
	return s.value.CompareAndSwap(expected, updated)
}

// AddAndGet atomically adds delta, returning the new value.
func (s *Sequence) AddAndGet(delta int64) int64 {
	return s.value.Add(delta)
}

func (s *Sequence) String() string {
	return strconv.FormatInt(s.Get(), 10)
}

// MinimumSequence returns the smallest value across seqs, or fallback if
// seqs is empty.
func MinimumSequence(seqs []SequenceReader, fallback int64) int64 {
	if len(seqs) == 0 {
		return fallback
	}
	minimum := int64(math.MaxInt64)
	for _, s := range seqs {
		if v := s.Get(); v < minimum {
			minimum = v
		}
	}
	return minimum
}

// minimumWith is MinimumSequence, but also bounded above by limit.
func minimumWith(seqs []SequenceReader, limit int64) int64 {
	minimum := limit
	for _, s := range seqs {
		if v := s.Get(); v < minimum {
			minimum = v
		}
	}
	return minimum
}
