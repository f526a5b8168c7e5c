// Copyright 2025 Certen Protocol
//
// Indexing Strategy
//
// Bounds how far one poll may move the indexed range: append at most
// MaxHeadBlocks beyond the current tip, never into the confirmation margin
// below the chain head, and prepend at most MaxBackPropagationBlocks towards
// genesis.

package indexer

// Strategy bounds one poll's work.
type Strategy struct {
	MaxHeadBlocks            uint64 `yaml:"max_head_blocks"`
	MaxBackPropagationBlocks uint64 `yaml:"max_back_propagation_blocks"`
	Confirmations            uint64 `yaml:"confirmations"`
}

// DefaultStrategy is a conservative production default.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxHeadBlocks:            100,
		MaxBackPropagationBlocks: 1000,
		Confirmations:            6,
	}
}

// Range is an inclusive block range; Empty when From > To.
type Range struct {
	From uint64
	To   uint64
}

// Empty reports whether the range holds no blocks.
func (r Range) Empty() bool {
	return r.From > r.To
}

// Len returns the number of blocks in the range.
func (r Range) Len() uint64 {
	if r.Empty() {
		return 0
	}
	return r.To - r.From + 1
}

// AppendPrependRanges is one poll's planned work relative to the currently
// indexed [first, last] range.
type AppendPrependRanges struct {
	Prepend  Range
	Append   Range
	NewFirst uint64
	NewLast  uint64
}

// emptyRange is a canonical empty range.
var emptyRange = Range{From: 1, To: 0}

// Plan computes the append/prepend ranges for one poll given the indexed
// range and the chain head.
func (s Strategy) Plan(first, last, latest uint64) AppendPrependRanges {
	plan := AppendPrependRanges{
		Prepend:  emptyRange,
		Append:   emptyRange,
		NewFirst: first,
		NewLast:  last,
	}

	// Append up to the confirmation-safe head, bounded per poll.
	if latest >= s.Confirmations {
		safeHead := latest - s.Confirmations
		appendTo := safeHead
		if max := last + s.MaxHeadBlocks; appendTo > max {
			appendTo = max
		}
		if appendTo > last {
			plan.Append = Range{From: last + 1, To: appendTo}
			plan.NewLast = appendTo
		}
	}

	// Prepend in bounded batches down to block 0.
	if first > 0 {
		back := s.MaxBackPropagationBlocks
		if back > first {
			back = first
		}
		if back > 0 {
			plan.Prepend = Range{From: first - back, To: first - 1}
			plan.NewFirst = first - back
		}
	}
	return plan
}
