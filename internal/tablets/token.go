package tablets

import (
	"fmt"
	"math"
)

// Token is an ordered position in a table's key space. The partitioner hashes
// every key to a Token; placement is decided purely on token order.
//
// The token space is (MinimumToken, MaximumToken]: MinimumToken itself is a
// sentinel that no key hashes to. Tokens support ordering and successor
// computation only; there is no meaningful arithmetic beyond that.
type Token int64

const (
	// MinimumToken is the lower sentinel of the token space. It is not a
	// valid key token and is not contained in any tablet's range.
	MinimumToken Token = math.MinInt64

	// MaximumToken is the largest valid token.
	MaximumToken Token = math.MaxInt64
)

// Next returns the successor of t. Must not be called on MaximumToken.
func (t Token) Next() Token {
	return t + 1
}

// zeroBased maps the token onto [0, 2^64) preserving order. Flipping the
// sign bit is a monotone bijection between int64 and uint64, so comparisons
// on the result agree with comparisons on the token.
func (t Token) zeroBased() uint64 {
	return uint64(t) ^ 1<<63
}

func tokenFromZeroBased(v uint64) Token {
	return Token(int64(v ^ 1<<63))
}

// ID identifies a tablet within the scope of a single Map, which has a scope
// of (table, topology version). Different tablets of different tables, or of
// subsequent topology versions, can share the same ID. An ID obtained from
// one Map instance must never be used with another.
type ID uint64

// tabletForToken returns the index of the tablet owning t when the token
// space is split into 2^log2 equal contiguous groups: the top log2 bits of
// the zero-based token. Order-preserving, so t1 < t2 implies
// tabletForToken(t1) <= tabletForToken(t2).
func tabletForToken(log2 uint, t Token) ID {
	return ID(t.zeroBased() >> (64 - log2))
}

// lastTokenOf returns the largest token of group id in a 2^log2 split.
func lastTokenOf(log2 uint, id ID) Token {
	return tokenFromZeroBased((uint64(id)+1)<<(64-log2) - 1)
}

// Range is a token interval, open below and closed above: (Start, End].
// Splitting the ring into such ranges at tablet boundaries yields a total
// partition with no gaps or overlaps.
type Range struct {
	Start Token // exclusive
	End   Token // inclusive
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t Token) bool {
	return t > r.Start && t <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("(%d, %d]", r.Start, r.End)
}
