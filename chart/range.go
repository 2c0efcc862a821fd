package chart

import (
	"fmt"
)

// Range is an inclusive span [Start, End] of source word positions. It
// identifies a chart cell
type Range struct {
	Start int
	End   int
}

// NewRange creates the range [start, end]
func NewRange(start, end int) Range {
	assert(start >= 0 && start <= end, "NewRange: invalid range")
	return Range{Start: start, End: end}
}

// Width returns the number of words covered by r
func (r Range) Width() int {
	return r.End - r.Start + 1
}

// Less orders ranges by start then end
func (r Range) Less(o Range) bool {
	if r.Start != o.Start {
		return r.Start < o.Start
	}
	return r.End < o.End
}

// StrictlyContains returns true if o is inside r and narrower than r
func (r Range) StrictlyContains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End && o.Width() < r.Width()
}

func (r Range) String() string {
	return fmt.Sprintf("[%d..%d]", r.Start, r.End)
}
