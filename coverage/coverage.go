// Package coverage aggregates aligned intervals over a genomic window into a
// fixed number of depth bins.
//
// A window [start, end) of width W split into n bins has real-valued bin
// boundaries: bin i covers [start + i*W/n, start + (i+1)*W/n).  Each added
// span is clipped to the window and increments every bin its clipped range
// intersects, by one (or by its weight), regardless of how much of the bin
// it covers.  Spans entirely outside the window are ignored.  The sum of all
// bins therefore counts bin touches, not spans.
package coverage

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// DefaultBins is the display bin count used when none is requested.
const DefaultBins = 500

// Span is the reference interval covered by one aligned read.
type Span struct {
	// Start and End are 0-based, half-open.
	Start, End int
	// Reverse is set for reads aligned to the minus strand.
	Reverse bool
}

// Profile is the binned per-strand depth over one window.
type Profile struct {
	// Source names the alignment source the profile was computed from.
	Source string
	RefID  string
	// Start and End delimit the window, 0-based half-open.
	Start, End int
	// BinWidth is (End-Start)/NumBins, possibly fractional.
	BinWidth float64
	// Plus and Minus hold per-bin depths for forward and reverse reads.
	Plus, Minus []int
}

// NumBins returns the number of bins.
func (p *Profile) NumBins() int { return len(p.Plus) }

// Depth returns the combined depth of bin i.
func (p *Profile) Depth(i int) int { return p.Plus[i] + p.Minus[i] }

// Depths returns the combined depth of every bin.
func (p *Profile) Depths() []int {
	d := make([]int, len(p.Plus))
	for i := range d {
		d[i] = p.Plus[i] + p.Minus[i]
	}
	return d
}

// Total returns the sum of all bins on both strands.
func (p *Profile) Total() int {
	var t int
	for i := range p.Plus {
		t += p.Plus[i] + p.Minus[i]
	}
	return t
}

// Max returns the largest combined bin depth.
func (p *Profile) Max() int {
	var m int
	for i := range p.Plus {
		if d := p.Plus[i] + p.Minus[i]; d > m {
			m = d
		}
	}
	return m
}

// BinStart returns the first base of bin i, rounded down.  BinStart(NumBins())
// is End.
func (p *Profile) BinStart(i int) int {
	n := len(p.Plus)
	return p.Start + i*(p.End-p.Start)/n
}

// BinCenter returns the real-valued midpoint of bin i.
func (p *Profile) BinCenter(i int) float64 {
	return float64(p.Start) + (float64(i)+0.5)*p.BinWidth
}

// Normalized returns per-bin depths divided by the bin width.
func (p *Profile) Normalized() (plus, minus []float64) {
	plus = make([]float64, len(p.Plus))
	minus = make([]float64, len(p.Minus))
	for i := range p.Plus {
		plus[i] = float64(p.Plus[i]) / p.BinWidth
		minus[i] = float64(p.Minus[i]) / p.BinWidth
	}
	return
}

// Binner accumulates spans into a Profile.
type Binner struct {
	p Profile
	// n is the bin count and w the window width; bin boundaries are
	// computed as exact integer fractions of these.
	n, w int
}

// NewBinner creates a Binner over [start, end) of refid.  nBins larger than
// the window width is reduced to it, so no bin is narrower than one base.
// nBins <= 0 and empty windows are errors of kind errors.Invalid.
func NewBinner(refid string, start, end, nBins int) (*Binner, error) {
	if start < 0 || start >= end {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage: invalid window %s:%d-%d", refid, start, end))
	}
	if nBins <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage: bin count must be positive, got %d", nBins))
	}
	w := end - start
	if nBins > w {
		nBins = w
	}
	return &Binner{
		p: Profile{
			RefID:    refid,
			Start:    start,
			End:      end,
			BinWidth: float64(w) / float64(nBins),
			Plus:     make([]int, nBins),
			Minus:    make([]int, nBins),
		},
		n: nBins,
		w: w,
	}, nil
}

// Add counts one span.  It returns the number of bins incremented.
func (b *Binner) Add(s Span) int {
	return b.AddWeighted(s, 1)
}

// AddWeighted adds weight to every bin s touches.  It is used for
// pre-aggregated inputs such as coverage BED files, where one line stands
// for several reads.  It returns the number of bins incremented.
func (b *Binner) AddWeighted(s Span, weight int) int {
	lo, hi := s.Start-b.p.Start, s.End-b.p.Start
	if lo < 0 {
		lo = 0
	}
	if hi > b.w {
		hi = b.w
	}
	if lo >= hi {
		return 0
	}
	// Bin i intersects [lo, hi) iff i*w/n < hi and (i+1)*w/n > lo.
	first := lo * b.n / b.w
	last := (hi*b.n+b.w-1)/b.w - 1
	bins := b.p.Plus
	if s.Reverse {
		bins = b.p.Minus
	}
	for i := first; i <= last; i++ {
		bins[i] += weight
	}
	return last - first + 1
}

// Profile returns the accumulated profile.  The Binner must not be used
// afterwards.
func (b *Binner) Profile() *Profile {
	return &b.p
}
