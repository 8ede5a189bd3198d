// Package bigfloat provides arbitrary precision floating point values that live
// in a stack disciplined arena.
//
// An Arena hands out Handles to slots sized for its current precision. Save
// returns a Marker and Restore releases every slot allocated after it, so
// scratch values follow the shape of the call stack:
//
//	defer a.Restore(a.Save())
//
// A Handle released by Restore, or allocated before the last InitPrecision,
// is stale. Using a stale Handle panics.
//
// An Arena is not safe for concurrent use. Give each goroutine its own.
package bigfloat

import (
	"math/big"

	"github.com/pkg/errors"
)

const (
	// MaxDecimals is the largest precision, in decimal digits, that
	// InitPrecision accepts.
	MaxDecimals = 2000

	// DefaultCapacity is the number of slots of an arena created with NewArena(0).
	DefaultCapacity = 1024

	log10of256 = 2.40823996531185 // decimal digits per mantissa byte
	intLength  = 4                // bytes reserved for the integer part
)

var (
	ErrPrecisionTooHigh = errors.New("bigfloat: requested precision exceeds limit")
	ErrArenaExhausted   = errors.New("bigfloat: arena exhausted")
	ErrNotInitialized   = errors.New("bigfloat: precision not initialized")
	ErrSyntax           = errors.New("bigfloat: invalid number")
	ErrDomain           = errors.New("bigfloat: argument out of domain")
)

type slot struct {
	f   big.Float
	gen uint32
}

// Arena is a fixed capacity vector of big.Float slots with a high-water mark.
type Arena struct {
	slots     []slot
	top       int
	highWater int
	epoch     uint32
	decimals  int
	prec      uint
}

// Marker records the allocation top of an arena at the time of Save.
type Marker struct {
	top   int
	epoch uint32
}

// Handle refers to one slot of an Arena.
type Handle struct {
	a   *Arena
	idx int
	gen uint32
}

// NewArena returns an arena with room for capacity values. The arena has no
// precision until InitPrecision is called.
func NewArena(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{slots: make([]slot, capacity)}
}

// PrecisionBits returns the mantissa length in bits used for the given number
// of decimal digits. The length is rounded up to a whole number of 32 bit
// words and carries four guard bytes.
func PrecisionBits(decimals int) uint {
	bnLength := intLength + int(float64(decimals)/log10of256) + 1
	bnLength = (bnLength + 3) &^ 3
	bfLength := bnLength + 4
	return uint(bfLength * 8)
}

// InitPrecision configures the arena for values of the given decimal
// precision. Every handle allocated before the call becomes stale.
func (a *Arena) InitPrecision(decimals int) error {
	if decimals < 1 {
		return errors.Errorf("bigfloat: invalid precision %d", decimals)
	}
	if decimals > MaxDecimals {
		return errors.Wrapf(ErrPrecisionTooHigh, "%d digits (max %d)", decimals, MaxDecimals)
	}
	for i := 0; i < a.top; i++ {
		a.slots[i].gen++
	}
	a.top = 0
	a.epoch++
	a.decimals = decimals
	a.prec = PrecisionBits(decimals)
	return nil
}

// Decimals returns the configured precision in decimal digits, or 0.
func (a *Arena) Decimals() int { return a.decimals }

// Prec returns the mantissa length of the arena's values in bits.
func (a *Arena) Prec() uint { return a.prec }

// Len returns the number of live slots.
func (a *Arena) Len() int { return a.top }

// Cap returns the slot capacity.
func (a *Arena) Cap() int { return len(a.slots) }

// HighWater returns the largest number of simultaneously live slots seen.
func (a *Arena) HighWater() int { return a.highWater }

// Save returns a marker for the current allocation top.
func (a *Arena) Save() Marker {
	return Marker{top: a.top, epoch: a.epoch}
}

// Restore releases every slot allocated after m was saved. Markers must be
// restored in the reverse order of saving.
func (a *Arena) Restore(m Marker) {
	if m.epoch != a.epoch {
		// InitPrecision already released everything.
		return
	}
	if m.top > a.top {
		panic("bigfloat: unbalanced Restore")
	}
	for i := m.top; i < a.top; i++ {
		a.slots[i].gen++
	}
	a.top = m.top
}

// Scope runs fn and releases everything fn allocated, on every exit path.
func (a *Arena) Scope(fn func() error) error {
	defer a.Restore(a.Save())
	return fn()
}

// Alloc returns a zero valued handle at the arena precision.
func (a *Arena) Alloc() (Handle, error) {
	if a.prec == 0 {
		return Handle{}, ErrNotInitialized
	}
	if a.top == len(a.slots) {
		return Handle{}, errors.Wrapf(ErrArenaExhausted, "%d slots in use", a.top)
	}
	s := &a.slots[a.top]
	s.f.SetPrec(a.prec).SetInt64(0)
	h := Handle{a: a, idx: a.top, gen: s.gen}
	a.top++
	if a.top > a.highWater {
		a.highWater = a.top
	}
	return h, nil
}

// AllocN allocates n handles. On failure nothing stays allocated.
func (a *Arena) AllocN(n int) ([]Handle, error) {
	m := a.Save()
	hs := make([]Handle, n)
	for i := range hs {
		h, err := a.Alloc()
		if err != nil {
			a.Restore(m)
			return nil, err
		}
		hs[i] = h
	}
	return hs, nil
}

// Valid reports whether h refers to a live slot.
func (h Handle) Valid() bool {
	if h.a == nil || h.idx >= h.a.top {
		return false
	}
	return h.a.slots[h.idx].gen == h.gen
}

// Arena returns the arena h was allocated from.
func (h Handle) Arena() *Arena { return h.a }

func (h Handle) float() *big.Float {
	if !h.Valid() {
		if h.a == nil {
			panic("bigfloat: use of zero Handle")
		}
		panic("bigfloat: use of handle released by Restore")
	}
	return &h.a.slots[h.idx].f
}
