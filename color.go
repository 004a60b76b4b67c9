package fractal

import (
	"fmt"
	"image/color"
)

// ARGB is a packed 32-bit colour, alpha in the top byte.
type ARGB uint32

var _ color.Color = ARGB(0)

const (
	White  ARGB = 0xFFFFFFFF
	Black  ARGB = 0xFF000000
	Red    ARGB = 0xFFFF0000
	Yellow ARGB = 0xFFFFFF00
)

func (c ARGB) A() uint8 { return uint8(c >> 24) }
func (c ARGB) R() uint8 { return uint8(c >> 16) }
func (c ARGB) G() uint8 { return uint8(c >> 8) }
func (c ARGB) B() uint8 { return uint8(c) }

// RGBA implements color.Color. The channels are treated as non-premultiplied.
func (c ARGB) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: c.A()}.RGBA()
}

func (c ARGB) String() string {
	return fmt.Sprintf("#%08x", uint32(c))
}

// RGB packs an opaque colour.
func RGB(r, g, b uint8) ARGB {
	return 0xFF000000 | ARGB(r)<<16 | ARGB(g)<<8 | ARGB(b)
}

// ColorStep is one stop of a gradient.
type ColorStep struct {
	Pos   float32
	Color ARGB
}

func (cs ColorStep) String() string {
	return fmt.Sprintf("CS[%g, %s]", cs.Pos, cs.Color)
}

// Gradient is an ordered list of colour stops. The first stop is expected at
// 0 and the last at 1, positions ascending.
type Gradient []ColorStep

// DefaultGradient returns a fresh copy of the stock gradient.
func DefaultGradient() Gradient {
	return Gradient{
		{Pos: 0.0, Color: White},
		{Pos: 0.16040957, Color: Black},
		{Pos: 0.221843, Color: White},
		{Pos: 0.28156996, Color: Yellow},
		{Pos: 0.34300342, Color: Red},
		{Pos: 0.44709897, Color: Black},
		{Pos: 1.0, Color: White},
	}
}

// Clone returns a copy that shares nothing with g.
func (g Gradient) Clone() Gradient {
	if g == nil {
		return nil
	}
	out := make(Gradient, len(g))
	copy(out, g)
	return out
}

// Validate checks that g is usable by the sampler.
func (g Gradient) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("gradient: no stops")
	}
	for i := 1; i < len(g); i++ {
		if g[i].Pos < g[i-1].Pos {
			return fmt.Errorf("gradient: stop %d at %g is before stop %d at %g", i, g[i].Pos, i-1, g[i-1].Pos)
		}
	}
	return nil
}

// At maps an escape fraction to a colour. mu >= 1 saturates to the last stop;
// negative values are not clamped and extrapolate from the first interval.
// An empty gradient yields 0.
func (g Gradient) At(mu float64) ARGB {
	last := len(g) - 1
	switch {
	case last < 0:
		return 0
	case mu >= 1.0 || last == 0:
		return g[last].Color
	}

	// first i with mu <= pos[i], then step back to the interval start
	i := 1
	for i < len(g) && mu > float64(g[i].Pos) {
		i++
	}
	i--
	if i >= last {
		i = last - 1
	}

	// positions are float32, so is the span
	span := float64(g[i+1].Pos - g[i].Pos)
	if span == 0 {
		return g[i+1].Color
	}
	t := (mu - float64(g[i].Pos)) / span

	c1, c2 := g[i].Color, g[i+1].Color
	r := int32(float64(c1.R())*(1.0-t)) + int32(float64(c2.R())*t)
	gr := int32(float64(c1.G())*(1.0-t)) + int32(float64(c2.G())*t)
	b := int32(float64(c1.B())*(1.0-t)) + int32(float64(c2.B())*t)

	// wraps like 32-bit ints when extrapolating below zero
	return ARGB(uint32(0xFF000000) + uint32(r<<16) + uint32(gr<<8) + uint32(b))
}
