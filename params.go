package fractal

import (
	"fmt"
	"image"
	"math"
)

// Kind selects the iterated set.
type Kind int32

const (
	Mandelbrot Kind = 0
	Julia      Kind = 1
)

func (k Kind) String() string {
	switch k {
	case Mandelbrot:
		return "mandelbrot"
	case Julia:
		return "julia"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

const (
	DefNmax  = 100
	DefZoom  = 1.0
	ZoomStep = 0.9

	DefEscape = 32.0
	DefWidth  = 100
	DefHeight = 100
)

// Parameters is everything a sampler needs to colour a pixel.
type Parameters struct {
	Kind     Kind
	Nmax     int
	Escape   float64 // squared escape radius
	Adaptive bool

	JuliaRe, JuliaIm   float64
	CenterRe, CenterIm float64
	Zoom               float64

	Width, Height int

	ColorInside ARGB
	Gradient    Gradient

	// Saved is set after a successful WriteTo. It is never serialized and
	// never survives Clone.
	Saved bool
}

// NewParameters returns the default parameter set.
func NewParameters() *Parameters {
	p := &Parameters{
		Kind:        Julia,
		JuliaRe:     -0.46,
		JuliaIm:     0.58,
		ColorInside: White,
		Gradient:    DefaultGradient(),
		Width:       DefWidth,
		Height:      DefHeight,
	}
	p.SetDefaults()
	return p
}

// SetDefaults resets the view; colours, kind and Julia constant are kept.
func (p *Parameters) SetDefaults() {
	p.Nmax = DefNmax
	p.Zoom = DefZoom
	p.Escape = DefEscape
	p.Adaptive = true
	p.CenterRe = 0
	p.CenterIm = 0
}

// Clone returns a deep copy. Saved is not carried over.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Gradient = p.Gradient.Clone()
	c.Saved = false
	return &c
}

func (p *Parameters) Validate() error {
	if p.Kind != Mandelbrot && p.Kind != Julia {
		return fmt.Errorf("unknown fractal kind %d", int32(p.Kind))
	}
	if p.Nmax <= 0 {
		return fmt.Errorf("nmax must be positive, got %d", p.Nmax)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", p.Width, p.Height)
	}
	if err := p.Gradient.Validate(); err != nil {
		return err
	}
	return nil
}

func (p *Parameters) SetSize(w, h int) {
	p.Width, p.Height = w, h
}

func (p *Parameters) SetAdaptive(b bool) {
	p.Adaptive = b
	p.AdjustAdaptive()
}

// AdjustAdaptive derives nmax from the zoom level when adaptive mode is on.
func (p *Parameters) AdjustAdaptive() {
	if !p.Adaptive {
		return
	}
	n := int(math.Round(-math.Log10(p.Zoom) * 95))
	p.Nmax = max(n, DefNmax)
}

func (p *Parameters) SetZoom(z float64) {
	p.Zoom = z
	p.AdjustAdaptive()
}

func (p *Parameters) ZoomIn() {
	p.Zoom *= ZoomStep
	p.AdjustAdaptive()
}

func (p *Parameters) ZoomOut() {
	p.Zoom /= ZoomStep
	p.AdjustAdaptive()
}

// XToWorld maps a pixel column to the real axis. Both axes scale with the
// height so the aspect ratio is kept for any image size.
func (p *Parameters) XToWorld(x int) float64 {
	t := 2.0 * float64(x) / float64(p.Height)
	t -= float64(p.Width) / float64(p.Height)
	t *= p.Zoom
	return t + p.CenterRe
}

// YToWorld maps a pixel row to the imaginary axis.
func (p *Parameters) YToWorld(y int) float64 {
	t := 2.0*float64(y)/float64(p.Height) - 1.0
	t *= p.Zoom
	return t + p.CenterIm
}

// CenterOn moves the view center to the given pixel.
func (p *Parameters) CenterOn(pt image.Point) {
	p.CenterRe = p.XToWorld(pt.X)
	p.CenterIm = p.YToWorld(pt.Y)
}

// Pan shifts the view so that the world point under from ends up under to.
func (p *Parameters) Pan(from, to image.Point) {
	dx := p.XToWorld(to.X) - p.XToWorld(from.X)
	dy := p.YToWorld(to.Y) - p.YToWorld(from.Y)
	p.CenterRe -= dx
	p.CenterIm -= dy
}

// ZoomBox centers on the box spanned by a and b and zooms so that its longer
// side fills the view.
func (p *Parameters) ZoomBox(a, b image.Point) {
	r := image.Rectangle{Min: a, Max: b}.Canon()
	w, h := r.Dx(), r.Dy()
	if w == 0 && h == 0 {
		return
	}

	cw := p.XToWorld(p.Width) - p.XToWorld(0)
	ch := p.YToWorld(p.Height) - p.YToWorld(0)
	dw := p.XToWorld(r.Min.X+w) - p.XToWorld(r.Min.X)
	dh := p.YToWorld(r.Min.Y+h) - p.YToWorld(r.Min.Y)

	p.CenterRe = p.XToWorld(r.Min.X + w/2)
	p.CenterIm = p.YToWorld(r.Min.Y + h/2)

	if w > h {
		p.Zoom /= cw / dw
	} else {
		p.Zoom /= ch / dh
	}
	p.AdjustAdaptive()
}

func (p *Parameters) String() string {
	return fmt.Sprintf("%s %dx%d nmax=%d escape=%g adaptive=%t zoom=%g center=(%g,%g) julia=(%g,%g) inside=%s stops=%d",
		p.Kind, p.Width, p.Height, p.Nmax, p.Escape, p.Adaptive, p.Zoom,
		p.CenterRe, p.CenterIm, p.JuliaRe, p.JuliaIm, p.ColorInside, len(p.Gradient))
}
