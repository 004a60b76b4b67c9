package fractal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func classicMandelbrot(w, h int) *Parameters {
	p := NewParameters()
	p.Kind = Mandelbrot
	p.Adaptive = false
	p.Nmax = 100
	p.Escape = 4.0
	p.CenterRe = -0.5
	p.CenterIm = 0
	p.Zoom = 1.0
	p.ColorInside = 0xFF123456
	p.SetSize(w, h)
	return p
}

func TestSample_CenterIsInside(t *testing.T) {
	p := classicMandelbrot(64, 64)
	require.Equal(t, p.ColorInside, p.Sample(32, 32))
}

func TestSample_FarPointEscapes(t *testing.T) {
	p := classicMandelbrot(64, 64)

	// the corner maps to (-1.5, -1), outside the set
	c := p.Sample(0, 0)
	require.NotEqual(t, p.ColorInside, c)
	require.Equal(t, uint8(0xFF), c.A())
}

func TestSample_Deterministic(t *testing.T) {
	for _, kind := range []Kind{Mandelbrot, Julia} {
		t.Run(kind.String(), func(t *testing.T) {
			p := classicMandelbrot(48, 32)
			p.Kind = kind

			first := make([]ARGB, 48*32)
			second := make([]ARGB, 48*32)
			RenderRows(p, 0, 32, first)
			RenderRows(p.Clone(), 0, 32, second)
			require.Equal(t, first, second)

			for y := 0; y < 32; y += 7 {
				for x := 0; x < 48; x += 5 {
					require.Equal(t, first[y*48+x], p.Sample(x, y))
				}
			}
		})
	}
}

func TestRenderRows_Offset(t *testing.T) {
	p := classicMandelbrot(20, 20)
	full := make([]ARGB, 20*20)
	RenderRows(p, 0, 20, full)

	part := make([]ARGB, 20*5)
	RenderRows(p, 7, 12, part)
	require.Equal(t, full[7*20:12*20], part)
}

func TestSample_JuliaUsesConstant(t *testing.T) {
	p := classicMandelbrot(16, 16)
	p.Kind = Julia
	p.JuliaRe, p.JuliaIm = 0, 0
	p.CenterRe = 0

	// with c = 0 the filled Julia set is the unit disc
	require.Equal(t, p.ColorInside, p.Sample(8, 8))
	require.NotEqual(t, p.ColorInside, p.Sample(0, 0))
}

func TestGradient_StopsAreExact(t *testing.T) {
	gradients := map[string]Gradient{
		"default": DefaultGradient(),
		"quarters": {
			{Pos: 0, Color: 0xFF0A141E},
			{Pos: 0.25, Color: 0xFFFF8000},
			{Pos: 0.5, Color: 0xFF00FF7F},
			{Pos: 0.75, Color: 0xFF7B2D9C},
			{Pos: 1, Color: 0xFFFEFDFC},
		},
	}
	for name, g := range gradients {
		t.Run(name, func(t *testing.T) {
			for i, cs := range g {
				require.Equal(t, cs.Color, g.At(float64(cs.Pos)), "stop %d", i)
			}
		})
	}
}

func TestGradient_At(t *testing.T) {
	g := Gradient{
		{Pos: 0, Color: RGB(0, 0, 0)},
		{Pos: 1, Color: RGB(200, 100, 50)},
	}

	t.Run("midpoint interpolates", func(t *testing.T) {
		require.Equal(t, RGB(100, 50, 25), g.At(0.5))
	})

	t.Run("saturates at and above one", func(t *testing.T) {
		require.Equal(t, g[1].Color, g.At(1.0))
		require.Equal(t, g[1].Color, g.At(7.5))
	})

	t.Run("single stop", func(t *testing.T) {
		one := Gradient{{Pos: 0, Color: Red}}
		require.Equal(t, Red, one.At(0.3))
	})

	t.Run("below zero is not clamped", func(t *testing.T) {
		// extrapolates past the first stop instead of returning it
		require.NotEqual(t, g[0].Color, g.At(-0.5))
	})

	t.Run("zero width interval", func(t *testing.T) {
		hard := Gradient{
			{Pos: 0, Color: Red},
			{Pos: 0, Color: Yellow},
			{Pos: 1, Color: Black},
		}
		require.NoError(t, hard.Validate())
		require.Equal(t, Yellow, hard.At(0))
		require.Equal(t, Yellow, hard.At(-0.25))
	})

	t.Run("empty", func(t *testing.T) {
		require.Equal(t, ARGB(0), Gradient{}.At(0.5))
		require.Equal(t, ARGB(0), Gradient(nil).At(1.5))
	})
}

func TestGradient_Validate(t *testing.T) {
	require.Error(t, Gradient{}.Validate())
	require.Error(t, Gradient{{Pos: 0.5}, {Pos: 0.2}}.Validate())
	require.NoError(t, DefaultGradient().Validate())
}
