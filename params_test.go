package fractal

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParameters_Defaults(t *testing.T) {
	p := NewParameters()

	require.Equal(t, Julia, p.Kind)
	require.Equal(t, DefNmax, p.Nmax)
	require.Equal(t, DefZoom, p.Zoom)
	require.Equal(t, DefEscape, p.Escape)
	require.True(t, p.Adaptive)
	require.Equal(t, -0.46, p.JuliaRe)
	require.Equal(t, 0.58, p.JuliaIm)
	require.Equal(t, White, p.ColorInside)
	require.Len(t, p.Gradient, 7)
	require.NoError(t, p.Validate())
}

func TestParameters_Clone(t *testing.T) {
	p := NewParameters()
	p.Saved = true

	c := p.Clone()
	require.False(t, c.Saved)

	c.Gradient[0].Color = Red
	c.Zoom = 42
	require.Equal(t, White, p.Gradient[0].Color, "gradient must not be shared")
	require.Equal(t, DefZoom, p.Zoom)
}

func TestParameters_AdaptiveNmax(t *testing.T) {
	tests := []struct {
		name string
		zoom float64
		want int
	}{
		{"zoomed out stays at default", 1.0, DefNmax},
		{"shallow zoom stays at default", 0.1, DefNmax},
		{"deep zoom scales", 1e-3, 285},
		{"deeper zoom scales", 1e-6, 570},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParameters()
			p.SetZoom(tt.zoom)
			require.Equal(t, tt.want, p.Nmax)
		})
	}

	t.Run("off keeps nmax", func(t *testing.T) {
		p := NewParameters()
		p.Adaptive = false
		p.Nmax = 17
		p.SetZoom(1e-9)
		require.Equal(t, 17, p.Nmax)
	})
}

func TestParameters_Navigation(t *testing.T) {
	t.Run("zoom in and out are inverse", func(t *testing.T) {
		p := NewParameters()
		p.ZoomIn()
		require.InDelta(t, ZoomStep, p.Zoom, 1e-15)
		p.ZoomOut()
		require.InDelta(t, 1.0, p.Zoom, 1e-15)
	})

	t.Run("center on middle pixel keeps center", func(t *testing.T) {
		p := NewParameters()
		p.SetSize(200, 100)
		p.CenterOn(image.Pt(100, 50))
		require.InDelta(t, 0.0, p.CenterRe, 1e-15)
		require.InDelta(t, 0.0, p.CenterIm, 1e-15)
	})

	t.Run("pan moves opposite to drag", func(t *testing.T) {
		p := NewParameters()
		p.SetSize(100, 100)
		p.Pan(image.Pt(50, 50), image.Pt(75, 50))
		require.InDelta(t, -0.5, p.CenterRe, 1e-12)
		require.InDelta(t, 0.0, p.CenterIm, 1e-12)
	})

	t.Run("zoom box halves zoom for half-size box", func(t *testing.T) {
		p := NewParameters()
		p.SetSize(100, 100)
		p.ZoomBox(image.Pt(50, 50), image.Pt(0, 0))
		require.InDelta(t, 0.5, p.Zoom, 1e-12)
		require.InDelta(t, -0.5, p.CenterRe, 1e-12)
		require.InDelta(t, -0.5, p.CenterIm, 1e-12)
	})
}

func TestParameters_WorldMapping(t *testing.T) {
	p := NewParameters()
	p.SetSize(300, 100)

	// height spans [-1, 1], width keeps the aspect ratio
	require.InDelta(t, -3.0, p.XToWorld(0), 1e-15)
	require.InDelta(t, 3.0, p.XToWorld(300), 1e-15)
	require.InDelta(t, -1.0, p.YToWorld(0), 1e-15)
	require.InDelta(t, 1.0, p.YToWorld(100), 1e-15)
}

func TestParameters_RoundTrip(t *testing.T) {
	p := NewParameters()
	p.Kind = Mandelbrot
	p.Nmax = 321
	p.Escape = 4.0
	p.Adaptive = false
	p.Zoom = 1.25e-7
	p.CenterRe = -0.743643887037151
	p.CenterIm = 0.131825904205330
	p.JuliaRe = 0.285
	p.JuliaIm = -0.01
	p.ColorInside = 0x80123456
	p.Gradient = Gradient{
		{Pos: 0, Color: 0xFF000000},
		{Pos: 0.3333333, Color: 0x7F00FF00},
		{Pos: 1, Color: 0xFFFFFFFF},
	}

	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, 69+12*3, buf.Len())
	require.True(t, p.Saved)

	got, err := ReadParameters(&buf)
	require.NoError(t, err)
	require.False(t, got.Saved)

	// size is not part of the format
	got.Width, got.Height = p.Width, p.Height
	want := p.Clone()
	require.Equal(t, want, got)
}

func TestParameters_WireLayout(t *testing.T) {
	p := NewParameters()
	p.Gradient = Gradient{{Pos: 0.5, Color: 0xFF010203}}

	var buf bytes.Buffer
	_, err := p.WriteTo(&buf)
	require.NoError(t, err)
	b := buf.Bytes()

	require.Equal(t, []byte{0x13, 0x38, 0x00, 0x01}, b[0:4])
	require.Equal(t, uint32(Julia), binary.BigEndian.Uint32(b[4:8]))
	require.Equal(t, DefEscape, math.Float64frombits(binary.BigEndian.Uint64(b[8:16])))
	require.Equal(t, uint32(DefNmax), binary.BigEndian.Uint32(b[16:20]))
	require.Equal(t, byte(1), b[20])
	require.Equal(t, uint32(White), binary.BigEndian.Uint32(b[61:65]))
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(b[65:69]))
	require.Equal(t, uint32(0), binary.BigEndian.Uint32(b[69:73]))
	require.Equal(t, float32(0.5), math.Float32frombits(binary.BigEndian.Uint32(b[73:77])))
	require.Equal(t, uint32(0xFF010203), binary.BigEndian.Uint32(b[77:81]))
}

func TestReadParameters_Errors(t *testing.T) {
	encode := func(t *testing.T) []byte {
		t.Helper()
		var buf bytes.Buffer
		_, err := NewParameters().WriteTo(&buf)
		require.NoError(t, err)
		return buf.Bytes()
	}

	t.Run("version mismatch", func(t *testing.T) {
		b := encode(t)
		b[3] = 0x02
		_, err := ReadParameters(bytes.NewReader(b))
		require.ErrorIs(t, err, ErrVersionMismatch)
	})

	t.Run("color step too new", func(t *testing.T) {
		b := encode(t)
		binary.BigEndian.PutUint32(b[69:73], 1)
		_, err := ReadParameters(bytes.NewReader(b))
		require.ErrorIs(t, err, ErrStopVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		b := encode(t)
		_, err := ReadParameters(bytes.NewReader(b[:len(b)-2]))
		require.Error(t, err)
	})
}

func TestParameters_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.mfp")
	p := NewParameters()
	p.SetZoom(0.001)

	require.NoError(t, SaveParameters(path, p))
	got, err := LoadParameters(path)
	require.NoError(t, err)
	require.Equal(t, p.Nmax, got.Nmax)
	require.Equal(t, p.Zoom, got.Zoom)
	require.Equal(t, p.Gradient, got.Gradient)
}

func TestLookupRegion(t *testing.T) {
	r, err := LookupRegion("Seahorse-Valley")
	require.NoError(t, err)
	require.Equal(t, SeahorseValley, r)

	p := NewParameters()
	r.Apply(p)
	require.InDelta(t, -0.75, p.CenterRe, 1e-12)
	require.InDelta(t, 0.1, p.CenterIm, 1e-12)
	require.InDelta(t, 0.05, p.Zoom, 1e-12)

	_, err = LookupRegion("atlantis")
	require.Error(t, err)
}
