package fractal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func filled(n int, c ARGB) []ARGB {
	px := make([]ARGB, n)
	for i := range px {
		px[i] = c
	}
	return px
}

func TestDownsample_UniformStaysUniform(t *testing.T) {
	const c ARGB = 0xFF3A7BC1
	out, w, h := Downsample(filled(8*8, c), 8, 8, 4)

	require.Equal(t, 2, w)
	require.Equal(t, 2, h)
	require.Equal(t, []ARGB{c, c, c, c}, out)
}

func TestDownsample_FactorBelowTwo(t *testing.T) {
	px := []ARGB{1, 2, 3, 4}
	out, w, h := Downsample(px, 2, 2, 1)
	require.Equal(t, px, out)
	require.Equal(t, 2, w)
	require.Equal(t, 2, h)
}

func TestDownsample_Truncates(t *testing.T) {
	px := []ARGB{
		RGB(0, 0, 0), RGB(1, 1, 1),
		RGB(1, 1, 1), RGB(1, 1, 1),
	}
	out, _, _ := Downsample(px, 2, 2, 2)

	// (0+1)/2 = 0, (1+1)/2 = 1, (0+1)/2 = 0
	require.Equal(t, []ARGB{RGB(0, 0, 0)}, out)
}

func TestDownsample_TwoPassesDifferFromOne(t *testing.T) {
	// uniform 2x2 quadrants with red 1, 0 / 1, 2
	quad := [2][2]uint8{{1, 0}, {1, 2}}
	px := make([]ARGB, 16)
	for y := range 4 {
		for x := range 4 {
			px[y*4+x] = RGB(quad[y/2][x/2], 0, 0)
		}
	}

	out, w, h := Downsample(px, 4, 4, 4)
	require.Equal(t, 1, w)
	require.Equal(t, 1, h)

	// avg(avg(1,0), avg(1,2)) = avg(0, 1) = 0, while the plain mean is 1
	require.Equal(t, RGB(0, 0, 0), out[0])
}

func TestDownsample_OddSize(t *testing.T) {
	out, w, h := Downsample(filled(5*3, White), 5, 3, 2)
	require.Equal(t, 2, w)
	require.Equal(t, 1, h)
	require.Equal(t, []ARGB{White, White}, out)
}

func TestAverage2_Alpha(t *testing.T) {
	require.Equal(t, ARGB(0xFF000000), average2(0xFF000000, 0xFF000000))
	require.Equal(t, ARGB(0x00000000), average2(0xFF000000, 0x00000000))
	require.Equal(t, ARGB(0x40000000), average2(0x40000000, 0x40000000))
}

func TestJob(t *testing.T) {
	p := classicMandelbrot(10, 6)

	t.Run("supersampled size and resize back", func(t *testing.T) {
		j := NewJob(p, 4, 3)
		require.Equal(t, 40, j.Width())
		require.Equal(t, 24, j.Height())
		require.Len(t, j.Pixels, 40*24)
		require.Equal(t, 10, p.Width, "caller parameters untouched")

		j.ResizeBack()
		require.Equal(t, 10, j.Width())
		require.Equal(t, 6, j.Height())
		require.Len(t, j.Pixels, 60)
	})

	t.Run("cropped buffer", func(t *testing.T) {
		j := NewCroppedJob(p, 2)
		require.True(t, j.Cropped())
		require.Len(t, j.Pixels, 20)
		require.Len(t, j.Rows(3, 5), 20)
	})

	t.Run("rows of full buffer", func(t *testing.T) {
		j := NewJob(p, 1, 0)
		j.Pixels[30] = Red
		require.Equal(t, Red, j.Rows(3, 4)[0])
	})

	t.Run("cancel", func(t *testing.T) {
		j := NewJob(p, 1, 0)
		require.False(t, j.IsCanceled())
		j.Cancel()
		require.True(t, j.IsCanceled())
	})
}

func TestStamps(t *testing.T) {
	var src StampSource
	var tr StampTracker

	a, b := src.Next(), src.Next()
	require.Less(t, a, b)

	require.True(t, tr.Accept(b))
	require.False(t, tr.Accept(a), "stale result must be dropped")
	require.True(t, tr.Accept(b))
	require.Equal(t, b, tr.Latest())
}

func TestChecksum(t *testing.T) {
	a := filled(5000, Red)
	b := filled(5000, Red)
	require.Equal(t, Checksum(a), Checksum(b))

	b[4999] = White
	require.NotEqual(t, Checksum(a), Checksum(b))
}
