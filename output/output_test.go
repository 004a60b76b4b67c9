package output

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	fractal "github.com/marben/distfrac"
)

func gradientPixels(w, h int) []fractal.ARGB {
	px := make([]fractal.ARGB, w*h)
	for y := range h {
		for x := range w {
			// alpha varies to prove it is dropped
			px[y*w+x] = fractal.ARGB(uint32(x*40)<<24 | uint32(x*40)<<16 | uint32(y*60)<<8 | 0x33)
		}
	}
	return px
}

func TestWriteTIFF_Layout(t *testing.T) {
	const w, h = 3, 2
	px := gradientPixels(w, h)

	var buf bytes.Buffer
	require.NoError(t, WriteTIFF(&buf, px, w, h))
	b := buf.Bytes()

	require.Equal(t, 150, TIFFImageStart)
	require.Len(t, b, 150+w*h*3)

	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(b[off:]) }
	u16 := func(off int) uint16 { return binary.BigEndian.Uint16(b[off:]) }

	require.Equal(t, uint32(0x4D4D002A), u32(0))
	require.Equal(t, uint32(8), u32(4))
	require.Equal(t, uint16(8), u16(8))

	entries := []struct {
		tag, typ     uint16
		count, value uint32
	}{
		{0x0100, 4, 1, w},
		{0x0101, 4, 1, h},
		{0x0102, 3, 3, 110},
		{0x0106, 3, 1, 0x00020000},
		{0x0111, 4, 1, 150},
		{0x0115, 3, 1, 0x00030000},
		{0x0116, 4, 1, h},
		{0x0117, 4, 1, w * h * 3},
	}
	for i, e := range entries {
		off := 10 + i*12
		require.Equal(t, e.tag, u16(off), "entry %d tag", i)
		require.Equal(t, e.typ, u16(off+2), "entry %d type", i)
		require.Equal(t, e.count, u32(off+4), "entry %d count", i)
		require.Equal(t, e.value, u32(off+8), "entry %d value", i)
	}
	require.Equal(t, uint32(0), u32(106), "next IFD")
	require.Equal(t, []byte{0, 8, 0, 8, 0, 8, 0, 0}, b[110:118])
	require.Equal(t, make([]byte, 32), b[118:150])

	for i, c := range px {
		require.Equal(t, []byte{c.R(), c.G(), c.B()}, b[150+i*3:150+i*3+3], "pixel %d", i)
	}
}

func TestWriteTIFF_Decodes(t *testing.T) {
	const w, h = 7, 5
	px := gradientPixels(w, h)

	var buf bytes.Buffer
	require.NoError(t, WriteTIFF(&buf, px, w, h))

	img, err := tiff.Decode(&buf)
	require.NoError(t, err)
	requireSame(t, px, w, h, img)
}

func TestWriteTIFF_ShortBuffer(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteTIFF(&buf, make([]fractal.ARGB, 5), 3, 2))
}

func requireSame(t *testing.T, px []fractal.ARGB, w, h int, img image.Image) {
	t.Helper()
	require.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
	for y := range h {
		for x := range w {
			c := px[y*w+x]
			want := color.RGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xff}
			require.Equal(t, want, color.RGBAModel.Convert(img.At(x, y)), "pixel (%d,%d)", x, y)
		}
	}
}

func TestSave(t *testing.T) {
	const w, h = 6, 4
	px := gradientPixels(w, h)
	dir := t.TempDir()

	tests := []struct {
		name   string
		decode func(*os.File) (image.Image, error)
		exact  bool
	}{
		{"out.tif", func(f *os.File) (image.Image, error) { return tiff.Decode(f) }, true},
		{"out.TIFF", func(f *os.File) (image.Image, error) { return tiff.Decode(f) }, true},
		{"out.png", func(f *os.File) (image.Image, error) { return png.Decode(f) }, true},
		{"out.bmp", func(f *os.File) (image.Image, error) { return bmp.Decode(f) }, true},
		{"out.jpg", func(f *os.File) (image.Image, error) { return jpeg.Decode(f) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, Save(path, px, w, h))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			img, err := tt.decode(f)
			require.NoError(t, err)
			if tt.exact {
				requireSame(t, px, w, h, img)
			} else {
				require.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
			}
		})
	}

	require.Error(t, Save(filepath.Join(dir, "out.gif"), px, w, h))
	_, err := os.Stat(filepath.Join(dir, "out.gif"))
	require.True(t, os.IsNotExist(err), "nothing is written for unknown formats")
}
