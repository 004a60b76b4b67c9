package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	fractal "github.com/marben/distfrac"
)

// Layout of the uncompressed, single-strip RGB TIFF written by WriteTIFF.
const (
	tiffHeaderSize = 8
	tiffEntries    = 8
	tiffIFDSize    = 2 + tiffEntries*12 + 4

	// BitsPerSample holds three SHORTs and does not fit its entry.
	tiffBitsOffset = tiffHeaderSize + tiffIFDSize

	// TIFFImageStart is the offset of the first pixel byte.
	TIFFImageStart = tiffBitsOffset + 8 + 32
)

// TIFF field types.
const (
	tiffShort = 3
	tiffLong  = 4
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32
}

func tiffHeader(w, h int) []byte {
	b := make([]byte, 0, TIFFImageStart)
	b = binary.BigEndian.AppendUint32(b, 0x4D4D002A)
	b = binary.BigEndian.AppendUint32(b, tiffHeaderSize)

	b = binary.BigEndian.AppendUint16(b, tiffEntries)
	for _, e := range []ifdEntry{
		{0x0100, tiffLong, 1, uint32(w)},                 // ImageWidth
		{0x0101, tiffLong, 1, uint32(h)},                 // ImageLength
		{0x0102, tiffShort, 3, tiffBitsOffset},           // BitsPerSample
		{0x0106, tiffShort, 1, 2 << 16},                  // PhotometricInterpretation: RGB
		{0x0111, tiffLong, 1, TIFFImageStart},            // StripOffsets
		{0x0115, tiffShort, 1, 3 << 16},                  // SamplesPerPixel
		{0x0116, tiffLong, 1, uint32(h)},                 // RowsPerStrip
		{0x0117, tiffLong, 1, uint32(w) * uint32(h) * 3}, // StripByteCounts
	} {
		b = binary.BigEndian.AppendUint16(b, e.tag)
		b = binary.BigEndian.AppendUint16(b, e.typ)
		b = binary.BigEndian.AppendUint32(b, e.count)
		b = binary.BigEndian.AppendUint32(b, e.value)
	}
	b = binary.BigEndian.AppendUint32(b, 0) // no next IFD

	// BitsPerSample values: 8, 8, 8
	b = binary.BigEndian.AppendUint32(b, 0x00080008)
	b = binary.BigEndian.AppendUint32(b, 0x00080000)

	return append(b, make([]byte, 32)...)
}

// WriteTIFF writes px (w*h pixels, row-major) as an uncompressed RGB TIFF.
// Alpha is dropped.
func WriteTIFF(dst io.Writer, px []fractal.ARGB, w, h int) error {
	if len(px) < w*h {
		return fmt.Errorf("tiff: %d pixels for a %dx%d image", len(px), w, h)
	}

	bw := bufio.NewWriterSize(dst, 64<<10)
	if _, err := bw.Write(tiffHeader(w, h)); err != nil {
		return err
	}
	for _, c := range px[:w*h] {
		if _, err := bw.Write([]byte{c.R(), c.G(), c.B()}); err != nil {
			return err
		}
	}
	return bw.Flush()
}
