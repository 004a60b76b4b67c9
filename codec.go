package fractal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ParamsVersion leads every serialized parameter set.
// Bump it on any change of the layout below.
const ParamsVersion int32 = 0x13380001

// ColorStepVersion is the newest colour stop layout this build understands.
const ColorStepVersion int32 = 0

const maxStops = 1 << 16

var (
	ErrVersionMismatch = errors.New("parameters: header mismatch")
	ErrStopVersion     = errors.New("parameters: color step version too new")
)

// paramsHeader is the fixed-size prefix of the wire format, big-endian.
type paramsHeader struct {
	Version  int32
	Kind     int32
	Escape   float64
	Nmax     int32
	Adaptive bool
	Zoom     float64
	CenterRe float64
	CenterIm float64
	JuliaRe  float64
	JuliaIm  float64
	Inside   uint32
	Stops    int32
}

type stopRecord struct {
	Version int32
	Pos     float32
	Color   uint32
}

var _ io.WriterTo = (*Parameters)(nil)

// WriteTo serializes p. Width and height are not part of the format. On
// success p is marked as saved.
func (p *Parameters) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	h := paramsHeader{
		Version:  ParamsVersion,
		Kind:     int32(p.Kind),
		Escape:   p.Escape,
		Nmax:     int32(p.Nmax),
		Adaptive: p.Adaptive,
		Zoom:     p.Zoom,
		CenterRe: p.CenterRe,
		CenterIm: p.CenterIm,
		JuliaRe:  p.JuliaRe,
		JuliaIm:  p.JuliaIm,
		Inside:   uint32(p.ColorInside),
		Stops:    int32(len(p.Gradient)),
	}
	if err := binary.Write(&buf, binary.BigEndian, &h); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	for _, cs := range p.Gradient {
		rec := stopRecord{Version: ColorStepVersion, Pos: cs.Pos, Color: uint32(cs.Color)}
		if err := binary.Write(&buf, binary.BigEndian, &rec); err != nil {
			return 0, fmt.Errorf("encode color step: %w", err)
		}
	}

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), err
	}
	p.Saved = true
	return int64(n), nil
}

// ReadParameters decodes a parameter set written by WriteTo. The returned
// parameters keep the default size.
func ReadParameters(r io.Reader) (*Parameters, error) {
	var h paramsHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	if h.Version != ParamsVersion {
		return nil, fmt.Errorf("%w: got %#x, want %#x", ErrVersionMismatch, uint32(h.Version), uint32(ParamsVersion))
	}
	if h.Stops < 0 || h.Stops > maxStops {
		return nil, fmt.Errorf("read parameters: invalid stop count %d", h.Stops)
	}

	p := &Parameters{
		Kind:        Kind(h.Kind),
		Escape:      h.Escape,
		Nmax:        int(h.Nmax),
		Adaptive:    h.Adaptive,
		Zoom:        h.Zoom,
		CenterRe:    h.CenterRe,
		CenterIm:    h.CenterIm,
		JuliaRe:     h.JuliaRe,
		JuliaIm:     h.JuliaIm,
		ColorInside: ARGB(h.Inside),
		Gradient:    make(Gradient, 0, h.Stops),
		Width:       DefWidth,
		Height:      DefHeight,
	}
	for i := int32(0); i < h.Stops; i++ {
		var rec stopRecord
		if err := binary.Read(r, binary.BigEndian, &rec); err != nil {
			return nil, fmt.Errorf("read color step %d: %w", i, err)
		}
		if rec.Version > ColorStepVersion {
			return nil, fmt.Errorf("%w: step %d has version %d", ErrStopVersion, i, rec.Version)
		}
		p.Gradient = append(p.Gradient, ColorStep{Pos: rec.Pos, Color: ARGB(rec.Color)})
	}
	return p, nil
}

// LoadParameters reads a parameter file.
func LoadParameters(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ReadParameters(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// SaveParameters writes p to path, replacing any existing file.
func SaveParameters(path string, p *Parameters) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := p.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
