// Package config loads render descriptions from YAML and node settings from
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	fractal "github.com/marben/distfrac"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultOutput = "fractal.png"
)

// RenderFile describes one render: what to draw, at which size, where to
// send the work and where to write the result.
type RenderFile struct {
	Nodes         []string `yaml:"nodes"`         // host:port or ws:// URLs; empty renders locally
	Width         int      `yaml:"width"`         // target image width
	Height        int      `yaml:"height"`        // target image height
	Supersampling int      `yaml:"supersampling"` // 1, 2, 4, 8...
	BunchRows     int      `yaml:"bunch_rows"`    // rows per bunch
	BunchGroups   int      `yaml:"bunch_groups"`  // bunches per claim, 0 asks the node
	Threads       int      `yaml:"threads"`       // local render threads, 0 = all CPUs
	Output        string   `yaml:"output"`        // image file, format by extension
	ParamsFile    string   `yaml:"params_file"`   // binary parameter file, replaces fractal
	Fractal       Fractal  `yaml:"fractal"`
}

type Fractal struct {
	Type     string  `yaml:"type"`     // mandelbrot or julia
	Preset   string  `yaml:"preset"`   // named region, sets center and zoom
	Nmax     int     `yaml:"nmax"`     // fixed iteration cap, turns adaptive off
	Escape   float64 `yaml:"escape"`   // squared escape radius
	Adaptive *bool   `yaml:"adaptive"` // derive nmax from zoom
	Zoom     float64 `yaml:"zoom"`
	Center   *Point  `yaml:"center"`
	Julia    *Point  `yaml:"julia"`
	Inside   string  `yaml:"inside"`  // hex colour of points inside the set
	Palette  string  `yaml:"palette"` // default or rainbow, ignored when gradient is set
	Gradient []Stop  `yaml:"gradient"`
}

type Point struct {
	Re float64 `yaml:"re"`
	Im float64 `yaml:"im"`
}

type Stop struct {
	Pos   float32 `yaml:"pos"`
	Color string  `yaml:"color"`
}

// LoadRenderFile reads and validates a render file. Unknown keys are errors.
func LoadRenderFile(path string) (*RenderFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read render file: %w", err)
	}
	rf, err := ParseRenderFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

func ParseRenderFile(data []byte) (*RenderFile, error) {
	var rf RenderFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse render file: %w", err)
	}
	rf.SetDefaults()
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

func (rf *RenderFile) SetDefaults() {
	if rf.Width == 0 {
		rf.Width = DefaultWidth
	}
	if rf.Height == 0 {
		rf.Height = DefaultHeight
	}
	if rf.Supersampling == 0 {
		rf.Supersampling = 1
	}
	if rf.Output == "" {
		rf.Output = DefaultOutput
	}
}

func (rf *RenderFile) Validate() error {
	if rf.Width < 1 || rf.Height < 1 {
		return fmt.Errorf("invalid size %dx%d", rf.Width, rf.Height)
	}
	if ss := rf.Supersampling; ss < 1 || ss&(ss-1) != 0 {
		return fmt.Errorf("supersampling must be a power of two, got %d", ss)
	}
	if rf.BunchRows < 0 || rf.BunchGroups < 0 || rf.Threads < 0 {
		return errors.New("bunch_rows, bunch_groups and threads must not be negative")
	}
	f := rf.Fractal
	if f.Nmax > 0 && f.Adaptive != nil && *f.Adaptive {
		return errors.New("fractal: nmax and adaptive exclude each other")
	}
	if f.Preset != "" {
		if _, err := fractal.LookupRegion(f.Preset); err != nil {
			return fmt.Errorf("fractal: %w", err)
		}
	}
	return nil
}

// Parameters builds the parameter set described by rf at the target size.
func (rf *RenderFile) Parameters() (*fractal.Parameters, error) {
	var p *fractal.Parameters
	if rf.ParamsFile != "" {
		loaded, err := fractal.LoadParameters(rf.ParamsFile)
		if err != nil {
			return nil, err
		}
		p = loaded
	} else {
		built, err := rf.Fractal.parameters()
		if err != nil {
			return nil, err
		}
		p = built
	}
	p.SetSize(rf.Width, rf.Height)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (f Fractal) parameters() (*fractal.Parameters, error) {
	p := fractal.NewParameters()

	switch strings.ToLower(f.Type) {
	case "", "mandelbrot":
		p.Kind = fractal.Mandelbrot
	case "julia":
		p.Kind = fractal.Julia
	default:
		return nil, fmt.Errorf("fractal: unknown type %q", f.Type)
	}
	if f.Julia != nil {
		p.JuliaRe, p.JuliaIm = f.Julia.Re, f.Julia.Im
	}
	if f.Escape > 0 {
		p.Escape = f.Escape
	}

	if f.Preset != "" {
		r, err := fractal.LookupRegion(f.Preset)
		if err != nil {
			return nil, err
		}
		r.Apply(p)
	}
	if f.Center != nil {
		p.CenterRe, p.CenterIm = f.Center.Re, f.Center.Im
	}
	if f.Zoom > 0 {
		p.SetZoom(f.Zoom)
	}

	switch {
	case f.Nmax > 0:
		p.Adaptive = false
		p.Nmax = f.Nmax
	case f.Adaptive != nil:
		p.SetAdaptive(*f.Adaptive)
	}

	if f.Inside != "" {
		c, err := ParseColor(f.Inside)
		if err != nil {
			return nil, fmt.Errorf("fractal inside: %w", err)
		}
		p.ColorInside = c
	}

	switch {
	case len(f.Gradient) > 0:
		g := make(fractal.Gradient, 0, len(f.Gradient))
		for i, s := range f.Gradient {
			c, err := ParseColor(s.Color)
			if err != nil {
				return nil, fmt.Errorf("fractal gradient stop %d: %w", i, err)
			}
			g = append(g, fractal.ColorStep{Pos: s.Pos, Color: c})
		}
		p.Gradient = g
	case strings.EqualFold(f.Palette, "rainbow"):
		p.Gradient = Rainbow(7)
	case f.Palette == "", strings.EqualFold(f.Palette, "default"):
	default:
		return nil, fmt.Errorf("fractal: unknown palette %q", f.Palette)
	}
	return p, nil
}

// ParseColor parses #rrggbb or #rgb, the leading # being optional.
func ParseColor(s string) (fractal.ARGB, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return 0, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return fractal.RGB(r, g, b), nil
}

// Rainbow returns n evenly spaced stops running once around the hue circle.
func Rainbow(n int) fractal.Gradient {
	n = max(n, 2)
	g := make(fractal.Gradient, n)
	for i := range n {
		t := float64(i) / float64(n-1)
		r, gr, b := colorful.Hsv(t*360, 0.8, 1.0).Clamped().RGB255()
		g[i] = fractal.ColorStep{Pos: float32(t), Color: fractal.RGB(r, gr, b)}
	}
	return g
}
