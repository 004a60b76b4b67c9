package fractal

import "math"

var logTwoBaseTen = math.Log10(2.0)

// Sample colours the pixel (x, y) of the image described by p.
func (p *Parameters) Sample(x, y int) ARGB {
	return p.sample(p.XToWorld(x), p.YToWorld(y))
}

func (p *Parameters) sample(wx, wy float64) ARGB {
	var reZ, imZ, reC, imC float64

	switch p.Kind {
	case Julia:
		// z0 is the point, c is the Julia constant
		reZ, imZ = wx, wy
		reC, imC = p.JuliaRe, p.JuliaIm
	default:
		// z0 = 0, c is the point
		reC, imC = wx, wy
	}

	n := 0
	nmax := p.Nmax
	escape := p.Escape
	reZ2 := reZ * reZ
	imZ2 := imZ * imZ

	// |z|² starts at zero so at least one step always runs
	sqrAbsZ := 0.0
	for sqrAbsZ < escape && n < nmax {
		imZ = 2.0*reZ*imZ + imC
		reZ = reZ2 - imZ2 + reC

		reZ2 = reZ * reZ
		imZ2 = imZ * imZ

		sqrAbsZ = reZ2 + imZ2
		n++
	}

	if n == nmax {
		return p.ColorInside
	}

	// smooth colouring, see http://linas.org/art-gallery/escape/smooth.html
	mu := float64(n) + 1.0 - math.Log10(math.Log10(math.Sqrt(sqrAbsZ)))/logTwoBaseTen
	mu /= float64(nmax)

	return p.Gradient.At(mu)
}

// RenderRows samples the rows [start, end) into dst, row-major, starting at
// dst[0].
func RenderRows(p *Parameters, start, end int, dst []ARGB) {
	w := p.Width
	i := 0
	for y := start; y < end; y++ {
		wy := p.YToWorld(y)
		for x := range w {
			dst[i] = p.sample(p.XToWorld(x), wy)
			i++
		}
	}
}
