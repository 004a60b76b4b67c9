package fractal

// Renderer fills dst with the rows [start, end) of the image described by p.
// dst is row-major and must hold at least (end-start)*p.Width pixels.
type Renderer interface {
	RenderRows(p *Parameters, start, end int, dst []ARGB)
}

// Sampler is the escape-time Renderer used by local pools and nodes.
type Sampler struct{}

var _ Renderer = Sampler{}

func (Sampler) RenderRows(p *Parameters, start, end int, dst []ARGB) {
	RenderRows(p, start, end, dst)
}
