package fractal

// average2 averages two colours per channel with truncating division. Alpha
// is taken as a signed byte, which matters only for translucent input.
func average2(a, b ARGB) ARGB {
	a1 := int32(uint32(a)&0xFF000000) >> 24
	r1 := int32(uint32(a)&0x00FF0000) >> 16
	g1 := int32(uint32(a)&0x0000FF00) >> 8
	b1 := int32(uint32(a) & 0x000000FF)

	a2 := int32(uint32(b)&0xFF000000) >> 24
	r2 := int32(uint32(b)&0x00FF0000) >> 16
	g2 := int32(uint32(b)&0x0000FF00) >> 8
	b2 := int32(uint32(b) & 0x000000FF)

	aT := (a1 + a2) / 2
	rT := (r1 + r2) / 2
	gT := (g1 + g2) / 2
	bT := (b1 + b2) / 2

	return ARGB(uint32(aT<<24) + uint32(rT<<16) + uint32(gT<<8) + uint32(bT))
}

// Downsample halves both dimensions until factor is used up, averaging 2x2
// blocks on each pass. Every pass truncates, so two passes differ from a
// single 4x4 average. factor below 2 returns px unchanged.
//
// Example: 8192x6144 with factor 4 goes 8192x6144 -> 4096x3072 -> 2048x1536.
func Downsample(px []ARGB, w, h, factor int) ([]ARGB, int, int) {
	if factor < 2 {
		return px, w, h
	}

	for factor > 1 {
		wTo, hTo := w/2, h/2
		to := make([]ARGB, wTo*hTo)

		i := 0
		for y := 0; y < h-1; y += 2 {
			for x := 0; x < w-1; x += 2 {
				c00 := px[x+y*w]
				c10 := px[x+1+y*w]
				c01 := px[x+(y+1)*w]
				c11 := px[x+1+(y+1)*w]

				to[i] = average2(average2(c00, c10), average2(c01, c11))
				i++
			}
		}

		px, w, h = to, wTo, hTo
		factor /= 2
	}
	return px, w, h
}
