package room

import "errors"

var errLayerOutOfRange = errors.New("room: layer index out of range")

// Canvas is an ordered collection of Layers sharing fixed dimensions.
type Canvas struct {
	Width      int
	Height     int
	layerCount int
	layers     []*Layer
}

// NewCanvas constructs a Canvas with layerCount fully transparent Layers.
func NewCanvas(width, height, layerCount int) *Canvas {
	c := &Canvas{
		Width:      width,
		Height:     height,
		layerCount: layerCount,
		layers:     make([]*Layer, layerCount),
	}
	for i := 0; i < layerCount; i++ {
		c.layers[i] = NewLayer(i, width, height)
	}
	return c
}

// LayerCount returns the fixed number of Layers.
func (c *Canvas) LayerCount() int { return c.layerCount }

// Layer returns the Layer at index n, or nil if out of range.
func (c *Canvas) Layer(n int) *Layer {
	if n < 0 || n >= c.layerCount {
		return nil
	}
	return c.layers[n]
}

// EncodeLayer returns the encoded snapshot of Layer n. Satisfies
// internal/snapshot.Source without that package importing this one.
func (c *Canvas) EncodeLayer(n int) ([]byte, error) {
	layer := c.Layer(n)
	if layer == nil {
		return nil, errLayerOutOfRange
	}
	return layer.EncodeSnapshot()
}

// Flatten alpha-composites every Layer in index order onto an opaque white
// background, per §4.2's compositing rule:
//
//	dst = round((255-a)/255 * dst + a/255 * src)
//
// computed in fixed point as round(((255-a)*dst + a*src) / 255), nearest
// integer, ties away from zero. The output alpha channel is discarded
// (implicitly 255). Flatten allocates a fresh buffer and never mutates
// Layers.
func (c *Canvas) Flatten() []byte {
	out := make([]byte, c.Width*c.Height*4)
	for i := range out {
		out[i] = 255
	}

	for _, l := range c.layers {
		pix := l.Buffer()
		for px := 0; px < c.Width*c.Height; px++ {
			off := px * 4
			a := int(pix[off+3])
			if a == 0 {
				continue
			}
			for ch := 0; ch < 3; ch++ {
				dst := int(out[off+ch])
				src := int(pix[off+ch])
				out[off+ch] = byte(roundDiv255((255-a)*dst + a*src))
			}
		}
	}
	return out
}

// roundDiv255 divides v by 255 rounding to the nearest integer. v is always
// non-negative here since both src and dst channels and alpha are in
// [0, 255]. 255 is odd, so v/255 never lands on an exact half-integer and
// floor((v+127)/255) is an exact round-to-nearest.
func roundDiv255(v int) int {
	return (v + 127) / 255
}
