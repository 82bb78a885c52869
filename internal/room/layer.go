package room

import (
	"bytes"
	"image"
	"image/png"
	"sync"
)

// ChangeKind distinguishes a locally authored edit from one replicated from
// a peer server. Only the former should be persisted.
type ChangeKind int

const (
	// Change is raised when a local user edit mutates the buffer. Triggers
	// persistence.
	Change ChangeKind = iota
	// Update is raised when an edit arrived from a peer server. No
	// persistence, but the snapshot cache must still invalidate.
	Update
)

// Layer is one RGBA pixel buffer of a Canvas, plus a lazily computed
// encoded-snapshot cache.
type Layer struct {
	mu sync.Mutex

	n      int
	width  int
	height int
	pix    []byte // len == width*height*4, RGBA

	snapshot []byte // cached encoded form of pix, nil if stale

	listeners []func(ChangeKind)
}

// NewLayer allocates a fully transparent Layer of the given dimensions.
func NewLayer(n, width, height int) *Layer {
	return &Layer{
		n:      n,
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}
}

// Index returns the Layer's 0-based position within its Canvas.
func (l *Layer) Index() int { return l.n }

// OnChangeOrUpdate registers a listener invoked after every write or Load,
// with the kind indicating whether persistence should follow.
func (l *Layer) OnChangeOrUpdate(fn func(ChangeKind)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Layer) notify(kind ChangeKind) {
	for _, fn := range l.listeners {
		fn(kind)
	}
}

// Write copies a rectangular RGBA region into the Layer buffer at (x, y),
// clipped to the Layer's bounds. kind selects whether this is an
// authoritative local edit (Change) or a replicated peer edit (Update).
//
// Per §4.5, paint is a pixel-for-pixel copy with no alpha blending: the
// patch's alpha channel is written verbatim, which is how "erase" works
// (writing zero-alpha pixels).
func (l *Layer) Write(patch []byte, x, y, patchW, patchH int, kind ChangeKind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	x0 := clampInt(x, 0, l.width)
	y0 := clampInt(y, 0, l.height)
	x1 := clampInt(x+patchW, 0, l.width)
	y1 := clampInt(y+patchH, 0, l.height)

	for row := y0; row < y1; row++ {
		srcRow := row - y
		if srcRow < 0 || srcRow >= patchH {
			continue
		}
		dstOff := (row*l.width + x0) * 4
		srcOff := (srcRow*patchW + (x0 - x)) * 4
		n := (x1 - x0) * 4
		if srcOff < 0 || srcOff+n > len(patch) || n <= 0 {
			continue
		}
		copy(l.pix[dstOff:dstOff+n], patch[srcOff:srcOff+n])
	}

	l.snapshot = nil
	l.notify(kind)
}

// Pixel returns a copy of the RGBA quad at (x, y).
func (l *Layer) Pixel(x, y int) [4]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	off := (y*l.width + x) * 4
	var out [4]byte
	copy(out[:], l.pix[off:off+4])
	return out
}

// Buffer returns a copy of the raw RGBA buffer.
func (l *Layer) Buffer() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, len(l.pix))
	copy(out, l.pix)
	return out
}

// Load overwrites the Layer's buffer wholesale, e.g. from a SnapshotStore on
// startup. Raises Update (snapshot cache invalidation, no persistence —
// persisting what we just loaded would be redundant).
func (l *Layer) Load(pix []byte) {
	l.mu.Lock()
	if len(pix) != len(l.pix) {
		l.mu.Unlock()
		return
	}
	copy(l.pix, pix)
	l.snapshot = nil
	l.mu.Unlock()
	l.notify(Update)
}

// EncodeSnapshot returns the cached encoded snapshot if present, else
// encodes the current buffer, caches, and returns it.
func (l *Layer) EncodeSnapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot != nil {
		return l.snapshot, nil
	}
	enc, err := EncodeRGBA(l.pix, l.width, l.height)
	if err != nil {
		return nil, err
	}
	l.snapshot = enc
	return enc, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeRGBA and DecodeRGBA implement the abstract "image snapshot codec"
// of §6. The concrete codec is out of scope per spec.md §1; PNG is used as
// the stdlib stand-in (see DESIGN.md for why no pack dependency covers
// this).
func EncodeRGBA(pix []byte, width, height int) ([]byte, error) {
	img := &image.RGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRGBA decodes an encoded snapshot blob, returning its raw RGBA pixels
// and dimensions.
func DecodeRGBA(enc []byte) (pix []byte, width, height int, err error) {
	img, err := png.Decode(bytes.NewReader(enc))
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	rgba, ok := img.(*image.RGBA)
	if ok && rgba.Stride == width*4 {
		return rgba.Pix, width, height, nil
	}
	// Fallback: any other concrete image.Image (e.g. paletted PNGs);
	// re-sample through the standard color model.
	pix = make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			off := (y*width + x) * 4
			pix[off] = byte(r >> 8)
			pix[off+1] = byte(g >> 8)
			pix[off+2] = byte(bl >> 8)
			pix[off+3] = byte(a >> 8)
		}
	}
	return pix, width, height, nil
}
