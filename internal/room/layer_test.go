package room

import (
	"bytes"
	"testing"
)

func TestNewLayerIsFullyTransparent(t *testing.T) {
	l := NewLayer(0, 4, 4)
	buf := l.Buffer()
	if len(buf) != 4*4*4 {
		t.Fatalf("buffer len = %d, want %d", len(buf), 4*4*4)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (fully transparent)", i, b)
		}
	}
}

func TestLayerWriteClipsToBounds(t *testing.T) {
	l := NewLayer(0, 4, 4)
	patch := make([]byte, 4*4*4)
	for i := range patch {
		patch[i] = 0xff
	}

	// write a 4x4 patch at (2,2): only the top-left 2x2 region overlaps.
	l.Write(patch, 2, 2, 4, 4, Change)

	if got := l.Pixel(2, 2); got != [4]byte{0xff, 0xff, 0xff, 0xff} {
		t.Fatalf("pixel(2,2) = %v, want opaque white", got)
	}
	if got := l.Pixel(0, 0); got != [4]byte{0, 0, 0, 0} {
		t.Fatalf("pixel(0,0) = %v, want untouched transparent", got)
	}
}

func TestLayerWriteNegativeOrigin(t *testing.T) {
	l := NewLayer(0, 4, 4)
	patch := make([]byte, 4*4*4)
	for i := range patch {
		patch[i] = 0x80
	}
	// origin partly off the top-left edge must not panic and must clip.
	l.Write(patch, -2, -2, 4, 4, Change)
	if got := l.Pixel(0, 0); got[3] != 0x80 {
		t.Fatalf("pixel(0,0) alpha = %d, want 0x80", got[3])
	}
}

func TestLayerOnChangeOrUpdateKind(t *testing.T) {
	l := NewLayer(0, 2, 2)
	var got []ChangeKind
	l.OnChangeOrUpdate(func(k ChangeKind) { got = append(got, k) })

	l.Write(make([]byte, 2*2*4), 0, 0, 2, 2, Change)
	l.Load(make([]byte, 2*2*4))

	if len(got) != 2 || got[0] != Change || got[1] != Update {
		t.Fatalf("listener saw %v, want [Change Update]", got)
	}
}

func TestLayerLoadRejectsMismatchedLength(t *testing.T) {
	l := NewLayer(0, 2, 2)
	var fired bool
	l.OnChangeOrUpdate(func(ChangeKind) { fired = true })

	l.Load(make([]byte, 3*3*4)) // wrong size
	if fired {
		t.Fatal("Load should not notify on a dimension mismatch")
	}
}

func TestEncodeDecodeRGBARoundTrip(t *testing.T) {
	pix := make([]byte, 3*2*4)
	for i := range pix {
		pix[i] = byte(i * 7 % 256)
	}
	enc, err := EncodeRGBA(pix, 3, 2)
	if err != nil {
		t.Fatalf("EncodeRGBA: %v", err)
	}
	dec, w, h, err := DecodeRGBA(enc)
	if err != nil {
		t.Fatalf("DecodeRGBA: %v", err)
	}
	if w != 3 || h != 2 {
		t.Fatalf("decoded dims = (%d,%d), want (3,2)", w, h)
	}
	if !bytes.Equal(dec, pix) {
		t.Fatalf("decoded pixels differ from source")
	}
}

func TestLayerEncodeSnapshotCaches(t *testing.T) {
	l := NewLayer(0, 2, 2)
	first, err := l.EncodeSnapshot()
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	second, err := l.EncodeSnapshot()
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	if &first[0] != &second[0] {
		t.Fatal("expected cached snapshot to be the same backing array")
	}

	l.Write(make([]byte, 2*2*4), 0, 0, 2, 2, Change)
	third, err := l.EncodeSnapshot()
	if err != nil {
		t.Fatalf("EncodeSnapshot after write: %v", err)
	}
	if len(third) == 0 {
		t.Fatal("expected a fresh snapshot after invalidation")
	}
}
