package stream

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("x"),
		[]byte("CREATE TABLE orders (id serial);\nINSERT INTO orders DEFAULT VALUES;\n"),
		bytes.Repeat([]byte("INSERT INTO orders VALUES (1, 'widget');\n"), 10_000),
	}
	for _, in := range inputs {
		var packed bytes.Buffer
		n, err := Pack(&packed, bytes.NewReader(in))
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}
		if n != int64(len(in)) {
			t.Fatalf("Pack consumed %d bytes, want %d", n, len(in))
		}

		var out bytes.Buffer
		m, err := Unpack(&out, &packed)
		if err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if m != int64(len(in)) {
			t.Fatalf("Unpack produced %d bytes, want %d", m, len(in))
		}
		if !bytes.Equal(out.Bytes(), in) {
			t.Fatalf("round trip mismatch for %d-byte input", len(in))
		}
	}
}

// syntheticReader yields size bytes of a repeating SQL-ish block without
// materializing them, so the test exercises streaming rather than buffering.
type syntheticReader struct {
	block []byte
	off   int
	left  int64
}

func newSyntheticReader(size int64) *syntheticReader {
	rng := rand.New(rand.NewSource(1))
	block := make([]byte, 512)
	for i := range block {
		block[i] = byte('a' + rng.Intn(26))
	}
	return &syntheticReader{block: block, left: size}
}

func (r *syntheticReader) Read(p []byte) (int, error) {
	if r.left <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.left {
		p = p[:r.left]
	}
	n := 0
	for n < len(p) {
		c := copy(p[n:], r.block[r.off:])
		r.off = (r.off + c) % len(r.block)
		n += c
	}
	r.left -= int64(n)
	return n, nil
}

// countingWriter discards output, tracking only totals.
type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// A large synthetic export must stream through without ever being held in
// memory; both directions see the full byte count.
func TestLargeExportStreams(t *testing.T) {
	const size = 64 << 20 // 64 MiB, well beyond any internal buffer

	var packed bytes.Buffer
	n, err := Pack(&packed, newSyntheticReader(size))
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if n != size {
		t.Fatalf("Pack consumed %d, want %d", n, size)
	}

	sink := &countingWriter{}
	m, err := Unpack(sink, &packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if m != size || sink.n != size {
		t.Fatalf("Unpack produced %d (sink %d), want %d", m, sink.n, size)
	}
}

func TestUnpackRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	if _, err := Unpack(&out, bytes.NewReader([]byte("not gzip data"))); err == nil {
		t.Fatal("expected error for non-gzip input")
	}
}
