package risu

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

func TestTraceWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")

	w, err := OpenTraceWriter(path)
	if err != nil {
		t.Fatalf("OpenTraceWriter: %v", err)
	}
	want := []byte("checkpoint payload")
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenTraceReader(path)
	if err != nil {
		t.Fatalf("OpenTraceReader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round-tripped trace = %q, want %q", got, want)
	}
}

func TestTraceWriterReaderGzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin.gz")

	w, err := OpenTraceWriter(path)
	if err != nil {
		t.Fatalf("OpenTraceWriter: %v", err)
	}
	want := []byte("compressed checkpoint payload")
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenTraceReader(path)
	if err != nil {
		t.Fatalf("OpenTraceReader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round-tripped gzip trace = %q, want %q", got, want)
	}
}

func TestTraceReadWriterWriteIsNoOp(t *testing.T) {
	trw := TraceReadWriter{Reader: bytes.NewReader([]byte("frame"))}

	n, err := trw.Write([]byte{respEnd, respOK})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 2 {
		t.Errorf("Write returned n = %d, want 2", n)
	}

	got, err := io.ReadAll(trw)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "frame" {
		t.Errorf("Read = %q, want %q", got, "frame")
	}
}
