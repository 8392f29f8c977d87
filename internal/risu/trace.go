/*
 * risu - Trace-file transport (substitutes for the live socket).
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package risu

import (
	"compress/gzip"
	"io"
	"os"
	"strings"
)

// Trace mode (spec §4.9 / "Persisted state") records the frames a
// master would otherwise send live to an apprentice, so a run can be
// replayed later without a second process. A trace is unidirectional:
// there is no apprentice to send a response byte back, so a
// TraceReadWriter's Write side is a no-op and its caller must not block
// waiting on a reply.

// OpenTraceWriter opens path for recording a trace. A ".gz" suffix
// enables gzip compression, the direct stdlib analogue of the
// original's optional zlib support.
func OpenTraceWriter(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		return &gzipWriteCloser{gzip.NewWriter(f), f}, nil
	}
	return f, nil
}

// OpenTraceReader opens path for replaying a previously recorded trace.
func OpenTraceReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &gzipReadCloser{gz, f}, nil
	}
	return f, nil
}

type gzipWriteCloser struct {
	gz *gzip.Writer
	f  *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.gz.Write(p) }

func (g *gzipWriteCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	g.gz.Close()
	return g.f.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// TraceReadWriter adapts a trace file to the io.ReadWriter shape
// Session expects, suppressing the response byte a live connection
// would otherwise carry: there is no master process to read it.
type TraceReadWriter struct {
	io.Reader
}

// Write discards its input and reports success: the replaying
// apprentice's response bytes have no master to receive them.
func (TraceReadWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
