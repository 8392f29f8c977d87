/*
 * risu - Shared memory block coordination (SETMEMBLOCK/GETMEMBLOCK/COMPAREMEM).
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

import "bytes"

// Memblock tracks the shared scratch region that SETMEMBLOCK/
// GETMEMBLOCK/COMPAREMEM coordinate between master and apprentice. Each
// side keeps its own base address, set independently from its own
// parameter register by SETMEMBLOCK, so GETMEMBLOCK can translate an
// image-relative offset into an absolute address that is valid in that
// process's own address space even though the two processes' mappings
// differ.
type Memblock struct {
	base    uint64
	haveBase bool
}

// SetBase records base as this process's memory block base address, as
// read from the parameter register at a SETMEMBLOCK checkpoint.
func (m *Memblock) SetBase(base uint64) {
	m.base = base
	m.haveBase = true
}

// Absolute translates an image-relative offset into this process's
// absolute memory block address. It returns an error if no SETMEMBLOCK
// has been observed yet, matching the original's treatment of
// GETMEMBLOCK-before-SETMEMBLOCK as a fatal protocol error.
func (m *Memblock) Absolute(offset uint64) (uint64, error) {
	if !m.haveBase {
		return 0, &Fault{Result: ResBadOp}
	}
	return m.base + offset, nil
}

// CompareMem reports whether the len(want) bytes of got match, and
// returns the byte offset of the first mismatch when they don't.
func CompareMem(got, want []byte) (ok bool, offset int) {
	if len(got) != len(want) {
		return false, 0
	}
	if i := bytes.Compare(got, want); i == 0 {
		return true, -1
	}
	for i := range want {
		if got[i] != want[i] {
			return false, i
		}
	}
	return true, -1
}
