/*
 * risu - AArch64 register snapshot.
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

package aarch64

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcornwell/risu/internal/risu"
)

// Reginfo is the aarch64 register snapshot: x0-x30, the 128-bit Neon
// view of v0-v31, PSTATE, FPSR, FPCR and PC. No SVE register state is
// captured or compared, whatever VectorLen holds.
type Reginfo struct {
	GPR  [numGPR]uint64
	FPHi [numFP]uint64
	FPLo [numFP]uint64

	PState uint32
	FPSR   uint32
	FPCR   uint32
	PC     uint64

	// VectorLen is the SVE vector length in bytes set via
	// --sve-vector-length, or 0 if unset. It is not part of the wire
	// encoding and does not affect Equal.
	VectorLen int
}

func reginfoWireSize(vectorLen int) int {
	return numGPR*8 + numFP*16 + 4*3 + 8
}

func (r *Reginfo) Equal(other risu.Reginfo) bool {
	o, ok := other.(*Reginfo)
	if !ok {
		return false
	}
	if r.GPR != o.GPR {
		return false
	}
	if r.FPHi != o.FPHi || r.FPLo != o.FPLo {
		return false
	}
	// Only the comparison-relevant NZCV flags of PSTATE are compared;
	// the rest (interrupt mask bits, exception level) is
	// execution-environment state that differs between two
	// independently launched processes.
	const nzcvMask = 0xf0000000
	if r.PState&nzcvMask != o.PState&nzcvMask {
		return false
	}
	if r.FPSR != o.FPSR {
		return false
	}
	return true
}

func (r *Reginfo) Bytes() []byte {
	buf := make([]byte, reginfoWireSize(r.VectorLen))
	off := 0
	for i := 0; i < numGPR; i++ {
		binary.LittleEndian.PutUint64(buf[off:], r.GPR[i])
		off += 8
	}
	for i := 0; i < numFP; i++ {
		binary.LittleEndian.PutUint64(buf[off:], r.FPHi[i])
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], r.FPLo[i])
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:], r.PState)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.FPSR)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.FPCR)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], r.PC)
	return buf
}

func decodeReginfo(data []byte, vectorLen int) (*Reginfo, error) {
	if len(data) != reginfoWireSize(vectorLen) {
		return nil, &risu.Fault{Result: risu.ResBadSizeReginfo}
	}
	r := &Reginfo{VectorLen: vectorLen}
	off := 0
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	for i := 0; i < numFP; i++ {
		r.FPHi[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
		r.FPLo[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	r.PState = binary.LittleEndian.Uint32(data[off:])
	off += 4
	r.FPSR = binary.LittleEndian.Uint32(data[off:])
	off += 4
	r.FPCR = binary.LittleEndian.Uint32(data[off:])
	off += 4
	r.PC = binary.LittleEndian.Uint64(data[off:])
	return r, nil
}

func (r *Reginfo) Dump(w io.Writer) {
	for i := 0; i < numGPR; i++ {
		fmt.Fprintf(w, "x%-2d = %016x\n", i, r.GPR[i])
	}
	fmt.Fprintf(w, "pstate = %08x  fpsr = %08x  fpcr = %08x\n", r.PState, r.FPSR, r.FPCR)
}

func (r *Reginfo) DumpMismatch(other risu.Reginfo, w io.Writer) {
	o, ok := other.(*Reginfo)
	if !ok {
		fmt.Fprintln(w, "mismatch: incompatible reginfo types")
		return
	}
	for i := 0; i < numGPR; i++ {
		if r.GPR[i] != o.GPR[i] {
			fmt.Fprintf(w, "x%-2d: apprentice=%016x master=%016x\n", i, r.GPR[i], o.GPR[i])
		}
	}
	for i := 0; i < numFP; i++ {
		if r.FPHi[i] != o.FPHi[i] || r.FPLo[i] != o.FPLo[i] {
			fmt.Fprintf(w, "v%-2d: apprentice=%016x%016x master=%016x%016x\n",
				i, r.FPHi[i], r.FPLo[i], o.FPHi[i], o.FPLo[i])
		}
	}
	if r.PState != o.PState {
		fmt.Fprintf(w, "pstate: apprentice=%08x master=%08x\n", r.PState, o.PState)
	}
}
