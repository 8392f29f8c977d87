/*
 * risu - PowerPC64 register snapshot.
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

package ppc64

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcornwell/risu/internal/risu"
)

// Reginfo is the ppc64 register snapshot: general, floating-point and
// vector registers plus the condition, fixed-point exception, and
// floating-point status/control registers. r1 (stack pointer) and r13
// (thread pointer on the ELFv2 ABI) are excluded from comparison since
// they legitimately differ between two independently loaded processes.
type Reginfo struct {
	GPR    [numGPR]uint64
	FPR    [numFPR]uint64
	VR     [numVR][2]uint64
	CCR    uint32
	XER    uint32
	FPSCR  uint32
	VSCR   uint32
	VRSave uint32

	// PrevInsn is the instruction word immediately before the trap,
	// used by fptolerance.go to recognize the instruction family that
	// produced the value under comparison.
	PrevInsn uint32
	NIP      uint64

	ccrMask    uint32
	fpscrMask  uint32
	fpregsMask uint64
	vrregsMask uint64
	fpOpts     fpOptsMask
}

const reginfoWireSize = numGPR*8 + numFPR*8 + numVR*16 + 4*5 + 4 + 8

// excludedGPR reports whether GPR index n is excluded from comparison:
// r1 is the stack pointer, r13 the ELFv2 thread pointer, neither of
// which two independently launched processes will agree on.
func excludedGPR(n int) bool {
	return n == 1 || n == 13
}

// Equal implements risu.Reginfo, applying the configured CCR/FPSCR/
// FPR/VR masks and the PPC floating-point tolerance excuse table before
// declaring a mismatch.
func (r *Reginfo) Equal(other risu.Reginfo) bool {
	o, ok := other.(*Reginfo)
	if !ok {
		return false
	}

	for i := 0; i < numGPR; i++ {
		if excludedGPR(i) {
			continue
		}
		if r.GPR[i] != o.GPR[i] {
			return false
		}
	}

	if r.CCR&r.ccrMask != o.CCR&r.ccrMask {
		if !ccrExcused(r, o) {
			return false
		}
	}

	if r.XER != o.XER {
		return false
	}

	for i := 0; i < numFPR; i++ {
		if r.fpregsMask&(1<<uint(i)) == 0 {
			continue
		}
		if r.FPR[i] != o.FPR[i] {
			if !fprExcused(r, o, i) {
				return false
			}
		}
	}

	if r.FPSCR&r.fpscrMask != o.FPSCR&r.fpscrMask {
		if !fpscrExcused(r, o) {
			return false
		}
	}

	for i := 0; i < numVR; i++ {
		if r.vrregsMask&(1<<uint(i)) == 0 {
			continue
		}
		if r.VR[i] != o.VR[i] {
			return false
		}
	}

	return true
}

func (r *Reginfo) Bytes() []byte {
	buf := make([]byte, reginfoWireSize)
	off := 0
	for i := 0; i < numGPR; i++ {
		binary.BigEndian.PutUint64(buf[off:], r.GPR[i])
		off += 8
	}
	for i := 0; i < numFPR; i++ {
		binary.BigEndian.PutUint64(buf[off:], r.FPR[i])
		off += 8
	}
	for i := 0; i < numVR; i++ {
		binary.BigEndian.PutUint64(buf[off:], r.VR[i][0])
		off += 8
		binary.BigEndian.PutUint64(buf[off:], r.VR[i][1])
		off += 8
	}
	binary.BigEndian.PutUint32(buf[off:], r.CCR)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.XER)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.FPSCR)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.VSCR)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.VRSave)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.PrevInsn)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], r.NIP)
	off += 8
	return buf
}

func decodeReginfo(data []byte) (*Reginfo, error) {
	if len(data) != reginfoWireSize {
		return nil, &risu.Fault{Result: risu.ResBadSizeReginfo}
	}
	r := &Reginfo{}
	off := 0
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	for i := 0; i < numFPR; i++ {
		r.FPR[i] = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	for i := 0; i < numVR; i++ {
		r.VR[i][0] = binary.BigEndian.Uint64(data[off:])
		off += 8
		r.VR[i][1] = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	r.CCR = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.XER = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.FPSCR = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.VSCR = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.VRSave = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.PrevInsn = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.NIP = binary.BigEndian.Uint64(data[off:])
	return r, nil
}

func (r *Reginfo) Dump(w io.Writer) {
	for i := 0; i < numGPR; i++ {
		fmt.Fprintf(w, "r%-2d = %016x\n", i, r.GPR[i])
	}
	fmt.Fprintf(w, "ccr = %08x  xer = %08x  fpscr = %08x\n", r.CCR, r.XER, r.FPSCR)
	for i := 0; i < numFPR; i++ {
		fmt.Fprintf(w, "f%-2d = %016x\n", i, r.FPR[i])
	}
}

func (r *Reginfo) DumpMismatch(other risu.Reginfo, w io.Writer) {
	o, ok := other.(*Reginfo)
	if !ok {
		fmt.Fprintln(w, "mismatch: incompatible reginfo types")
		return
	}
	for i := 0; i < numGPR; i++ {
		if excludedGPR(i) {
			continue
		}
		if r.GPR[i] != o.GPR[i] {
			fmt.Fprintf(w, "r%-2d: apprentice=%016x master=%016x\n", i, r.GPR[i], o.GPR[i])
		}
	}
	if r.CCR&r.ccrMask != o.CCR&r.ccrMask {
		fmt.Fprintf(w, "ccr: apprentice=%08x master=%08x (mask %08x)\n", r.CCR, o.CCR, r.ccrMask)
	}
	if r.XER != o.XER {
		fmt.Fprintf(w, "xer: apprentice=%08x master=%08x\n", r.XER, o.XER)
	}
	for i := 0; i < numFPR; i++ {
		if r.FPR[i] != o.FPR[i] {
			fmt.Fprintf(w, "f%-2d: apprentice=%016x master=%016x\n", i, r.FPR[i], o.FPR[i])
		}
	}
	if r.FPSCR&r.fpscrMask != o.FPSCR&r.fpscrMask {
		fmt.Fprintf(w, "fpscr: apprentice=%08x master=%08x (mask %08x)\n", r.FPSCR, o.FPSCR, r.fpscrMask)
	}
}
