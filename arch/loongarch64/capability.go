/*
 * risu - LoongArch64 capability.
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

// Package loongarch64 implements the risu.Capability for LoongArch64.
package loongarch64

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/risu"
)

func init() {
	arch.Register("loongarch64", New)
}

// risuKey is carried in a break (BRK) instruction's 15-bit code field,
// with the RisuOp in the low 4 bits of that field.
const risuKey = 0x000001f0

const numGPR = 32

// Capability implements risu.Capability for loongarch64.
type Capability struct{}

func New() risu.Capability { return &Capability{} }

func (c *Capability) Name() string    { return "loongarch64" }
func (c *Capability) BigEndian() bool { return false }
func (c *Capability) ReginfoSize() int { return reginfoWireSize }

func (c *Capability) ReginfoInit(ctx risu.RawContext) risu.Reginfo {
	r := &Reginfo{}
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = ctx.GPR(i)
	}
	for i := 0; i < numGPR; i++ {
		r.FPR[i] = ctx.FPR(i)
	}
	r.FCC = ctx.Extra("fcc")
	r.FCSR = uint32(ctx.Extra("fcsr"))
	r.PC = ctx.PC()
	return r
}

func (c *Capability) ReginfoFromBytes(data []byte) (risu.Reginfo, error) {
	return decodeReginfo(data)
}

// GetRisuOp recovers the checkpoint opcode from a BRK instruction's
// 15-bit code field (bits 0..14); the low 4 bits carry the op, the rest
// must equal risuKey.
func (c *Capability) GetRisuOp(insn uint32) risu.RisuOp {
	const brkMask = 0xffff8000
	const brkOpcode = 0x002a0000
	if insn&brkMask != brkOpcode {
		return risu.OpSigill
	}
	code := insn & 0x7fff
	if code&^0xf != risuKey {
		return risu.OpSigill
	}
	op := risu.RisuOp(code & 0xf)
	if op > risu.OpSigill {
		return risu.OpSigill
	}
	return op
}

func (c *Capability) GetPC(ctx risu.RawContext, base uint64) uint64 {
	pc := ctx.PC()
	if base == 0 || pc < base {
		return pc
	}
	return pc - base
}

// ParamReg is a4 (r4), the first argument/return register in the
// LoongArch ABI.
func (c *Capability) ParamReg(ctx risu.RawContext) uint64 {
	return ctx.GPR(4)
}

// AdvancePC skips the trapping 4-byte instruction. Unlike s390x, the
// kernel does not pre-advance the saved PC past a BRK trap, so this
// capability must do it explicitly.
func (c *Capability) AdvancePC(pc uint64) uint64 {
	return pc + 4
}

func (c *Capability) LongOpts() []string { return nil }

func (c *Capability) ProcessOpt(name, value string) error {
	return fmt.Errorf("loongarch64: unknown option %q", name)
}

const reginfoWireSize = numGPR*8 + numGPR*8 + 8 + 4 + 8

// Reginfo is the loongarch64 register snapshot. The tp register (r2) is
// excluded from comparison: it is a thread-local-storage base the
// loader sets independently per process.
type Reginfo struct {
	GPR  [numGPR]uint64
	FPR  [numGPR]uint64
	FCC  uint64
	FCSR uint32
	PC   uint64
}

func excludedGPR(n int) bool { return n == 2 }

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
	if r.FPR != o.FPR {
		return false
	}
	if r.FCC != o.FCC || r.FCSR != o.FCSR {
		return false
	}
	return true
}

func (r *Reginfo) Bytes() []byte {
	buf := make([]byte, reginfoWireSize)
	off := 0
	for i := 0; i < numGPR; i++ {
		binary.LittleEndian.PutUint64(buf[off:], r.GPR[i])
		off += 8
	}
	for i := 0; i < numGPR; i++ {
		binary.LittleEndian.PutUint64(buf[off:], r.FPR[i])
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:], r.FCC)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], r.FCSR)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], r.PC)
	return buf
}

func decodeReginfo(data []byte) (*Reginfo, error) {
	if len(data) != reginfoWireSize {
		return nil, &risu.Fault{Result: risu.ResBadSizeReginfo}
	}
	r := &Reginfo{}
	off := 0
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	for i := 0; i < numGPR; i++ {
		r.FPR[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	r.FCC = binary.LittleEndian.Uint64(data[off:])
	off += 8
	r.FCSR = binary.LittleEndian.Uint32(data[off:])
	off += 4
	r.PC = binary.LittleEndian.Uint64(data[off:])
	return r, nil
}

func (r *Reginfo) Dump(w io.Writer) {
	for i := 0; i < numGPR; i++ {
		fmt.Fprintf(w, "r%-2d = %016x\n", i, r.GPR[i])
	}
	fmt.Fprintf(w, "fcc = %016x  fcsr = %08x\n", r.FCC, r.FCSR)
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
	if r.FCC != o.FCC {
		fmt.Fprintf(w, "fcc: apprentice=%016x master=%016x\n", r.FCC, o.FCC)
	}
}
