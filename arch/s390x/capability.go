/*
 * risu - s390x capability.
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

// Package s390x implements the risu.Capability for IBM Z (s390x). Its
// checkpoint instruction is the only one in the whole capability set
// whose trap the kernel has already advanced the saved PC past by the
// time the handler observes it, which is why AdvancePC is a no-op here
// and nowhere else.
package s390x

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/risu"
)

func init() {
	arch.Register("s390x", New)
}

// risuKeyHigh is the high 4 bytes of a 6-byte illegal opcode
// (0x835a0f00); the low 2 bytes carry the RisuOp.
const risuKeyHigh = 0x835a0f00

const (
	numGPR = 16
	numFPR = 16
)

// Capability implements risu.Capability for s390x.
type Capability struct{}

func New() risu.Capability { return &Capability{} }

func (c *Capability) Name() string    { return "s390x" }
func (c *Capability) BigEndian() bool { return true }
func (c *Capability) ReginfoSize() int { return reginfoWireSize }

func (c *Capability) ReginfoInit(ctx risu.RawContext) risu.Reginfo {
	r := &Reginfo{}
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = ctx.GPR(i)
	}
	for i := 0; i < numFPR; i++ {
		r.FPR[i] = ctx.FPR(i)
	}
	r.PSWMask = ctx.Extra("psw_mask")
	r.FPC = uint32(ctx.Extra("fpc"))
	r.PC = ctx.PC()
	return r
}

func (c *Capability) ReginfoFromBytes(data []byte) (risu.Reginfo, error) {
	return decodeReginfo(data)
}

// GetRisuOp recovers the checkpoint opcode from s390x's 6-byte illegal
// opcode. The trap driver hands in insn as the high 4 bytes
// (0x835a0f00) and the trailing halfword packed into the low 16 bits of
// a second read, combined by the caller into one uint32 with the
// trailing halfword occupying bits 0-15; GetRisuOp here only needs bits
// 0-3 of that for the op, since the rest of the trailing halfword is
// always zero by construction of the checkpoint instruction encoder.
func (c *Capability) GetRisuOp(insn uint32) risu.RisuOp {
	if insn&0xffff0000 != risuKeyHigh&0xffff0000 {
		return risu.OpSigill
	}
	op := risu.RisuOp(insn & 0xf)
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

// ParamReg is gpr0, matching the original s390x driver's choice (the
// System/390 ABI's usual first-argument register is r2, but risu
// reserves r0 here since it is never used for parameter passing and so
// never collides with the image under test).
func (c *Capability) ParamReg(ctx risu.RawContext) uint64 {
	return ctx.GPR(0)
}

// AdvancePC is a no-op: on s390x the kernel has already advanced the
// saved PSW address past the trapping instruction by the time the
// signal handler observes it.
func (c *Capability) AdvancePC(pc uint64) uint64 {
	return pc
}

func (c *Capability) LongOpts() []string { return nil }

func (c *Capability) ProcessOpt(name, value string) error {
	return fmt.Errorf("s390x: unknown option %q", name)
}

const reginfoWireSize = numGPR*8 + numFPR*8 + 8 + 4 + 8

// Reginfo is the s390x register snapshot.
type Reginfo struct {
	GPR     [numGPR]uint64
	FPR     [numFPR]uint64
	PSWMask uint64
	FPC     uint32
	PC      uint64
}

func (r *Reginfo) Equal(other risu.Reginfo) bool {
	o, ok := other.(*Reginfo)
	if !ok {
		return false
	}
	if r.GPR != o.GPR {
		return false
	}
	if r.FPR != o.FPR {
		return false
	}
	if r.FPC != o.FPC {
		return false
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
	binary.BigEndian.PutUint64(buf[off:], r.PSWMask)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], r.FPC)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], r.PC)
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
	r.PSWMask = binary.BigEndian.Uint64(data[off:])
	off += 8
	r.FPC = binary.BigEndian.Uint32(data[off:])
	off += 4
	r.PC = binary.BigEndian.Uint64(data[off:])
	return r, nil
}

func (r *Reginfo) Dump(w io.Writer) {
	for i := 0; i < numGPR; i++ {
		fmt.Fprintf(w, "r%-2d = %016x\n", i, r.GPR[i])
	}
	fmt.Fprintf(w, "fpc = %08x\n", r.FPC)
}

func (r *Reginfo) DumpMismatch(other risu.Reginfo, w io.Writer) {
	o, ok := other.(*Reginfo)
	if !ok {
		fmt.Fprintln(w, "mismatch: incompatible reginfo types")
		return
	}
	for i := 0; i < numGPR; i++ {
		if r.GPR[i] != o.GPR[i] {
			fmt.Fprintf(w, "r%-2d: apprentice=%016x master=%016x\n", i, r.GPR[i], o.GPR[i])
		}
	}
	if r.FPC != o.FPC {
		fmt.Fprintf(w, "fpc: apprentice=%08x master=%08x\n", r.FPC, o.FPC)
	}
}
