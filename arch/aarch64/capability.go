/*
 * risu - AArch64 capability.
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

// Package aarch64 implements the risu.Capability for 64-bit Arm. The
// --sve-vector-length option records an SVE vector length in each
// snapshot; the SVE register contents themselves are not captured,
// sent or compared.
package aarch64

import (
	"fmt"
	"strconv"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/risu"
)

func init() {
	arch.Register("aarch64", New)
}

// risuKey occupies an UDF (permanently undefined) encoding's low 16
// bits, with the RisuOp carried in the bottom 4 of those.
const risuKey = 0x00005af0

const (
	numGPR = 31 // x0-x30; sp/pc are handled separately
	numFP  = 32 // v0-v31, compared as 128-bit values
)

// Capability implements risu.Capability for aarch64.
type Capability struct {
	vectorLenBytes int // 0 means "no SVE state captured"
}

// New constructs an aarch64 Capability with no SVE vector length
// recorded; --sve-vector-length sets one.
func New() risu.Capability {
	return &Capability{}
}

func (c *Capability) Name() string  { return "aarch64" }
func (c *Capability) BigEndian() bool { return false }

func (c *Capability) ReginfoSize() int {
	return reginfoWireSize(c.vectorLenBytes)
}

func (c *Capability) ReginfoInit(ctx risu.RawContext) risu.Reginfo {
	r := &Reginfo{VectorLen: c.vectorLenBytes}
	for i := 0; i < numGPR; i++ {
		r.GPR[i] = ctx.GPR(i)
	}
	for i := 0; i < numFP; i++ {
		r.FPHi[i] = ctx.Extra(fmt.Sprintf("v%d.hi", i))
		r.FPLo[i] = ctx.Extra(fmt.Sprintf("v%d.lo", i))
	}
	r.PState = uint32(ctx.Extra("pstate"))
	r.FPSR = uint32(ctx.Extra("fpsr"))
	r.FPCR = uint32(ctx.Extra("fpcr"))
	r.PC = ctx.PC()
	return r
}

func (c *Capability) ReginfoFromBytes(data []byte) (risu.Reginfo, error) {
	return decodeReginfo(data, c.vectorLenBytes)
}

// GetRisuOp recovers the checkpoint opcode from a UDF #imm16
// instruction: bits 0..3 hold the op, the rest must match risuKey.
func (c *Capability) GetRisuOp(insn uint32) risu.RisuOp {
	if insn&0xffff0000 != 0 {
		return risu.OpSigill
	}
	imm16 := insn & 0xffff
	if imm16&0xfff0 != risuKey {
		return risu.OpSigill
	}
	op := risu.RisuOp(imm16 & 0xf)
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

// ParamReg is x0, the first argument/return register in the AAPCS64
// ABI.
func (c *Capability) ParamReg(ctx risu.RawContext) uint64 {
	return ctx.GPR(0)
}

func (c *Capability) AdvancePC(pc uint64) uint64 {
	return pc + 4
}

func (c *Capability) LongOpts() []string {
	return []string{"sve-vector-length"}
}

func (c *Capability) ProcessOpt(name, value string) error {
	if name != "sve-vector-length" {
		return fmt.Errorf("aarch64: unknown option %q", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("aarch64: --sve-vector-length: %w", err)
	}
	if v < 0 {
		return fmt.Errorf("aarch64: --sve-vector-length: must not be negative, got %d", v)
	}
	c.vectorLenBytes = v
	return nil
}
