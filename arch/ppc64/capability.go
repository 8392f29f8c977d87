/*
 * risu - PowerPC64 capability.
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

// Package ppc64 implements the risu.Capability for 64-bit PowerPC,
// including the floating-point comparison tolerance table that is the
// most elaborate piece of the whole comparison engine (see
// fptolerance.go).
package ppc64

import (
	"fmt"
	"strconv"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/risu"
)

func init() {
	arch.Register("ppc64", New)
}

// risuKey is the low 16 bits of the trap instruction that carries a
// RisuOp, laid into an otherwise-reserved PowerPC illegal opcode the
// same way every other ISA module borrows an unused instruction.
const risuKey = 0x00005af0

// Number of general-purpose, floating-point and vector registers.
const (
	numGPR = 32
	numFPR = 32
	numVR  = 32
)

// Capability implements risu.Capability for ppc64.
type Capability struct {
	ccrMask    uint32
	fpscrMask  uint32
	fpregsMask uint64
	vrregsMask uint64
	fpOpts     fpOptsMask
}

// New constructs a ppc64 Capability with every mask defaulting to "compare
// everything" and every FP tolerance excuse enabled, matching the
// original's default behavior.
func New() risu.Capability {
	return &Capability{
		ccrMask:    0xffffffff,
		fpscrMask:  0xffffffff,
		fpregsMask: ^uint64(0),
		vrregsMask: ^uint64(0),
		fpOpts:     allExcuses(),
	}
}

func (c *Capability) Name() string { return "ppc64" }

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
	for i := 0; i < numVR; i++ {
		r.VR[i][0] = ctx.Extra(fmt.Sprintf("vr%d.hi", i))
		r.VR[i][1] = ctx.Extra(fmt.Sprintf("vr%d.lo", i))
	}
	r.CCR = uint32(ctx.Extra("ccr"))
	r.XER = uint32(ctx.Extra("xer"))
	r.FPSCR = uint32(ctx.Extra("fpscr"))
	r.VSCR = uint32(ctx.Extra("vscr"))
	r.VRSave = uint32(ctx.Extra("vrsave"))
	r.PrevInsn = uint32(ctx.Extra("previnsn"))
	r.NIP = ctx.PC()

	r.ccrMask = c.ccrMask
	r.fpscrMask = c.fpscrMask
	r.fpregsMask = c.fpregsMask
	r.vrregsMask = c.vrregsMask
	r.fpOpts = c.fpOpts
	return r
}

func (c *Capability) ReginfoFromBytes(data []byte) (risu.Reginfo, error) {
	r, err := decodeReginfo(data)
	if err != nil {
		return nil, err
	}
	r.ccrMask = c.ccrMask
	r.fpscrMask = c.fpscrMask
	r.fpregsMask = c.fpregsMask
	r.vrregsMask = c.vrregsMask
	r.fpOpts = c.fpOpts
	return r, nil
}

// GetRisuOp extracts the checkpoint opcode from bits 0..2 of the
// trapping instruction's low 16 bits, with risuKey occupying the rest.
func (c *Capability) GetRisuOp(insn uint32) risu.RisuOp {
	if insn&0xffff0000 != 0 {
		// Not one of our reserved illegal opcodes at all; still an
		// illegal instruction trap, just not a checkpoint.
		return risu.OpSigill
	}
	low := insn & 0xffff
	if low&^uint32(0x7) != risuKey {
		return risu.OpSigill
	}
	op := risu.RisuOp(low & 0x7)
	if !validOp(op) {
		return risu.OpSigill
	}
	return op
}

func validOp(op risu.RisuOp) bool {
	return op >= risu.OpCompare && op <= risu.OpSigill
}

func (c *Capability) GetPC(ctx risu.RawContext, base uint64) uint64 {
	pc := ctx.PC()
	if base == 0 || pc < base {
		return pc
	}
	return pc - base
}

// ParamReg is r3, the first argument/return register in the PowerPC
// ELF ABI, matching the original's use of gpr[3] to carry the memory
// block address for SETMEMBLOCK/GETMEMBLOCK/COMPAREMEM.
func (c *Capability) ParamReg(ctx risu.RawContext) uint64 {
	return ctx.GPR(3)
}

// AdvancePC skips the trapping 4-byte instruction.
func (c *Capability) AdvancePC(pc uint64) uint64 {
	return pc + 4
}

func (c *Capability) LongOpts() []string {
	return []string{"ccr-mask", "fpscr-mask", "fpregs-mask", "vrregs-mask", "fp-opts"}
}

func (c *Capability) ProcessOpt(name, value string) error {
	switch name {
	case "ccr-mask":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("ppc64: --ccr-mask: %w", err)
		}
		c.ccrMask = uint32(v)
	case "fpscr-mask":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("ppc64: --fpscr-mask: %w", err)
		}
		c.fpscrMask = uint32(v)
	case "fpregs-mask":
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return fmt.Errorf("ppc64: --fpregs-mask: %w", err)
		}
		c.fpregsMask = v
	case "vrregs-mask":
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return fmt.Errorf("ppc64: --vrregs-mask: %w", err)
		}
		c.vrregsMask = v
	case "fp-opts":
		opts, err := parseFPOpts(value)
		if err != nil {
			return err
		}
		c.fpOpts = opts
	default:
		return fmt.Errorf("ppc64: unknown option %q", name)
	}
	return nil
}
