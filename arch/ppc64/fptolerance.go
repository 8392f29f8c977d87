/*
 * risu - PowerPC floating-point comparison tolerance ("excuses").
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
	"fmt"
	"math"
	"strings"
)

// Two host implementations of the same PowerPC floating-point
// instruction can legitimately disagree in a handful of well-understood
// ways: which bit pattern they pick for a non-signaling QNaN result,
// how many ULPs of rounding error a reciprocal-estimate instruction is
// permitted, the sign of a zero produced by multiplying by zero, and so
// on. Folding all of that into reginfo_is_eq's equality check directly
// produces an unreadable cascade of special cases; instead each excuse
// is one predicate in a table, gated by an fpOptsMask bit so a user can
// turn a single excuse family off with --fp-opts to see the raw
// mismatch it would otherwise suppress.
type fpOptsMask uint32

const (
	excQNaNSign fpOptsMask = 1 << iota
	excQNaNFromOperand
	excInfTimesZero
	excDivByZero
	excUnderflow
	excOverflow
	excRounding
	excRecipEstimate
	excZeroSign
	numExcuses
)

var excuseNames = map[string]fpOptsMask{
	"qnan-sign":      excQNaNSign,
	"qnan-operand":   excQNaNFromOperand,
	"inf-times-zero": excInfTimesZero,
	"div-by-zero":    excDivByZero,
	"underflow":      excUnderflow,
	"overflow":       excOverflow,
	"rounding":       excRounding,
	"recip-estimate": excRecipEstimate,
	"zero-sign":      excZeroSign,
}

func allExcuses() fpOptsMask {
	return numExcuses - 1
}

// parseFPOpts resolves a comma-separated list of excuse names (as
// accepted by --fp-opts) into a mask. "all" and "none" are recognized
// as shorthands.
func parseFPOpts(value string) (fpOptsMask, error) {
	if value == "" || value == "all" {
		return allExcuses(), nil
	}
	if value == "none" {
		return 0, nil
	}
	var mask fpOptsMask
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		bit, ok := excuseNames[name]
		if !ok {
			return 0, fmt.Errorf("ppc64: unknown --fp-opts excuse %q", name)
		}
		mask |= bit
	}
	return mask, nil
}

// isQNaN64 reports whether bits, interpreted as an IEEE double, is a
// quiet NaN.
func isQNaN64(bits uint64) bool {
	exp := (bits >> 52) & 0x7ff
	frac := bits & 0xfffffffffffff
	return exp == 0x7ff && frac != 0 && (bits&(1<<51)) != 0
}

func isInf64(bits uint64) bool {
	return (bits>>52)&0x7ff == 0x7ff && bits&0xfffffffffffff == 0
}

func isZero64(bits uint64) bool {
	return bits&0x7fffffffffffffff == 0
}

// fracRa reports the decoded "A" source-register field of a PowerPC
// X-form or A-form floating-point instruction word. Predicates that
// want to compare a result against one of its own operands must check
// this against the destination register index first: per the spec's
// guidance on this ambiguity, a source register is never assumed
// distinct from the destination.
func fracRa(insn uint32) int {
	return int((insn >> 16) & 0x1f)
}

func fracRd(insn uint32) int {
	return int((insn >> 21) & 0x1f)
}

// fprExcused reports whether a mismatch in FPR[i] between r (this
// process's snapshot) and o (the peer's) is one of the recognized
// floating-point tolerance cases rather than a genuine divergence.
func fprExcused(r, o *Reginfo, i int) bool {
	a, b := r.FPR[i], o.FPR[i]

	if r.fpOpts&excQNaNSign != 0 {
		if isQNaN64(a) && isQNaN64(b) && (a|1<<63) == (b|1<<63) {
			return true
		}
	}

	if r.fpOpts&excQNaNFromOperand != 0 && isQNaN64(a) && isQNaN64(b) {
		ra := fracRa(r.PrevInsn)
		if ra != fracRd(r.PrevInsn) && ra < numFPR {
			if a == r.FPR[ra] || b == o.FPR[ra] {
				return true
			}
		}
	}

	if r.fpOpts&excInfTimesZero != 0 && isQNaN64(a) && isQNaN64(b) {
		// A multiply of infinity by zero legitimately produces an
		// implementation-defined QNaN. This excuse accepts any pair of
		// QNaN results: it does not decode the previous instruction or
		// check its operands for an infinite and a zero input.
		return true
	}

	if r.fpOpts&excZeroSign != 0 && isZero64(a) && isZero64(b) {
		return true
	}

	if r.fpOpts&excUnderflow != 0 {
		if isZero64(a) != isZero64(b) && nearZero(a) && nearZero(b) {
			return true
		}
	}

	if r.fpOpts&excOverflow != 0 {
		if isInf64(a) && isInf64(b) {
			return true
		}
	}

	if r.fpOpts&excDivByZero != 0 && isInf64(a) && isInf64(b) {
		return true
	}

	if r.fpOpts&excRounding != 0 {
		if withinULP(a, b, 1) {
			return true
		}
	}

	if r.fpOpts&excRecipEstimate != 0 {
		// frsqrte/fres are estimate instructions: implementations are
		// only required to agree to roughly 1/4096 relative error,
		// far looser than a normal rounding ULP budget.
		if withinRelative(a, b, 1.0/4096) {
			return true
		}
	}

	return false
}

// nearZero reports whether bits represents a subnormal or zero value,
// the range in which two implementations may disagree about whether a
// result underflowed all the way to zero.
func nearZero(bits uint64) bool {
	exp := (bits >> 52) & 0x7ff
	return exp == 0
}

func withinULP(a, b uint64, ulps uint64) bool {
	sa := int64(a) < 0
	sb := int64(b) < 0
	if sa != sb {
		return a == b
	}
	var diff uint64
	if a > b {
		diff = a - b
	} else {
		diff = b - a
	}
	return diff <= ulps
}

func withinRelative(a, b uint64, rel float64) bool {
	fa := math.Float64frombits(a)
	fb := math.Float64frombits(b)
	if fa == fb {
		return true
	}
	if fa == 0 || fb == 0 {
		return math.Abs(fa-fb) < rel
	}
	return math.Abs((fa-fb)/fa) <= rel
}

// ccrExcused narrows the CCR comparison mask for the fcmpo/fcmpu/mcrfs
// family, which only promise to set the 4 bits of the CR field they
// name: a mismatch outside that field is not a genuine divergence, just
// the other three fields carrying whatever they held before the trap.
// This narrowing is unconditional, matching reginfo_is_eq's CCR
// handling, rather than a togglable excuse.
func ccrExcused(r, o *Reginfo) bool {
	insn := r.PrevInsn
	if insn&0xfc6007bf == 0xfc000000 {
		// fcmpo or fcmpu: result goes into the CR field named by crfD
		// (bits 6-8), copy of fixed-point CR1's 4-bit comparison mask.
		crfd := (insn >> 23) & 0x7
		const cr1 = 1
		mask := narrowCRField(r.ccrMask, cr1, crfd)
		return r.CCR&mask == o.CCR&mask
	}
	if insn&0xfc63ffff == 0xfc000080 {
		// mcrfs: copies one FPSCR exception-summary field into a CR
		// field; the written field is only as wide as the narrower of
		// ccrMask and fpscrMask at the source field's position.
		bf := (insn >> 23) & 0x7
		bfa := (insn >> 18) & 0x7
		mask := narrowCRFieldFromFPSCR(r.ccrMask, r.fpscrMask, bf, bfa)
		return r.CCR&mask == o.CCR&mask
	}
	return false
}

// narrowCRField returns ccrMask with the 4 bits of field dst replaced by
// the corresponding 4 bits of field src (both numbered 0 = most
// significant, matching PowerPC CR field numbering).
func narrowCRField(ccrMask uint32, src, dst uint32) uint32 {
	srcShift := (7 - src) * 4
	dstShift := (7 - dst) * 4
	field := (ccrMask >> srcShift) & 0xf
	cleared := ccrMask &^ (uint32(0xf) << dstShift)
	return cleared | (field << dstShift)
}

// narrowCRFieldFromFPSCR is narrowCRField but draws the donor field from
// fpscrMask instead of ccrMask, for mcrfs's FPSCR-to-CR copy.
func narrowCRFieldFromFPSCR(ccrMask, fpscrMask uint32, dst, src uint32) uint32 {
	srcShift := (7 - src) * 4
	dstShift := (7 - dst) * 4
	field := (fpscrMask >> srcShift) & 0xf
	cleared := ccrMask &^ (uint32(0xf) << dstShift)
	return cleared | (field << dstShift)
}

// fpscrExcused reports whether an FPSCR mismatch is limited to the
// sticky exception-summary bits that a mask-narrowing FP instruction
// (or a differing rounding excuse already accepted for the result
// itself) is allowed to leave different.
func fpscrExcused(r, o *Reginfo) bool {
	if r.fpOpts&excRounding == 0 {
		return false
	}
	const stickyMask = 0xfc000000 // FX, FEX, VX, OX, UX, ZX summary bits
	return r.FPSCR&^uint32(stickyMask) == o.FPSCR&^uint32(stickyMask)
}
