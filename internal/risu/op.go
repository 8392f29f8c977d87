/*
 * risu - Checkpoint opcodes and terminal results.
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

// Package risu implements the RISU differential-testing engine: the wire
// codec, the per-checkpoint master/apprentice protocol, and the
// architecture-independent parts of register-state comparison.
package risu

import "fmt"

// RisuOp is the 4-bit checkpoint opcode embedded in a test image's
// illegal-instruction word.
type RisuOp int32

const (
	OpCompare RisuOp = iota
	OpTestEnd
	OpSetMemblock
	OpGetMemblock
	OpCompareMem
	OpSetupBegin
	OpSetupEnd
	OpSigill
)

func (op RisuOp) String() string {
	switch op {
	case OpCompare:
		return "COMPARE"
	case OpTestEnd:
		return "TESTEND"
	case OpSetMemblock:
		return "SETMEMBLOCK"
	case OpGetMemblock:
		return "GETMEMBLOCK"
	case OpCompareMem:
		return "COMPAREMEM"
	case OpSetupBegin:
		return "SETUPBEGIN"
	case OpSetupEnd:
		return "SETUPEND"
	case OpSigill:
		return "SIGILL"
	default:
		return fmt.Sprintf("OP(%d)", int32(op))
	}
}

// IsRegisterOp reports whether op exchanges a full reginfo snapshot
// (as opposed to a control op or memory block).
func (op RisuOp) IsRegisterOp() bool {
	switch op {
	case OpCompare, OpTestEnd, OpSigill:
		return true
	default:
		return false
	}
}

// validOp reports whether v is one of the eight known RisuOp values.
func validOp(v int32) bool {
	return v >= int32(OpCompare) && v <= int32(OpSigill)
}

// Result is the outcome of a single checkpoint or of the whole run.
type Result int

const (
	ResOK Result = iota
	ResEnd
	ResMismatchReg
	ResMismatchMem
	ResMismatchOp
	ResBadIO
	ResBadMagic
	ResBadSizeHeader
	ResBadSizeReginfo
	ResBadSizeMemblock
	ResBadSizeZero
	ResBadOp
	ResSigBus
	ResUnsupported
)

func (r Result) String() string {
	switch r {
	case ResOK:
		return "OK"
	case ResEnd:
		return "END"
	case ResMismatchReg:
		return "MISMATCH_REG"
	case ResMismatchMem:
		return "MISMATCH_MEM"
	case ResMismatchOp:
		return "MISMATCH_OP"
	case ResBadIO:
		return "BAD_IO"
	case ResBadMagic:
		return "BAD_MAGIC"
	case ResBadSizeHeader:
		return "BAD_SIZE_HEADER"
	case ResBadSizeReginfo:
		return "BAD_SIZE_REGINFO"
	case ResBadSizeMemblock:
		return "BAD_SIZE_MEMBLOCK"
	case ResBadSizeZero:
		return "BAD_SIZE_ZERO"
	case ResBadOp:
		return "BAD_OP"
	case ResSigBus:
		return "SIGBUS"
	case ResUnsupported:
		return "UNSUPPORTED"
	default:
		return fmt.Sprintf("RESULT(%d)", int(r))
	}
}

// Fatal reports whether r ends the run. Every Result except ResOK is
// fatal; RISU never attempts to resynchronize after a divergence.
func (r Result) Fatal() bool {
	return r != ResOK
}

// Fault wraps a terminal Result as an error, optionally carrying the
// image-relative PC at which it was raised.
type Fault struct {
	Result Result
	PC     uint64 // image-relative offset of the faulting instruction

	// LocalOp and WireOp are set only for ResMismatchOp: the op this
	// process observed at the trap versus the op the peer's frame
	// named, so a diagnostic can name both sides (op_name in the
	// original) instead of just "MISMATCH_OP".
	LocalOp, WireOp RisuOp
	HaveOps         bool
}

func (f *Fault) Error() string {
	if f.Result == ResEnd {
		return "risu: end of test"
	}
	if f.Result == ResMismatchOp && f.HaveOps {
		return fmt.Sprintf("risu: %s at image+0x%x (local=%s wire=%s)",
			f.Result, f.PC, f.LocalOp, f.WireOp)
	}
	return fmt.Sprintf("risu: %s at image+0x%x", f.Result, f.PC)
}

// RisuMagic is the fixed sentinel that begins every TraceHeader.
const RisuMagic uint32 = 0x52495355 // "RISU"

// MemblockLen is the size in bytes of the shared memory block exchanged
// by COMPAREMEM.
const MemblockLen = 4096
