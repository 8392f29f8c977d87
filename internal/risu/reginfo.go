/*
 * risu - Reginfo and Capability interfaces.
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

import "io"

// Reginfo is an opaque per-architecture register snapshot. Every ISA
// module defines its own concrete type satisfying this interface; the
// core engine never inspects the snapshot's fields directly.
type Reginfo interface {
	// Equal reports whether r and other describe register states that
	// should be treated as matching, applying whatever per-architecture
	// masking or floating-point tolerance the Capability that produced
	// them implements.
	Equal(other Reginfo) bool

	// Bytes serializes the snapshot for wire transmission in the
	// Capability's native byte order.
	Bytes() []byte

	// Dump writes a human-readable rendering of the snapshot to w.
	Dump(w io.Writer)

	// DumpMismatch writes a human-readable description of how r differs
	// from other to w. Called only after Equal has returned false.
	DumpMismatch(other Reginfo, w io.Writer)
}

// RawContext abstracts the machine register state captured at a trap,
// independent of both the host OS and the target architecture. A
// platform-specific reader in internal/trapdriver populates one of
// these from the raw ucontext_t handed to the signal trampoline; a
// Capability's ReginfoInit method consumes it to build a Reginfo. Tests
// substitute a SimulatedContext so the core engine never needs a real
// signal to exercise ReginfoInit.
type RawContext interface {
	// GPR returns the value of general-purpose register n.
	GPR(n int) uint64

	// PC returns the program counter at the trap.
	PC() uint64

	// FPR returns the bits of floating-point register n.
	FPR(n int) uint64

	// Extra returns architecture-specific state that doesn't fit the
	// GPR/FPR model (condition register, FPSCR, vector registers, PSW
	// flags, and so on) keyed by an ISA-module-defined name.
	Extra(name string) uint64

	// FaultAddr returns the faulting address for a SIGBUS, or 0 if the
	// trap was not a bus error.
	FaultAddr() uint64
}

// Capability is the full set of per-architecture operations the core
// engine calls through (spec §6). Exactly one Capability is active per
// process, selected by the --arch flag via the arch package's registry.
type Capability interface {
	// Name identifies the architecture for --arch matching and
	// diagnostics, e.g. "aarch64", "ppc64", "loongarch64", "s390x".
	Name() string

	// ReginfoSize returns the wire size in bytes of this architecture's
	// Reginfo encoding.
	ReginfoSize() int

	// ReginfoInit builds a Reginfo from a freshly captured RawContext.
	ReginfoInit(ctx RawContext) Reginfo

	// ReginfoFromBytes decodes a Reginfo previously produced by Bytes.
	ReginfoFromBytes(data []byte) (Reginfo, error)

	// GetRisuOp extracts the checkpoint opcode from the trapping
	// instruction word, returning OpSigill if the word carries no valid
	// risu key.
	GetRisuOp(insn uint32) RisuOp

	// GetPC returns the trapping PC out of a RawContext, image-relative
	// if base is non-zero.
	GetPC(ctx RawContext, base uint64) uint64

	// ParamReg returns the value of the architecture's designated
	// parameter register (used by SETMEMBLOCK/GETMEMBLOCK to carry an
	// address) out of ctx.
	ParamReg(ctx RawContext) uint64

	// AdvancePC returns the PC to resume execution at after handling a
	// checkpoint trap. Most architectures must skip past the trapping
	// instruction explicitly; s390x does not, since the OS has already
	// advanced the saved PC past the trap by the time the handler runs.
	AdvancePC(pc uint64) uint64

	// BigEndian reports whether this architecture's native wire
	// encoding is big-endian.
	BigEndian() bool

	// LongOpts returns the architecture's extra getopt long-option
	// names (without leading dashes), for registration alongside the
	// common flag set.
	LongOpts() []string

	// ProcessOpt handles one of the options named by LongOpts, given its
	// string argument.
	ProcessOpt(name, value string) error
}

// RegSlot identifies which side of the comparison a Reginfo belongs to.
type RegSlot int

const (
	SlotMaster RegSlot = iota
	SlotApprentice
)

// RegStore holds the most recent master and apprentice Reginfo
// snapshots a Session has seen, so ReportMismatch can describe a
// MISMATCH_REG. The master fills only SlotMaster, with the frame it
// just sent; the apprentice fills both slots at each register op.
type RegStore struct {
	slots [2]Reginfo
}

// Set stores info in the given slot.
func (s *RegStore) Set(slot RegSlot, info Reginfo) {
	s.slots[slot] = info
}

// Get returns the Reginfo last stored in the given slot, or nil if none
// has been stored yet.
func (s *RegStore) Get(slot RegSlot) Reginfo {
	return s.slots[slot]
}
