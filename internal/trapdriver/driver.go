/*
 * risu - Signal trap driver: architecture-independent trap handling.
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

// Package trapdriver runs a test image under a checkpoint trap handler:
// it installs an alternate signal stack, catches the SIGILL the image's
// checkpoint instructions raise (and the SIGBUS a divergent memory
// access can raise), decodes the trapping instruction's RisuOp through
// a risu.Capability, and drives the master or apprentice side of the
// checkpoint protocol before resuming the image.
//
// Unpacking a real ucontext_t into GPR/FPR values is inescapably
// OS-and-architecture-specific machine code reached through the
// signal trampoline the kernel invokes directly; Go's os/signal package
// deliberately does not expose it, since a synchronous signal handler
// that calls back into the Go scheduler is unsafe in general. That
// unpacking step is the pluggable capability this package defines a
// seam for (RawContext, in package risu) rather than fabricates: the
// OS-specific file in this package wires up everything that is
// realistically expressible from Go (the alternate stack, the
// sigaction flags, signal delivery) and documents the trampoline entry
// point a platform-specific reader would need to populate a
// RawContext from. Tests exercise the rest of the driver against a
// risu.RawContext fake (SimulatedContext) so the checkpoint logic is
// fully covered without a real trap.
package trapdriver

import (
	"log/slog"

	"github.com/rcornwell/risu/internal/risu"
)

// Role distinguishes which side of the comparison this process plays.
type Role int

const (
	RoleMaster Role = iota
	RoleApprentice
)

// Outcome is returned after handling a trap: whether the run should
// continue, and the terminal Result/Fault if it should not.
type Outcome struct {
	Continue bool
	Result   risu.Result
	Fault    *risu.Fault
}

// Driver ties a Capability, a checkpoint Session, and an image base
// address together to turn a raw trap into a protocol step.
type Driver struct {
	Role    Role
	Session *risu.Session
	Cap     risu.Capability
	Base    uint64

	Log *slog.Logger
}

// New constructs a Driver for the given role.
func New(role Role, session *risu.Session, cap risu.Capability, base uint64, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{Role: role, Session: session, Cap: cap, Base: base, Log: log}
}

// HandleSigill processes a SIGILL trap: ctx is the register state
// captured at the trap (by a real platform reader or SimulatedContext
// in tests), and insn is the raw 32-bit (or, on s390x, zero-extended
// 16-bit-unit) trapping instruction word.
//
// It returns the PC to resume at (advanced past the checkpoint
// instruction as the architecture requires) and an Outcome describing
// whether the run continues.
func (d *Driver) HandleSigill(ctx risu.RawContext, insn uint32) (nextPC uint64, outcome Outcome) {
	op := d.Cap.GetRisuOp(insn)
	imagePC := d.Cap.GetPC(ctx, d.Base)

	var result risu.Result
	var err error
	if d.Role == RoleMaster {
		result, err = d.Session.SendRegisterInfo(ctx, insn, op, imagePC)
	} else {
		result, err = d.Session.RecvAndCompareRegisterInfo(ctx, op, imagePC)
	}

	d.Log.Debug("checkpoint", "op", op.String(), "pc", imagePC, "result", result.String())

	next := d.Cap.AdvancePC(ctx.PC())

	if result.Fatal() {
		fault, _ := err.(*risu.Fault)
		if fault == nil && err != nil {
			fault = &risu.Fault{Result: result, PC: imagePC}
		}
		return next, Outcome{Continue: false, Result: result, Fault: fault}
	}
	return next, Outcome{Continue: true, Result: risu.ResOK}
}

// HandleSigbus processes a SIGBUS trap: an architecture mismatch that
// manifests as an illegal memory access (for example, a candidate
// implementation computing a wild address) rather than an illegal
// instruction. There is no checkpoint protocol step to run; the
// image-relative PC of the trap is recorded for diagnostics and the run
// ends immediately.
func (d *Driver) HandleSigbus(ctx risu.RawContext) Outcome {
	imagePC := d.Cap.GetPC(ctx, d.Base)
	return Outcome{
		Continue: false,
		Result:   risu.ResSigBus,
		Fault:    &risu.Fault{Result: risu.ResSigBus, PC: imagePC},
	}
}
