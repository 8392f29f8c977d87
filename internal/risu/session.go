/*
 * risu - Run diagnostics and exit-status mapping.
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

import (
	"fmt"
	"io"
)

// ExitStatus maps a terminal Result to a process exit code the way
// risu.c's master()/apprentice() do: a clean end-of-test is success,
// every other terminal result is failure.
func (r Result) ExitStatus() int {
	if r == ResEnd || r == ResOK {
		return 0
	}
	return 1
}

// ReportOutcome writes a one-line pass/fail summary to w, mirroring the
// original's final fprintf(stderr, ...) diagnostic. fault may be nil
// when the run ended cleanly.
func (s *Session) ReportOutcome(w io.Writer, result Result, fault *Fault) {
	switch result {
	case ResEnd:
		fmt.Fprintf(w, "risu: test complete, %d checkpoints, %d illegal instructions\n",
			s.Checkpoint, s.IllegalCnt)
	case ResOK:
		fmt.Fprintf(w, "risu: ok, %d checkpoints\n", s.Checkpoint)
	default:
		switch {
		case fault != nil && fault.HaveOps:
			fmt.Fprintf(w, "risu: %s at checkpoint %d (image+0x%x, local=%s wire=%s)\n",
				result, s.Checkpoint, fault.PC, fault.LocalOp, fault.WireOp)
		case fault != nil:
			fmt.Fprintf(w, "risu: %s at checkpoint %d (image+0x%x)\n",
				result, s.Checkpoint, fault.PC)
		default:
			fmt.Fprintf(w, "risu: %s at checkpoint %d\n", result, s.Checkpoint)
		}
	}
}

// ReportMismatch writes the detailed register diff for a
// MISMATCH_REG result, using the last snapshot stored in each slot.
func (s *Session) ReportMismatch(w io.Writer) {
	master := s.Regs.Get(SlotMaster)
	apprentice := s.Regs.Get(SlotApprentice)
	if master == nil || apprentice == nil {
		return
	}
	apprentice.DumpMismatch(master, w)
}
