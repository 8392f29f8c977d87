/*
 * risutrace - Interactive trace-file inspector.
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

// Command risutrace is an interactive inspector for trace files
// recorded by "risu --master --trace=FILE": step through checkpoints
// one at a time, dump a reginfo snapshot, or skip forward to the next
// SIGILL frame.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"

	_ "github.com/rcornwell/risu/arch/aarch64"
	_ "github.com/rcornwell/risu/arch/loongarch64"
	_ "github.com/rcornwell/risu/arch/ppc64"
	_ "github.com/rcornwell/risu/arch/s390x"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/risu"
)

var commands = []string{"step", "dump", "find-mismatch", "quit", "help"}

func main() {
	optArch := getopt.StringLong("arch", 'a', "", "Architecture the trace was recorded for")
	getopt.Parse()

	args := getopt.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: risutrace --arch=ARCH FILE")
		os.Exit(1)
	}

	cpuCap, ok := arch.Get(*optArch)
	if !ok {
		fmt.Fprintf(os.Stderr, "risutrace: unknown architecture %q\n", *optArch)
		os.Exit(1)
	}

	f, err := risu.OpenTraceReader(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "risutrace:", err)
		os.Exit(1)
	}
	defer f.Close()

	insp := &inspector{r: f, cap: cpuCap}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string
		for _, c := range commands {
			if strings.HasPrefix(c, prefix) {
				matches = append(matches, c)
			}
		}
		return matches
	})

	for {
		input, err := line.Prompt("risutrace> ")
		if err != nil {
			break
		}
		line.AppendHistory(input)
		if !insp.dispatch(strings.TrimSpace(input)) {
			break
		}
	}
}

// inspector walks a trace file one frame at a time and reports the
// header and (when present) the reginfo snapshot it carries.
type inspector struct {
	r     io.Reader
	cap   risu.Capability
	frame int
}

func (insp *inspector) dispatch(cmd string) bool {
	switch cmd {
	case "quit", "q", "exit":
		return false
	case "step", "s", "":
		insp.step()
	case "dump", "d":
		insp.dump()
	case "find-mismatch", "f":
		insp.findMismatch()
	case "help", "h", "?":
		fmt.Println("commands: step, dump, find-mismatch, quit")
	default:
		fmt.Printf("unknown command %q (try 'help')\n", cmd)
	}
	return true
}

// step reads one frame and reports what it found. ok is false at end of
// trace or on a malformed frame, in which case op is meaningless.
func (insp *inspector) step() (op risu.RisuOp, ok bool) {
	hdrBuf := make([]byte, risu.HeaderSize)
	if _, err := io.ReadFull(insp.r, hdrBuf); err != nil {
		fmt.Println("end of trace")
		return 0, false
	}
	hdr, _, err := risu.DecodeHeader(hdrBuf)
	if err != nil {
		fmt.Println("bad header:", err)
		return 0, false
	}
	insp.frame++
	op = risu.RisuOp(hdr.RisuOp)
	fmt.Printf("#%d op=%s pc=0x%x size=%d\n", insp.frame, op, hdr.PC, hdr.Size)

	if hdr.Size == 0 {
		return op, true
	}
	payload := make([]byte, hdr.Size)
	if _, err := io.ReadFull(insp.r, payload); err != nil {
		fmt.Println("truncated payload:", err)
		return 0, false
	}
	if op.IsRegisterOp() {
		info, err := insp.cap.ReginfoFromBytes(payload)
		if err == nil {
			info.Dump(os.Stdout)
		}
	}
	return op, true
}

func (insp *inspector) dump() {
	fmt.Printf("frame #%d, architecture %s\n", insp.frame, insp.cap.Name())
}

// findMismatch skips forward to the next SIGILL frame, the closest
// thing to an anomaly a one-sided trace can show: a recorded trace
// holds only the side that made it, never the comparison result, so a
// genuine register mismatch is invisible here and only surfaces when
// the trace is replayed as the live apprentice side of a run.
func (insp *inspector) findMismatch() {
	for {
		op, ok := insp.step()
		if !ok {
			fmt.Println("no SIGILL frame found before end of trace")
			return
		}
		if op == risu.OpSigill {
			fmt.Printf("stopped at SIGILL, frame #%d\n", insp.frame)
			return
		}
	}
}
