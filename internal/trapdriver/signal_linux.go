/*
 * risu - Linux signal stack and handler installation.
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

package trapdriver

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// AltStackSize matches the original's SIGSTKSZ-based allocation: large
// enough to run a signal handler even if the image has smashed the
// normal stack, which is routine for a divergent candidate.
const AltStackSize = 32 * 1024

// altStack keeps the alternate stack's backing memory alive for the
// lifetime of the process once installed; unix.Sigaltstack only stores
// the pointer the kernel will switch to, so Go's GC must not move or
// free it underneath the kernel.
var altStack []byte

// InstallAltStack registers an alternate signal stack with the kernel,
// the real part of "run the handler on a stack the image hasn't
// corrupted" (spec §1, §5) that Go's unix package exposes directly.
func InstallAltStack() error {
	altStack = make([]byte, AltStackSize)
	st := &unix.SigaltstackT{
		Ss_sp:    &altStack[0],
		Ss_size:  uint64(AltStackSize),
		Ss_flags: 0,
	}
	return unix.Sigaltstack(st, nil)
}

// NotifyTraps subscribes to SIGILL and SIGBUS the way os/signal exposes
// them: as plain os.Signal values with no ucontext_t payload. This is
// as far as a synchronous-signal handler can be driven from pure Go;
// os/signal's runtime-side trampoline intentionally does not hand back
// the saved register state, since resuming a signal frame's PC after
// inspecting it requires a raw SA_SIGINFO handler installed with
// unix.Sigaction and its own assembly entry point outside the Go
// runtime's signal dispatch — the pluggable per-architecture context
// reader this package's RawContext seam exists for. A real deployment
// supplies that reader per platform; this function gives the rest of
// the driver a real, testable channel of trap notifications to build
// on in the meantime.
func NotifyTraps() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGILL, syscall.SIGBUS)
	return ch, func() { signal.Stop(ch) }
}

var sigactionOnce sync.Once

// RawSigaction installs a SA_SIGINFO handler via unix.Sigaction for
// sig, pointing at the C-callable trampoline address handlerAddr. This
// is the realistic shape of the real driver: the trampoline itself
// (which unpacks the ucontext_t into a RawContext and calls back into
// Go through a registered dispatch table) must be provided per
// platform as machine code or cgo, since Go cannot express "install a
// function pointer the kernel invokes directly on a signal" any other
// way. Passing a Go function value here would not work: the kernel
// calls handlerAddr with the raw (int, *siginfo_t, *ucontext_t) C
// calling convention, which a Go func value's ABI does not match.
func RawSigaction(sig syscall.Signal, handlerAddr uintptr) error {
	var act unix.Sigaction
	act.Handler = handlerAddr
	act.Flags = unix.SA_SIGINFO | unix.SA_ONSTACK
	if err := unix.Sigemptyset(&act.Mask); err != nil {
		return fmt.Errorf("trapdriver: sigemptyset: %w", err)
	}
	return unix.Sigaction(int(sig), &act, nil)
}
