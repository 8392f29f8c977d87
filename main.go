/*
 * risu - Main process.
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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	_ "github.com/rcornwell/risu/arch/aarch64"
	_ "github.com/rcornwell/risu/arch/loongarch64"
	_ "github.com/rcornwell/risu/arch/ppc64"
	_ "github.com/rcornwell/risu/arch/s390x"

	"github.com/rcornwell/risu/arch"
	"github.com/rcornwell/risu/internal/logger"
	"github.com/rcornwell/risu/internal/risu"
	"github.com/rcornwell/risu/internal/trapdriver"
)

var Logger *slog.Logger

func main() {
	optArch := getopt.StringLong("arch", 'a', "", "Target architecture ("+strings.Join(arch.Names(), ", ")+")")
	optMaster := getopt.BoolLong("master", 'm', "Run as the reference (master) side")
	optTrace := getopt.StringLong("trace", 't', "", "Record/replay a trace file instead of a live connection ('-' for stdio)")
	optHost := getopt.StringLong("host", 0, "localhost", "Host to connect to (apprentice) or listen on (master)")
	optPort := getopt.IntLong("port", 'p', 9191, "TCP port for the live connection")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	archOpts := map[string]*string{}
	for _, name := range arch.Names() {
		c, _ := arch.Get(name)
		for _, opt := range c.LongOpts() {
			archOpts[opt] = getopt.StringLong(opt, 0, "", "Architecture option ("+name+")")
		}
	}

	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "risu:", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, false))
	slog.SetDefault(Logger)

	if *optArch == "" {
		fmt.Fprintln(os.Stderr, "risu: --arch is required")
		os.Exit(1)
	}
	cpuCap, ok := arch.Get(*optArch)
	if !ok {
		fmt.Fprintf(os.Stderr, "risu: unknown architecture %q (have: %s)\n", *optArch, strings.Join(arch.Names(), ", "))
		os.Exit(1)
	}
	for _, opt := range cpuCap.LongOpts() {
		if v := archOpts[opt]; *v != "" {
			if err := cpuCap.ProcessOpt(opt, *v); err != nil {
				fmt.Fprintln(os.Stderr, "risu:", err)
				os.Exit(1)
			}
		}
	}

	imagePath := getopt.Args()
	if len(imagePath) != 1 {
		fmt.Fprintln(os.Stderr, "risu: expected exactly one test image argument")
		os.Exit(1)
	}

	role := trapdriver.RoleApprentice
	if *optMaster {
		role = trapdriver.RoleMaster
	}

	conn, session, err := connect(role, cpuCap, *optTrace, *optHost, *optPort)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	if err := trapdriver.InstallAltStack(); err != nil {
		Logger.Warn("could not install alternate signal stack", "error", err.Error())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		Logger.Info("interrupted")
		os.Exit(1)
	}()

	Logger.Info("risu started", "arch", cpuCap.Name(), "role", roleName(role), "image", imagePath[0])

	driver := trapdriver.New(role, session, cpuCap, 0, Logger)
	result, fault := runImage(driver, imagePath[0])

	session.ReportOutcome(os.Stderr, result, fault)
	if result == risu.ResMismatchReg || result == risu.ResMismatchMem {
		session.ReportMismatch(os.Stderr)
	}
	os.Exit(result.ExitStatus())
}

func roleName(r trapdriver.Role) string {
	if r == trapdriver.RoleMaster {
		return "master"
	}
	return "apprentice"
}

type closer interface {
	Close() error
}

// writerOnlyConn adapts a trace writer, which is only ever written to,
// to the closer interface connect returns.
type writerOnlyConn struct {
	w io.WriteCloser
}

func (w *writerOnlyConn) Close() error { return w.w.Close() }

// connect opens the transport for this run: a trace file when --trace
// is given, otherwise a live TCP connection in the role-appropriate
// direction.
func connect(role trapdriver.Role, cpuCap risu.Capability, tracePath, host string, port int) (closer, *risu.Session, error) {
	if tracePath != "" {
		if role == trapdriver.RoleMaster {
			w, err := risu.OpenTraceWriter(tracePath)
			if err != nil {
				return nil, nil, err
			}
			session := risu.NewSession(traceWriter{w}, cpuCap, risu.ProcessMemory{}, Logger)
			session.NoReply = true
			return &writerOnlyConn{w}, session, nil
		}
		r, err := risu.OpenTraceReader(tracePath)
		if err != nil {
			return nil, nil, err
		}
		session := risu.NewSession(risu.TraceReadWriter{Reader: r}, cpuCap, risu.ProcessMemory{}, Logger)
		return r, session, nil
	}

	if role == trapdriver.RoleMaster {
		conn, err := risu.Listen(host, port)
		if err != nil {
			return nil, nil, err
		}
		return conn, risu.NewSession(conn, cpuCap, risu.ProcessMemory{}, Logger), nil
	}

	conn, err := risu.Dial(host, port)
	if err != nil {
		return nil, nil, err
	}
	return conn, risu.NewSession(conn, cpuCap, risu.ProcessMemory{}, Logger), nil
}

// traceWriter adapts a plain io.WriteCloser to io.ReadWriter for a
// Session recording a trace: Read is never called, since NoReply
// suppresses SendRegisterInfo's response-byte wait.
type traceWriter struct {
	io.WriteCloser
}

func (traceWriter) Read([]byte) (int, error) {
	return 0, io.EOF
}

// platformRunner maps imagePath into this process, installs
// trapdriver.RawSigaction handlers whose trampoline turns each trap's
// ucontext_t into a risu.RawContext, and drives driver.HandleSigill/
// HandleSigbus against the image until a terminal Outcome comes back.
// No build in this tree supplies one yet: that loader and trampoline
// are the platform-specific machine code spec §1 calls out as an
// external collaborator, and Go cannot express the trampoline's
// (int, *siginfo_t, *ucontext_t) entry point without it. A platform
// build wires this var from its own init().
var platformRunner func(driver *trapdriver.Driver, imagePath string) (risu.Result, *risu.Fault)

// runImage executes the test image under the trap driver until a
// terminal result is reached. With no platformRunner wired, it still
// subscribes to the real trap channel trapdriver.NotifyTraps exposes
// so the rest of the process is exercised against a genuine signal
// source, but it cannot turn a bare os.Signal into a risu.RawContext,
// so it reports ResUnsupported instead of claiming a false ResEnd.
func runImage(driver *trapdriver.Driver, imagePath string) (risu.Result, *risu.Fault) {
	if _, err := os.Stat(imagePath); err != nil {
		return risu.ResBadIO, &risu.Fault{Result: risu.ResBadIO}
	}

	if platformRunner != nil {
		return platformRunner(driver, imagePath)
	}

	traps, stop := trapdriver.NotifyTraps()
	defer stop()

	select {
	case sig := <-traps:
		Logger.Error("risu: trap received with no platform context reader wired to decode it",
			"signal", sig.String(), "arch", driver.Cap.Name())
	default:
	}

	Logger.Error("risu: no platform image loader wired for this build; cannot execute image",
		"arch", driver.Cap.Name(), "image", imagePath)
	return risu.ResUnsupported, &risu.Fault{Result: risu.ResUnsupported}
}
