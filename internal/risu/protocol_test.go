package risu

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
)

// fakeMemory is a minimal MemoryAccessor for protocol tests: addr is
// just an offset into a single backing buffer.
type fakeMemory struct {
	buf []byte
}

func (m *fakeMemory) ReadBlock(addr uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, m.buf[addr:])
	return out, nil
}

func (m *fakeMemory) WriteBlock(addr uint64, data []byte) error {
	copy(m.buf[addr:], data)
	return nil
}

// fakeContext is a minimal RawContext for protocol tests.
type fakeContext struct {
	gpr   [4]uint64
	pc    uint64
	extra map[string]uint64
}

func (c *fakeContext) GPR(n int) uint64 {
	if n < 0 || n >= len(c.gpr) {
		return 0
	}
	return c.gpr[n]
}
func (c *fakeContext) PC() uint64       { return c.pc }
func (c *fakeContext) FPR(int) uint64   { return 0 }
func (c *fakeContext) FaultAddr() uint64 { return 0 }
func (c *fakeContext) Extra(name string) uint64 {
	if c.extra == nil {
		return 0
	}
	return c.extra[name]
}

// fakeReginfo is a minimal Reginfo for protocol tests: a single 8-byte
// value.
type fakeReginfo struct {
	v uint64
}

func (r *fakeReginfo) Equal(other Reginfo) bool {
	o, ok := other.(*fakeReginfo)
	return ok && o.v == r.v
}
func (r *fakeReginfo) Bytes() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, r.v)
	return buf
}
func (r *fakeReginfo) Dump(io.Writer)                 {}
func (r *fakeReginfo) DumpMismatch(Reginfo, io.Writer) {}

// fakeCapability is a minimal Capability for protocol tests.
type fakeCapability struct{}

func (fakeCapability) Name() string    { return "fake" }
func (fakeCapability) ReginfoSize() int { return 8 }
func (fakeCapability) ReginfoInit(ctx RawContext) Reginfo {
	return &fakeReginfo{v: ctx.GPR(0)}
}
func (fakeCapability) ReginfoFromBytes(data []byte) (Reginfo, error) {
	if len(data) != 8 {
		return nil, &Fault{Result: ResBadSizeReginfo}
	}
	return &fakeReginfo{v: binary.LittleEndian.Uint64(data)}, nil
}
func (fakeCapability) GetRisuOp(insn uint32) RisuOp {
	if insn > uint32(OpSigill) {
		return OpSigill
	}
	return RisuOp(insn)
}
func (fakeCapability) GetPC(ctx RawContext, base uint64) uint64 { return ctx.PC() - base }
func (fakeCapability) ParamReg(ctx RawContext) uint64           { return ctx.GPR(0) }
func (fakeCapability) AdvancePC(pc uint64) uint64               { return pc + 4 }
func (fakeCapability) BigEndian() bool                          { return false }
func (fakeCapability) LongOpts() []string                       { return nil }
func (fakeCapability) ProcessOpt(string, string) error          { return nil }

func TestProtocolCompareMatch(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	ctx := &fakeContext{gpr: [4]uint64{42, 0, 0, 0}}

	resultCh := make(chan Result, 1)
	go func() {
		r, _ := masterSession.SendRegisterInfo(ctx, 0, OpCompare, 0x100)
		resultCh <- r
	}()

	got, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpCompare, 0x100)
	if err != nil {
		t.Fatalf("RecvAndCompareRegisterInfo: %v", err)
	}
	if got != ResOK {
		t.Errorf("apprentice result = %v, want ResOK", got)
	}
	if mr := <-resultCh; mr != ResOK {
		t.Errorf("master result = %v, want ResOK", mr)
	}
}

func TestProtocolCompareMismatch(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	masterCtx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}
	apprenticeCtx := &fakeContext{gpr: [4]uint64{2, 0, 0, 0}}

	go masterSession.SendRegisterInfo(masterCtx, 0, OpCompare, 0x100)

	got, err := apprenticeSession.RecvAndCompareRegisterInfo(apprenticeCtx, OpCompare, 0x100)
	if got != ResMismatchReg {
		t.Errorf("result = %v, want ResMismatchReg", got)
	}
	if err == nil {
		t.Error("expected non-nil error for mismatch")
	}
}

func TestProtocolOpMismatch(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	ctx := &fakeContext{gpr: [4]uint64{7, 0, 0, 0}}

	go masterSession.SendRegisterInfo(ctx, 0, OpCompare, 0x100)

	got, _ := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpTestEnd, 0x100)
	if got != ResMismatchOp {
		t.Errorf("result = %v, want ResMismatchOp", got)
	}
}

func TestProtocolTestEnd(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	ctx := &fakeContext{gpr: [4]uint64{9, 0, 0, 0}}

	masterResult := make(chan Result, 1)
	go func() {
		r, _ := masterSession.SendRegisterInfo(ctx, 0, OpTestEnd, 0x200)
		masterResult <- r
	}()

	got, _ := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpTestEnd, 0x200)
	if got != ResEnd {
		t.Errorf("apprentice result = %v, want ResEnd", got)
	}
	if mr := <-masterResult; mr != ResEnd {
		t.Errorf("master result = %v, want ResEnd", mr)
	}
}

func TestProtocolSetupModeSuppressesReport(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	ctx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}

	beginDone := make(chan struct{})
	go func() {
		masterSession.SendRegisterInfo(ctx, 0, OpSetupBegin, 0)
		close(beginDone)
	}()
	if r, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpSetupBegin, 0); r != ResOK || err != nil {
		t.Fatalf("SETUPBEGIN: result=%v err=%v", r, err)
	}
	<-beginDone

	if !masterSession.IsSetup || !apprenticeSession.IsSetup {
		t.Fatal("expected both sessions to be in setup mode")
	}

	// A SIGILL during setup is counted but not reported over the wire;
	// no frame is exchanged for either side.
	r, err := masterSession.SendRegisterInfo(ctx, 0, OpSigill, 0x50)
	if r != ResOK || err != nil {
		t.Fatalf("SIGILL during setup: result=%v err=%v", r, err)
	}
	if masterSession.IllegalCnt != 1 {
		t.Errorf("IllegalCnt = %d, want 1", masterSession.IllegalCnt)
	}
	if masterSession.Checkpoint != 1 {
		t.Errorf("checkpoint count advanced during setup-suppressed op: got %d", masterSession.Checkpoint)
	}
}

// TestProtocolSetupModeStillExchangesNonSigill verifies that only SIGILL
// is suppressed during setup: a COMPARE checkpoint inside a
// SETUPBEGIN..SETUPEND block is still framed, sent, and counted, and a
// register mismatch during that window is not reported as ResMismatchReg.
func TestProtocolSetupModeStillExchangesNonSigill(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterSession := NewSession(masterConn, cap, nil, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)

	ctx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}

	go masterSession.SendRegisterInfo(ctx, 0, OpSetupBegin, 0)
	if _, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpSetupBegin, 0); err != nil {
		t.Fatalf("SETUPBEGIN: %v", err)
	}

	masterCtx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}
	apprenticeCtx := &fakeContext{gpr: [4]uint64{2, 0, 0, 0}}

	resultCh := make(chan Result, 1)
	go func() {
		r, _ := masterSession.SendRegisterInfo(masterCtx, 0, OpCompare, 0x60)
		resultCh <- r
	}()
	got, err := apprenticeSession.RecvAndCompareRegisterInfo(apprenticeCtx, OpCompare, 0x60)
	if err != nil {
		t.Fatalf("COMPARE during setup: %v", err)
	}
	if got != ResOK {
		t.Errorf("COMPARE during setup with differing registers = %v, want ResOK (comparison suppressed)", got)
	}
	if mr := <-resultCh; mr != ResOK {
		t.Errorf("master COMPARE during setup = %v, want ResOK", mr)
	}
	if apprenticeSession.Checkpoint != 2 {
		t.Errorf("checkpoint count = %d, want 2 (SETUPBEGIN + COMPARE both exchanged)", apprenticeSession.Checkpoint)
	}
}

func TestProtocolBadSizeHeaderRejectedBeforeRead(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)
	ctx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}

	hdr := TraceHeader{Magic: RisuMagic, PC: 0x10, RisuOp: int32(OpCompare), Size: 4096}
	buf := make([]byte, HeaderSize)
	hdr.Encode(buf, ByteOrderFor(cap.BigEndian()))

	done := make(chan struct{})
	go func() {
		masterConn.Write(buf)
		// No payload follows: the apprentice must reject on the header
		// alone, never attempting to read 4096 bytes that were never sent.
		// Drain the apprentice's response byte, as a master would.
		var resp [1]byte
		masterConn.Read(resp[:])
		close(done)
	}()

	got, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpCompare, 0x10)
	<-done
	if got != ResBadSizeHeader {
		t.Errorf("result = %v, want ResBadSizeHeader", got)
	}
	if err == nil {
		t.Error("expected non-nil error")
	}
}

func TestProtocolBadSizeZeroRejectsNonzeroControlPayload(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	apprenticeSession := NewSession(apprenticeConn, cap, nil, nil)
	ctx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}

	hdr := TraceHeader{Magic: RisuMagic, PC: 0x20, RisuOp: int32(OpSetMemblock), Size: 8}
	buf := make([]byte, HeaderSize)
	hdr.Encode(buf, ByteOrderFor(cap.BigEndian()))

	done := make(chan struct{})
	go func() {
		masterConn.Write(buf)
		// No payload follows: the apprentice must reject on the header
		// alone, never attempting to read the 8 bytes it claims.
		// Drain the apprentice's response byte, as a master would.
		var resp [1]byte
		masterConn.Read(resp[:])
		close(done)
	}()

	got, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpSetMemblock, 0x20)
	<-done
	if got != ResBadSizeZero {
		t.Errorf("result = %v, want ResBadSizeZero", got)
	}
	if err == nil {
		t.Error("expected non-nil error")
	}
}

func TestProtocolBadSizeMemblockRejected(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	apprenticeSession := NewSession(apprenticeConn, cap, &fakeMemory{buf: make([]byte, MemblockLen)}, nil)
	ctx := &fakeContext{gpr: [4]uint64{1, 0, 0, 0}}

	hdr := TraceHeader{Magic: RisuMagic, PC: 0x30, RisuOp: int32(OpCompareMem), Size: MemblockLen - 1}
	buf := make([]byte, HeaderSize)
	hdr.Encode(buf, ByteOrderFor(cap.BigEndian()))

	done := make(chan struct{})
	go func() {
		masterConn.Write(buf)
		// Drain the apprentice's response byte, as a master would.
		var resp [1]byte
		masterConn.Read(resp[:])
		close(done)
	}()

	got, err := apprenticeSession.RecvAndCompareRegisterInfo(ctx, OpCompareMem, 0x30)
	<-done
	if got != ResBadSizeMemblock {
		t.Errorf("result = %v, want ResBadSizeMemblock", got)
	}
	if err == nil {
		t.Error("expected non-nil error")
	}
}

// TestProtocolCompareMemUsesStoredBase verifies COMPAREMEM resolves the
// memory block against the base a prior SETMEMBLOCK recorded, not
// whatever happens to be in the parameter register at the COMPAREMEM
// trap itself.
func TestProtocolCompareMemUsesStoredBase(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := fakeCapability{}
	masterMem := &fakeMemory{buf: bytes.Repeat([]byte{0xAB}, MemblockLen)}
	apprenticeMem := &fakeMemory{buf: bytes.Repeat([]byte{0xAB}, MemblockLen)}

	masterSession := NewSession(masterConn, cap, masterMem, nil)
	apprenticeSession := NewSession(apprenticeConn, cap, apprenticeMem, nil)

	setupCtx := &fakeContext{gpr: [4]uint64{0, 0, 0, 0}}
	go masterSession.SendRegisterInfo(setupCtx, 0, OpSetMemblock, 0)
	if _, err := apprenticeSession.RecvAndCompareRegisterInfo(setupCtx, OpSetMemblock, 0); err != nil {
		t.Fatalf("SETMEMBLOCK: %v", err)
	}

	// The COMPAREMEM trap presents an unrelated parameter register value;
	// if the implementation re-read it instead of the stored base, it
	// would index the backing buffer far out of range.
	compareCtx := &fakeContext{gpr: [4]uint64{1 << 20, 0, 0, 0}}
	resultCh := make(chan Result, 1)
	go func() {
		r, _ := masterSession.SendRegisterInfo(compareCtx, 0, OpCompareMem, 0x40)
		resultCh <- r
	}()
	got, err := apprenticeSession.RecvAndCompareRegisterInfo(compareCtx, OpCompareMem, 0x40)
	if err != nil {
		t.Fatalf("COMPAREMEM: %v", err)
	}
	if got != ResOK {
		t.Errorf("COMPAREMEM result = %v, want ResOK", got)
	}
	if mr := <-resultCh; mr != ResOK {
		t.Errorf("master COMPAREMEM result = %v, want ResOK", mr)
	}
}
