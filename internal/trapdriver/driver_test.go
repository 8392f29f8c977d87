package trapdriver

import (
	"io"
	"net"
	"testing"

	"github.com/rcornwell/risu/internal/risu"
)

type testReginfo struct{ v uint64 }

func (r *testReginfo) Equal(other risu.Reginfo) bool {
	o, ok := other.(*testReginfo)
	return ok && o.v == r.v
}
func (r *testReginfo) Bytes() []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(r.v >> (8 * i))
	}
	return buf
}
func (r *testReginfo) Dump(w io.Writer)                       {}
func (r *testReginfo) DumpMismatch(other risu.Reginfo, w io.Writer) {}

type testCapability struct{}

func (testCapability) Name() string    { return "test" }
func (testCapability) ReginfoSize() int { return 8 }
func (testCapability) ReginfoInit(ctx risu.RawContext) risu.Reginfo {
	return &testReginfo{v: ctx.GPR(0)}
}
func (testCapability) ReginfoFromBytes(data []byte) (risu.Reginfo, error) {
	var v uint64
	for i := 0; i < 8 && i < len(data); i++ {
		v |= uint64(data[i]) << (8 * i)
	}
	return &testReginfo{v: v}, nil
}
func (testCapability) GetRisuOp(insn uint32) risu.RisuOp {
	if insn > uint32(risu.OpSigill) {
		return risu.OpSigill
	}
	return risu.RisuOp(insn)
}
func (testCapability) GetPC(ctx risu.RawContext, base uint64) uint64 { return ctx.PC() - base }
func (testCapability) ParamReg(ctx risu.RawContext) uint64           { return ctx.GPR(0) }
func (testCapability) AdvancePC(pc uint64) uint64                    { return pc + 4 }
func (testCapability) BigEndian() bool                               { return false }
func (testCapability) LongOpts() []string                            { return nil }
func (testCapability) ProcessOpt(string, string) error               { return nil }

func TestHandleSigillTestEnd(t *testing.T) {
	masterConn, apprenticeConn := net.Pipe()
	defer masterConn.Close()
	defer apprenticeConn.Close()

	cap := testCapability{}
	masterSession := risu.NewSession(masterConn, cap, nil, nil)
	apprenticeSession := risu.NewSession(apprenticeConn, cap, nil, nil)

	masterDriver := New(RoleMaster, masterSession, cap, 0, nil)
	apprenticeDriver := New(RoleApprentice, apprenticeSession, cap, 0, nil)

	ctx := NewSimulatedContext()
	ctx.Regs[0] = 99
	ctx.Pc = 0x1000

	outcomeCh := make(chan Outcome, 1)
	go func() {
		_, outcome := masterDriver.HandleSigill(ctx, uint32(risu.OpTestEnd))
		outcomeCh <- outcome
	}()

	_, outcome := apprenticeDriver.HandleSigill(ctx, uint32(risu.OpTestEnd))
	if outcome.Continue {
		t.Error("TESTEND should not continue")
	}
	if outcome.Result != risu.ResEnd {
		t.Errorf("apprentice result = %v, want ResEnd", outcome.Result)
	}

	masterOutcome := <-outcomeCh
	if masterOutcome.Result != risu.ResEnd {
		t.Errorf("master result = %v, want ResEnd", masterOutcome.Result)
	}
}

func TestHandleSigbus(t *testing.T) {
	cap := testCapability{}
	d := New(RoleApprentice, nil, cap, 0, nil)

	ctx := NewSimulatedContext()
	ctx.Pc = 0x2000
	ctx.Fault = 0xbad0

	outcome := d.HandleSigbus(ctx)
	if outcome.Continue {
		t.Error("SIGBUS should not continue")
	}
	if outcome.Result != risu.ResSigBus {
		t.Errorf("result = %v, want ResSigBus", outcome.Result)
	}
	if outcome.Fault == nil || outcome.Fault.PC != 0x2000 {
		t.Errorf("fault = %+v, want PC 0x2000", outcome.Fault)
	}
}
