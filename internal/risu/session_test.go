package risu

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestExitStatus(t *testing.T) {
	cases := []struct {
		result Result
		want   int
	}{
		{ResOK, 0},
		{ResEnd, 0},
		{ResMismatchReg, 1},
		{ResBadIO, 1},
		{ResSigBus, 1},
	}
	for _, c := range cases {
		if got := c.result.ExitStatus(); got != c.want {
			t.Errorf("%v.ExitStatus() = %d, want %d", c.result, got, c.want)
		}
	}
}

func TestReportOutcome(t *testing.T) {
	s := &Session{Checkpoint: 3, IllegalCnt: 1}

	var buf bytes.Buffer
	s.ReportOutcome(&buf, ResEnd, nil)
	if !strings.Contains(buf.String(), "3 checkpoints") || !strings.Contains(buf.String(), "1 illegal") {
		t.Errorf("ResEnd report = %q, missing checkpoint/illegal counts", buf.String())
	}

	buf.Reset()
	s.ReportOutcome(&buf, ResMismatchReg, &Fault{Result: ResMismatchReg, PC: 0x400})
	if !strings.Contains(buf.String(), "0x400") {
		t.Errorf("mismatch report = %q, want it to mention the fault PC", buf.String())
	}

	buf.Reset()
	s.ReportOutcome(&buf, ResMismatchOp, &Fault{
		Result: ResMismatchOp, PC: 0x500,
		LocalOp: OpCompare, WireOp: OpCompareMem, HaveOps: true,
	})
	if !strings.Contains(buf.String(), "local=COMPARE") || !strings.Contains(buf.String(), "wire=COMPAREMEM") {
		t.Errorf("op mismatch report = %q, want both op names named", buf.String())
	}
}

func TestReportMismatchNilSlots(t *testing.T) {
	s := &Session{}
	var buf bytes.Buffer
	s.ReportMismatch(&buf)
	if buf.Len() != 0 {
		t.Errorf("expected no output with unset register slots, got %q", buf.String())
	}
}

func TestReportMismatchDumpsDiff(t *testing.T) {
	s := &Session{}
	s.Regs.Set(SlotMaster, &fakeReginfo{v: 1})
	s.Regs.Set(SlotApprentice, &recordingReginfo{fakeReginfo: fakeReginfo{v: 2}})

	var buf bytes.Buffer
	s.ReportMismatch(&buf)
	if !strings.Contains(buf.String(), "mismatch") {
		t.Errorf("ReportMismatch output = %q, want it to call DumpMismatch", buf.String())
	}
}

// recordingReginfo wraps fakeReginfo so DumpMismatch can be observed
// without changing fakeReginfo's shared behavior in protocol_test.go.
type recordingReginfo struct {
	fakeReginfo
}

func (r *recordingReginfo) DumpMismatch(other Reginfo, w io.Writer) {
	w.Write([]byte("mismatch"))
}
