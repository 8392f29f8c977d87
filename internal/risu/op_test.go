package risu

import "testing"

func TestRisuOpString(t *testing.T) {
	cases := []struct {
		op   RisuOp
		want string
	}{
		{OpCompare, "COMPARE"},
		{OpTestEnd, "TESTEND"},
		{OpSetMemblock, "SETMEMBLOCK"},
		{OpGetMemblock, "GETMEMBLOCK"},
		{OpCompareMem, "COMPAREMEM"},
		{OpSetupBegin, "SETUPBEGIN"},
		{OpSetupEnd, "SETUPEND"},
		{OpSigill, "SIGILL"},
		{RisuOp(99), "OP(99)"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("RisuOp(%d).String() = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestIsRegisterOp(t *testing.T) {
	regOps := map[RisuOp]bool{
		OpCompare: true, OpTestEnd: true, OpSigill: true,
		OpSetMemblock: false, OpGetMemblock: false, OpCompareMem: false,
		OpSetupBegin: false, OpSetupEnd: false,
	}
	for op, want := range regOps {
		if got := op.IsRegisterOp(); got != want {
			t.Errorf("%s.IsRegisterOp() = %v, want %v", op, got, want)
		}
	}
}

func TestValidOp(t *testing.T) {
	for op := int32(OpCompare); op <= int32(OpSigill); op++ {
		if !validOp(op) {
			t.Errorf("validOp(%d) = false, want true", op)
		}
	}
	if validOp(-1) || validOp(int32(OpSigill)+1) {
		t.Error("validOp should reject out-of-range values")
	}
}

func TestResultFatal(t *testing.T) {
	if ResOK.Fatal() {
		t.Error("ResOK should not be fatal")
	}
	for _, r := range []Result{ResEnd, ResMismatchReg, ResMismatchMem, ResMismatchOp, ResBadIO, ResBadMagic, ResBadOp, ResSigBus, ResUnsupported} {
		if !r.Fatal() {
			t.Errorf("%s should be fatal", r)
		}
	}
}

func TestFaultError(t *testing.T) {
	f := &Fault{Result: ResEnd}
	if f.Error() != "risu: end of test" {
		t.Errorf("unexpected ResEnd message: %q", f.Error())
	}
	f2 := &Fault{Result: ResMismatchReg, PC: 0x100}
	want := "risu: MISMATCH_REG at image+0x100"
	if f2.Error() != want {
		t.Errorf("Error() = %q, want %q", f2.Error(), want)
	}

	f3 := &Fault{Result: ResMismatchOp, PC: 0x200, LocalOp: OpCompare, WireOp: OpCompareMem, HaveOps: true}
	want3 := "risu: MISMATCH_OP at image+0x200 (local=COMPARE wire=COMPAREMEM)"
	if f3.Error() != want3 {
		t.Errorf("Error() = %q, want %q", f3.Error(), want3)
	}
}
