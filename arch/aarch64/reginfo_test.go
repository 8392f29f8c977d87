package aarch64

import "testing"

func TestReginfoRoundTrip(t *testing.T) {
	r := &Reginfo{PState: 0x20000000, FPSR: 1, FPCR: 2, PC: 0x400000}
	r.GPR[0] = 0x1122334455667788
	r.FPHi[3] = 0xdeadbeef
	r.FPLo[3] = 0xcafef00d

	data := r.Bytes()
	got, err := decodeReginfo(data, 0)
	if err != nil {
		t.Fatalf("decodeReginfo: %v", err)
	}
	if !got.Equal(r) {
		t.Error("round-tripped reginfo should compare equal to the original")
	}
	if got.GPR[0] != r.GPR[0] {
		t.Errorf("GPR[0] = 0x%x, want 0x%x", got.GPR[0], r.GPR[0])
	}
}

func TestReginfoEqualIgnoresNonFlagPState(t *testing.T) {
	r := &Reginfo{PState: 0xa0000000}
	o := &Reginfo{PState: 0xa0000003} // interrupt-mask bits differ
	if !r.Equal(o) {
		t.Error("non-NZCV PSTATE bits should not cause a mismatch")
	}

	o.PState = 0xb0000000 // a flag bit differs
	if r.Equal(o) {
		t.Error("differing NZCV flags should cause a mismatch")
	}
}

func TestGetRisuOp(t *testing.T) {
	c := New().(*Capability)
	for op := 0; op <= 0xf && op <= 7; op++ {
		insn := uint32(risuKey | op)
		if got := c.GetRisuOp(insn); int(got) != op {
			t.Errorf("GetRisuOp(0x%x) = %v, want %d", insn, got, op)
		}
	}
}
