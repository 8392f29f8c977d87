package s390x

import "testing"

func TestReginfoRoundTrip(t *testing.T) {
	r := &Reginfo{PSWMask: 0xdeadbeef, FPC: 3, PC: 0x8000}
	r.GPR[2] = 0x11
	r.FPR[0] = 0x22

	data := r.Bytes()
	got, err := decodeReginfo(data)
	if err != nil {
		t.Fatalf("decodeReginfo: %v", err)
	}
	if !got.Equal(r) {
		t.Error("round-tripped reginfo should compare equal")
	}
}

func TestAdvancePCIsNoOp(t *testing.T) {
	c := New().(*Capability)
	if got := c.AdvancePC(0x2000); got != 0x2000 {
		t.Errorf("AdvancePC should be a no-op on s390x, got 0x%x", got)
	}
}

func TestGetRisuOp(t *testing.T) {
	c := New().(*Capability)
	insn := uint32(risuKeyHigh&0xffff0000) | 3
	if got := c.GetRisuOp(insn); int(got) != 3 {
		t.Errorf("GetRisuOp = %v, want op 3", got)
	}
}
