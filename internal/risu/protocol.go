/*
 * risu - Master/apprentice checkpoint protocol.
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
	"encoding/binary"
	"io"
	"log/slog"
)

// MemoryAccessor lets the protocol layer read and write the bytes of a
// process's own memory block without knowing how that process's address
// space is actually reached (ProcessMemory's direct access to this
// process's own memory for a live run, a plain byte slice for tests).
type MemoryAccessor interface {
	ReadBlock(addr uint64, length int) ([]byte, error)
	WriteBlock(addr uint64, data []byte) error
}

// respOK and respEnd are the single response bytes exchanged after every
// frame; per the Open Question decision recorded in SPEC_FULL.md, any
// failure collapses to respEnd rather than naming the precise Result.
const (
	respOK  byte = 0
	respEnd byte = 1
)

// Session binds one side (master or apprentice) of a checkpoint run to
// its wire connection, its architecture Capability, and the mutable
// state (register history, memory block base, setup-mode flag, illegal
// instruction count) that persists across checkpoints.
type Session struct {
	RW  io.ReadWriter
	Cap Capability
	Mem MemoryAccessor

	order binary.ByteOrder

	Regs       RegStore
	Block      Memblock
	IsSetup    bool
	IllegalCnt int
	Checkpoint int

	// NoReply suppresses reading a response byte after each frame, for
	// a master recording a trace file rather than driving a live
	// apprentice (spec §4.9: trace mode is unidirectional).
	NoReply bool

	Log *slog.Logger
}

// NewSession constructs a Session ready to drive checkpoints for cap
// over rw, logging to log (which may be nil, in which case slog's
// default logger is used).
func NewSession(rw io.ReadWriter, cap Capability, mem MemoryAccessor, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		RW:    rw,
		Cap:   cap,
		Mem:   mem,
		order: ByteOrderFor(cap.BigEndian()),
		Log:   log,
	}
}

// noteIllegalInstruction increments the illegal-instruction counter.
// Per the Open Question decision, this always happens, whether or not
// the trap occurs while IsSetup is true — is_setup only controls
// whether the checkpoint is reported over the wire, not whether it is
// counted as having occurred.
func (s *Session) noteIllegalInstruction() {
	s.IllegalCnt++
}

// SendRegisterInfo is the master side of one checkpoint: it captures
// the current register state from ctx, frames it according to op, and
// writes it to the wire. It then reads the single response byte the
// apprentice sends back and maps anything other than respOK to ResEnd,
// per the Open Question decision on response-byte handling.
func (s *Session) SendRegisterInfo(ctx RawContext, insn uint32, op RisuOp, imagePC uint64) (Result, error) {
	if op == OpSigill {
		s.noteIllegalInstruction()
	}
	if op == OpSetupBegin {
		s.IsSetup = true
	}
	if op == OpSetupEnd {
		s.IsSetup = false
	}
	// Only SIGILL is suppressed during setup; every other checkpoint
	// (COMPARE, SETMEMBLOCK, COMPAREMEM, ...) is still exchanged, matching
	// risu.c's is_setup && op == OP_SIGILL guard.
	if s.IsSetup && op == OpSigill {
		return ResOK, nil
	}

	s.Checkpoint++

	var payload []byte
	switch {
	case op.IsRegisterOp():
		info := s.Cap.ReginfoInit(ctx)
		s.Regs.Set(SlotMaster, info)
		payload = info.Bytes()
	case op == OpSetMemblock:
		base := s.Cap.ParamReg(ctx)
		s.Block.SetBase(base)
	case op == OpGetMemblock:
		// No payload: GETMEMBLOCK carries no data between the two
		// sides; the apprentice only checks that its own base is set.
	case op == OpCompareMem:
		base, err := s.Block.Absolute(0)
		if err != nil {
			return ResBadOp, err
		}
		data, err := s.Mem.ReadBlock(base, MemblockLen)
		if err != nil {
			return ResBadIO, err
		}
		payload = data
	}

	hdr := TraceHeader{
		Magic:  RisuMagic,
		PC:     imagePC,
		RisuOp: int32(op),
		Size:   uint32(len(payload)),
	}

	buf := make([]byte, HeaderSize+len(payload))
	hdr.Encode(buf, s.order)
	copy(buf[HeaderSize:], payload)

	if _, err := s.RW.Write(buf); err != nil {
		return ResBadIO, err
	}

	if s.NoReply {
		if op == OpTestEnd {
			return ResEnd, nil
		}
		return ResOK, nil
	}

	// Always drain the apprentice's response byte, even for TESTEND:
	// the apprentice sends one for every frame it reads, and leaving it
	// unread would pair this frame's ack with the next one.
	var resp [1]byte
	if _, err := io.ReadFull(s.RW, resp[:]); err != nil {
		return ResBadIO, err
	}
	if op == OpTestEnd {
		return ResEnd, nil
	}
	if resp[0] != respOK {
		return ResEnd, nil
	}
	return ResOK, nil
}

// RecvAndCompareRegisterInfo is the apprentice side of one checkpoint:
// it reads a frame off the wire, validates it against the locally
// observed op and register state captured from ctx, and writes back the
// single response byte the master expects.
func (s *Session) RecvAndCompareRegisterInfo(ctx RawContext, localOp RisuOp, imagePC uint64) (Result, error) {
	if localOp == OpSigill {
		s.noteIllegalInstruction()
	}
	if localOp == OpSetupBegin {
		s.IsSetup = true
	}
	if localOp == OpSetupEnd {
		s.IsSetup = false
	}
	// Only SIGILL is suppressed during setup; every other checkpoint
	// still exchanges and validates its frame, matching risu.c's
	// is_setup && op == OP_SIGILL guard.
	if s.IsSetup && localOp == OpSigill {
		return ResOK, nil
	}

	s.Checkpoint++

	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(s.RW, hdrBuf); err != nil {
		s.reply(respEnd)
		return ResBadIO, err
	}

	hdr, order, err := DecodeHeader(hdrBuf)
	if err != nil {
		s.reply(respEnd)
		return ResBadMagic, err
	}
	s.order = order

	if !validOp(hdr.RisuOp) {
		s.reply(respEnd)
		return ResBadOp, &Fault{Result: ResBadOp, PC: imagePC}
	}
	wireOp := RisuOp(hdr.RisuOp)

	if wireOp != localOp {
		s.reply(respEnd)
		return ResMismatchOp, &Fault{
			Result: ResMismatchOp, PC: imagePC,
			LocalOp: localOp, WireOp: wireOp, HaveOps: true,
		}
	}

	// Validate the frame's declared size against what wireOp expects
	// before reading a single payload byte off the wire, so an oversize
	// or malformed frame is rejected instead of desynchronizing the
	// stream (risu.c's recv_register_info switch on header.size).
	if badSize := frameSizeResult(wireOp, hdr.Size, s.Cap.ReginfoSize()); badSize != ResOK {
		s.reply(respEnd)
		return badSize, &Fault{Result: badSize, PC: imagePC}
	}

	payload := make([]byte, hdr.Size)
	if hdr.Size > 0 {
		if _, err := io.ReadFull(s.RW, payload); err != nil {
			s.reply(respEnd)
			return ResBadIO, err
		}
	}

	if wireOp != localOp {
		s.reply(respEnd)
		return ResMismatchOp, &Fault{
			Result: ResMismatchOp, PC: imagePC,
			LocalOp: localOp, WireOp: wireOp, HaveOps: true,
		}
	}

	result, err := s.applyCheckpoint(ctx, wireOp, payload, imagePC)
	if result == ResOK {
		s.reply(respOK)
	} else {
		s.reply(respEnd)
	}
	return result, err
}

// frameSizeResult validates a wire frame's declared payload size against
// what op expects, mirroring risu.c's recv_register_info: register ops
// reject anything over reginfo capacity, COMPAREMEM requires exactly
// MemblockLen, and the control ops require an empty payload. It
// returns ResOK when size is acceptable for op.
func frameSizeResult(op RisuOp, size uint32, reginfoCap int) Result {
	switch {
	case op.IsRegisterOp():
		if int(size) > reginfoCap {
			return ResBadSizeHeader
		}
		return ResOK
	case op == OpCompareMem:
		if size != MemblockLen {
			return ResBadSizeMemblock
		}
		return ResOK
	case op == OpSetMemblock, op == OpGetMemblock, op == OpSetupBegin, op == OpSetupEnd:
		if size != 0 {
			return ResBadSizeZero
		}
		return ResOK
	default:
		return ResOK
	}
}

// applyCheckpoint validates one already-framed checkpoint against this
// process's own local state.
func (s *Session) applyCheckpoint(ctx RawContext, op RisuOp, payload []byte, imagePC uint64) (Result, error) {
	switch {
	case op.IsRegisterOp():
		if len(payload) != s.Cap.ReginfoSize() {
			return ResBadSizeReginfo, &Fault{Result: ResBadSizeReginfo, PC: imagePC}
		}
		remote, err := s.Cap.ReginfoFromBytes(payload)
		if err != nil {
			return ResBadSizeReginfo, err
		}
		local := s.Cap.ReginfoInit(ctx)
		s.Regs.Set(SlotMaster, remote)
		s.Regs.Set(SlotApprentice, local)
		// Register content is only compared outside setup: risu.c
		// exchanges and counts every COMPARE/TESTEND checkpoint inside a
		// SETUPBEGIN..SETUPEND block (SIGILL alone is suppressed earlier)
		// but skips reginfo_is_eq while is_setup is true.
		if !s.IsSetup && !local.Equal(remote) {
			return ResMismatchReg, &Fault{Result: ResMismatchReg, PC: imagePC}
		}
		if op == OpTestEnd {
			return ResEnd, nil
		}
		return ResOK, nil

	case op == OpSetMemblock:
		base := s.Cap.ParamReg(ctx)
		s.Block.SetBase(base)
		return ResOK, nil

	case op == OpGetMemblock:
		// GETMEMBLOCK resolves this process's own absolute memory block
		// address so the image can resume reading/writing through it, but
		// handing that address back requires overwriting the parameter
		// register in the resumed context, which RawContext (a read-only
		// seam, like its ucontext_t source) has no way to express. Only
		// the "has SETMEMBLOCK already run" check is enforced here.
		if _, err := s.Block.Absolute(0); err != nil {
			return ResBadOp, err
		}
		return ResOK, nil

	case op == OpCompareMem:
		base, err := s.Block.Absolute(0)
		if err != nil {
			return ResBadOp, err
		}
		local, err := s.Mem.ReadBlock(base, MemblockLen)
		if err != nil {
			return ResBadIO, err
		}
		if ok, _ := CompareMem(local, payload); !ok {
			return ResMismatchMem, &Fault{Result: ResMismatchMem, PC: imagePC}
		}
		return ResOK, nil

	default:
		return ResOK, nil
	}
}

func (s *Session) reply(b byte) {
	_, _ = s.RW.Write([]byte{b})
}
