/*
 * risu - Wire codec.
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
	"fmt"
)

// HeaderSize is the on-the-wire size of a TraceHeader: magic, pc,
// risu_op and size, each a 32-bit field except pc which is emitted as
// 64 bits regardless of the target's pointer width (the high half is
// simply zero on 32-bit architectures). Keeping a fixed wire width means
// a trace recorded on one pointer width replays cleanly on another.
const HeaderSize = 4 + 8 + 4 + 4

// TraceHeader prefixes every protocol message (spec Data Model, §4.4).
// All multi-byte fields travel in architecture byte order; a receiver
// detects the producer's order by checking whether Magic reads as
// RisuMagic or its byte-swapped form.
type TraceHeader struct {
	Magic  uint32
	PC     uint64 // diagnostic only: image-relative offset of the trap
	RisuOp int32
	Size   uint32
}

// Encode serializes h into buf (which must be at least HeaderSize bytes)
// using order as the wire byte order.
func (h TraceHeader) Encode(buf []byte, order binary.ByteOrder) {
	order.PutUint32(buf[0:4], h.Magic)
	order.PutUint64(buf[4:12], h.PC)
	order.PutUint32(buf[12:16], uint32(h.RisuOp))
	order.PutUint32(buf[16:20], h.Size)
}

// decodeHeader reads a TraceHeader out of buf using order, with no
// attempt to validate the magic — callers check that separately so they
// can decide whether to retry with the opposite order.
func decodeHeader(buf []byte, order binary.ByteOrder) TraceHeader {
	return TraceHeader{
		Magic:  order.Uint32(buf[0:4]),
		PC:     order.Uint64(buf[4:12]),
		RisuOp: int32(order.Uint32(buf[12:16])),
		Size:   order.Uint32(buf[16:20]),
	}
}

// swappedMagic is RisuMagic with its bytes reversed; detecting it on the
// wire means the peer wrote in the opposite byte order from ours.
var swappedMagic = swap32(RisuMagic)

func swap32(v uint32) uint32 {
	return (v>>24)&0xff | (v>>8)&0xff00 | (v<<8)&0xff0000 | (v << 24)
}

// DecodeHeader parses a raw HeaderSize-byte buffer into a TraceHeader,
// auto-detecting the producer's byte order from the magic field (spec
// §4.4: "traces recorded on one endianness may be replayed against
// another"). The returned order is the one the rest of the message
// (the payload) should also be decoded with.
func DecodeHeader(buf []byte) (TraceHeader, binary.ByteOrder, error) {
	if len(buf) < HeaderSize {
		return TraceHeader{}, nil, fmt.Errorf("risu: short header: %d bytes", len(buf))
	}

	nativeMagic := binary.LittleEndian.Uint32(buf[0:4])
	switch nativeMagic {
	case RisuMagic:
		return decodeHeader(buf, binary.LittleEndian), binary.LittleEndian, nil
	case swappedMagic:
		return decodeHeader(buf, binary.BigEndian), binary.BigEndian, nil
	}

	bigMagic := binary.BigEndian.Uint32(buf[0:4])
	switch bigMagic {
	case RisuMagic:
		return decodeHeader(buf, binary.BigEndian), binary.BigEndian, nil
	case swappedMagic:
		return decodeHeader(buf, binary.LittleEndian), binary.LittleEndian, nil
	}

	return TraceHeader{}, nil, &Fault{Result: ResBadMagic}
}

// ByteOrderFor returns the binary.ByteOrder matching the architecture's
// native endianness, as reported by a Capability's BigEndian() method.
func ByteOrderFor(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
