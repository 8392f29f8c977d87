/*
 * risu - Same-process memory block access (SETMEMBLOCK/COMPAREMEM).
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

import "unsafe"

// ProcessMemory implements MemoryAccessor by reading and writing this
// process's own address space directly: the test image is mapped and
// executed in the same process as the driver (not a forked, ptrace'd
// child), so the memory block SETMEMBLOCK names is just an address
// already valid here. There is no syscall boundary to cross; addr is a
// raw pointer value handed over by the image through its parameter
// register, exactly as the image's own loads and stores would use it.
type ProcessMemory struct{}

// ReadBlock copies length bytes starting at addr out of this process's
// memory. addr must name memory the test image itself can legally
// address; risu trusts the image the same way the image's own
// instructions do.
func (ProcessMemory) ReadBlock(addr uint64, length int) ([]byte, error) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), length)
	out := make([]byte, length)
	copy(out, src)
	return out, nil
}

// WriteBlock copies data into this process's memory starting at addr.
func (ProcessMemory) WriteBlock(addr uint64, data []byte) error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data))
	copy(dst, data)
	return nil
}
