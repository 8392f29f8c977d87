/*
 * risu - Simulated trap context for tests.
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

package trapdriver

// SimulatedContext is a risu.RawContext backed by plain arrays and a map, standing
// in for a real trap's register state in tests so the checkpoint
// engine and the ISA Capability implementations can be exercised
// without a real SIGILL.
type SimulatedContext struct {
	Regs   [32]uint64
	Fprs   [32]uint64
	Extras map[string]uint64
	Pc     uint64
	Fault  uint64
}

// NewSimulatedContext returns a zeroed SimulatedContext ready for a
// test to populate.
func NewSimulatedContext() *SimulatedContext {
	return &SimulatedContext{Extras: make(map[string]uint64)}
}

func (c *SimulatedContext) GPR(n int) uint64 {
	if n < 0 || n >= len(c.Regs) {
		return 0
	}
	return c.Regs[n]
}

func (c *SimulatedContext) PC() uint64 { return c.Pc }

func (c *SimulatedContext) FPR(n int) uint64 {
	if n < 0 || n >= len(c.Fprs) {
		return 0
	}
	return c.Fprs[n]
}

// Extra satisfies risu.RawContext.
func (c *SimulatedContext) Extra(name string) uint64 { return c.Extras[name] }

func (c *SimulatedContext) FaultAddr() uint64 { return c.Fault }
