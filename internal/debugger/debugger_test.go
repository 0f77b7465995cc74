// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package debugger

import (
	"bytes"
	"testing"

	"github.com/WanDejun/riscv-emulator/internal/hart"
)

type fakeMachine struct {
	halted bool
}

func (f *fakeMachine) Step() error              { return nil }
func (f *fakeMachine) Registers() *hart.Hart     { return nil }
func (f *fakeMachine) Halted() bool              { return f.halted }
func (f *fakeMachine) ReadPhys(addr uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := range out {
		out[i] = byte(addr) + byte(i)
	}
	return out, nil
}

func TestDispatchQuitStopsPrompting(t *testing.T) {
	var out bytes.Buffer
	r := NewREPL(&fakeMachine{}, &out)
	h := &hart.Hart{}
	stop := r.dispatch([]string{"quit"}, h)
	if !stop || !r.Quit() {
		t.Fatal("quit command should stop the prompt loop and set Quit()")
	}
}

func TestDispatchStepAndContinueToggleStepping(t *testing.T) {
	var out bytes.Buffer
	r := NewREPL(&fakeMachine{}, &out)
	r.dispatch([]string{"continue"}, &hart.Hart{})
	if r.stepping {
		t.Fatal("continue should clear stepping")
	}
	r.dispatch([]string{"step"}, &hart.Hart{})
	if !r.stepping {
		t.Fatal("step should set stepping")
	}
}

func TestSetBreakRegistersAddress(t *testing.T) {
	var out bytes.Buffer
	r := NewREPL(&fakeMachine{}, &out)
	r.dispatch([]string{"break", "0x80000000"}, &hart.Hart{})
	if !r.breaks[0x80000000] {
		t.Fatal("expected breakpoint at 0x80000000")
	}
}

func TestBeforeFetchSkipsWhenRunningAndNoBreakpoint(t *testing.T) {
	var out bytes.Buffer
	r := NewREPL(&fakeMachine{}, &out)
	r.stepping = false
	h := &hart.Hart{PC: 0x1000}
	r.BeforeFetch(h) // should return immediately: no prompt, no hang
	if out.Len() != 0 {
		t.Fatalf("expected no output without a breakpoint hit, got %q", out.String())
	}
}
