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

// Package debugger is a thin line-oriented REPL front-end for the
// emulator core: step, continue, regs, mem, break, quit. It decodes
// commands and calls back into the machine's public interface; it owns
// no architectural state of its own (spec.md §4.12).
//
// Grounded on S370/command/reader's ConsoleReader: a liner.Liner prompt
// loop dispatching each line to a command handler, generalized from
// S370's parser.ProcessCommand table to this package's own command set.
package debugger

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/WanDejun/riscv-emulator/internal/disasm"
	"github.com/WanDejun/riscv-emulator/internal/hart"
)

// Machine is the subset of the core loop the debugger drives. Kept
// narrow so this package never reaches into bus/hart internals directly.
type Machine interface {
	Step() error
	Registers() *hart.Hart
	ReadPhys(addr uint64, length int) ([]byte, error)
	Halted() bool
}

// REPL is the liner-backed observer the core loop drives in step mode
// (satisfying machine.StepObserver structurally via BeforeFetch/AfterStep/
// Quit, without this package importing machine): it stops at BeforeFetch
// and prompts for a command, running the machine until the next stop.
type REPL struct {
	m        Machine
	out      io.Writer
	line     *liner.State
	breaks   map[uint64]bool
	stepping bool
	quit     bool
}

func NewREPL(m Machine, out io.Writer) *REPL {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return &REPL{m: m, out: out, line: l, breaks: map[uint64]bool{}, stepping: true}
}

func (r *REPL) Close() { r.line.Close() }

// Quit reports whether the user asked to quit the debugger (the core
// loop should stop running and exit with the debugger-quit status).
func (r *REPL) Quit() bool { return r.quit }

// BeforeFetch stops for a command if stepping is active or PC hit a
// breakpoint; otherwise it returns immediately and lets the hart run.
func (r *REPL) BeforeFetch(h *hart.Hart) {
	if r.quit {
		return
	}
	if !r.stepping && !r.breaks[h.PC] {
		return
	}
	r.stepping = true
	r.prompt(h)
}

func (r *REPL) AfterStep(h *hart.Hart, trapped bool) {
	if trapped && r.out != nil {
		fmt.Fprintf(r.out, "trap at pc=%#x (vector: %s)\n", h.PC, r.disasmAt(h.PC))
	}
}

func (r *REPL) prompt(h *hart.Hart) {
	fmt.Fprintf(r.out, "%#016x: %s\n", h.PC, r.disasmAt(h.PC))
	for {
		line, err := r.line.Prompt(fmt.Sprintf("(pc=%#x) dbg> ", h.PC))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				r.quit = true
				return
			}
			r.quit = true
			return
		}
		r.line.AppendHistory(line)
		if r.dispatch(strings.Fields(line), h) {
			return
		}
	}
}

// dispatch runs one command, returning true when the prompt loop should
// stop waiting (the hart is about to execute again, or the user quit).
func (r *REPL) dispatch(fields []string, h *hart.Hart) bool {
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "step", "s":
		r.stepping = true
		return true
	case "continue", "c":
		r.stepping = false
		return true
	case "regs", "r":
		r.printRegs(h)
		return false
	case "mem", "m":
		r.printMem(fields)
		return false
	case "break", "b":
		r.setBreak(fields)
		return false
	case "quit", "q":
		r.quit = true
		return true
	default:
		fmt.Fprintf(r.out, "unknown command %q (try step, continue, regs, mem <addr> <len>, break <addr>, quit)\n", fields[0])
		return false
	}
}

func (r *REPL) printRegs(h *hart.Hart) {
	fmt.Fprintf(r.out, "pc=%#016x priv=%s\n", h.PC, h.Priv)
	for i := uint32(0); i < 32; i += 4 {
		fmt.Fprintf(r.out, "x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x x%-2d=%#016x\n",
			i, h.GetX(i), i+1, h.GetX(i+1), i+2, h.GetX(i+2), i+3, h.GetX(i+3))
	}
}

func (r *REPL) printMem(fields []string) {
	if len(fields) != 3 {
		fmt.Fprintln(r.out, "usage: mem <addr> <len>")
		return
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
	if err != nil {
		fmt.Fprintf(r.out, "bad address: %v\n", err)
		return
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		fmt.Fprintf(r.out, "bad length: %v\n", err)
		return
	}
	data, err := r.m.ReadPhys(addr, n)
	if err != nil {
		fmt.Fprintf(r.out, "read failed: %v\n", err)
		return
	}
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(r.out, "%#010x: % x\n", addr+uint64(i), data[i:end])
	}
}

func (r *REPL) setBreak(fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(r.out, "usage: break <addr>")
		return
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
	if err != nil {
		fmt.Fprintf(r.out, "bad address: %v\n", err)
		return
	}
	r.breaks[addr] = true
	fmt.Fprintf(r.out, "breakpoint set at %#x\n", addr)
}

// disasmAt fetches the 4 bytes at pc and disassembles them for the step
// prompt's display; a read fault (e.g. pc outside any mapping) falls back
// to a placeholder rather than aborting the prompt.
func (r *REPL) disasmAt(pc uint64) string {
	data, err := r.m.ReadPhys(pc, 4)
	if err != nil || len(data) != 4 {
		return "?"
	}
	raw := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	return disasm.Disassemble(raw)
}
