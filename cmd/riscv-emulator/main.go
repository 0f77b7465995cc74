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

// riscv-emulator boots a 64-bit little-endian RISC-V ELF image on the virt
// board (spec.md §6): `riscv-emulator <elf> [--device virtio-block:<path>]
// [-g] [--loglevel <level>]`, exit code 0 on Power-off, 1 on debugger quit,
// 2 on emulator error.
//
// CLI parsing follows S370/main.go's getopt.StringLong/BoolLong style;
// terminal raw-mode setup/teardown and the SIGINT/SIGTERM handler are
// grounded on emul/main.go's setupTerminal/restoreTerminal and signal
// goroutine, generalized to also hand the UART its keystrokes instead of
// wiring consoleIn directly into the CPU struct.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/term"

	"github.com/WanDejun/riscv-emulator/internal/debugger"
	"github.com/WanDejun/riscv-emulator/internal/emulog"
	"github.com/WanDejun/riscv-emulator/internal/machine"
)

func main() {
	os.Exit(run())
}

func run() int {
	optDevice := getopt.StringLong("device", 'd', "", "Attach a device, e.g. virtio-block:<path>")
	optDebug := getopt.BoolLong("debug", 'g', "Attach the interactive debugger in step mode")
	optLogLevel := getopt.StringLong("loglevel", 0, "info", "Log level: debug, info, warn, error")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return 0
	}
	args := getopt.Args()
	if len(args) != 1 {
		getopt.Usage()
		return machine.ExitEmulatorError
	}

	level, err := parseLevel(*optLogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return machine.ExitEmulatorError
	}
	logger := emulog.New(os.Stderr, level)

	cfg := machine.Config{ELFPath: args[0], Log: logger}
	if *optDevice != "" {
		kind, path, ok := strings.Cut(*optDevice, ":")
		if !ok || kind != "virtio-block" {
			fmt.Fprintf(os.Stderr, "unrecognized --device %q (expected virtio-block:<path>)\n", *optDevice)
			return machine.ExitEmulatorError
		}
		cfg.BlockImagePath = path
	}

	m, err := machine.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return machine.ExitEmulatorError
	}

	if err := setupTerminal(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return machine.ExitEmulatorError
	}
	defer restoreTerminal()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		restoreTerminal()
		os.Exit(130)
	}()

	if !*optDebug {
		// The debugger's own REPL reads stdin for commands, so only the
		// console passthrough reader competes for it in non-debug mode.
		go readStdinToUART(m)
		code, err := m.Run(nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return machine.ExitEmulatorError
		}
		return code
	}

	repl := debugger.NewREPL(m, os.Stdout)
	defer repl.Close()
	code, err := m.Run(repl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return machine.ExitEmulatorError
	}
	return code
}

// readStdinToUART is the host side of the UART's RX FIFO (spec.md §4.2):
// a non-blocking passthrough from the host's stdin into the guest console,
// grounded on emul/cpu.go's consoleIn/readConsole wiring. It runs until
// stdin closes or errors, since main() exits via Run's return rather than
// this goroutine's completion.
func readStdinToUART(m *machine.Machine) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			m.PushInput(buf[0])
		}
		if err != nil {
			return
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unrecognized --loglevel %q", s)
}

var savedTermState *term.State

// setupTerminal puts stdin in raw mode so the UART sees keystrokes
// unbuffered and unechoed, matching a real 16550 console.
func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to get terminal state: %w", err)
	}
	savedTermState = state
	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}
