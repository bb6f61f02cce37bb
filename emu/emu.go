// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package emu emulates the memory system of the target: every access is
// checked against the installed region table and rejected accesses raise
// secure faults through the isolation engine, exactly as the hardware
// would.
package emu

import (
	"fmt"

	"github.com/ccli8/uvisor/vmpu"
)

// AccessKind is the type of a memory access.
type AccessKind int

const (
	Read AccessKind = iota
	Write
	Execute
)

func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Execute:
		return "execute"
	default:
		return "invalid"
	}
}

// Machine emulates the processor memory system and system control block.
type Machine struct {
	// Monitor is the isolation engine driven by this machine.
	Monitor *vmpu.Monitor

	mem  map[uint32]byte
	mmio map[uint32]func(byte)

	// system control block state
	sfsr           uint32
	sfar           uint32
	securePriority bool
	faultsEnabled  bool

	// stack pointer registers presented on exception entry
	msp   uint32
	psp   uint32
	mspNS uint32
	pspNS uint32
}

// New returns a machine driving an isolation engine over the given table
// and collaborators. The machine acts as the engine's system control block.
func New(table *vmpu.Table, pages vmpu.PageAllocator, norm vmpu.Normalizer) *Machine {
	m := &Machine{
		mem:  make(map[uint32]byte),
		mmio: make(map[uint32]func(byte)),
	}

	m.Monitor = vmpu.New(table, pages, m, norm)

	return m
}

// SetSecurePriorityBoundary implements vmpu.SystemControl.
func (m *Machine) SetSecurePriorityBoundary() {
	m.securePriority = true
}

// EnableFaults implements vmpu.SystemControl.
func (m *Machine) EnableFaults() {
	m.faultsEnabled = true
}

// ClearSecureFaultStatus implements vmpu.SystemControl (write-one-to-clear).
func (m *Machine) ClearSecureFaultStatus(status uint32) {
	m.sfsr &^= status
}

// SecureFaultStatus returns the current fault status register value.
func (m *Machine) SecureFaultStatus() uint32 {
	return m.sfsr
}

// SecurePriority returns whether the secure priority boundary is set.
func (m *Machine) SecurePriority() bool {
	return m.securePriority
}

// FaultsEnabled returns whether the fault classes are enabled.
func (m *Machine) FaultsEnabled() bool {
	return m.faultsEnabled
}

// SetStackPointers sets the stack pointer registers presented on exception
// entry.
func (m *Machine) SetStackPointers(msp, psp, mspNS, pspNS uint32) {
	m.msp = msp
	m.psp = psp
	m.mspNS = mspNS
	m.pspNS = pspNS
}

// MapMMIO registers a write hook for a memory mapped register address.
func (m *Machine) MapMMIO(addr uint32, fn func(byte)) {
	m.mmio[addr] = fn
}

func required(kind AccessKind, secure bool) (user vmpu.ACL, sec vmpu.ACL) {
	switch kind {
	case Write:
		user, sec = vmpu.UserWrite, vmpu.SecureWrite
	case Execute:
		user, sec = vmpu.UserExecute, vmpu.SecureExecute
	default:
		user, sec = vmpu.UserRead, vmpu.SecureRead
	}

	if !secure {
		sec = 0
	}

	return
}

func (m *Machine) allowed(addr uint32, size uint32, kind AccessKind, secure bool) bool {
	slot, ok := m.Monitor.Table().Lookup(addr)

	if !ok {
		return false
	}

	if addr+size > slot.Region.End {
		return false
	}

	user, sec := required(kind, secure)

	return slot.Region.ACL&user != 0 || (sec != 0 && slot.Region.ACL&sec != 0)
}

func (m *Machine) excReturn(secure bool) (lr uint32) {
	// thread mode, process stack
	lr = 1<<vmpu.EXC_RETURN_MODE | 1<<vmpu.EXC_RETURN_SPSEL

	if secure {
		lr |= 1 << vmpu.EXC_RETURN_S
	}

	return
}

// Access performs a checked memory access at pc. A rejected access raises a
// SecureFault through the dispatcher; if the fault recovers the access is
// retried at the faulting instruction, otherwise the fatal error is
// returned and the machine is halted.
func (m *Machine) Access(addr uint32, size uint32, kind AccessKind, secure bool, pc uint32) (err error) {
	for attempt := 0; attempt < 2; attempt++ {
		if m.allowed(addr, size, kind, secure) {
			return
		}

		m.sfsr |= 1<<vmpu.SFSR_AUVIOL | 1<<vmpu.SFSR_SFARVALID
		m.sfar = addr

		ctx := &vmpu.ExcCtx{
			Exception: vmpu.SecureFault,
			ExcReturn: m.excReturn(secure),
			MSP:       m.msp,
			PSP:       m.psp,
			MSPNS:     m.mspNS,
			PSPNS:     m.pspNS,
			Status:    m.sfsr,
			Address:   m.sfar,
			Frame:     []uint32{0, 0, 0, 0, 0, 0, pc, 0},
		}

		if err = m.Monitor.Handle(ctx); err != nil {
			return fmt.Errorf("%s at %#x, %v", kind, addr, err)
		}

		m.Monitor.Resume()
	}

	return fmt.Errorf("%s at %#x not recoverable", kind, addr)
}

// ReadWord performs a checked 32-bit read.
func (m *Machine) ReadWord(addr uint32, secure bool, pc uint32) (val uint32, err error) {
	if err = m.Access(addr, 4, Read, secure, pc); err != nil {
		return
	}

	for i := uint32(0); i < 4; i++ {
		val |= uint32(m.mem[addr+i]) << (8 * i)
	}

	return
}

// WriteWord performs a checked 32-bit write.
func (m *Machine) WriteWord(addr uint32, val uint32, secure bool, pc uint32) (err error) {
	if err = m.Access(addr, 4, Write, secure, pc); err != nil {
		return
	}

	for i := uint32(0); i < 4; i++ {
		b := byte(val >> (8 * i))
		m.mem[addr+i] = b

		if fn, ok := m.mmio[addr+i]; ok {
			fn(b)
		}
	}

	return
}

// Fetch performs a checked instruction fetch.
func (m *Machine) Fetch(addr uint32, secure bool) (err error) {
	return m.Access(addr, 4, Execute, secure, addr)
}

// Peek reads raw memory without access checks, for debug console use.
func (m *Machine) Peek(addr uint32, size int) []byte {
	buf := make([]byte, size)

	for i := 0; i < size; i++ {
		buf[i] = m.mem[addr+uint32(i)]
	}

	return buf
}

// Poke writes raw memory without access checks, for debug console use.
func (m *Machine) Poke(addr uint32, buf []byte) {
	for i, b := range buf {
		m.mem[addr+uint32(i)] = b
	}
}
