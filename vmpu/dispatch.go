// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/tamago/bits"
)

// System exception numbers (IRQn encoding, NVIC offset already applied).
type Exception int

const (
	NonMaskableInt Exception = -14
	HardFault      Exception = -13
	MemManage      Exception = -12
	BusFault       Exception = -11
	UsageFault     Exception = -10
	SecureFault    Exception = -9
	SVCall         Exception = -5
	DebugMonitor   Exception = -4
	PendSV         Exception = -2
	SysTick        Exception = -1
)

// NVICOffset converts IPSR exception numbering (from 0 up) to IRQn
// numbering (system exceptions negative).
const NVICOffset = 16

// ExceptionFromIPSR derives the IRQn encoded exception number from the
// interrupt program status register value.
func ExceptionFromIPSR(ipsr uint32) Exception {
	return Exception(int(ipsr&0x1ff) - NVICOffset)
}

func (e Exception) String() string {
	switch e {
	case NonMaskableInt:
		return "NonMaskableInt"
	case HardFault:
		return "HardFault"
	case MemManage:
		return "MemManage"
	case BusFault:
		return "BusFault"
	case UsageFault:
		return "UsageFault"
	case SecureFault:
		return "SecureFault"
	case SVCall:
		return "SVCall"
	case DebugMonitor:
		return "DebugMonitor"
	case PendSV:
		return "PendSV"
	case SysTick:
		return "SysTick"
	default:
		return fmt.Sprintf("IRQ%d", int(e))
	}
}

// Secure Fault Status Register bits.
const (
	SFSR_AUVIOL    = 3
	SFSR_SFARVALID = 6
)

// EXC_RETURN bits.
const (
	EXC_RETURN_SPSEL = 2
	EXC_RETURN_MODE  = 3
	EXC_RETURN_S     = 6
)

// Stacked exception frame program counter offset (r0-r3, r12, lr, pc, xpsr).
const framePC = 6

// ExcCtx is the transient exception context, constructed fresh by the
// hardware layer on each exception entry and never persisted.
type ExcCtx struct {
	// Exception is the exception number in IRQn encoding.
	Exception Exception
	// ExcReturn is the exception return value (lr on entry).
	ExcReturn uint32

	// Secure and non-secure stack pointer registers.
	MSP   uint32
	PSP   uint32
	MSPNS uint32
	PSPNS uint32

	// Status is the secure fault status register value.
	Status uint32
	// Address is the secure fault address register value.
	Address uint32

	// Frame is the stacked exception frame at the authoritative stack
	// pointer (r0-r3, r12, lr, pc, xpsr).
	Frame []uint32
}

// FromSecure returns whether the exception originated from the secure
// state.
func (ctx *ExcCtx) FromSecure() bool {
	return bits.IsSet(&ctx.ExcReturn, EXC_RETURN_S)
}

// FromThread returns whether the exception originated from thread mode.
func (ctx *ExcCtx) FromThread() bool {
	return bits.IsSet(&ctx.ExcReturn, EXC_RETURN_MODE)
}

// FromProcessStack returns whether the process stack pointer is the
// authoritative stack pointer for the exception origin.
func (ctx *ExcCtx) FromProcessStack() bool {
	return bits.IsSet(&ctx.ExcReturn, EXC_RETURN_SPSEL)
}

// StackPointer returns the authoritative stack pointer for the exception
// origin.
func (ctx *ExcCtx) StackPointer() uint32 {
	if ctx.FromSecure() {
		if ctx.FromThread() && ctx.FromProcessStack() {
			return ctx.PSP
		}

		return ctx.MSP
	}

	if ctx.FromThread() && ctx.FromProcessStack() {
		return ctx.PSPNS
	}

	return ctx.MSPNS
}

// PC returns the pre-exception program counter from the stacked frame.
func (ctx *ExcCtx) PC() uint32 {
	if len(ctx.Frame) <= framePC {
		return 0
	}

	return ctx.Frame[framePC]
}

// State is the monitor execution state. Halted is terminal: once an access
// violation cannot be explained as an expected lazy resource fault,
// continuing would risk running in a partially corrupted security state.
type State int

const (
	Running State = iota
	FaultPending
	Recovering
	Resumed
	Halted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case FaultPending:
		return "fault pending"
	case Recovering:
		return "recovering"
	case Resumed:
		return "resumed"
	case Halted:
		return "halted"
	default:
		return "invalid"
	}
}

// Diagnostic is the fatal fault record latched before the monitor halts.
type Diagnostic struct {
	Exception Exception
	PC        uint32
	SP        uint32
	LR        uint32
	Address   uint32
	Status    uint32
	Reason    string
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%v pc:%#.8x sp:%#.8x lr:%#.8x addr:%#.8x status:%#.8x (%s)",
		d.Exception, d.PC, d.SP, d.LR, d.Address, d.Status, d.Reason)
}

// Handle classifies an exception and routes it to recovery or fatal halt.
//
// A SecureFault whose status reports an access violation with a valid fault
// address is the only potentially recoverable kind: on successful recovery
// the fault status is cleared and nil is returned, resuming execution at
// the faulting instruction. Every other outcome latches the monitor in the
// Halted state and returns the fatal error.
func (m *Monitor) Handle(ctx *ExcCtx) error {
	if m.state == Halted {
		return ErrHalted
	}

	m.state = FaultPending
	sp := ctx.StackPointer()

	switch ctx.Exception {
	case SecureFault:
		status := ctx.Status

		if bits.IsSet(&status, SFSR_AUVIOL) && bits.IsSet(&status, SFSR_SFARVALID) {
			m.state = Recovering

			if m.Recover(ctx.PC(), sp, ctx.Address, status) {
				if m.scs != nil {
					m.scs.ClearSecureFaultStatus(status)
				}

				m.state = Resumed

				return nil
			}
		}

		return m.halt(ctx, sp, "cannot recover from a secure fault")
	case HardFault:
		return m.halt(ctx, sp, "cannot recover from a hard fault")
	case MemManage:
		return m.halt(ctx, sp, "cannot recover from a memory management fault")
	case BusFault:
		return m.halt(ctx, sp, "cannot recover from a bus fault")
	case UsageFault:
		return m.halt(ctx, sp, "cannot recover from a usage fault")
	case DebugMonitor:
		return m.halt(ctx, sp, "cannot recover from a DebugMonitor fault")
	case NonMaskableInt, SVCall, PendSV, SysTick:
		return m.halt(ctx, sp, fmt.Sprintf("no %v handler registered", ctx.Exception))
	default:
		return m.halt(ctx, sp, fmt.Sprintf("active IRQn (%d) is not a system interrupt", int(ctx.Exception)))
	}
}

// Resume completes the exception return after a successful recovery,
// marking the retry of the faulting instruction.
func (m *Monitor) Resume() {
	if m.state == Resumed {
		m.state = Running
	}
}

func (m *Monitor) halt(ctx *ExcCtx, sp uint32, reason string) error {
	m.diag = &Diagnostic{
		Exception: ctx.Exception,
		PC:        ctx.PC(),
		SP:        sp,
		LR:        ctx.ExcReturn,
		Address:   ctx.Address,
		Status:    ctx.Status,
		Reason:    reason,
	}

	m.state = Halted

	log.Printf("SM halt %s", m.diag)

	return errors.New(reason)
}
