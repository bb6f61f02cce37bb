// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mem defines the default memory layout of the simulated ARMv8-M
// target.
package mem

import (
	"github.com/ccli8/uvisor/vmpu"
)

const (
	// Monitor flash image
	FlashStart = 0x00000000
	// Entry point trampolines (non-secure callable)
	EntryPointsStart = 0x000fc000
	EntryPointsEnd   = 0x000fc400
	// Public flash
	FlashEnd = 0x00100000

	// SRAM
	SRAMStart = 0x20000000
	SRAMEnd   = 0x20040000 // 256KB

	// Box stack and context memory
	BoxMemoryStart = 0x20004000

	// Page heap
	PageHeapStart = 0x20010000
	PageHeapSize  = 0x00010000 // 64KB
	PageHeapEnd   = PageHeapStart + PageHeapSize
	PageSize      = 0x1000

	// Peripheral space
	PeriphStart = 0x40000000
	PeriphEnd   = 0x44000000

	// Simulated UART transmit register
	UARTTX = 0x40002000
)

// DefaultMap returns the bootstrap memory map for the default layout.
func DefaultMap() vmpu.MemoryMap {
	return vmpu.MemoryMap{
		FlashStart:       FlashStart,
		EntryPointsStart: EntryPointsStart,
		EntryPointsEnd:   EntryPointsEnd,
		FlashEnd:         FlashEnd,
		PageHeapEnd:      PageHeapEnd,
		SRAMEnd:          SRAMEnd,
		BoxMemoryStart:   BoxMemoryStart,
	}
}
