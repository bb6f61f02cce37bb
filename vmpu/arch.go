// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"errors"
	"fmt"
)

// MemoryMap describes the linker-provided memory boundaries consumed by the
// architecture bootstrap.
type MemoryMap struct {
	// Monitor and public flash boundaries.
	FlashStart       uint32
	EntryPointsStart uint32
	EntryPointsEnd   uint32
	FlashEnd         uint32

	// PageHeapEnd is the end of the page heap range, public SRAM starts
	// here.
	PageHeapEnd uint32
	// SRAMEnd is the end of physical SRAM.
	SRAMEnd uint32

	// BoxMemoryStart is the base address for the static layout
	// allocator.
	BoxMemoryStart uint32
}

func (mm MemoryMap) validate() error {
	if mm.FlashStart > mm.EntryPointsStart ||
		mm.EntryPointsStart > mm.EntryPointsEnd ||
		mm.EntryPointsEnd > mm.FlashEnd {
		return fmt.Errorf("invalid flash layout %#x %#x %#x %#x",
			mm.FlashStart, mm.EntryPointsStart, mm.EntryPointsEnd, mm.FlashEnd)
	}

	if mm.PageHeapEnd > mm.SRAMEnd {
		return fmt.Errorf("invalid SRAM layout %#x %#x", mm.PageHeapEnd, mm.SRAMEnd)
	}

	return nil
}

// ArchInit performs the one-time architecture bootstrap: it configures the
// secure/non-secure exception priority boundary, enables the fault classes
// the dispatcher handles, installs the four always-resident base ACLs and
// locks the static table slots so ordinary pushes can never evict them.
func (m *Monitor) ArchInit(mm MemoryMap) (err error) {
	if m.layout != nil {
		return errors.New("already initialized")
	}

	if err = mm.validate(); err != nil {
		return
	}

	if m.scs != nil {
		// non-secure exceptions are de-prioritized, HardFault,
		// BusFault and NMI stay secure
		m.scs.SetSecurePriorityBoundary()
		m.scs.EnableFaults()
	}

	// public monitor flash
	if err = m.table.SetStatic(0, Region{
		Start: mm.FlashStart,
		End:   mm.EntryPointsStart,
		ACL:   UserExecute | UserRead | UserWrite,
	}); err != nil {
		return
	}

	// entry points, the only sanctioned transition into secure code
	if err = m.table.SetStatic(1, Region{
		Start: mm.EntryPointsStart,
		End:   mm.EntryPointsEnd,
		ACL:   SecureExecute | UserExecute | NonSecureCallable,
	}); err != nil {
		return
	}

	// public flash
	if err = m.table.SetStatic(2, Region{
		Start: mm.EntryPointsEnd,
		End:   mm.FlashEnd,
		ACL:   UserExecute | UserRead | UserWrite,
	}); err != nil {
		return
	}

	// public SRAM, outside the page heap range
	if err = m.table.SetStatic(3, Region{
		Start: mm.PageHeapEnd,
		End:   mm.SRAMEnd,
		ACL:   UserExecute | UserRead | UserWrite,
	}); err != nil {
		return
	}

	m.table.Lock()

	m.layout = NewLayout(mm.BoxMemoryStart)

	return
}
