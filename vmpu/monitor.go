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

// ErrHalted is returned by all operations after a fatal fault latched the
// monitor in the Halted state.
var ErrHalted = errors.New("monitor halted")

// PageAllocator is the page-heap collaborator contract.
type PageAllocator interface {
	// ActiveRegion returns the bounds and identifier of the owned page
	// covering addr, if any.
	ActiveRegion(addr uint32) (start uint32, end uint32, page int, ok bool)
	// RegisterFault records a fault against a page for the allocator's
	// own statistics and eviction policy.
	RegisterFault(page int)
	// ActivePages visits all currently owned pages, stopping early when
	// visit returns false.
	ActivePages(visit func(start uint32, end uint32, page int) bool, reverse bool)
}

// SystemControl is the narrow interface to the system control block,
// consumed by the architecture bootstrap and the fault dispatcher.
type SystemControl interface {
	// SetSecurePriorityBoundary de-prioritizes non-secure exceptions and
	// pins HardFault, BusFault and NMI to the secure state.
	SetSecurePriorityBoundary()
	// EnableFaults enables the SecureFault, UsageFault, BusFault and
	// MemManage exception classes.
	EnableFaults()
	// ClearSecureFaultStatus clears the given secure fault status bits
	// (write-one-to-clear).
	ClearSecureFaultStatus(status uint32)
}

// Monitor is the isolation engine instance. It owns the region table, the
// box set and the active box identifier.
//
// The active box identifier is written only by Switch, which must never run
// concurrently with Handle. On the reference target the processor exception
// priority hardware guarantees this mutual exclusion; ports to other
// platforms must preserve it (e.g. by masking fault classes for the
// duration of a switch).
type Monitor struct {
	table  *Table
	pages  PageAllocator
	scs    SystemControl
	norm   Normalizer
	layout *Layout

	boxes  []*Box
	active int

	state State
	diag  *Diagnostic
}

// New returns a monitor over the given region table and collaborators.
// The pages, scs and norm collaborators may be nil.
func New(table *Table, pages PageAllocator, scs SystemControl, norm Normalizer) *Monitor {
	return &Monitor{
		table: table,
		pages: pages,
		scs:   scs,
		norm:  norm,
	}
}

// Table returns the monitor region table.
func (m *Monitor) Table() *Table {
	return m.table
}

// State returns the current execution state.
func (m *Monitor) State() State {
	return m.state
}

// Diagnostic returns the fatal fault record, if the monitor has halted.
func (m *Monitor) Diagnostic() *Diagnostic {
	return m.diag
}

// ActiveBox returns the identifier of the currently active box.
func (m *Monitor) ActiveBox() int {
	return m.active
}

// Box returns the box with the given identifier.
func (m *Monitor) Box(id int) (*Box, error) {
	if id < 0 || id >= len(m.boxes) {
		return nil, fmt.Errorf("invalid box %d", id)
	}

	return m.boxes[id], nil
}

// Boxes returns all created boxes in creation order.
func (m *Monitor) Boxes() []*Box {
	return m.boxes
}

// CreateBox creates the next box from its configuration descriptor fields,
// strictly in creation order. The first created box is the base/public box
// 0, which runs on monitor memory and receives no stack or context region;
// every other box gets its static layout assigned here.
func (m *Monitor) CreateBox(name string, stackSize uint32, bssSize uint32, acls []Region, entries []uint32) (*Box, error) {
	if m.state == Halted {
		return nil, ErrHalted
	}

	if m.layout == nil {
		return nil, errors.New("monitor is not initialized")
	}

	for i, r := range acls {
		if r.Start > r.End {
			return nil, fmt.Errorf("invalid region %#x-%#x", r.Start, r.End)
		}

		for _, s := range acls[i+1:] {
			if r.Overlaps(s) {
				return nil, fmt.Errorf("overlapping regions %#x-%#x and %#x-%#x", r.Start, r.End, s.Start, s.End)
			}
		}
	}

	box := &Box{
		ID:          len(m.boxes),
		Name:        name,
		ACLs:        append([]Region{}, acls...),
		EntryPoints: append([]uint32{}, entries...),
	}

	if box.ID != 0 {
		if err := m.layout.Allocate(box, bssSize, stackSize); err != nil {
			return nil, err
		}
	}

	m.boxes = append(m.boxes, box)

	return box, nil
}

// OrderBoxes returns the box initialization order for the given box count.
func OrderBoxes(count int) []int {
	order := make([]int, count)

	for i := 0; i < count; i++ {
		order[i] = i
	}

	return order
}
