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

// DefaultSlots is the region table capacity of the reference target (SAU
// with 8 regions).
const DefaultSlots = 8

// StaticSlots is the number of slots reserved for the always-resident
// bootstrap ACLs.
const StaticSlots = 4

// Slot is a single hardware region table entry.
type Slot struct {
	Region   Region
	Priority Priority
}

// Table models the hardware region table: a capacity-bounded collection of
// regions tagged with an eviction priority. The first StaticSlots entries
// are reserved for the bootstrap ACLs and, once locked, survive
// invalidation and can never be evicted by a push.
//
// All hardware region register access is meant to sit behind this one type.
type Table struct {
	slots  []Slot
	locked bool
}

// NewTable returns a region table with the given slot capacity.
func NewTable(capacity int) (*Table, error) {
	if capacity <= StaticSlots {
		return nil, fmt.Errorf("capacity must exceed %d static slots", StaticSlots)
	}

	return &Table{
		slots: make([]Slot, capacity),
	}, nil
}

// Capacity returns the total slot count.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// SetStatic installs a region in one of the reserved static slots. It may
// only be used before Lock.
func (t *Table) SetStatic(idx int, r Region) error {
	if t.locked {
		return errors.New("table is locked")
	}

	if idx < 0 || idx >= StaticSlots {
		return fmt.Errorf("invalid static slot %d", idx)
	}

	t.slots[idx] = Slot{Region: r, Priority: PriorityPinned}

	return nil
}

// Lock freezes the static slots. After locking, Invalidate and Push leave
// them untouched.
func (t *Table) Lock() {
	t.locked = true
}

// Invalidate clears all dynamic slots, dropping the table to the static
// bootstrap entries only.
func (t *Table) Invalidate() {
	for i := StaticSlots; i < len(t.slots); i++ {
		t.slots[i] = Slot{}
	}
}

// Push installs a region at the given priority, evicting the lowest
// strictly-lower-priority resident entry if no slot is free. Pushing a
// region already resident refreshes it in place. It returns false if the
// table is full of entries at equal or higher priority.
func (t *Table) Push(r Region, p Priority) bool {
	if p == PriorityNone {
		return false
	}

	free := -1
	victim := -1
	victimPriority := p

	for i := StaticSlots; i < len(t.slots); i++ {
		if t.slots[i].Priority == PriorityNone {
			if free < 0 {
				free = i
			}

			continue
		}

		// refresh a resident region in place
		if t.slots[i].Region == r {
			if p > t.slots[i].Priority {
				t.slots[i].Priority = p
			}

			return true
		}

		if t.slots[i].Priority < victimPriority {
			victim = i
			victimPriority = t.slots[i].Priority
		}
	}

	if free >= 0 {
		victim = free
	}

	if victim < 0 {
		return false
	}

	t.slots[victim] = Slot{Region: r, Priority: p}

	return true
}

// Lookup returns the installed slot covering addr, preferring static
// entries.
func (t *Table) Lookup(addr uint32) (Slot, bool) {
	for _, s := range t.slots {
		if s.Priority != PriorityNone && s.Region.Contains(addr) {
			return s, true
		}
	}

	return Slot{}, false
}

// Slots returns a snapshot of the table contents.
func (t *Table) Slots() []Slot {
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)

	return out
}
