// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"testing"
)

func lookupPriority(t *testing.T, table *Table, addr uint32) Priority {
	t.Helper()

	slot, ok := table.Lookup(addr)

	if !ok {
		t.Fatalf("no region installed for %#x", addr)
	}

	return slot.Priority
}

func TestSwitchToBox(t *testing.T) {
	pages := &testPages{
		regions: []Region{
			{Start: 0x20010000, End: 0x20011000},
			{Start: 0x20013000, End: 0x20014000},
		},
	}

	m, _ := testMonitor(t, pages)

	if err := m.Switch(0, 1); err != nil {
		t.Fatal(err)
	}

	if m.ActiveBox() != 1 {
		t.Errorf("active box %d", m.ActiveBox())
	}

	box, _ := m.Box(1)
	table := m.Table()

	// stack and context are immediately usable at the highest priority
	if p := lookupPriority(t, table, box.Stack.Start); p != PriorityPinned {
		t.Errorf("stack priority %v", p)
	}

	if p := lookupPriority(t, table, box.Context.Start); p != PriorityPinned {
		t.Errorf("context priority %v", p)
	}

	// the resident heap working set is restored without faulting
	if p := lookupPriority(t, table, 0x20010000); p != PriorityHeap {
		t.Errorf("heap priority %v", p)
	}

	if p := lookupPriority(t, table, 0x20013000); p != PriorityHeap {
		t.Errorf("heap priority %v", p)
	}

	// base box ACLs are not restored on a switch to a user box
	if _, ok := table.Lookup(baseACL.Start); ok {
		t.Error("base box ACL should not be resident")
	}
}

func TestSwitchToBase(t *testing.T) {
	m, _ := testMonitor(t, nil)

	if err := m.Switch(0, 1); err != nil {
		t.Fatal(err)
	}

	if err := m.Switch(1, 0); err != nil {
		t.Fatal(err)
	}

	if m.ActiveBox() != 0 {
		t.Errorf("active box %d", m.ActiveBox())
	}

	// base box ACLs are installed last, at the lowest priority
	if p := lookupPriority(t, m.Table(), baseACL.Start); p != PriorityBase {
		t.Errorf("base ACL priority %v", p)
	}
}

func TestSwitchBaseEvictedFirst(t *testing.T) {
	m, _ := testMonitor(t, nil)

	if err := m.Switch(0, 0); err != nil {
		t.Fatal(err)
	}

	table := m.Table()

	if _, ok := table.Lookup(baseACL.Start); !ok {
		t.Fatal("base ACL not resident after switch")
	}

	// heap pressure evicts base entries first
	dynamic := table.Capacity() - StaticSlots

	for i := 0; i < dynamic; i++ {
		page := Region{
			Start:  0x20010000 + uint32(i)*0x1000,
			End:    0x20011000 + uint32(i)*0x1000,
			ACL:    DataACL,
			Config: PageConfig,
		}

		if !table.Push(page, PriorityHeap) {
			t.Fatalf("heap push %d failed", i)
		}
	}

	if _, ok := table.Lookup(baseACL.Start); ok {
		t.Error("base ACL should be the first entry evicted")
	}
}

func TestSwitchInvalidBox(t *testing.T) {
	m, _ := testMonitor(t, nil)

	if err := m.Switch(0, 42); err == nil {
		t.Error("expected error for invalid destination")
	}

	if err := m.Switch(0, -1); err == nil {
		t.Error("expected error for negative destination")
	}
}
