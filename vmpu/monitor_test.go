// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"testing"
)

func TestArchInit(t *testing.T) {
	table, _ := NewTable(DefaultSlots)
	scs := &testSCS{}
	m := New(table, nil, scs, ARMNormalizer{})

	if err := m.ArchInit(testMap); err != nil {
		t.Fatal(err)
	}

	if !scs.priority || !scs.faults {
		t.Errorf("system control not configured: priority %v faults %v", scs.priority, scs.faults)
	}

	// the four base regions are resident and pinned
	for _, addr := range []uint32{
		testMap.FlashStart,
		testMap.EntryPointsStart,
		testMap.EntryPointsEnd,
		testMap.PageHeapEnd,
	} {
		if p := lookupPriority(t, table, addr); p != PriorityPinned {
			t.Errorf("static region for %#x at %v", addr, p)
		}
	}

	if err := table.SetStatic(0, Region{}); err == nil {
		t.Error("table not locked after initialization")
	}

	if err := m.ArchInit(testMap); err == nil {
		t.Error("expected error on repeated initialization")
	}
}

func TestArchInitInvalidMap(t *testing.T) {
	tests := []struct {
		name string
		mm   MemoryMap
	}{
		{"entry points before flash", MemoryMap{FlashStart: 0x1000, EntryPointsStart: 0x500, EntryPointsEnd: 0x600, FlashEnd: 0x2000}},
		{"entry points inverted", MemoryMap{EntryPointsStart: 0x600, EntryPointsEnd: 0x500, FlashEnd: 0x2000}},
		{"flash end inside entry points", MemoryMap{EntryPointsStart: 0x500, EntryPointsEnd: 0x600, FlashEnd: 0x580}},
		{"page heap past SRAM", MemoryMap{FlashEnd: 0x2000, EntryPointsStart: 0x500, EntryPointsEnd: 0x600, PageHeapEnd: 0x20040000, SRAMEnd: 0x20020000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, _ := NewTable(DefaultSlots)
			m := New(table, nil, nil, nil)

			if err := m.ArchInit(tt.mm); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCreateBox(t *testing.T) {
	m, _ := testMonitor(t, nil)

	base, err := m.Box(0)

	if err != nil {
		t.Fatal(err)
	}

	// the base box runs on monitor memory
	if base.Stack.Size() != 0 || base.Context.Size() != 0 {
		t.Errorf("base box has private memory: %+v", base)
	}

	box, err := m.Box(1)

	if err != nil {
		t.Fatal(err)
	}

	if box.ID != 1 || box.Name != "box1" {
		t.Errorf("box %d %q", box.ID, box.Name)
	}

	if box.Stack.Size() != 1024 || box.Context.Size() != 256 {
		t.Errorf("box layout %+v", box)
	}

	if len(box.EntryPoints) != 1 || box.EntryPoints[0] != 0x000fc000 {
		t.Errorf("entry points %#x", box.EntryPoints)
	}

	if len(m.Boxes()) != 2 {
		t.Errorf("box count %d", len(m.Boxes()))
	}

	if _, err = m.Box(2); err == nil {
		t.Error("expected error for invalid identifier")
	}
}

func TestCreateBoxValidation(t *testing.T) {
	m, _ := testMonitor(t, nil)

	inverted := Region{Start: 0x2000, End: 0x1000, ACL: UserRead}

	if _, err := m.CreateBox("bad", 1024, 256, []Region{inverted}, nil); err == nil {
		t.Error("expected error for inverted region")
	}

	a := Region{Start: 0x1000, End: 0x3000, ACL: UserRead}
	b := Region{Start: 0x2000, End: 0x4000, ACL: UserRead}

	if _, err := m.CreateBox("bad", 1024, 256, []Region{a, b}, nil); err == nil {
		t.Error("expected error for overlapping regions")
	}

	if _, err := m.CreateBox("bad", 1024, 0, nil, nil); err == nil {
		t.Error("expected error for zero context size")
	}
}

func TestCreateBoxUninitialized(t *testing.T) {
	table, _ := NewTable(DefaultSlots)
	m := New(table, nil, nil, nil)

	if _, err := m.CreateBox("base", 0, 0, nil, nil); err == nil {
		t.Error("expected error before initialization")
	}
}

func TestOrderBoxes(t *testing.T) {
	order := OrderBoxes(3)

	if len(order) != 3 {
		t.Fatalf("order length %d", len(order))
	}

	for i, id := range order {
		if id != i {
			t.Errorf("order[%d] = %d", i, id)
		}
	}
}
