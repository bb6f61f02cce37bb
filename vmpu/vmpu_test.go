// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"testing"
)

// Test memory layout, mirroring the default simulator target.
var testMap = MemoryMap{
	FlashStart:       0x00000000,
	EntryPointsStart: 0x000fc000,
	EntryPointsEnd:   0x000fc400,
	FlashEnd:         0x00100000,
	PageHeapEnd:      0x20020000,
	SRAMEnd:          0x20040000,
	BoxMemoryStart:   0x20004000,
}

// Box ACLs used across tests: box 0 covers the first flash page and a
// peripheral window, box 1 covers a disjoint peripheral window.
var (
	flashACL = Region{Start: 0x00000000, End: 0x00001000, ACL: UserExecute | UserRead | UserWrite}
	baseACL  = Region{Start: 0x40005000, End: 0x40006000, ACL: UserRead | UserWrite}
	box1ACL  = Region{Start: 0x40001000, End: 0x40002000, ACL: UserRead | UserWrite}
)

type testPages struct {
	regions []Region
	faults  map[int]int
}

func (p *testPages) ActiveRegion(addr uint32) (start uint32, end uint32, page int, ok bool) {
	for i, r := range p.regions {
		if r.Contains(addr) {
			return r.Start, r.End, i, true
		}
	}

	return
}

func (p *testPages) RegisterFault(page int) {
	if p.faults == nil {
		p.faults = make(map[int]int)
	}

	p.faults[page]++
}

func (p *testPages) ActivePages(visit func(start uint32, end uint32, page int) bool, reverse bool) {
	if reverse {
		for i := len(p.regions) - 1; i >= 0; i-- {
			if !visit(p.regions[i].Start, p.regions[i].End, i) {
				return
			}
		}

		return
	}

	for i, r := range p.regions {
		if !visit(r.Start, r.End, i) {
			return
		}
	}
}

type testSCS struct {
	priority bool
	faults   bool
	cleared  []uint32
}

func (s *testSCS) SetSecurePriorityBoundary() {
	s.priority = true
}

func (s *testSCS) EnableFaults() {
	s.faults = true
}

func (s *testSCS) ClearSecureFaultStatus(status uint32) {
	s.cleared = append(s.cleared, status)
}

func testMonitor(t *testing.T, pages PageAllocator) (*Monitor, *testSCS) {
	t.Helper()

	table, err := NewTable(DefaultSlots)

	if err != nil {
		t.Fatal(err)
	}

	scs := &testSCS{}
	m := New(table, pages, scs, ARMNormalizer{})

	if err := m.ArchInit(testMap); err != nil {
		t.Fatal(err)
	}

	if _, err := m.CreateBox("base", 0, 0, []Region{flashACL, baseACL}, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := m.CreateBox("box1", 1024, 256, []Region{box1ACL}, []uint32{0x000fc000}); err != nil {
		t.Fatal(err)
	}

	return m, scs
}
