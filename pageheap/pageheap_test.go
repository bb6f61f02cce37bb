// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pageheap

import (
	"testing"
)

const (
	testStart    = 0x20010000
	testSize     = 0x4000
	testPageSize = 0x1000
)

func testAllocator(t *testing.T) *Allocator {
	t.Helper()

	a, err := New(testStart, testSize, testPageSize)

	if err != nil {
		t.Fatal(err)
	}

	return a
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		name     string
		start    uint32
		size     uint32
		pageSize uint32
	}{
		{"zero page size", testStart, testSize, 0},
		{"zero size", testStart, 0, testPageSize},
		{"unaligned size", testStart, testPageSize + 1, testPageSize},
		{"unaligned start", testStart + 4, testSize, testPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.start, tt.size, tt.pageSize); err == nil {
				t.Error("expected error")
			}
		})
	}

	a := testAllocator(t)

	if a.Pages() != 4 {
		t.Errorf("page count %d", a.Pages())
	}

	if a.PageSize() != testPageSize {
		t.Errorf("page size %#x", a.PageSize())
	}
}

func TestAllocateFree(t *testing.T) {
	a := testAllocator(t)

	var addrs []uint32

	for i := 0; i < a.Pages(); i++ {
		addr, err := a.Allocate(1)

		if err != nil {
			t.Fatal(err)
		}

		if addr < testStart || addr >= testStart+testSize || addr%testPageSize != 0 {
			t.Fatalf("page address %#x out of range", addr)
		}

		for _, prev := range addrs {
			if prev == addr {
				t.Fatalf("page %#x allocated twice", addr)
			}
		}

		addrs = append(addrs, addr)
	}

	if _, err := a.Allocate(1); err == nil {
		t.Error("expected exhaustion error")
	}

	if err := a.Free(addrs[0]); err != nil {
		t.Fatal(err)
	}

	addr, err := a.Allocate(2)

	if err != nil {
		t.Fatal(err)
	}

	if addr != addrs[0] {
		t.Errorf("freed page not reused: %#x, want %#x", addr, addrs[0])
	}
}

func TestFreeValidation(t *testing.T) {
	a := testAllocator(t)

	addr, err := a.Allocate(1)

	if err != nil {
		t.Fatal(err)
	}

	if err = a.Free(addr + 4); err == nil {
		t.Error("expected error for unaligned address")
	}

	if err = a.Free(testStart + testSize); err == nil {
		t.Error("expected error for out of range address")
	}

	if err = a.Free(addr); err != nil {
		t.Fatal(err)
	}

	if err = a.Free(addr); err == nil {
		t.Error("expected error on double free")
	}
}

func TestOwnership(t *testing.T) {
	a := testAllocator(t)

	addr, err := a.Allocate(3)

	if err != nil {
		t.Fatal(err)
	}

	_, _, pg, ok := a.ActiveRegion(addr + 0x10)

	if !ok {
		t.Fatal("allocated page not active")
	}

	owner, err := a.Owner(pg)

	if err != nil {
		t.Fatal(err)
	}

	if owner != 3 {
		t.Errorf("owner %d", owner)
	}

	if _, err = a.Owner(pg + 1); err == nil {
		t.Error("expected error for inactive page")
	}
}

func TestFaultAccounting(t *testing.T) {
	a := testAllocator(t)

	addr, err := a.Allocate(1)

	if err != nil {
		t.Fatal(err)
	}

	_, _, pg, _ := a.ActiveRegion(addr)

	a.RegisterFault(pg)
	a.RegisterFault(pg)

	if n := a.Faults(pg); n != 2 {
		t.Errorf("fault count %d", n)
	}

	// faults against inactive or invalid pages are dropped
	a.RegisterFault(pg + 1)
	a.RegisterFault(-1)

	if n := a.Faults(pg + 1); n != 0 {
		t.Errorf("inactive page fault count %d", n)
	}
}

func TestActiveRegion(t *testing.T) {
	a := testAllocator(t)

	if _, _, _, ok := a.ActiveRegion(testStart); ok {
		t.Error("unallocated page reported active")
	}

	if _, _, _, ok := a.ActiveRegion(testStart - 4); ok {
		t.Error("address below heap reported active")
	}

	addr, err := a.Allocate(1)

	if err != nil {
		t.Fatal(err)
	}

	start, end, _, ok := a.ActiveRegion(addr + testPageSize - 1)

	if !ok {
		t.Fatal("allocated page not active")
	}

	if start != addr || end != addr+testPageSize {
		t.Errorf("region %#x-%#x, want %#x-%#x", start, end, addr, addr+testPageSize)
	}
}

func TestActivePages(t *testing.T) {
	a := testAllocator(t)

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(1); err != nil {
			t.Fatal(err)
		}
	}

	var forward []uint32

	a.ActivePages(func(start uint32, end uint32, pg int) bool {
		forward = append(forward, start)
		return true
	}, false)

	if len(forward) != 3 {
		t.Fatalf("visited %d pages", len(forward))
	}

	for i := 0; i < len(forward)-1; i++ {
		if forward[i] >= forward[i+1] {
			t.Errorf("forward visit out of order: %#x", forward)
		}
	}

	var backward []uint32

	a.ActivePages(func(start uint32, end uint32, pg int) bool {
		backward = append(backward, start)
		return true
	}, true)

	for i := range backward {
		if backward[i] != forward[len(forward)-1-i] {
			t.Fatalf("reverse visit out of order: %#x", backward)
		}
	}

	// early termination
	visited := 0

	a.ActivePages(func(start uint32, end uint32, pg int) bool {
		visited++
		return false
	}, false)

	if visited != 1 {
		t.Errorf("visited %d pages after stop", visited)
	}
}
