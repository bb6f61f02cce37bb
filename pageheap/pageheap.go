// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pageheap implements the page allocator collaborating with the
// isolation engine: it tracks which physical pages of the heap range are
// owned by which box, records per-page fault statistics and exposes the
// active page iteration used on box switches.
package pageheap

import (
	"errors"
	"fmt"

	"github.com/usbarmory/tamago/dma"
)

type page struct {
	owner  int
	active bool
	faults uint32
}

// Allocator hands out fixed-size pages from a dedicated physical range,
// with ownership and fault bookkeeping per page.
type Allocator struct {
	start    uint32
	size     uint32
	pageSize uint32

	region *dma.Region
	pages  []page
	used   int
}

// New returns a page allocator over [start, start+size), split in pageSize
// sized pages. The start address and size must be page aligned.
func New(start uint32, size uint32, pageSize uint32) (*Allocator, error) {
	if pageSize == 0 || size == 0 || size%pageSize != 0 || start%pageSize != 0 {
		return nil, fmt.Errorf("invalid page heap geometry %#x+%#x/%#x", start, size, pageSize)
	}

	region, err := dma.NewRegion(uint(start), int(size), false)

	if err != nil {
		return nil, err
	}

	return &Allocator{
		start:    start,
		size:     size,
		pageSize: pageSize,
		region:   region,
		pages:    make([]page, size/pageSize),
	}, nil
}

// PageSize returns the page size.
func (a *Allocator) PageSize() uint32 {
	return a.pageSize
}

// Pages returns the total page count.
func (a *Allocator) Pages() int {
	return len(a.pages)
}

// Allocate reserves one page for the given owner box and returns its start
// address.
func (a *Allocator) Allocate(owner int) (uint32, error) {
	if a.used == len(a.pages) {
		return 0, errors.New("page heap exhausted")
	}

	addr, _ := a.region.Reserve(int(a.pageSize), int(a.pageSize))
	idx := (uint32(addr) - a.start) / a.pageSize

	a.pages[idx] = page{
		owner:  owner,
		active: true,
	}
	a.used++

	return uint32(addr), nil
}

// Free releases the page starting at addr.
func (a *Allocator) Free(addr uint32) error {
	if addr < a.start || addr >= a.start+a.size || addr%a.pageSize != 0 {
		return fmt.Errorf("invalid page address %#x", addr)
	}

	idx := (addr - a.start) / a.pageSize

	if !a.pages[idx].active {
		return fmt.Errorf("page %#x is not allocated", addr)
	}

	a.region.Release(uint(addr))
	a.pages[idx] = page{}
	a.used--

	return nil
}

// Owner returns the owning box of a page.
func (a *Allocator) Owner(pg int) (int, error) {
	if pg < 0 || pg >= len(a.pages) || !a.pages[pg].active {
		return 0, fmt.Errorf("invalid page %d", pg)
	}

	return a.pages[pg].owner, nil
}

// Faults returns the recorded fault count of a page.
func (a *Allocator) Faults(pg int) uint32 {
	if pg < 0 || pg >= len(a.pages) {
		return 0
	}

	return a.pages[pg].faults
}

// ActiveRegion returns the bounds and identifier of the owned page covering
// addr, if any.
func (a *Allocator) ActiveRegion(addr uint32) (start uint32, end uint32, pg int, ok bool) {
	if addr < a.start || addr >= a.start+a.size {
		return
	}

	idx := (addr - a.start) / a.pageSize

	if !a.pages[idx].active {
		return
	}

	start = a.start + idx*a.pageSize
	end = start + a.pageSize

	return start, end, int(idx), true
}

// RegisterFault records a fault against a page, feeding the allocator
// eviction statistics.
func (a *Allocator) RegisterFault(pg int) {
	if pg < 0 || pg >= len(a.pages) || !a.pages[pg].active {
		return
	}

	a.pages[pg].faults++
}

// ActivePages visits all currently owned pages in address order, stopping
// early when visit returns false.
func (a *Allocator) ActivePages(visit func(start uint32, end uint32, pg int) bool, reverse bool) {
	step := 1
	idx := 0

	if reverse {
		step = -1
		idx = len(a.pages) - 1
	}

	for ; idx >= 0 && idx < len(a.pages); idx += step {
		if !a.pages[idx].active {
			continue
		}

		start := a.start + uint32(idx)*a.pageSize

		if !visit(start, start+a.pageSize, idx) {
			return
		}
	}
}
