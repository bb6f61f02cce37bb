// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"errors"
)

const (
	// RegionAlign is the minimum region size and alignment requirement.
	RegionAlign = 32
	// MinStackSize is the minimum box stack size.
	MinStackSize = 512
	// GuardBand is the width of the unmapped band inserted around each
	// box stack and context region. An off-by-one stack overflow or
	// context overrun lands in the band and raises a fault instead of
	// silently corrupting an adjacent box.
	GuardBand = 128
)

func roundUpRegion(size uint32) uint32 {
	return (size + (RegionAlign - 1)) &^ (RegionAlign - 1)
}

// Layout is the bump-style static memory allocator assigning each box its
// stack and context regions at creation time. It is driven strictly in box
// creation order with a single monotonically increasing cursor and is not
// re-entrant.
type Layout struct {
	cursor uint32
}

// NewLayout returns a layout allocator with its cursor initialized from the
// linker-provided start of box memory, leaving a leading guard band.
func NewLayout(base uint32) *Layout {
	return &Layout{
		cursor: roundUpRegion(base) + GuardBand,
	}
}

// Cursor returns the current allocation position.
func (l *Layout) Cursor() uint32 {
	return l.cursor
}

// Allocate assigns the box stack and context regions: the stack at the
// cursor rounded up to the minimum and alignment requirement, a guard band,
// then the context/bss region, then a trailing guard band. The resulting
// initial stack pointer and bss start are recorded on the box.
func (l *Layout) Allocate(box *Box, bssSize uint32, stackSize uint32) (err error) {
	// a box with no static data is a configuration error
	if bssSize == 0 {
		return errors.New("box context size must not be zero")
	}

	if stackSize < MinStackSize {
		stackSize = MinStackSize
	}

	stackSize = roundUpRegion(stackSize)

	box.Stack = Region{
		Start: l.cursor,
		End:   l.cursor + stackSize,
		ACL:   StackACL,
	}

	l.cursor += stackSize
	box.StackPointer = l.cursor

	// stack protection band
	l.cursor += GuardBand

	bssSize = roundUpRegion(bssSize)
	box.BSSStart = l.cursor

	box.Context = Region{
		Start: l.cursor,
		End:   l.cursor + bssSize,
		ACL:   DataACL,
	}

	l.cursor += bssSize + GuardBand

	return
}
