// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

import (
	"fmt"
)

// Switch reprograms the entire region table for a compartment transition
// from src to dst, in a fixed priority order:
//
//  1. all dynamic entries are invalidated
//  2. for dst != 0, the destination stack and context regions are pinned
//     first, so the destination box is immediately runnable
//  3. one region per resident page-heap allocation is reinstalled, keeping
//     heap-backed memory usable across the switch without faulting
//  4. for dst != 0, the remaining declared ACLs are installed best-effort;
//     entries that do not fit fault in lazily
//  5. for dst == 0, the base box ACLs are installed last at the lowest
//     priority, the first evicted under table pressure
//
// Box identifiers must be validated by the caller. Switch writes the active
// box identifier and must never run concurrently with Handle; on the
// reference target the exception priority hardware guarantees this.
func (m *Monitor) Switch(src int, dst int) error {
	_ = src

	if m.state == Halted {
		return ErrHalted
	}

	if dst < 0 || dst >= len(m.boxes) {
		return fmt.Errorf("invalid box %d", dst)
	}

	m.table.Invalidate()
	m.active = dst

	box := m.boxes[dst]

	if dst != 0 {
		// update target box first to make target stack available
		m.table.Push(box.Stack, PriorityPinned)
		m.table.Push(box.Context, PriorityPinned)
	}

	if m.pages != nil {
		m.pages.ActivePages(func(start uint32, end uint32, page int) bool {
			return m.pushPage(start, end)
		}, false)
	}

	if dst != 0 {
		for _, r := range box.ACLs {
			if !m.table.Push(r, PriorityStaticLazy) {
				break
			}
		}

		return nil
	}

	// handle public box ACLs last
	for _, r := range box.ACLs {
		if !m.table.Push(r, PriorityBase) {
			break
		}
	}

	return nil
}
