// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

// PageConfig marks an installed region as backed by the page heap.
const PageConfig = 1

func (m *Monitor) pushPage(start uint32, end uint32) bool {
	return m.table.Push(Region{
		Start:  start,
		End:    end,
		ACL:    DataACL,
		Config: PageConfig,
	}, PriorityHeap)
}

// Recover resolves a faulting access against a legitimate lazy resource and
// installs the covering region, returning whether the fault was recovered.
//
// Page-heap pages are installed at heap priority so heap pressure does not
// evict a box's declared permissions unnecessarily; static ACL regions
// faulted in are opportunistic caching and use the lowest non-evicted band.
// Boxes are not required to have every static region resident at all
// times, the table is smaller than the union of all ACLs.
func (m *Monitor) Recover(pc uint32, sp uint32, faultAddr uint32, faultStatus uint32) bool {
	_, _, _ = pc, sp, faultStatus

	if m.pages != nil {
		if start, end, page, ok := m.pages.ActiveRegion(faultAddr); ok {
			// remember this fault
			m.pages.RegisterFault(page)

			return m.pushPage(start, end)
		}
	}

	region, ok := m.findRegion(faultAddr)

	if !ok {
		return false
	}

	return m.table.Push(region, PriorityStaticLazy)
}
