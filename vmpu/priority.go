// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

// Priority is the eviction band of an installed region. The total order is
//
//	PriorityNone < PriorityBase < PriorityStaticLazy < PriorityHeap < PriorityPinned
//
// Pushing a region may evict resident entries of strictly lower priority,
// never equal or higher ones. The bands encode the restore policy on a box
// switch: survival (stack/context) over the already-resident heap working
// set, over declared-but-unused static permissions, over background base
// box grants.
type Priority uint8

const (
	// PriorityNone tags an empty table slot.
	PriorityNone Priority = iota
	// PriorityBase is used for base/public box ACLs, the first entries
	// evicted under table pressure.
	PriorityBase
	// PriorityStaticLazy is used for declared box ACLs installed lazily
	// on fault or best-effort on switch.
	PriorityStaticLazy
	// PriorityHeap is used for page-heap regions.
	PriorityHeap
	// PriorityPinned is used for a box's stack and context regions, which
	// must never be evicted while the box is active.
	PriorityPinned
)

func (p Priority) String() string {
	switch p {
	case PriorityNone:
		return "none"
	case PriorityBase:
		return "base"
	case PriorityStaticLazy:
		return "static"
	case PriorityHeap:
		return "heap"
	case PriorityPinned:
		return "pinned"
	default:
		return "invalid"
	}
}
