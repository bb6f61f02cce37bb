// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package vmpu implements the fault-driven memory isolation engine of a
// security monitor for ARMv8-M class microcontrollers, partitioning a single
// physical address space into mutually distrusting compartments ("boxes")
// over a capacity-bounded, priority-ordered hardware region table.
package vmpu

// ACL is a permission bitset for a memory region, encoding independent
// secure/user read, write and execute grants plus the non-secure-callable
// marker used on entry point regions.
type ACL uint32

const (
	UserRead ACL = 1 << iota
	UserWrite
	UserExecute
	SecureRead
	SecureWrite
	SecureExecute
	// NonSecureCallable marks a region as a sanctioned transition point
	// into secure code (SG instruction landing pad).
	NonSecureCallable
)

// Default permission sets for box stack and context memory.
const (
	StackACL = UserRead | UserWrite
	DataACL  = UserRead | UserWrite
)

// Region is a single access control entry, covering [Start, End).
type Region struct {
	Start  uint32
	End    uint32
	ACL    ACL
	Config uint32
}

// Contains returns whether addr falls within the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// Size returns the region length in bytes.
func (r Region) Size() uint32 {
	return r.End - r.Start
}

// Overlaps returns whether two regions intersect.
func (r Region) Overlaps(s Region) bool {
	return r.Start < s.End && s.Start < r.End
}

// Box is a single compartment. Box 0 is the distinguished base/public box:
// always resident, checked as a fallback for every address lookup and
// installed last on a table rebuild that targets it.
type Box struct {
	// ID is the box identifier, assigned in creation order.
	ID int
	// Name is an optional label used in diagnostics.
	Name string

	// Stack and Context are the pinned stack and context/bss regions,
	// assigned by the static layout allocator. Unset for box 0, which
	// runs on monitor memory.
	Stack   Region
	Context Region

	// ACLs are the declared access control entries from the box
	// configuration descriptor.
	ACLs []Region

	// EntryPoints are the externally callable gateway addresses.
	EntryPoints []uint32

	// StackPointer is the initial stack pointer value.
	StackPointer uint32
	// BSSStart is the start of the context/bss region.
	BSSStart uint32
}

// FindRegionForAddress returns the box region covering addr, if any. The
// pinned stack and context regions are searched ahead of the declared ACL
// entries.
func (b *Box) FindRegionForAddress(addr uint32) (Region, bool) {
	if b.Stack.Contains(addr) {
		return b.Stack, true
	}

	if b.Context.Contains(addr) {
		return b.Context, true
	}

	for _, r := range b.ACLs {
		if r.Contains(addr) {
			return r, true
		}
	}

	return Region{}, false
}
