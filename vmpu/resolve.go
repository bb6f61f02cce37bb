// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vmpu

// Normalizer is a pluggable address normalization policy applied before ACL
// resolution, expressing platform specific aliasing windows and register
// carve-outs.
type Normalizer interface {
	// Translate maps an alias address to the physical address the ACL
	// must be checked against.
	Translate(addr uint32) uint32
	// Override grants a fixed permission set for special addresses that
	// must remain reachable without an explicit ACL.
	Override(addr uint32) (ACL, bool)
}

// ARMv7-M/ARMv8-M bit-band windows and their physical targets. A word
// access to an alias address toggles a single bit of the underlying
// peripheral or SRAM location, so permissions must be checked against the
// physical target, not the alias.
const (
	SRAMBitBandStart    = 0x22000000
	SRAMBitBandEnd      = 0x23ffffff
	SRAMBitBandTarget   = 0x20000000
	PeriphBitBandStart  = 0x42000000
	PeriphBitBandEnd    = 0x43ffffff
	PeriphBitBandTarget = 0x40000000

	// SCR is the System Control Register address, granted user
	// read/write unconditionally as low power mode control must remain
	// reachable without an explicit ACL.
	SCR = 0xe000ed10
)

// ARMNormalizer is the default normalization policy for the ARMv8-M
// reference target.
type ARMNormalizer struct{}

// Translate maps bit-band alias addresses back to their physical target.
func (ARMNormalizer) Translate(addr uint32) uint32 {
	switch {
	case addr >= PeriphBitBandStart && addr <= PeriphBitBandEnd:
		return PeriphBitBandTarget + (addr-PeriphBitBandStart)>>5
	case addr >= SRAMBitBandStart && addr <= SRAMBitBandEnd:
		return SRAMBitBandTarget + (addr-SRAMBitBandStart)>>5
	default:
		return addr
	}
}

// Override grants user read/write on the System Control Register.
func (ARMNormalizer) Override(addr uint32) (ACL, bool) {
	if addr == SCR {
		return UserRead | UserWrite, true
	}

	return 0, false
}

// findRegion returns the ACL entry covering addr, searching the active box
// first and the base box as fallback.
func (m *Monitor) findRegion(addr uint32) (Region, bool) {
	if m.active != 0 && len(m.boxes) > m.active {
		if r, ok := m.boxes[m.active].FindRegionForAddress(addr); ok {
			return r, true
		}
	}

	if len(m.boxes) > 0 {
		if r, ok := m.boxes[0].FindRegionForAddress(addr); ok {
			return r, true
		}
	}

	return Region{}, false
}

// FindRegion returns the ACL entry covering addr, searching the active box
// first and the base box as fallback.
func (m *Monitor) FindRegion(addr uint32) (Region, bool) {
	return m.findRegion(addr)
}

// FindACL returns the permission set for an access of the given size at
// addr, or 0 if the access is not authorized. Alias addresses are
// normalized to their physical target before resolution and accesses
// extending past the end of the covering region are rejected.
func (m *Monitor) FindACL(addr uint32, size uint32) ACL {
	if m.norm != nil {
		if acl, ok := m.norm.Override(addr); ok {
			return acl
		}

		addr = m.norm.Translate(addr)
	}

	region, ok := m.findRegion(addr)

	if !ok {
		return 0
	}

	// ensure that the data fits in the selected region
	if addr+size > region.End {
		return 0
	}

	return region.ACL
}
