// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ccli8/uvisor/vmpu"
)

// Scenario is a simulator configuration: the target memory map, the page
// heap geometry and the box set.
type Scenario struct {
	Memory MemoryConfig `yaml:"memory"`
	Heap   HeapConfig   `yaml:"heap"`
	Boxes  []BoxConfig  `yaml:"boxes"`
}

// MemoryConfig mirrors the linker-provided memory boundaries.
type MemoryConfig struct {
	FlashStart       uint32 `yaml:"flash_start"`
	EntryPointsStart uint32 `yaml:"entry_points_start"`
	EntryPointsEnd   uint32 `yaml:"entry_points_end"`
	FlashEnd         uint32 `yaml:"flash_end"`
	PageHeapEnd      uint32 `yaml:"page_heap_end"`
	SRAMEnd          uint32 `yaml:"sram_end"`
	BoxMemoryStart   uint32 `yaml:"box_memory_start"`
}

// MemoryMap converts the configuration to the bootstrap memory map.
func (c MemoryConfig) MemoryMap() vmpu.MemoryMap {
	return vmpu.MemoryMap{
		FlashStart:       c.FlashStart,
		EntryPointsStart: c.EntryPointsStart,
		EntryPointsEnd:   c.EntryPointsEnd,
		FlashEnd:         c.FlashEnd,
		PageHeapEnd:      c.PageHeapEnd,
		SRAMEnd:          c.SRAMEnd,
		BoxMemoryStart:   c.BoxMemoryStart,
	}
}

// HeapConfig is the page heap geometry.
type HeapConfig struct {
	Start    uint32 `yaml:"start"`
	Size     uint32 `yaml:"size"`
	PageSize uint32 `yaml:"page_size"`
}

// BoxConfig is the YAML authoring form of a box configuration descriptor.
type BoxConfig struct {
	Name        string      `yaml:"name"`
	StackSize   uint32      `yaml:"stack_size"`
	ContextSize uint32      `yaml:"context_size"`
	ACL         []ACLConfig `yaml:"acl"`
	EntryPoints []uint32    `yaml:"entry_points"`
}

// ACLConfig is one declared access control entry with symbolic permission
// names.
type ACLConfig struct {
	Start  uint32   `yaml:"start"`
	Size   uint32   `yaml:"size"`
	Access []string `yaml:"access"`
}

var accessNames = map[string]vmpu.ACL{
	"uread":  vmpu.UserRead,
	"uwrite": vmpu.UserWrite,
	"uexec":  vmpu.UserExecute,
	"sread":  vmpu.SecureRead,
	"swrite": vmpu.SecureWrite,
	"sexec":  vmpu.SecureExecute,
	"nsc":    vmpu.NonSecureCallable,
}

// Permissions resolves the symbolic access names to an ACL bitset.
func (a ACLConfig) Permissions() (acl vmpu.ACL, err error) {
	for _, name := range a.Access {
		bit, ok := accessNames[name]

		if !ok {
			return 0, fmt.Errorf("unknown permission %q", name)
		}

		acl |= bit
	}

	return
}

// Descriptor converts the box configuration to its binary descriptor form.
func (b BoxConfig) Descriptor() (d *Descriptor, err error) {
	d = &Descriptor{
		StackSize:   b.StackSize,
		ContextSize: b.ContextSize,
		EntryPoints: append([]uint32{}, b.EntryPoints...),
	}

	for _, a := range b.ACL {
		acl, err := a.Permissions()

		if err != nil {
			return nil, err
		}

		d.ACL = append(d.ACL, ACLEntry{
			Start:  a.Start,
			Length: a.Size,
			Access: uint32(acl),
		})
	}

	return
}

// Regions converts descriptor ACL entries to engine regions.
func Regions(entries []ACLEntry) []vmpu.Region {
	var regions []vmpu.Region

	for _, e := range entries {
		regions = append(regions, vmpu.Region{
			Start: e.Start,
			End:   e.Start + e.Length,
			ACL:   vmpu.ACL(e.Access),
		})
	}

	return regions
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(buf []byte) (s *Scenario, err error) {
	s = &Scenario{}

	if err = yaml.Unmarshal(buf, s); err != nil {
		return nil, fmt.Errorf("invalid scenario, %v", err)
	}

	if len(s.Boxes) == 0 {
		return nil, fmt.Errorf("scenario defines no boxes")
	}

	return
}

// LoadScenario reads and decodes a YAML scenario file.
func LoadScenario(path string) (s *Scenario, err error) {
	buf, err := os.ReadFile(path)

	if err != nil {
		return
	}

	return ParseScenario(buf)
}
