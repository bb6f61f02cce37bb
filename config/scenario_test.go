// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/ccli8/uvisor/vmpu"
)

const testScenario = `
memory:
  flash_start: 0x00000000
  entry_points_start: 0x000fc000
  entry_points_end: 0x000fc400
  flash_end: 0x00100000
  page_heap_end: 0x20020000
  sram_end: 0x20040000
  box_memory_start: 0x20004000
heap:
  start: 0x20010000
  size: 0x10000
  page_size: 0x1000
boxes:
  - name: base
    acl:
      - start: 0x00000000
        size: 0x1000
        access: [uread, uwrite, uexec]
  - name: led
    stack_size: 1024
    context_size: 256
    acl:
      - start: 0x40002000
        size: 0x1000
        access: [uread, uwrite]
    entry_points: [0x000fc000]
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(testScenario))

	if err != nil {
		t.Fatal(err)
	}

	mm := s.Memory.MemoryMap()

	if mm.EntryPointsStart != 0x000fc000 || mm.BoxMemoryStart != 0x20004000 {
		t.Errorf("memory map %+v", mm)
	}

	if s.Heap.PageSize != 0x1000 {
		t.Errorf("page size %#x", s.Heap.PageSize)
	}

	if len(s.Boxes) != 2 {
		t.Fatalf("box count %d", len(s.Boxes))
	}

	d, err := s.Boxes[1].Descriptor()

	if err != nil {
		t.Fatal(err)
	}

	if d.StackSize != 1024 || d.ContextSize != 256 {
		t.Errorf("descriptor %+v", d)
	}

	if len(d.ACL) != 1 || d.ACL[0].Access != uint32(vmpu.UserRead|vmpu.UserWrite) {
		t.Errorf("descriptor ACL %+v", d.ACL)
	}

	if len(d.EntryPoints) != 1 || d.EntryPoints[0] != 0x000fc000 {
		t.Errorf("descriptor entry points %#x", d.EntryPoints)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	if _, err := ParseScenario([]byte("boxes: []")); err == nil {
		t.Error("expected error for empty box set")
	}

	if _, err := ParseScenario([]byte("boxes: 42")); err == nil {
		t.Error("expected error for malformed scenario")
	}
}

func TestPermissions(t *testing.T) {
	a := ACLConfig{Access: []string{"sread", "swrite", "nsc"}}

	acl, err := a.Permissions()

	if err != nil {
		t.Fatal(err)
	}

	if acl != vmpu.SecureRead|vmpu.SecureWrite|vmpu.NonSecureCallable {
		t.Errorf("permissions %#x", acl)
	}

	a = ACLConfig{Access: []string{"rwx"}}

	if _, err = a.Permissions(); err == nil {
		t.Error("expected error for unknown permission")
	}
}
