// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package config implements the box configuration descriptor, the in-flash
// contract consumed at box creation time, along with a YAML front-end used
// by the simulator to author descriptors.
package config

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic identifies a box configuration descriptor.
	Magic = 0x42cfb66f
	// Version is the supported descriptor version.
	Version = 100

	// DefaultStackSize applies when the descriptor requests no stack.
	DefaultStackSize = 1024

	// Descriptor sanity bounds.
	MaxACLEntries  = 64
	MaxEntryPoints = 16

	headerSize   = 6 * 4
	aclEntrySize = 3 * 4
)

// ACLEntry is one declared access control entry.
type ACLEntry struct {
	Start  uint32
	Length uint32
	Access uint32
}

// Descriptor is a box configuration record: requested stack size, context
// size, declared ACL list and externally callable entry points.
type Descriptor struct {
	StackSize   uint32
	ContextSize uint32
	ACL         []ACLEntry
	EntryPoints []uint32
}

// Marshal encodes the descriptor in its fixed little-endian layout: magic,
// version, stack size, context size, ACL count, entry point count, followed
// by the ACL entries and the entry point addresses.
func (d *Descriptor) Marshal() []byte {
	buf := make([]byte, headerSize+len(d.ACL)*aclEntrySize+len(d.EntryPoints)*4)

	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	binary.LittleEndian.PutUint32(buf[8:], d.StackSize)
	binary.LittleEndian.PutUint32(buf[12:], d.ContextSize)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(d.ACL)))
	binary.LittleEndian.PutUint32(buf[20:], uint32(len(d.EntryPoints)))

	off := headerSize

	for _, e := range d.ACL {
		binary.LittleEndian.PutUint32(buf[off+0:], e.Start)
		binary.LittleEndian.PutUint32(buf[off+4:], e.Length)
		binary.LittleEndian.PutUint32(buf[off+8:], e.Access)
		off += aclEntrySize
	}

	for _, fn := range d.EntryPoints {
		binary.LittleEndian.PutUint32(buf[off:], fn)
		off += 4
	}

	return buf
}

// Parse decodes and validates a box configuration descriptor. A zero stack
// size request is replaced with DefaultStackSize.
func Parse(buf []byte) (d *Descriptor, err error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("invalid descriptor length %d", len(buf))
	}

	if magic := binary.LittleEndian.Uint32(buf[0:]); magic != Magic {
		return nil, fmt.Errorf("invalid magic %#x", magic)
	}

	if version := binary.LittleEndian.Uint32(buf[4:]); version != Version {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	d = &Descriptor{
		StackSize:   binary.LittleEndian.Uint32(buf[8:]),
		ContextSize: binary.LittleEndian.Uint32(buf[12:]),
	}

	aclCount := binary.LittleEndian.Uint32(buf[16:])
	fnCount := binary.LittleEndian.Uint32(buf[20:])

	if aclCount > MaxACLEntries {
		return nil, fmt.Errorf("invalid ACL count %d", aclCount)
	}

	if fnCount > MaxEntryPoints {
		return nil, fmt.Errorf("invalid entry point count %d", fnCount)
	}

	if want := headerSize + int(aclCount)*aclEntrySize + int(fnCount)*4; len(buf) < want {
		return nil, fmt.Errorf("truncated descriptor, %d < %d", len(buf), want)
	}

	if d.StackSize == 0 {
		d.StackSize = DefaultStackSize
	}

	off := headerSize

	for i := uint32(0); i < aclCount; i++ {
		d.ACL = append(d.ACL, ACLEntry{
			Start:  binary.LittleEndian.Uint32(buf[off+0:]),
			Length: binary.LittleEndian.Uint32(buf[off+4:]),
			Access: binary.LittleEndian.Uint32(buf[off+8:]),
		})
		off += aclEntrySize
	}

	for i := uint32(0); i < fnCount; i++ {
		d.EntryPoints = append(d.EntryPoints, binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	return
}
