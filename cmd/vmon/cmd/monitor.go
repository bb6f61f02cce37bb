// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/ccli8/uvisor/emu"
	"github.com/ccli8/uvisor/vmpu"
)

func init() {
	Add(Cmd{
		Name: "boxes",
		Help: "list boxes and their regions",
		Fn:   boxesCmd,
	})

	Add(Cmd{
		Name: "table",
		Help: "dump the hardware region table",
		Fn:   tableCmd,
	})

	Add(Cmd{
		Name:    "switch",
		Args:    1,
		Pattern: regexp.MustCompile(`^switch (\d+)$`),
		Syntax:  "<box>",
		Help:    "switch to box",
		Fn:      switchCmd,
	})

	Add(Cmd{
		Name:    "acl",
		Args:    2,
		Pattern: regexp.MustCompile(`^acl ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex addr> <size>",
		Help:    "resolve the ACL for an access",
		Fn:      aclCmd,
	})

	Add(Cmd{
		Name:    "access",
		Args:    3,
		Pattern: regexp.MustCompile(`^access (r|w|x) ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<r|w|x> <hex addr> <size>",
		Help:    "attempt a checked memory access",
		Fn:      accessCmd,
	})

	Add(Cmd{
		Name:    "alloc",
		Args:    1,
		Pattern: regexp.MustCompile(`^alloc (\d+)$`),
		Syntax:  "<box>",
		Help:    "allocate a heap page for box",
		Fn:      allocCmd,
	})

	Add(Cmd{
		Name:    "free",
		Args:    1,
		Pattern: regexp.MustCompile(`^free ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr>",
		Help:    "free a heap page",
		Fn:      freeCmd,
	})

	Add(Cmd{
		Name: "state",
		Help: "monitor state and halt diagnostic",
		Fn:   stateCmd,
	})
}

func boxesCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var out bytes.Buffer

	for _, box := range Machine.Monitor.Boxes() {
		active := " "

		if box.ID == Machine.Monitor.ActiveBox() {
			active = "*"
		}

		fmt.Fprintf(&out, "%s box %d (%s) sp:%#.8x bss:%#.8x\n", active, box.ID, box.Name, box.StackPointer, box.BSSStart)

		if box.ID != 0 {
			fmt.Fprintf(&out, "    stack   %#.8x-%#.8x\n", box.Stack.Start, box.Stack.End)
			fmt.Fprintf(&out, "    context %#.8x-%#.8x\n", box.Context.Start, box.Context.End)
		}

		for _, r := range box.ACLs {
			fmt.Fprintf(&out, "    acl     %#.8x-%#.8x %#x\n", r.Start, r.End, uint32(r.ACL))
		}
	}

	return out.String(), nil
}

func tableCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var out bytes.Buffer

	for i, s := range Machine.Monitor.Table().Slots() {
		if s.Priority == vmpu.PriorityNone {
			fmt.Fprintf(&out, "%2d -\n", i)
			continue
		}

		fmt.Fprintf(&out, "%2d %#.8x-%#.8x %-7s acl:%#x\n", i, s.Region.Start, s.Region.End, s.Priority, uint32(s.Region.ACL))
	}

	return out.String(), nil
}

func switchCmd(_ *term.Terminal, arg []string) (res string, err error) {
	dst, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid box, %v", err)
	}

	src := Machine.Monitor.ActiveBox()

	if err = Machine.Monitor.Switch(src, dst); err != nil {
		return
	}

	return fmt.Sprintf("switched %d -> %d", src, dst), nil
}

func aclCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	acl := Machine.Monitor.FindACL(uint32(addr), uint32(size))

	if acl == 0 {
		return "no permission", nil
	}

	return fmt.Sprintf("acl %#x", uint32(acl)), nil
}

func accessCmd(_ *term.Terminal, arg []string) (res string, err error) {
	var kind emu.AccessKind

	switch arg[0] {
	case "w":
		kind = emu.Write
	case "x":
		kind = emu.Execute
	default:
		kind = emu.Read
	}

	addr, err := strconv.ParseUint(arg[1], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[2], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if err = Machine.Access(uint32(addr), uint32(size), kind, false, 0); err != nil {
		return
	}

	return fmt.Sprintf("%s at %#.8x permitted", kind, addr), nil
}

func allocCmd(_ *term.Terminal, arg []string) (res string, err error) {
	box, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid box, %v", err)
	}

	addr, err := Heap.Allocate(box)

	if err != nil {
		return
	}

	return fmt.Sprintf("page %#.8x", addr), nil
}

func freeCmd(_ *term.Terminal, arg []string) (res string, err error) {
	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	if err = Heap.Free(uint32(addr)); err != nil {
		return
	}

	return "freed", nil
}

func stateCmd(_ *term.Terminal, _ []string) (res string, err error) {
	res = fmt.Sprintf("state: %s, active box: %d", Machine.Monitor.State(), Machine.Monitor.ActiveBox())

	if diag := Machine.Monitor.Diagnostic(); diag != nil {
		res += fmt.Sprintf("\nhalt: %s", diag)
	}

	return
}
