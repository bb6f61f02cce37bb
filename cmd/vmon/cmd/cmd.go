// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the monitor debug console commands.
package cmd

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/ccli8/uvisor/emu"
	"github.com/ccli8/uvisor/pageheap"
	"github.com/ccli8/uvisor/util"
)

// CmdFn is a command handler, returning the command output.
type CmdFn func(term *term.Terminal, arg []string) (res string, err error)

// Cmd is a console command.
type Cmd struct {
	Name    string
	Args    int
	Pattern *regexp.Regexp
	Syntax  string
	Help    string
	Fn      CmdFn
}

// Console state wired by the monitor main.
var (
	Machine *emu.Machine
	Heap    *pageheap.Allocator
	Console *util.Console
)

var (
	mux  sync.Mutex
	cmds = make(map[string]*Cmd)
)

// Add registers a console command.
func Add(cmd Cmd) {
	mux.Lock()
	defer mux.Unlock()

	cmds[cmd.Name] = &cmd
}

// Help returns the formatted command list.
func Help() string {
	var help bytes.Buffer
	var names []string

	mux.Lock()
	defer mux.Unlock()

	for name := range cmds {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		c := cmds[name]
		help.WriteString(fmt.Sprintf("%-12s %-24s # %s\n", c.Name, c.Syntax, c.Help))
	}

	return help.String()
}

func match(line string) (c *Cmd, arg []string) {
	fields := strings.Fields(line)

	mux.Lock()
	defer mux.Unlock()

	for _, cmd := range cmds {
		if cmd.Pattern != nil {
			if m := cmd.Pattern.FindStringSubmatch(line); len(m) == cmd.Args+1 {
				return cmd, m[1:]
			}

			continue
		}

		if cmd.Name == fields[0] && len(fields) == cmd.Args+1 {
			return cmd, fields[1:]
		}
	}

	return
}

// Handle parses a console command line, dispatches it to the matching
// command and prints its output.
func Handle(t *term.Terminal, line string) (err error) {
	line = strings.TrimSpace(line)

	if len(line) == 0 {
		return
	}

	c, arg := match(line)

	if c == nil {
		return fmt.Errorf("unknown command, type `help`")
	}

	res, err := c.Fn(t, arg)

	if err != nil {
		return
	}

	if len(res) > 0 {
		fmt.Fprintln(t, res)
	}

	return
}
