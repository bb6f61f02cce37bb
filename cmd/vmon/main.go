// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// vmon boots the isolation engine over an emulated ARMv8-M memory system
// and exposes an SSH debug console for state inspection and fault
// injection.
package main

import (
	_ "embed"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"

	"github.com/ccli8/uvisor/cmd/vmon/cmd"
	"github.com/ccli8/uvisor/config"
	"github.com/ccli8/uvisor/emu"
	"github.com/ccli8/uvisor/mem"
	"github.com/ccli8/uvisor/pageheap"
	"github.com/ccli8/uvisor/util"
	"github.com/ccli8/uvisor/vmpu"
)

//go:embed default.yaml
var defaultScenario []byte

var (
	conf   = flag.String("c", "", "scenario configuration file")
	listen = flag.String("l", "127.0.0.1:10022", "ssh console listen address")
)

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

func boot(s *config.Scenario) (machine *emu.Machine, heap *pageheap.Allocator, err error) {
	table, err := vmpu.NewTable(vmpu.DefaultSlots)

	if err != nil {
		return
	}

	if heap, err = pageheap.New(s.Heap.Start, s.Heap.Size, s.Heap.PageSize); err != nil {
		return nil, nil, fmt.Errorf("SM could not initialize page heap, %v", err)
	}

	machine = emu.New(table, heap, vmpu.ARMNormalizer{})
	mon := machine.Monitor

	if err = mon.ArchInit(s.Memory.MemoryMap()); err != nil {
		return nil, nil, fmt.Errorf("SM could not initialize architecture, %v", err)
	}

	for _, b := range s.Boxes {
		d, err := b.Descriptor()

		if err != nil {
			return nil, nil, err
		}

		// boot from the binary descriptor exactly as a flash image would
		d, err = config.Parse(d.Marshal())

		if err != nil {
			return nil, nil, err
		}

		box, err := mon.CreateBox(b.Name, d.StackSize, d.ContextSize, config.Regions(d.ACL), d.EntryPoints)

		if err != nil {
			return nil, nil, fmt.Errorf("SM could not create box %s, %v", b.Name, err)
		}

		log.Printf("SM created box %d (%s) sp:%#.8x bss:%#.8x", box.ID, box.Name, box.StackPointer, box.BSSStart)
	}

	if err = mon.Switch(0, 0); err != nil {
		return nil, nil, err
	}

	return
}

func main() {
	flag.Parse()

	var s *config.Scenario
	var err error

	if *conf != "" {
		s, err = config.LoadScenario(*conf)
	} else {
		s, err = config.ParseScenario(defaultScenario)
	}

	if err != nil {
		log.Fatalf("SM could not load scenario, %v", err)
	}

	machine, heap, err := boot(s)

	if err != nil {
		log.Fatalf("SM could not boot, %v", err)
	}

	cmd.Machine = machine
	cmd.Heap = heap

	machine.MapMMIO(mem.UARTTX, func(b byte) {
		if cmd.Console != nil && cmd.Console.Term != nil {
			util.BufferedTermLog(b, machine.Monitor.ActiveBox(), cmd.Console.Term)
		} else {
			util.BufferedStdoutLog(b, machine.Monitor.ActiveBox())
		}
	})

	listener, err := net.Listen("tcp", *listen)

	if err != nil {
		log.Fatalf("SM could not initialize console listener, %v", err)
	}

	console := &util.Console{
		Banner:   fmt.Sprintf("vmon %s/%s (%s) • security monitor simulator", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		Help:     cmd.Help(),
		Handler:  cmd.Handle,
		Listener: listener,
	}

	cmd.Console = console

	if err = console.Start(); err != nil {
		log.Fatalf("SM could not initialize SSH console, %v", err)
	}

	log.Printf("SM %d boxes, active box %d, console at %s", len(machine.Monitor.Boxes()), machine.Monitor.ActiveBox(), *listen)

	// the monitor is fault driven from here on
	select {}
}
