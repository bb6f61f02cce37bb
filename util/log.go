// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"os"
	"sync"

	"golang.org/x/term"
)

const outputLimit = 1024
const flushChr = 0x0a // \n

var (
	mux     sync.Mutex
	buffers = make(map[int]*bytes.Buffer)
)

func buffer(box int) *bytes.Buffer {
	buf, ok := buffers[box]

	if !ok {
		buf = &bytes.Buffer{}
		buffers[box] = buf
	}

	return buf
}

// BufferedStdoutLog accumulates console output of a box and flushes it to
// standard output line by line, avoiding interleaved logs across boxes.
func BufferedStdoutLog(c byte, box int) {
	mux.Lock()
	defer mux.Unlock()

	buf := buffer(box)
	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		os.Stdout.Write(buf.Bytes())
		buf.Reset()
	}
}

// BufferedTermLog accumulates console output of a box and flushes it line
// by line to standard output and to the remote terminal, with the base box
// colored differently from user boxes.
func BufferedTermLog(c byte, box int, t *term.Terminal) {
	mux.Lock()
	defer mux.Unlock()

	color := t.Escape.Red

	if box == 0 {
		color = t.Escape.Green
	}

	buf := buffer(box)
	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		os.Stdout.Write(buf.Bytes())

		t.Write(color)
		t.Write(buf.Bytes())
		t.Write(t.Escape.Reset)

		buf.Reset()
	}
}
