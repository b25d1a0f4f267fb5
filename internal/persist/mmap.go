// Copyright 2025 The micro-modbus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persist

import (
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// File layout, in order:
// - Coils: 65536 bytes
// - DiscreteInputs: 65536 bytes
// - HoldingRegisters: 65536 * 2 bytes
// - InputRegisters: 65536 * 2 bytes
const (
	sizeCoils    = MaxAddress + 1
	sizeDiscrete = MaxAddress + 1
	sizeHolding  = (MaxAddress + 1) * 2
	sizeInput    = (MaxAddress + 1) * 2
	totalSize    = sizeCoils + sizeDiscrete + sizeHolding + sizeInput

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + sizeCoils
	offsetHolding  = offsetDiscrete + sizeDiscrete
	offsetInput    = offsetHolding + sizeHolding
)

// Mmap persists the data tables in a memory-mapped file. The tables
// returned by Load alias the mapping directly, so every write lands in
// the page cache and OnWrite flushes it to disk.
type Mmap struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmap creates an Mmap backend for the file at path. The file is
// created and sized on Load if needed.
func NewMmap(path string) *Mmap {
	return &Mmap{
		path: path,
	}
}

// Load maps the file and returns tables backed by the mapping.
func (m *Mmap) Load() (*Tables, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open mmap file: %w", err)
	}
	m.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	m.data = data

	return mapBytesToTables(data), nil
}

// OnWrite flushes the mapping so mutations persist in real time.
func (m *Mmap) OnWrite() {
	if m.data == nil {
		return
	}
	if err := m.data.Flush(); err != nil {
		slog.Error("failed to flush mmap", slog.String("error", err.Error()))
	}
}

// Sync flushes the mapping to disk.
func (m *Mmap) Sync() error {
	if m.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return m.data.Flush()
}

// Close unmaps and closes the file.
func (m *Mmap) Close() error {
	var err error
	if m.data != nil {
		if e := m.data.Unmap(); e != nil {
			err = e
		}
		m.data = nil
	}
	if m.file != nil {
		if e := m.file.Close(); e != nil {
			err = e
		}
		m.file = nil
	}
	return err
}

// mapBytesToTables constructs Tables backed by the provided mapping.
// The register slices are reinterpreted from the byte region with
// unsafe, so multi-byte values use the host's endianness: zero-copy
// access at the cost of portability of the file across architectures.
func mapBytesToTables(data []byte) *Tables {
	t := &Tables{}

	t.Coils = data[offsetCoils : offsetCoils+sizeCoils]
	t.DiscreteInputs = data[offsetDiscrete : offsetDiscrete+sizeDiscrete]

	holdingBytes := data[offsetHolding : offsetHolding+sizeHolding]
	t.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)

	inputBytes := data[offsetInput : offsetInput+sizeInput]
	t.InputRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&inputBytes[0])), sizeInput/2)

	return t
}
