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

// Package persist provides backing storage for the Modbus data tables.
package persist

// MaxAddress is the highest addressable point in each table.
const MaxAddress = 65535

// Tables holds the four Modbus data tables over the full 16-bit
// address space. Coils and discrete inputs are stored one byte per
// point, 1 (ON) or 0 (OFF).
type Tables struct {
	Coils            []byte
	DiscreteInputs   []byte
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// Storage loads and persists the data tables. OnWrite is a hook called
// after every mutation so a backend can persist in real time.
type Storage interface {
	Load() (*Tables, error)
	OnWrite()
	Sync() error
	Close() error
}

// Memory is a non-persistent backend: Load returns zeroed tables and
// every other operation is a no-op.
type Memory struct{}

// NewMemory creates a Memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns fresh zeroed tables.
func (*Memory) Load() (*Tables, error) {
	return &Tables{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}, nil
}

// OnWrite is a no-op.
func (*Memory) OnWrite() {}

// Sync is a no-op.
func (*Memory) Sync() error { return nil }

// Close is a no-op.
func (*Memory) Close() error { return nil }
