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

package modbus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/landas/micro-modbus/internal/persist"
)

// MemoryStore is a reference data model covering the full 16-bit
// address space of all four Modbus tables. It implements every
// callback category, is safe for concurrent use, and can be backed by
// a persistence layer so writes survive restarts.
//
// Requests addressing beyond the table bounds are answered with
// ExceptionIllegalDataAddress. That is a property of this store, not
// of the engine: the engine performs no address validation of its own.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  *persist.Tables
	storage persist.Storage

	serverID []byte
}

// NewMemoryStore creates a store with zeroed, non-persistent tables.
func NewMemoryStore() *MemoryStore {
	store, err := OpenStore(persist.NewMemory())
	if err != nil {
		// The in-memory backend cannot fail to load.
		panic(err)
	}
	return store
}

// NewMmapStore creates a store backed by a memory-mapped file at path.
// Writes are flushed to the file as they happen and the previous
// contents are visible after reopening.
func NewMmapStore(path string) (*MemoryStore, error) {
	return OpenStore(persist.NewMmap(path))
}

// OpenStore creates a store over an explicit persistence backend.
func OpenStore(storage persist.Storage) (*MemoryStore, error) {
	tables, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	return &MemoryStore{
		tables:   tables,
		storage:  storage,
		serverID: []byte("micro-modbus server"),
	}, nil
}

// Close flushes and releases the persistence backend.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Sync(); err != nil {
		s.storage.Close()
		return err
	}
	return s.storage.Close()
}

// Callbacks returns the callback set serving requests from this store.
func (s *MemoryStore) Callbacks() Callbacks {
	return Callbacks{
		ReadBits:   s.readBits,
		WriteBits:  s.writeBits,
		ReadWords:  s.readWords,
		WriteWords: s.writeWords,
		Other:      s.other,
	}
}

func (s *MemoryStore) readBits(fc FunctionCode, table Table, addr, qty uint16, bits []byte) error {
	var src []byte
	switch table {
	case TableCoils:
		src = s.tables.Coils
	case TableDiscreteInputs:
		src = s.tables.DiscreteInputs
	default:
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(addr)+int(qty) > len(src) {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}
	for i := 0; i < int(qty); i++ {
		if src[int(addr)+i] != 0 {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return nil
}

func (s *MemoryStore) writeBits(fc FunctionCode, table Table, addr, qty uint16, bits []byte) error {
	if table != TableCoils {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int(addr)+int(qty) > len(s.tables.Coils) {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}
	for i := 0; i < int(qty); i++ {
		s.tables.Coils[int(addr)+i] = (bits[i/8] >> (i % 8)) & 1
	}
	s.storage.OnWrite()
	return nil
}

func (s *MemoryStore) readWords(fc FunctionCode, table Table, addr, qty uint16, buf []byte) error {
	var src []uint16
	switch table {
	case TableHoldingRegisters:
		src = s.tables.HoldingRegisters
	case TableInputRegisters:
		src = s.tables.InputRegisters
	default:
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(addr)+int(qty) > len(src) {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}
	for i := 0; i < int(qty); i++ {
		binary.BigEndian.PutUint16(buf[i*2:], src[int(addr)+i])
	}
	return nil
}

func (s *MemoryStore) writeWords(fc FunctionCode, table Table, addr, qty uint16, buf []byte) error {
	if table != TableHoldingRegisters {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int(addr)+int(qty) > len(s.tables.HoldingRegisters) {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}
	for i := 0; i < int(qty); i++ {
		s.tables.HoldingRegisters[int(addr)+i] = binary.BigEndian.Uint16(buf[i*2:])
	}
	s.storage.OnWrite()
	return nil
}

// other serves the function codes this store understands beyond the
// typed categories: ReportServerID (0x11) and ReadExceptionStatus
// (0x07). Everything else is an illegal function.
func (s *MemoryStore) other(fc FunctionCode, req []byte, prependLen, appendLen int) ([]byte, error) {
	switch fc {
	case FuncReportServerID:
		s.mu.RLock()
		id := make([]byte, len(s.serverID))
		copy(id, s.serverID)
		s.mu.RUnlock()

		buf := make([]byte, prependLen+1+len(id)+appendLen)
		buf[prependLen] = byte(len(id))
		copy(buf[prependLen+1:], id)
		return buf, nil
	case FuncReadExceptionStatus:
		buf := make([]byte, prependLen+1+appendLen)
		buf[prependLen] = 0
		return buf, nil
	default:
		return nil, NewModbusError(fc, ExceptionIllegalFunction)
	}
}

// SetServerID sets the identification returned for ReportServerID.
// The ID is truncated to the 250 bytes a single response can carry.
func (s *MemoryStore) SetServerID(id []byte) {
	if len(id) > 250 {
		id = id[:250]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverID = make([]byte, len(id))
	copy(s.serverID, id)
}

// SetCoil sets a coil value directly.
func (s *MemoryStore) SetCoil(addr uint16, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value {
		s.tables.Coils[addr] = 1
	} else {
		s.tables.Coils[addr] = 0
	}
	s.storage.OnWrite()
}

// SetDiscreteInput sets a discrete input value directly.
func (s *MemoryStore) SetDiscreteInput(addr uint16, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value {
		s.tables.DiscreteInputs[addr] = 1
	} else {
		s.tables.DiscreteInputs[addr] = 0
	}
	s.storage.OnWrite()
}

// SetHoldingRegister sets a holding register value directly.
func (s *MemoryStore) SetHoldingRegister(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables.HoldingRegisters[addr] = value
	s.storage.OnWrite()
}

// SetInputRegister sets an input register value directly.
func (s *MemoryStore) SetInputRegister(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables.InputRegisters[addr] = value
	s.storage.OnWrite()
}

// HoldingRegister reads a holding register value directly.
func (s *MemoryStore) HoldingRegister(addr uint16) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables.HoldingRegisters[addr]
}

// Coil reads a coil value directly.
func (s *MemoryStore) Coil(addr uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables.Coils[addr] != 0
}
