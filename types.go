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

// Package modbus implements a Modbus TCP server core: frame codec,
// function-code dispatch, response assembly and the per-connection
// service loop. The data model behind the requests is supplied by the
// application through a set of optional callbacks; the engine itself
// owns no registers or coils.
package modbus

import "time"

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Standard Modbus function codes handled by the typed dispatch
// categories. Any other code is routed to the Other callback.
const (
	FuncReadCoils                  FunctionCode = 0x01
	FuncReadDiscreteInputs         FunctionCode = 0x02
	FuncReadHoldingRegisters       FunctionCode = 0x03
	FuncReadInputRegisters         FunctionCode = 0x04
	FuncWriteSingleCoil            FunctionCode = 0x05
	FuncWriteSingleRegister        FunctionCode = 0x06
	FuncWriteMultipleCoils         FunctionCode = 0x0F
	FuncWriteMultipleRegisters     FunctionCode = 0x10
	FuncReadWriteMultipleRegisters FunctionCode = 0x17
)

// Function codes commonly served through the Other callback.
const (
	FuncReadExceptionStatus FunctionCode = 0x07
	FuncDiagnostics         FunctionCode = 0x08
	FuncGetCommEventCounter FunctionCode = 0x0B
	FuncReportServerID      FunctionCode = 0x11
)

// Table identifies which logical data table a shared handler shape
// should address when several function codes use the same callback.
type Table uint8

const (
	// TableNone is reported for function codes outside the typed
	// categories.
	TableNone Table = iota
	TableCoils
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

// String returns the string representation of the data table.
func (t Table) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return "none"
	}
}

// Protocol constants.
const (
	// MaxQuantityBits is the maximum number of coils or discrete
	// inputs in a single read or write.
	MaxQuantityBits = 2000

	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MaxPDUSize is the maximum size of a Modbus PDU in bytes.
	MaxPDUSize = 253

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0

	// DefaultIdleTimeout is how long a connection may sit without a
	// complete frame before the server closes it.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultPort is the default Modbus TCP port.
	DefaultPort = 502
)

// Coil values for single-coil writes.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// BitsFunc handles reads or writes of packed bit data (coils and
// discrete inputs). For reads the engine allocates bits sized to hold
// ceil(qty/8) bytes and the callback fills it; for writes the engine
// extracts the bit values from the request into bits and the callback
// consumes them. Bit i of the range is bit i%8 of bits[i/8].
//
// A nil return means success. Returning a *ModbusError propagates its
// exception code verbatim; any other error becomes
// ExceptionServerDeviceFailure.
type BitsFunc func(fc FunctionCode, table Table, addr, qty uint16, bits []byte) error

// WordsFunc is the 16-bit analogue of BitsFunc: buf holds qty
// big-endian register values (2 bytes each), filled by the callback on
// reads and consumed on writes.
type WordsFunc func(fc FunctionCode, table Table, addr, qty uint16, buf []byte) error

// OtherFunc handles function codes outside the typed categories. The
// callback receives the request PDU payload (the bytes after the
// function code) and must allocate its own response buffer of
// prepend+n+append bytes, writing its n response payload bytes starting
// at offset prepend. The engine overwrites the leading prepend bytes
// with the transport header and function code, fills the trailing
// append bytes with any protocol footer, and sends the whole region.
// The returned buffer must not be retained by the callback.
type OtherFunc func(fc FunctionCode, req []byte, prependLen, appendLen int) ([]byte, error)

// Callbacks is the application-supplied handler set. Every entry is
// optional; a request whose category has no callback is answered with
// ExceptionIllegalFunction. The value is read-only after the server is
// created, so the callbacks themselves are the only place cross-client
// synchronization can live.
type Callbacks struct {
	ReadBits   BitsFunc
	WriteBits  BitsFunc
	ReadWords  WordsFunc
	WriteWords WordsFunc
	Other      OtherFunc
}
