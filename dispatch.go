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

// Category identifies which handler shape serves a function code.
type Category uint8

const (
	// CategoryOther covers every function code without a typed
	// handler shape; requests are routed to the Other callback.
	CategoryOther Category = iota
	CategoryReadBits
	CategoryWriteBits
	CategoryReadWords
	CategoryWriteWords
	// CategoryReadWriteWords is the composite FC 0x17, sequenced as
	// write-then-read.
	CategoryReadWriteWords
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryReadBits:
		return "read_bits"
	case CategoryWriteBits:
		return "write_bits"
	case CategoryReadWords:
		return "read_words"
	case CategoryWriteWords:
		return "write_words"
	case CategoryReadWriteWords:
		return "read_write_words"
	default:
		return "other"
	}
}

// Classify maps a function code to its handler category and the data
// table it addresses. The mapping is static and total: every 8-bit code
// resolves to exactly one category, with unlisted codes falling into
// CategoryOther. It is pure and safe for concurrent use.
func Classify(fc FunctionCode) (Category, Table) {
	switch fc {
	case FuncReadCoils:
		return CategoryReadBits, TableCoils
	case FuncReadDiscreteInputs:
		return CategoryReadBits, TableDiscreteInputs
	case FuncReadHoldingRegisters:
		return CategoryReadWords, TableHoldingRegisters
	case FuncReadInputRegisters:
		return CategoryReadWords, TableInputRegisters
	case FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return CategoryWriteBits, TableCoils
	case FuncWriteSingleRegister, FuncWriteMultipleRegisters:
		return CategoryWriteWords, TableHoldingRegisters
	case FuncReadWriteMultipleRegisters:
		return CategoryReadWriteWords, TableHoldingRegisters
	default:
		return CategoryOther, TableNone
	}
}
