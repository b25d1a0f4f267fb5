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

import "testing"

func TestClassify_TypedCodes(t *testing.T) {
	tests := []struct {
		fc       FunctionCode
		category Category
		table    Table
	}{
		{FuncReadCoils, CategoryReadBits, TableCoils},
		{FuncReadDiscreteInputs, CategoryReadBits, TableDiscreteInputs},
		{FuncReadHoldingRegisters, CategoryReadWords, TableHoldingRegisters},
		{FuncReadInputRegisters, CategoryReadWords, TableInputRegisters},
		{FuncWriteSingleCoil, CategoryWriteBits, TableCoils},
		{FuncWriteMultipleCoils, CategoryWriteBits, TableCoils},
		{FuncWriteSingleRegister, CategoryWriteWords, TableHoldingRegisters},
		{FuncWriteMultipleRegisters, CategoryWriteWords, TableHoldingRegisters},
		{FuncReadWriteMultipleRegisters, CategoryReadWriteWords, TableHoldingRegisters},
	}

	for _, tt := range tests {
		t.Run(tt.fc.String(), func(t *testing.T) {
			category, table := Classify(tt.fc)
			if category != tt.category {
				t.Errorf("category: expected %v, got %v", tt.category, category)
			}
			if table != tt.table {
				t.Errorf("table: expected %v, got %v", tt.table, table)
			}
		})
	}
}

func TestClassify_Total(t *testing.T) {
	typed := map[FunctionCode]bool{
		FuncReadCoils:                  true,
		FuncReadDiscreteInputs:         true,
		FuncReadHoldingRegisters:       true,
		FuncReadInputRegisters:         true,
		FuncWriteSingleCoil:            true,
		FuncWriteSingleRegister:        true,
		FuncWriteMultipleCoils:         true,
		FuncWriteMultipleRegisters:     true,
		FuncReadWriteMultipleRegisters: true,
	}

	// Every possible 8-bit code must resolve to exactly one category.
	for code := 0; code <= 255; code++ {
		fc := FunctionCode(code)
		category, table := Classify(fc)

		if typed[fc] {
			if category == CategoryOther {
				t.Errorf("code 0x%02X: expected typed category, got other", code)
			}
			if table == TableNone {
				t.Errorf("code 0x%02X: expected data table, got none", code)
			}
		} else {
			if category != CategoryOther {
				t.Errorf("code 0x%02X: expected other, got %v", code, category)
			}
			if table != TableNone {
				t.Errorf("code 0x%02X: expected no table, got %v", code, table)
			}
		}
	}
}

func TestClassify_Stable(t *testing.T) {
	// Classification must not depend on prior calls.
	for code := 0; code <= 255; code++ {
		fc := FunctionCode(code)
		c1, t1 := Classify(fc)
		c2, t2 := Classify(fc)
		if c1 != c2 || t1 != t2 {
			t.Errorf("code 0x%02X: classification unstable: (%v,%v) then (%v,%v)",
				code, c1, t1, c2, t2)
		}
	}
}
