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
	"errors"
	"fmt"
	"testing"
)

func TestAsException(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ExceptionCode
	}{
		{"nil", nil, 0},
		{"modbus error", NewModbusError(FuncReadCoils, ExceptionIllegalDataAddress), ExceptionIllegalDataAddress},
		{"wrapped modbus error", fmt.Errorf("handler: %w", NewModbusError(FuncReadCoils, ExceptionServerDeviceBusy)), ExceptionServerDeviceBusy},
		{"plain error", errors.New("disk on fire"), ExceptionServerDeviceFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AsException(tt.err); got != tt.expected {
				t.Errorf("expected 0x%02X, got 0x%02X", tt.expected, got)
			}
		})
	}
}

func TestModbusError_Is(t *testing.T) {
	err := NewModbusError(FuncReadHoldingRegisters, ExceptionIllegalDataValue)

	if !errors.Is(err, &ModbusError{ExceptionCode: ExceptionIllegalDataValue}) {
		t.Error("expected match on same exception code")
	}
	if errors.Is(err, &ModbusError{ExceptionCode: ExceptionIllegalFunction}) {
		t.Error("expected no match on different exception code")
	}
	if errors.Is(err, ErrInvalidFrame) {
		t.Error("expected no match against a sentinel")
	}
}

func TestExceptionCode_String(t *testing.T) {
	if got := ExceptionIllegalFunction.String(); got != "illegal function" {
		t.Errorf("expected %q, got %q", "illegal function", got)
	}
	if got := ExceptionCode(0xEE).String(); got != "unknown exception (0xEE)" {
		t.Errorf("expected %q, got %q", "unknown exception (0xEE)", got)
	}
}

func TestIsExceptionHelpers(t *testing.T) {
	if !IsIllegalFunction(NewModbusError(0x09, ExceptionIllegalFunction)) {
		t.Error("IsIllegalFunction")
	}
	if !IsIllegalDataAddress(NewModbusError(0x03, ExceptionIllegalDataAddress)) {
		t.Error("IsIllegalDataAddress")
	}
	if !IsIllegalDataValue(NewModbusError(0x03, ExceptionIllegalDataValue)) {
		t.Error("IsIllegalDataValue")
	}
	if !IsServerDeviceFailure(NewModbusError(0x03, ExceptionServerDeviceFailure)) {
		t.Error("IsServerDeviceFailure")
	}
	if IsIllegalFunction(errors.New("not modbus")) {
		t.Error("plain error should not match")
	}
}
