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
	"bytes"
	"errors"
	"testing"
)

func TestMBAPHeader_Encode(t *testing.T) {
	header := MBAPHeader{
		TransactionID: 0x0001,
		ProtocolID:    0x0000,
		Length:        0x0006,
		UnitID:        0x01,
	}

	expected := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01}
	result := header.Encode()

	if !bytes.Equal(result, expected) {
		t.Errorf("Expected %x, got %x", expected, result)
	}
}

func TestMBAPHeader_Decode(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01}

	var header MBAPHeader
	if err := header.Decode(data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if header.TransactionID != 0x0001 {
		t.Errorf("TransactionID: expected 0x0001, got 0x%04X", header.TransactionID)
	}
	if header.ProtocolID != 0x0000 {
		t.Errorf("ProtocolID: expected 0x0000, got 0x%04X", header.ProtocolID)
	}
	if header.Length != 0x0006 {
		t.Errorf("Length: expected 0x0006, got 0x%04X", header.Length)
	}
	if header.UnitID != 0x01 {
		t.Errorf("UnitID: expected 0x01, got 0x%02X", header.UnitID)
	}
}

func TestMBAPHeader_Decode_TooShort(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00}

	var header MBAPHeader
	err := header.Decode(data)
	if err == nil {
		t.Error("Expected error for short data")
	}
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}
}

func TestFrame_Encode(t *testing.T) {
	frame := Frame{
		Header: MBAPHeader{
			TransactionID: 0x0001,
			ProtocolID:    0x0000,
			UnitID:        0x01,
		},
		PDU: []byte{0x03, 0x00, 0x00, 0x00, 0x0A}, // Read holding registers
	}

	result := frame.Encode()

	// Header should have Length = PDU length + 1 (for UnitID)
	expectedLength := len(frame.PDU) + 1
	actualLength := int(result[4])<<8 | int(result[5])
	if actualLength != expectedLength {
		t.Errorf("Length: expected %d, got %d", expectedLength, actualLength)
	}

	if !bytes.Equal(result[7:], frame.PDU) {
		t.Errorf("PDU mismatch: expected %x, got %x", frame.PDU, result[7:])
	}
}

func TestFrame_Decode(t *testing.T) {
	data := []byte{
		0x00, 0x01, // Transaction ID
		0x00, 0x00, // Protocol ID
		0x00, 0x06, // Length
		0x01,                         // Unit ID
		0x03, 0x00, 0x00, 0x00, 0x0A, // PDU
	}

	var frame Frame
	if err := frame.Decode(data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if frame.Header.TransactionID != 0x0001 {
		t.Errorf("TransactionID: expected 0x0001, got 0x%04X", frame.Header.TransactionID)
	}
	if frame.FunctionCode() != FuncReadHoldingRegisters {
		t.Errorf("FunctionCode: expected 0x03, got 0x%02X", uint8(frame.FunctionCode()))
	}
	expectedPDU := []byte{0x03, 0x00, 0x00, 0x00, 0x0A}
	if !bytes.Equal(frame.PDU, expectedPDU) {
		t.Errorf("PDU: expected %x, got %x", expectedPDU, frame.PDU)
	}
}

func TestFrame_Decode_BadProtocolID(t *testing.T) {
	data := []byte{
		0x00, 0x01,
		0x00, 0x07, // wrong protocol ID
		0x00, 0x06,
		0x01,
		0x03, 0x00, 0x00, 0x00, 0x0A,
	}

	var frame Frame
	err := frame.Decode(data)
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	// Encoding a response then decoding it must reproduce the
	// transaction id, unit id, function code and payload exactly.
	original := Frame{
		Header: MBAPHeader{
			TransactionID: 0xBEEF,
			ProtocolID:    ProtocolID,
			UnitID:        0x11,
		},
		PDU: []byte{0x03, 0x04, 0x00, 0xAA, 0x00, 0xBB},
	}

	var decoded Frame
	if err := decoded.Decode(original.Encode()); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Header.TransactionID != original.Header.TransactionID {
		t.Errorf("TransactionID: expected 0x%04X, got 0x%04X",
			original.Header.TransactionID, decoded.Header.TransactionID)
	}
	if decoded.Header.UnitID != original.Header.UnitID {
		t.Errorf("UnitID: expected 0x%02X, got 0x%02X",
			original.Header.UnitID, decoded.Header.UnitID)
	}
	if !bytes.Equal(decoded.PDU, original.PDU) {
		t.Errorf("PDU: expected %x, got %x", original.PDU, decoded.PDU)
	}
}

func TestReadFrame(t *testing.T) {
	data := []byte{
		0x00, 0x01, // Transaction ID
		0x00, 0x00, // Protocol ID
		0x00, 0x05, // Length
		0x01,                   // Unit ID
		0x03, 0x02, 0x00, 0x0A, // PDU
	}

	r := bytes.NewReader(data)
	frame, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if frame.Header.TransactionID != 0x0001 {
		t.Errorf("TransactionID: expected 0x0001, got 0x%04X", frame.Header.TransactionID)
	}
	if frame.Header.UnitID != 0x01 {
		t.Errorf("UnitID: expected 0x01, got 0x%02X", frame.Header.UnitID)
	}

	expectedPDU := []byte{0x03, 0x02, 0x00, 0x0A}
	if !bytes.Equal(frame.PDU, expectedPDU) {
		t.Errorf("PDU: expected %x, got %x", expectedPDU, frame.PDU)
	}
}

func TestReadFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "bad protocol id",
			data: []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x05, 0x01, 0x03, 0x02, 0x00, 0x0A},
		},
		{
			name: "zero length",
			data: []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "length without pdu",
			data: []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x01},
		},
		{
			name: "oversized length",
			data: []byte{0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01},
		},
		{
			name: "truncated pdu",
			data: []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Expected ErrInvalidFrame, got %v", err)
			}
		})
	}
}

func TestExceptionPDU(t *testing.T) {
	pdu := ExceptionPDU(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)

	expected := []byte{0x83, 0x02}
	if !bytes.Equal(pdu, expected) {
		t.Errorf("Expected %x, got %x", expected, pdu)
	}

	if !IsExceptionPDU(pdu) {
		t.Error("Exception response should be detected")
	}
	if IsExceptionPDU([]byte{0x03, 0x02, 0x00, 0x01}) {
		t.Error("Normal response should not be exception")
	}

	modbusErr := ParseExceptionPDU(pdu)
	if modbusErr == nil {
		t.Fatal("Expected parsed exception")
	}
	if modbusErr.FunctionCode != FuncReadHoldingRegisters {
		t.Errorf("FunctionCode: expected %d, got %d", FuncReadHoldingRegisters, modbusErr.FunctionCode)
	}
	if modbusErr.ExceptionCode != ExceptionIllegalDataAddress {
		t.Errorf("ExceptionCode: expected %d, got %d", ExceptionIllegalDataAddress, modbusErr.ExceptionCode)
	}
}
