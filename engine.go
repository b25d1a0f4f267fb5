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
	"log/slog"
)

// processRequest turns one validly framed request into the bytes of
// exactly one response. Every branch produces a reply: malformed PDU
// contents and callback failures become exception responses carrying
// the request's transaction and unit identifiers.
func (s *Server) processRequest(req *Frame) []byte {
	if len(req.PDU) < 1 {
		return respondFrame(req, ExceptionPDU(0, ExceptionIllegalFunction))
	}

	fc := req.FunctionCode()
	category, table := Classify(fc)

	s.opts.logger.Debug("processing request",
		slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
		slog.Uint64("unit_id", uint64(req.Header.UnitID)),
		slog.String("func", fc.String()),
		slog.String("category", category.String()))

	var pdu []byte
	switch category {
	case CategoryReadBits:
		pdu = s.respondReadBits(fc, table, req.PDU)
	case CategoryWriteBits:
		pdu = s.respondWriteBits(fc, table, req.PDU)
	case CategoryReadWords:
		pdu = s.respondReadWords(fc, table, req.PDU)
	case CategoryWriteWords:
		pdu = s.respondWriteWords(fc, table, req.PDU)
	case CategoryReadWriteWords:
		pdu = s.respondReadWriteWords(fc, req.PDU)
	default:
		return s.respondOther(req, fc)
	}

	if IsExceptionPDU(pdu) {
		s.metrics.RequestsExceptions.Add(1)
	}
	return respondFrame(req, pdu)
}

// respondFrame frames a response PDU with the request's transaction
// and unit identifiers.
func respondFrame(req *Frame, pdu []byte) []byte {
	resp := Frame{
		Header: MBAPHeader{
			TransactionID: req.Header.TransactionID,
			ProtocolID:    ProtocolID,
			UnitID:        req.Header.UnitID,
		},
		PDU: pdu,
	}
	return resp.Encode()
}

// callError converts a callback's return into an exception PDU, or nil
// for success. A *ModbusError's code is propagated verbatim; any other
// error is reported as a server device failure and logged.
func (s *Server) callError(fc FunctionCode, err error) []byte {
	if err == nil {
		return nil
	}
	code := AsException(err)
	if code == ExceptionServerDeviceFailure && !IsServerDeviceFailure(err) {
		s.opts.logger.Error("callback error",
			slog.String("func", fc.String()),
			slog.String("error", err.Error()))
	}
	return ExceptionPDU(fc, code)
}

// respondReadBits serves FC 0x01 and 0x02. The engine allocates the
// packed bit buffer, the callback fills it, and the byte count is
// prefixed on success.
func (s *Server) respondReadBits(fc FunctionCode, table Table, pdu []byte) []byte {
	if s.callbacks.ReadBits == nil {
		return ExceptionPDU(fc, ExceptionIllegalFunction)
	}
	if len(pdu) < 5 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityBits {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	byteCount := (int(qty) + 7) / 8
	if 2+byteCount > MaxPDUSize {
		return ExceptionPDU(fc, ExceptionServerDeviceFailure)
	}

	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	if errPDU := s.callError(fc, s.callbacks.ReadBits(fc, table, addr, qty, resp[2:])); errPDU != nil {
		return errPDU
	}
	return resp
}

// respondWriteBits serves FC 0x05 and 0x0F. The bit values are
// extracted from the request into an engine-owned scratch buffer before
// the callback runs, so the callback never aliases the request frame.
func (s *Server) respondWriteBits(fc FunctionCode, table Table, pdu []byte) []byte {
	if s.callbacks.WriteBits == nil {
		return ExceptionPDU(fc, ExceptionIllegalFunction)
	}
	if len(pdu) < 5 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])

	if fc == FuncWriteSingleCoil {
		value := binary.BigEndian.Uint16(pdu[3:5])
		bits := make([]byte, 1)
		switch value {
		case CoilOn:
			bits[0] = 1
		case CoilOff:
		default:
			return ExceptionPDU(fc, ExceptionIllegalDataValue)
		}
		if errPDU := s.callError(fc, s.callbacks.WriteBits(fc, table, addr, 1, bits)); errPDU != nil {
			return errPDU
		}
		// The standard echoes address and output value.
		resp := make([]byte, 5)
		copy(resp, pdu[:5])
		return resp
	}

	if len(pdu) < 6 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityBits {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if byteCount != (int(qty)+7)/8 || len(pdu) < 6+byteCount {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	bits := make([]byte, byteCount)
	copy(bits, pdu[6:6+byteCount])
	if errPDU := s.callError(fc, s.callbacks.WriteBits(fc, table, addr, qty, bits)); errPDU != nil {
		return errPDU
	}

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}

// respondReadWords serves FC 0x03 and 0x04, shaped like respondReadBits
// but sized in 2-byte register units.
func (s *Server) respondReadWords(fc FunctionCode, table Table, pdu []byte) []byte {
	if s.callbacks.ReadWords == nil {
		return ExceptionPDU(fc, ExceptionIllegalFunction)
	}
	if len(pdu) < 5 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityRegisters {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	byteCount := int(qty) * 2
	if 2+byteCount > MaxPDUSize {
		return ExceptionPDU(fc, ExceptionServerDeviceFailure)
	}

	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	if errPDU := s.callError(fc, s.callbacks.ReadWords(fc, table, addr, qty, resp[2:])); errPDU != nil {
		return errPDU
	}
	return resp
}

// respondWriteWords serves FC 0x06 and 0x10.
func (s *Server) respondWriteWords(fc FunctionCode, table Table, pdu []byte) []byte {
	if s.callbacks.WriteWords == nil {
		return ExceptionPDU(fc, ExceptionIllegalFunction)
	}
	if len(pdu) < 5 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])

	if fc == FuncWriteSingleRegister {
		buf := make([]byte, 2)
		copy(buf, pdu[3:5])
		if errPDU := s.callError(fc, s.callbacks.WriteWords(fc, TableHoldingRegisters, addr, 1, buf)); errPDU != nil {
			return errPDU
		}
		resp := make([]byte, 5)
		copy(resp, pdu[:5])
		return resp
	}

	if len(pdu) < 6 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityWriteRegisters {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if byteCount != int(qty)*2 || len(pdu) < 6+byteCount {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	buf := make([]byte, byteCount)
	copy(buf, pdu[6:6+byteCount])
	if errPDU := s.callError(fc, s.callbacks.WriteWords(fc, TableHoldingRegisters, addr, qty, buf)); errPDU != nil {
		return errPDU
	}

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}

// Quantity limits specific to FC 0x17, from the Modbus application
// protocol specification.
const (
	maxReadWriteReadQty  = 0x7D
	maxReadWriteWriteQty = 0x79
)

// respondReadWriteWords serves the composite FC 0x17. The write
// sub-field is applied first; the read only runs if the write
// succeeded. That ordering is protocol-mandated.
func (s *Server) respondReadWriteWords(fc FunctionCode, pdu []byte) []byte {
	if s.callbacks.ReadWords == nil || s.callbacks.WriteWords == nil {
		return ExceptionPDU(fc, ExceptionIllegalFunction)
	}
	if len(pdu) < 10 {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	readAddr := binary.BigEndian.Uint16(pdu[1:3])
	readQty := binary.BigEndian.Uint16(pdu[3:5])
	writeAddr := binary.BigEndian.Uint16(pdu[5:7])
	writeQty := binary.BigEndian.Uint16(pdu[7:9])
	byteCount := int(pdu[9])

	if readQty < 1 || readQty > maxReadWriteReadQty {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if writeQty < 1 || writeQty > maxReadWriteWriteQty {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if byteCount != int(writeQty)*2 || len(pdu) < 10+byteCount {
		return ExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	writeBuf := make([]byte, byteCount)
	copy(writeBuf, pdu[10:10+byteCount])
	if errPDU := s.callError(fc, s.callbacks.WriteWords(fc, TableHoldingRegisters, writeAddr, writeQty, writeBuf)); errPDU != nil {
		return errPDU
	}

	readByteCount := int(readQty) * 2
	resp := make([]byte, 2+readByteCount)
	resp[0] = byte(fc)
	resp[1] = byte(readByteCount)
	if errPDU := s.callError(fc, s.callbacks.ReadWords(fc, TableHoldingRegisters, readAddr, readQty, resp[2:])); errPDU != nil {
		return errPDU
	}
	return resp
}

// respondOther serves every function code outside the typed categories.
// Allocation responsibility is inverted here: the callback allocates
// the response buffer with room for the header, because only it knows
// its payload size. The engine then writes the MBAP header and function
// code into the leading prepend bytes and sends the region as-is,
// avoiding a second copy. Returns the complete wire bytes.
func (s *Server) respondOther(req *Frame, fc FunctionCode) []byte {
	if s.callbacks.Other == nil {
		s.metrics.RequestsExceptions.Add(1)
		return respondFrame(req, ExceptionPDU(fc, ExceptionIllegalFunction))
	}

	// TCP framing: 7-byte MBAP header plus the function code ahead of
	// the callback's payload, no footer.
	const prependLen = MBAPHeaderSize + 1
	const appendLen = 0

	buf, err := s.callbacks.Other(fc, req.PDU[1:], prependLen, appendLen)
	if errPDU := s.callError(fc, err); errPDU != nil {
		s.metrics.RequestsExceptions.Add(1)
		return respondFrame(req, errPDU)
	}
	if len(buf) < prependLen+appendLen || len(buf) > MBAPHeaderSize+MaxPDUSize {
		s.opts.logger.Error("other callback returned unusable buffer",
			slog.String("func", fc.String()),
			slog.Int("size", len(buf)))
		s.metrics.RequestsExceptions.Add(1)
		return respondFrame(req, ExceptionPDU(fc, ExceptionServerDeviceFailure))
	}

	header := MBAPHeader{
		TransactionID: req.Header.TransactionID,
		ProtocolID:    ProtocolID,
		Length:        uint16(len(buf) - MBAPHeaderSize + 1),
		UnitID:        req.Header.UnitID,
	}
	header.encodeTo(buf)
	buf[MBAPHeaderSize] = byte(fc)
	return buf
}
