package statev1

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// ContentType is the media type of protobuf-encoded bodies.
const ContentType = "application/x-protobuf"

// ErrWireType is returned when a known field arrives with the wrong wire type.
var ErrWireType = errors.New("statev1: unexpected wire type")

// Field numbers.
const (
	fieldStateModel     protowire.Number = 1
	fieldStateRegisters protowire.Number = 2
	fieldStateRegions   protowire.Number = 3

	fieldRegionStart  protowire.Number = 1
	fieldRegionLength protowire.Number = 2
	fieldRegionData   protowire.Number = 3
)

// MarshalState encodes a SystemState.
func MarshalState(s *domain.SystemState) []byte {
	return AppendState(nil, s)
}

// AppendState appends the encoding of s to b.
func AppendState(b []byte, s *domain.SystemState) []byte {
	if s == nil {
		return b
	}
	b = appendInt32(b, fieldStateModel, int32(s.Model))
	b = protowire.AppendTag(b, fieldStateRegisters, protowire.BytesType)
	b = protowire.AppendBytes(b, appendRegisters(nil, &s.Registers))
	for i := range s.MemoryRegions {
		b = protowire.AppendTag(b, fieldStateRegions, protowire.BytesType)
		b = protowire.AppendBytes(b, appendRegion(nil, &s.MemoryRegions[i]))
	}
	return b
}

// UnmarshalState decodes a SystemState.
func UnmarshalState(b []byte) (*domain.SystemState, error) {
	s := &domain.SystemState{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case fieldStateModel:
			x, err := v.varint(typ)
			if err != nil {
				return err
			}
			s.Model = domain.Model(int32(x))
		case fieldStateRegisters:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			if err := decodeRegisters(raw, &s.Registers); err != nil {
				return fmt.Errorf("registers: %w", err)
			}
		case fieldStateRegions:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			r, err := decodeRegion(raw)
			if err != nil {
				return fmt.Errorf("memory region %d: %w", len(s.MemoryRegions), err)
			}
			s.MemoryRegions = append(s.MemoryRegions, r)
		default:
			return v.skip(num, typ)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func appendRegisters(b []byte, r *domain.Registers) []byte {
	for i, v := range registerValues(r) {
		b = appendInt32(b, protowire.Number(i+1), *v)
	}
	return b
}

func decodeRegisters(b []byte, r *domain.Registers) error {
	regs := registerValues(r)
	return walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		if num < 1 || int(num) > len(regs) {
			return v.skip(num, typ)
		}
		x, err := v.varint(typ)
		if err != nil {
			return err
		}
		*regs[num-1] = int32(x)
		return nil
	})
}

// registerValues lists the register fields in wire order.
func registerValues(r *domain.Registers) []*int32 {
	return []*int32{
		&r.IX, &r.IY, &r.PC, &r.SP,
		&r.AF, &r.BC, &r.DE, &r.HL,
		&r.AFPrime, &r.BCPrime, &r.DEPrime, &r.HLPrime,
		&r.I, &r.R1, &r.R2,
	}
}

func appendRegion(b []byte, r *domain.MemoryRegion) []byte {
	b = appendInt64(b, fieldRegionStart, r.Start)
	b = appendInt64(b, fieldRegionLength, r.Length)
	if len(r.Data) > 0 {
		b = protowire.AppendTag(b, fieldRegionData, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Data)
	}
	return b
}

func decodeRegion(b []byte) (domain.MemoryRegion, error) {
	var r domain.MemoryRegion
	err := walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case fieldRegionStart, fieldRegionLength:
			x, err := v.varint(typ)
			if err != nil {
				return err
			}
			if num == fieldRegionStart {
				r.Start = int64(x)
			} else {
				r.Length = int64(x)
			}
		case fieldRegionData:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			r.Data = append([]byte(nil), raw...)
		default:
			return v.skip(num, typ)
		}
		return nil
	})
	return r, err
}
