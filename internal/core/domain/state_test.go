package domain

import (
	"errors"
	"reflect"
	"testing"
)

func testState() *SystemState {
	return &SystemState{
		Model: ModelIII,
		Registers: Registers{
			IX: 9, IY: 7, PC: 5, SP: 3, AF: 1, BC: 2, DE: 4, HL: 6,
			AFPrime: 100, BCPrime: 80, DEPrime: 42, HLPrime: 23,
			I: 11, R1: 22, R2: 200,
		},
		MemoryRegions: []MemoryRegion{
			{Start: 1000, Length: 4, Data: []byte{42, 43, 44, 45}},
			{Start: 1100, Length: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		},
	}
}

func TestSystemState_Clone(t *testing.T) {
	s := testState()
	c := s.Clone()

	if !reflect.DeepEqual(s, c) {
		t.Fatalf("Clone() = %+v, want %+v", c, s)
	}

	c.MemoryRegions[0].Data[0] = 0
	c.MemoryRegions = append(c.MemoryRegions, MemoryRegion{})
	if s.MemoryRegions[0].Data[0] != 42 || len(s.MemoryRegions) != 2 {
		t.Error("Clone() should be independent of the original")
	}

	var nilState *SystemState
	if nilState.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestSystemState_WithoutMemoryData(t *testing.T) {
	s := testState()
	p := s.WithoutMemoryData()

	if p.Model != s.Model || p.Registers != s.Registers {
		t.Errorf("projection changed model/registers: %+v", p)
	}
	if len(p.MemoryRegions) != len(s.MemoryRegions) {
		t.Fatalf("region count = %d, want %d", len(p.MemoryRegions), len(s.MemoryRegions))
	}
	for i, r := range p.MemoryRegions {
		if r.Start != s.MemoryRegions[i].Start || r.Length != s.MemoryRegions[i].Length {
			t.Errorf("region %d = %+v, want start/length of %+v", i, r, s.MemoryRegions[i])
		}
		if len(r.Data) != 0 {
			t.Errorf("region %d has %d data bytes, want 0", i, len(r.Data))
		}
	}
	if s.DataSize() != 12 {
		t.Errorf("original DataSize() = %d, want 12", s.DataSize())
	}
}

func TestSystemState_Validate(t *testing.T) {
	s := testState()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	s.MemoryRegions = append(s.MemoryRegions, MemoryRegion{Start: -10, Length: 4, Data: []byte{1, 2, 3, 4}})
	if err := s.Validate(); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Validate() error = %v, want ErrInvalidRegion", err)
	}
}

func TestModel_StringAndParse(t *testing.T) {
	for _, m := range []Model{ModelUnknown, ModelI, ModelIII, Model4, Model4P, Model(42)} {
		got, err := ParseModel(m.String())
		if err != nil {
			t.Fatalf("ParseModel(%q) error = %v", m.String(), err)
		}
		if got != m {
			t.Errorf("ParseModel(%q) = %v, want %v", m.String(), got, m)
		}
	}
	if _, err := ParseModel("MODEL_Z"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseModel(MODEL_Z) error = %v, want ErrInvalidArgument", err)
	}
}
