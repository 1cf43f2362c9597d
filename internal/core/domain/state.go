package domain

import "fmt"

// Model identifies the emulated machine variant.
//
// The store never interprets it; unknown numeric values round-trip unchanged.
type Model int32

// Known machine models.
const (
	ModelUnknown Model = 0
	ModelI       Model = 1
	ModelIII     Model = 2
	Model4       Model = 3
	Model4P      Model = 4
)

var modelNames = map[Model]string{
	ModelUnknown: "UNKNOWN_MODEL",
	ModelI:       "MODEL_I",
	ModelIII:     "MODEL_III",
	Model4:       "MODEL_4",
	Model4P:      "MODEL_4P",
}

// String returns the canonical model name.
func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MODEL(%d)", int32(m))
}

// ParseModel converts a model name back to a Model.
func ParseModel(s string) (Model, error) {
	for m, name := range modelNames {
		if name == s {
			return m, nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(s, "MODEL(%d)", &n); err == nil {
		return Model(n), nil
	}
	return ModelUnknown, ErrInvalidArgument.WithDetailsf("unknown model %q", s)
}

// Registers is the Z80 register file captured with a state.
// Values are opaque to the store and copied verbatim.
type Registers struct {
	IX      int32 `json:"ix"`
	IY      int32 `json:"iy"`
	PC      int32 `json:"pc"`
	SP      int32 `json:"sp"`
	AF      int32 `json:"af"`
	BC      int32 `json:"bc"`
	DE      int32 `json:"de"`
	HL      int32 `json:"hl"`
	AFPrime int32 `json:"af_prime"`
	BCPrime int32 `json:"bc_prime"`
	DEPrime int32 `json:"de_prime"`
	HLPrime int32 `json:"hl_prime"`
	I       int32 `json:"i"`
	R1      int32 `json:"r_1"`
	R2      int32 `json:"r_2"`
}

// SystemState is a snapshot of an emulated machine.
type SystemState struct {
	Model         Model          `json:"model"`
	Registers     Registers      `json:"registers"`
	MemoryRegions []MemoryRegion `json:"memory_regions"`
}

// Validate checks all memory regions.
func (s *SystemState) Validate() error {
	return ValidateRegions(s.MemoryRegions)
}

// Clone returns a deep copy of the state.
func (s *SystemState) Clone() *SystemState {
	if s == nil {
		return nil
	}
	c := &SystemState{
		Model:     s.Model,
		Registers: s.Registers,
	}
	if s.MemoryRegions != nil {
		c.MemoryRegions = make([]MemoryRegion, len(s.MemoryRegions))
		for i, r := range s.MemoryRegions {
			c.MemoryRegions[i] = r.Clone()
		}
	}
	return c
}

// WithoutMemoryData returns a copy whose regions keep Start and Length but
// carry no data bytes.
func (s *SystemState) WithoutMemoryData() *SystemState {
	if s == nil {
		return nil
	}
	c := &SystemState{
		Model:     s.Model,
		Registers: s.Registers,
	}
	if s.MemoryRegions != nil {
		c.MemoryRegions = make([]MemoryRegion, len(s.MemoryRegions))
		for i, r := range s.MemoryRegions {
			c.MemoryRegions[i] = MemoryRegion{Start: r.Start, Length: r.Length}
		}
	}
	return c
}

// DataSize returns the total number of data bytes across all regions.
func (s *SystemState) DataSize() int64 {
	var n int64
	for _, r := range s.MemoryRegions {
		n += int64(len(r.Data))
	}
	return n
}
