package domain

import "math"

// MemoryRegion is a contiguous run of bytes that starts at a fixed address.
//
// After validation len(Data) == Length always holds. Regions within one
// state may overlap or touch; they are never merged.
type MemoryRegion struct {
	Start  int64  `json:"start"`
	Length int64  `json:"length"`
	Data   []byte `json:"data,omitempty"`
}

// End returns the exclusive end address of the region.
func (r MemoryRegion) End() int64 {
	return r.Start + r.Length
}

// Clone returns a deep copy of the region.
func (r MemoryRegion) Clone() MemoryRegion {
	c := r
	if r.Data != nil {
		c.Data = make([]byte, len(r.Data))
		copy(c.Data, r.Data)
	}
	return c
}

// Validate checks a single region.
func (r MemoryRegion) Validate() error {
	switch {
	case r.Start < 0:
		return ErrInvalidRegion.WithDetailsf("start %d is negative", r.Start)
	case r.Length < 0:
		return ErrInvalidRegion.WithDetailsf("length %d is negative", r.Length)
	case int64(len(r.Data)) != r.Length:
		return ErrInvalidRegion.WithDetailsf("length %d does not match %d data bytes", r.Length, len(r.Data))
	case r.Start > math.MaxInt64-r.Length:
		return ErrInvalidRegion.WithDetailsf("region at %d with length %d overflows the address space", r.Start, r.Length)
	}
	return nil
}

// ValidateRegions checks every region in submission order and reports the
// first one that fails. It has no side effects.
func ValidateRegions(regions []MemoryRegion) error {
	for i, r := range regions {
		if err := r.Validate(); err != nil {
			de := err.(*DomainError)
			return de.WithDetailsf("region %d: %s", i, de.Details)
		}
	}
	return nil
}

// CheckRange validates the arguments of a ranged read.
// A negative start is legal; those addresses read as zero.
func CheckRange(start, length int64) error {
	if length < 0 {
		return ErrInvalidArgument.WithDetailsf("length %d is negative", length)
	}
	if start > math.MaxInt64-length {
		return ErrInvalidArgument.WithDetailsf("range at %d with length %d overflows the address space", start, length)
	}
	return nil
}
