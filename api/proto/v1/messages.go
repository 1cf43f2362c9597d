package statev1

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// UploadStateResponse answers a protobuf upload.
type UploadStateResponse struct {
	Success bool
	Message string
	Token   int64
}

// Marshal encodes the response.
func (r *UploadStateResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, r.Success)
	b = appendString(b, 2, r.Message)
	b = appendInt64(b, 3, r.Token)
	return b
}

// UnmarshalUploadStateResponse decodes an UploadStateResponse.
func UnmarshalUploadStateResponse(b []byte) (*UploadStateResponse, error) {
	r := &UploadStateResponse{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case 1, 3:
			x, err := v.varint(typ)
			if err != nil {
				return err
			}
			if num == 1 {
				r.Success = protowire.DecodeBool(x)
			} else {
				r.Token = int64(x)
			}
		case 2:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			r.Message = string(raw)
		default:
			return v.skip(num, typ)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DownloadStateResponse answers a protobuf download.
type DownloadStateResponse struct {
	Success     bool
	Message     string
	SystemState *domain.SystemState
}

// Marshal encodes the response.
func (r *DownloadStateResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, r.Success)
	b = appendString(b, 2, r.Message)
	if r.SystemState != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalState(r.SystemState))
	}
	return b
}

// UnmarshalDownloadStateResponse decodes a DownloadStateResponse.
func UnmarshalDownloadStateResponse(b []byte) (*DownloadStateResponse, error) {
	r := &DownloadStateResponse{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case 1:
			x, err := v.varint(typ)
			if err != nil {
				return err
			}
			r.Success = protowire.DecodeBool(x)
		case 2, 3:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			if num == 2 {
				r.Message = string(raw)
				return nil
			}
			s, err := UnmarshalState(raw)
			if err != nil {
				return fmt.Errorf("system_state: %w", err)
			}
			r.SystemState = s
		default:
			return v.skip(num, typ)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Record is the persisted form of one stored state.
// Times are Unix milliseconds; ExpiresAt 0 means the record never expires.
type Record struct {
	Token     int64
	CreatedAt int64
	ExpiresAt int64
	State     *domain.SystemState
}

// MarshalRecord encodes a Record.
func MarshalRecord(r *Record) []byte {
	var b []byte
	b = appendInt64(b, 1, r.Token)
	b = appendInt64(b, 2, r.CreatedAt)
	b = appendInt64(b, 3, r.ExpiresAt)
	if r.State != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalState(r.State))
	}
	return b
}

// UnmarshalRecord decodes a Record.
func UnmarshalRecord(b []byte) (*Record, error) {
	r := &Record{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v field) error {
		switch num {
		case 1, 2, 3:
			x, err := v.varint(typ)
			if err != nil {
				return err
			}
			switch num {
			case 1:
				r.Token = int64(x)
			case 2:
				r.CreatedAt = int64(x)
			default:
				r.ExpiresAt = int64(x)
			}
		case 4:
			raw, err := v.bytes(typ)
			if err != nil {
				return err
			}
			s, err := UnmarshalState(raw)
			if err != nil {
				return fmt.Errorf("state: %w", err)
			}
			r.State = s
		default:
			return v.skip(num, typ)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.State == nil {
		r.State = &domain.SystemState{}
	}
	return r, nil
}
