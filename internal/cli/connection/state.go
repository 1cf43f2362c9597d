package connection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	statev1 "github.com/yndnr/retrostate-go/api/proto/v1"
	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// UploadState sends state as protobuf and returns the issued token.
func (c *HTTPClient) UploadState(ctx context.Context, state *domain.SystemState) (domain.Token, error) {
	resp, err := c.PostRaw(ctx, "/v1/states", statev1.ContentType, statev1.MarshalState(state),
		"Accept", statev1.ContentType)
	if err != nil {
		return 0, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return 0, err
	}

	up, decodeErr := statev1.UnmarshalUploadStateResponse(raw)
	if resp.StatusCode >= 400 {
		return 0, protoError(resp, raw, decodeErr == nil, func() string { return up.Message })
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode upload response: %w", decodeErr)
	}
	if !up.Success || up.Token <= 0 {
		return 0, fmt.Errorf("upload rejected: %s", up.Message)
	}
	return domain.Token(up.Token), nil
}

// DownloadState fetches the state stored under tok.
func (c *HTTPClient) DownloadState(ctx context.Context, tok domain.Token, excludeMemoryData bool) (*domain.SystemState, error) {
	path := "/v1/states/" + tok.String()
	if excludeMemoryData {
		path += "?exclude_memory_data=true"
	}
	resp, err := c.Get(ctx, path, "Accept", statev1.ContentType)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	down, decodeErr := statev1.UnmarshalDownloadStateResponse(raw)
	if resp.StatusCode >= 400 {
		return nil, protoError(resp, raw, decodeErr == nil, func() string { return down.Message })
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode download response: %w", decodeErr)
	}
	if !down.Success || down.SystemState == nil {
		return nil, fmt.Errorf("download failed: %s", down.Message)
	}
	return down.SystemState, nil
}

// DownloadRange fetches exactly length bytes starting at start.
func (c *HTTPClient) DownloadRange(ctx context.Context, tok domain.Token, start, length int64) ([]byte, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("length", strconv.FormatInt(length, 10))

	resp, err := c.Get(ctx, "/v1/states/"+tok.String()+"/memory?"+q.Encode())
	if err != nil {
		return nil, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromBody(resp.StatusCode, resp.Header.Get("X-Error-Code"), raw)
	}
	if int64(len(raw)) != length {
		return nil, fmt.Errorf("range response has %d bytes, want %d", len(raw), length)
	}
	return raw, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// protoError builds an APIError from a protobuf error answer. Responses
// rejected before the handler ran, such as rate limiting, carry the JSON
// envelope instead.
func protoError(resp *http.Response, raw []byte, decoded bool, message func() string) *APIError {
	if resp.Header.Get("Content-Type") != statev1.ContentType || !decoded {
		return errorFromBody(resp.StatusCode, resp.Header.Get("X-Error-Code"), raw)
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    resp.Header.Get("X-Error-Code"),
		Message: message(),
	}
}
