package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	statev1 "github.com/yndnr/retrostate-go/api/proto/v1"
	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
)

// handleUploadState handles POST /v1/states.
func (h *Handler) handleUploadState(w http.ResponseWriter, r *http.Request) {
	proto := isProtobuf(r.Header.Get("Content-Type"))
	fail := h.handleServiceError
	if proto || acceptsProtobuf(r) {
		fail = h.writeUploadProtoError
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, r, bodyError(err))
		return
	}
	if len(body) == 0 {
		fail(w, r, domain.ErrMissingArgument.WithDetails("request body is empty"))
		return
	}

	var state *domain.SystemState
	if proto {
		state, err = statev1.UnmarshalState(body)
		if err != nil {
			fail(w, r, domain.ErrBadRequest.WithDetails(err.Error()))
			return
		}
	} else {
		state = &domain.SystemState{}
		if err := json.Unmarshal(body, state); err != nil {
			fail(w, r, domain.ErrBadRequest.WithDetails("invalid JSON body: "+err.Error()))
			return
		}
	}

	tok, err := h.states.UploadState(r.Context(), state)
	if err != nil {
		fail(w, r, err)
		return
	}
	logger.L(r.Context()).Info("state uploaded",
		"token", tok.String(),
		"model", state.Model.String(),
		"regions", len(state.MemoryRegions),
		"bytes", state.DataSize(),
	)

	if proto || acceptsProtobuf(r) {
		resp := &statev1.UploadStateResponse{Success: true, Token: int64(tok)}
		writeProto(w, http.StatusCreated, resp.Marshal())
		return
	}
	h.writeJSON(w, r, http.StatusCreated, UploadStateResponse{Token: tok.String()})
}

// handleDownloadState handles GET /v1/states/{token}.
func (h *Handler) handleDownloadState(w http.ResponseWriter, r *http.Request) {
	proto := acceptsProtobuf(r)
	fail := h.handleServiceError
	if proto {
		fail = h.writeDownloadProtoError
	}

	exclude, err := boolQuery(r, "exclude_memory_data")
	if err != nil {
		fail(w, r, err)
		return
	}
	tok, err := pathToken(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	state, err := h.states.DownloadState(r.Context(), tok, exclude)
	if err != nil {
		fail(w, r, err)
		return
	}

	if proto {
		resp := &statev1.DownloadStateResponse{Success: true, SystemState: state}
		writeProto(w, http.StatusOK, resp.Marshal())
		return
	}
	h.writeJSON(w, r, http.StatusOK, DownloadStateResponse{
		Token:             tok.String(),
		ExcludeMemoryData: exclude,
		SystemState:       state,
	})
}

// handleDownloadRange handles GET /v1/states/{token}/memory.
// The body is exactly length raw bytes; errors use the JSON envelope.
func (h *Handler) handleDownloadRange(w http.ResponseWriter, r *http.Request) {
	start, err := intQuery(r, "start")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	length, err := intQuery(r, "length")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	tok, err := pathToken(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	data, err := h.states.DownloadRange(r.Context(), tok, start, length)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Range-Start", strconv.FormatInt(start, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.L(r.Context()).Warn("range write failed", "error", err)
	}
}

func (h *Handler) writeUploadProtoError(w http.ResponseWriter, r *http.Request, err error) {
	de := toDomainError(r, err)
	w.Header().Set("X-Error-Code", de.Code)
	resp := &statev1.UploadStateResponse{Message: errorText(de)}
	writeProto(w, de.Status(), resp.Marshal())
}

func (h *Handler) writeDownloadProtoError(w http.ResponseWriter, r *http.Request, err error) {
	de := toDomainError(r, err)
	w.Header().Set("X-Error-Code", de.Code)
	resp := &statev1.DownloadStateResponse{Message: errorText(de)}
	writeProto(w, de.Status(), resp.Marshal())
}

// errorText is the message carried by protobuf error answers; the code
// travels in X-Error-Code.
func errorText(de *domain.DomainError) string {
	if de.Details == "" {
		return de.Message
	}
	return de.Message + ": " + de.Details
}

func toDomainError(r *http.Request, err error) *domain.DomainError {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de
	}
	logger.L(r.Context()).Error("internal error", "error", err)
	return domain.ErrInternalServer
}

func writeProto(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", statev1.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

func isProtobuf(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == statev1.ContentType
}

func acceptsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isProtobuf(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

// bodyError maps a body read failure to a domain error.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.ErrStateTooLarge.WithDetailsf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return domain.ErrBadRequest.WithCause(err).WithDetails("read request body")
}

// pathToken parses the {token} path value. Well-formed but never issued
// values such as 0 are left for the service to reject as unknown.
func pathToken(r *http.Request) (domain.Token, error) {
	s := r.PathValue("token")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.ErrMalformedToken.WithDetailsf("%q is not a decimal token", s)
	}
	return domain.Token(n), nil
}

func intQuery(r *http.Request, name string) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, domain.ErrMissingArgument.WithDetailsf("query parameter %q is required", name)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidArgument.WithDetailsf("query parameter %q: %q is not an integer", name, s)
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, domain.ErrInvalidArgument.WithDetailsf("query parameter %q: %q is not a boolean", name, s)
	}
	return b, nil
}
