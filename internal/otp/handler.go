package otp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shifohub/patient-comms/pkg/logging"
)

// Handler exposes the OTP flows as callable HTTP endpoints for the web app.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler builds the HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("otp: nil service")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type requestOTPInput struct {
	PhoneNumber string `json:"phoneNumber"`
}

type verifyOTPInput struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// RequestOTP handles POST /v1/auth/otp/request.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var in requestOTPInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, E(CodeInvalidArgument, "invalid request body"))
		return
	}
	if err := h.service.Request(r.Context(), in.PhoneNumber); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "code sent",
	})
}

// VerifyOTP handles POST /v1/auth/otp/verify.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in verifyOTPInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, E(CodeInvalidArgument, "invalid request body"))
		return
	}
	token, err := h.service.Verify(r.Context(), in.PhoneNumber, in.Code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var oerr *Error
	if errors.As(err, &oerr) {
		writeError(w, oerr)
		return
	}
	h.logger.Error("otp handler error", "error", err)
	writeError(w, E(CodeInternal, "internal error"))
}

func writeError(w http.ResponseWriter, err *Error) {
	writeJSON(w, err.HTTPStatus(), map[string]any{"error": err})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
