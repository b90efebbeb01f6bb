package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lrwphy/internal/auth"
	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/internal/models"
	"github.com/lorawan-server/lrwphy/internal/report"
	"github.com/lorawan-server/lrwphy/internal/storage"
	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		s.respondError(w, http.StatusNotFound, "authentication is disabled", "")
		return
	}

	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	user, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials", "")
		return
	}

	accessToken, expiresAt, err := s.auth.GenerateToken(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate token", "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   int(time.Until(expiresAt).Seconds()),
		"token_type":   "Bearer",
	})
}

// HandleGetCurrentUser returns the token subject
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		claims = &auth.Claims{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"username":     claims.Username,
		"is_admin":     claims.IsAdmin,
		"auth_enabled": s.auth.Enabled(),
	})
}

// ========== Decode handlers ==========

type decodeRequest struct {
	Hex        string  `json:"hex" validate:"hex"`
	PHYPayload []byte  `json:"phyPayload"`
	NwkSKey    string  `json:"nwkSKey" validate:"bytes=16"`
	AppSKey    string  `json:"appSKey" validate:"bytes=16"`
	AppKey     string  `json:"appKey" validate:"bytes=16"`
	FCntHigh   *uint16 `json:"fCntHigh"`
}

// HandleDecode decodes one PHYPayload. ?format=text returns the text report.
func (s *RESTServer) HandleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error(), validationKind(err))
		return
	}

	res, err := s.service.Decode(r.Context(), decoder.Request{
		Hex:        req.Hex,
		PHYPayload: req.PHYPayload,
		NwkSKey:    req.NwkSKey,
		AppSKey:    req.AppSKey,
		AppKey:     req.AppKey,
		FCntHigh:   req.FCntHigh,
		Source:     "api",
	})
	if res == nil {
		s.respondDecodeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose"))
		if rerr := report.Render(&buf, res.Frame, report.Options{Verbose: verbose, Object: res.Object}); rerr != nil {
			s.respondError(w, http.StatusInternalServerError, rerr.Error(), "")
			return
		}
		report.RenderError(&buf, err)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	s.respondJSON(w, http.StatusOK, res)
}

// HandleEncrypt runs the FRMPayload cipher
func (s *RESTServer) HandleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key       string `json:"key" validate:"required,bytes=16"`
		DevAddr   string `json:"devAddr" validate:"required,bytes=4"`
		FCnt      string `json:"fCnt" validate:"required,bytes=4"`
		Direction string `json:"direction" validate:"required,direction"`
		BigEndian *bool  `json:"bigEndian"`
		Payload   string `json:"payload" validate:"hex"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error(), validationKind(err))
		return
	}

	bigEndian := true
	if req.BigEndian != nil {
		bigEndian = *req.BigEndian
	}

	out, err := s.service.Encrypt(r.Context(), decoder.EncryptRequest{
		Key:       req.Key,
		DevAddr:   req.DevAddr,
		FCnt:      req.FCnt,
		Direction: req.Direction,
		BigEndian: bigEndian,
		Payload:   req.Payload,
	})
	if err != nil {
		s.respondDecodeError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"payload": hex.EncodeToString(out),
	})
}

// ========== Decode log handlers ==========

// HandleListFrames lists decode log entries
func (s *RESTServer) HandleListFrames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "decode log is not configured", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	filter := models.DecodedFrameFilter{
		DevAddr: r.URL.Query().Get("devAddr"),
		MType:   r.URL.Query().Get("mType"),
	}

	frames, total, err := s.store.ListDecodedFrames(r.Context(), filter, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("查询解码记录失败")
		s.respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	if frames == nil {
		frames = []*models.DecodedFrame{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"frames": frames,
		"total":  total,
	})
}

// HandleGetFrame gets one decode log entry
func (s *RESTServer) HandleGetFrame(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "decode log is not configured", "")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid frame id", "")
		return
	}

	frame, err := s.store.GetDecodedFrame(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "frame not found", "")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	s.respondJSON(w, http.StatusOK, frame)
}

// ========== System handlers ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "LoRaWAN PHY Decoder",
		"health":  "/api/v1/health",
		"decode":  "/api/v1/decode",
		"encrypt": "/api/v1/encrypt",
	})
}

// respondDecodeError maps decoder errors to HTTP status codes
func (s *RESTServer) respondDecodeError(w http.ResponseWriter, err error) {
	kind := lorawan.ErrorKind(err)
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, decoder.ErrNoInput):
		status = http.StatusBadRequest
		kind = "no_input"
	case kind == "malformed_hex", kind == "invalid_length", kind == "invalid_direction":
		status = http.StatusBadRequest
	case kind == "internal":
		status = http.StatusInternalServerError
	}
	s.respondError(w, status, err.Error(), kind)
}

// validationKind labels validation failures; only hex failures carry a decoder kind
func validationKind(err error) string {
	if kind := lorawan.ErrorKind(err); kind != "internal" {
		return kind
	}
	return "invalid_request"
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message, kind string) {
	body := map[string]string{
		"error": message,
	}
	if kind != "" {
		body["kind"] = kind
	}
	s.respondJSON(w, status, body)
}
