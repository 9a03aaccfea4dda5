package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/service"
)

// maxBodyBytes bounds the shorten request body
const maxBodyBytes = 64 << 10

// Handler holds the HTTP handlers for the guarded shortener
type Handler struct {
	guard     service.Guard
	serverURL string
}

// NewHandler creates a new HTTP handler
func NewHandler(guard service.Guard, serverURL string) *Handler {
	return &Handler{
		guard:     guard,
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Shorten handles POST /api/shorten
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}

	fields, err := decodeFields(w, r)
	if err != nil {
		log.Printf("[ERROR] Invalid shorten request body: %v", err)
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.guard.CreateShortURL(r.Context(), service.CreateRequest{
		Fields:         fields,
		ClientIP:       ClientIP(r),
		UserAgent:      r.UserAgent(),
		Accept:         r.Header.Get("Accept"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, domain.CreateURLResponse{
		Success:   true,
		ShortURL:  h.serverURL + "/" + result.ShortCode,
		ShortCode: result.ShortCode,
		Existing:  result.Existing,
	})
}

// decodeFields reads a JSON object or a urlencoded form into a field map
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		fields := make(map[string]any, len(r.PostForm))
		for name := range r.PostForm {
			fields[name] = r.PostForm.Get(name)
		}
		return fields, nil
	}

	fields := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		return nil, err
	}
	return fields, nil
}

// Token handles GET /api/token
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}

	token, err := h.guard.IssueFormToken(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, domain.TokenResponse{Token: token})
}

// Stats handles GET /api/stats?code={shortCode}
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "Short code is required"})
		return
	}

	stats, err := h.guard.GetStats(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.StatsResponse{Success: true, Data: stats})
}

// RateLimitStatus handles GET /api/ratelimit?action={create|click}
func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}

	action := domain.Action(r.URL.Query().Get("action"))
	if action == "" {
		action = domain.ActionCreate
	}

	status, err := h.guard.RateLimitStatus(r.Context(), ClientIP(r), action)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Ping(r.Context()); err != nil {
		log.Printf("[ERROR] Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Redirect handles GET /{shortCode} - redirects to original URL
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}

	shortCode := strings.Trim(r.URL.Path, "/")
	if shortCode == "" || strings.HasPrefix(shortCode, "api/") {
		http.NotFound(w, r)
		return
	}

	target, err := h.guard.ResolveShortURL(r.Context(), shortCode, service.Visit{
		ClientIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// writeError maps domain errors onto status codes and JSON bodies
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		log.Printf("[ERROR] Unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: "Internal server error"})
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: de.Message, Reason: de.Code})
	case domain.KindRateLimited:
		seconds := retryAfterSeconds(de.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, domain.ErrorResponse{
			Error:      de.Message,
			Reason:     de.Code,
			RetryAfter: seconds,
		})
	case domain.KindBlocked:
		if errors.Is(err, domain.ErrSuspiciousActivity) {
			writeJSON(w, http.StatusForbidden, domain.ErrorResponse{
				Error:  domain.ErrSuspiciousActivity.Message,
				Reason: domain.ErrSuspiciousActivity.Code,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: de.Message, Reason: de.Code})
	case domain.KindNotFound:
		writeJSON(w, http.StatusNotFound, domain.ErrorResponse{Error: de.Message})
	case domain.KindUnavailable:
		log.Printf("[ERROR] Dependency unavailable: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{Error: de.Message})
	default:
		log.Printf("[ERROR] Unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: "Internal server error"})
	}
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
