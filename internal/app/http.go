package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"counsel/api/internal/export"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metrics: promhttp.Handler()}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ping(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "drafts" {
		draftID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || draftID <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "draft id must be a positive integer", nil)
			return
		}
		s.handleDraft(w, r, draftID, parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDraft(w http.ResponseWriter, r *http.Request, draftID int64, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "messages" && r.Method == http.MethodGet:
		generationID := strings.TrimSpace(r.URL.Query().Get("generationId"))
		items, err := s.service.ListMessages(r.Context(), draftID, generationID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messagesPayload(items)})

	case len(parts) == 1 && parts[0] == "messages" && r.Method == http.MethodPost:
		var body struct {
			Message string `json:"message"`
			Phase   string `json:"phase"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resp, err := s.service.PostMessage(r.Context(), draftID, body.Message, body.Phase)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case len(parts) == 1 && parts[0] == "documents" && r.Method == http.MethodGet:
		items, err := s.service.ListDocuments(r.Context(), draftID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})

	case len(parts) == 1 && parts[0] == "documents" && r.Method == http.MethodPost:
		var body DocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.UploadDocument(r.Context(), draftID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	case len(parts) >= 1 && parts[0] == "sections":
		s.handleSections(w, r, draftID, parts[1:])

	case len(parts) == 1 && parts[0] == "review" && r.Method == http.MethodPost:
		result, err := s.service.ReviewOpinion(r.Context(), draftID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 1 && parts[0] == "quality-check" && r.Method == http.MethodPost:
		result, err := s.service.QualityCheck(r.Context(), draftID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, draftID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request, draftID int64, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		items, err := s.service.ListSections(r.Context(), draftID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sections": sectionsPayload(items)})

	case len(parts) == 1 && parts[0] == "history" && r.Method == http.MethodGet:
		limit := 50
		if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
			if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
				limit = parsedLimit
			}
		}
		items, err := s.service.SectionHistory(r.Context(), draftID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": items})

	case len(parts) == 1 && parts[0] == "start" && r.Method == http.MethodPost:
		var body struct {
			SectionType string `json:"sectionType"`
			CustomTitle string `json:"customTitle"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.StartSection(r.Context(), draftID, body.SectionType, body.CustomTitle)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	case len(parts) == 1 && parts[0] == "review" && r.Method == http.MethodPost:
		var body struct {
			Order int `json:"order"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Order <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "order must be a positive integer", nil)
			return
		}
		result, err := s.service.ReviewSection(r.Context(), draftID, body.Order)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 2 && parts[1] == "answer" && r.Method == http.MethodPost:
		var body struct {
			Answer string `json:"answer"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.AnswerSection(r.Context(), draftID, parts[0], body.Answer)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 2 && parts[1] == "generate" && r.Method == http.MethodPost:
		result, err := s.service.GenerateSection(r.Context(), draftID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"section": sectionPayload(result.Section),
			"commit":  result.Commit,
		})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, draftID int64) {
	query := r.URL.Query()
	format, err := export.ParseFormat(strings.TrimSpace(query.Get("format")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "format must be one of html, markdown, pdf, docx", nil)
		return
	}
	upload, _ := strconv.ParseBool(query.Get("upload"))

	result, err := s.service.Export(r.Context(), export.Request{
		DraftID: draftID,
		Format:  format,
		Title:   strings.TrimSpace(query.Get("title")),
		Upload:  upload,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}

	if result.URL != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"filename": result.Filename,
			"mimeType": result.MimeType,
			"url":      result.URL,
		})
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		slog.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
