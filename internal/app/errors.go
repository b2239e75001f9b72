package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"counsel/api/internal/agent"
	"counsel/api/internal/export"
	"counsel/api/internal/llm"
	"counsel/api/internal/section"
	"counsel/api/internal/session"
	"counsel/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, workflow.ErrEmptyMessage),
		errors.Is(err, workflow.ErrUnknownPhase),
		errors.Is(err, section.ErrEmptyAnswer),
		errors.Is(err, section.ErrUnknownSectionType),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, session.ErrStateNotFound):
		return http.StatusNotFound, "GENERATION_NOT_FOUND", "Unknown or expired section generation", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, session.ErrDraftBusy):
		return http.StatusConflict, "DRAFT_BUSY", "Another request for this draft is in progress", nil
	case errors.Is(err, section.ErrNotComplete),
		errors.Is(err, section.ErrAlreadyComplete),
		errors.Is(err, section.ErrNoPendingQuestion):
		return http.StatusConflict, "SECTION_STATE", err.Error(), nil
	case errors.Is(err, agent.ErrNoSections), errors.Is(err, export.ErrContentUnavailable):
		return http.StatusConflict, "NO_SECTIONS", "The opinion has no sections yet", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, workflow.ErrProcessing),
		errors.Is(err, llm.ErrServiceFailure),
		errors.Is(err, llm.ErrMalformedOutput),
		errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway, "PROCESSING_ERROR", "The generation service failed to process the request", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
