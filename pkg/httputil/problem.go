package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Problem is an RFC 7807 problem document. Domain-specific extensions:
// fieldErrors for validation failures, violations for business rules.
type Problem struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Status      int               `json:"status"`
	Detail      string            `json:"detail,omitempty"`
	Instance    string            `json:"instance,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	TraceID     string            `json:"traceId,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Violations  []string          `json:"violations,omitempty"`
}

const problemTypeBase = "https://mesapos.dev/problems/"

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// DecodeJSON decodes the request body into the provided struct
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.ValidationMsg("invalid JSON body")
	}
	return nil
}

// Error translates an error into a problem document response. AppError
// values map by their taxonomy code; everything else becomes INTERNAL.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	problem := toProblem(r, err)

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	json.NewEncoder(w).Encode(problem)
}

func toProblem(r *http.Request, err error) Problem {
	problem := Problem{
		Type:      problemTypeBase + "internal",
		Title:     "Internal Server Error",
		Status:    http.StatusInternalServerError,
		Timestamp: time.Now().UTC(),
	}
	if r != nil {
		problem.Instance = r.URL.Path
		problem.TraceID = GetTraceID(r.Context())
	}

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return problem
	}

	problem.Status = appErr.StatusCode
	problem.Detail = appErr.Message

	switch appErr.Code {
	case "VALIDATION":
		problem.Type = problemTypeBase + "validation"
		problem.Title = "Validation Failed"
		problem.FieldErrors = appErr.Details
	case "AUTHENTICATION":
		problem.Type = problemTypeBase + "authentication"
		problem.Title = "Authentication Required"
	case "AUTHORIZATION":
		problem.Type = problemTypeBase + "forbidden"
		problem.Title = "Forbidden"
	case "NOT_FOUND":
		problem.Type = problemTypeBase + "not-found"
		problem.Title = "Not Found"
	case "CONFLICT":
		problem.Type = problemTypeBase + "conflict"
		problem.Title = "Conflict"
	case "BUSINESS_RULE":
		problem.Type = problemTypeBase + "business-rule"
		problem.Title = "Business Rule Violation"
		if reason := appErr.Reason(); reason != "" {
			problem.Violations = []string{reason}
		}
	case "RATE_LIMIT":
		problem.Type = problemTypeBase + "rate-limit"
		problem.Title = "Too Many Requests"
	case "DEPENDENCY":
		problem.Type = problemTypeBase + "dependency"
		problem.Title = "Dependency Unavailable"
	default:
		problem.Type = problemTypeBase + "internal"
		problem.Title = "Internal Server Error"
	}

	return problem
}
