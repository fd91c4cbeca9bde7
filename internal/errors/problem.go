package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the problem document.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewInvalidInstallationError maps ErrInvalidInstallation onto the wire.
func NewInvalidInstallationError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusForbidden,
		"/errors/invalid-installation",
		"Invalid Installation",
		"The installation is unknown or has been disabled. Verify the installation id and key with your account page.",
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewSyncKeyRejectedError maps ErrSyncKeyRejected onto the wire.
func NewSyncKeyRejectedError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		"/errors/sync-key-rejected",
		"Billing Sync Key Rejected",
		"The billing sync key does not match the one configured for the cloud organization.",
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewLicenseNotFoundError responds when no license can be issued for the
// requested organization.
func NewLicenseNotFoundError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusNotFound,
		"/errors/license-not-found",
		"License Not Found",
		"No license could be issued for the requested organization.",
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewInvalidRequestError responds to malformed request payloads.
func NewInvalidRequestError(detail, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		"/errors/invalid-request",
		"Invalid Request",
		detail,
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewUnauthorizedError responds to missing or invalid bearer credentials.
func NewUnauthorizedError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusUnauthorized,
		"/errors/unauthorized",
		"Unauthorized",
		"A valid licensing bearer credential is required.",
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewInternalError responds to unexpected failures without leaking them.
func NewInternalError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal",
		"Internal Server Error",
		"An unexpected error occurred. Please try again later.",
		fmt.Sprintf("/api/licenses#%s", traceID),
	).WithExtension("trace_id", traceID)
}
