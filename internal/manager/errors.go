package manager

import "strings"

// tooBusyError signals that the accelerator is held by another request.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// ErrTooBusy returns the error reported while another request holds the accelerator.
func ErrTooBusy(modelID string) error { return tooBusyError{modelID: modelID} }

// IsTooBusy reports whether err indicates the accelerator is in use (return 503).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// modelNotFoundError is returned when a requested tag is not in the catalog,
// or its folder lacks required files.
type modelNotFoundError struct {
	id      string
	missing []string
}

func (e modelNotFoundError) Error() string {
	if len(e.missing) > 0 {
		return "model not installed: " + e.id + " (missing " + strings.Join(e.missing, ", ") + ")"
	}
	return "model not found: " + e.id
}

// ErrModelNotFound returns an error when a requested model id is not present in the catalog.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// ErrModelNotInstalled returns an error for a catalog model whose files are absent.
func ErrModelNotInstalled(id string, missing []string) error {
	return modelNotFoundError{id: id, missing: missing}
}

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// dependencyUnavailableError signals a missing or failed runtime dependency
// (driver, device, model runtime) so the HTTP layer returns 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}

// badRequestError flags input the client must change (return 400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

// ErrBadRequest constructs a badRequestError.
func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }

// IsBadRequest reports whether err was caused by the request itself.
func IsBadRequest(err error) bool {
	_, ok := err.(badRequestError)
	return ok
}
