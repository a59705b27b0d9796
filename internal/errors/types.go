package errors

import "errors"

var (
	ErrEngineNotFound    = errors.New("container not found")
	ErrEngineOperation   = errors.New("container engine operation failed")
	ErrAssertionTimeout  = errors.New("condition not met before timeout")
	ErrMalformedOutput   = errors.New("unexpected command output")
	ErrNotDeployed       = errors.New("container not deployed")
	ErrAlreadyDeployed   = errors.New("container already deployed")
	ErrStagingFailed     = errors.New("file staging failed")
	ErrNotReady          = errors.New("container did not become ready")
	ErrConfigInvalid     = errors.New("configuration invalid")
	ErrHarnessNotFound   = errors.New("harness file not found")
	ErrStateFailed       = errors.New("run state operation failed")
	ErrDuplicateInstance = errors.New("container name already used in scenario")
)

// HarnessError decorates an underlying error with a category from the
// taxonomy above and remediation text for the console.
type HarnessError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *HarnessError) Error() string {
	if e.OriginalErr == nil {
		return e.Type.Error()
	}
	return e.OriginalErr.Error()
}

func (e *HarnessError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is the category of e, so callers can match
// with errors.Is(err, ErrEngineNotFound) regardless of the wrapped cause.
func (e *HarnessError) Is(target error) bool {
	return e.Type == target
}

func NewHarnessError(errorType error, context, cause, suggestion string, originalErr error) *HarnessError {
	return &HarnessError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewEngineNotFoundError(name string, originalErr error) *HarnessError {
	return NewHarnessError(ErrEngineNotFound, "Container '"+name+"' does not exist", "", "", originalErr)
}

func NewEngineError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrEngineOperation, context, cause, suggestion, originalErr)
}

func NewStagingError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrStagingFailed, context, cause, suggestion, originalErr)
}

func NewNotReadyError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrNotReady, context, cause, suggestion, originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewHarnessFileError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrHarnessNotFound, context, cause, suggestion, originalErr)
}

func NewStateError(context, cause, suggestion string, originalErr error) *HarnessError {
	return NewHarnessError(ErrStateFailed, context, cause, suggestion, originalErr)
}
