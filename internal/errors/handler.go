package errors

import (
	"errors"

	"minifitest/internal/logger"
	"minifitest/internal/ui"
)

type ErrorHandler struct {
	console *ui.Console
}

func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		console: ui.NewConsole(),
	}
}

func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var harnessErr *HarnessError
	if errors.As(err, &harnessErr) {
		h.handleHarnessError(harnessErr)
	} else {
		h.handleGenericError(err)
	}
}

func (h *ErrorHandler) handleHarnessError(err *HarnessError) {
	h.logStructuredError(err)

	message := h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion)
	if message == "" {
		message = err.Error()
	}
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	logger.Error().
		Err(err).
		Str("type", "generic").
		Msg("unhandled error occurred")

	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logStructuredError(err *HarnessError) {
	event := logger.Error().
		Str("type", getErrorTypeName(err.Type)).
		Str("context", err.Context)

	if err.OriginalErr != nil {
		event = event.Err(err.OriginalErr)
	}
	if err.Cause != "" {
		event = event.Str("cause", err.Cause)
	}
	if err.Suggestion != "" {
		event = event.Str("suggestion", err.Suggestion)
	}

	event.Msg("harness error occurred")
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrEngineNotFound:
		return "engine_not_found"
	case ErrEngineOperation:
		return "engine_operation"
	case ErrAssertionTimeout:
		return "assertion_timeout"
	case ErrMalformedOutput:
		return "malformed_output"
	case ErrNotDeployed:
		return "not_deployed"
	case ErrAlreadyDeployed:
		return "already_deployed"
	case ErrStagingFailed:
		return "staging_failed"
	case ErrNotReady:
		return "not_ready"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrHarnessNotFound:
		return "harness_not_found"
	case ErrStateFailed:
		return "state_failed"
	case ErrDuplicateInstance:
		return "duplicate_instance"
	default:
		return "unknown"
	}
}
