package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-labelwatch/core"
)

// commandDependencyError reports a handler built without its backing service.
func commandDependencyError(message string) error {
	return core.Internal(message, map[string]any{"component": "command"})
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func commandInvalidInputError(message string) error {
	return core.BadInput(message, nil)
}
