package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a ToolError if the
// input is not already one
func Wrap(err error, errType ErrorType, code, message string) *ToolError {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return &ToolError{
			Type:      errType,
			Code:      code,
			Message:   message,
			Cause:     te,
			Context:   te.Context,
			Component: te.Component,
			FilePath:  te.FilePath,
			Line:      te.Line,
			Column:    te.Column,
		}
	}

	return &ToolError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, message string) *ToolError {
	return Wrap(err, ErrorTypeIO, CodeIO, message)
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, message string) *ToolError {
	return Wrap(err, ErrorTypeConfig, CodeConfig, message)
}

// EnhanceError attaches a file location to err, keeping an existing one
func EnhanceError(err error, component, filePath string, line int) error {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		if te.Component == "" {
			te.Component = component
		}
		if te.FilePath == "" {
			te.FilePath = filePath
			te.Line = line
		}
		return te
	}

	return &ToolError{
		Type:      ErrorTypeInternal,
		Message:   err.Error(),
		Cause:     err,
		Component: component,
		FilePath:  filePath,
		Line:      line,
	}
}
