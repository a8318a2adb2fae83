// Package errors defines the structured error type shared by every plctool
// component, the issue collector used for non-blocking problems, and the
// three-valued completion status reported to the command line.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeDuplicate  ErrorType = "duplicate"
	ErrorTypeEncoding   ErrorType = "encoding"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes. Every ToolError aborts the unit of work it was raised in.
const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeParse            = "PARSE_ERROR"
	CodeDuplicateSymbol  = "DUPLICATE_SYMBOL"
	CodeIncoherent       = "INCOHERENT_LIBRARY"
	CodeEncoding         = "ENCODING"
	CodeInvalidProject   = "INVALID_PROJECT"
	CodeOutputIsInput    = "OUTPUT_IS_INPUT"
	CodeOutputExists     = "OUTPUT_EXISTS"
	CodeNameClash        = "NAME_CLASH"
	CodeOutputInInputDir = "OUTPUT_IN_INPUT_DIR"
	CodeUnsupportedInput = "UNSUPPORTED_INPUT"
	CodeUnsupportedArray = "UNSUPPORTED_ARRAY"
	CodeReservedText     = "RESERVED_TEXT"
	CodeIO               = "IO"
	CodeConfig           = "CONFIG"
)

// ToolError is a structured error type with context.
type ToolError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Component string
	FilePath  string
	Line      int
	Column    int
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code.
func (e *ToolError) Is(target error) bool {
	var t *ToolError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ToolError) WithContext(key string, value interface{}) *ToolError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *ToolError) WithLocation(filePath string, line, column int) *ToolError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *ToolError) WithComponent(component string) *ToolError {
	e.Component = component

	return e
}

// NewParseError creates a syntax error raised by one of the parsers.
func NewParseError(code, message string) *ToolError {
	return &ToolError{
		Type:    ErrorTypeParse,
		Code:    code,
		Message: message,
	}
}

// NewDuplicateError reports a name collision inside a declaration scope.
func NewDuplicateError(scope, name string) *ToolError {
	return &ToolError{
		Type:    ErrorTypeDuplicate,
		Code:    CodeDuplicateSymbol,
		Message: fmt.Sprintf("duplicate %s %q", scope, name),
		Context: map[string]interface{}{"scope": scope, "name": name},
	}
}

// NewEncodingError reports a malformed byte sequence.
func NewEncodingError(message string, cause error) *ToolError {
	return &ToolError{
		Type:    ErrorTypeEncoding,
		Code:    CodeEncoding,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ToolError {
	return &ToolError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ToolError {
	return &ToolError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ToolError {
	return &ToolError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ToolError {
	return &ToolError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether any ToolError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var te *ToolError
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}

	return false
}

// CodeOf returns the code of the outermost ToolError in err's chain.
func CodeOf(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code
	}

	return ""
}

// IsFatal reports whether err ends a run with the fatal status. An
// ExitError carries its own status; any other error is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Status == StatusFatal
	}
	return true
}
