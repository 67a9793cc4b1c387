package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rheo/internal/compiler"
)

// LoadError represents an error that occurred during term loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadTerm reads and compiles a single CUE term file. Every failure is
// reported as a *LoadError carrying a stable error code and, when the
// compiler provides one, the source position.
func LoadTerm(path string) (*compiler.FileResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("term file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing term file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", path)}
	}

	result, err := compiler.LoadFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return result, nil
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadPayload  = "E008" // Malformed injection payload
	ErrCodeRunFailed   = "E010" // Run aborted with a runtime error

	// Term compile errors
	ErrCodeBadNode    = "E101" // Unknown or missing process node
	ErrCodeBadPattern = "E102" // Unknown or missing pattern tag
	ErrCodeBadValue   = "E103" // Unrepresentable literal value
	ErrCodeBadMode    = "E104" // Invalid mode string
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "node", "term":
		return ErrCodeBadNode
	case "pat":
		return ErrCodeBadPattern
	case "value", "%":
		return ErrCodeBadValue
	case "mode", "kind":
		return ErrCodeBadMode
	default:
		return ErrCodeLoadFailed
	}
}
