package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rheo/internal/term"
)

// FileResult is a compiled term file: the root process plus the channel
// names the runtime must bind before it runs.
type FileResult struct {
	Root      term.Proc
	Externals []string
}

// LoadFile reads and compiles a single CUE term file.
//
// A term file has the shape:
//
//	term: {node: "new", names: ["ch"], body: {...}}
//	externals: ["in", "out"]
//
// The term field is required; externals is optional and names the
// channels injections may address during the run.
func LoadFile(path string) (*FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading term file: %w", err)
	}
	return LoadBytes(data, path)
}

// LoadBytes compiles term file contents. The filename is used for
// error positions only.
func LoadBytes(data []byte, filename string) (*FileResult, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	termVal := v.LookupPath(cue.ParsePath("term"))
	if !termVal.Exists() {
		return nil, &CompileError{
			Field:   "term",
			Message: "term is required",
			Pos:     v.Pos(),
		}
	}

	root, err := CompileTerm(termVal)
	if err != nil {
		return nil, err
	}

	result := &FileResult{Root: root}

	extVal := v.LookupPath(cue.ParsePath("externals"))
	if extVal.Exists() {
		externals, err := stringListField(v, "externals")
		if err != nil {
			return nil, err
		}
		result.Externals = externals
	}

	return result, nil
}

// CompileValue compiles a CUE value into a runtime value. This is the
// same decoding used for literal values inside term files.
func CompileValue(v cue.Value) (term.Value, error) {
	return compileValue(v)
}

// ParseValue compiles a standalone CUE expression into a runtime value.
// Used for injection payloads given on the command line, for example
// `42`, `"hello"`, or `{"%": "tuple", elems: [1, 2]}`.
func ParseValue(src string) (term.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}
