package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rheo/internal/term"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled term in canonical form.
type CompilationResult struct {
	Term      json.RawMessage `json:"term"`
	TermHash  string          `json:"term_hash"`
	Externals []string        `json:"externals,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <term.cue>",
		Short: "Compile a CUE term to canonical JSON",
		Long: `Compile a CUE term file to canonical JSON.

The compiler parses the CUE file, checks every node and pattern tag, and
emits the canonical encoding along with the term's content hash. The
hash identifies the term in recorded runs, so two sources that compile
to the same canonical bytes are the same term.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, termPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	file, err := LoadTerm(termPath)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	formatter.VerboseLog("Compiled %s with %d external(s)", termPath, len(file.Externals))

	canonical, err := term.MarshalProc(file.Root)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	hash, err := term.TermHash(file.Root)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	result := &CompilationResult{
		Term:      canonical,
		TermHash:  hash,
		Externals: file.Externals,
	}

	if opts.Output != "" {
		if err := writeTermToFile(canonical, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled term\n")
	fmt.Fprintf(formatter.Writer, "  Hash: %s\n", result.TermHash)
	if len(result.Externals) > 0 {
		fmt.Fprintf(formatter.Writer, "  Externals: %v\n", result.Externals)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical term to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a compilation error with position info
// when the compiler provides one.
func outputCompileError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if formatter.Format != "json" && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return NewExitError(ExitCommandError, err.Error())
}

// writeTermToFile writes the canonical term to a file, indented for
// readability. The unindented canonical bytes are used only for hashing.
func writeTermToFile(canonical []byte, filename string) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return fmt.Errorf("indenting term: %w", err)
	}
	buf.WriteByte('\n')

	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
