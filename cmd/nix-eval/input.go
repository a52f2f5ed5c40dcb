package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/nix-runtime/errors"
)

// input is the expression to evaluate and where it came from.
type input struct {
	text     string
	source   string
	basePath string // empty means the configured default
}

// resolveInput picks the expression source: --expr text, a single file
// argument, or stdin when neither is given. Input that is empty after
// trimming whitespace is rejected.
func resolveInput(args []string, expr string, exprSet bool, stdin io.Reader) (*input, error) {
	var in *input
	switch {
	case exprSet && len(args) == 0:
		in = &input{text: expr, source: "--expr"}
	case !exprSet && len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, errors.Wrap(errors.PhaseCLI, errors.KindArgument, err, "read "+args[0])
		}
		in = &input{text: string(data), source: args[0], basePath: filepath.Dir(args[0])}
	case !exprSet && len(args) == 0:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseCLI, errors.KindArgument, err, "read stdin")
		}
		in = &input{text: string(data), source: "stdin"}
	default:
		return nil, errors.Argument("expected a single file argument, --expr, or an expression on stdin")
	}

	if strings.TrimSpace(in.text) == "" {
		return nil, errors.EmptyInput(in.source)
	}
	return in, nil
}
