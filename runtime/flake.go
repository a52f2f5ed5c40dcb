package runtime

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
)

// ParseFlakeRef parses a flake reference such as "github:NixOS/nixpkgs" and
// returns it in canonical form. Relative path references resolve against
// baseDir, or the working directory when baseDir is empty.
//
// Only backends implementing engine.FlakeRefParser support this; others fail
// with errors.KindUnsupported.
func ParseFlakeRef(eng engine.Engine, url, baseDir string) (string, error) {
	if eng == nil {
		return "", errors.InvalidInput(errors.PhaseFlake, "nil engine")
	}
	if strings.TrimSpace(url) == "" {
		return "", errors.InvalidInput(errors.PhaseFlake, "empty flake reference")
	}
	parser, ok := eng.(engine.FlakeRefParser)
	if !ok {
		return "", errors.Unsupported(errors.PhaseFlake, fmt.Sprintf("%T cannot parse flake references", eng))
	}

	if baseDir == "" {
		baseDir = DefaultBasePath
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", errors.Wrap(errors.PhaseFlake, errors.KindInvalidInput, err, "resolve base directory")
	}

	out, err := parser.ParseFlakeRef(url, abs)
	if err != nil {
		return "", err
	}
	Logger().Debug("parsed flake reference", zap.String("url", url), zap.String("canonical", out))
	return out, nil
}
