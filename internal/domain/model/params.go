package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/compudrive/drivebench/internal/errors"
)

// TestParameters is the free-form option set attached to a start request.
// Unrecognized keys are ignored; missing keys take documented defaults;
// invalid values fail fast before any process is spawned.
type TestParameters map[string]any

// Format parameter defaults.
const (
	DefaultFormatBlockSize  = 4096
	MinFormatBlockSize      = 512
	MaxFormatBlockSize      = 65536
	DefaultFormatFilesystem = "ext4"
)

// FormatFilesystems lists the filesystems the format handler accepts.
func FormatFilesystems() []string {
	return []string{"ext4", "xfs", "btrfs", "ntfs"}
}

// FormatParams is the validated, defaulted view of TestParameters for the
// format test type.
type FormatParams struct {
	BlockSize  int    `json:"block_size"`
	Filesystem string `json:"filesystem"`
	FastFormat bool   `json:"fast_format"`
}

// Validate checks the parameter set against the recognized-option schema for
// the given test type. Only the format test currently defines options; all
// other types accept (and ignore) arbitrary keys.
func (p TestParameters) Validate(t TestType) error {
	if t == TestTypeFormat {
		_, err := p.FormatParams()
		return err
	}
	return nil
}

// FormatParams resolves and validates the format options, applying defaults
// for missing keys.
func (p TestParameters) FormatParams() (FormatParams, error) {
	out := FormatParams{
		BlockSize:  DefaultFormatBlockSize,
		Filesystem: DefaultFormatFilesystem,
	}

	if raw, ok := p["block_size"]; ok {
		bs, err := intValue(raw)
		if err != nil {
			return out, apperrors.InvalidParametersField("block_size", fmt.Sprintf("block_size: %v", err))
		}
		if bs < MinFormatBlockSize || bs > MaxFormatBlockSize || bs&(bs-1) != 0 {
			return out, apperrors.InvalidParametersField(
				"block_size",
				fmt.Sprintf("block_size must be a power of two between %d and %d, got %d",
					MinFormatBlockSize, MaxFormatBlockSize, bs),
			)
		}
		out.BlockSize = bs
	}

	if raw, ok := p["filesystem"]; ok {
		fs, isString := raw.(string)
		if !isString {
			return out, apperrors.InvalidParametersField("filesystem", "filesystem must be a string")
		}
		fs = strings.ToLower(strings.TrimSpace(fs))
		if !validFilesystem(fs) {
			return out, apperrors.InvalidParametersField(
				"filesystem",
				fmt.Sprintf("unsupported filesystem %q (supported: %s)", fs, strings.Join(FormatFilesystems(), ", ")),
			)
		}
		out.Filesystem = fs
	}

	if raw, ok := p["fast_format"]; ok {
		b, isBool := raw.(bool)
		if !isBool {
			return out, apperrors.InvalidParametersField("fast_format", "fast_format must be a boolean")
		}
		out.FastFormat = b
	}

	return out, nil
}

func validFilesystem(fs string) bool {
	for _, known := range FormatFilesystems() {
		if fs == known {
			return true
		}
	}
	return false
}

// intValue coerces JSON-decoded numeric representations into an int.
// encoding/json produces float64 for numbers by default and json.Number when
// configured; native ints appear when parameters are built in-process.
func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v.String())
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}
