package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/compudrive/drivebench/internal/errors"
)

func TestFormatParamsDefaults(t *testing.T) {
	fp, err := TestParameters{}.FormatParams()
	require.NoError(t, err)
	assert.Equal(t, DefaultFormatBlockSize, fp.BlockSize)
	assert.Equal(t, DefaultFormatFilesystem, fp.Filesystem)
	assert.False(t, fp.FastFormat)
}

func TestFormatParamsExplicit(t *testing.T) {
	fp, err := TestParameters{
		"block_size":  8192,
		"filesystem":  "XFS",
		"fast_format": true,
	}.FormatParams()
	require.NoError(t, err)
	assert.Equal(t, 8192, fp.BlockSize)
	assert.Equal(t, "xfs", fp.Filesystem)
	assert.True(t, fp.FastFormat)
}

func TestFormatParamsFromJSON(t *testing.T) {
	// JSON numbers decode as float64; the coercion must accept them.
	var p TestParameters
	require.NoError(t, json.Unmarshal([]byte(`{"block_size":4096,"filesystem":"ext4","fast_format":true}`), &p))

	fp, err := p.FormatParams()
	require.NoError(t, err)
	assert.Equal(t, 4096, fp.BlockSize)
	assert.Equal(t, "ext4", fp.Filesystem)
	assert.True(t, fp.FastFormat)
}

func TestFormatParamsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params TestParameters
		field  string
	}{
		{"non power of two", TestParameters{"block_size": 3000}, "block_size"},
		{"too small", TestParameters{"block_size": 256}, "block_size"},
		{"too large", TestParameters{"block_size": 131072}, "block_size"},
		{"fractional", TestParameters{"block_size": 4096.5}, "block_size"},
		{"wrong type", TestParameters{"block_size": "big"}, "block_size"},
		{"unknown filesystem", TestParameters{"filesystem": "fat12"}, "filesystem"},
		{"filesystem type", TestParameters{"filesystem": 7}, "filesystem"},
		{"fast_format type", TestParameters{"fast_format": "yes"}, "fast_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.params.FormatParams()
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidParameters(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestValidateIgnoresUnrecognizedKeys(t *testing.T) {
	p := TestParameters{"block_size": 4096, "color": "red"}
	assert.NoError(t, p.Validate(TestTypeFormat))

	// Non-format types carry no recognized options at all.
	assert.NoError(t, TestParameters{"anything": 1}.Validate(TestTypeSmartFull))
}
