package drivetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
	"github.com/compudrive/drivebench/internal/tools/toolstest"
)

func TestFormatDefaults(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("blockdev", toolstest.Response{Result: tools.Result{Stdout: "512\n"}})
	fake.Script("umount", toolstest.Response{Result: tools.Result{ExitCode: 1}})
	fake.Script("mkfs", toolstest.Response{})

	sink := &recordingSink{}
	res, err := NewFormat(fake).Execute(context.Background(), testDevice(), nil, sink)
	require.NoError(t, err)

	assert.Equal(t, 512, res.Details["old_block_size"])
	assert.Equal(t, model.DefaultFormatBlockSize, res.Details["new_block_size"])
	assert.Equal(t, "ext4", res.Details["filesystem"])
	assert.Equal(t, float64(100), sink.lastPercent())

	calls := fake.CallLines()
	require.Len(t, calls, 3)
	assert.Equal(t, "blockdev --getbsz /dev/sdb", calls[0])
	assert.Equal(t, "umount /dev/sdb", calls[1])
	assert.Equal(t, "mkfs -t ext4 -b 4096 /dev/sdb", calls[2])
}

func TestFormatCustomParameters(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("mkfs", toolstest.Response{})

	params := model.TestParameters{
		"block_size":  8192,
		"filesystem":  "xfs",
		"fast_format": true,
	}
	res, err := NewFormat(fake).Execute(context.Background(), testDevice(), params, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 8192, res.Details["new_block_size"])

	assert.Contains(t, fake.CallLines(), "mkfs -t xfs -b 8192 -q /dev/sdb")
}

func TestFormatInvalidParameters(t *testing.T) {
	fake := toolstest.NewFakeRunner()

	_, err := NewFormat(fake).Execute(context.Background(), testDevice(),
		model.TestParameters{"block_size": 3000}, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidParameters(err))
	assert.Empty(t, fake.Calls(), "no tool runs on invalid parameters")
}

func TestFormatMkfsFailure(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("mkfs", toolstest.Response{Result: tools.Result{
		ExitCode: 1,
		Stderr:   "mkfs.ext4: Device or resource busy",
	}})

	_, err := NewFormat(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
	assert.Contains(t, err.Error(), "resource busy")
}
