package drivetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
	"github.com/compudrive/drivebench/internal/tools/toolstest"
)

func TestBadblocksReadClean(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("badblocks", toolstest.Response{
		Lines: []string{
			"Checking blocks 0 to 976762583",
			"Checking for bad blocks (read-only test): 12.34% done, 0:05 elapsed. (0/0/0 errors)",
			"Checking for bad blocks (read-only test): 99.99% done, 8:41 elapsed. (0/0/0 errors)",
			"Pass completed, 0 bad blocks found. (0/0/0 errors)",
		},
	})

	sink := &recordingSink{}
	res, err := NewBadblocks(fake, false).Execute(context.Background(), testDevice(), nil, sink)
	require.NoError(t, err)

	assert.Equal(t, "badblocks read scan clean", res.Summary)
	assert.Equal(t, float64(100), sink.lastPercent())
	assert.Equal(t, []string{"badblocks -v -s -e 10 /dev/sdb"}, fake.CallLines())
}

func TestBadblocksWriteUsesWriteFlag(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("badblocks", toolstest.Response{
		Lines: []string{"Pass completed, 0 bad blocks found. (0/0/0 errors)"},
	})

	res, err := NewBadblocks(fake, true).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "badblocks write scan clean", res.Summary)
	assert.Equal(t, []string{"badblocks -v -s -e 10 -w /dev/sdb"}, fake.CallLines())
}

func TestBadblocksFindsBadBlocks(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("badblocks", toolstest.Response{
		Lines: []string{
			"Checking for bad blocks (read-only test): 45.00% done, 2:00 elapsed. (1/0/0 errors)",
			"104422",
			"104423",
			"Pass completed, 2 bad blocks found. (2/0/0 errors)",
		},
		Result: tools.Result{ExitCode: 1},
	})

	_, err := NewBadblocks(fake, false).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
	assert.Contains(t, err.Error(), "2 bad blocks")
}

func TestBadblocksProgressScaled(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("badblocks", toolstest.Response{
		Lines: []string{
			"Checking for bad blocks (read-only test): 50.00% done, 4:00 elapsed. (0/0/0 errors)",
			"Pass completed, 0 bad blocks found. (0/0/0 errors)",
		},
	})

	sink := &recordingSink{}
	_, err := NewBadblocks(fake, false).Execute(context.Background(), testDevice(), nil, sink)
	require.NoError(t, err)

	// 5% handler base plus 50% of the 90% scan span.
	assert.Contains(t, sink.percent, 50.0)
}

func TestBadblocksNonzeroExitWithoutFindings(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("badblocks", toolstest.Response{
		Result: tools.Result{ExitCode: 2, Stderr: "badblocks: Permission denied"},
	})

	_, err := NewBadblocks(fake, false).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
}
