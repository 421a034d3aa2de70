package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := DeviceBusy("/dev/sdb")
		assert.Equal(t, "a test is already running on /dev/sdb", err.Error())
	})

	t.Run("message with cause", func(t *testing.T) {
		cause := errors.New("exit status 1")
		err := Wrap(cause, ErrCodeToolFailure, "smartctl failed")
		assert.Equal(t, "smartctl failed: exit status 1", err.Error())
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("runtime error: index out of range")
	err := WorkerCrashed(cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, IsWorkerCrashed(err))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  ErrorCode
	}{
		{"protected device", ProtectedDevice("/dev/sda"), IsProtectedDevice, ErrCodeProtectedDevice},
		{"device busy", DeviceBusy("/dev/sdb"), IsDeviceBusy, ErrCodeDeviceBusy},
		{"unknown test type", UnknownTestType("bogus"), IsUnknownTestType, ErrCodeUnknownTestType},
		{"invalid parameters", InvalidParameters("bad block size"), IsInvalidParameters, ErrCodeInvalidParameters},
		{"capacity", CapacityExhausted(20), IsCapacityExhausted, ErrCodeCapacity},
		{"worker crashed", WorkerCrashed(nil), IsWorkerCrashed, ErrCodeWorkerCrashed},
		{"tool failure", ToolFailure("badblocks found 3 bad blocks"), IsToolFailure, ErrCodeToolFailure},
		{"timeout", Timeout("self-test deadline expired"), IsTimeout, ErrCodeTimeout},
		{"not found", NotFound("no drive"), IsNotFound, ErrCodeNotFound},
		{"validation", Validation("bad input"), IsValidation, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestPredicatesThroughWrapping(t *testing.T) {
	inner := DeviceBusy("/dev/sdc")
	wrapped := fmt.Errorf("start test: %w", inner)

	assert.True(t, IsDeviceBusy(wrapped))
	assert.False(t, IsProtectedDevice(wrapped))
	assert.Equal(t, ErrCodeDeviceBusy, GetCode(wrapped))
}

func TestGetField(t *testing.T) {
	err := InvalidParametersField("block_size", "block_size must be a power of two")
	assert.Equal(t, "block_size", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}

func TestGetCodeNonAppError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}
