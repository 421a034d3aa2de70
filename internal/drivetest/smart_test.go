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

const smartHealthyOutput = `smartctl 7.3 2022-02-28 r5338 [x86_64-linux] (local build)

=== START OF READ SMART DATA SECTION ===
SMART overall-health self-assessment test result: PASSED

SMART Attributes Data Structure revision number: 16
Vendor Specific SMART Attributes with Thresholds:
ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  1 Raw_Read_Error_Rate     0x002f   200   200   051    Pre-fail  Always       -       0
  5 Reallocated_Sector_Ct   0x0033   200   200   140    Pre-fail  Always       -       0
  9 Power_On_Hours          0x0032   096   096   000    Old_age   Always       -       3210
 12 Power_Cycle_Count       0x0032   099   099   000    Old_age   Always       -       1430
194 Temperature_Celsius     0x0022   114   098   000    Old_age   Always       -       33
197 Current_Pending_Sector  0x0032   200   200   000    Old_age   Always       -       0
198 Offline_Uncorrectable   0x0030   100   253   000    Old_age   Offline      -       0

SMART Error Log Version: 1
`

const smartFailingOutput = `smartctl 7.3 2022-02-28 r5338 [x86_64-linux] (local build)

=== START OF READ SMART DATA SECTION ===
SMART overall-health self-assessment test result: PASSED

ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  5 Reallocated_Sector_Ct   0x0033   100   100   140    Pre-fail  Always   FAILING_NOW 24
197 Current_Pending_Sector  0x0032   200   200   000    Old_age   Always       -       8

`

func testDevice() model.DeviceIdentity {
	return model.DeviceIdentity{Path: "/dev/sdb", Name: "sdb", Serial: "WD-1234"}
}

func TestParseSmartAttributes(t *testing.T) {
	attrs := ParseSmartAttributes(smartHealthyOutput)
	require.Len(t, attrs, 7)

	realloc := attrs["Reallocated_Sector_Ct"]
	assert.Equal(t, 5, realloc.ID)
	assert.Equal(t, 200, realloc.Value)
	assert.Equal(t, 140, realloc.Threshold)
	assert.Equal(t, int64(0), realloc.RawValue)
	assert.Empty(t, realloc.WhenFail)

	poh := attrs["Power_On_Hours"]
	assert.Equal(t, int64(3210), poh.RawValue)

	failing := ParseSmartAttributes(smartFailingOutput)
	assert.Equal(t, "FAILING_NOW", failing["Reallocated_Sector_Ct"].WhenFail)
	assert.Equal(t, int64(24), failing["Reallocated_Sector_Ct"].RawValue)
}

func TestParseOverallHealth(t *testing.T) {
	health, ok := ParseOverallHealth(smartHealthyOutput)
	require.True(t, ok)
	assert.Equal(t, "PASSED", health)

	_, ok = ParseOverallHealth("no verdict here")
	assert.False(t, ok)
}

func TestSmartFullHealthyDrive(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -a", toolstest.Response{Result: tools.Result{Stdout: smartHealthyOutput}})

	sink := &recordingSink{}
	res, err := NewSmartFull(fake).Execute(context.Background(), testDevice(), nil, sink)
	require.NoError(t, err)

	assert.Equal(t, "SMART health PASSED", res.Summary)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, int64(3210), res.Details["power_on_hours"])
	assert.Equal(t, "PASSED", res.Details["health_status"])
	assert.Equal(t, float64(100), sink.lastPercent())
	assert.Equal(t, []string{"smartctl -a /dev/sdb"}, fake.CallLines())
}

func TestSmartFullFailingDrive(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -a", toolstest.Response{Result: tools.Result{Stdout: smartFailingOutput}})

	_, err := NewSmartFull(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
	assert.Contains(t, err.Error(), "reallocated sectors")
	assert.Contains(t, err.Error(), "pending sectors")
}

func TestSmartFullHighTemperatureWarns(t *testing.T) {
	out := `SMART overall-health self-assessment test result: PASSED

ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
194 Temperature_Celsius     0x0022   050   040   000    Old_age   Always       -       67

`
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -a", toolstest.Response{Result: tools.Result{Stdout: out}})

	res, err := NewSmartFull(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "high temperature")
}

func TestSmartFullDeviceOpenError(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -a", toolstest.Response{Result: tools.Result{
		ExitCode: 2,
		Stderr:   "Smartctl open device: /dev/sdb failed: No such device",
	}})

	_, err := NewSmartFull(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
}

func TestSmartFullIgnoresInformationalExitBits(t *testing.T) {
	// Bit 6 (0x40) flags error-log entries; the attribute read still worked.
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -a", toolstest.Response{Result: tools.Result{
		Stdout:   smartHealthyOutput,
		ExitCode: 0x40,
	}})

	_, err := NewSmartFull(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.NoError(t, err)
}
