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

const smartInfoSATA = `=== START OF INFORMATION SECTION ===
Model Family:     Western Digital Red
Device Model:     WDC WD40EFRX-68N32N0
SATA Version is:  SATA 3.1, 6.0 Gb/s (current: 6.0 Gb/s)
`

func TestHealthCheckHealthy(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -H", toolstest.Response{Result: tools.Result{
		Stdout: "SMART overall-health self-assessment test result: PASSED\n",
	}})
	fake.Script("smartctl -A", toolstest.Response{Result: tools.Result{Stdout: `ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  9 Power_On_Hours          0x0032   096   096   000    Old_age   Always       -       3210
194 Temperature_Celsius     0x0022   114   098   000    Old_age   Always       -       33
`}})
	fake.Script("smartctl -i", toolstest.Response{Result: tools.Result{Stdout: smartInfoSATA}})

	sink := &recordingSink{}
	res, err := NewHealthCheck(fake).Execute(context.Background(), testDevice(), nil, sink)
	require.NoError(t, err)

	assert.Equal(t, "PASSED", res.Details["smart_health"])
	assert.Equal(t, 33, res.Details["temperature"])
	assert.Equal(t, 3210, res.Details["power_on_hours"])
	assert.Equal(t, "SATA", res.Details["connection_type"])
	assert.Empty(t, res.Warnings)
	assert.Equal(t, float64(100), sink.lastPercent())
}

func TestHealthCheckFailedVerdict(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -H", toolstest.Response{Result: tools.Result{
		Stdout: "SMART overall-health self-assessment test result: FAILED\n",
	}})

	_, err := NewHealthCheck(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperrors.IsToolFailure(err))
	assert.Contains(t, err.Error(), "FAILED")
}

func TestHealthCheckDegradesWithoutAttributes(t *testing.T) {
	fake := toolstest.NewFakeRunner()
	fake.Script("smartctl -H", toolstest.Response{Result: tools.Result{
		Stdout: "SMART overall-health self-assessment test result: PASSED\n",
	}})
	fake.Script("smartctl -A", toolstest.Response{Result: tools.Result{ExitCode: 2}})
	fake.Script("smartctl -i", toolstest.Response{Result: tools.Result{ExitCode: 2}})

	res, err := NewHealthCheck(fake).Execute(context.Background(), testDevice(), nil, &recordingSink{})
	require.NoError(t, err)
	assert.NotContains(t, res.Details, "temperature")
	assert.NotContains(t, res.Details, "connection_type")
}
