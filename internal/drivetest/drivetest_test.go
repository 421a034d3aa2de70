package drivetest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/tools/toolstest"
)

func TestHandlersCoverEveryTestType(t *testing.T) {
	handlers := Handlers(HandlerSetOptions{Runner: toolstest.NewFakeRunner()})
	for _, tt := range model.AllTestTypes() {
		assert.Contains(t, handlers, tt, "missing handler for %s", tt)
		assert.NotNil(t, handlers[tt])
	}
	assert.Len(t, handlers, len(model.AllTestTypes()))
}
