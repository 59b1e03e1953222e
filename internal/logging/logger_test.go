package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	var typed *componentLogger
	assert.Equal(t, Nop(), OrNop(typed))

	logger := NewComponentLogger("test")
	assert.Equal(t, logger, OrNop(logger))
}

func TestConfigureLevels(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Format: "text", Output: &buf})
	defer Configure(Config{Level: "info"})

	logger := NewComponentLogger("gate")
	logger.Info("hidden %d", 1)
	logger.Warn("visible %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible 2")
	assert.Contains(t, out, "component=gate")
}

func TestMultiFlattensAndFansOut(t *testing.T) {
	var a, b bytes.Buffer
	Configure(Config{Level: "debug", Output: &a})
	la := NewComponentLogger("a")
	Configure(Config{Level: "debug", Output: &b})
	lb := NewComponentLogger("b")
	defer Configure(Config{Level: "info"})

	m := Multi(la, Multi(lb, nil))
	m.Info("both sides")

	assert.True(t, strings.Contains(a.String(), "both sides"))
	assert.True(t, strings.Contains(b.String(), "both sides"))
}
