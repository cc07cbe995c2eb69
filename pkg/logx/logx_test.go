package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	assert.NotPanics(t, func() { l.Info("dropped", String("k", "v")) })
	assert.False(t, Nop().IsZero())
}

func TestWithAddsFixedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "poll"))
	l.Info("cycle done", Int("new", 2), Err(errors.New("x")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "poll", m["comp"])
	assert.Equal(t, float64(2), m["new"])
	assert.Equal(t, "x", m["err"])
	assert.Equal(t, "cycle done", m["message"])
	assert.True(t, strings.HasPrefix(m["caller"].(string), "logx_test.go:"))
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
}

func TestServiceApplySwapsSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watch.log")
	var console bytes.Buffer
	svc, log := newService(Config{Level: "info", Console: true}, &console)
	t.Cleanup(func() { _ = svc.Close() })

	derived := log.With(String("comp", "app"))
	derived.Info("to console")
	assert.Contains(t, console.String(), "to console")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	derived.Debug("to file")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"to file"`)
	assert.Contains(t, string(b), `"comp":"app"`)
	assert.NotContains(t, console.String(), "to file")
	assert.Equal(t, "debug", svc.Config().Level)
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("Warning"))
	assert.True(t, ValidLevel(""))
	assert.False(t, ValidLevel("verbose"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
