package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradewatch/internal/app"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut strings.Builder
	code := Execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "gradewatch dev (none)\n", out)
}

func TestMissingConfigIsStartupFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	for _, cmd := range []string{"run", "check", "notify-test", "journal"} {
		code, _, errOut := run(t, cmd, "--config", missing)
		assert.Equal(t, app.ExitStartupFailed, code, cmd)
		assert.Contains(t, errOut, "nope.yaml", cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := run(t, "frobnicate")
	assert.Equal(t, app.ExitCommandFailed, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestOneShotFailureHasOwnStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradewatch.json")
	cfg := `{"account":{"username":"u","password":"p"},"notify":{"console":{"enabled":true}},"logging":{"level":"error"}}`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	code, _, errOut := run(t, "journal", "--config", path)
	assert.Equal(t, app.ExitCommandFailed, code)
	assert.Contains(t, errOut, app.ErrJournalDisabled.Error())
	assert.NotEqual(t, app.ExitStartupFailed, code)
}

func TestDefaultConfigFlag(t *testing.T) {
	f := NewRootCmd().PersistentFlags().Lookup("config")
	if assert.NotNil(t, f) {
		assert.Equal(t, "./gradewatch.yaml", f.DefValue)
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := error(&ExitError{Code: 2, Err: base})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "exit status 2", (&ExitError{Code: 2}).Error())
}
