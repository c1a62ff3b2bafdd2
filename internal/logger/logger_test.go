package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pst.log")
	l, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Sugar().Infow("container opened", "nid", 0x21)
	require.NoError(t, l.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "container opened", entry["msg"])
	require.EqualValues(t, 0x21, entry["nid"])
}

func TestNew_Level(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)

	l, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
