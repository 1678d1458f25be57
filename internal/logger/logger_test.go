package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Enabled: false, Output: &buf})
	l.Info("hello")
	require.Zero(t, buf.Len())
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Enabled: true, Output: &buf, Level: slog.LevelWarn})
	l.Info("dropped")
	l.Warn("kept", "k", 1)
	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, "kept")
	require.Contains(t, out, "k=1")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Enabled: true, Output: &buf, JSON: true})
	l.Info("gc", "n", 3)
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"n":3`)
}

func TestInit_LogDirAndRetention(t *testing.T) {
	saved := L
	defer func() { L = saved }()

	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+time.Now().AddDate(0, 0, -90).Format("2006-01-02")+logSuffix)
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))

	require.NoError(t, Init(Options{Enabled: true, LogDir: dir}))
	Info("written")

	_, err := os.Stat(old)
	require.True(t, os.IsNotExist(err), "expired log should be removed")

	today := filepath.Join(dir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)
	data, err := os.ReadFile(today)
	require.NoError(t, err)
	require.Contains(t, string(data), "written")
}
