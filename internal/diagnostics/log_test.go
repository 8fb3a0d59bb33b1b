package diagnostics

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T, maxBytes int64, maxLines int) *Log {
	t.Helper()
	l := NewLog(filepath.Join(t.TempDir(), "diagnostic.log"), maxBytes, maxLines, nil)
	l.nowFn = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return l
}

func TestLogAppendOrdering(t *testing.T) {
	l := newTestLog(t, DefaultMaxBytes, DefaultMaxLines)
	for i := 0; i < 10; i++ {
		l.Append(fmt.Sprintf("entry %d", i))
	}
	l.Close()

	content, err := l.ReadAll(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	require.Len(t, lines, 10)
	for i, line := range lines {
		assert.Contains(t, line, fmt.Sprintf("entry %d", i))
	}
}

func TestLogTrimsToTrailingLines(t *testing.T) {
	// A tiny byte limit forces a trim on every write past it.
	l := newTestLog(t, 200, 3)
	for i := 0; i < 20; i++ {
		l.Append(fmt.Sprintf("entry %d", i))
	}
	l.Close()

	content, err := l.ReadAll(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	// The file may grow a few lines past a trim before the next one, but
	// never back to the full history.
	assert.Less(t, len(lines), 10)
	assert.Contains(t, lines[len(lines)-1], "entry 19")
	assert.NotContains(t, content, "entry 0\n")
}

func TestLogReadAllMissingFile(t *testing.T) {
	l := newTestLog(t, DefaultMaxBytes, DefaultMaxLines)
	defer l.Close()

	content, err := l.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, content)
}
