package runscript

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records every line it sees.
type collector struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func newCollector() *collector {
	return &collector{lines: map[Stream][]string{}}
}

func (c *collector) Line(stream Stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[stream] = append(c.lines[stream], line)
}

func TestRun_StreamsToMonitors(t *testing.T) {
	a, b := newCollector(), newCollector()
	err := Run(context.Background(), "sh", []string{"-c", "echo one; echo two; echo oops >&2"}, a, b)
	require.NoError(t, err)

	for _, c := range []*collector{a, b} {
		assert.Equal(t, []string{"one", "two"}, c.lines[Stdout])
		assert.Equal(t, []string{"oops"}, c.lines[Stderr])
	}
}

func TestRun_NoMonitors(t *testing.T) {
	require.NoError(t, Run(context.Background(), "true", nil))
}

func TestRun_NonZeroExit(t *testing.T) {
	c := newCollector()
	err := Run(context.Background(), "sh", []string{"-c", "echo partial; exit 3"}, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh exited with code 3")
	assert.Equal(t, []string{"partial"}, c.lines[Stdout])
}

func TestRun_MissingBinary(t *testing.T) {
	err := Run(context.Background(), "definitely-not-a-real-binary-xyz", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not launch definitely-not-a-real-binary-xyz")
}

func TestRun_InheritsEnvironment(t *testing.T) {
	t.Setenv("GEOSTREAM_RUNSCRIPT_TEST", "visible")
	c := newCollector()
	require.NoError(t, Run(context.Background(), "sh", []string{"-c", "echo $GEOSTREAM_RUNSCRIPT_TEST"}, c))
	assert.Equal(t, []string{"visible"}, c.lines[Stdout])
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Run(ctx, "sleep", []string{"10"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCommand(t *testing.T) {
	var got []string
	err := RunCommand(context.Background(), "echo   hello    world", []string{"two  spaces"}, MonitorFunc(func(_ Stream, line string) {
		got = append(got, line)
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world two  spaces"}, got)
}

func TestRunCommand_Empty(t *testing.T) {
	err := RunCommand(context.Background(), "   ", []string{"-f", "x.sql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty command")
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"psql", "-U", "osm", "-f", "tiles-3_0.sql"}, Split(" psql  -U osm\t-f tiles-3_0.sql\n"))
	assert.Empty(t, Split(""))
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "stdout", Stdout.String())
	assert.Equal(t, "stderr", Stderr.String())
}
