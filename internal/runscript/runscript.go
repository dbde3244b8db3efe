// Package runscript runs external commands and streams their output, line
// by line, to the logger and to any number of monitors.
package runscript

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1 << 20

// Stream identifies which output a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Monitor observes output lines. Calls are serialized across both streams.
type Monitor interface {
	Line(stream Stream, line string)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(stream Stream, line string)

// Line calls f.
func (f MonitorFunc) Line(stream Stream, line string) { f(stream, line) }

// Split breaks a command line on runs of whitespace. Quoting is not
// interpreted.
func Split(command string) []string {
	return strings.Fields(command)
}

// RunCommand splits command, appends extra arguments verbatim and runs it.
func RunCommand(ctx context.Context, command string, extra []string, monitors ...Monitor) error {
	fields := Split(command)
	if len(fields) == 0 {
		return eris.New("runscript: empty command")
	}
	return Run(ctx, fields[0], append(fields[1:], extra...), monitors...)
}

// Run executes name with args in the current environment and waits for it.
// A non-zero exit status is returned as an error naming the exit code.
func Run(ctx context.Context, name string, args []string, monitors ...Monitor) error {
	log := zap.L().With(
		zap.String("component", "runscript"),
		zap.String("command", name),
	)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return eris.Wrapf(err, "runscript: stdout pipe for %s", name)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return eris.Wrapf(err, "runscript: stderr pipe for %s", name)
	}

	if err := cmd.Start(); err != nil {
		return eris.Wrapf(err, "runscript: could not launch %s", name)
	}
	log.Debug("started", zap.Strings("args", args), zap.Int("pid", cmd.Process.Pid))

	var mu sync.Mutex
	emit := func(stream Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		if stream == Stderr {
			log.Warn(line, zap.Stringer("stream", stream))
		} else {
			log.Info(line, zap.Stringer("stream", stream))
		}
		for _, m := range monitors {
			m.Line(stream, line)
		}
	}

	// Both pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, Stdout, emit) })
	g.Go(func() error { return scanLines(stderr, Stderr, emit) })
	scanErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return eris.Errorf("runscript: %s exited with code %d", name, exitErr.ExitCode())
		}
		return eris.Wrapf(err, "runscript: %s", name)
	}
	if scanErr != nil {
		return eris.Wrapf(scanErr, "runscript: read output of %s", name)
	}
	return nil
}

func scanLines(r io.Reader, stream Stream, emit func(Stream, string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		emit(stream, sc.Text())
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
