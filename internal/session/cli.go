package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCLIPath is the executable looked up on PATH
	DefaultCLIPath = "claude"

	maxLineSize   = 16 * 1024 * 1024
	stderrTail    = 20
	killWaitDelay = 3 * time.Second
)

var errStopped = errors.New("session closed")

// CLILauncher runs the claude CLI in print mode with stream-json output
type CLILauncher struct {
	Path   string
	Logger *slog.Logger
}

// NewCLILauncher creates a launcher for the CLI at path
func NewCLILauncher(path string, logger *slog.Logger) *CLILauncher {
	if path == "" {
		path = DefaultCLIPath
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CLILauncher{Path: path, Logger: logger}
}

// Args builds the CLI argument list for opts
func (l *CLILauncher) Args(opts QueryOptions) []string {
	args := []string{
		"--print",                        // Non-interactive mode
		"--verbose",                      // Required for stream-json output
		"--output-format", "stream-json", // One JSON message per line
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", string(opts.PermissionMode))
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.Continue {
		args = append(args, "--continue")
	}
	if opts.MCPConfig != "" {
		args = append(args, "--mcp-config", opts.MCPConfig)
	}

	// Prompt goes last, after "--" so a leading dash is not read as a flag
	return append(args, "--", opts.Prompt)
}

// Query starts the CLI. The process is killed when ctx is cancelled or the
// session is closed.
func (l *CLILauncher) Query(ctx context.Context, opts QueryOptions) (Session, error) {
	runCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(runCtx, l.Path, l.Args(opts)...)
	cmd.Dir = opts.Cwd
	cmd.WaitDelay = killWaitDelay
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	// Wait closes these after WaitDelay even if a grandchild still holds the
	// descriptors
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		cancel()
		stdoutW.Close()
		stderrW.Close()
		return nil, errors.Wrapf(err, "starting %s", l.Path)
	}
	l.Logger.Debug("session started", "pid", cmd.Process.Pid, "cwd", opts.Cwd, "continue", opts.Continue)

	s := &cliSession{
		cmd:      cmd,
		ctx:      runCtx,
		cancel:   cancel,
		messages: make(chan *Message),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   l.Logger,
	}
	go s.run(stdout, stderr, stdoutW, stderrW)
	return s, nil
}

type cliSession struct {
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	messages chan *Message
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// written by run before messages is closed
	err       error
	sawResult bool
	stderr    []string
}

func (s *cliSession) run(stdout, stderr io.Reader, stdoutW, stderrW io.Closer) {
	defer close(s.done)

	var g errgroup.Group
	g.Go(func() error { return s.readStdout(stdout) })
	g.Go(func() error { return s.readStderr(stderr) })

	waitErr := s.cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	readErr := g.Wait()

	s.err = s.finalError(readErr, waitErr)
	close(s.messages)
}

func (s *cliSession) readStdout(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			s.logger.Debug("skipping non-JSON session output", "line", truncate(string(line), 200))
			continue
		}
		if msg.Type == TypeResult {
			s.sawResult = true
		}

		select {
		case s.messages <- msg:
		case <-s.stop:
			io.Copy(io.Discard, r)
			return errStopped
		}
	}
	err := scanner.Err()
	io.Copy(io.Discard, r)
	return err
}

func (s *cliSession) readStderr(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.stderr = append(s.stderr, line)
		if len(s.stderr) > stderrTail {
			s.stderr = s.stderr[len(s.stderr)-stderrTail:]
		}
	}
	io.Copy(io.Discard, r)
	return nil
}

func (s *cliSession) finalError(readErr, waitErr error) error {
	if readErr == errStopped {
		return errStopped
	}
	if s.ctx.Err() != nil {
		return context.Cause(s.ctx)
	}
	if readErr != nil {
		return errors.Wrap(readErr, "reading session output")
	}
	if waitErr == nil {
		return nil
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		s.logger.Debug("session output still open after exit", "error", waitErr)
		return nil
	}
	if s.sawResult {
		// The result message already carries the outcome
		s.logger.Debug("session exited non-zero after result", "error", waitErr)
		return nil
	}
	if len(s.stderr) > 0 {
		return errors.Errorf("%s exited: %v: %s", s.cmd.Path, waitErr, strings.Join(s.stderr, "\n"))
	}
	return errors.Wrapf(waitErr, "%s exited", s.cmd.Path)
}

func (s *cliSession) Next(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.messages:
		if !ok {
			if s.err != nil {
				return nil, s.err
			}
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Close stops the process if it is still running and waits for it to exit
func (s *cliSession) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})
	<-s.done
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
