package mcp

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const stdioShutdownWait = 2 * time.Second

var errClosed = errors.New("MCP server closed the connection")

// StdioTransport speaks newline-delimited JSON-RPC with a child process
type StdioTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	exited    chan struct{}
}

// NewStdioTransport spawns the server process
func NewStdioTransport(command string, args, env []string, dir string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "failed to start MCP server")
	}

	t := &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		exited: make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer close(t.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case t.lines <- line:
		case <-t.exited:
			return
		}
	}
}

func (t *StdioTransport) write(msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	// Write message with newline delimiter
	if _, err := t.stdin.Write(append(msg, '\n')); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (t *StdioTransport) Call(ctx context.Context, id int64, req []byte) ([]byte, error) {
	if err := t.write(req); err != nil {
		return nil, err
	}
	for {
		select {
		case line, ok := <-t.lines:
			if !ok {
				return nil, errClosed
			}
			if got, isResp := responseID(line); isResp && got == id {
				return line, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *StdioTransport) Notify(_ context.Context, msg []byte) error {
	return t.write(msg)
}

// Close ends stdin and waits briefly for the server to exit before killing it
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.stdin.Close()

		waited := make(chan error, 1)
		go func() { waited <- t.cmd.Wait() }()

		select {
		case <-waited:
		case <-time.After(stdioShutdownWait):
			if killErr := t.cmd.Process.Kill(); killErr != nil {
				err = errors.Wrap(killErr, "killing MCP server")
			}
			<-waited
		}
		close(t.exited)
	})
	return err
}
