// Package e2e provides true end-to-end testing of arcset using real
// supervisor and generator processes.
//
// These tests start the arcset binary several times against one private
// channel and verify:
//
// - Cross-process semaphores and the shared segment
// - Console output of the supervisor and the generators
// - Exit codes
// - The shutdown protocol, including signal handling
// - That no channel object survives a clean shutdown
//
// The binary is located in the project root; build it first with
// 'go build -o arcset .'. Tests are skipped when it is missing.
package e2e

import (
	"bufio"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
)

// E2ETestSuite runs arcset processes against a private channel
type E2ETestSuite struct {
	t          *testing.T
	binaryPath string
	channelDir string
	channel    string
	cleanup    []func() error
	mu         sync.Mutex
}

// Process is one running arcset command with its captured output
type Process struct {
	Name string
	cmd  *exec.Cmd

	mu     sync.Mutex
	stdout []string
	stderr []string
	lines  chan string
	done   chan struct{}
	err    error
}

// NewE2ETestSuite creates a suite with its own channel name and directory
func NewE2ETestSuite(t *testing.T) *E2ETestSuite {
	t.Helper()

	binaryPath, err := findArcsetBinary()
	if err != nil {
		t.Skipf("skipping end-to-end test: %v", err)
	}

	suite := &E2ETestSuite{
		t:          t,
		binaryPath: binaryPath,
		channelDir: t.TempDir(),
		channel:    "e2e-" + uuid.New().String(),
	}
	t.Cleanup(suite.Cleanup)

	t.Logf("E2E test suite using %s with channel %s in %s", binaryPath, suite.channel, suite.channelDir)
	return suite
}

// findArcsetBinary finds the arcset binary for E2E testing
func findArcsetBinary() (string, error) {
	if path := os.Getenv("ARCSET_BINARY"); path != "" {
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Walk up from the package directory to the project root
	for i := 0; i < 4; i++ {
		binaryPath := filepath.Join(cwd, "arcset")
		if info, err := os.Stat(binaryPath); err == nil && !info.IsDir() {
			return binaryPath, nil
		}
		cwd = filepath.Dir(cwd)
	}

	return "", fmt.Errorf("arcset binary not found, run 'go build -o arcset .' from the project root")
}

// ChannelDir returns the directory holding the channel objects
func (s *E2ETestSuite) ChannelDir() string {
	return s.channelDir
}

// ChannelObjects lists the names currently present in the channel directory
func (s *E2ETestSuite) ChannelObjects() []string {
	entries, err := os.ReadDir(s.channelDir)
	if err != nil {
		s.t.Fatalf("failed to read channel dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// Start launches "arcset args..." against the suite's channel
func (s *E2ETestSuite) Start(name string, args ...string) *Process {
	s.t.Helper()

	cmd := exec.Command(s.binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"ARCSET_CHANNEL_DIR="+s.channelDir,
		"ARCSET_CHANNEL_NAME="+s.channel,
		"ARCSET_CHANNEL_WAIT_MAX_INTERVAL=10ms",
		"ARCSET_LOGGING_LEVEL=warn",
		"ARCSET_CONFIG=",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.t.Fatalf("failed to create stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.t.Fatalf("failed to create stderr pipe: %v", err)
	}

	p := &Process{
		Name:  name,
		cmd:   cmd,
		lines: make(chan string, 1024),
		done:  make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		s.t.Fatalf("failed to start %s: %v", name, err)
	}
	s.t.Logf("Started %s (PID: %d): %s", name, cmd.Process.Pid, strings.Join(args, " "))

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.capture(stdout, &p.stdout, true)
	}()
	go func() {
		defer readers.Done()
		p.capture(stderr, &p.stderr, false)
	}()
	go func() {
		readers.Wait()
		p.err = cmd.Wait()
		close(p.lines)
		close(p.done)
	}()

	s.addCleanup(func() error {
		select {
		case <-p.done:
			return nil
		default:
		}
		if err := cmd.Process.Kill(); err != nil && !goerrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill %s: %w", name, err)
		}
		<-p.done
		return nil
	})

	return p
}

// Run executes "arcset args..." to completion and returns its exit code
func (s *E2ETestSuite) Run(timeout time.Duration, args ...string) (*Process, int) {
	s.t.Helper()

	p := s.Start(strings.Join(args, " "), args...)
	code, err := p.Wait(timeout)
	if err != nil {
		s.t.Fatalf("%s: %v", p.Name, err)
	}
	return p, code
}

func (p *Process) capture(r io.Reader, into *[]string, forward bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		*into = append(*into, line)
		p.mu.Unlock()
		if forward {
			select {
			case p.lines <- line:
			default:
			}
		}
	}
}

// Stdout returns the lines printed on stdout so far
func (p *Process) Stdout() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stdout...)
}

// Stderr returns everything printed on stderr so far
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.stderr, "\n")
}

// WaitForLine blocks until a stdout line containing substr appears
func (p *Process) WaitForLine(substr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return fmt.Errorf("%s exited before printing %q", p.Name, substr)
			}
			if strings.Contains(line, substr) {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %q from %s", substr, p.Name)
		}
	}
}

// Signal sends sig to the process
func (p *Process) Signal(sig syscall.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Wait waits for the process to exit and returns its exit code
func (p *Process) Wait(timeout time.Duration) (int, error) {
	select {
	case <-p.done:
	case <-time.After(timeout):
		return -1, fmt.Errorf("timeout waiting for %s to exit", p.Name)
	}

	if p.err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if goerrors.As(p.err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, p.err
}

// addCleanup adds a cleanup function to be called on test completion
func (s *E2ETestSuite) addCleanup(cleanup func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup = append(s.cleanup, cleanup)
}

// Cleanup kills every process still running
func (s *E2ETestSuite) Cleanup() {
	s.mu.Lock()
	cleanup := s.cleanup
	s.cleanup = nil
	s.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(cleanup) - 1; i >= 0; i-- {
		if err := cleanup[i](); err != nil {
			s.t.Logf("Cleanup error: %v", err)
		}
	}
}
