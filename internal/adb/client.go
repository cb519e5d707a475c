// Package adb wraps the Android debug bridge client. The tool only needs
// two operations from it: listing connected devices and pulling a remote
// directory to the local filesystem.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/retry"
)

var (
	// ErrDeviceUnavailable means no connected, authorized device matched.
	ErrDeviceUnavailable = errors.New("no device available")
	// ErrTransfer means a pull did not complete.
	ErrTransfer = errors.New("device transfer failed")
	// ErrTimeout is the cause attached to expired adb invocations.
	ErrTimeout = errors.New("adb command timed out")
)

const (
	DefaultBinary = "adb"

	// pullAttempts bounds how often a failed pull of one remote root is
	// re-run before the run is aborted.
	pullAttempts   = 2
	pullRetryDelay = 2 * time.Second
)

// Option overrides a default Client setting.
type Option func(*Client)

// Client invokes the adb binary as a subprocess.
type Client struct {
	binary  string
	serial  string
	timeout time.Duration
	log     logger.Logger
}

// NewClient returns a Client talking to the adb binary on PATH.
func NewClient(opts ...Option) *Client {
	c := &Client{
		binary:  DefaultBinary,
		timeout: 5 * time.Minute,
		log:     logger.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSerial pins all commands to one device (adb -s).
func WithSerial(serial string) Option {
	return func(c *Client) {
		if serial != "" {
			c.serial = serial
		}
	}
}

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBinary overrides the adb executable path.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	if c.serial != "" {
		args = append([]string{"-s", c.serial}, args...)
	}
	return exec.CommandContext(ctx, c.binary, args...)
}

// Devices returns the serials of connected, authorized devices. Rows in
// "unauthorized" or "offline" state are dropped.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.binary, "devices").Output()
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}

	var serials []string
	lines := strings.Split(string(out), "\n")
	if len(lines) > 0 {
		lines = lines[1:] // "List of devices attached" header
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "device" {
			continue
		}
		serials = append(serials, fields[0])
	}
	return serials, nil
}

// CheckDevice verifies that an authorized device is reachable and, when a
// serial is configured, that it is among the connected ones.
func (c *Client) CheckDevice(ctx context.Context) error {
	serials, err := c.Devices(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if len(serials) == 0 {
		return fmt.Errorf("%w: no authorized device connected", ErrDeviceUnavailable)
	}
	if c.serial != "" && !slices.Contains(serials, c.serial) {
		return fmt.Errorf("%w: device %q not connected (found %s)",
			ErrDeviceUnavailable, c.serial, strings.Join(serials, ", "))
	}
	return nil
}

// Pull copies remotePath (a directory on the device) into localDir.
func (c *Client) Pull(ctx context.Context, remotePath, localDir string) error {
	cctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	defer cancel()

	cmd := c.command(cctx, "pull", remotePath, localDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Info("pull started", "remote", remotePath, "local", localDir)
	start := time.Now()
	runErr := cmd.Run()
	if runErr != nil {
		if errors.Is(context.Cause(cctx), ErrTimeout) {
			return fmt.Errorf("%w: pull %q: %v", ErrTransfer, remotePath, ErrTimeout)
		}
		return fmt.Errorf("%w: pull %q: %v: %s",
			ErrTransfer, remotePath, runErr, lastLine(stderr.String()))
	}
	// adb reports some failures on a zero exit.
	if reason := pullFailure(stdout.String(), stderr.String()); reason != "" {
		return fmt.Errorf("%w: pull %q: %s", ErrTransfer, remotePath, reason)
	}

	c.log.Info("pull completed",
		"remote", remotePath,
		"local", localDir,
		"duration", time.Since(start).String(),
	)
	return nil
}

// PullAll clears any stale contents of tempDir, then pulls every remote
// root into its own subdirectory of tempDir. Each pull is retried once.
func (c *Client) PullAll(ctx context.Context, remotes []string, tempDir string) error {
	if err := clearDir(tempDir); err != nil {
		return fmt.Errorf("%w: reset temp dir %q: %v", ErrTransfer, tempDir, err)
	}
	for _, remote := range remotes {
		target := filepath.Join(tempDir, path.Base(remote))
		pull := func() error { return c.Pull(ctx, remote, target) }
		if err := retry.Do(ctx, pullAttempts, pullRetryDelay, pull); err != nil {
			return err
		}
	}
	return nil
}

// pullFailure maps adb's zero-exit failure chatter to a short reason.
// Heuristics carried over from the scripted predecessor of this tool.
func pullFailure(stdout, stderr string) string {
	out := strings.ToLower(stdout)
	errOut := strings.ToLower(stderr)
	switch {
	case strings.Contains(errOut, "no such file"):
		return "remote path missing"
	case strings.Contains(errOut, "permission denied"):
		return "permission denied"
	case strings.Contains(errOut, "pull failed"):
		return "pull failed"
	case strings.Contains(out, "0 files pulled"):
		return "no files pulled"
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

// clearDir ensures dir exists and is empty, so pulled files from one run
// never mix with leftovers from a previous one.
func clearDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
