// Package transport issues listing and mutation commands to an
// external transport binary
// (rclone, or any CLI compatible with its lsl/copyto/moveto/delete/
// sync/rmdirs contract) with bounded retries, treating the binary as a
// black box whose stdout or exit code is the only signal.
package transport

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/cjnaz/rclonesync-go/internal/rclog"
)

// DefaultMaxAttempts is the retry budget: three attempts total before
// a listing or mutation command is reported as failed.
const DefaultMaxAttempts = 3

// Verb is one of the transport operations the engine drives.
type Verb string

// The transport verbs consumed by the engine.
const (
	VerbList    Verb = "lsl"
	VerbCopyTo  Verb = "copyto"
	VerbMoveTo  Verb = "moveto"
	VerbDelete  Verb = "delete"
	VerbSync    Verb = "sync"
	VerbRmdirs  Verb = "rmdirs"
	VerbVersion Verb = "version"
)

// Runner executes one transport invocation and returns its stdout.
// The default Adapter uses exec.CommandContext; tests supply a fake.
type Runner func(ctx context.Context, bin string, args []string) (stdout []byte, err error)

// ExecRunner shells out to bin via os/exec, the production Runner.
func ExecRunner(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), errors.Wrapf(err, "%s %v: %s", bin, args, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Options configures an Adapter.
type Options struct {
	Bin         string   // path to the transport binary, e.g. "rclone"
	ConfigPath  string   // --config
	ExtraArgs   []string // --rclone-args pass-through, appended after the config and filter flags
	MaxAttempts int      // default DefaultMaxAttempts
}

// Adapter drives the configured transport binary.
type Adapter struct {
	Opt    Options
	Runner Runner
}

// New returns an Adapter that shells out to Opt.Bin via os/exec.
func New(opt Options) *Adapter {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = DefaultMaxAttempts
	}
	return &Adapter{Opt: opt, Runner: ExecRunner}
}

func (a *Adapter) commonArgs(filterArgs []string) []string {
	var args []string
	if a.Opt.ConfigPath != "" {
		args = append(args, "--config", a.Opt.ConfigPath)
	}
	args = append(args, filterArgs...)
	args = append(args, a.Opt.ExtraArgs...)
	return args
}

// runWithRetry issues args up to Opt.MaxAttempts times, returning the
// last error if every attempt fails.
func (a *Adapter) runWithRetry(ctx context.Context, args []string) ([]byte, error) {
	var lastErr error
	bin := a.Opt.Bin
	if bin == "" {
		bin = "rclone"
	}
	attempts := a.Opt.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := a.Runner(ctx, bin, args)
		if err == nil {
			return out, nil
		}
		lastErr = err
		rclog.Noticef(bin, "attempt %d/%d failed for %v: %v", attempt, attempts, args, err)
	}
	return nil, errors.Wrapf(lastErr, "transport command failed after %d attempts: %v", attempts, args)
}

// List runs `lsl <path>` with the given filter flags and returns raw
// listing output for the caller to parse.
func (a *Adapter) List(ctx context.Context, path string, filterArgs []string) ([]byte, error) {
	args := append([]string{string(VerbList), path}, a.commonArgs(filterArgs)...)
	return a.runWithRetry(ctx, args)
}

// Cmd issues a mutation verb (copyto, moveto, delete, sync, rmdirs)
// against one or two paths, with filter flags and any extra flags
// (e.g. --ignore-times, --min-size) appended.
func (a *Adapter) Cmd(ctx context.Context, verb Verb, paths []string, filterArgs []string, extraFlags ...string) error {
	args := []string{string(verb)}
	args = append(args, paths...)
	args = append(args, a.commonArgs(filterArgs)...)
	args = append(args, extraFlags...)
	_, err := a.runWithRetry(ctx, args)
	return err
}
