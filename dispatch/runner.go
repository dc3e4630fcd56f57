package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// RunResult captures the raw output of a formatter process which exited
// successfully. Stderr is retained as tools may emit warnings while still
// producing formatted output.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner abstracts the execution of a formatter command so dispatch logic can
// be exercised without spawning real processes.
type Runner interface {
	Run(ctx context.Context, command string, options []string, input []byte) (*RunResult, error)
}

// Prober is implemented by runners which can check command availability ahead
// of execution.
type Prober interface {
	LookPath(command string) (string, error)
}

// SubprocessRunner executes formatter commands as child processes, writing
// the entire payload to stdin and reading stdout and stderr in full. One
// process is spawned per call and is always reaped before Run returns.
type SubprocessRunner struct {
	dir string
	env expand.Environ

	log *log.Logger
}

// NewSubprocessRunner creates a SubprocessRunner which spawns commands in
// workingDir using the current process environment.
func NewSubprocessRunner(workingDir string) *SubprocessRunner {
	return &SubprocessRunner{
		dir: workingDir,
		env: expand.ListEnviron(os.Environ()...),
		log: log.WithPrefix("dispatch | runner"),
	}
}

// LookPath resolves command against PATH, returning ErrCommandNotFound if no
// executable is available.
func (r *SubprocessRunner) LookPath(command string) (string, error) {
	executable, err := interp.LookPathDir(r.dir, r.env, command)
	if err != nil {
		return "", ErrCommandNotFound
	}

	return executable, nil
}

func (r *SubprocessRunner) Run(
	ctx context.Context,
	command string,
	options []string,
	input []byte,
) (*RunResult, error) {
	executable, err := r.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", command, err)
	}

	cmd := exec.CommandContext(ctx, executable, options...) //nolint:gosec
	// replace the default Cancel handler installed by CommandContext because it sends SIGKILL (-9).
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	// reap the process forcibly if it ignores the interrupt
	cmd.WaitDelay = 2 * time.Second
	cmd.Dir = r.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", command, err)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// log out the command being executed
	r.log.Debugf("executing: %s", cmd.String())

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", command, err)
	}

	// write the payload concurrently so a child which stops reading early
	// cannot deadlock the pipe
	writeErr := make(chan error, 1)

	go func() {
		_, werr := stdin.Write(input)
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}

		writeErr <- werr
	}()

	waitErr := cmd.Wait()

	if waitErr != nil {
		// a cancelled or expired context interrupts the child; report that
		// in preference to the exit status it was induced to return
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s was interrupted: %w", command, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &RejectionError{
				Command:  command,
				Stderr:   lossyString(stderr.Bytes()),
				ExitCode: exitErr.ExitCode(),
			}
		}

		return nil, fmt.Errorf("failed waiting for %s: %w", command, waitErr)
	}

	// ErrClosed means Wait reaped the process before the write completed and
	// the exit status above is authoritative. Anything else, e.g. EPIPE from
	// a child which stopped reading, is a genuine fault.
	if werr := <-writeErr; werr != nil && !errors.Is(werr, os.ErrClosed) {
		return nil, fmt.Errorf("failed to write to %s stdin: %w", command, werr)
	}

	return &RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}
