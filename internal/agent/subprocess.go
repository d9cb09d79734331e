package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"magictunnel/pkg/logging"
)

const subprocessSubsystem = "SubprocessAgent"

// execCommandContext is a package variable so tests can substitute a fake
// command, the same mocking seam the teacher uses in
// internal/containerizer/docker.go.
var execCommandContext = exec.CommandContext

const defaultOutputCap = 1 << 20 // 1 MiB per stream

// SubprocessConfig is the rendered routing config for the subprocess kind.
type SubprocessConfig struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	OutputCap  int
}

// subprocessFromPlan extracts a SubprocessConfig from a Plan's rendered
// config map.
func subprocessFromPlan(config map[string]any) (SubprocessConfig, error) {
	cfg := SubprocessConfig{OutputCap: defaultOutputCap}

	command, _ := config["command"].(string)
	if command == "" {
		return cfg, fmt.Errorf("subprocess routing config missing %q", "command")
	}
	cfg.Command = command

	if rawArgs, ok := config["args"].([]any); ok {
		for _, a := range rawArgs {
			cfg.Args = append(cfg.Args, fmt.Sprintf("%v", a))
		}
	}
	if rawEnv, ok := config["env"].(map[string]any); ok {
		cfg.Env = make(map[string]string, len(rawEnv))
		for k, v := range rawEnv {
			cfg.Env[k] = fmt.Sprintf("%v", v)
		}
	}
	if dir, ok := config["working_dir"].(string); ok {
		cfg.WorkingDir = dir
	}
	if cap, ok := config["output_cap_bytes"].(int); ok && cap > 0 {
		cfg.OutputCap = cap
	}
	return cfg, nil
}

// SubprocessExecutor runs a rendered command line as a child process.
type SubprocessExecutor struct{}

// NewSubprocessExecutor creates a subprocess executor.
func NewSubprocessExecutor() *SubprocessExecutor {
	return &SubprocessExecutor{}
}

// Execute spawns the command, drains stdout/stderr concurrently into
// byte-capped buffers to avoid pipe deadlock, and maps a non-zero exit
// code to tool_error and a spawn failure to transport_error.
func (e *SubprocessExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := subprocessFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	cmd := execCommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkingDir
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return TransportErrorResult(TransportInternal, err.Error()), nil
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return TransportErrorResult(TransportInternal, err.Error()), nil
	}

	if err := cmd.Start(); err != nil {
		return TransportErrorResult(TransportInternal, fmt.Sprintf("spawn failed: %v", err)), nil
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drainCapped(&wg, stdoutPipe, &stdout, cfg.OutputCap)
	go drainCapped(&wg, stderrPipe, &stderr, cfg.OutputCap)
	wg.Wait()

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return TransportErrorResult(TransportDeadline, "subprocess deadline exceeded"), nil
		}
		return TransportErrorResult(TransportCancelled, "subprocess cancelled"), nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if ok := bytesAsExitError(waitErr, &exitErr); ok {
			logging.Debug(subprocessSubsystem, "%s exited %d", cfg.Command, exitErr.ExitCode())
			return ToolErrorResult(stdout.String(), stderr.String()), nil
		}
		return TransportErrorResult(TransportInternal, waitErr.Error()), nil
	}

	return SuccessResult(stdout.String()), nil
}

func bytesAsExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// drainCapped copies from r into dst, stopping once dst has cap bytes so
// a runaway child process can't exhaust memory. It keeps reading (and
// discarding) until r is closed so the child never blocks on a full pipe.
func drainCapped(wg *sync.WaitGroup, r io.Reader, dst *bytes.Buffer, cap int) {
	defer wg.Done()
	limited := io.LimitReader(r, int64(cap))
	io.Copy(dst, limited) //nolint:errcheck
	io.Copy(io.Discard, r) //nolint:errcheck
}
