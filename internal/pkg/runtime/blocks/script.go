// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package blocks

import (
	gocontext "context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/runbookhq/runcore/internal/pkg/runtime/context"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
	"github.com/runbookhq/runcore/internal/pkg/runtime/execlog"
	"github.com/runbookhq/runcore/internal/pkg/runtime/sshpool"
	"github.com/runbookhq/runcore/pkg/block"
)

// ScriptHandler executes `script` blocks: spawn `{interpreter} -c {code}`
// locally, or ship the same command through the SSH pool when the
// resolved context carries an SSH target.
type ScriptHandler struct{}

func (ScriptHandler) Execute(ctx gocontext.Context, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink) (*ExecutionHandle, error) {
	var props block.ScriptProps
	if err := b.Decode(&props); err != nil {
		return nil, err
	}

	interpreter := props.Interpreter
	if interpreter == "" {
		interpreter = "bash"
	}

	env := renderMergedEnv(ec)
	code, err := renderTemplate(props.Code, env)
	if err != nil {
		return nil, err
	}

	if props.OutputVariable != "" && !identRe(props.OutputVariable) {
		return nil, fmt.Errorf("script block %s: invalid output variable name %q", b.ID, props.OutputVariable)
	}

	h := NewExecutionHandle(b.ID, ec.RunbookID, props.OutputVariable)
	deps.Handles.Put(h)

	sink.Send(Output{Lifecycle: startedLifecycle()})
	emitBlock(deps.Bus, events.KindBlockStarted, b.ID, ec.RunbookID, true, "")

	go runScript(ctx, h, b, ec, deps, sink, interpreter, code)

	return h, nil
}

func runScript(ctx gocontext.Context, h *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, interpreter, code string) {
	start := nowNs(deps)
	var captured strings.Builder

	stdout := newLineWriter(func(line string) {
		captured.WriteString(line)
		sink.Send(Output{Stdout: line})
	})
	stderr := newLineWriter(func(line string) {
		sink.Send(Output{Stderr: line})
	})
	defer stdout.Close()
	defer stderr.Close()

	var (
		exitCode int
		runErr   error
	)

	if ec.SSHHost != "" {
		exitCode, runErr = runScriptSSH(ctx, h, ec, deps, interpreter, code, stdout, stderr)
	} else {
		exitCode, runErr = runScriptLocal(h, ec, interpreter, code, stdout, stderr)
	}

	end := nowNs(deps)
	finishExecution(h, b, ec, deps, sink, start, end, captured.String(), exitCode, runErr)
}

func runScriptLocal(h *ExecutionHandle, ec *context.ExecutionContext, interpreter, code string, stdout, stderr *lineWriter) (int, error) {
	cmd := exec.Command(interpreter, "-c", code)
	cmd.Dir = ec.Cwd
	cmd.Env = mergeProcessEnv(ec.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("spawn %s: %w", interpreter, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCodeOf(cmd, err), nil
	case <-h.Cancel.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			time.AfterFunc(3*time.Second, func() { _ = cmd.Process.Kill() })
		}
		<-done
		return -1, errCancelled
	}
}

func runScriptSSH(ctx gocontext.Context, h *ExecutionHandle, ec *context.ExecutionContext, deps *Deps, interpreter, code string, stdout, stderr *lineWriter) (int, error) {
	user, host, err := context.SplitUserHost(ec.SSHHost)
	if err != nil {
		return -1, err
	}

	sess, warnings, err := deps.SSH.Connect(ctx, "", user, host, nil, sshpool.Hints{
		IdentityKeyPath: ec.SSHHints.IdentityKey,
		CertificatePath: ec.SSHHints.Certificate,
	}, h.Cancel.Done())
	if err != nil {
		return -1, err
	}
	emitCertWarnings(deps.Bus, host, warnings)

	remoteCmd := fmt.Sprintf("%s -c %s", interpreter, shellQuote(code))
	exitCode, err := deps.SSH.RemoteExec(ctx, sess, ec.Env, remoteCmd, stdout, stderr, h.Cancel.Done())
	if err != nil {
		select {
		case <-h.Cancel.Done():
			return -1, errCancelled
		default:
			return -1, err
		}
	}
	return exitCode, nil
}

var errCancelled = fmt.Errorf("cancelled")

func finishExecution(h *ExecutionHandle, b block.Block, ec *context.ExecutionContext, deps *Deps, sink Sink, startNs, endNs int64, output string, exitCode int, runErr error) {
	defer deps.Handles.Remove(h.ID)

	switch {
	case runErr == errCancelled:
		h.Finish(Status{Kind: StatusCancelled})
		sink.Send(Output{Lifecycle: cancelledLifecycle()})
		emitBlock(deps.Bus, events.KindBlockCancelled, b.ID, ec.RunbookID, false, "")

	case runErr != nil:
		h.Finish(Status{Kind: StatusFailed, Message: runErr.Error()})
		sink.Send(Output{Lifecycle: errorLifecycle(runErr.Error())})
		emitBlock(deps.Bus, events.KindBlockFailed, b.ID, ec.RunbookID, false, runErr.Error())

	default:
		success := exitCode == 0
		h.Finish(Status{Kind: StatusSuccess, Output: output})
		sink.Send(Output{Lifecycle: finishedLifecycle(exitCode, success)})
		emitBlock(deps.Bus, events.KindBlockFinished, b.ID, ec.RunbookID, success, "")

		if h.OutputVariable != "" && deps.Outputs != nil {
			deps.Outputs.Set(ec.RunbookID, h.OutputVariable, strings.TrimRight(output, "\n"))
		}
	}

	if deps.Log != nil {
		_ = deps.Log.LogExecution(gocontext.Background(), execlog.Entry{
			BlockID: b.ID,
			StartNs: startNs,
			EndNs:   endNs,
			Output:  output,
		})
	}
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func mergeProcessEnv(env map[string]string) []string {
	out := append([]string{}, os.Environ()...)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func emitCertWarnings(bus events.Bus, host string, warnings []sshpool.Warning) {
	if bus == nil {
		bus = events.NoOp{}
	}
	for _, w := range warnings {
		errMsg := ""
		if w.Err != nil {
			errMsg = w.Err.Error()
		}
		bus.Emit(events.Event{Kind: w.Kind, Data: events.SshCertificateData{Host: host, CertPath: w.Path, Error: errMsg}})
	}
}
