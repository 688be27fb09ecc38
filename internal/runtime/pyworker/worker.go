// Package pyworker hosts a model in a Python worker subprocess. Spawning the
// worker is the resource acquisition: the process loads the model into device
// memory on startup and holds it until it exits, so killing the process is a
// reliable release even when the model code misbehaves.
package pyworker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forged/internal/manager"
)

const (
	defaultPythonBin    = "python3"
	defaultStartTimeout = 5 * time.Minute
	defaultStopTimeout  = 10 * time.Second

	// Worker output lines can carry long diagnostics.
	maxLineBytes = 1 << 20
)

// Config describes one worker kind.
type Config struct {
	// PythonBin is the interpreter; defaults to "python3" from PATH.
	PythonBin string
	// Script is the worker entry point. Required.
	Script string
	// Args are extra arguments appended after the script.
	Args []string
	// StartTimeout bounds the wait for the ready event (model load + warmup).
	StartTimeout time.Duration
	// StopTimeout bounds the wait for a clean exit before the process is killed.
	StopTimeout time.Duration

	Logger zerolog.Logger
}

// Runtime spawns one worker process per acquisition.
type Runtime struct {
	cfg Config
}

// New returns a runtime with defaults applied.
func New(cfg Config) *Runtime {
	if cfg.PythonBin == "" {
		cfg.PythonBin = defaultPythonBin
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Runtime{cfg: cfg}
}

// Acquire starts the worker and blocks until it reports ready, the context is
// canceled, or the start timeout fires. The returned handle owns the process.
func (r *Runtime) Acquire(ctx context.Context) (manager.Handle, error) {
	if r.cfg.Script == "" {
		return nil, errors.New("pyworker: no script configured")
	}
	args := append([]string{r.cfg.Script}, r.cfg.Args...)
	cmd := exec.Command(r.cfg.PythonBin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	h := &workerHandle{
		cmd:         cmd,
		stdin:       stdin,
		events:      make(chan event, 16),
		exited:      make(chan struct{}),
		stopTimeout: r.cfg.StopTimeout,
		log:         r.cfg.Logger.With().Str("script", r.cfg.Script).Int("pid", cmd.Process.Pid).Logger(),
	}
	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go h.pumpEvents(stdout, stdoutDone)
	go h.pumpStderr(stderr, stderrDone)
	go func() {
		<-stdoutDone
		<-stderrDone
		h.exitErr = cmd.Wait()
		close(h.exited)
	}()

	h.log.Info().Msg("worker started, waiting for model load")
	if err := h.awaitReady(ctx, r.cfg.StartTimeout); err != nil {
		h.shutdown()
		return nil, err
	}
	h.log.Info().Msg("worker ready")
	return h, nil
}

// workerHandle is one live worker process holding a loaded model.
type workerHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan event
	exited chan struct{}
	// exitErr is valid once exited is closed.
	exitErr error

	stopTimeout time.Duration
	log         zerolog.Logger

	writeMu sync.Mutex
}

func (h *workerHandle) awaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return fmt.Errorf("worker exited before ready: %v", h.waitExit())
			}
			switch ev.Event {
			case evReady:
				return nil
			case evError:
				return fmt.Errorf("worker failed to load: %s", ev.Error)
			default:
				// startup progress chatter
			}
		case <-deadline.C:
			return fmt.Errorf("worker not ready after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Generate sends one request and consumes events until done or error.
func (h *workerHandle) Generate(ctx context.Context, req manager.GenRequest) (manager.Artifact, error) {
	if err := h.send(request{
		Cmd:        cmdGenerate,
		JobID:      req.JobID,
		Prompt:     req.Prompt,
		ImagePath:  req.ImagePath,
		OutputPath: req.OutputPath,
		Width:      req.Width,
		Height:     req.Height,
		Steps:      req.Steps,
		Guidance:   req.Guidance,
	}); err != nil {
		return manager.Artifact{}, fmt.Errorf("write to worker: %w", err)
	}
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return manager.Artifact{}, fmt.Errorf("worker exited during generation: %v", h.waitExit())
			}
			if ev.JobID != req.JobID {
				// leftover from a job whose caller gave up waiting
				h.log.Debug().Str("job_id", req.JobID).Str("event_job_id", ev.JobID).
					Str("event", ev.Event).Msg("discarding stale worker event")
				continue
			}
			switch ev.Event {
			case evProgress:
				h.log.Debug().Str("job_id", req.JobID).Str("progress", ev.Message).Msg("worker progress")
			case evDone:
				return manager.Artifact{Path: ev.Path, SizeBytes: ev.SizeBytes}, nil
			case evError:
				return manager.Artifact{}, errors.New(ev.Error)
			}
		case <-ctx.Done():
			return manager.Artifact{}, ctx.Err()
		}
	}
}

// Release asks the worker to exit and kills it if it lingers.
func (h *workerHandle) Release() error {
	// best effort: the process may already be gone
	_ = h.send(request{Cmd: cmdExit})
	return h.shutdown()
}

func (h *workerHandle) shutdown() error {
	// No consumer reads events past this point. Keep draining until the pump
	// closes the channel, or a chatty worker fills the buffer, blocks the
	// pump mid-send and the process is never reaped.
	go func() {
		for range h.events {
		}
	}()
	select {
	case <-h.exited:
		return nil
	case <-time.After(h.stopTimeout):
	}
	h.log.Warn().Msg("worker did not exit, killing")
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill worker: %w", err)
	}
	select {
	case <-h.exited:
	case <-time.After(h.stopTimeout):
		return errors.New("worker unkillable")
	}
	return nil
}

// waitExit returns the process exit error, bounded so a wedged process cannot
// hang error reporting.
func (h *workerHandle) waitExit() error {
	select {
	case <-h.exited:
		return h.exitErr
	case <-time.After(2 * time.Second):
		return errors.New("exit status unknown")
	}
}

func (h *workerHandle) send(req request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err = h.stdin.Write(append(b, '\n'))
	return err
}

// pumpEvents decodes stdout lines into events. Non-JSON lines are worker
// chatter and only logged.
func (h *workerHandle) pumpEvents(r io.Reader, done chan<- struct{}) {
	defer close(done)
	defer close(h.events)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Event == "" {
			h.log.Debug().Str("line", string(line)).Msg("worker stdout")
			continue
		}
		h.events <- ev
	}
}

func (h *workerHandle) pumpStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		h.log.Debug().Str("line", sc.Text()).Msg("worker stderr")
	}
}
