package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"golang.org/x/sync/semaphore"
)

// PiperEngine invokes an already-installed Piper binary as a subprocess and
// streams its raw PCM16 stdout back to the caller. Downloading or selecting
// a voice model is out of scope (spec.md §1: "Piper/Riva binary download and
// invocation details ... out of scope") — this type only owns the act of
// invoking a configured binary with a configured model path.
//
// Piper's CLI is a one-shot, single-threaded process per invocation: only one
// synthesis may be in flight against a given binary/model pair at a time.
// spec.md §5 requires the implementation to "serialize synthesis calls with
// a semaphore" for engines like this, so PiperEngine guards Synthesize with a
// weighted semaphore of size one.
type PiperEngine struct {
	binPath    string
	modelPath  string
	sampleRate int

	sem *semaphore.Weighted

	// runCommand is overridable in tests so they don't depend on a real
	// piper binary being installed.
	runCommand func(ctx context.Context, text string) (io.ReadCloser, *exec.Cmd, error)
}

// NewPiperEngine creates a PiperEngine that shells out to binPath with
// modelPath, reporting sampleRate as Piper's native output rate (Piper
// reports this in its model config; the caller is expected to supply the
// matching value).
func NewPiperEngine(binPath, modelPath string, sampleRate int) *PiperEngine {
	e := &PiperEngine{
		binPath:    binPath,
		modelPath:  modelPath,
		sampleRate: sampleRate,
		sem:        semaphore.NewWeighted(1),
	}
	e.runCommand = e.spawnPiper
	return e
}

func (e *PiperEngine) Name() string { return "piper" }

func (e *PiperEngine) NativeSampleRate() int { return e.sampleRate }

func (e *PiperEngine) spawnPiper(ctx context.Context, text string) (io.ReadCloser, *exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, e.binPath,
		"--model", e.modelPath,
		"--output-raw",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("piper: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("piper: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("piper: start: %w", err)
	}

	go func() {
		defer stdin.Close()
		io.WriteString(stdin, text)
	}()

	return stdout, cmd, nil
}

// Synthesize acquires the single-slot semaphore (blocking other sessions'
// synthesis calls against this Piper binary until it is free), spawns the
// subprocess, and streams its raw PCM16 stdout to onPCM in bounded frames.
func (e *PiperEngine) Synthesize(ctx context.Context, text string, onPCM OnPCM) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer e.sem.Release(1)

	stdout, cmd, err := e.runCommand(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	var waitOnce sync.Once
	wait := func() error {
		var waitErr error
		waitOnce.Do(func() {
			if cmd != nil {
				waitErr = cmd.Wait()
			}
		})
		return waitErr
	}

	const frameBytes = 1920 // 20ms @ 48kHz mono s16le upper bound; smaller rates read short reads fine
	reader := bufio.NewReaderSize(stdout, frameBytes)
	buf := make([]byte, frameBytes)

	for {
		select {
		case <-ctx.Done():
			stdout.Close()
			_ = wait()
			return ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if err := onPCM(frame); err != nil {
				stdout.Close()
				_ = wait()
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			stdout.Close()
			_ = wait()
			return fmt.Errorf("piper: read stdout: %w", readErr)
		}
	}

	if err := wait(); err != nil {
		return fmt.Errorf("piper: subprocess exited: %w", err)
	}
	return nil
}
