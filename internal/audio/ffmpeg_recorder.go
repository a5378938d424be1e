package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"serenade/internal/ports"
)

// FFMPEGRecorder captures microphone audio into a finished clip using
// ffmpeg. The clip is buffered in memory until the recording stops and
// is then handed to the transcription call.
type FFMPEGRecorder struct {
	command string
}

func NewFFMPEGRecorder(command string) *FFMPEGRecorder {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGRecorder{command: command}
}

func (r *FFMPEGRecorder) Start(ctx context.Context, cfg ports.RecordConfig) (ports.RecordingSession, error) {
	args := recordArgs(cfg)

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	session := &recordingSession{
		stderr:  &stderr,
		process: cmd.Process,
		done:    make(chan struct{}),
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()
	session.waitErr = waitErr

	go func() {
		defer close(session.done)
		session.copyErr = session.collect(stdout)
	}()

	select {
	case err := <-waitErr:
		session.drained = true
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before recording started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before recording started")
	case <-time.After(250 * time.Millisecond):
	}

	return session, nil
}

func recordArgs(cfg ports.RecordConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ClipFormat == "" {
		cfg.ClipFormat = "webm"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	if cfg.ClipFormat == "webm" {
		args = append(args, "-c:a", "libopus")
	}
	return append(args, "-f", cfg.ClipFormat, "-")
}

type recordingSession struct {
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error
	done    chan struct{}

	bufMu   sync.Mutex
	buf     bytes.Buffer
	copyErr error

	stopOnce sync.Once
	clip     []byte
	stopErr  error
	drained  bool
}

func (s *recordingSession) collect(stdout io.ReadCloser) error {
	chunk := make([]byte, 4096)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			s.bufMu.Lock()
			s.buf.Write(chunk[:n])
			s.bufMu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Stop finishes the recording and returns the captured clip.
func (s *recordingSession) Stop() ([]byte, error) {
	s.finish()
	return s.clip, s.stopErr
}

// Abort discards the recording.
func (s *recordingSession) Abort() error {
	s.finish()
	return s.stopErr
}

func (s *recordingSession) finish() {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		if !s.drained {
			select {
			case err, ok := <-s.waitErr:
				if ok {
					s.stopErr = normalizeExitErr(err)
				}
			case <-time.After(1200 * time.Millisecond):
				if s.process != nil {
					_ = s.process.Kill()
				}
				err, ok := <-s.waitErr
				if ok {
					s.stopErr = normalizeExitErr(err)
				}
			}
		}

		<-s.done
		if s.stopErr == nil {
			s.stopErr = s.copyErr
		}

		s.bufMu.Lock()
		s.clip = append([]byte(nil), s.buf.Bytes()...)
		s.bufMu.Unlock()

		if s.stopErr == nil && len(s.clip) == 0 {
			s.stopErr = errors.New("no audio captured")
		}
		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimmed(s.stderr.String()))
		}
	})
}

func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	// ffmpeg exits non-zero when interrupted mid-stream; that is the
	// normal stop path, not a failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
