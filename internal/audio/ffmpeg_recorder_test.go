package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"serenade/internal/ports"
)

func TestRecordArgsDefaults(t *testing.T) {
	t.Parallel()

	got := strings.Join(recordArgs(ports.RecordConfig{}), " ")
	want := "-nostdin -hide_banner -loglevel warning -f pulse -i default -ac 1 -ar 48000 -c:a libopus -f webm -"
	if got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func TestRecordArgsCustomFormatSkipsOpus(t *testing.T) {
	t.Parallel()

	cfg := ports.RecordConfig{
		SampleRate:  16000,
		Channels:    2,
		InputFormat: "alsa",
		InputDevice: "hw:1",
		ClipFormat:  "wav",
	}
	got := strings.Join(recordArgs(cfg), " ")
	want := "-nostdin -hide_banner -loglevel warning -f alsa -i hw:1 -ac 2 -ar 16000 -f wav -"
	if got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func fakeRecorderScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake recorder: %v", err)
	}
	return path
}

func TestStartAndStopCollectsClip(t *testing.T) {
	t.Parallel()

	script := fakeRecorderScript(t, "printf 'clip-bytes'\nexec sleep 5\n")
	recorder := NewFFMPEGRecorder(script)

	session, err := recorder.Start(context.Background(), ports.RecordConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clip, err := session.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if string(clip) != "clip-bytes" {
		t.Fatalf("unexpected clip: %q", clip)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	script := fakeRecorderScript(t, "printf 'clip-bytes'\nexec sleep 5\n")
	recorder := NewFFMPEGRecorder(script)

	session, err := recorder.Start(context.Background(), ports.RecordConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first, err := session.Stop()
	if err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	second, err := session.Stop()
	if err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("stop not idempotent: %q vs %q", first, second)
	}
}

func TestImmediateExitReportsStartupFailure(t *testing.T) {
	t.Parallel()

	script := fakeRecorderScript(t, "echo 'no such device' >&2\nexit 1\n")
	recorder := NewFFMPEGRecorder(script)

	if _, err := recorder.Start(context.Background(), ports.RecordConfig{}); err == nil {
		t.Fatalf("expected startup failure")
	} else if !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}

func TestEmptyClipIsAnError(t *testing.T) {
	t.Parallel()

	script := fakeRecorderScript(t, "exec sleep 5\n")
	recorder := NewFFMPEGRecorder(script)

	session, err := recorder.Start(context.Background(), ports.RecordConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := session.Stop(); err == nil {
		t.Fatalf("expected error for empty clip")
	}
}

func TestMissingCommandFailsToStart(t *testing.T) {
	t.Parallel()

	recorder := NewFFMPEGRecorder(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := recorder.Start(context.Background(), ports.RecordConfig{}); err == nil {
		t.Fatalf("expected start error")
	}
}
