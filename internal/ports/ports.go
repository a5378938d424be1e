package ports

import (
	"context"
	"time"

	"serenade/internal/domain"
)

// Socket is one established duplex text channel to the service.
type Socket interface {
	// ReadFrame blocks until the next text frame arrives.
	ReadFrame() (string, error)
	WriteText(frame string) error
	Close() error
}

// SocketDialer establishes sockets.
type SocketDialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// Conn is what the session layer sees of the connection manager.
type Conn interface {
	Send(frame string) error
}

// InterviewAPI is the generation service's request/response surface.
// Every call is fallible and carries no automatic retry.
type InterviewAPI interface {
	StartInterview(ctx context.Context) (greeting string, err error)
	Question(ctx context.Context, index int) (string, error)
	SubmitAnswer(ctx context.Context, answer string, index int) error
	Speak(ctx context.Context, message string) error
	Transcribe(ctx context.Context, clip []byte) (string, error)
	Generate(ctx context.Context, answers []string) (domain.GenerationResult, error)
}

// RecordConfig describes how an answer clip should be captured.
type RecordConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	ClipFormat  string
}

// RecordingSession is one in-progress answer recording.
type RecordingSession interface {
	// Stop finishes the recording and returns the captured clip.
	Stop() ([]byte, error)
	// Abort discards the recording.
	Abort() error
}

// Recorder starts answer clip recordings.
type Recorder interface {
	Start(ctx context.Context, cfg RecordConfig) (RecordingSession, error)
}

// RulesEngine applies deterministic fixups to transcribed answers.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// ResultOpener presents a finished music video to the user.
type ResultOpener interface {
	OpenResult(url string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ConnectionStateChanged(state domain.ConnectionState)
	Reconnecting(attempt, maxAttempts int, delay time.Duration)
	ConnectionLost()

	PhaseChanged(phase domain.Phase)
	PromptChanged(text string)
	AnswerChanged(text string)
	SetupInstruction(text string)
	GenerationProgress(status domain.GenerationStatus)
	GenerationComplete(result domain.GenerationResult)

	Notify(severity domain.Severity, message string)
	SessionError(code domain.ErrorCode, detail string)
}
