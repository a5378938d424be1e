package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"serenade/internal/domain"
	"serenade/internal/ports"
	"serenade/internal/protocol"
)

var (
	ErrRecordingInProgress = errors.New("cannot submit while recording")
	ErrNoActivePrompt      = errors.New("no active question to answer")
	ErrEmptyAnswer         = errors.New("answer is empty")
	ErrSubmitInFlight      = errors.New("an answer submission is already in flight")
	ErrAlreadyRecording    = errors.New("a recording is already in progress")
	ErrNoActiveRecording   = errors.New("no active recording")
)

// Outbound control tokens understood by the service.
const (
	CommandStartCamera    = "start_camera"
	CommandStartInterview = "start_interview"
)

// Config controls interview and recording behavior.
type Config struct {
	QuestionCount int
	CameraTimeout time.Duration
	ClassifyMode  protocol.Mode
	Record        ports.RecordConfig
}

// SessionController owns the interview/generation state machine. All
// mutations go through its public operations; the transport layer never
// touches session state directly.
type SessionController struct {
	conn      ports.Conn
	api       ports.InterviewAPI
	recorder  ports.Recorder
	rules     ports.RulesEngine
	clipboard ports.Clipboard
	opener    ports.ResultOpener
	events    ports.EventSink
	cfg       Config

	mu               sync.Mutex
	phase            domain.Phase
	personDetected   bool
	interviewStarted bool
	prompt           string
	pendingAnswer    string
	recording        ports.RecordingSession
	questionIndex    int
	answers          []string
	submitInFlight   bool
	genStatus        domain.GenerationStatus
	result           *domain.GenerationResult
	lastError        string
	completeHandled  bool
	watchdog         uint64
}

func NewSessionController(
	conn ports.Conn,
	api ports.InterviewAPI,
	recorder ports.Recorder,
	rules ports.RulesEngine,
	clipboard ports.Clipboard,
	opener ports.ResultOpener,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 5
	}
	if cfg.ClassifyMode == "" {
		cfg.ClassifyMode = protocol.ModeLenient
	}
	return &SessionController{
		conn:      conn,
		api:       api,
		recorder:  recorder,
		rules:     rules,
		clipboard: clipboard,
		opener:    opener,
		events:    events,
		cfg:       cfg,
		phase:     domain.PhaseIdle,
		genStatus: domain.GenerationNone,
	}
}

// StartCamera requests person detection from the service. The request
// is fire-and-forget; a watchdog returns the session to idle if no
// detection arrives in time.
func (c *SessionController) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != domain.PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.conn.Send(CommandStartCamera); err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, "cannot start camera: not connected to the service")
		return err
	}

	c.mu.Lock()
	c.phase = domain.PhaseDetecting
	c.watchdog++
	epoch := c.watchdog
	c.mu.Unlock()

	c.events.PhaseChanged(domain.PhaseDetecting)
	c.events.Notify(domain.SeverityInfo, "Starting camera...")

	if c.cfg.CameraTimeout > 0 {
		time.AfterFunc(c.cfg.CameraTimeout, func() { c.cameraTimedOut(epoch) })
	}
	return nil
}

// cameraTimedOut fires only if its epoch is still current and detection
// never arrived; a stale watchdog is a guaranteed no-op.
func (c *SessionController) cameraTimedOut(epoch uint64) {
	c.mu.Lock()
	if epoch != c.watchdog || c.phase != domain.PhaseDetecting {
		c.mu.Unlock()
		return
	}
	c.phase = domain.PhaseIdle
	c.mu.Unlock()

	c.events.PhaseChanged(domain.PhaseIdle)
	c.events.Notify(domain.SeverityWarning, "No person detected; camera request timed out")
}

// StartInterview begins the interview without camera detection.
func (c *SessionController) StartInterview(ctx context.Context) error {
	if err := c.conn.Send(CommandStartInterview); err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, "cannot start interview: not connected to the service")
		return err
	}

	c.mu.Lock()
	c.personDetected = true
	c.watchdog++
	start := !c.interviewStarted
	c.interviewStarted = true
	if c.phase == domain.PhaseIdle || c.phase == domain.PhaseDetecting {
		c.phase = domain.PhasePrompting
	}
	c.mu.Unlock()

	c.events.PhaseChanged(domain.PhasePrompting)
	if start {
		go c.beginInterview(ctx)
	}
	return nil
}

// BeginRecording starts capturing a spoken answer.
func (c *SessionController) BeginRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.prompt == "" {
		c.mu.Unlock()
		return ErrNoActivePrompt
	}
	if c.recording != nil {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.mu.Unlock()

	recording, err := c.recorder.Start(ctx, c.cfg.Record)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeDevice, fmt.Sprintf("could not start recording: %v", err))
		return err
	}

	c.mu.Lock()
	if c.recording != nil {
		c.mu.Unlock()
		_ = recording.Abort()
		return ErrAlreadyRecording
	}
	c.recording = recording
	c.phase = domain.PhaseRecording
	c.submitInFlight = false
	c.mu.Unlock()

	c.events.PhaseChanged(domain.PhaseRecording)
	c.events.Notify(domain.SeverityInfo, "Recording...")
	return nil
}

// EndRecording stops the capture, transcribes the clip and places the
// text into the pending answer. It never submits on its own.
func (c *SessionController) EndRecording(ctx context.Context) error {
	c.mu.Lock()
	recording := c.recording
	c.recording = nil
	c.mu.Unlock()
	if recording == nil {
		return ErrNoActiveRecording
	}

	clip, err := recording.Stop()

	c.mu.Lock()
	if c.phase == domain.PhaseRecording {
		c.phase = domain.PhasePrompting
	}
	c.mu.Unlock()
	c.events.PhaseChanged(domain.PhasePrompting)

	if err != nil {
		c.events.SessionError(domain.ErrorCodeDevice, fmt.Sprintf("recording failed: %v", err))
		return err
	}

	text, err := c.api.Transcribe(ctx, clip)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRemoteCall, fmt.Sprintf("transcription failed: %v", err))
		return err
	}

	normalized, err := c.rules.Apply(text)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRules, err.Error())
		normalized = text
	}

	c.mu.Lock()
	c.pendingAnswer = normalized
	c.mu.Unlock()

	c.events.AnswerChanged(normalized)
	c.events.Notify(domain.SeveritySuccess, "Answer transcribed")
	return nil
}

// SetAnswer updates the pending answer from typed input.
func (c *SessionController) SetAnswer(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording != nil {
		return ErrRecordingInProgress
	}
	c.pendingAnswer = text
	return nil
}

// SendAnswer submits the pending answer. The input is cleared
// optimistically and restored, without advancing the question index, if
// either the outbound frame or the remote call fails.
func (c *SessionController) SendAnswer(ctx context.Context) error {
	c.mu.Lock()
	if c.recording != nil {
		c.mu.Unlock()
		return ErrRecordingInProgress
	}
	if c.prompt == "" {
		c.mu.Unlock()
		return ErrNoActivePrompt
	}
	answer := strings.TrimSpace(c.pendingAnswer)
	if answer == "" {
		c.mu.Unlock()
		return ErrEmptyAnswer
	}
	if c.submitInFlight {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.submitInFlight = true
	c.pendingAnswer = ""
	c.phase = domain.PhaseSubmitting
	index := c.questionIndex
	c.mu.Unlock()

	c.events.AnswerChanged("")
	c.events.PhaseChanged(domain.PhaseSubmitting)

	if err := c.conn.Send(answer); err != nil {
		return c.rollbackSubmit(err, answer, domain.ErrorCodeTransport, "cannot send answer: not connected to the service")
	}
	if err := c.api.SubmitAnswer(ctx, answer, index); err != nil {
		return c.rollbackSubmit(err, answer, domain.ErrorCodeRemoteCall, fmt.Sprintf("answer submission failed: %v", err))
	}

	c.mu.Lock()
	c.answers = append(c.answers, answer)
	c.submitInFlight = false
	answers := append([]string(nil), c.answers...)
	last := index >= c.cfg.QuestionCount-1
	c.mu.Unlock()

	c.events.Notify(domain.SeveritySuccess, "Answer sent")

	if last {
		return c.startGeneration(ctx, answers)
	}
	return c.advanceToQuestion(ctx, index+1)
}

func (c *SessionController) rollbackSubmit(err error, answer string, code domain.ErrorCode, detail string) error {
	c.mu.Lock()
	c.pendingAnswer = answer
	c.submitInFlight = false
	c.phase = domain.PhasePrompting
	c.mu.Unlock()

	c.events.AnswerChanged(answer)
	c.events.PhaseChanged(domain.PhasePrompting)
	c.events.SessionError(code, detail)
	return err
}

// Reset returns the session to its initial values. The connection is
// left intact; reset is session-level, not connection-level.
func (c *SessionController) Reset() {
	c.mu.Lock()
	recording := c.recording
	c.recording = nil
	c.watchdog++
	c.phase = domain.PhaseIdle
	c.personDetected = false
	c.interviewStarted = false
	c.prompt = ""
	c.pendingAnswer = ""
	c.questionIndex = 0
	c.answers = nil
	c.submitInFlight = false
	c.genStatus = domain.GenerationNone
	c.result = nil
	c.lastError = ""
	c.completeHandled = false
	c.mu.Unlock()

	if recording != nil {
		_ = recording.Abort()
	}

	c.events.PromptChanged("")
	c.events.AnswerChanged("")
	c.events.GenerationProgress(domain.GenerationNone)
	c.events.PhaseChanged(domain.PhaseIdle)
	c.events.Notify(domain.SeverityInfo, "Session reset")
}

// Snapshot returns a copy of the session for the UI.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := domain.Snapshot{
		Phase:            c.phase,
		PersonDetected:   c.personDetected,
		CurrentPrompt:    c.prompt,
		PendingAnswer:    c.pendingAnswer,
		IsRecording:      c.recording != nil,
		QuestionIndex:    c.questionIndex,
		Answers:          append([]string(nil), c.answers...),
		GenerationStatus: c.genStatus,
		LastError:        c.lastError,
	}
	if c.result != nil {
		result := *c.result
		snapshot.Result = &result
	}
	return snapshot
}
