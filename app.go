package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"serenade/internal/bootstrap"
	"serenade/internal/config"
	"serenade/internal/domain"
	"serenade/internal/transport"
	"serenade/internal/usecase"
)

const (
	eventConnection = "serenade:connection"
	eventPhase      = "serenade:phase"
	eventPrompt     = "serenade:prompt"
	eventAnswer     = "serenade:answer"
	eventSetup      = "serenade:setup"
	eventGeneration = "serenade:generation"
	eventNotice     = "serenade:notice"
)

// App is the Wails application root. It implements ports.EventSink and
// ports.ResultOpener, translating backend events into webview events.
type App struct {
	ctx context.Context

	manager    *transport.Manager
	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{ctx: ctx}, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.manager = services.Manager
	a.controller = services.Controller
	a.manager.Open(ctx)
}

func (a *App) shutdown(ctx context.Context) {
	if a.manager != nil {
		a.manager.Close()
	}
}

// StartCamera requests person detection from the service.
func (a *App) StartCamera() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.StartCamera(a.ctx)
}

// StartInterview begins the interview without camera detection.
func (a *App) StartInterview() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.StartInterview(a.ctx)
}

// BeginRecording starts capturing a spoken answer.
func (a *App) BeginRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.BeginRecording(a.ctx)
}

// StopRecording finishes the capture and transcribes the clip.
func (a *App) StopRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.controller.EndRecording(a.ctx)
	if errors.Is(err, usecase.ErrNoActiveRecording) {
		return nil
	}
	return err
}

// SetAnswer updates the pending answer from typed input.
func (a *App) SetAnswer(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetAnswer(text)
}

// SendAnswer submits the pending answer.
func (a *App) SendAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SendAnswer(a.ctx)
}

// ResetSession returns the session to its initial state. The
// connection is left intact.
func (a *App) ResetSession() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.Reset()
	return nil
}

// GetStatus returns the current runtime status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{Connection: domain.ConnDisconnected}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return domain.Status{
		Connection: a.manager.State(),
		Session:    a.controller.Snapshot(),
	}
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return map[string]string{
		"serviceURL":    a.cfg.Service.BaseURL,
		"classifyMode":  a.cfg.Interview.ClassifyMode,
		"questionCount": fmt.Sprintf("%d", a.cfg.Interview.QuestionCount),
		"audioInput":    a.cfg.Audio.InputDevice,
		"rulesFile":     a.cfg.Rules.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

// OpenResult shows the finished music video in the default browser.
func (a *App) OpenResult(url string) error {
	if a.ctx == nil {
		return errors.New("application is not initialized")
	}
	runtime.BrowserOpenURL(a.ctx, url)
	return nil
}

// ConnectionStateChanged emits connection lifecycle updates.
func (a *App) ConnectionStateChanged(state domain.ConnectionState) {
	a.emit(eventConnection, map[string]string{"state": string(state)})
	if state == domain.ConnOpen {
		a.Notify(domain.SeveritySuccess, "Connected to the service")
	}
}

// Reconnecting reports a scheduled reconnect attempt.
func (a *App) Reconnecting(attempt, maxAttempts int, delay time.Duration) {
	a.Notify(domain.SeverityWarning,
		fmt.Sprintf("Connection lost. Reconnecting (%d/%d)...", attempt, maxAttempts))
}

// ConnectionLost reports reconnect exhaustion; only an explicit reload
// recovers from here.
func (a *App) ConnectionLost() {
	a.Notify(domain.SeverityError, "Could not reach the service. Please restart the application.")
}

// PhaseChanged emits interview lifecycle updates.
func (a *App) PhaseChanged(phase domain.Phase) {
	a.emit(eventPhase, map[string]string{"phase": string(phase)})
}

// PromptChanged emits the active question or greeting.
func (a *App) PromptChanged(text string) {
	a.emit(eventPrompt, map[string]string{"text": text})
}

// AnswerChanged emits backend-originated pending answer updates.
func (a *App) AnswerChanged(text string) {
	a.emit(eventAnswer, map[string]string{"text": text})
}

// SetupInstruction emits an out-of-band setup prompt.
func (a *App) SetupInstruction(text string) {
	a.emit(eventSetup, map[string]string{"text": text})
}

// GenerationProgress emits song pipeline progress.
func (a *App) GenerationProgress(status domain.GenerationStatus) {
	a.emit(eventGeneration, map[string]any{"status": string(status)})
}

// GenerationComplete emits the finished song payload.
func (a *App) GenerationComplete(result domain.GenerationResult) {
	a.emit(eventGeneration, map[string]any{
		"status": string(domain.GenerationComplete),
		"result": result,
	})
}

// Notify emits an ephemeral notification; the UI expires it after the
// configured display window.
func (a *App) Notify(severity domain.Severity, message string) {
	a.emit(eventNotice, map[string]any{
		"id":       uuid.NewString(),
		"severity": string(severity),
		"message":  message,
		"ttlMs":    a.notificationTTL().Milliseconds(),
	})
}

// SessionError reports a backend failure as an error notification.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventNotice, map[string]any{
		"id":       uuid.NewString(),
		"severity": string(domain.SeverityError),
		"code":     string(code),
		"message":  errorMessage(code, detail),
		"detail":   detail,
		"ttlMs":    a.notificationTTL().Milliseconds(),
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func (a *App) notificationTTL() time.Duration {
	if a.cfg.Interview.NotificationTTL > 0 {
		return a.cfg.Interview.NotificationTTL
	}
	return 6 * time.Second
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeTransport:
		return "Not connected to the service"
	case domain.ErrorCodeProtocol:
		return "Received an unreadable message from the service"
	case domain.ErrorCodeRemoteCall:
		return "A service request failed"
	case domain.ErrorCodeDevice:
		return "Audio or playback device issue"
	case domain.ErrorCodeGeneration:
		return "Song generation failed"
	case domain.ErrorCodeRules:
		return "Answer rules processing failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct {
	ctx context.Context
}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(c.ctx, text)
}
