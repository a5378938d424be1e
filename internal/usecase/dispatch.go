package usecase

import (
	"context"

	"serenade/internal/domain"
	"serenade/internal/protocol"
)

// HandleFrame classifies one inbound frame and applies its effect. A
// malformed control event is reported and swallowed; the prior session
// state is retained unchanged.
func (c *SessionController) HandleFrame(frame string) {
	event, err := protocol.Classify(frame, c.cfg.ClassifyMode)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeProtocol, err.Error())
		return
	}

	switch event.Kind {
	case protocol.KindDiscard, protocol.KindLipSyncReady:
		// Informational or noise; nothing to apply.
	case protocol.KindPersonDetected:
		c.handleDetection()
	case protocol.KindPrompt:
		c.handlePrompt(event.Text)
	case protocol.KindSetupInstruction:
		c.events.SetupInstruction(event.Text)
	case protocol.KindStatusUpdate:
		c.handleStatus(event.Status)
	case protocol.KindMusicComplete:
		c.handleComplete(event.Result)
	case protocol.KindMusicError:
		c.handleMusicError(event.Message)
	case protocol.KindServerError:
		c.events.Notify(domain.SeverityError, event.Message)
	}
}

func (c *SessionController) handleDetection() {
	c.mu.Lock()
	c.personDetected = true
	c.watchdog++
	start := !c.interviewStarted
	c.interviewStarted = true
	if c.phase == domain.PhaseIdle || c.phase == domain.PhaseDetecting {
		c.phase = domain.PhasePrompting
	}
	phase := c.phase
	c.mu.Unlock()

	c.events.PhaseChanged(phase)
	c.events.Notify(domain.SeveritySuccess, "Person detected")

	if start {
		go c.beginInterview(context.Background())
	}
}

func (c *SessionController) handlePrompt(text string) {
	c.mu.Lock()
	c.prompt = text
	c.personDetected = true
	c.interviewStarted = true
	c.watchdog++
	switch c.phase {
	case domain.PhaseIdle, domain.PhaseDetecting, domain.PhaseSubmitting:
		c.phase = domain.PhasePrompting
	}
	phase := c.phase
	c.mu.Unlock()

	c.events.PromptChanged(text)
	c.events.PhaseChanged(phase)
}

func (c *SessionController) handleStatus(status domain.GenerationStatus) {
	c.mu.Lock()
	if status == domain.GenerationComplete && c.result == nil {
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeProtocol, "complete status update before any result was delivered")
		return
	}
	c.genStatus = status
	if status == domain.GenerationComplete {
		c.phase = domain.PhaseComplete
	} else {
		c.phase = domain.PhaseGenerating
	}
	phase := c.phase
	c.mu.Unlock()

	c.events.GenerationProgress(status)
	c.events.PhaseChanged(phase)
	c.events.Notify(domain.SeverityInfo, statusMessage(status))
}

func (c *SessionController) handleComplete(result domain.GenerationResult) {
	c.mu.Lock()
	first := !c.completeHandled
	c.completeHandled = true
	c.genStatus = domain.GenerationComplete
	copied := result
	c.result = &copied
	c.phase = domain.PhaseComplete
	c.lastError = ""
	openNow := first && result.VideoURL != ""
	copyLyrics := first && result.Lyrics != ""
	c.mu.Unlock()

	c.events.GenerationProgress(domain.GenerationComplete)
	c.events.GenerationComplete(result)
	c.events.PhaseChanged(domain.PhaseComplete)
	if first {
		c.events.Notify(domain.SeveritySuccess, "Your song is ready")
	}

	if openNow {
		if err := c.opener.OpenResult(result.VideoURL); err != nil {
			c.events.SessionError(domain.ErrorCodeDevice, "could not open the music video")
		}
	}
	if copyLyrics {
		if err := c.clipboard.SetText(context.Background(), result.Lyrics); err != nil {
			c.events.SessionError(domain.ErrorCodeClipboard, "lyrics ready but clipboard write failed")
		}
	}
}

func (c *SessionController) handleMusicError(description string) {
	c.mu.Lock()
	c.genStatus = domain.GenerationNone
	c.lastError = description
	c.phase = domain.PhaseError
	c.mu.Unlock()

	c.events.GenerationProgress(domain.GenerationNone)
	c.events.PhaseChanged(domain.PhaseError)
	c.events.SessionError(domain.ErrorCodeGeneration, description)
}

func statusMessage(status domain.GenerationStatus) string {
	switch status {
	case domain.GenerationLyrics:
		return "Writing lyrics..."
	case domain.GenerationMusic:
		return "Composing music..."
	case domain.GenerationComplete:
		return "Generation complete"
	default:
		return ""
	}
}
