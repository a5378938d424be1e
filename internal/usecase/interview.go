package usecase

import (
	"context"
	"fmt"

	"serenade/internal/domain"
)

// beginInterview fetches the greeting and the first question. It runs
// once per session, after detection or an explicit start.
func (c *SessionController) beginInterview(ctx context.Context) {
	greeting, err := c.api.StartInterview(ctx)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRemoteCall, fmt.Sprintf("could not start interview: %v", err))
		return
	}

	c.mu.Lock()
	c.prompt = greeting
	c.mu.Unlock()
	c.events.PromptChanged(greeting)

	// Voice is synthesized server-side; a failed speak call is not
	// worth interrupting the interview for.
	_ = c.api.Speak(ctx, greeting)

	_ = c.advanceToQuestion(ctx, 0)
}

// advanceToQuestion fetches question index and makes it the active
// prompt.
func (c *SessionController) advanceToQuestion(ctx context.Context, index int) error {
	question, err := c.api.Question(ctx, index)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRemoteCall, fmt.Sprintf("could not fetch question %d: %v", index+1, err))
		return err
	}

	c.mu.Lock()
	c.questionIndex = index
	c.prompt = question
	c.submitInFlight = false
	c.phase = domain.PhasePrompting
	c.mu.Unlock()

	c.events.PromptChanged(question)
	c.events.PhaseChanged(domain.PhasePrompting)

	go func() { _ = c.api.Speak(ctx, question) }()
	return nil
}

// startGeneration kicks off song generation from the collected answers.
// Lyrics come back on this call; music and video progress arrive as
// dispatched status events on the channel.
func (c *SessionController) startGeneration(ctx context.Context, answers []string) error {
	c.mu.Lock()
	c.phase = domain.PhaseGenerating
	c.genStatus = domain.GenerationLyrics
	c.prompt = ""
	c.completeHandled = false
	c.mu.Unlock()

	c.events.PromptChanged("")
	c.events.PhaseChanged(domain.PhaseGenerating)
	c.events.GenerationProgress(domain.GenerationLyrics)

	result, err := c.api.Generate(ctx, answers)
	if err != nil {
		c.mu.Lock()
		c.genStatus = domain.GenerationNone
		c.lastError = err.Error()
		c.phase = domain.PhaseError
		c.mu.Unlock()

		c.events.GenerationProgress(domain.GenerationNone)
		c.events.PhaseChanged(domain.PhaseError)
		c.events.SessionError(domain.ErrorCodeGeneration, fmt.Sprintf("generation failed: %v", err))
		return err
	}

	c.mu.Lock()
	if c.result == nil {
		copied := result
		c.result = &copied
	} else {
		if c.result.Lyrics == "" {
			c.result.Lyrics = result.Lyrics
		}
		if c.result.Title == "" {
			c.result.Title = result.Title
		}
	}
	c.mu.Unlock()

	c.events.Notify(domain.SeveritySuccess, "Lyrics generated; composing music...")
	return nil
}
