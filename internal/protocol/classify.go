// Package protocol classifies inbound frames. The channel is untyped at
// the wire level: it carries structured control events and plain
// conversational text with no discriminator other than whether the
// payload parses as JSON with a recognized shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"serenade/internal/domain"
)

// Mode selects how frames that fail structured parsing are treated.
type Mode string

const (
	// ModeLenient shows any unparsable frame as a prompt.
	ModeLenient Mode = "lenient"
	// ModeStrict discards unparsable frames that look like structured
	// data, so malformed protocol noise never reaches the user.
	ModeStrict Mode = "strict"
)

// SentinelPersonDetected is a reserved literal with protocol meaning:
// it signals detection, never a prompt.
const SentinelPersonDetected = "person_detected"

// Kind discriminates classified events.
type Kind int

const (
	KindPrompt Kind = iota
	KindPersonDetected
	KindStatusUpdate
	KindMusicComplete
	KindMusicError
	KindServerError
	KindSetupInstruction
	KindLipSyncReady
	KindDiscard
)

// Event is one classified inbound frame.
type Event struct {
	Kind    Kind
	Text    string                  // KindPrompt, KindSetupInstruction
	Status  domain.GenerationStatus // KindStatusUpdate
	Result  domain.GenerationResult // KindMusicComplete
	Message string                  // KindMusicError, KindServerError
}

// ErrMalformedEvent marks a frame with a recognized type but a payload
// missing required fields. Dispatchers report it and keep prior state.
var ErrMalformedEvent = errors.New("malformed control event")

type envelope struct {
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Text    string          `json:"text"`
	Data    json.RawMessage `json:"data"`
}

type completeData struct {
	VideoURL string `json:"video_url"`
	Lyrics   string `json:"lyrics"`
	Title    string `json:"title"`
}

// Classify parses one frame into an Event.
func Classify(frame string, mode Mode) (Event, error) {
	if frame == SentinelPersonDetected {
		return Event{Kind: KindPersonDetected}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		if mode == ModeStrict && looksStructured(frame) {
			return Event{Kind: KindDiscard}, nil
		}
		return Event{Kind: KindPrompt, Text: frame}, nil
	}

	switch env.Type {
	case "status_update":
		status := domain.GenerationStatus(env.Status)
		switch status {
		case domain.GenerationLyrics, domain.GenerationMusic, domain.GenerationComplete:
			return Event{Kind: KindStatusUpdate, Status: status}, nil
		}
		return Event{}, fmt.Errorf("%w: status_update with status %q", ErrMalformedEvent, env.Status)

	case "music_complete":
		var data completeData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return Event{}, fmt.Errorf("%w: music_complete data: %v", ErrMalformedEvent, err)
			}
		}
		return Event{Kind: KindMusicComplete, Result: domain.GenerationResult{
			Lyrics:   data.Lyrics,
			Title:    data.Title,
			VideoURL: data.VideoURL,
		}}, nil

	case "music_error":
		description := errorDescription(env)
		if description == "" {
			return Event{}, fmt.Errorf("%w: music_error without a description", ErrMalformedEvent)
		}
		return Event{Kind: KindMusicError, Message: description}, nil

	case "error":
		if strings.TrimSpace(env.Message) == "" {
			return Event{}, fmt.Errorf("%w: error without a message", ErrMalformedEvent)
		}
		return Event{Kind: KindServerError, Message: env.Message}, nil

	case "setup_instruction":
		text := firstNonEmpty(env.Text, env.Message)
		if text == "" {
			return Event{}, fmt.Errorf("%w: setup_instruction without text", ErrMalformedEvent)
		}
		return Event{Kind: KindSetupInstruction, Text: text}, nil

	case "lip_sync_ready":
		return Event{Kind: KindLipSyncReady}, nil

	case "question", "message":
		text := firstNonEmpty(env.Text, env.Message)
		if text == "" {
			return Event{}, fmt.Errorf("%w: %s without text", ErrMalformedEvent, env.Type)
		}
		return Event{Kind: KindPrompt, Text: text}, nil
	}

	// Valid JSON but no recognized shape: legitimate prompt text in
	// lenient mode, protocol noise in strict mode.
	if mode == ModeStrict {
		return Event{Kind: KindDiscard}, nil
	}
	return Event{Kind: KindPrompt, Text: frame}, nil
}

// errorDescription accepts the two shapes the service has used for
// music_error: a bare string under data, or a top-level message.
func errorDescription(env envelope) string {
	if len(env.Data) > 0 {
		var text string
		if err := json.Unmarshal(env.Data, &text); err == nil {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(env.Message)
}

func looksStructured(frame string) bool {
	trimmed := strings.TrimSpace(frame)
	return strings.HasPrefix(trimmed, "{") || strings.Contains(trimmed, `"type"`)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
