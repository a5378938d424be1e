// Package api is the client for the generation service's HTTP surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"serenade/internal/domain"
)

var log = logging.Logger("api")

// Client calls the generation service. Every call is fallible and
// carries no automatic retry; failures are surfaced to the caller.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type messageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
}

type generateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Lyrics   string `json:"lyrics"`
		Title    string `json:"title"`
		VideoURL string `json:"video_url"`
	} `json:"data"`
}

// StartInterview begins the interview and returns the greeting.
func (c *Client) StartInterview(ctx context.Context) (string, error) {
	var parsed messageResponse
	if err := c.postJSON(ctx, "/start", nil, &parsed); err != nil {
		return "", fmt.Errorf("start interview: %w", err)
	}
	return parsed.Message, nil
}

// Question fetches the interview question at index.
func (c *Client) Question(ctx context.Context, index int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/questions/%d", c.base, index), nil)
	if err != nil {
		return "", fmt.Errorf("fetch question: %w", err)
	}

	var parsed messageResponse
	if err := c.do(req, &parsed); err != nil {
		return "", fmt.Errorf("fetch question %d: %w", index, err)
	}
	return parsed.Message, nil
}

// SubmitAnswer records one answer for the given question index.
func (c *Client) SubmitAnswer(ctx context.Context, answer string, index int) error {
	payload := map[string]any{
		"answer":         answer,
		"question_index": index,
	}
	if err := c.postJSON(ctx, "/submit-answer", payload, nil); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

// Speak asks the service to synthesize and play a message.
func (c *Client) Speak(ctx context.Context, message string) error {
	payload := map[string]string{"message": message}
	if err := c.postJSON(ctx, "/speak", payload, nil); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Transcribe uploads one recorded clip and returns its transcription.
func (c *Client) Transcribe(ctx context.Context, clip []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if _, err := part.Write(clip); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var parsed transcribeResponse
	if err := c.do(req, &parsed); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return parsed.Transcription, nil
}

// Generate turns the collected answers into a song.
func (c *Client) Generate(ctx context.Context, answers []string) (domain.GenerationResult, error) {
	payload := map[string][]string{"answers": answers}

	var parsed generateResponse
	if err := c.postJSON(ctx, "/generate", payload, &parsed); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}
	return domain.GenerationResult{
		Lyrics:   parsed.Data.Lyrics,
		Title:    parsed.Data.Title,
		VideoURL: parsed.Data.VideoURL,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warnw("request failed", "path", req.URL.Path, "status", resp.StatusCode)
		return fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
