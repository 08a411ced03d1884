// Package grading is the client for the LLM that grades completed defenses.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrDisabled is returned when grading is switched off in configuration.
var ErrDisabled = errors.New("grading disabled")

// Result is the collaborator's verdict on one defense.
type Result struct {
	Grade    string `json:"grade"`
	Comments string `json:"comments"`
}

// OllamaGrader asks a local Ollama model to grade a paper and its defense.
type OllamaGrader struct {
	ollamaURL string
	model     string
	enabled   bool
	logger    *zap.Logger
	client    *http.Client
}

// NewOllamaGrader creates a grader talking to the Ollama API at ollamaURL.
func NewOllamaGrader(ollamaURL, model string, enabled bool, logger *zap.Logger) *OllamaGrader {
	return &OllamaGrader{
		ollamaURL: ollamaURL,
		model:     model,
		enabled:   enabled,
		logger:    logger,
		client: &http.Client{
			Timeout: 180 * time.Second, // LLM generation can be slow
		},
	}
}

// IsEnabled returns whether grading is active.
func (g *OllamaGrader) IsEnabled() bool {
	return g.enabled
}

const gradingPrompt = `You are grading a student's oral defense of a written paper.
Read the paper and the transcript of the defense, then judge how well the student
understands and can defend their own work.

## Instructions
- Weigh the defense, not the prose of the paper
- Note specific moments in the transcript that support your judgement
- Grade on a letter scale from A to F, with + or - where it helps
- Answer with a single JSON object and nothing else:
  {"grade": "<letter>", "comments": "<three to six sentences>"}

## Paper
%s

## Defense transcript
%s`

// Maximum characters of each input passed to the model.
const (
	maxPaperChars      = 24000
	maxTranscriptChars = 32000
)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Grade returns the model's grade and comments for paper and transcript.
func (g *OllamaGrader) Grade(ctx context.Context, paper, transcript string) (Result, error) {
	if !g.enabled {
		return Result{}, ErrDisabled
	}

	prompt := fmt.Sprintf(gradingPrompt, truncateMiddle(paper, maxPaperChars), truncateMiddle(transcript, maxTranscriptChars))
	body, err := json.Marshal(ollamaRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(g.ollamaURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return Result{}, fmt.Errorf("decode ollama response: %w", err)
	}
	g.logger.Debug("grading response received",
		zap.String("model", g.model),
		zap.Duration("elapsed", time.Since(start)),
	)

	return parseResult(ollamaResp.Response)
}

// parseResult reads the JSON verdict, tolerating prose around the object.
func parseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("empty response from ollama")
	}
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		text = text[i : j+1]
	}

	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return Result{}, fmt.Errorf("decode grading verdict: %w", err)
	}
	res.Grade = strings.TrimSpace(res.Grade)
	res.Comments = strings.TrimSpace(res.Comments)
	if res.Grade == "" {
		return Result{}, fmt.Errorf("grading verdict has no grade")
	}
	return res, nil
}

// truncateMiddle keeps the head and tail of s when it exceeds limit bytes.
// Both cuts land on rune boundaries, so the result may be a few bytes short.
func truncateMiddle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	head := limit / 4
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tailStart := len(s) - (limit - limit/4)
	for tailStart < len(s) && !utf8.RuneStart(s[tailStart]) {
		tailStart++
	}
	return s[:head] + "\n\n[... middle truncated ...]\n\n" + s[tailStart:]
}
