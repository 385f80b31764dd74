package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/retry"
)

// Client is a lightweight OpenAI-compatible completion client for answer
// generation. It uses net/http directly, no third-party SDK needed.
type Client struct {
	httpClient *http.Client
	cfg        config.CompletionConfig
}

// NewClient creates a completion client. Pass nil to use a default http.Client.
func NewClient(httpClient *http.Client, cfg config.CompletionConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the minimal chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatErrorResponse captures an API error from the completion provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

const systemPrompt = `You are answering quiz questions. For every numbered question below, reply with one line in the form "Answer <number>: <your answer>". For choice questions pick the option text verbatim; for free-text questions write the answer directly. Do not add explanations.`

// Answer sends the question list to the completion service and returns the
// raw response text. combinedPrompt, when non-empty, is used as the rendered
// request body (cached renders are replayed verbatim); otherwise the prompt
// is built from questions. Transient failures are retried with the
// configured attempt budget.
func (c *Client) Answer(ctx context.Context, questions []models.Question, combinedPrompt string) (string, error) {
	prompt := combinedPrompt
	if prompt == "" {
		prompt = BuildPrompt(questions)
	}

	var text string
	err := retry.Do(ctx, c.cfg.Attempts, c.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		text, err = c.complete(ctx, prompt)
		return err
	})
	return text, err
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewQuizError(models.ErrCodeCompletionFailure, "completion request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewQuizError(models.ErrCodeCompletionFailure, "failed to read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyCompletionError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", models.NewQuizError(models.ErrCodeCompletionFailure, "failed to parse completion response", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", models.NewQuizError(models.ErrCodeCompletionFailure, "completion returned no choices", nil)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// BuildPrompt renders the question list as the completion service sees it:
// a numbered block per question, with options listed for choice questions.
func BuildPrompt(questions []models.Question) string {
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "Question %d: %s\n", i+1, q.Text)
		switch q.Kind {
		case models.KindSingleChoice:
			b.WriteString("Pick exactly one option:\n")
		case models.KindMultiChoice:
			b.WriteString("Pick every option that applies:\n")
		}
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "- %s\n", opt)
		}
		if i < len(questions)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// classifyCompletionError maps HTTP status codes to appropriate error codes.
func classifyCompletionError(statusCode int, body []byte) *models.QuizError {
	var errResp chatErrorResponse
	msg := "completion API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewQuizError(models.ErrCodeCompletionAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewQuizError(models.ErrCodeCompletionRateLimited, msg, nil)
	default:
		return models.NewQuizError(models.ErrCodeCompletionFailure, fmt.Sprintf("completion API returned %d: %s", statusCode, msg), nil)
	}
}
