// Package intent implements the steering intent classifier: an HTTP client
// that sends free-form user text to a language-model service and maps the
// structured response to a steering intent.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
)

// Config holds the classifier endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Classifier is the HTTP intent classification client. It implements
// ports.ClassifierPort.
type Classifier struct {
	httpClient *http.Client
	config     Config
}

// ClassifierOption is a functional option for configuring the Classifier.
type ClassifierOption func(*Classifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClassifierOption {
	return func(c *Classifier) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.config.Timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// NewClassifier creates an intent classification client.
func NewClassifier(config Config, opts ...ClassifierOption) *Classifier {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	c := &Classifier{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// classifyRequest is the wire request. The current block context lets the
// service resolve references like "unblock that site again".
type classifyRequest struct {
	Model          string   `json:"model,omitempty"`
	Input          string   `json:"input"`
	BlockedApps    []string `json:"blockedApps,omitempty"`
	BlockedDomains []string `json:"blockedDomains,omitempty"`
}

// classifyResponse is the wire response.
type classifyResponse struct {
	Intent  string   `json:"intent"`
	Prompt  string   `json:"prompt,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify implements ports.ClassifierPort. The block context rides along
// on every request.
func (c *Classifier) Classify(ctx context.Context, input string, blockCtx ports.BlockContext) (ports.Intent, error) {
	body, err := json.Marshal(classifyRequest{
		Model:          c.config.Model,
		Input:          input,
		BlockedApps:    blockCtx.BlockedApps,
		BlockedDomains: blockCtx.BlockedDomains,
	})
	if err != nil {
		return ports.Intent{}, flowerrors.NewError(
			flowerrors.CodeClassification, "failed to marshal classify request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return ports.Intent{}, flowerrors.NewError(
			flowerrors.CodeClassification, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Intent{}, flowerrors.NewError(
			flowerrors.CodeClassification, "classification request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.Intent{}, c.handleErrorResponse(resp)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ports.Intent{}, flowerrors.NewError(
			flowerrors.CodeClassification, "failed to decode classify response", err)
	}

	return mapIntent(result), nil
}

func (c *Classifier) handleErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return flowerrors.NewError(flowerrors.CodeClassification,
			fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode), err)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return flowerrors.NewError(flowerrors.CodeClassification,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
	}

	code := flowerrors.CodeClassification
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		code = flowerrors.CodeConfiguration
	}
	return flowerrors.NewError(code, errResp.Error.Message, nil)
}

func mapIntent(resp classifyResponse) ports.Intent {
	intent := ports.Intent{
		Prompt:  resp.Prompt,
		Targets: resp.Targets,
	}
	switch strings.ToLower(resp.Intent) {
	case "steer_music", "steer":
		intent.Kind = ports.IntentSteerMusic
	case "block":
		intent.Kind = ports.IntentBlock
	case "unblock":
		intent.Kind = ports.IntentUnblock
	default:
		intent.Kind = ports.IntentUnknown
	}
	return intent
}
