package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama2"

	healthCheckTimeout = 5 * time.Second
	listModelsTimeout  = 10 * time.Second

	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 1024 * 1024
)

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Ollama talks to a local Ollama server over its REST API.
type Ollama struct {
	client         *resty.Client
	model          string
	embeddingModel string
	log            zerolog.Logger
}

func NewOllama(baseURL, model, embeddingModel string, log zerolog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if embeddingModel == "" {
		embeddingModel = model
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")

	return &Ollama{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		log:            log.With().Str("component", "ollama").Logger(),
	}
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	var out ollamaGenerateResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(ollamaGenerateRequest{
			Model:   o.model,
			Prompt:  prompt,
			Options: ollamaOptions{Temperature: 0.7, TopP: 0.9},
		}).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("ollama generate request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama generate returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Stream reads the newline-delimited JSON stream of /api/generate. The stream
// ends on a done record or when the server closes the body.
func (o *Ollama) Stream(ctx context.Context, prompt string, emit func(string) error) error {
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(ollamaGenerateRequest{
			Model:   o.model,
			Prompt:  prompt,
			Stream:  true,
			Options: ollamaOptions{Temperature: 0.7, TopP: 0.9, NumPredict: 1000},
		}).
		SetDoNotParseResponse(true).
		Post("/api/generate")
	if err != nil {
		return fmt.Errorf("ollama stream request failed: %w", err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return errors.New("ollama stream request failed: empty response body")
	}
	body := resp.RawBody()
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			o.log.Debug().Err(closeErr).Msg("unable to close stream body")
		}
	}()

	if resp.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(body, 512))
		return fmt.Errorf("ollama stream returned status %d: %s", resp.StatusCode(), strings.TrimSpace(string(detail)))
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record ollamaGenerateResponse
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			o.log.Debug().Err(err).Str("line", line).Msg("skipping malformed stream record")
			continue
		}
		if record.Error != "" {
			return fmt.Errorf("ollama stream: %s", record.Error)
		}
		if record.Response != "" {
			if err := emit(record.Response); err != nil {
				return err
			}
		}
		if record.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama stream read failed: %w", err)
	}
	return nil
}

func (o *Ollama) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp, err := o.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		o.log.Warn().Err(err).Msg("ollama health check failed")
		return false
	}
	return resp.StatusCode() == 200
}

func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	var out ollamaTagsResponse
	resp, err := o.client.R().SetContext(ctx).SetResult(&out).Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama list models failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama list models returned status %d", resp.StatusCode())
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (o *Ollama) Encode(ctx context.Context, text string) ([]float32, error) {
	var out ollamaEmbeddingResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(ollamaEmbeddingRequest{Model: o.embeddingModel, Prompt: text}).
		SetResult(&out).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama embedding returned status %d", resp.StatusCode())
	}
	if len(out.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return out.Embedding, nil
}
