package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Provider labels used in metrics and errors.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// ClientConfig holds connection settings shared by every OpenAI-backed adapter.
type ClientConfig struct {
	Provider   string // openai or azure
	APIKey     string
	BaseURL    string // Azure resource endpoint when Provider is azure
	APIVersion string // Azure only
	// Deployments maps model names to Azure deployment names.
	Deployments map[string]string
	Timeout     time.Duration
}

// NewClient builds a go-openai client for the public API or an Azure resource.
func NewClient(cfg ClientConfig) *openai.Client {
	var clientCfg openai.ClientConfig
	if cfg.Provider == ProviderAzure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployments := cfg.Deployments
		clientCfg.AzureModelMapperFunc = func(model string) string {
			if d, ok := deployments[model]; ok && d != "" {
				return d
			}
			return model
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(clientCfg)
}

// providerLabel normalizes an empty provider name.
func providerLabel(p string) string {
	if p == "" {
		return ProviderOpenAI
	}
	return p
}

// parseAPIError converts a go-openai error into a domain error.
// Cancellation passes through unchanged so callers never retry it.
func parseAPIError(provider, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", provider, op, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = strings.TrimSpace(string(reqErr.Body))
		}
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &domain.UpstreamError{
			Provider:   provider,
			Op:         op,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        errors.New(msg),
		}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{
			Provider:   provider,
			Op:         op,
			StatusCode: apiErr.HTTPStatusCode,
			Err:        errors.New(apiErr.Message),
		}
	}

	return &domain.UpstreamError{Provider: provider, Op: op, Err: err}
}

// extractDetail reads the message of a JSON error body.
// Both {"error":{"message":...}} and {"detail":...} shapes are recognized.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return parsed.Detail
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var up *domain.UpstreamError
	if errors.As(err, &up) {
		return up.StatusCode
	}
	return 0
}
