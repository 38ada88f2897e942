package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/pkg/types"
)

const defaultTimeout = 60 * time.Second

// Client calls an HTTP inference service. A circuit breaker sits in front of
// the service so a degraded backend fails fast instead of queueing up slow
// worker invocations.
type Client struct {
	url     string
	apiKey  string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient builds an inference client from config.
func NewClient(cfg types.InferenceConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		http:   &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "inference",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("inference circuit breaker state change",
					"from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

type wireRequest struct {
	Model   string   `json:"model,omitempty"`
	Prompt  string   `json:"prompt"`
	Context *Request `json:"context"`
}

// wireResponse holds the raw service output before shape validation. Fields
// are deferred to json.RawMessage so a wrong-typed field is detected here
// rather than silently zeroed by the decoder.
type wireResponse struct {
	Frameworks json.RawMessage `json:"frameworks"`
	Events     json.RawMessage `json:"events"`
	Snippets   json.RawMessage `json:"snippets"`
	Graph      json.RawMessage `json:"graph"`
}

// InferSchema sends the request through the breaker and validates the
// response shape. Any deviation from the contract is an error; callers
// substitute the deterministic fallback.
func (c *Client) InferSchema(ctx context.Context, req *Request) (*Result, error) {
	metrics.InferenceCalls.Add(1)

	out, err := c.breaker.Execute(func() (any, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) call(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(wireRequest{Model: c.model, Prompt: req.Prompt(), Context: req})
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, detail)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return validateShape(&wire)
}

// validateShape enforces the expected top-level contract on untrusted
// service output: events must be a present array of well-formed definitions,
// and at least one of snippets (array) or graph (object) must be present.
func validateShape(wire *wireResponse) (*Result, error) {
	if len(wire.Events) == 0 || string(wire.Events) == "null" {
		return nil, fmt.Errorf("inference response missing events")
	}

	var events []types.EventDefinition
	if err := json.Unmarshal(wire.Events, &events); err != nil {
		return nil, fmt.Errorf("inference response events not an array: %w", err)
	}
	for i, ev := range events {
		if ev.Name == "" {
			return nil, fmt.Errorf("inference response event %d has no name", i)
		}
	}

	schema := &types.EventSchema{Events: events}
	if len(wire.Frameworks) > 0 && string(wire.Frameworks) != "null" {
		if err := json.Unmarshal(wire.Frameworks, &schema.Frameworks); err != nil {
			return nil, fmt.Errorf("inference response frameworks not a string array: %w", err)
		}
	}

	hasSnippets := len(wire.Snippets) > 0 && string(wire.Snippets) != "null"
	hasGraph := len(wire.Graph) > 0 && string(wire.Graph) != "null"
	if !hasSnippets && !hasGraph {
		return nil, fmt.Errorf("inference response missing both snippets and graph")
	}

	if hasSnippets {
		if err := json.Unmarshal(wire.Snippets, &schema.Snippets); err != nil {
			return nil, fmt.Errorf("inference response snippets not an array: %w", err)
		}
	}

	result := &Result{Schema: schema}
	if hasGraph {
		var graph types.RouteGraph
		if err := json.Unmarshal(wire.Graph, &graph); err != nil {
			return nil, fmt.Errorf("inference response graph not an object: %w", err)
		}
		result.Graph = &graph
	}
	return result, nil
}
