// Package anthropic adapts the Anthropic Messages API as a task worker.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures the Anthropic worker factory (model id, system prompt,
// temperature, max tokens, API key). Extend via functional options to
// preserve stability.
type Options struct {
	Model       anthropic.Model
	System      string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Factory builds one Claude-backed worker per attempt over a shared client.
type Factory struct {
	client *anthropic.Client
	opts   Options
}

// NewFactory creates an Anthropic worker factory using the official client.
// The API key falls back to the SDK's environment lookup when unset.
func NewFactory(optFns ...func(o *Options)) *Factory {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Factory{
		client: &client,
		opts:   opts,
	}
}

// NewFactoryFromClient creates an Anthropic worker factory from an existing client.
func NewFactoryFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Factory {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Factory{
		client: client,
		opts:   opts,
	}
}

// Name returns the model id, which doubles as the agent display name.
func (f *Factory) Name() string { return string(f.opts.Model) }

// New builds a worker for one attempt. The client is shared; per-attempt
// state is limited to the run's logger.
func (f *Factory) New(rc *core.RunContext) (core.Worker, error) {
	return &Worker{
		client: f.client,
		opts:   f.opts,
		logger: rc.Logger(),
	}, nil
}

// Worker runs a single prompt against the Anthropic Messages API.
type Worker struct {
	client *anthropic.Client
	opts   Options
	logger logging.Logger
}

// Name returns the model id.
func (w *Worker) Name() string { return string(w.opts.Model) }

// Run renders the prompt template against params, sends it as a single user
// message and returns the concatenated text output with real token usage.
func (w *Worker) Run(ctx context.Context, prompt string, params map[string]any) (*core.Result, error) {
	rendered, err := util.RenderTemplate(prompt, params)
	if err != nil {
		return nil, err
	}

	msgParams := anthropic.MessageNewParams{
		Model:       w.opts.Model,
		MaxTokens:   w.opts.MaxTokens,
		Temperature: anthropic.Float(w.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(rendered)),
		},
	}

	if w.opts.System != "" {
		msgParams.System = []anthropic.TextBlockParam{{Text: w.opts.System}}
	}

	w.logger.Debug("worker.anthropic.request", "model", string(w.opts.Model), "prompt_len", len(rendered))

	resp, err := w.client.Messages.New(ctx, msgParams)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return &core.Result{
		Output: text.String(),
		Model:  string(resp.Model),
		Usage: &core.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}
