// Package openai adapts the OpenAI Chat Completions API as a task worker.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures the OpenAI worker factory. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	System              string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Factory builds one OpenAI-backed worker per attempt over a shared client.
type Factory struct {
	client *openai.Client
	opts   Options
}

// NewFactory creates an OpenAI worker factory using the official client.
// The API key falls back to the SDK's environment lookup when unset.
func NewFactory(optFns ...func(o *Options)) *Factory {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Factory{
		client: &client,
		opts:   opts,
	}
}

// NewFactoryFromClient creates an OpenAI worker factory from an existing client.
func NewFactoryFromClient(client *openai.Client, optFns ...func(o *Options)) *Factory {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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
func (f *Factory) Name() string { return f.opts.Model }

// New builds a worker for one attempt. The client is shared; per-attempt
// state is limited to the run's logger.
func (f *Factory) New(rc *core.RunContext) (core.Worker, error) {
	return &Worker{
		client: f.client,
		opts:   f.opts,
		logger: rc.Logger(),
	}, nil
}

// Worker runs a single prompt against the OpenAI Chat Completions API.
type Worker struct {
	client *openai.Client
	opts   Options
	logger logging.Logger
}

// Name returns the model id.
func (w *Worker) Name() string { return w.opts.Model }

// Run renders the prompt template against params, sends it as a single user
// message and returns the first choice's text with real token usage.
func (w *Worker) Run(ctx context.Context, prompt string, params map[string]any) (*core.Result, error) {
	rendered, err := util.RenderTemplate(prompt, params)
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if w.opts.System != "" {
		messages = append(messages, openai.SystemMessage(w.opts.System))
	}
	messages = append(messages, openai.UserMessage(rendered))

	chatParams := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               w.opts.Model,
		Temperature:         openai.Float(w.opts.Temperature),
		MaxCompletionTokens: openai.Int(w.opts.MaxCompletionTokens),
	}

	w.logger.Debug("worker.openai.request", "model", w.opts.Model, "prompt_len", len(rendered))

	resp, err := w.client.Chat.Completions.New(ctx, chatParams)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return &core.Result{
		Output: resp.Choices[0].Message.Content,
		Model:  resp.Model,
		Usage: &core.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
