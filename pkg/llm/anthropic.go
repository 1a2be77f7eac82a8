package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider on top of the Claude Messages API.
type AnthropicProvider struct {
	client sdk.Client
}

// NewAnthropicProvider builds a provider from an API key.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	return &AnthropicProvider{client: sdk.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Complete issues a non-streaming Messages.New call.
func (p *AnthropicProvider) Complete(ctx context.Context, model, system, user string, maxTokens int) (*Completion, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Completion{
		Content:   sb.String(),
		TokensIn:  int(msg.Usage.InputTokens),
		TokensOut: int(msg.Usage.OutputTokens),
	}, nil
}

// classifyAnthropicErr folds SDK errors into the llm taxonomy.
func classifyAnthropicErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, err)
	}
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return NewError(KindAuth, err)
		case apierr.StatusCode == 404:
			return NewError(KindNotFound, err)
		case apierr.StatusCode == 429:
			return NewError(KindRateLimited, err)
		case apierr.StatusCode >= 500:
			return NewError(KindUpstream5xx, err)
		}
	}
	return NewError(KindInternal, fmt.Errorf("anthropic messages.new: %w", err))
}
