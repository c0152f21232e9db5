package generation

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAISettings configures the chat-completions backend.
type OpenAISettings struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator implements Generator using the official openai-go SDK.
type OpenAIGenerator struct {
	model string
	opts  []option.RequestOption
}

// NewOpenAIGenerator builds a generator from settings.
func NewOpenAIGenerator(cfg OpenAISettings) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation: openai api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("generation: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{model: cfg.Model, opts: opts}, nil
}

// Generate sends the brand context and instruction to the model and
// post-processes the raw markdown into a titled result.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	client := openai.NewClient(g.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(req.Brand)),
			openai.UserMessage(req.Instruction),
		},
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("generation: empty choices")
	}

	return PostProcess(resp.Choices[0].Message.Content)
}
