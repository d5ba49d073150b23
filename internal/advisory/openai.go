package advisory

import (
	"context"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rotisserie/eris"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1/"

// openaiProvider implements Provider using the OpenAI SDK. It also serves
// OpenRouter, which speaks the same chat-completions protocol.
type openaiProvider struct {
	client openai.Client
	model  string
	label  string
}

func newOpenAIProvider(model string) (Provider, error) {
	apiKey, err := requireEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &openaiProvider{client: client, model: model, label: "openai"}, nil
}

// newOpenRouterProvider targets OpenRouter. OPENROUTER_BASE_URL overrides the
// endpoint, which is how integration tests point it at a local server.
func newOpenRouterProvider(model string) (Provider, error) {
	apiKey, err := requireEnv("OPENROUTER_API_KEY")
	if err != nil {
		return nil, err
	}
	baseURL := OpenRouterBaseURL
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")); v != "" {
		baseURL = strings.TrimSuffix(v, "/") + "/"
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", "https://github.com/dshills/cropadvisor"),
		option.WithHeader("X-Title", "cropadvisor"),
	)
	return &openaiProvider{client: client, model: model, label: "openrouter"}, nil
}

func (p *openaiProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "%s: chat.completions.new", p.label)
	}

	if len(resp.Choices) == 0 {
		return "", eris.Errorf("%s: response contained no choices", p.label)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", eris.Errorf("%s: response contained no content", p.label)
	}
	return content, nil
}
