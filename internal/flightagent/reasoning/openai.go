package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

var _ core.Reasoner = (*OpenAIReasoner)(nil)

// OpenAIConfig configures a reasoner on an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EnableThinking bool
	ThinkingBudget int
	DefaultSpeed   int
}

// OpenAIReasoner sends the frame and instruction to a vision chat model.
// Retries belong to the Gateway, so the client itself never retries.
type OpenAIReasoner struct {
	client openai.Client
	cfg    OpenAIConfig
	system string
}

func NewOpenAIReasoner(cfg OpenAIConfig) *OpenAIReasoner {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIReasoner{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		system: SystemPrompt(cfg.DefaultSpeed),
	}
}

func (r *OpenAIReasoner) Reason(ctx context.Context, req core.ReasonRequest) (string, error) {
	if req.Frame.Empty() {
		return "", Permanent(errors.New("no frame to reason about"))
	}

	params := openai.ChatCompletionNewParams{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.system),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: req.Frame.DataURL()}),
				openai.TextContentPart(UserPrompt(req)),
			}),
		},
	}

	var opts []option.RequestOption
	if r.cfg.EnableThinking {
		opts = append(opts,
			option.WithJSONSet("enable_thinking", true),
			option.WithJSONSet("thinking_budget", r.cfg.ThinkingBudget),
		)
	}

	res, err := r.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.StatusCode) {
			return "", Permanent(err)
		}
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", errors.New("reply has no choices")
	}

	msg := res.Choices[0].Message
	if msg.Refusal != "" {
		return "", Permanent(fmt.Errorf("model refused: %s", msg.Refusal))
	}
	return msg.Content, nil
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return true
	}
	return false
}
