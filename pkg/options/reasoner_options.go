package options

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ReasonerOptions)(nil)

const (
	ReasonerOpenAI   = "openai"
	ReasonerScripted = "scripted"
)

// ReasonerOptions selects and configures the vision reasoning service.
type ReasonerOptions struct {
	Provider       string `json:"provider" mapstructure:"provider"`
	APIKey         string `json:"api-key" mapstructure:"api-key"`
	BaseURL        string `json:"base-url" mapstructure:"base-url"`
	Model          string `json:"model" mapstructure:"model"`
	EnableThinking bool   `json:"enable-thinking" mapstructure:"enable-thinking"`
	ThinkingBudget int    `json:"thinking-budget" mapstructure:"thinking-budget"`

	// Script is a YAML file of canned replies for the scripted provider.
	Script string `json:"script" mapstructure:"script"`
}

func NewReasonerOptions() *ReasonerOptions {
	return &ReasonerOptions{
		Provider:       ReasonerOpenAI,
		BaseURL:        "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:          "qwen3-vl-plus",
		EnableThinking: true,
		ThinkingBudget: 81920,
	}
}

func (o *ReasonerOptions) Validate() []error {
	var errs []error

	if !slices.Contains([]string{ReasonerOpenAI, ReasonerScripted}, o.Provider) {
		errs = append(errs, fmt.Errorf("--reasoner.provider must be %q or %q, got %q", ReasonerOpenAI, ReasonerScripted, o.Provider))
	}
	if o.Provider == ReasonerOpenAI {
		if o.APIKey == "" {
			errs = append(errs, fmt.Errorf("--reasoner.api-key (or FLIGHTPEER_REASONER_API_KEY) is required for the %s provider", ReasonerOpenAI))
		}
		if o.Model == "" {
			errs = append(errs, fmt.Errorf("--reasoner.model must not be empty"))
		}
	}
	if o.ThinkingBudget < 0 {
		errs = append(errs, fmt.Errorf("--reasoner.thinking-budget must not be negative"))
	}

	return errs
}

func (o *ReasonerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Provider, "reasoner.provider", o.Provider, "Reasoning backend: 'openai' (any OpenAI compatible vision endpoint) or 'scripted'.")
	fs.StringVar(&o.APIKey, "reasoner.api-key", o.APIKey, "API key of the reasoning service.")
	fs.StringVar(&o.BaseURL, "reasoner.base-url", o.BaseURL, "Base URL of the OpenAI compatible endpoint.")
	fs.StringVar(&o.Model, "reasoner.model", o.Model, "Vision model name.")
	fs.BoolVar(&o.EnableThinking, "reasoner.enable-thinking", o.EnableThinking, "Ask the model to reason before answering.")
	fs.IntVar(&o.ThinkingBudget, "reasoner.thinking-budget", o.ThinkingBudget, "Token budget for model reasoning.")
	fs.StringVar(&o.Script, "reasoner.script", o.Script, "YAML script of replies for the scripted provider.")
}

// MaskedAPIKey returns the key with everything after the first few characters hidden.
func (o *ReasonerOptions) MaskedAPIKey() string {
	if len(o.APIKey) <= 6 {
		return "***"
	}
	return o.APIKey[:6] + "..."
}
