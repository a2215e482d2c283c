// Package translate provides thin providers over the OpenAI API for the
// three translation surfaces of the application: text translation via chat
// completion, speech-to-text, and text-to-speech.
//
// All providers can target any OpenAI-compatible endpoint by setting
// WithBaseURL.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default models for the three surfaces.
const (
	DefaultChatModel       = "gpt-4o-mini"
	DefaultTranscribeModel = "whisper-1"
	DefaultSpeechModel     = "tts-1"
	DefaultVoice           = "alloy"
)

// ErrEmptyInput is returned when a provider receives nothing to work on.
var ErrEmptyInput = errors.New("translate: empty input")

// config holds shared provider construction options.
type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures a provider.
type Option func(*config)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

func newClient(apiKey string, cfg config) *openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

func resolve(defaultModel string, opts []Option) config {
	cfg := config{
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Translator translates text between languages with a chat completion.
type Translator struct {
	client *openai.Client
	model  string
}

// NewTranslator creates a Translator.
func NewTranslator(apiKey string, opts ...Option) *Translator {
	cfg := resolve(DefaultChatModel, opts)
	return &Translator{client: newClient(apiKey, cfg), model: cfg.model}
}

// Translate renders text from sourceLang into targetLang. An empty
// sourceLang asks the model to detect the language.
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", ErrEmptyInput
	}
	if targetLang == "" {
		return "", errors.New("translate: target language is required")
	}

	system := fmt.Sprintf(
		"You are a professional translator. Translate the user's text into %s. "+
			"Reply with the translation only, no explanations.", targetLang)
	if sourceLang != "" {
		system = fmt.Sprintf(
			"You are a professional translator. Translate the user's text from %s into %s. "+
				"Reply with the translation only, no explanations.", sourceLang, targetLang)
	}

	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("translate chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("translate: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
