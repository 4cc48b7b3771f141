package summary

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/constants/prompts"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

// MinWords is the token count below which text is returned as is.
const MinWords = 20

// ErrNetwork covers every remote failure. It never leaves Summarize.
var ErrNetwork = errors.New("remote summarization failed")

type Service interface {
	// Summarize condenses text. Remote failures fall back to Extractive;
	// the only error is a cancelled context.
	Summarize(ctx context.Context, text string, tier int, language string) (string, error)
	// HasValidAPIKey reports whether the configured credential has a usable shape.
	HasValidAPIKey() bool
}

type summaryService struct {
	cfg    config.SummarizationConfig
	client openai.Client
	logger *Logger.Logger
}

func NewService(cfg config.SummarizationConfig, logger *Logger.Logger) Service {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// one attempt, the fallback is local
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &summaryService{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger.Named("summary"),
	}
}

// ValidAPIKey checks credential shape only: "sk-" prefix and more than 20 characters.
func ValidAPIKey(key string) bool {
	return strings.HasPrefix(key, "sk-") && len(key) > 20
}

func (s *summaryService) HasValidAPIKey() bool {
	return ValidAPIKey(s.cfg.APIKey)
}

func (s *summaryService) Summarize(ctx context.Context, text string, tier int, language string) (string, error) {
	if len(strings.Fields(text)) < MinWords {
		return text, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !s.HasValidAPIKey() {
		s.logger.Infof("no valid api key, using extractive summary (tier %d)", tier)
		return Extractive(text, tier), nil
	}

	out, err := s.remote(ctx, text, tier, language)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger.Warnf("remote summary failed, falling back to extractive: %v", err)
		return Extractive(text, tier), nil
	}
	return out, nil
}

func (s *summaryService) remote(ctx context.Context, text string, tier int, language string) (string, error) {
	langName := s.languageName(language)
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompts.SUMMARY_SYSTEM.GetCurrentPrompt().Render(langName)),
			openai.UserMessage(prompts.SUMMARY_REQUEST.GetCurrentPrompt().Render(s.lengthDescriptor(tier), langName, text)),
		},
		Temperature: openai.Float(s.cfg.Temperature),
		MaxTokens:   openai.Int(s.cfg.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrNetwork)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrNetwork)
	}
	return content, nil
}

func (s *summaryService) lengthDescriptor(tier int) string {
	if d, ok := s.cfg.Lengths[strconv.Itoa(tier)]; ok {
		return d
	}
	if d, ok := s.cfg.Lengths["3"]; ok {
		return d
	}
	return "medium length"
}

func (s *summaryService) languageName(code string) string {
	if n, ok := s.cfg.LanguageNames[code]; ok {
		return n
	}
	if n, ok := s.cfg.LanguageNames["auto"]; ok {
		return n
	}
	return "the same language as the text"
}
