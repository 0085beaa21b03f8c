package provider

import (
	"context"
	"strings"
	"sync"

	"forge/internal/apperr"
	"forge/internal/chat"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OfficialProvider 使用官方 openai-go SDK 的一次性补全
// OfficialProvider runs non-streaming completions through the official
// openai-go SDK. It serves stage generation, where the whole reply is parsed
// as JSON and incremental text only matters as a progress signal. Tool
// definitions are not forwarded.
type OfficialProvider struct {
	opts  []option.RequestOption
	mu    sync.RWMutex
	model string
}

// NewOfficialProvider creates a provider from the same settings as the
// streaming one.
func NewOfficialProvider(cfg OpenAIConfig) (*OfficialProvider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperr.New(apperr.KindValidation, "llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))
	return &OfficialProvider{opts: opts, model: cfg.Model}, nil
}

func (p *OfficialProvider) Name() string { return "openai-official" }

func (p *OfficialProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OfficialProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return apperr.New(apperr.KindValidation, "model is empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

func (p *OfficialProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	client := openai.NewClient(p.opts...)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "list models", err)
	}
	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

func (p *OfficialProvider) Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.CurrentModel()
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: officialMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	client := openai.NewClient(p.opts...)
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return ChatResponse{}, apperr.Wrap(apperr.KindCancelled, "chat", ctx.Err())
		}
		return ChatResponse{}, apperr.Wrap(apperr.KindProvider, "provider chat failed", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, apperr.New(apperr.KindProvider, "openai: empty choices")
	}

	out := ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if cb != nil && cb.OnTextChunk != nil && out.Content != "" {
		cb.OnTextChunk(out.Content)
	}
	if cb != nil && cb.OnUsage != nil {
		cb.OnUsage(out.Usage)
	}
	return out, nil
}

// officialMessages keeps system, user and assistant text. Tool traffic has no
// place in one-shot generation.
func officialMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chat.RoleAssistant:
			if m.Content != "" {
				out = append(out, openai.ChatCompletionMessageParamOfAssistant(m.Content))
			}
		case chat.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
