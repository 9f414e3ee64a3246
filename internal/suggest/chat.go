package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"

	"github.com/kingrea/countersign/internal/config"
)

const systemPrompt = "You write the short cover message that accompanies a document sent out for electronic signature. " +
	"Address the signers politely, name the document, and ask them to review and sign. " +
	"Keep it under 80 words, plain text, no subject line, no placeholders."

// Chat asks a chat model for a suggestion. Identical concurrent requests
// share one model call.
type Chat struct {
	model   model.BaseChatModel
	timeout time.Duration
	group   singleflight.Group
}

// NewChat wraps m. A non-positive timeout disables the per-call deadline.
func NewChat(m model.BaseChatModel, timeout time.Duration) (*Chat, error) {
	if m == nil {
		return nil, errors.New("suggest: chat model is required")
	}
	return &Chat{model: m, timeout: timeout}, nil
}

// Suggest implements Suggester.
func (c *Chat) Suggest(ctx context.Context, req Request) (string, error) {
	key, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("suggest: encode request: %w", err)
	}
	ch := c.group.DoChan(string(key), func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
			defer cancel()
		}
		return c.generate(callCtx, req)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Chat) generate(ctx context.Context, req Request) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt(req)),
	}
	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("suggest: generate message: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("suggest: model returned an empty message")
	}
	return text, nil
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", strings.TrimSpace(req.DocumentName))
	if d := strings.TrimSpace(req.DocumentDescription); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	b.WriteString("Signers:\n")
	for _, sg := range req.Signers {
		fmt.Fprintf(&b, "- %s (%s)\n", sg.Name, sg.Role.FriendlyName())
	}
	fmt.Fprintf(&b, "Fields to complete: %d\n", req.FieldCount)
	return b.String()
}

// NewChatModel builds the eino chat model for provider.
func NewChatModel(ctx context.Context, provider, modelName, baseURL, apiKey string) (model.BaseChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("suggest: api key is required for provider %s", provider)
	}
	switch provider {
	case "openai":
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("suggest: openai model: %w", err)
		}
		return m, nil
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
		if err != nil {
			return nil, fmt.Errorf("suggest: gemini client: %w", err)
		}
		m, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("suggest: gemini model: %w", err)
		}
		return m, nil
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		m, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 400,
		})
		if err != nil {
			return nil, fmt.Errorf("suggest: claude model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("suggest: invalid provider: %s", provider)
	}
}

// New returns the suggester selected by cfg. The static suggester is used
// for "static" and as the fallback when apiKey is missing.
func New(ctx context.Context, cfg config.SuggestConfig, apiKey string) (Suggester, error) {
	if cfg.Provider == "" || cfg.Provider == "static" {
		return Static{}, nil
	}
	m, err := NewChatModel(ctx, cfg.Provider, cfg.Model, cfg.BaseURL, apiKey)
	if err != nil {
		return Static{}, err
	}
	return NewChat(m, cfg.Timeout)
}
