package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	// maxReplyTokens caps a single agent reply.
	maxReplyTokens = 8192

	// thinkingBudget is the reasoning budget granted when a request
	// asks for extended thinking. Must stay below maxReplyTokens.
	thinkingBudget = 4096

	// historyLimit bounds how many prior turns ride along per session.
	// Turns are stored in user/assistant pairs, so this stays even.
	historyLimit = 40
)

// AnthropicConfig configures the direct API transport.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API. Ignored when
	// UseAWSBedrock is set.
	APIKey string
	// Model overrides the default Claude model.
	Model string
	// UseAWSBedrock routes requests through AWS Bedrock using ambient
	// AWS credentials instead of an API key.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// AnthropicTransport is a Transport that talks to the Anthropic API
// directly, one Claude conversation per session key. It needs no
// standing connection and reports itself always connected.
type AnthropicTransport struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *TokenTracker

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

// NewAnthropicTransport builds the direct API transport.
func NewAnthropicTransport(ctx context.Context, cfg AnthropicConfig) (*AnthropicTransport, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gateway: anthropic transport requires an API key")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicTransport{
		inner:    anthropic.NewClient(opts...),
		model:    model,
		tracker:  NewTokenTracker(),
		sessions: make(map[string][]anthropic.MessageParam),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}

	// Not in the map: might already be Bedrock format or a custom model.
	return model
}

// Connect is a no-op; the API client needs no standing connection.
func (t *AnthropicTransport) Connect(ctx context.Context) error { return nil }

// Connected always reports true.
func (t *AnthropicTransport) Connected() bool { return true }

// SendAgentMessage runs one conversation turn with the agent's Claude
// session and returns the reply text.
func (t *AnthropicTransport) SendAgentMessage(ctx context.Context, req SendRequest) (*Reply, error) {
	messages := append(t.history(req.SessionKey), anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	params := anthropic.MessageNewParams{
		Model:     t.model,
		MaxTokens: maxReplyTokens,
		System: []anthropic.TextBlockParam{
			{Text: agentSystemPrompt(req.AgentID)},
		},
		Messages: messages,
	}
	if req.Thinking {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: thinkingBudget},
		}
	}

	resp, err := t.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("gateway: anthropic request: %w", err)
	}
	t.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	text := extractText(resp)
	t.remember(req.SessionKey, req.Message, text)

	return &Reply{Text: text, SessionKey: req.SessionKey}, nil
}

// Close drops all session history.
func (t *AnthropicTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string][]anthropic.MessageParam)
	return nil
}

// Usage returns the cumulative token usage across all sessions.
func (t *AnthropicTransport) Usage() *TokenTracker { return t.tracker }

// history returns a copy of the stored turns for a session, sized to
// append the next user message without reallocating.
func (t *AnthropicTransport) history(key string) []anthropic.MessageParam {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := t.sessions[key]
	out := make([]anthropic.MessageParam, len(stored), len(stored)+1)
	copy(out, stored)
	return out
}

// remember appends one completed user/assistant exchange to the session
// and trims the oldest turns past historyLimit. Trimming whole pairs
// keeps the history starting on a user turn.
func (t *AnthropicTransport) remember(key, userText, assistantText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	turns := append(t.sessions[key],
		anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock(assistantText)),
	)
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	t.sessions[key] = turns
}

func extractText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func agentSystemPrompt(agentID string) string {
	return fmt.Sprintf("You are %s, an autonomous agent on a task fleet. "+
		"Work the task you are given and report concrete progress in plain text.", agentID)
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Cost estimates the cost in USD based on current Claude pricing.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Sonnet pricing: $3/1M input, $15/1M output (approximate)
	inputCost := float64(t.inputTok) / 1_000_000 * 3.0
	outputCost := float64(t.outputTok) / 1_000_000 * 15.0
	return inputCost + outputCost
}
