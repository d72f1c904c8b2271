// Package oracle implements the decision oracle on top of a langchaingo
// chat model. It turns the objective, ledger window and DOM snapshot into
// prompts and parses the model's JSON replies into commands.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/browser"
)

// ErrNoAction reports a model reply without the mandatory action field. The
// orchestrator maps it to a synthetic fail command.
var ErrNoAction = errors.New("oracle reply is missing the action field")

// SummaryFunc supplies optional page context for the planning prompt.
type SummaryFunc func(ctx context.Context) string

// Provider asks a chat model for plans and next actions.
type Provider struct {
	model   llms.Model
	summary SummaryFunc
	logger  *zap.Logger
}

type ProviderOption func(*Provider)

// WithPageSummary attaches a page-content extractor whose output is included
// in the planning prompt.
func WithPageSummary(fn SummaryFunc) ProviderOption {
	return func(p *Provider) { p.summary = fn }
}

func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

func New(model llms.Model, opts ...ProviderOption) *Provider {
	p := &Provider{
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetTestPlan asks the model to decompose the objective into ordered step
// objectives. Failures are reported in-band as a single "Error: ..." step,
// which callers treat as terminal.
func (p *Provider) GetTestPlan(ctx context.Context, objective, startURL string, dom []browser.Element) ([]string, error) {
	var summary string
	if p.summary != nil {
		summary = p.summary(ctx)
	}
	prompt := buildPlanPrompt(objective, startURL, dom, summary)

	reply, err := p.generate(ctx, planSystemPrompt, prompt)
	if err != nil {
		p.logger.Warn("plan generation failed", zap.Error(err))
		return []string{fmt.Sprintf("Error: plan generation failed: %v", err)}, nil
	}

	plan, err := parsePlan(reply)
	if err != nil {
		p.logger.Warn("plan reply unparseable", zap.Error(err), zap.String("reply", clip(reply, 500)))
		return []string{fmt.Sprintf("Error: unparseable plan: %v", err)}, nil
	}
	p.logger.Info("plan generated", zap.Int("steps", len(plan)))
	return plan, nil
}

// GetNextAction asks the model for the next command toward the step
// objective. Transport failures and malformed replies surface as errors;
// the orchestrator absorbs them.
func (p *Provider) GetNextAction(ctx context.Context, stepObjective string, history []agent.Entry, dom []browser.Element) (agent.ActionCommand, error) {
	prompt := buildActionPrompt(stepObjective, history, dom)

	reply, err := p.generate(ctx, actionSystemPrompt, prompt)
	if err != nil {
		return agent.ActionCommand{}, fmt.Errorf("next-action generation: %w", err)
	}
	return parseAction(reply)
}

func (p *Provider) generate(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// wireAction is the JSON shape the model is asked to produce. Action and
// Text are pointers so an absent field can be told from an empty one.
type wireAction struct {
	Action    *string `json:"action"`
	Selector  string  `json:"selector"`
	Text      *string `json:"text"`
	Value     string  `json:"value"`
	Reasoning string  `json:"reasoning"`
}

func parseAction(reply string) (agent.ActionCommand, error) {
	var wire wireAction
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &wire); err != nil {
		return agent.ActionCommand{}, fmt.Errorf("unparseable action reply: %w", err)
	}
	if wire.Action == nil {
		return agent.ActionCommand{}, ErrNoAction
	}
	return agent.ActionCommand{
		Kind:      agent.ParseKind(*wire.Action),
		RawKind:   *wire.Action,
		Selector:  wire.Selector,
		Text:      wire.Text,
		Value:     wire.Value,
		Reasoning: wire.Reasoning,
	}, nil
}

func parsePlan(reply string) ([]string, error) {
	cleaned := stripCodeFence(reply)

	var steps []string
	if err := json.Unmarshal([]byte(cleaned), &steps); err == nil {
		return steps, nil
	}

	// Some models insist on wrapping the array in an object.
	var wrapped struct {
		Steps []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, fmt.Errorf("expected a JSON array of steps: %w", err)
	}
	if wrapped.Steps == nil {
		return nil, errors.New("expected a JSON array of steps")
	}
	return wrapped.Steps, nil
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return clampText(s, n) + "..."
}
