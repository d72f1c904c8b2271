package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/webpilot/internal/browser"
)

// planErrorSentinel marks a plan whose first step is an oracle-reported
// error rather than a real step.
const planErrorSentinel = "Error:"

// ErrInvalidPlan is the terminal failure of the planning phase. A run that
// hits it never enters the execution phase.
var ErrInvalidPlan = errors.New("oracle returned an unusable plan")

// PageSurface is the browser the orchestrator drives. Implementations own
// their internal timeouts; every method may block until then.
type PageSurface interface {
	Navigate(ctx context.Context, url string) error
	Observe(ctx context.Context) ([]browser.Element, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Select(ctx context.Context, selector, value string) error
	Close() error
}

// DecisionOracle produces the plan and the per-attempt next action. It is
// shared and reusable across runs; the orchestrator does not own it.
type DecisionOracle interface {
	// GetTestPlan decomposes the objective into ordered step objectives. A
	// plan whose first element starts with "Error:" reports an oracle-side
	// failure and must be treated as terminal by the caller.
	GetTestPlan(ctx context.Context, objective, startURL string, dom []browser.Element) ([]string, error)
	// GetNextAction decides the next command for one step given the ledger
	// so far and the current snapshot.
	GetNextAction(ctx context.Context, stepObjective string, history []Entry, dom []browser.Element) (ActionCommand, error)
}

// ActionPolicy vets oracle commands before they reach the browser. A non-nil
// error denies the command; the denial is recorded as an error outcome.
type ActionPolicy interface {
	Check(cmd ActionCommand) error
}

// StepResult reasons.
const (
	ReasonAchieved          = "achieved"
	ReasonFailedByOracle    = "failed_by_oracle"
	ReasonAttemptsExhausted = "attempts_exhausted"
)

// StepResult is the outcome of the retry loop for one plan step.
type StepResult struct {
	Objective    string `json:"objective"`
	Achieved     bool   `json:"achieved"`
	AttemptsUsed int    `json:"attempts_used"`
	Reason       string `json:"reason"`
}

// RunResult is the externally observable outcome of a whole run.
type RunResult struct {
	Objective string       `json:"objective"`
	StartURL  string       `json:"start_url"`
	Achieved  bool         `json:"achieved"`
	Steps     []StepResult `json:"steps"`
	History   []Entry      `json:"history"`
}

// Orchestrator owns the plan/execute state machine, the retry policy and the
// history ledger for the duration of one run. It exclusively owns the page
// surface and releases it exactly once, on every exit path.
type Orchestrator struct {
	surface     PageSurface
	oracle      DecisionOracle
	policy      ActionPolicy
	pacing      Pacing
	maxAttempts int
	logger      *zap.Logger
}

type Option func(*Orchestrator)

func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithPacing(p Pacing) Option {
	return func(o *Orchestrator) { o.pacing = p }
}

func WithPolicy(p ActionPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func New(surface PageSurface, oracle DecisionOracle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		surface:     surface,
		oracle:      oracle,
		pacing:      DefaultPacing(),
		maxAttempts: 10,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives the browser toward the objective, starting from startURL. It
// always returns a result with a complete ledger; collaborator faults are
// absorbed into the ledger as data, never surfaced as errors.
func (o *Orchestrator) Run(ctx context.Context, objective, startURL string) RunResult {
	defer func() {
		if err := o.surface.Close(); err != nil {
			o.logger.Warn("closing page surface", zap.Error(err))
		}
	}()

	led := NewLedger()
	o.logger.Info("run starting", zap.String("objective", objective), zap.String("url", startURL))

	plan, err := o.plan(ctx, led, objective, startURL)
	if err != nil {
		led.Append(Entry{Kind: EntryRunComplete, Status: StatusError, Detail: err.Error()})
		o.logger.Error("planning failed", zap.Error(err))
		return RunResult{Objective: objective, StartURL: startURL, History: led.Entries()}
	}

	achieved := true
	steps := make([]StepResult, 0, len(plan))
	for i, stepObjective := range plan {
		o.logger.Info("executing step",
			zap.Int("step", i+1),
			zap.Int("of", len(plan)),
			zap.String("objective", stepObjective))

		res := o.executeStep(ctx, led, stepObjective)
		steps = append(steps, res)

		status := StatusSuccess
		if !res.Achieved {
			status = StatusError
			if res.Reason == ReasonFailedByOracle {
				status = StatusFailedByOracle
			}
		}
		led.Append(Entry{
			Kind:    EntryStepComplete,
			Status:  status,
			Step:    stepObjective,
			Attempt: res.AttemptsUsed,
			Detail:  res.Reason,
		})

		// The objective is a strict conjunction of ordered sub-goals: the
		// first failed step ends the run, later steps are never attempted.
		if !res.Achieved {
			achieved = false
			break
		}
	}

	runStatus := StatusSuccess
	detail := "objective achieved"
	if !achieved {
		runStatus = StatusError
		detail = "objective not achieved"
	}
	led.Append(Entry{Kind: EntryRunComplete, Status: runStatus, Detail: detail})
	o.logger.Info("run finished", zap.Bool("achieved", achieved), zap.Int("ledger_entries", led.Len()))

	return RunResult{
		Objective: objective,
		StartURL:  startURL,
		Achieved:  achieved,
		Steps:     steps,
		History:   led.Entries(),
	}
}

// plan navigates to the start URL, takes the initial snapshot and asks the
// oracle for a plan. Navigation failures are recorded but not fatal, since
// the oracle may still reason from an error page. An invalid plan is.
func (o *Orchestrator) plan(ctx context.Context, led *Ledger, objective, startURL string) ([]string, error) {
	if err := o.surface.Navigate(ctx, startURL); err != nil {
		o.logger.Warn("navigation failed", zap.String("url", startURL), zap.Error(err))
		led.Append(Entry{Kind: EntryNavigation, Status: StatusError, Detail: err.Error()})
	} else {
		led.Append(Entry{Kind: EntryNavigation, Status: StatusSuccess, Detail: startURL})
	}

	dom := o.observe(ctx)

	pause(ctx, o.pacing.OracleCall)
	plan, err := o.oracle.GetTestPlan(ctx, objective, startURL, dom)
	if err != nil {
		led.Append(Entry{Kind: EntryPlan, Status: StatusError, Detail: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := validatePlan(plan); err != nil {
		led.Append(Entry{Kind: EntryPlan, Status: StatusError, Detail: err.Error()})
		return nil, err
	}

	led.Append(Entry{Kind: EntryPlan, Status: StatusSuccess, Detail: fmt.Sprintf("%d steps", len(plan))})
	return plan, nil
}

func validatePlan(plan []string) error {
	if len(plan) == 0 {
		return fmt.Errorf("%w: empty plan", ErrInvalidPlan)
	}
	if strings.HasPrefix(strings.TrimSpace(plan[0]), planErrorSentinel) {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, plan[0])
	}
	for i, step := range plan {
		if strings.TrimSpace(step) == "" {
			return fmt.Errorf("%w: step %d is empty", ErrInvalidPlan, i+1)
		}
	}
	return nil
}

// executeStep runs the retry loop for one step objective. It returns on the
// first Finish (achieved) or Fail (definitive, remaining attempts are not
// consumed); any other outcome burns an attempt and retries after a pause.
func (o *Orchestrator) executeStep(ctx context.Context, led *Ledger, stepObjective string) StepResult {
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		dom := o.observe(ctx)

		pause(ctx, o.pacing.OracleCall)
		cmd, err := o.oracle.GetNextAction(ctx, stepObjective, led.Entries(), dom)
		if err != nil {
			// An oracle that cannot produce a command is treated as if it
			// had declared failure.
			o.logger.Warn("oracle call failed", zap.Error(err))
			cmd = ActionCommand{Kind: KindFail, Reasoning: fmt.Sprintf("oracle call failed: %v", err)}
		}

		status, detail := o.dispatch(ctx, cmd)
		led.Append(Entry{
			Kind:      EntryAction,
			Status:    status,
			Step:      stepObjective,
			Attempt:   attempt,
			Action:    cmd.Kind.String(),
			Selector:  cmd.Selector,
			Text:      cmd.Text,
			Value:     cmd.Value,
			Reasoning: cmd.Reasoning,
			Detail:    detail,
		})
		o.logger.Info("attempt recorded",
			zap.Int("attempt", attempt),
			zap.String("action", cmd.Kind.String()),
			zap.String("status", string(status)))

		switch cmd.Kind {
		case KindFinish:
			return StepResult{Objective: stepObjective, Achieved: true, AttemptsUsed: attempt, Reason: ReasonAchieved}
		case KindFail:
			return StepResult{Objective: stepObjective, AttemptsUsed: attempt, Reason: ReasonFailedByOracle}
		}

		pause(ctx, o.pacing.ActionSettle)
	}
	return StepResult{Objective: stepObjective, AttemptsUsed: o.maxAttempts, Reason: ReasonAttemptsExhausted}
}

// dispatch validates the command and executes it against the page surface.
// Validation and policy failures never reach the surface; surface faults are
// converted to an error status, never propagated.
func (o *Orchestrator) dispatch(ctx context.Context, cmd ActionCommand) (Status, string) {
	if err := cmd.Validate(); err != nil {
		return StatusError, err.Error()
	}
	if o.policy != nil {
		if err := o.policy.Check(cmd); err != nil {
			return StatusError, fmt.Sprintf("denied by policy: %v", err)
		}
	}

	var err error
	switch cmd.Kind {
	case KindClick:
		err = o.surface.Click(ctx, cmd.Selector)
	case KindType:
		err = o.surface.Type(ctx, cmd.Selector, *cmd.Text)
	case KindSelect:
		err = o.surface.Select(ctx, cmd.Selector, cmd.Value)
	case KindFinish:
		return StatusSuccess, ""
	case KindFail:
		return StatusFailedByOracle, cmd.Reasoning
	case KindUnknown:
		return StatusError, fmt.Sprintf("unknown action %q", cmd.RawKind)
	}
	if err != nil {
		return StatusError, err.Error()
	}
	return StatusSuccess, ""
}

// observe takes a DOM snapshot, retrying exactly once after a pause when the
// snapshot comes back empty or errored. An empty snapshot is forwarded to
// the oracle as a signal, not treated as a local failure.
func (o *Orchestrator) observe(ctx context.Context) []browser.Element {
	dom, err := o.surface.Observe(ctx)
	if err == nil && len(dom) > 0 {
		return dom
	}
	if err != nil {
		o.logger.Warn("dom observation failed", zap.Error(err))
	}

	pause(ctx, o.pacing.ObserveRetry)
	dom, err = o.surface.Observe(ctx)
	if err != nil {
		o.logger.Warn("dom observation failed after retry", zap.Error(err))
		return nil
	}
	return dom
}
