package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/webpilot/internal/browser"
)

func strPtr(s string) *string { return &s }

func testElements() []browser.Element {
	return []browser.Element{
		{Tag: "button", Selector: "#go", Text: "Go", Visible: true, Enabled: true},
	}
}

// fakePage counts calls and returns scripted errors.
type fakePage struct {
	navErr       error
	clickErr     error
	typeErr      error
	selectErr    error
	observeQueue [][]browser.Element // popped per call; empty queue falls back to defaultDOM
	observeErr   error
	defaultDOM   []browser.Element

	navCalls, observeCalls, clickCalls, typeCalls, selectCalls, closeCalls int
}

func newFakePage() *fakePage {
	return &fakePage{defaultDOM: testElements()}
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navCalls++
	return f.navErr
}

func (f *fakePage) Observe(ctx context.Context) ([]browser.Element, error) {
	f.observeCalls++
	if f.observeErr != nil {
		return nil, f.observeErr
	}
	if len(f.observeQueue) > 0 {
		dom := f.observeQueue[0]
		f.observeQueue = f.observeQueue[1:]
		return dom, nil
	}
	return f.defaultDOM, nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.clickCalls++
	return f.clickErr
}

func (f *fakePage) Type(ctx context.Context, selector, text string) error {
	f.typeCalls++
	return f.typeErr
}

func (f *fakePage) Select(ctx context.Context, selector, value string) error {
	f.selectCalls++
	return f.selectErr
}

func (f *fakePage) Close() error {
	f.closeCalls++
	return nil
}

func (f *fakePage) surfaceCalls() int {
	return f.clickCalls + f.typeCalls + f.selectCalls
}

type scriptedAction struct {
	cmd ActionCommand
	err error
}

// fakeOracle serves a fixed plan and a queue of actions; the last action
// repeats once the queue drains.
type fakeOracle struct {
	plan    []string
	planErr error
	actions []scriptedAction

	planCalls      int
	actionCalls    int
	historyLengths []int
}

func (f *fakeOracle) GetTestPlan(ctx context.Context, objective, startURL string, dom []browser.Element) ([]string, error) {
	f.planCalls++
	return f.plan, f.planErr
}

func (f *fakeOracle) GetNextAction(ctx context.Context, stepObjective string, history []Entry, dom []browser.Element) (ActionCommand, error) {
	f.actionCalls++
	f.historyLengths = append(f.historyLengths, len(history))
	if len(f.actions) == 0 {
		return ActionCommand{Kind: KindFail, Reasoning: "script exhausted"}, nil
	}
	next := f.actions[0]
	if len(f.actions) > 1 {
		f.actions = f.actions[1:]
	}
	return next.cmd, next.err
}

func newOrchestrator(page PageSurface, oracle DecisionOracle, opts ...Option) *Orchestrator {
	opts = append([]Option{WithPacing(Pacing{})}, opts...)
	return New(page, oracle, opts...)
}

func TestRunAllStepsFinishFirstAttempt(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan:    []string{"open the form", "fill it in", "submit"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFinish, Reasoning: "done"}}},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "complete the form", "https://example.test")

	require.True(t, res.Achieved)
	assert.Equal(t, 1, oracle.planCalls)
	assert.Equal(t, 3, oracle.actionCalls)
	require.Len(t, res.Steps, 3)
	for _, step := range res.Steps {
		assert.True(t, step.Achieved)
		assert.Equal(t, 1, step.AttemptsUsed)
		assert.Equal(t, ReasonAchieved, step.Reason)
	}

	last := res.History[len(res.History)-1]
	assert.Equal(t, EntryRunComplete, last.Kind)
	assert.Equal(t, StatusSuccess, last.Status)
	assert.Equal(t, 1, page.closeCalls)
}

func TestRunInvalidPlanSentinelIsTerminal(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{plan: []string{"Error: objective cannot be grounded in the page"}}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Empty(t, res.Steps)
	assert.Equal(t, 0, oracle.actionCalls, "execution phase must never start")
	assert.Equal(t, 1, page.closeCalls, "surface must be released on the terminal path too")

	last := res.History[len(res.History)-1]
	assert.Equal(t, EntryRunComplete, last.Kind)
	assert.Equal(t, StatusError, last.Status)
}

func TestRunEmptyPlanIsTerminal(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{plan: nil}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Equal(t, 0, oracle.actionCalls)
}

func TestRunPlanWithEmptyStepIsTerminal(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{plan: []string{"first step", "   "}}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Equal(t, 0, oracle.actionCalls)
}

func TestRunPlanTransportErrorIsTerminal(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{planErr: errors.New("model timeout")}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Equal(t, 0, oracle.actionCalls)
	assert.Equal(t, 1, page.closeCalls)
}

func TestOracleFailEndsRunWithoutConsumingBudget(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan:    []string{"step one", "step two"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFail, Reasoning: "dead end"}}},
	}
	orch := newOrchestrator(page, oracle, WithMaxAttempts(5))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	require.Len(t, res.Steps, 1, "later steps must never be attempted")
	assert.Equal(t, 1, res.Steps[0].AttemptsUsed)
	assert.Equal(t, ReasonFailedByOracle, res.Steps[0].Reason)
	assert.Equal(t, 1, oracle.actionCalls)
}

func TestAttemptBudgetExhausted(t *testing.T) {
	page := newFakePage()
	click := ActionCommand{Kind: KindClick, Selector: "#go", Reasoning: "try the button"}
	oracle := &fakeOracle{
		plan:    []string{"only step"},
		actions: []scriptedAction{{cmd: click}},
	}
	orch := newOrchestrator(page, oracle, WithMaxAttempts(2))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 2, res.Steps[0].AttemptsUsed)
	assert.Equal(t, ReasonAttemptsExhausted, res.Steps[0].Reason)
	assert.Equal(t, 2, oracle.actionCalls)

	var actionEntries, milestone int
	for _, e := range res.History {
		switch e.Kind {
		case EntryAction:
			actionEntries++
			assert.Equal(t, StatusSuccess, e.Status)
		case EntryStepComplete:
			milestone++
			assert.Equal(t, ReasonAttemptsExhausted, e.Detail)
		}
	}
	assert.Equal(t, 2, actionEntries)
	assert.Equal(t, 1, milestone)
}

func TestNextActionCallsBoundedByBudget(t *testing.T) {
	page := newFakePage()
	page.clickErr = errors.New("element detached")
	oracle := &fakeOracle{
		plan:    []string{"a", "b", "c"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindClick, Selector: "#x"}}},
	}
	maxAttempts := 3
	orch := newOrchestrator(page, oracle, WithMaxAttempts(maxAttempts))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.LessOrEqual(t, oracle.actionCalls, len(oracle.plan)*maxAttempts)
	assert.GreaterOrEqual(t, oracle.actionCalls, 1)
}

func TestValidationFaultsNeverReachSurface(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan: []string{"only step"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindClick}},                              // missing selector
			{cmd: ActionCommand{Kind: KindType, Selector: "#q"}},               // nil text
			{cmd: ActionCommand{Kind: KindSelect, Selector: "#dd"}},            // missing value
			{cmd: ActionCommand{Kind: KindFail, Reasoning: "giving up"}},       // end the step
		},
	}
	orch := newOrchestrator(page, oracle, WithMaxAttempts(10))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Equal(t, 0, page.surfaceCalls(), "invalid commands must not touch the page")

	var errorEntries int
	for _, e := range res.History {
		if e.Kind == EntryAction && e.Status == StatusError {
			errorEntries++
		}
	}
	assert.Equal(t, 3, errorEntries)
}

func TestEmptyTextIsValidTypePayload(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan: []string{"clear the field"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindType, Selector: "#q", Text: strPtr("")}},
			{cmd: ActionCommand{Kind: KindFinish}},
		},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "clear the search box", "https://example.test")

	assert.True(t, res.Achieved)
	assert.Equal(t, 1, page.typeCalls)
}

func TestOracleTransportErrorBecomesSyntheticFail(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan:    []string{"only step"},
		actions: []scriptedAction{{err: errors.New("connection reset")}},
	}
	orch := newOrchestrator(page, oracle, WithMaxAttempts(5))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, ReasonFailedByOracle, res.Steps[0].Reason)
	assert.Equal(t, 1, res.Steps[0].AttemptsUsed)

	var found bool
	for _, e := range res.History {
		if e.Kind == EntryAction && e.Action == "fail" {
			found = true
			assert.Contains(t, e.Reasoning, "oracle call failed")
		}
	}
	assert.True(t, found)
}

func TestUnknownActionBurnsAttemptAndRetries(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan: []string{"only step"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindUnknown, RawKind: "hover"}},
			{cmd: ActionCommand{Kind: KindFinish}},
		},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.True(t, res.Achieved)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 2, res.Steps[0].AttemptsUsed)
	assert.Equal(t, 0, page.surfaceCalls())
}

func TestNavigationFailureIsRecordedNotFatal(t *testing.T) {
	page := newFakePage()
	page.navErr = errors.New("dns failure")
	oracle := &fakeOracle{
		plan:    []string{"only step"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFinish}}},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.True(t, res.Achieved, "the run proceeds even when navigation fails")
	require.NotEmpty(t, res.History)
	assert.Equal(t, EntryNavigation, res.History[0].Kind)
	assert.Equal(t, StatusError, res.History[0].Status)
}

func TestObserveRetriesExactlyOnceOnEmptySnapshot(t *testing.T) {
	page := newFakePage()
	page.observeQueue = [][]browser.Element{nil, testElements()}
	oracle := &fakeOracle{
		plan:    []string{"only step"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFinish}}},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.True(t, res.Achieved)
	// Planning phase observed twice (empty then retry), the single step once.
	assert.Equal(t, 3, page.observeCalls)
}

func TestObserveFailureForwardsEmptySnapshot(t *testing.T) {
	page := newFakePage()
	page.observeErr = errors.New("javascript context destroyed")
	oracle := &fakeOracle{
		plan:    []string{"only step"},
		actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFinish}}},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.True(t, res.Achieved, "observation failures are a signal to the oracle, not fatal")
}

func TestSurfaceFaultBecomesErrorOutcome(t *testing.T) {
	page := newFakePage()
	page.clickErr = errors.New("not clickable at point")
	oracle := &fakeOracle{
		plan: []string{"only step"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindClick, Selector: "#go"}},
			{cmd: ActionCommand{Kind: KindFinish}},
		},
	}
	orch := newOrchestrator(page, oracle)

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.True(t, res.Achieved)
	assert.Equal(t, EntryAction, res.History[2].Kind)
	assert.Equal(t, StatusError, res.History[2].Status)
	assert.Contains(t, res.History[2].Detail, "not clickable")
}

type denyEverything struct{}

func (denyEverything) Check(cmd ActionCommand) error {
	return fmt.Errorf("%s is not allowed here", cmd.Kind)
}

func TestPolicyDenialSkipsSurface(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan: []string{"only step"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindClick, Selector: "#delete-account"}},
			{cmd: ActionCommand{Kind: KindFail, Reasoning: "blocked"}},
		},
	}
	orch := newOrchestrator(page, oracle, WithPolicy(denyEverything{}))

	res := orch.Run(context.Background(), "do something", "https://example.test")

	assert.False(t, res.Achieved)
	assert.Equal(t, 0, page.surfaceCalls())
	assert.Equal(t, StatusError, res.History[2].Status)
	assert.Contains(t, res.History[2].Detail, "denied by policy")
}

func TestOracleReceivesGrowingLedger(t *testing.T) {
	page := newFakePage()
	oracle := &fakeOracle{
		plan: []string{"only step"},
		actions: []scriptedAction{
			{cmd: ActionCommand{Kind: KindClick, Selector: "#go"}},
			{cmd: ActionCommand{Kind: KindClick, Selector: "#go"}},
			{cmd: ActionCommand{Kind: KindFinish}},
		},
	}
	orch := newOrchestrator(page, oracle)

	orch.Run(context.Background(), "do something", "https://example.test")

	require.Len(t, oracle.historyLengths, 3)
	assert.Less(t, oracle.historyLengths[0], oracle.historyLengths[1])
	assert.Less(t, oracle.historyLengths[1], oracle.historyLengths[2])
}

func TestRunIsDeterministicAcrossInvocations(t *testing.T) {
	// The orchestrator keeps no state across runs beyond the ledger it
	// builds per run, so two identical runs produce identical outcomes.
	for i := 0; i < 2; i++ {
		page := newFakePage()
		oracle := &fakeOracle{
			plan:    []string{"a", "b"},
			actions: []scriptedAction{{cmd: ActionCommand{Kind: KindFinish}}},
		}
		orch := newOrchestrator(page, oracle)

		res := orch.Run(context.Background(), "do something", "https://example.test")
		require.True(t, res.Achieved)
		require.Len(t, res.Steps, 2)
		assert.Equal(t, 1, page.closeCalls)
	}
}
