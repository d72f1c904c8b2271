// Package governance vets oracle-issued commands before they reach the
// browser. Policies are deny-lists over selectors and typed text, so a
// misbehaving oracle cannot be steered into known-dangerous page regions.
package governance

import (
	"fmt"
	"regexp"

	"github.com/rahul/webpilot/internal/agent"
)

// PolicyEngine is a deny-list based implementation of agent.ActionPolicy.
// Commands are allowed unless a rule matches.
type PolicyEngine struct {
	deniedSelectors []*regexp.Regexp
	deniedText      []*regexp.Regexp
}

func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{}
}

// DenySelector blocks commands whose selector matches the pattern.
func (e *PolicyEngine) DenySelector(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.deniedSelectors = append(e.deniedSelectors, re)
	return nil
}

// DenyText blocks type commands whose payload matches the pattern.
func (e *PolicyEngine) DenyText(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.deniedText = append(e.deniedText, re)
	return nil
}

// Check returns a non-nil error when the command violates a rule. The
// orchestrator records denials as error outcomes without dispatching.
func (e *PolicyEngine) Check(cmd agent.ActionCommand) error {
	if cmd.Selector != "" {
		for _, re := range e.deniedSelectors {
			if re.MatchString(cmd.Selector) {
				return fmt.Errorf("selector %q matches restricted pattern %q", cmd.Selector, re.String())
			}
		}
	}
	if cmd.Kind == agent.KindType && cmd.Text != nil {
		for _, re := range e.deniedText {
			if re.MatchString(*cmd.Text) {
				return fmt.Errorf("text payload matches restricted pattern %q", re.String())
			}
		}
	}
	return nil
}
