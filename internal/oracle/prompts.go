package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/browser"
)

const planSystemPrompt = `You are a web automation planner. Given an objective and the
interactive elements of the starting page, decompose the objective into a short ordered
list of concrete browser sub-goals. Respond with a JSON array of strings only, for
example: ["Open the login form", "Submit credentials", "Verify the dashboard loads"].
Each step must be a single actionable sub-goal. If the objective cannot be grounded in
the page, respond with a single-element array whose string starts with "Error:".`

const actionSystemPrompt = `You are a web automation agent controlling a browser. Decide the
single next action toward the current step objective. Respond with a JSON object only:
{
  "action": "click" | "type" | "select" | "finish" | "fail",
  "selector": "CSS selector, required for click/type/select",
  "text": "text to type, required for type (may be empty)",
  "value": "option value, required for select",
  "reasoning": "one short sentence"
}
Prefer the selector provided with an element; otherwise construct a robust CSS selector
from its tag and attributes. Use "finish" once the step objective is satisfied and
"fail" when you are stuck or the step cannot be completed.`

// promptElement is the compact element shape embedded in prompts. Text is
// clamped harder than in the snapshot to keep prompts small.
type promptElement struct {
	Tag        string            `json:"tag"`
	Selector   string            `json:"selector,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`
	Options    []browser.Option  `json:"options,omitempty"`
}

// promptAttrs is the attribute subset worth spending tokens on.
var promptAttrs = []string{"id", "name", "aria-label", "placeholder", "role", "type", "href", "data-testid"}

const promptTextLimit = 100

func compactDOM(dom []browser.Element) string {
	if len(dom) == 0 {
		return "(no interactive elements observed)"
	}
	compact := make([]promptElement, 0, len(dom))
	for _, el := range dom {
		attrs := map[string]string{}
		for _, k := range promptAttrs {
			if v := el.Attributes[k]; v != "" {
				attrs[k] = v
			}
		}
		compact = append(compact, promptElement{
			Tag:        el.Tag,
			Selector:   el.Selector,
			Attributes: attrs,
			Text:       clampText(el.Text, promptTextLimit),
			Options:    el.Options,
		})
	}
	data, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return "(snapshot unavailable)"
	}
	return string(data)
}

// clampText truncates s to at most max bytes on a rune boundary, so multibyte
// element text never turns into invalid UTF-8 inside a prompt.
func clampText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func compactHistory(history []agent.Entry) string {
	if len(history) == 0 {
		return "(no actions taken yet)"
	}
	if len(history) > agent.HistoryWindow {
		history = history[len(history)-agent.HistoryWindow:]
	}
	var b strings.Builder
	for _, e := range history {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func buildPlanPrompt(objective, startURL string, dom []browser.Element, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\nStart URL: %s\n\n", objective, startURL)
	fmt.Fprintf(&b, "Interactive elements on the starting page:\n%s\n", compactDOM(dom))
	if summary != "" {
		fmt.Fprintf(&b, "\nPage content summary:\n%s\n", summary)
	}
	b.WriteString("\nProduce the plan as a JSON array of step strings.")
	return b.String()
}

func buildActionPrompt(stepObjective string, history []agent.Entry, dom []browser.Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current step objective: %s\n\n", stepObjective)
	fmt.Fprintf(&b, "Interactive elements on the current page:\n%s\n\n", compactDOM(dom))
	fmt.Fprintf(&b, "Recent history (most recent last):\n%s\n", compactHistory(history))
	b.WriteString("Respond with the next action as a JSON object.")
	return b.String()
}
