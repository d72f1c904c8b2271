package browser

import (
	"fmt"
	"unicode/utf8"
)

// maxTextLength clamps element text so a noisy page cannot blow up the
// oracle's context.
const maxTextLength = 200

// Element is one interactive element in a simplified DOM snapshot. Only
// visible and enabled elements make it into a snapshot.
type Element struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
	Options    []Option          `json:"options,omitempty"`
	Selector   string            `json:"selector,omitempty"`
}

// Option is one choice inside a <select> element.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// rawElement is the shape produced by the in-page harvest script, before
// filtering and selector derivation happen on the Go side.
type rawElement struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes"`
	Text       string            `json:"text"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
	Options    []Option          `json:"options"`
}

// DeriveSelector picks a stable CSS selector for an element, preferring
// id over name over data-testid. An empty result signals that the oracle
// must construct its own selector from the remaining attributes.
func DeriveSelector(tag string, attrs map[string]string) string {
	if id := attrs["id"]; id != "" {
		return "#" + id
	}
	if name := attrs["name"]; name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	if tid := attrs["data-testid"]; tid != "" {
		return fmt.Sprintf(`[data-testid=%q]`, tid)
	}
	return ""
}

// simplify filters the harvested elements down to the visible, enabled ones
// and fills in the derived selector and text clamp.
func simplify(raw []rawElement) []Element {
	out := make([]Element, 0, len(raw))
	for _, r := range raw {
		if !r.Visible || !r.Enabled {
			continue
		}
		out = append(out, Element{
			Tag:        r.Tag,
			Attributes: r.Attributes,
			Text:       clampText(r.Text, maxTextLength),
			Visible:    r.Visible,
			Enabled:    r.Enabled,
			Options:    r.Options,
			Selector:   DeriveSelector(r.Tag, r.Attributes),
		})
	}
	return out
}

// clampText truncates s to at most max bytes without splitting a rune. Page
// text is frequently multibyte, so a plain byte slice would leave invalid
// UTF-8 in the snapshot.
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
