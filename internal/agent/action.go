package agent

import (
	"errors"
	"strings"
)

// ActionKind is the closed set of commands the oracle can issue. Anything the
// oracle returns outside this set decodes to KindUnknown so the dispatch
// switch stays exhaustive.
type ActionKind int

const (
	KindUnknown ActionKind = iota
	KindClick
	KindType
	KindSelect
	KindFinish
	KindFail
)

func (k ActionKind) String() string {
	switch k {
	case KindClick:
		return "click"
	case KindType:
		return "type"
	case KindSelect:
		return "select"
	case KindFinish:
		return "finish"
	case KindFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseKind maps an oracle-supplied action tag to its kind. Unrecognized
// tags become KindUnknown rather than an error.
func ParseKind(s string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "click":
		return KindClick
	case "type":
		return KindType
	case "select":
		return KindSelect
	case "finish":
		return KindFinish
	case "fail":
		return KindFail
	default:
		return KindUnknown
	}
}

// ActionCommand is a single oracle-issued instruction. Text is a pointer so
// that an explicit empty string (a valid payload for type) can be told apart
// from an absent one.
type ActionCommand struct {
	Kind      ActionKind
	RawKind   string // original tag, kept for diagnostics when Kind is KindUnknown
	Selector  string
	Text      *string
	Value     string
	Reasoning string
}

// Validate checks the required fields for the command's kind. A command that
// fails validation must never reach the page surface.
func (c ActionCommand) Validate() error {
	switch c.Kind {
	case KindClick:
		if c.Selector == "" {
			return errors.New("click requires a selector")
		}
	case KindType:
		if c.Selector == "" {
			return errors.New("type requires a selector")
		}
		if c.Text == nil {
			return errors.New("type requires text; empty string is allowed, null is not")
		}
	case KindSelect:
		if c.Selector == "" {
			return errors.New("select requires a selector")
		}
		if c.Value == "" {
			return errors.New("select requires a value")
		}
	}
	return nil
}
