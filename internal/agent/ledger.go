package agent

import "time"

// HistoryWindow is how many trailing ledger entries oracle implementations
// forward for context. The orchestrator always hands over the full ledger;
// the window bounds prompt size, not the authoritative record.
const HistoryWindow = 5

// Status classifies the result of a ledger entry.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusFailedByOracle Status = "failed_by_oracle"
)

// EntryKind distinguishes dispatched actions from run milestones.
type EntryKind string

const (
	EntryAction       EntryKind = "action"
	EntryNavigation   EntryKind = "navigation"
	EntryPlan         EntryKind = "plan"
	EntryStepComplete EntryKind = "step_complete"
	EntryRunComplete  EntryKind = "run_complete"
)

// Entry is one immutable record in the run's audit trail. Action entries echo
// the command they record; milestone entries carry a detail string instead.
type Entry struct {
	Kind      EntryKind `json:"kind"`
	Status    Status    `json:"status"`
	Step      string    `json:"step,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Action    string    `json:"action,omitempty"`
	Selector  string    `json:"selector,omitempty"`
	Text      *string   `json:"text,omitempty"`
	Value     string    `json:"value,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the append-only history of one run. It has a single writer (the
// orchestrator) and is only read as a snapshot, so it needs no locking.
type Ledger struct {
	entries []Entry
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records an entry, stamping the time if the caller left it zero.
func (l *Ledger) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the full history.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns a copy of the last n entries. The bounded window is what
// gets forwarded to the oracle; the full ledger remains the authoritative
// record.
func (l *Ledger) Recent(n int) []Entry {
	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}
