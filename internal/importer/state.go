package importer

import "go.uber.org/zap"

// State is a step of one import run.
type State string

// Import run states.
const (
	StateIdle             State = "idle"
	StateParsingHeader    State = "parsing_header"
	StateParsingRows      State = "parsing_rows"
	StateWritingCompanies State = "writing_companies"
	StateWritingContacts  State = "writing_contacts"
	StateWritingDeals     State = "writing_deals"
	StateWritingNotes     State = "writing_notes"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// transitions lists the legal successors of each state. In chunked runs a
// chunk may end at any writing step, so every writing state can move on to
// the next chunk's companies step or finish the run.
var transitions = map[State][]State{
	StateIdle:             {StateParsingHeader},
	StateParsingHeader:    {StateParsingRows, StateDone},
	StateParsingRows:      {StateWritingCompanies, StateDone, StateFailed},
	StateWritingCompanies: {StateWritingContacts, StateWritingCompanies, StateDone, StateFailed},
	StateWritingContacts:  {StateWritingDeals, StateWritingCompanies, StateDone, StateFailed},
	StateWritingDeals:     {StateWritingNotes, StateWritingCompanies, StateDone, StateFailed},
	StateWritingNotes:     {StateDone, StateWritingCompanies, StateFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// machine tracks and logs the state of one run.
type machine struct {
	state   State
	history []State
	log     *zap.Logger
}

func newMachine(log *zap.Logger) *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}, log: log}
}

func (m *machine) to(next State) {
	if !CanTransition(m.state, next) {
		m.log.DPanic("invalid import state transition",
			zap.String("from", string(m.state)),
			zap.String("to", string(next)),
		)
	}
	m.log.Debug("import state",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)),
	)
	m.state = next
	m.history = append(m.history, next)
}
