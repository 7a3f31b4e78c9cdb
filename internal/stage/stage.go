// Package stage canonicalizes free-text deal stage labels to the closed set
// of values the deals table accepts.
package stage

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Core sales pipeline stages.
const (
	NotContacted         = "not contacted"
	NoAnswerGatekeeper   = "no answer / gatekeeper"
	DecisionMaker        = "decision maker"
	Nurturing            = "nurturing"
	Interested           = "interested"
	StrategyCallBooked   = "strategy call booked"
	StrategyCallAttended = "strategy call attended"
	ProposalScope        = "proposal / scope"
	ClosedWon            = "closed won"
	ClosedLost           = "closed lost"
)

// Stages used by the account-management and onboarding pipelines.
const (
	Uncontacted   = "uncontacted"
	InContact     = "in contact"
	Discovery     = "discovery"
	FollowUp      = "follow up"
	Qualified     = "qualified"
	Negotiation   = "negotiation"
	OnHold        = "on hold"
	NotInterested = "not interested"
	Onboarding    = "onboarding"
	ActiveClient  = "active client"
	Churned       = "churned"
)

// All lists every stage value in pipeline order. The deal_stage enum in the
// database is created from the same list.
var All = []string{
	NotContacted, NoAnswerGatekeeper, DecisionMaker, Nurturing, Interested,
	StrategyCallBooked, StrategyCallAttended, ProposalScope, ClosedWon, ClosedLost,
	Uncontacted, InContact, Discovery, FollowUp, Qualified, Negotiation,
	OnHold, NotInterested, Onboarding, ActiveClient, Churned,
}

// defaultSynonyms maps normalized variants seen in customer spreadsheets.
// Hyphenated spellings such as "follow-up" normalize to "follow / up" and
// need their own entries.
var defaultSynonyms = map[string]string{
	"new":                    NotContacted,
	"not started":            NotContacted,
	"to contact":             NotContacted,
	"no contact":             NotContacted,
	"cold":                   NotContacted,
	"no answer":              NoAnswerGatekeeper,
	"gatekeeper":             NoAnswerGatekeeper,
	"gk":                     NoAnswerGatekeeper,
	"voicemail":              NoAnswerGatekeeper,
	"left voicemail":         NoAnswerGatekeeper,
	"no / answer":            NoAnswerGatekeeper,
	"dm":                     DecisionMaker,
	"dm reached":             DecisionMaker,
	"spoke to dm":            DecisionMaker,
	"decision maker reached": DecisionMaker,
	"nurture":                Nurturing,
	"long term nurture":      Nurturing,
	"warm":                   Interested,
	"hot":                    Interested,
	"call booked":            StrategyCallBooked,
	"meeting booked":         StrategyCallBooked,
	"booked":                 StrategyCallBooked,
	"strategy call":          StrategyCallBooked,
	"call attended":          StrategyCallAttended,
	"meeting attended":       StrategyCallAttended,
	"attended":               StrategyCallAttended,
	"proposal":               ProposalScope,
	"proposal sent":          ProposalScope,
	"scope":                  ProposalScope,
	"quote":                  ProposalScope,
	"quoted":                 ProposalScope,
	"won":                    ClosedWon,
	"closed / won":           ClosedWon,
	"signed":                 ClosedWon,
	"lost":                   ClosedLost,
	"closed / lost":          ClosedLost,
	"dead":                   ClosedLost,
	"dq":                     ClosedLost,
	"follow / up":            FollowUp,
	"followup":               FollowUp,
	"on / hold":              OnHold,
	"not / interested":       NotInterested,
	"in / contact":           InContact,
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	separatorRe = regexp.MustCompile(`\s*[/\-\x{2013}\x{2014}]\s*`)
)

// Normalize folds case and width, trims, collapses whitespace and rewrites
// "/" and "-" separators (with optional surrounding spaces) to " / ".
func Normalize(label string) string {
	s := norm.NFKC.String(label)
	s = cases.Fold().String(s)
	s = strings.TrimSpace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = separatorRe.ReplaceAllString(s, " / ")
	return strings.TrimSpace(s)
}

// Table is the stage vocabulary a canonicalizer works against.
type Table struct {
	allowed  map[string]struct{}
	order    []string
	synonyms map[string]string
	def      string
}

// NewTable builds a Table. Synonym keys are normalized; synonym targets are
// kept as given and only honored when they are allowed. The default must be
// an allowed value.
func NewTable(allowed []string, synonyms map[string]string, def string) (*Table, error) {
	if len(allowed) == 0 {
		return nil, eris.New("stage: allowed set is empty")
	}
	t := &Table{
		allowed:  make(map[string]struct{}, len(allowed)),
		synonyms: make(map[string]string, len(synonyms)),
		def:      def,
	}
	for _, a := range allowed {
		if _, dup := t.allowed[a]; dup {
			continue
		}
		t.allowed[a] = struct{}{}
		t.order = append(t.order, a)
	}
	for k, v := range synonyms {
		t.synonyms[Normalize(k)] = v
	}
	if !t.IsAllowed(def) {
		return nil, eris.Errorf("stage: default %q is not an allowed stage", def)
	}
	return t, nil
}

// DefaultTable returns the built-in vocabulary with "not contacted" as the
// fallback.
func DefaultTable() *Table {
	t, err := NewTable(All, defaultSynonyms, NotContacted)
	if err != nil {
		panic(err)
	}
	return t
}

// IsAllowed reports whether s is a member of the allowed set.
func (t *Table) IsAllowed(s string) bool {
	_, ok := t.allowed[s]
	return ok
}

// Allowed returns the allowed values in declaration order.
func (t *Table) Allowed() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Default returns the last-resort stage.
func (t *Table) Default() string { return t.def }

// Canonicalize maps an arbitrary label to an allowed stage. When neither the
// label nor its synonym is allowed, the first allowed entry of pipelineStages
// is used, then the table default. The result is never empty and never the
// raw input unless the input is itself an allowed value.
func (t *Table) Canonicalize(label string, pipelineStages []string) string {
	n := Normalize(label)
	if n != "" {
		if t.IsAllowed(n) {
			return n
		}
		if target, ok := t.synonyms[n]; ok && t.IsAllowed(target) {
			return target
		}
	}
	return t.Fallback(pipelineStages)
}

// Fallback returns the first pipeline stage that is an allowed value, or the
// table default.
func (t *Table) Fallback(pipelineStages []string) string {
	for _, ps := range pipelineStages {
		if n := Normalize(ps); t.IsAllowed(n) {
			return n
		}
	}
	return t.def
}
