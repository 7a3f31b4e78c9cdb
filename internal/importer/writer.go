package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/store"
)

// Summary counts the records created by a run.
type Summary struct {
	CompaniesCreated int `json:"companiesCreated"`
	ContactsCreated  int `json:"contactsCreated"`
	DealsCreated     int `json:"dealsCreated"`
	NotesCreated     int `json:"notesCreated"`
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.CompaniesCreated += o.CompaniesCreated
	s.ContactsCreated += o.ContactsCreated
	s.DealsCreated += o.DealsCreated
	s.NotesCreated += o.NotesCreated
}

// Writer inserts a Batch in dependency order: companies, contacts, deals,
// notes. Pending references left after each step are written as NULL.
type Writer struct {
	rec *Reconciler
	m   *machine
	log *zap.Logger
}

// Write persists b through s. Steps already committed stay committed when a
// later step fails; the returned Summary counts them.
func (w *Writer) Write(ctx context.Context, s store.Store, b *Batch) (Summary, error) {
	var sum Summary

	w.m.to(StateWritingCompanies)
	if len(b.Companies) > 0 {
		companies := make([]model.Company, len(b.Companies))
		for i, sc := range b.Companies {
			companies[i] = sc.Company
		}
		inserted, err := s.InsertCompanies(ctx, companies)
		if err != nil {
			w.rec.discardCompanies(b)
			w.rec.discardContacts(b)
			return sum, eris.Wrap(err, "importer: write companies")
		}
		sum.CompaniesCreated = len(companies)
		if _, err := w.rec.ResolveCompanies(ctx, s, b, inserted); err != nil {
			w.rec.discardContacts(b)
			return sum, err
		}
	}

	w.m.to(StateWritingContacts)
	if len(b.Contacts) > 0 {
		contacts := make([]model.Contact, len(b.Contacts))
		for i, sc := range b.Contacts {
			c := sc.Contact
			c.CompanyID = RefID(sc.Company)
			contacts[i] = c
		}
		inserted, err := s.InsertContacts(ctx, contacts)
		if err != nil {
			w.rec.discardContacts(b)
			return sum, eris.Wrap(err, "importer: write contacts")
		}
		sum.ContactsCreated = len(contacts)
		if _, err := w.rec.ResolveContacts(ctx, s, b, inserted); err != nil {
			return sum, err
		}
	}

	w.m.to(StateWritingDeals)
	if len(b.Deals) == 0 {
		w.m.to(StateWritingNotes)
		return sum, nil
	}
	deals := make([]model.Deal, len(b.Deals))
	for i, sd := range b.Deals {
		d := sd.Deal
		d.CompanyID = RefID(sd.Company)
		d.PrimaryContactID = RefID(sd.Contact)
		deals[i] = d
	}
	inserted, err := s.InsertDeals(ctx, deals)
	if err != nil {
		return sum, eris.Wrap(err, "importer: write deals")
	}
	sum.DealsCreated = len(deals)

	w.m.to(StateWritingNotes)
	dealIDs := matchDeals(deals, inserted)
	var notes []model.Note
	for i, sd := range b.Deals {
		if sd.Note == "" {
			continue
		}
		id, ok := dealIDs[i]
		if !ok {
			w.log.Warn("deal id not returned, note skipped",
				zap.Int("line", sd.Line),
				zap.String("deal", sd.Deal.Name),
			)
			b.SkippedNotes = append(b.SkippedNotes, sd.Line)
			continue
		}
		notes = append(notes, model.Note{
			DealID:    id,
			ContactID: RefID(sd.Contact),
			CompanyID: RefID(sd.Company),
			Body:      sd.Note,
		})
	}
	if len(notes) > 0 {
		n, err := s.InsertNotes(ctx, notes)
		if err != nil {
			return sum, eris.Wrap(err, "importer: write notes")
		}
		sum.NotesCreated = n
	}
	return sum, nil
}

// matchDeals pairs each returned deal with the first unmatched submitted
// deal of the same name and company. Submitted deals the store did not
// return are absent from the result.
func matchDeals(submitted, returned []model.Deal) map[int]int64 {
	out := make(map[int]int64, len(returned))
	used := make([]bool, len(submitted))
	for _, r := range returned {
		for i, s := range submitted {
			if used[i] || s.Name != r.Name || !sameID(s.CompanyID, r.CompanyID) {
				continue
			}
			used[i] = true
			out[i] = r.ID
			break
		}
	}
	return out
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
