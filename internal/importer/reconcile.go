package importer

import (
	"context"
	"maps"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/store"
)

// StagedCompany is a company waiting to be inserted.
type StagedCompany struct {
	Ref     Pending
	Key     string
	Company model.Company
}

// StagedContact is a contact waiting to be inserted. Company may be Pending
// until the companies step resolves it.
type StagedContact struct {
	Ref     Pending
	Key     string
	Company Ref
	Contact model.Contact
}

// StagedDeal is a deal waiting to be inserted, with the note text its row
// carried.
type StagedDeal struct {
	Line    int
	Deal    model.Deal
	Company Ref
	Contact Ref
	Note    string
}

// Batch is one unit of work for the Writer.
type Batch struct {
	Companies []StagedCompany
	Contacts  []StagedContact
	Deals     []StagedDeal

	// SkippedNotes holds the lines whose note was dropped because the store
	// did not return the deal it belongs to. Set by Writer.
	SkippedNotes []int
}

// Reconciler deduplicates companies and contacts across one import run. It
// maps natural keys to references and rewrites Pending references once the
// writer has persisted the staged entities.
type Reconciler struct {
	companies map[string]Ref
	contacts  map[string]Ref
	seq       map[Kind]int
	log       *zap.Logger
}

// NewReconciler returns an empty Reconciler.
func NewReconciler(log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.L()
	}
	return &Reconciler{
		companies: make(map[string]Ref),
		contacts:  make(map[string]Ref),
		seq:       make(map[Kind]int),
		log:       log,
	}
}

// CompanyKey is the dedup key for a company name.
func CompanyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ContactKey is the dedup key for a contact: the email when present,
// otherwise first_last_phone. It is empty when the contact has none of them.
func ContactKey(email, first, last, phone string) string {
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		return e
	}
	if first == "" && last == "" && phone == "" {
		return ""
	}
	return first + "_" + last + "_" + phone
}

func contactKeyOf(c model.Contact) string {
	return ContactKey(c.Email, c.FirstName, c.LastName, c.Phone)
}

// Seed loads every persisted company and contact into the key maps.
func (r *Reconciler) Seed(ctx context.Context, s store.Store) error {
	companies, err := s.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "importer: seed companies")
	}
	for _, c := range companies {
		if k := CompanyKey(c.Name); k != "" {
			if _, ok := r.companies[k]; !ok {
				r.companies[k] = Resolved{ID: c.ID}
			}
		}
	}

	contacts, err := s.ListContacts(ctx)
	if err != nil {
		return eris.Wrap(err, "importer: seed contacts")
	}
	for _, c := range contacts {
		if k := contactKeyOf(c); k != "" {
			if _, ok := r.contacts[k]; !ok {
				r.contacts[k] = Resolved{ID: c.ID}
			}
		}
	}

	r.log.Debug("reconciler seeded",
		zap.Int("companies", len(r.companies)),
		zap.Int("contacts", len(r.contacts)),
	)
	return nil
}

func (r *Reconciler) next(k Kind) Pending {
	p := Pending{Kind: k, Seq: r.seq[k]}
	r.seq[k]++
	return p
}

// Company returns the reference for a company name, staging a new company in
// b when the name has not been seen in this run or the store. An empty name
// yields nil.
func (r *Reconciler) Company(b *Batch, name, timezone string) Ref {
	key := CompanyKey(name)
	if key == "" {
		return nil
	}
	if ref, ok := r.companies[key]; ok {
		return ref
	}
	p := r.next(KindCompany)
	r.companies[key] = p
	b.Companies = append(b.Companies, StagedCompany{
		Ref:     p,
		Key:     key,
		Company: model.Company{Name: strings.TrimSpace(name), Timezone: timezone},
	})
	return p
}

// Contact returns the reference for the row's contact, staging a new contact
// in b when its key is new. Rows without contact fields yield nil.
func (r *Reconciler) Contact(b *Batch, row Row, company Ref) Ref {
	key := ContactKey(row.Email, row.FirstName, row.LastName, row.Phone)
	if key == "" {
		return nil
	}
	if ref, ok := r.contacts[key]; ok {
		return ref
	}
	p := r.next(KindContact)
	r.contacts[key] = p
	b.Contacts = append(b.Contacts, StagedContact{
		Ref:     p,
		Key:     key,
		Company: company,
		Contact: model.Contact{
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
			Phone:     row.Phone,
			Timezone:  row.Timezone,
		},
	})
	return p
}

// ResolveCompanies maps the staged companies in b to the rows the store
// returned, re-querying by name for any the store did not return. Every
// resolved Pending reference in b and in the key map is rewritten. It returns
// the number of companies left unresolved.
func (r *Reconciler) ResolveCompanies(ctx context.Context, s store.Store, b *Batch, inserted []model.Company) (int, error) {
	ids := make(map[string]int64, len(inserted))
	for _, c := range inserted {
		if k := CompanyKey(c.Name); k != "" {
			if _, ok := ids[k]; !ok {
				ids[k] = c.ID
			}
		}
	}

	var missing []string
	for _, sc := range b.Companies {
		if _, ok := ids[sc.Key]; !ok {
			missing = append(missing, sc.Company.Name)
		}
	}
	if len(missing) > 0 {
		r.log.Info("insert returned fewer companies than submitted, re-fetching by name",
			zap.Int("submitted", len(b.Companies)),
			zap.Int("returned", len(inserted)),
		)
		found, err := s.FindCompaniesByName(ctx, missing)
		if err != nil {
			return 0, eris.Wrap(err, "importer: re-fetch companies")
		}
		for _, c := range found {
			if k := CompanyKey(c.Name); k != "" {
				if _, ok := ids[k]; !ok {
					ids[k] = c.ID
				}
			}
		}
	}

	resolved := make(map[Pending]Resolved, len(b.Companies))
	unresolved := 0
	for _, sc := range b.Companies {
		id, ok := ids[sc.Key]
		if !ok {
			unresolved++
			r.log.Warn("company id could not be recovered, references will be null",
				zap.String("company", sc.Company.Name),
				zap.Stringer("ref", sc.Ref),
			)
			continue
		}
		resolved[sc.Ref] = Resolved{ID: id}
		r.companies[sc.Key] = Resolved{ID: id}
	}

	for i := range b.Contacts {
		b.Contacts[i].Company = rewrite(b.Contacts[i].Company, resolved)
	}
	for i := range b.Deals {
		b.Deals[i].Company = rewrite(b.Deals[i].Company, resolved)
	}
	return unresolved, nil
}

// ResolveContacts is ResolveCompanies for contacts. Contacts with an email
// are re-queried in one call; the rest by first name, last name and phone.
func (r *Reconciler) ResolveContacts(ctx context.Context, s store.Store, b *Batch, inserted []model.Contact) (int, error) {
	ids := make(map[string]int64, len(inserted))
	add := func(c model.Contact) {
		if k := contactKeyOf(c); k != "" {
			if _, ok := ids[k]; !ok {
				ids[k] = c.ID
			}
		}
	}
	for _, c := range inserted {
		add(c)
	}

	var emails []string
	var byNamePhone []StagedContact
	for _, sc := range b.Contacts {
		if _, ok := ids[sc.Key]; ok {
			continue
		}
		if sc.Contact.Email != "" {
			emails = append(emails, sc.Contact.Email)
		} else {
			byNamePhone = append(byNamePhone, sc)
		}
	}
	if len(emails)+len(byNamePhone) > 0 {
		r.log.Info("insert returned fewer contacts than submitted, re-fetching by natural key",
			zap.Int("submitted", len(b.Contacts)),
			zap.Int("returned", len(inserted)),
		)
	}
	if len(emails) > 0 {
		found, err := s.FindContactsByEmail(ctx, emails)
		if err != nil {
			return 0, eris.Wrap(err, "importer: re-fetch contacts by email")
		}
		for _, c := range found {
			add(c)
		}
	}
	for _, sc := range byNamePhone {
		c, err := s.FindContactByNamePhone(ctx, sc.Contact.FirstName, sc.Contact.LastName, sc.Contact.Phone)
		if err != nil {
			return 0, eris.Wrap(err, "importer: re-fetch contact by name and phone")
		}
		if c != nil {
			add(*c)
		}
	}

	resolved := make(map[Pending]Resolved, len(b.Contacts))
	unresolved := 0
	for _, sc := range b.Contacts {
		id, ok := ids[sc.Key]
		if !ok {
			unresolved++
			r.log.Warn("contact id could not be recovered, references will be null",
				zap.String("contact", sc.Contact.FullName()),
				zap.Stringer("ref", sc.Ref),
			)
			continue
		}
		resolved[sc.Ref] = Resolved{ID: id}
		r.contacts[sc.Key] = Resolved{ID: id}
	}

	for i := range b.Deals {
		b.Deals[i].Contact = rewrite(b.Deals[i].Contact, resolved)
	}
	return unresolved, nil
}

func rewrite(ref Ref, resolved map[Pending]Resolved) Ref {
	if p, ok := ref.(Pending); ok {
		if res, ok := resolved[p]; ok {
			return res
		}
	}
	return ref
}

// discardCompanies forgets the staged companies of b that were never
// persisted, so a later batch in the same run stages them again.
func (r *Reconciler) discardCompanies(b *Batch) {
	for _, sc := range b.Companies {
		if cur, ok := r.companies[sc.Key]; ok && cur == Ref(sc.Ref) {
			delete(r.companies, sc.Key)
		}
	}
}

func (r *Reconciler) discardContacts(b *Batch) {
	for _, sc := range b.Contacts {
		if cur, ok := r.contacts[sc.Key]; ok && cur == Ref(sc.Ref) {
			delete(r.contacts, sc.Key)
		}
	}
}

// snapshot captures the key maps so a rolled back transaction can undo the
// resolutions made inside it.
type snapshot struct {
	companies map[string]Ref
	contacts  map[string]Ref
}

func (r *Reconciler) snapshot() snapshot {
	return snapshot{companies: maps.Clone(r.companies), contacts: maps.Clone(r.contacts)}
}

func (r *Reconciler) restore(s snapshot) {
	r.companies = s.companies
	r.contacts = s.contacts
}

// CompanyRef returns the current reference for a company name.
func (r *Reconciler) CompanyRef(name string) (Ref, bool) {
	ref, ok := r.companies[CompanyKey(name)]
	return ref, ok
}

// ContactRef returns the current reference for a contact key.
func (r *Reconciler) ContactRef(key string) (Ref, bool) {
	ref, ok := r.contacts[key]
	return ref, ok
}
