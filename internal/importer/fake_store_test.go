package importer

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/store"
)

// fakeStore is an in-memory store.TxStore. hide suppresses returned rows for
// a table the way a row-level security policy does, and fail makes the named
// insert return an error.
type fakeStore struct {
	nextID    int64
	pipelines []model.Pipeline
	companies []model.Company
	contacts  []model.Contact
	deals     []model.Deal
	notes     []model.Note

	hide        map[string]bool
	hideRefetch bool
	fail        map[string]error
	failCall    map[string]int // when set, fail only the n-th call of the named insert
	calls       map[string]int
	txCount     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    100,
		hide:      map[string]bool{},
		fail:      map[string]error{},
		failCall:  map[string]int{},
		calls:     map[string]int{},
		pipelines: []model.Pipeline{{ID: 1, Name: "Default"}},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) check(table string) error {
	f.calls[table]++
	err := f.fail[table]
	if err == nil {
		return nil
	}
	if n, ok := f.failCall[table]; ok && f.calls[table] != n {
		return nil
	}
	return err
}

func (f *fakeStore) ListCompanies(context.Context) ([]model.Company, error) {
	return append([]model.Company(nil), f.companies...), nil
}

func (f *fakeStore) ListContacts(context.Context) ([]model.Contact, error) {
	return append([]model.Contact(nil), f.contacts...), nil
}

func (f *fakeStore) GetPipeline(_ context.Context, id int64) (*model.Pipeline, error) {
	for _, p := range f.pipelines {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListPipelines(context.Context) ([]model.Pipeline, error) {
	return f.pipelines, nil
}

func (f *fakeStore) FindCompaniesByName(_ context.Context, names []string) ([]model.Company, error) {
	if f.hideRefetch {
		return nil, nil
	}
	var out []model.Company
	for _, c := range f.companies {
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(n), c.Name) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FindContactsByEmail(_ context.Context, emails []string) ([]model.Contact, error) {
	if f.hideRefetch {
		return nil, nil
	}
	var out []model.Contact
	for _, c := range f.contacts {
		for _, e := range emails {
			if c.Email != "" && strings.EqualFold(e, c.Email) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FindContactByNamePhone(_ context.Context, first, last, phone string) (*model.Contact, error) {
	if f.hideRefetch {
		return nil, nil
	}
	for _, c := range f.contacts {
		if c.FirstName == first && c.LastName == last && c.Phone == phone {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreatePipeline(_ context.Context, p *model.Pipeline) error {
	p.ID = f.id()
	f.pipelines = append(f.pipelines, *p)
	return nil
}

func (f *fakeStore) InsertCompanies(_ context.Context, in []model.Company) ([]model.Company, error) {
	if err := f.check("companies"); err != nil {
		return nil, err
	}
	var out []model.Company
	for _, c := range in {
		c.ID = f.id()
		f.companies = append(f.companies, c)
		out = append(out, c)
	}
	if f.hide["companies"] {
		return nil, nil
	}
	return out, nil
}

func (f *fakeStore) InsertContacts(_ context.Context, in []model.Contact) ([]model.Contact, error) {
	if err := f.check("contacts"); err != nil {
		return nil, err
	}
	var out []model.Contact
	for _, c := range in {
		c.ID = f.id()
		f.contacts = append(f.contacts, c)
		out = append(out, c)
	}
	if f.hide["contacts"] {
		return nil, nil
	}
	return out, nil
}

func (f *fakeStore) InsertDeals(_ context.Context, in []model.Deal) ([]model.Deal, error) {
	if err := f.check("deals"); err != nil {
		return nil, err
	}
	var out []model.Deal
	for _, d := range in {
		d.ID = f.id()
		f.deals = append(f.deals, d)
		out = append(out, d)
	}
	if f.hide["deals"] {
		return nil, nil
	}
	return out, nil
}

func (f *fakeStore) InsertNotes(_ context.Context, in []model.Note) (int, error) {
	if err := f.check("notes"); err != nil {
		return 0, err
	}
	for _, n := range in {
		n.ID = f.id()
		f.notes = append(f.notes, n)
	}
	return len(in), nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// WithTx snapshots the tables and restores them when fn fails.
func (f *fakeStore) WithTx(_ context.Context, fn func(store.Store) error) error {
	f.txCount++
	companies, contacts, deals, notes := f.companies, f.contacts, f.deals, f.notes
	if err := fn(f); err != nil {
		f.companies, f.contacts, f.deals, f.notes = companies, contacts, deals, notes
		return err
	}
	return nil
}

var errBoom = errors.New("boom")

var _ store.TxStore = (*fakeStore)(nil)

// plainStore hides the WithTx method so the importer sees a non-transactional
// store.
type plainStore struct{ *fakeStore }

func (plainStore) WithTx() {}
