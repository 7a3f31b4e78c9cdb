// Package store is the persistence boundary for CRM records.
package store

import (
	"context"

	"github.com/sells-group/crm-cli/internal/model"
)

// Store defines the persistence operations the importer needs.
//
// Insert methods return the rows the database reported back. Row-level
// security can hide inserted rows from the caller, so callers must tolerate
// fewer returned rows than were submitted and recover ids by natural key.
type Store interface {
	// Reads
	ListCompanies(ctx context.Context) ([]model.Company, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
	GetPipeline(ctx context.Context, id int64) (*model.Pipeline, error)
	ListPipelines(ctx context.Context) ([]model.Pipeline, error)

	// Natural-key lookups
	FindCompaniesByName(ctx context.Context, names []string) ([]model.Company, error)
	FindContactsByEmail(ctx context.Context, emails []string) ([]model.Contact, error)
	FindContactByNamePhone(ctx context.Context, first, last, phone string) (*model.Contact, error)

	// Writes
	CreatePipeline(ctx context.Context, p *model.Pipeline) error
	InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error)
	InsertContacts(ctx context.Context, contacts []model.Contact) ([]model.Contact, error)
	InsertDeals(ctx context.Context, deals []model.Deal) ([]model.Deal, error)
	InsertNotes(ctx context.Context, notes []model.Note) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// TxStore is a Store that can run a unit of work in one transaction.
type TxStore interface {
	Store
	// WithTx runs fn against a Store bound to a transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}
