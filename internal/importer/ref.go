package importer

import "fmt"

// Kind names the entity a staged reference points at.
type Kind string

// Staged entity kinds.
const (
	KindCompany Kind = "company"
	KindContact Kind = "contact"
)

// Ref is a reference to a company or contact. It is either Pending (staged in
// this run, no persisted id yet) or Resolved (persisted). A nil Ref means the
// row carried no such entity.
type Ref interface {
	isRef()
}

// Pending is a staged entity awaiting its persisted id. Seq is unique per
// Kind within one run.
type Pending struct {
	Kind Kind
	Seq  int
}

// Resolved is a persisted entity id.
type Resolved struct {
	ID int64
}

func (Pending) isRef()  {}
func (Resolved) isRef() {}

// String renders the reference for log output only.
func (p Pending) String() string { return fmt.Sprintf("temp_%s_%d", p.Kind, p.Seq) }

func (r Resolved) String() string { return fmt.Sprintf("%d", r.ID) }

// RefID returns the persisted id behind r, or nil when r is nil or still
// Pending. It is the only way a Ref becomes a foreign key value.
func RefID(r Ref) *int64 {
	if res, ok := r.(Resolved); ok {
		id := res.ID
		return &id
	}
	return nil
}

// IsPending reports whether r is a staged reference without a persisted id.
func IsPending(r Ref) bool {
	_, ok := r.(Pending)
	return ok
}
