package importer

import (
	"strings"

	"github.com/sells-group/crm-cli/internal/phone"
	"github.com/sells-group/crm-cli/internal/sheet"
)

// Field is a target field of a Row.
type Field int

// Row fields. fieldNone marks a column the mapper ignores.
const (
	fieldNone Field = iota
	FieldCompanyName
	FieldDealName
	FieldStage
	FieldNotes
	FieldTimezone
	FieldFirstName
	FieldLastName
	FieldFullName
	FieldEmail
	FieldPhone
)

var fieldNames = map[Field]string{
	fieldNone:        "none",
	FieldCompanyName: "company_name",
	FieldDealName:    "deal_name",
	FieldStage:       "stage",
	FieldNotes:       "notes",
	FieldTimezone:    "timezone",
	FieldFirstName:   "first_name",
	FieldLastName:    "last_name",
	FieldFullName:    "full_name",
	FieldEmail:       "email",
	FieldPhone:       "phone",
}

func (f Field) String() string { return fieldNames[f] }

// Row is one mapped spreadsheet row. Line is the 1-based sheet row number.
type Row struct {
	Line        int
	CompanyName string
	DealName    string
	Stage       string
	Notes       string
	Timezone    string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
}

// IsEmpty reports whether no field carries a value.
func (r Row) IsEmpty() bool {
	return r.CompanyName == "" && r.DealName == "" && r.Stage == "" && r.Notes == "" &&
		r.Timezone == "" && r.FirstName == "" && r.LastName == "" && r.Email == "" && r.Phone == ""
}

// HasContact reports whether the row describes a person.
func (r Row) HasContact() bool {
	return r.FirstName != "" || r.LastName != "" || r.Email != "" || r.Phone != ""
}

// ClassifyColumn maps a header column to the Row field it feeds. Keywords are
// checked first; the color group only decides what a bare "name" column means.
func ClassifyColumn(c sheet.Column) Field {
	n := strings.ToLower(strings.TrimSpace(c.Name))
	switch {
	case containsAny(n, "email", "e-mail"):
		return FieldEmail
	case containsAny(n, "phone", "mobile") || n == "cell" || strings.HasPrefix(n, "cell "):
		return FieldPhone
	case containsAny(n, "stage", "status"):
		return FieldStage
	case containsAny(n, "note", "comment"):
		return FieldNotes
	case containsAny(n, "timezone", "time zone") || n == "tz":
		return FieldTimezone
	case containsAny(n, "first name", "firstname", "given name"):
		return FieldFirstName
	case containsAny(n, "last name", "lastname", "surname", "family name"):
		return FieldLastName
	case containsAny(n, "deal", "opportunity"):
		return FieldDealName
	case containsAny(n, "company", "business", "account", "organization"):
		return FieldCompanyName
	case strings.Contains(n, "name"):
		return classifyName(n, c.Group)
	}
	return fieldNone
}

// classifyName resolves a header that only says "name", optionally qualified.
func classifyName(n string, g sheet.Group) Field {
	switch g {
	case sheet.GroupContact:
		return FieldFullName
	case sheet.GroupDeal:
		return FieldDealName
	case sheet.GroupCompany:
		return FieldCompanyName
	}
	if containsAny(n, "full", "contact", "client", "person") {
		return FieldFullName
	}
	return FieldCompanyName
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Mapper turns worksheet rows into typed Rows using a detected header.
type Mapper struct {
	columns []sheet.Column
	fields  []Field
}

// NewMapper classifies the header's columns once for reuse across rows.
func NewMapper(h *sheet.Header) *Mapper {
	m := &Mapper{columns: h.Columns, fields: make([]Field, len(h.Columns))}
	for i, c := range h.Columns {
		m.fields[i] = ClassifyColumn(c)
	}
	return m
}

// Fields returns the field assigned to each header column, in column order.
func (m *Mapper) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Map builds a Row from cells. It returns false when every field is empty.
func (m *Mapper) Map(cells []sheet.Cell, line int) (Row, bool) {
	b := rowBuilder{}
	for i, col := range m.columns {
		if col.Index >= len(cells) {
			continue
		}
		b.set(m.fields[i], cells[col.Index].Text)
	}
	r := b.build()
	r.Line = line
	return r, !r.IsEmpty()
}

// rowBuilder accumulates field values. The first non-empty value per field
// wins.
type rowBuilder struct {
	values map[Field]string
}

func (b *rowBuilder) set(f Field, raw string) {
	if f == fieldNone {
		return
	}
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	if b.values == nil {
		b.values = make(map[Field]string)
	}
	if _, ok := b.values[f]; ok {
		return
	}
	b.values[f] = v
}

func (b *rowBuilder) build() Row {
	v := b.values
	r := Row{
		CompanyName: v[FieldCompanyName],
		DealName:    v[FieldDealName],
		Stage:       v[FieldStage],
		Notes:       v[FieldNotes],
		Timezone:    v[FieldTimezone],
		FirstName:   v[FieldFirstName],
		LastName:    v[FieldLastName],
		Email:       strings.ToLower(v[FieldEmail]),
		Phone:       phone.Normalize(v[FieldPhone]),
	}
	if full := v[FieldFullName]; full != "" {
		first, last, _ := strings.Cut(full, " ")
		if r.FirstName == "" {
			r.FirstName = first
		}
		if r.LastName == "" {
			r.LastName = strings.TrimSpace(last)
		}
	}
	return r
}
