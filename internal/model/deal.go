package model

import "time"

// Deal is an opportunity in a pipeline. Stage must be a value of the
// deal_stage enumeration.
type Deal struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	CompanyID        *int64    `json:"company_id,omitempty" db:"company_id"`
	PrimaryContactID *int64    `json:"primary_contact_id,omitempty" db:"primary_contact_id"`
	PipelineID       int64     `json:"pipeline_id" db:"pipeline_id"`
	Stage            string    `json:"stage" db:"stage"`
	Timezone         string    `json:"timezone,omitempty" db:"timezone"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Note is free text attached to a deal.
type Note struct {
	ID        int64     `json:"id" db:"id"`
	DealID    int64     `json:"deal_id" db:"deal_id"`
	ContactID *int64    `json:"contact_id,omitempty" db:"contact_id"`
	CompanyID *int64    `json:"company_id,omitempty" db:"company_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pipeline is an ordered list of stage labels. Labels are free text chosen by
// the pipeline owner and need not be deal_stage values.
type Pipeline struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Stages    []string  `json:"stages" db:"stages"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
