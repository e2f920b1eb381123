package company

import "time"

// CreatedPayload is the immutable snapshot of a company.created event.
type CreatedPayload struct {
	Name     string `json:"name"`
	Activity string `json:"activity,omitempty"`
	URL      string `json:"url,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// UpdatedPayload carries only the fields the command actually changed.
type UpdatedPayload struct {
	Name     *string `json:"name,omitempty"`
	Activity *string `json:"activity,omitempty"`
	URL      *string `json:"url,omitempty"`
}

// DeletedPayload marks the soft-delete instant.
type DeletedPayload struct {
	DeletedAt time.Time `json:"deleted_at"`
}
