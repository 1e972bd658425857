package models

import "time"

// MaxThreadDepth bounds how deep a reply chain may nest.
const MaxThreadDepth = 32

// Comment is a pharmacist (or patient) note on a prescription. ParentID links
// a reply to the comment it answers.
type Comment struct {
	ID             int64     `db:"id" json:"id"`
	PrescriptionID string    `db:"prescription_id" json:"prescription"`
	Content        string    `db:"content" json:"content"`
	AuthorID       int64     `db:"author_id" json:"author"`
	ParentID       *int64    `db:"parent_id" json:"parent_comment"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
