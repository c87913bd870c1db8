package model

import "time"

// Contact provenance tags.
const (
	SourceManual = "manual"
	SourceImport = "import"
	SourceSale   = "sale"
)

type Contact struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
	// Phone is normalized to international digits, no symbols.
	Phone  string `json:"phone"`
	Source string `json:"source"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Template struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
