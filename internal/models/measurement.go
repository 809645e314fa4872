package models

import (
	"strings"
	"time"
)

// Category is the measurement family a record belongs to
type Category string

const (
	CategoryTOC          Category = "toc"
	CategoryPH           Category = "ph"
	CategoryConductivity Category = "conductividad"
	CategoryPhysicochem  Category = "fisicoquimica"
	CategoryMicrobiology Category = "microbiologia"
)

// Categories lists every supported category in display order
var Categories = []Category{
	CategoryTOC,
	CategoryPH,
	CategoryConductivity,
	CategoryPhysicochem,
	CategoryMicrobiology,
}

// ParseCategory resolves a user supplied category name (case and surrounding
// whitespace are ignored)
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", &UnsupportedCategoryError{Category: raw}
}

func (c Category) String() string {
	return string(c)
}

// Measurement is the canonical stored unit. ID and CreatedAt are assigned by
// storage and are zero until the record has been persisted.
type Measurement struct {
	ID         int64     `json:"id" db:"id"`
	Category   Category  `json:"category" db:"category"`
	SubType    *string   `json:"sub_type,omitempty" db:"sub_type"`
	Point      string    `json:"point" db:"point"`
	Parameter  *string   `json:"parameter,omitempty" db:"parameter"`
	MeasuredOn time.Time `json:"measured_on" db:"measured_on"`
	Value      float64   `json:"value" db:"value"`
	Note       *string   `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Stored reports whether storage has assigned an identity
func (m *Measurement) Stored() bool {
	return m.ID != 0
}

// CategoryStatistics is the summary returned for one category
type CategoryStatistics struct {
	Category          Category `json:"category" db:"-"`
	Total             int      `json:"total" db:"total"`
	Average           *float64 `json:"average" db:"average"`
	Maximum           *float64 `json:"maximum" db:"maximum"`
	Minimum           *float64 `json:"minimum" db:"minimum"`
	StandardDeviation *float64 `json:"standard_deviation" db:"standard_deviation"`
}
