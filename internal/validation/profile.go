package validation

import (
	"labdash/internal/models"
)

// Schema selects how a category identifies its sampling site
type Schema string

const (
	// SchemaCoded rows carry a three-digit pu code and a single value
	SchemaCoded Schema = "coded"
	// SchemaPoint rows carry a free-form punto and a named parametro
	SchemaPoint Schema = "point"
)

// Field names as they appear in forms and upload headers
const (
	FieldDate      = "fecha"
	FieldValue     = "dato"
	FieldCode      = "pu"
	FieldPoint     = "punto"
	FieldParameter = "parametro"
	FieldSubType   = "tipo"
	FieldNote      = "nota"
	FieldNotes     = "notas"
	FieldCategory  = "categoria"
)

// DefaultSubType is stored for point-schema rows without a tipo column
const DefaultSubType = "agua"

// Profile is the fixed validation profile of one category
type Profile struct {
	Category models.Category
	Schema   Schema
	Required []string
	Point    PointRule
}

var (
	codedRequired = []string{FieldDate, FieldValue, FieldCode}
	pointRequired = []string{FieldDate, FieldPoint, FieldParameter, FieldValue}
	pointToken    = FreeFormPoint{Key: FieldPoint}
)

var profiles = map[models.Category]Profile{
	models.CategoryTOC:          {Category: models.CategoryTOC, Schema: SchemaCoded, Required: codedRequired, Point: SiteCode},
	models.CategoryPH:           {Category: models.CategoryPH, Schema: SchemaCoded, Required: codedRequired, Point: SiteCode},
	models.CategoryConductivity: {Category: models.CategoryConductivity, Schema: SchemaCoded, Required: codedRequired, Point: SiteCode},
	models.CategoryPhysicochem:  {Category: models.CategoryPhysicochem, Schema: SchemaPoint, Required: pointRequired, Point: pointToken},
	models.CategoryMicrobiology: {Category: models.CategoryMicrobiology, Schema: SchemaPoint, Required: pointRequired, Point: pointToken},
}

// ProfileFor returns the profile of a known category
func ProfileFor(category models.Category) (Profile, error) {
	p, ok := profiles[category]
	if !ok {
		return Profile{}, &models.UnsupportedCategoryError{Category: string(category)}
	}
	return p, nil
}

// LookupProfile parses a raw category name and returns its profile
func LookupProfile(raw string) (Profile, error) {
	category, err := models.ParseCategory(raw)
	if err != nil {
		return Profile{}, err
	}
	return ProfileFor(category)
}

// MissingColumns returns the required fields absent from a header, in
// profile order
func (p Profile) MissingColumns(columns []string) []string {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[NormalizeKey(c)] = struct{}{}
	}

	var missing []string
	for _, field := range p.Required {
		if _, ok := have[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

func (p Profile) missingFields(row RawRow) []string {
	var missing []string
	for _, field := range p.Required {
		if !row.Has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}
