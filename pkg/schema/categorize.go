package schema

import "strings"

// Field is one column of a catalog table as reported by the backend.
type Field struct {
	Name         string
	DataType     string
	Description  string
	IsPrimaryKey bool
}

// Category buckets a field for the categorized summary.
type Category string

const (
	CategoryPrimaryKey Category = "primary_key"
	CategoryIdentifier Category = "identifier"
	CategoryName       Category = "name"
	CategoryStatus     Category = "status"
	CategoryDate       Category = "date"
	CategoryMeasure    Category = "measure"
	CategoryOther      Category = "other"
)

// categoryOrder fixes the rendering order of summary lines.
var categoryOrder = []Category{
	CategoryPrimaryKey,
	CategoryIdentifier,
	CategoryName,
	CategoryStatus,
	CategoryDate,
	CategoryMeasure,
	CategoryOther,
}

var numericTypes = map[string]bool{
	"int":     true,
	"bigint":  true,
	"decimal": true,
	"double":  true,
	"float":   true,
	"numeric": true,
}

// categorize assigns a field to exactly one category. The rule is
// deterministic and order-sensitive: the primary-key flag wins first,
// then identifier-like names, then exact display-name/status names, then
// date-like substrings, then declared numeric types, then the catch-all.
// Evaluated once per field at insertion time, never recomputed on read.
func categorize(f Field) Category {
	if f.IsPrimaryKey {
		return CategoryPrimaryKey
	}

	name := strings.ToLower(f.Name)
	switch {
	case strings.HasSuffix(name, "id"),
		strings.Contains(name, "identifier"),
		strings.HasSuffix(name, "code"),
		strings.HasSuffix(name, "scope"):
		return CategoryIdentifier
	}

	switch name {
	case "name", "displayname":
		return CategoryName
	case "status", "state":
		return CategoryStatus
	}

	if strings.Contains(name, "date") || strings.Contains(name, "asat") || strings.Contains(name, "time") {
		return CategoryDate
	}

	if numericTypes[strings.ToLower(f.DataType)] {
		return CategoryMeasure
	}

	return CategoryOther
}
