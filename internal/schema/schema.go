// Package schema turns a declared request-body schema into a concrete
// table definition. Generation is pure: identical inputs always yield an
// identical schema, so materialization can safely run more than once for
// the same API definition.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Type is the closed set of logical field types a body schema may declare.
type Type string

const (
	TypeString   Type = "string"
	TypeNumber   Type = "number"
	TypeInteger  Type = "integer"
	TypeBoolean  Type = "boolean"
	TypeDate     Type = "date"
	TypeDatetime Type = "datetime"
	TypeObject   Type = "object"
	TypeArray    Type = "array"
)

// FieldSpec describes one declared body property. Object and array fields
// recurse through Properties and Items.
type FieldSpec struct {
	Type       Type                 `json:"type" bson:"type"`
	Required   bool                 `json:"required,omitempty" bson:"required,omitempty"`
	MinLength  *int                 `json:"min_length,omitempty" bson:"min_length,omitempty"`
	MaxLength  *int                 `json:"max_length,omitempty" bson:"max_length,omitempty"`
	Items      *FieldSpec           `json:"items,omitempty" bson:"items,omitempty"`
	Properties map[string]FieldSpec `json:"properties,omitempty" bson:"properties,omitempty"`
}

// Field names become column names verbatim, so the charset is restricted
// to what is always a plain SQL identifier. 63 is the Postgres identifier
// limit.
var fieldNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const maxFieldNameLen = 63

// ValidFieldName reports whether name is safe to use as a column name.
func ValidFieldName(name string) bool {
	return len(name) <= maxFieldNameLen && fieldNameRe.MatchString(name)
}

// ValidateBody rejects any declared property whose name is not a valid
// identifier, recursing through object properties and array items.
func ValidateBody(body map[string]FieldSpec) error {
	for name, spec := range body {
		if !ValidFieldName(name) {
			return fmt.Errorf("invalid field name %q: must match %s and be at most %d characters", name, fieldNameRe.String(), maxFieldNameLen)
		}
		if spec.Properties != nil {
			if err := ValidateBody(spec.Properties); err != nil {
				return err
			}
		}
		if spec.Items != nil && spec.Items.Properties != nil {
			if err := ValidateBody(spec.Items.Properties); err != nil {
				return err
			}
		}
	}
	return nil
}

// Column is one synthesized table column.
type Column struct {
	Name        string
	SQLType     string
	Constraints []string
}

// Table is a synthesized table definition.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string
}

const tableNameHashLen = 16

// TableName derives the deterministic table name for an endpoint.
func TableName(ownerID, projectID, endpointPath string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s_%s", ownerID, projectID, endpointPath)))
	return "api_" + hex.EncodeToString(sum[:])[:tableNameHashLen]
}

// Generate synthesizes the table schema for a declared body schema. The
// three implicit columns come first; declared columns follow in sorted
// name order so output is stable.
func Generate(ownerID, projectID, endpointPath string, body map[string]FieldSpec) Table {
	t := Table{
		Name:       TableName(ownerID, projectID, endpointPath),
		PrimaryKey: "id",
		Columns: []Column{
			{Name: "id", SQLType: "BIGSERIAL", Constraints: []string{"PRIMARY KEY"}},
			{Name: "created_at", SQLType: "TIMESTAMPTZ", Constraints: []string{"NOT NULL", "DEFAULT now()"}},
			{Name: "updated_at", SQLType: "TIMESTAMPTZ", Constraints: []string{"NOT NULL", "DEFAULT now()"}},
		},
	}
	names := make([]string, 0, len(body))
	for name := range body {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.Columns = append(t.Columns, column(name, body[name]))
	}
	return t
}

func column(name string, spec FieldSpec) Column {
	col := Column{Name: name, SQLType: sqlType(spec.Type)}
	if spec.Required {
		col.Constraints = append(col.Constraints, "NOT NULL")
	}
	if spec.MinLength != nil {
		col.Constraints = append(col.Constraints, fmt.Sprintf("CHECK (char_length(%s) >= %d)", name, *spec.MinLength))
	}
	if spec.MaxLength != nil {
		col.Constraints = append(col.Constraints, fmt.Sprintf("CHECK (char_length(%s) <= %d)", name, *spec.MaxLength))
	}
	return col
}

// sqlType maps a logical type to its column type. Unrecognized and
// structured types land on TEXT.
func sqlType(t Type) string {
	switch t {
	case TypeString:
		return "TEXT"
	case TypeNumber:
		return "DOUBLE PRECISION"
	case TypeInteger:
		return "INT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate, TypeDatetime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// CreateDDL renders idempotent DDL for the table.
func (t Table) CreateDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, col := range t.Columns {
		b.WriteString("\t")
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(col.SQLType)
		for _, c := range col.Constraints {
			b.WriteString(" ")
			b.WriteString(c)
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// RequiredFields lists declared property names marked required, sorted.
func RequiredFields(body map[string]FieldSpec) []string {
	out := make([]string, 0, len(body))
	for name, spec := range body {
		if spec.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
