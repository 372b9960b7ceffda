package schema

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func sampleBody() map[string]FieldSpec {
	return map[string]FieldSpec{
		"name":   {Type: TypeString, Required: true, MinLength: intPtr(2), MaxLength: intPtr(64)},
		"price":  {Type: TypeNumber},
		"count":  {Type: TypeInteger, Required: true},
		"active": {Type: TypeBoolean},
		"when":   {Type: TypeDatetime},
	}
}

func TestGenerateIsPure(t *testing.T) {
	a := Generate("owner", "project", "/widgets", sampleBody())
	b := Generate("owner", "project", "/widgets", sampleBody())
	if a.Name != b.Name {
		t.Fatalf("table names differ: %q vs %q", a.Name, b.Name)
	}
	if a.CreateDDL() != b.CreateDDL() {
		t.Fatalf("DDL differs between identical inputs:\n%s\n---\n%s", a.CreateDDL(), b.CreateDDL())
	}
}

func TestTableNameDerivation(t *testing.T) {
	name := TableName("owner", "project", "/widgets")
	if !strings.HasPrefix(name, "api_") {
		t.Fatalf("table name %q missing prefix", name)
	}
	if len(name) != len("api_")+tableNameHashLen {
		t.Fatalf("table name %q has unexpected length", name)
	}
	if TableName("owner", "project", "/gadgets") == name {
		t.Fatal("different endpoint produced identical table name")
	}
}

func TestGenerateImplicitColumnsFirst(t *testing.T) {
	table := Generate("o", "p", "/x", sampleBody())
	want := []string{"id", "created_at", "updated_at"}
	for i, name := range want {
		if table.Columns[i].Name != name {
			t.Fatalf("column %d is %q, want %q", i, table.Columns[i].Name, name)
		}
	}
	if table.PrimaryKey != "id" {
		t.Fatalf("primary key is %q", table.PrimaryKey)
	}
}

func TestGenerateTypeMapping(t *testing.T) {
	table := Generate("o", "p", "/x", map[string]FieldSpec{
		"s":       {Type: TypeString},
		"n":       {Type: TypeNumber},
		"i":       {Type: TypeInteger},
		"b":       {Type: TypeBoolean},
		"d":       {Type: TypeDate},
		"unknown": {Type: Type("blob")},
	})
	byName := map[string]Column{}
	for _, col := range table.Columns {
		byName[col.Name] = col
	}
	cases := map[string]string{
		"s": "TEXT", "n": "DOUBLE PRECISION", "i": "INT",
		"b": "BOOLEAN", "d": "TIMESTAMPTZ", "unknown": "TEXT",
	}
	for name, wantType := range cases {
		if got := byName[name].SQLType; got != wantType {
			t.Errorf("column %s has type %q, want %q", name, got, wantType)
		}
	}
}

func TestGenerateConstraints(t *testing.T) {
	table := Generate("o", "p", "/x", map[string]FieldSpec{
		"name": {Type: TypeString, Required: true, MinLength: intPtr(3), MaxLength: intPtr(10)},
	})
	ddl := table.CreateDDL()
	for _, want := range []string{
		"name TEXT NOT NULL",
		"CHECK (char_length(name) >= 3)",
		"CHECK (char_length(name) <= 10)",
		"CREATE TABLE IF NOT EXISTS",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestValidFieldName(t *testing.T) {
	valid := []string{"name", "_hidden", "price_usd", "a1", "created_by"}
	for _, name := range valid {
		if !ValidFieldName(name) {
			t.Errorf("%q rejected", name)
		}
	}
	invalid := []string{
		"", "Name", "1st", "full name", "name;", "name--",
		"name); DROP TABLE users; --",
		`name" TEXT); DROP TABLE users; --`,
		strings.Repeat("a", 64),
	}
	for _, name := range invalid {
		if ValidFieldName(name) {
			t.Errorf("%q accepted", name)
		}
	}
}

func TestValidateBodyRecursesIntoNestedSpecs(t *testing.T) {
	if err := ValidateBody(sampleBody()); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	nested := map[string]FieldSpec{
		"address": {Type: TypeObject, Properties: map[string]FieldSpec{
			"street; --": {Type: TypeString},
		}},
	}
	if err := ValidateBody(nested); err == nil {
		t.Fatal("nested object property with hostile name accepted")
	}
	items := map[string]FieldSpec{
		"tags": {Type: TypeArray, Items: &FieldSpec{Type: TypeObject, Properties: map[string]FieldSpec{
			"label)": {Type: TypeString},
		}}},
	}
	if err := ValidateBody(items); err == nil {
		t.Fatal("array item property with hostile name accepted")
	}
}

func TestRequiredFieldsSorted(t *testing.T) {
	got := RequiredFields(sampleBody())
	want := []string{"count", "name"}
	if len(got) != len(want) {
		t.Fatalf("required fields %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("required fields %v, want %v", got, want)
		}
	}
}
