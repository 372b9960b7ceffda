// Package generator renders the source, module manifest and build
// descriptor for a standalone one-route service backing a materialized
// API definition.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/nabilpatel4012/smaapi/internal/schema"
)

// Spec carries everything the generated service needs baked in.
type Spec struct {
	APIID        string
	EndpointPath string
	HTTPMethod   string
	Port         int
	Table        schema.Table
	Body         map[string]schema.FieldSpec
}

// Write renders the service files into dir. Output is deterministic for a
// given Spec so repeated materializations produce identical workspaces.
func Write(dir string, spec Spec) error {
	data, err := templateData(spec)
	if err != nil {
		return err
	}
	files := map[string]*template.Template{
		"main.go":    mainTmpl,
		"go.mod":     modTmpl,
		"Dockerfile": dockerTmpl,
	}
	for name, tmpl := range files {
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

type tmplData struct {
	APIID        string
	EndpointPath string
	HTTPMethod   string
	Port         int
	TableName    string
	DDL          string
	Columns      []string
	Required     []string
	Placeholders string
}

func templateData(spec Spec) (tmplData, error) {
	if spec.EndpointPath == "" {
		return tmplData{}, fmt.Errorf("endpoint path cannot be empty")
	}
	if spec.Port <= 0 {
		return tmplData{}, fmt.Errorf("port must be positive")
	}
	columns := make([]string, 0, len(spec.Body))
	for name := range spec.Body {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return tmplData{
		APIID:        spec.APIID,
		EndpointPath: spec.EndpointPath,
		HTTPMethod:   spec.HTTPMethod,
		Port:         spec.Port,
		TableName:    spec.Table.Name,
		DDL:          spec.Table.CreateDDL(),
		Columns:      columns,
		Required:     schema.RequiredFields(spec.Body),
		Placeholders: strings.Join(placeholders, ", "),
	}, nil
}

var mainTmpl = template.Must(template.New("main").Parse(`package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const tableDDL = ` + "`{{.DDL}}`" + `

var columns = []string{ {{- range $i, $c := .Columns}}{{if $i}}, {{end}}"{{$c}}"{{- end}} }

var required = []string{ {{- range $i, $c := .Required}}{{if $i}}, {{end}}"{{$c}}"{{- end}} }

func main() {
	db, err := sql.Open("pgx", os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if _, err := db.Exec(tableDDL); err != nil {
		log.Fatalf("ensure table: %v", err)
	}

	http.HandleFunc("{{.EndpointPath}}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "{{.HTTPMethod}}" {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		var missing []string
		for _, field := range required {
			if v, ok := body[field]; !ok || v == nil {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
			return
		}
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = body[col]
		}
		query := fmt.Sprintf("INSERT INTO {{.TableName}} (%s) VALUES ({{.Placeholders}}) RETURNING id, created_at",
			strings.Join(columns, ", "))
		var id int64
		var createdAt time.Time
		if err := db.QueryRow(query, args...).Scan(&id, &createdAt); err != nil {
			log.Printf("insert failed: %v", err)
			writeError(w, http.StatusInternalServerError, "insert failed")
			return
		}
		body["id"] = id
		body["created_at"] = createdAt
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	})

	addr := ":{{.Port}}"
	log.Printf("api {{.APIID}} listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
`))

var modTmpl = template.Must(template.New("mod").Parse(`module smaapi-{{.APIID}}

go 1.24.0

require github.com/jackc/pgx/v5 v5.7.5
`))

var dockerTmpl = template.Must(template.New("dockerfile").Parse(`FROM golang:1.24-alpine AS build
WORKDIR /src
COPY . .
RUN go mod tidy && CGO_ENABLED=0 go build -o /bin/service .

FROM alpine:3.20
COPY --from=build /bin/service /bin/service
EXPOSE {{.Port}}
ENTRYPOINT ["/bin/service"]
`))
