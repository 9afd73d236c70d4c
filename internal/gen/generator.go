// Package gen emits one Go source file per database relation: a thin façade
// over the generic Relation with the relation's metadata triple and a Fkeys
// alias map. User code written between the sentinel markers survives
// regeneration.
package gen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/relata-io/relata/internal/relation"
)

// Sentinel markers delimiting preserved user regions.
const (
	MarkerBegin = "//>>> PLACE YOUR CODE BELOW THIS LINE. DO NOT REMOVE THIS LINE!"
	MarkerEnd   = "//<<< PLACE YOUR CODE ABOVE THIS LINE. DO NOT REMOVE THIS LINE!"
)

const relationImport = "github.com/relata-io/relata/internal/relation"

// Lister enumerates the relations of a database.
type Lister interface {
	Relations(ctx context.Context, schemas ...string) ([]relation.FQRN, error)
}

// Generator renders relation façades from catalog metadata.
type Generator struct {
	meta   relation.Metadata
	lister Lister
}

// New creates a Generator over the metadata service and relation lister.
func New(meta relation.Metadata, lister Lister) *Generator {
	return &Generator{meta: meta, lister: lister}
}

// Generate writes one source file per relation of the given schemas under
// outDir/<schema>/<relation>.go, preserving user regions of existing files.
func (g *Generator) Generate(ctx context.Context, outDir string, schemas ...string) error {
	fqrns, err := g.lister.Relations(ctx, schemas...)
	if err != nil {
		return err
	}
	for _, fqrn := range fqrns {
		meta, err := g.meta.Relation(ctx, fqrn)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, sanitize(fqrn.Schema), sanitize(fqrn.Name)+".go")
		if err := g.generateOne(meta, path); err != nil {
			return fmt.Errorf("failed to generate %s: %w", path, err)
		}
		log.Info().Str("relation", fqrn.String()).Str("file", path).Msg("Generated relation file")
	}
	return nil
}

func (g *Generator) generateOne(meta *relation.RelationMeta, path string) error {
	rendered, err := render(meta)
	if err != nil {
		return err
	}
	if existing, err := os.ReadFile(path); err == nil {
		rendered = injectRegions(rendered, preservedRegions(string(existing)))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(rendered), 0o644)
}

// preservedRegions extracts the user regions of content in marker order.
func preservedRegions(content string) []string {
	var regions []string
	rest := content
	for {
		begin := strings.Index(rest, MarkerBegin)
		if begin < 0 {
			return regions
		}
		rest = rest[begin+len(MarkerBegin):]
		end := strings.Index(rest, MarkerEnd)
		if end < 0 {
			return regions
		}
		regions = append(regions, strings.Trim(rest[:end], "\n"))
		rest = rest[end+len(MarkerEnd):]
	}
}

// injectRegions re-inserts previously preserved regions into freshly rendered
// content, pairing regions by position.
func injectRegions(content string, regions []string) string {
	if len(regions) == 0 {
		return content
	}
	var b strings.Builder
	rest := content
	for i := 0; ; i++ {
		begin := strings.Index(rest, MarkerBegin)
		if begin < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:begin+len(MarkerBegin)])
		b.WriteString("\n")
		rest = rest[begin+len(MarkerBegin):]
		end := strings.Index(rest, MarkerEnd)
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		if i < len(regions) && regions[i] != "" {
			b.WriteString(regions[i])
			b.WriteString("\n")
		}
		b.WriteString(MarkerEnd)
		rest = rest[end+len(MarkerEnd):]
	}
}

var fileTemplate = template.Must(template.New("relation").Parse(`// Code generated by relata gen. Rerun the command to keep this file in sync
// with the database structure; only the regions between the >>> and <<<
// markers are preserved.
package {{.Package}}

import (
	"context"

	"{{.RelationImport}}"
)

{{.MarkerBegin}}
{{.MarkerEnd}}

// {{.Type}}Fkeys maps attribute aliases to the foreign keys of {{.FQRN}}.
// Fill in aliases to expose keys as named handles; empty aliases are
// ignored. The aliases must be unique and different from any column name.
{{- if .Fkeys}}
// Available keys:
{{- range .Fkeys}}
//	{{.}}
{{- end}}
{{- end}}
var {{.Type}}Fkeys = map[string]string{
	{{.MarkerBegin}}
	{{.MarkerEnd}}
}

// {{.Type}} manipulates the data in the {{.Kind}} {{.FQRN}}.
{{- if .Description}}
//
{{- range .DescriptionLines}}
// {{.}}
{{- end}}
{{- end}}
type {{.Type}} struct {
	*relation.Relation
}

// New{{.Type}} instantiates the relation, optionally constrained with one
// value per named column (nil values are skipped).
func New{{.Type}}(ctx context.Context, m *relation.Model, values map[string]any) (*{{.Type}}, error) {
	r, err := m.Relation(ctx, "{{.QRN}}",
		relation.WithFkeyAliases({{.Type}}Fkeys),
		relation.WithValues(values),
	)
	if err != nil {
		return nil, err
	}
	return &{{.Type}}{r}, nil
}

{{.MarkerBegin}}
{{.MarkerEnd}}
`))

func render(meta *relation.RelationMeta) (string, error) {
	fkeys := make([]string, len(meta.ForeignKeys))
	for i, fk := range meta.ForeignKeys {
		fkeys[i] = fk.Name
	}
	var descLines []string
	if meta.Description != "" {
		descLines = strings.Split(strings.TrimSpace(meta.Description), "\n")
	}
	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, map[string]any{
		"Package":          sanitize(meta.FQRN.Schema),
		"RelationImport":   relationImport,
		"Type":             CamelCase(meta.FQRN.Name),
		"FQRN":             meta.FQRN.String(),
		"QRN":              fmt.Sprintf("%s.%s", meta.FQRN.Schema, meta.FQRN.Name),
		"Kind":             meta.Kind.String(),
		"Fkeys":            fkeys,
		"Description":      meta.Description,
		"DescriptionLines": descLines,
		"MarkerBegin":      MarkerBegin,
		"MarkerEnd":        MarkerEnd,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CamelCase turns a relation name into an exported Go type name.
func CamelCase(name string) string {
	var b strings.Builder
	upper := true
	for _, c := range strings.ToLower(name) {
		if c < 'a' || c > 'z' {
			if c >= '0' && c <= '9' {
				b.WriteRune(c)
			}
			upper = true
			continue
		}
		if upper {
			b.WriteRune(c - 'a' + 'A')
			upper = false
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// sanitize maps a schema or relation name onto a safe path / package element.
func sanitize(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
