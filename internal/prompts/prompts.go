package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"offerline/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

//go:embed reference/*.md
var referenceFS embed.FS

var templates = template.Must(template.New("prompts").Option("missingkey=zero").ParseFS(templatesFS, "templates/*.tmpl"))

// Input is the business context a prompt is rendered with.
type Input struct {
	BusinessName        string
	BusinessDescription string
	TargetCustomer      string
	PriceRange          string
	Competitors         string
	// Deps holds content of already generated documents. Missing entries are left out of the prompt.
	Deps map[domain.DocType]string
}

// Dep renders a labelled dependency block, or nothing when the document is not available.
func (in Input) Dep(docType, label string) string {
	content := strings.TrimSpace(in.Deps[domain.DocType(docType)])
	if content == "" {
		return ""
	}
	return label + ":\n" + content + "\n\n"
}

type systemInput struct {
	Reference []string
}

// System returns the persona prompt with the embedded reference material.
func System() (string, error) {
	names, err := fs.Glob(referenceFS, "reference/*.md")
	if err != nil {
		return "", err
	}
	sort.Strings(names)
	in := systemInput{}
	for _, name := range names {
		data, err := referenceFS.ReadFile(name)
		if err != nil {
			return "", err
		}
		in.Reference = append(in.Reference, strings.TrimSpace(string(data)))
	}
	return render("system.tmpl", in)
}

// User returns the document-specific prompt for docType.
func User(docType domain.DocType, in Input) (string, error) {
	name := string(docType) + ".tmpl"
	if templates.Lookup(name) == nil {
		return fmt.Sprintf("Generate a %s document.", docType), nil
	}
	return render(name, in)
}

func render(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
