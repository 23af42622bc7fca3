package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"
	texttemplate "text/template"

	"festreg/internal/domain"
)

//go:embed templates/*
var templateFS embed.FS

// templateRenderer implements domain.EmailTemplateRenderer from the embedded
// templates folder. Each message is three files sharing a prefix:
// <name>_subject.txt, <name>.html and <name>.txt. Parsed templates are cached
// so repeated sends don't re-parse.
type templateRenderer struct {
	mu    sync.Mutex
	html  map[string]*template.Template
	plain map[string]*texttemplate.Template
}

func NewTemplateRenderer() domain.EmailTemplateRenderer {
	return &templateRenderer{
		html:  make(map[string]*template.Template),
		plain: make(map[string]*texttemplate.Template),
	}
}

func (r *templateRenderer) Render(templateName string, data any) (subject, htmlBody, textBody string, err error) {
	subject, err = r.renderPlain(templateName+"_subject.txt", data)
	if err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	htmlBody, err = r.renderHTML(templateName+".html", data)
	if err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	textBody, err = r.renderPlain(templateName+".txt", data)
	if err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	return strings.TrimSpace(subject), htmlBody, textBody, nil
}

func (r *templateRenderer) renderHTML(name string, data any) (string, error) {
	r.mu.Lock()
	t, ok := r.html[name]
	if !ok {
		raw, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		t, err = template.New(name).Parse(string(raw))
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		r.html[name] = t
	}
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *templateRenderer) renderPlain(name string, data any) (string, error) {
	r.mu.Lock()
	t, ok := r.plain[name]
	if !ok {
		raw, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		t, err = texttemplate.New(name).Parse(string(raw))
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		r.plain[name] = t
	}
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
