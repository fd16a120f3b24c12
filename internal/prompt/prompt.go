// Package prompt assembles the model input from a system template, retrieved
// knowledge context, and conversation history. Assembly is deterministic:
// identical inputs always produce an identical prompt.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/complai/complai/internal/session"
)

// ErrTemplateUnavailable indicates the named template could not be loaded.
// Callers fall back to the built-in template.
var ErrTemplateUnavailable = errors.New("template unavailable")

// ContextPlaceholder is replaced with retrieved knowledge text.
const ContextPlaceholder = "{{context}}"

// DefaultTemplateName is the template the assembler uses unless configured
// otherwise.
const DefaultTemplateName = "compliance"

// noContextText fills the placeholder when retrieval was skipped or empty.
const noContextText = "No additional context available."

// defaultTemplate is the built-in fallback so the service works without a
// prompt directory.
const defaultTemplate = `You are a compliance assistant specializing in regulatory frameworks such as GDPR and CSRD.

Answer using the provided context where relevant. If the context does not cover the question, say so rather than inventing citations. Be precise about article and section numbers.

Context:
` + ContextPlaceholder

// Template is a named system prompt body.
type Template struct {
	Name string
	Text string
}

// Provider loads templates by name.
type Provider interface {
	Fetch(ctx context.Context, name string) (Template, error)
}

// FileProvider loads templates from <dir>/<name>.prompt files.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider over the given directory.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Fetch reads the template file. A missing or unreadable file maps to
// ErrTemplateUnavailable.
func (p *FileProvider) Fetch(_ context.Context, name string) (Template, error) {
	if p.dir == "" {
		return Template{}, fmt.Errorf("%w: no template directory configured", ErrTemplateUnavailable)
	}
	// Reject names that escape the directory.
	if name != filepath.Base(name) || name == "" || name == "." {
		return Template{}, fmt.Errorf("%w: invalid template name %q", ErrTemplateUnavailable, name)
	}

	path := filepath.Join(p.dir, name+".prompt")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Template{}, fmt.Errorf("%w: %s not found", ErrTemplateUnavailable, name)
		}
		return Template{}, fmt.Errorf("%w: reading %s: %v", ErrTemplateUnavailable, name, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Template{}, fmt.Errorf("%w: %s is empty", ErrTemplateUnavailable, name)
	}
	return Template{Name: name, Text: text}, nil
}

// StaticProvider serves fixed templates from memory. Used in tests and as
// the built-in fallback.
type StaticProvider map[string]string

func (p StaticProvider) Fetch(_ context.Context, name string) (Template, error) {
	text, ok := p[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s not found", ErrTemplateUnavailable, name)
	}
	return Template{Name: name, Text: text}, nil
}

// Prompt is the assembled model input. Messages holds the conversation
// window followed by the current query as the final human turn.
type Prompt struct {
	System   string
	Messages []session.Message
}

// Assembler builds prompts using a provider with built-in fallback.
type Assembler struct {
	provider Provider
	name     string
}

// NewAssembler creates an Assembler. A nil provider always uses the built-in
// template; an empty name uses DefaultTemplateName.
func NewAssembler(provider Provider, templateName string) *Assembler {
	if templateName == "" {
		templateName = DefaultTemplateName
	}
	return &Assembler{provider: provider, name: templateName}
}

// Build assembles the prompt for one turn. kbContext may be empty. The
// provider being unavailable is not an error; the built-in template is used
// instead. History is not mutated.
func (a *Assembler) Build(ctx context.Context, query string, history []session.Message, kbContext string) (Prompt, error) {
	if strings.TrimSpace(query) == "" {
		return Prompt{}, fmt.Errorf("query is empty")
	}

	text := defaultTemplate
	if a.provider != nil {
		tmpl, err := a.provider.Fetch(ctx, a.name)
		switch {
		case err == nil:
			text = tmpl.Text
		case errors.Is(err, ErrTemplateUnavailable):
			// fall through to built-in
		default:
			return Prompt{}, fmt.Errorf("fetching template %q: %w", a.name, err)
		}
	}

	system := fillContext(text, kbContext)

	messages := make([]session.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, session.Message{Role: session.RoleHuman, Content: query})

	return Prompt{System: system, Messages: messages}, nil
}

// fillContext substitutes the context placeholder, appending a context
// section when the template carries no placeholder.
func fillContext(text, kbContext string) string {
	if kbContext == "" {
		kbContext = noContextText
	}
	if strings.Contains(text, ContextPlaceholder) {
		return strings.ReplaceAll(text, ContextPlaceholder, kbContext)
	}
	return text + "\n\nContext:\n" + kbContext
}
