package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var embedded embed.FS

const (
	Market       = "market"
	Tech         = "tech"
	Risk         = "risk"
	UserFeedback = "user_feedback"
	Decision     = "decision"
)

// Fallback is used when a template cannot be found or parsed.
const Fallback = "You are a helpful AI assistant. Analyze the given product idea."

type Template struct {
	Version      string `yaml:"version"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Loader resolves <name>.yaml from an optional override directory, then the
// embedded templates. Results are cached for the life of the process.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Template
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]Template)}
}

// SystemPrompt returns the system prompt for name, or Fallback.
func (l *Loader) SystemPrompt(name string) string {
	return l.Template(name).SystemPrompt
}

func (l *Loader) Template(name string) Template {
	l.mu.RLock()
	t, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return t
	}

	t, err := l.load(name)
	if err != nil {
		slog.Error("prompt template unavailable, using fallback", "template", name, "error", err)
		t = Template{Version: "fallback", SystemPrompt: Fallback}
	}

	l.mu.Lock()
	l.cache[name] = t
	l.mu.Unlock()
	return t
}

func (l *Loader) load(name string) (Template, error) {
	file := name + ".yaml"

	var raw []byte
	var err error
	if l.dir != "" {
		raw, err = os.ReadFile(filepath.Join(l.dir, file))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Template{}, fmt.Errorf("reading %s: %w", file, err)
		}
	}
	if raw == nil {
		raw, err = embedded.ReadFile("templates/" + file)
		if err != nil {
			return Template{}, fmt.Errorf("template %s not found: %w", file, err)
		}
	}

	return parse(raw)
}

// parse accepts either a mapping with a system_prompt key or a bare string.
func parse(raw []byte) (Template, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return Template{}, fmt.Errorf("parsing template: %w", err)
	}
	if len(node.Content) == 0 {
		return Template{}, fmt.Errorf("empty template")
	}

	doc := node.Content[0]
	switch doc.Kind {
	case yaml.ScalarNode:
		return Template{SystemPrompt: doc.Value}, nil
	case yaml.MappingNode:
		var t Template
		if err := doc.Decode(&t); err != nil {
			return Template{}, fmt.Errorf("decoding template: %w", err)
		}
		if t.SystemPrompt == "" {
			return Template{}, fmt.Errorf("template has no system_prompt")
		}
		return t, nil
	}
	return Template{}, fmt.Errorf("unexpected template format")
}
