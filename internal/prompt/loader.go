// Package prompt loads the YAML prompt templates used for extraction and
// question answering.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ClaimsSummary = "claims_summary"
	QnA           = "qna"
)

//go:embed templates/*.yml
var builtin embed.FS

// DefaultVars are substituted when the caller does not supply a value.
var DefaultVars = map[string]string{
	"LANG": "English",
}

type templateFile struct {
	Prompt string `yaml:"prompt"`
}

// Loader resolves templates from an optional override directory first and
// falls back to the templates compiled into the binary.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load returns the raw template text for name.
func (l *Loader) Load(name string) (string, error) {
	data, err := l.read(name)
	if err != nil {
		return "", err
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parsing prompt %q: %w", name, err)
	}
	if strings.TrimSpace(tf.Prompt) == "" {
		return "", fmt.Errorf("prompt %q has no prompt key", name)
	}
	return tf.Prompt, nil
}

// Render loads name and replaces every {{KEY}} with its value.
func (l *Loader) Render(name string, vars map[string]string) (string, error) {
	t, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return Substitute(t, vars), nil
}

// Substitute replaces {{KEY}} placeholders. Keys missing from vars use
// DefaultVars; unknown placeholders are left untouched.
func Substitute(t string, vars map[string]string) string {
	for k, v := range DefaultVars {
		if _, ok := vars[k]; !ok {
			t = strings.ReplaceAll(t, "{{"+k+"}}", v)
		}
	}
	for k, v := range vars {
		t = strings.ReplaceAll(t, "{{"+k+"}}", v)
	}
	return t
}

func (l *Loader) read(name string) ([]byte, error) {
	file := name + ".yml"
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, file))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading prompt %q: %w", name, err)
		}
	}
	data, err := builtin.ReadFile("templates/" + file)
	if err != nil {
		return nil, fmt.Errorf("prompt %q not found: %w", name, err)
	}
	return data, nil
}
