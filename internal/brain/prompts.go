package brain

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	perceptionPrompt = "perception.md"
	decisionPrompt   = "decision.md"
)

// PromptManager loads prompt templates from a directory, falling back to the built-in ones.
// Any other markdown files in the directory (identity.md, soul.md, ...) form a shared preamble.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// preambleOrder fixes the position of well-known persona files; the rest follow by name.
var preambleOrder = map[string]int{
	"identity.md":     1,
	"soul.md":         2,
	"capabilities.md": 3,
	"user.md":         4,
}

// Preamble concatenates the persona files of the directory. A missing directory yields "".
func (pm *PromptManager) Preamble() (string, error) {
	if pm.Directory == "" {
		return "", nil
	}
	entries, err := os.ReadDir(pm.Directory)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := preambleOrder[entries[i].Name()]
		oj, okJ := preambleOrder[entries[j].Name()]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == perceptionPrompt || name == decisionPrompt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", name, err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

func (pm *PromptManager) Perception() (string, error) {
	return pm.template(perceptionPrompt)
}

func (pm *PromptManager) Decision() (string, error) {
	return pm.template(decisionPrompt)
}

func (pm *PromptManager) template(name string) (string, error) {
	body, err := pm.load(name)
	if err != nil {
		return "", err
	}
	preamble, err := pm.Preamble()
	if err != nil {
		return "", err
	}
	if preamble == "" {
		return body, nil
	}
	return preamble + "\n\n---\n\n" + body, nil
}

func (pm *PromptManager) load(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("no built-in prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
