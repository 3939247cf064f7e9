// Package styles is the conversation style registry.
//
// A style bundles display metadata with the system prompt the assistant is
// instructed with. Resolving an unknown or empty style id yields the default
// prompt. The catalog is embedded and read-only.
package styles

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/giztalk/pkg/account"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Style is one selectable conversation style.
type Style struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Summary     string `yaml:"summary" json:"summary"`
	Description string `yaml:"description" json:"description"`
	Emoji       string `yaml:"emoji" json:"emoji"`
	Color       string `yaml:"color" json:"color"`
	Prompt      string `yaml:"prompt" json:"-"`
}

type catalog struct {
	DefaultPrompt string  `yaml:"default_prompt"`
	Styles        []Style `yaml:"styles"`
}

var (
	defaultPrompt string
	ordered       []Style
	byID          map[string]Style
)

func init() {
	var c catalog
	if err := yaml.Unmarshal(catalogYAML, &c); err != nil {
		panic(fmt.Sprintf("styles: parse catalog: %v", err))
	}
	if c.DefaultPrompt == "" || len(c.Styles) == 0 {
		panic("styles: catalog is empty")
	}
	defaultPrompt = c.DefaultPrompt
	ordered = c.Styles
	byID = make(map[string]Style, len(c.Styles))
	for _, s := range c.Styles {
		byID[s.ID] = s
	}
}

// DefaultPrompt returns the prompt used when no style is selected.
func DefaultPrompt() string {
	return defaultPrompt
}

// Resolve returns the prompt for styleID, or the default prompt when the id
// is empty or unknown.
func Resolve(styleID string) string {
	if s, ok := byID[styleID]; ok {
		return s.Prompt
	}
	return defaultPrompt
}

// Lookup returns the style with the given id.
func Lookup(styleID string) (Style, bool) {
	s, ok := byID[styleID]
	return s, ok
}

// All returns every style in catalog order.
func All() []Style {
	out := make([]Style, len(ordered))
	copy(out, ordered)
	return out
}

// Turn is a previous conversation turn rendered into the prompt.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Personalize appends the non-empty profile fields to prompt.
func Personalize(prompt string, p account.Profile) string {
	if p.Empty() {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nAbout the user you are talking with (use this to tailor your tone and examples, do not recite it):")
	if p.Age != nil {
		b.WriteString("\n- Age: " + strconv.Itoa(*p.Age))
	}
	field := func(name, v string) {
		if v = strings.TrimSpace(v); v != "" {
			b.WriteString("\n- " + name + ": " + v)
		}
	}
	field("Gender", p.Gender)
	field("Personality", p.Personality)
	field("Occupation", p.Occupation)
	field("Characteristics", p.Characteristics)
	return b.String()
}

// WithHistory appends previous turns so the assistant continues the
// conversation instead of starting over.
func WithHistory(prompt string, turns []Turn) string {
	var lines []string
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		switch t.Role {
		case "user":
			lines = append(lines, "사용자: "+content)
		case "assistant":
			lines = append(lines, "AI: "+content)
		}
	}
	if len(lines) == 0 {
		return prompt
	}
	return prompt + "\n\nThis conversation is a continuation. Do not introduce yourself again. Previous conversation:\n" +
		strings.Join(lines, "\n")
}

// Instructions resolves styleID and applies the profile and history.
func Instructions(styleID string, p account.Profile, history []Turn) string {
	return WithHistory(Personalize(Resolve(styleID), p), history)
}
