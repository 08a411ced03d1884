// Package questions holds the examination question bank and draws the
// randomized per-session question set.
package questions

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category groups questions by what they probe.
type Category string

const (
	CategoryContent Category = "content"
	CategoryProcess Category = "process"
)

// Question is one bank entry. Category is kept as written in the source file;
// matching against the known categories is case-insensitive.
type Question struct {
	Category string `yaml:"category" json:"category"`
	Text     string `yaml:"text" json:"text"`
}

// Bank is the read-only list of questions the sampler draws from.
type Bank []Question

//go:embed default_bank.yaml
var defaultBankYAML []byte

type bankFile struct {
	Questions []Question `yaml:"questions"`
}

// DefaultBank returns the question bank bundled with the binary.
func DefaultBank() (Bank, error) {
	return ParseBank(defaultBankYAML)
}

// LoadBank reads a YAML question bank from path. An empty path selects the
// bundled default bank.
func LoadBank(path string) (Bank, error) {
	if path == "" {
		return DefaultBank()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return ParseBank(data)
}

// ParseBank decodes a YAML document of the form
//
//	questions:
//	  - category: content
//	    text: ...
//
// Entries with blank text are skipped.
func ParseBank(data []byte) (Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	bank := make(Bank, 0, len(f.Questions))
	for _, q := range f.Questions {
		q.Text = strings.TrimSpace(q.Text)
		q.Category = strings.TrimSpace(q.Category)
		if q.Text == "" {
			continue
		}
		bank = append(bank, q)
	}
	return bank, nil
}

// Partition splits the bank into its content and process questions, keeping
// bank order. Questions in any other category are dropped.
func (b Bank) Partition() (content, process []string) {
	for _, q := range b {
		switch {
		case strings.EqualFold(q.Category, string(CategoryContent)):
			content = append(content, q.Text)
		case strings.EqualFold(q.Category, string(CategoryProcess)):
			process = append(process, q.Text)
		}
	}
	return content, process
}
