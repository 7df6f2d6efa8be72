// Package playbook maps a founder conversation to an industry vertical
// and supplies the probing questions an experienced partner would ask in
// that vertical. The built-in table covers the eight verticals we see
// most; deployments can replace it with a YAML file.
package playbook

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Playbook holds the detection keywords and probing questions for one
// industry vertical.
type Playbook struct {
	Industry  string   `yaml:"industry"`
	Keywords  []string `yaml:"keywords"`
	Questions []string `yaml:"questions"`
}

// Table is an ordered set of playbooks. Order matters: Detect breaks
// keyword-count ties in favor of the earlier entry.
type Table []Playbook

// Detect scores each playbook by how many of its keywords appear in the
// text (case-insensitive substring match) and returns the best match.
// Returns nil when no keyword matches at all.
func (t Table) Detect(text string) *Playbook {
	lower := strings.ToLower(text)

	var best *Playbook
	bestScore := 0
	for i := range t {
		score := 0
		for _, kw := range t[i].Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &t[i]
		}
	}
	return best
}

// PromptFragment renders the playbook as a prompt injection block. The
// questions are guidance for the model, not a script.
func (p *Playbook) PromptFragment() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Industry-Specific Questions (%s)\n", p.Industry)
	fmt.Fprintf(&b, "The founder appears to be in the %s vertical. When probing or deepening, prioritize these industry-specific questions where relevant:\n", p.Industry)
	for i, q := range p.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nUse these as inspiration, adapting to the founder's specific context rather than asking verbatim.")
	return b.String()
}

// Load reads a YAML playbook table from path, replacing the built-ins.
// An empty or structurally invalid file is an error.
func Load(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: read %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("playbook: parse %s: %w", path, err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("playbook: %s defines no playbooks", path)
	}
	for i, p := range t {
		if p.Industry == "" || len(p.Keywords) == 0 || len(p.Questions) == 0 {
			return nil, fmt.Errorf("playbook: entry %d incomplete (industry, keywords and questions are required)", i)
		}
		for j, kw := range p.Keywords {
			t[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	return t, nil
}
