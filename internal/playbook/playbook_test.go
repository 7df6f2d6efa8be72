package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string // industry, "" means no match
	}{
		{
			name: "saas pitch",
			text: "We sell a B2B SaaS subscription for enterprise HR teams with an API",
			want: "SaaS / B2B Software",
		},
		{
			name: "healthtech pitch",
			text: "A telehealth platform connecting patients with dental clinics",
			want: "HealthTech / MedTech",
		},
		{
			name: "restaurant pitch",
			text: "We help restaurant kitchens cut food waste on their menu planning",
			want: "Food / Restaurant",
		},
		{
			name: "no industry signal",
			text: "We make things better for everyone everywhere",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Builtin.Detect(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Industry)
		})
	}
}

func TestDetectTieBreaksToEarlierEntry(t *testing.T) {
	table := Table{
		{Industry: "First", Keywords: []string{"alpha"}, Questions: []string{"q"}},
		{Industry: "Second", Keywords: []string{"beta"}, Questions: []string{"q"}},
	}
	got := table.Detect("alpha and beta both appear once")
	require.NotNil(t, got)
	assert.Equal(t, "First", got.Industry)
}

func TestPromptFragment(t *testing.T) {
	p := &Builtin[0]
	frag := p.PromptFragment()
	assert.Contains(t, frag, "SaaS / B2B Software")
	assert.Contains(t, frag, "1. What's your current MRR or ARR?")
	assert.Contains(t, frag, "inspiration")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid table replaces builtins", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
- industry: "Space / Aerospace"
  keywords: [satellite, rocket, ORBITAL]
  questions:
    - "What launch provider are you betting on?"
`), 0o600))

		table, err := Load(path)
		require.NoError(t, err)
		require.Len(t, table, 1)
		assert.Equal(t, "Space / Aerospace", table[0].Industry)
		// Keywords are lowercased on load.
		assert.Equal(t, []string{"satellite", "rocket", "orbital"}, table[0].Keywords)

		got := table.Detect("we build orbital refueling")
		require.NotNil(t, got)
		assert.Equal(t, "Space / Aerospace", got.Industry)
	})

	t.Run("empty file is an error", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("incomplete entry is an error", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
- industry: "No Questions"
  keywords: [x]
  questions: []
`), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
