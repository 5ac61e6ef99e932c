package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
)

func writePersonaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"persona.yaml": "name: Ada Lovelace\ntitle: Engineer\nlinkedin: https://linkedin.com/in/ada\n",
		"profile.txt":  "PROFILE TEXT",
		"summary.txt":  "SUMMARY TEXT",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("SANITY_PROJECT_ID", "")
	t.Setenv("OWNER_NAME", "")
	t.Setenv("OWNER_TITLE", "")
	t.Setenv("LINKEDIN_URL", "")
	t.Setenv("SUGGESTIONS", "")
	t.Setenv("FALLBACK_CONTACT_URL", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPromptCommand(t *testing.T) {
	out := execute(t, "prompt", "--me-dir", writePersonaDir(t))

	assert.True(t, strings.HasPrefix(out, "You are acting as Ada Lovelace."))
	assert.Contains(t, out, "## Profile:\nPROFILE TEXT")
	assert.Contains(t, out, "LinkedIn: https://linkedin.com/in/ada")
	assert.NotContains(t, out, "## Reference Letter:")
}

func TestProfileCommand(t *testing.T) {
	out := execute(t, "profile", "--me-dir", writePersonaDir(t))

	var doc struct {
		Name            string `yaml:"name"`
		LinkedIn        string `yaml:"linkedin"`
		Model           string `yaml:"model"`
		ProfileChars    int    `yaml:"profile_chars"`
		ReferenceLetter bool   `yaml:"reference_letter"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Ada Lovelace", doc.Name)
	assert.Equal(t, "https://linkedin.com/in/ada", doc.LinkedIn)
	assert.Equal(t, persona.DefaultModel, doc.Model)
	assert.Equal(t, len("PROFILE TEXT"), doc.ProfileChars)
	assert.False(t, doc.ReferenceLetter)
	assert.NotContains(t, out, "SUMMARY TEXT")
}
