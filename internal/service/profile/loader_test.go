package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadLocalWithYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PersonaFile, "name: Ada Lovelace\ntitle: Analyst\nlinkedin: https://linkedin.com/in/ada\nsuggestions:\n  - What do you build?\nmodel: gpt-4o\n")
	writeFile(t, dir, ProfileTextFile, "PROFILE")
	writeFile(t, dir, SummaryFile, "SUMMARY")

	l := NewLoader(WithGetenv(envMap(map[string]string{
		"OWNER_TITLE": "Engineer",
		"SUGGESTIONS": " First? | |Second? ",
	})))

	p, err := l.Load(context.Background(), Source{MeDir: dir})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "Engineer", p.Title, "environment wins over persona.yaml")
	assert.Equal(t, "https://linkedin.com/in/ada", p.LinkedInURL)
	assert.Equal(t, []string{"First?", "Second?"}, p.Suggestions)
	assert.Equal(t, "gpt-4o", p.Model)
	assert.Equal(t, "PROFILE", p.Profile)
	assert.Equal(t, "SUMMARY", p.Summary)
	assert.Empty(t, p.ReferenceLetter)
	assert.False(t, p.HasReferenceLetter())
}

func TestLoadLocalDefaultsModel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ProfileTextFile, "PROFILE")
	writeFile(t, dir, SummaryFile, "SUMMARY")

	p, err := NewLoader(WithGetenv(envMap(nil))).Load(context.Background(), Source{MeDir: dir})
	require.NoError(t, err)
	assert.Equal(t, persona.DefaultModel, p.Model)
}

func TestLoadLocalRequiresProfileAndSummary(t *testing.T) {
	l := NewLoader(WithGetenv(envMap(nil)))

	dir := t.TempDir()
	writeFile(t, dir, SummaryFile, "SUMMARY")
	_, err := l.Load(context.Background(), Source{MeDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile")

	dir = t.TempDir()
	writeFile(t, dir, ProfileTextFile, "PROFILE")
	_, err = l.Load(context.Background(), Source{MeDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary")
}

func TestLoadLocalRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PersonaFile, "name: [unterminated")
	_, err := NewLoader(WithGetenv(envMap(nil))).Load(context.Background(), Source{MeDir: dir})
	assert.Error(t, err)
}

func newSanityServer(t *testing.T, doc map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/data/query/production") {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query().Get("query")
		if r.Method == http.MethodPost {
			var body struct {
				Query string `json:"query"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			query = body.Query
		}
		assert.Contains(t, query, `_type == "profile"`)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if doc != nil {
			for _, key := range []string{"profilePdfUrl", "referencePdfUrl"} {
				if path, ok := doc[key].(string); ok && path != "" {
					doc[key] = srv.URL + path
				}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": doc})
	})
	mux.HandleFunc("/files/profile", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("REMOTE PROFILE"))
	})
	mux.HandleFunc("/files/letter", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("REMOTE LETTER"))
	})
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadSanity(t *testing.T) {
	srv := newSanityServer(t, map[string]any{
		"name":            "Ada Lovelace",
		"title":           "Engineer",
		"linkedinUrl":     "https://linkedin.com/in/ada",
		"summary":         "SUMMARY",
		"suggestions":     []string{"Ask me"},
		"profilePdfUrl":   "/files/profile",
		"referencePdfUrl": "/files/letter",
	})

	l := NewLoader(WithHTTPClient(srv.Client()), WithSanityEndpoint(srv.URL))
	p, err := l.Load(context.Background(), Source{SanityProjectID: "proj", SanityToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "REMOTE PROFILE", p.Profile)
	assert.Equal(t, "REMOTE LETTER", p.ReferenceLetter)
	assert.Equal(t, []string{"Ask me"}, p.Suggestions)
	assert.Equal(t, persona.DefaultModel, p.Model)
}

func TestLoadSanityMissingFields(t *testing.T) {
	srv := newSanityServer(t, map[string]any{"name": "Ada"})
	l := NewLoader(WithHTTPClient(srv.Client()), WithSanityEndpoint(srv.URL))

	_, err := l.Load(context.Background(), Source{SanityProjectID: "proj", SanityToken: "tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profilePdfUrl")
}

func TestLoadSanityNoDocument(t *testing.T) {
	srv := newSanityServer(t, nil)
	l := NewLoader(WithHTTPClient(srv.Client()), WithSanityEndpoint(srv.URL))

	_, err := l.Load(context.Background(), Source{SanityProjectID: "proj", SanityToken: "tok"})
	assert.Error(t, err)
}

func TestParseSuggestions(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseSuggestions("a| |b|"))
	assert.Nil(t, ParseSuggestions(""))
}
