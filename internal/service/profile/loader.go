// Package profile loads the persona from Sanity CMS or from a local directory.
package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sanity "github.com/sanity-io/client-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/digital-twin/backend/internal/extract"
	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
)

const (
	sanityQuery = `*[_type == "profile"][0]{` +
		`name, title, linkedinUrl, websiteUrl, suggestions, summary, model,` +
		`"profilePdfUrl": profilePdf.asset->url,` +
		`"referencePdfUrl": referencePdf.asset->url` +
		`}`
)

// Local file names under the persona directory.
const (
	ProfilePDFFile      = "profile.pdf"
	ProfileTextFile     = "profile.txt"
	ReferenceLetterFile = "reference_letter.pdf"
	SummaryFile         = "summary.txt"
	PersonaFile         = "persona.yaml"
)

// Source selects where the persona comes from.
type Source struct {
	SanityProjectID string
	SanityDataset   string
	SanityToken     string
	MeDir           string
}

// Loader builds a persona from a Source.
type Loader struct {
	client    *http.Client
	extractor *extract.Extractor
	logger    *zap.Logger
	getenv    func(string) string
	// sanityBase, when set, replaces the scheme and host of Sanity API calls.
	sanityBase *url.URL
}

// Option customizes a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for Sanity and document downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.client = c
		l.extractor = extract.New(c)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithSanityEndpoint points Sanity queries at a different base URL.
func WithSanityEndpoint(base string) Option {
	return func(l *Loader) {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			l.sanityBase = u
		}
	}
}

// WithGetenv replaces the environment lookup used for local overrides.
func WithGetenv(fn func(string) string) Option {
	return func(l *Loader) { l.getenv = fn }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	client := &http.Client{Timeout: 30 * time.Second}
	l := &Loader{
		client:    client,
		extractor: extract.New(client),
		logger:    zap.NewNop(),
		getenv:    os.Getenv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the persona. A Sanity project id takes precedence over MeDir.
func (l *Loader) Load(ctx context.Context, src Source) (persona.Persona, error) {
	var (
		p   persona.Persona
		err error
	)
	if src.SanityProjectID != "" {
		p, err = l.loadSanity(ctx, src)
	} else {
		p, err = l.loadLocal(src.MeDir)
	}
	if err != nil {
		return persona.Persona{}, err
	}

	if p.Model == "" {
		p.Model = persona.DefaultModel
	}
	l.logger.Info("persona loaded",
		zap.String("name", p.Name),
		zap.Int("profile_chars", len(p.Profile)),
		zap.Bool("reference_letter", p.HasReferenceLetter()),
		zap.Int("suggestions", len(p.Suggestions)),
	)
	return p, nil
}

type sanityDocument struct {
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	LinkedInURL     string   `json:"linkedinUrl"`
	WebsiteURL      string   `json:"websiteUrl"`
	Suggestions     []string `json:"suggestions"`
	Summary         string   `json:"summary"`
	Model           string   `json:"model"`
	ProfilePDFURL   string   `json:"profilePdfUrl"`
	ReferencePDFURL string   `json:"referencePdfUrl"`
}

func (l *Loader) loadSanity(ctx context.Context, src Source) (persona.Persona, error) {
	dataset := src.SanityDataset
	if dataset == "" {
		dataset = "production"
	}

	opts := []sanity.Option{sanity.WithHTTPClient(l.sanityHTTPClient())}
	if src.SanityToken != "" {
		opts = append(opts, sanity.WithToken(src.SanityToken))
	}
	client, err := sanity.VersionV20210325.NewClient(src.SanityProjectID, dataset, opts...)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("sanity: client: %w", err)
	}

	result, err := client.Query(sanityQuery).Do(ctx)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("sanity: query: %w", err)
	}
	var doc *sanityDocument
	if err := result.Unmarshal(&doc); err != nil {
		return persona.Persona{}, fmt.Errorf("sanity: decode result: %w", err)
	}
	if doc == nil {
		return persona.Persona{}, fmt.Errorf("sanity: no profile document in dataset %q", dataset)
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", doc.Name},
		{"title", doc.Title},
		{"linkedinUrl", doc.LinkedInURL},
		{"summary", doc.Summary},
		{"profilePdfUrl", doc.ProfilePDFURL},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return persona.Persona{}, fmt.Errorf("sanity: profile document missing %s", strings.Join(missing, ", "))
	}

	profileText, err := l.extractor.URL(ctx, doc.ProfilePDFURL)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("sanity: profile pdf: %w", err)
	}

	var letter string
	if doc.ReferencePDFURL != "" {
		letter, err = l.extractor.URL(ctx, doc.ReferencePDFURL)
		if err != nil {
			return persona.Persona{}, fmt.Errorf("sanity: reference pdf: %w", err)
		}
	}

	return persona.Persona{
		Name:            doc.Name,
		Title:           doc.Title,
		LinkedInURL:     doc.LinkedInURL,
		WebsiteURL:      doc.WebsiteURL,
		Suggestions:     doc.Suggestions,
		Summary:         doc.Summary,
		Profile:         profileText,
		ReferenceLetter: letter,
		Model:           doc.Model,
	}, nil
}

func (l *Loader) sanityHTTPClient() *http.Client {
	if l.sanityBase == nil {
		return l.client
	}
	next := l.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   l.client.Timeout,
		Transport: rebaseTransport{base: l.sanityBase, next: next},
	}
}

// rebaseTransport sends every request to base, keeping path and query.
type rebaseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.base.Scheme
	req.URL.Host = t.base.Host
	req.Host = t.base.Host
	return t.next.RoundTrip(req)
}

func (l *Loader) loadLocal(dir string) (persona.Persona, error) {
	if dir == "" {
		dir = "me"
	}

	var p persona.Persona
	data, err := os.ReadFile(filepath.Join(dir, PersonaFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return persona.Persona{}, fmt.Errorf("parse %s: %w", PersonaFile, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return persona.Persona{}, fmt.Errorf("read %s: %w", PersonaFile, err)
	}
	l.applyEnv(&p)

	p.Profile, err = l.extractor.File(filepath.Join(dir, ProfilePDFFile))
	if errors.Is(err, extract.ErrNotFound) {
		p.Profile, err = l.extractor.File(filepath.Join(dir, ProfileTextFile))
	}
	if err != nil {
		return persona.Persona{}, fmt.Errorf("profile: %w", err)
	}

	p.ReferenceLetter, err = l.extractor.File(filepath.Join(dir, ReferenceLetterFile))
	if errors.Is(err, extract.ErrNotFound) {
		p.ReferenceLetter, err = "", nil
	}
	if err != nil {
		return persona.Persona{}, fmt.Errorf("reference letter: %w", err)
	}

	p.Summary, err = l.extractor.File(filepath.Join(dir, SummaryFile))
	if err != nil {
		return persona.Persona{}, fmt.Errorf("summary: %w", err)
	}

	if p.Name == "" {
		l.logger.Warn("persona has no name, set OWNER_NAME or name in " + PersonaFile)
	}
	return p, nil
}

// applyEnv lets environment variables override persona.yaml.
func (l *Loader) applyEnv(p *persona.Persona) {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(l.getenv(key)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&p.Name, "OWNER_NAME")
	set(&p.Title, "OWNER_TITLE")
	set(&p.LinkedInURL, "LINKEDIN_URL")
	set(&p.WebsiteURL, "WEBSITE_URL")
	set(&p.Model, "MODEL", "OPENAI_MODEL")

	if raw := l.getenv("SUGGESTIONS"); strings.TrimSpace(raw) != "" {
		p.Suggestions = ParseSuggestions(raw)
	}
}

// ParseSuggestions splits a '|' separated list, dropping blank entries.
func ParseSuggestions(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, "|") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
