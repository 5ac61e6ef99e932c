package persona

// Persona captures the identity and background text the assistant speaks for.
// It is loaded once at start and treated as read-only afterwards.
type Persona struct {
	Name            string   `json:"name" yaml:"name"`
	Title           string   `json:"title" yaml:"title"`
	LinkedInURL     string   `json:"linkedinUrl" yaml:"linkedin"`
	WebsiteURL      string   `json:"websiteUrl,omitempty" yaml:"website,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Summary         string   `json:"-" yaml:"-"`
	Profile         string   `json:"-" yaml:"-"`
	ReferenceLetter string   `json:"-" yaml:"-"` // may be empty
	Model           string   `json:"-" yaml:"model,omitempty"`
}

// Profile is the public projection served to the frontend.
type Profile struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	LinkedInURL string   `json:"linkedinUrl"`
	WebsiteURL  string   `json:"websiteUrl,omitempty"`
	Suggestions []string `json:"suggestions"`
}

// DefaultModel is used when neither the content source nor the environment names one.
const DefaultModel = "gpt-4.1-mini"

// Public strips the private text blocks.
func (p Persona) Public() Profile {
	suggestions := append([]string{}, p.Suggestions...)
	return Profile{
		Name:        p.Name,
		Title:       p.Title,
		LinkedInURL: p.LinkedInURL,
		WebsiteURL:  p.WebsiteURL,
		Suggestions: suggestions,
	}
}

// HasReferenceLetter reports whether a reference letter section should be rendered.
func (p Persona) HasReferenceLetter() bool {
	return p.ReferenceLetter != ""
}
