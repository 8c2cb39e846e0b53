package domain

// Tag is a single descriptive tag attached to a gallery, carrying the
// site's male/female classification flags alongside the display name.
type Tag struct {
	Name   string `json:"name"`
	Male   int    `json:"male"`
	Female int    `json:"female"`
}

// File describes one page image of a gallery as advertised by the
// gallery descriptor, including which formats the origin can serve it in.
type File struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	HasAvif bool   `json:"hasavif"`
	HasWebp bool   `json:"haswebp"`
	HasJxl  bool   `json:"hasjxl"`
}

// LanguageVariant points at a sibling gallery that is the same work
// translated into a different language.
type LanguageVariant struct {
	GalleryID         int    `json:"galleryid"`
	Language          string `json:"language"`
	LanguageLocalName string `json:"language_localname"`
}

// Comic is the fully resolved gallery descriptor: the site's JSON
// payload normalised into typed fields, plus fields C6 derives against
// the current config (IsDownloaded, ComicDownloadDir, DirName).
type Comic struct {
	ID                int               `json:"id"`
	Title             string            `json:"title"`
	Type              string            `json:"type"`
	Language          string            `json:"language"`
	LanguageLocalName string            `json:"language_localname"`
	Artists           []string          `json:"artists"`
	Groups            []string          `json:"groups"`
	Parodys           []string          `json:"parodys"`
	Characters        []string          `json:"characters"`
	Tags              []Tag             `json:"tags"`
	Files             []File            `json:"files"`
	Date              string            `json:"date"`
	Related           []int             `json:"related"`
	Languages         []LanguageVariant `json:"languages"`

	// Derived fields, never present in the upstream payload.
	DirName          string `json:"dirName"`
	IsDownloaded     bool   `json:"isDownloaded"`
	ComicDownloadDir string `json:"comicDownloadDir,omitempty"`
}

// PreferredFormat returns the chosen download format for a file,
// falling back in declared order when the preferred one is unavailable.
// Per the spec's open question, a file advertising none of the three
// known formats is a fatal descriptor error rather than a silent skip.
func (f File) PreferredFormat(preferred DownloadFormat) (string, error) {
	order := []struct {
		name string
		has  bool
	}{
		{"webp", f.HasWebp},
		{"avif", f.HasAvif},
		{"jxl", f.HasJxl},
	}

	if preferredName := preferred.String(); preferredName != "" {
		for _, o := range order {
			if o.name == preferredName && o.has {
				return o.name, nil
			}
		}
	}

	for _, o := range order {
		if o.has {
			return o.name, nil
		}
	}

	return "", ErrNoUsableFormat
}
