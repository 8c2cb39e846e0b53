// Package gallery implements C3, the gallery resolver: it fetches a
// gallery's JSON descriptor, normalises it into a domain.Comic, and
// enriches it with on-disk state and the rendered dirName.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"hitomidl/internal/config"
	"hitomidl/internal/domain"
	"hitomidl/internal/fsindex"
	"hitomidl/internal/routing"
	"hitomidl/internal/sharedhttp"

	lru "github.com/hashicorp/golang-lru/arc/v2"
)

const galleryURLPrefix = "https://ltn.gold-usergeneratedcontent.net/galleries/"
const assignmentPrefix = "var galleryinfo = "

// Resolver is C3: it turns gallery IDs into enriched Comic records.
type Resolver struct {
	http    *sharedhttp.Client
	routing *routing.Engine
	cfg     *config.Store

	mu    sync.Mutex
	cache *lru.ARCCache[int, domain.Comic]
}

func New(httpClient *sharedhttp.Client, routingEngine *routing.Engine, cfg *config.Store) *Resolver {
	cache, _ := lru.NewARC[int, domain.Comic](256)
	return &Resolver{http: httpClient, routing: routingEngine, cfg: cfg, cache: cache}
}

// GetComic fetches and normalises gallery id's descriptor, per §4.3.
func (r *Resolver) GetComic(ctx context.Context, id int) (domain.Comic, error) {
	if cached, ok := r.lookupCache(id); ok {
		return r.enrich(cached), nil
	}

	resp, err := r.http.Get(ctx, fmt.Sprintf("%s%d.js", galleryURLPrefix, id))
	if err != nil {
		return domain.Comic{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Comic{}, domain.NewNetworkError("could not read gallery descriptor", err)
	}

	jsonStr := strings.TrimPrefix(strings.TrimSpace(string(body)), assignmentPrefix)

	var raw rawGalleryInfo
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		snippet := jsonStr
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return domain.Comic{}, domain.NewParseError(fmt.Sprintf("malformed gallery descriptor: %s", snippet), err)
	}

	comic, err := normalize(raw)
	if err != nil {
		return domain.Comic{}, err
	}

	r.storeCache(comic)

	return r.enrich(comic), nil
}

// SyncedComic re-derives the on-disk state of an already-fetched comic
// without refetching the descriptor, per §4.3.
func (r *Resolver) SyncedComic(comic domain.Comic) domain.Comic {
	return r.enrich(comic)
}

// CoverBytes fetches the cover image (the first file) in the
// config-preferred format, falling back in declared order, per §4.3.
func (r *Resolver) CoverBytes(ctx context.Context, comic domain.Comic) ([]byte, error) {
	if len(comic.Files) == 0 {
		return nil, domain.NewParseError("gallery has no files", nil)
	}

	cfg := r.cfg.Get()
	cover := comic.Files[0]

	format, err := cover.PreferredFormat(domain.ParseDownloadFormat(cfg.DownloadFormat))
	if err != nil {
		return nil, err
	}

	url, err := r.routing.ImageURL(ctx, cover.Hash, format)
	if err != nil {
		return nil, err
	}

	resp, err := r.http.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("could not read cover image", err)
	}
	return buf, nil
}

func (r *Resolver) enrich(comic domain.Comic) domain.Comic {
	cfg := r.cfg.Get()

	isDownloaded, dir := fsindex.Resolve(cfg.DownloadDir, comic, cfg.DirFmt)
	comic.IsDownloaded = isDownloaded
	comic.ComicDownloadDir = dir
	comic.DirName = fsindex.ComicDir("", comic, cfg.DirFmt)

	return comic
}

func (r *Resolver) lookupCache(id int) (domain.Comic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Get(id)
}

func (r *Resolver) storeCache(comic domain.Comic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(comic.ID, comic)
}

// flexInt unmarshals a JSON field that the site sometimes emits as a
// number and sometimes as a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// rawGalleryInfo mirrors the site's gallery descriptor JSON shape before
// normalisation into domain.Comic.
type rawGalleryInfo struct {
	ID                flexInt        `json:"id"`
	Title             string         `json:"title"`
	Language          *string        `json:"language"`
	LanguageLocalName *string        `json:"language_localname"`
	Type              string         `json:"type"`
	Date              string         `json:"date"`
	Artists           []rawNamed     `json:"artists"`
	Groups            []rawNamed     `json:"groups"`
	Parodys           []rawNamed     `json:"parodys"`
	Characters        []rawNamed     `json:"characters"`
	Tags              []rawTag       `json:"tags"`
	Related           []int          `json:"related"`
	Languages         []rawLanguage  `json:"languages"`
	Files             []rawFile      `json:"files"`
}

type rawNamed struct {
	Artist    string `json:"artist"`
	Group     string `json:"group"`
	Parody    string `json:"parody"`
	Character string `json:"character"`
}

func (n rawNamed) value() string {
	for _, v := range []string{n.Artist, n.Group, n.Parody, n.Character} {
		if v != "" {
			return v
		}
	}
	return ""
}

type rawTag struct {
	Tag    string  `json:"tag"`
	Male   flexInt `json:"male"`
	Female flexInt `json:"female"`
}

type rawLanguage struct {
	GalleryID         flexInt `json:"galleryid"`
	Name              string  `json:"name"`
	LanguageLocalName string  `json:"language_localname"`
}

type rawFile struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	HasAvif int    `json:"hasavif"`
	HasWebp int    `json:"haswebp"`
	HasJxl  int    `json:"hasjxl"`
}

func normalize(raw rawGalleryInfo) (domain.Comic, error) {
	comic := domain.Comic{
		ID:       int(raw.ID),
		Title:    raw.Title,
		Type:     raw.Type,
		Date:     raw.Date,
		Related:  raw.Related,
	}

	if raw.Language != nil {
		comic.Language = *raw.Language
	}
	if raw.LanguageLocalName != nil {
		comic.LanguageLocalName = *raw.LanguageLocalName
	}

	for _, a := range raw.Artists {
		comic.Artists = append(comic.Artists, a.value())
	}
	for _, g := range raw.Groups {
		comic.Groups = append(comic.Groups, g.value())
	}
	for _, p := range raw.Parodys {
		comic.Parodys = append(comic.Parodys, p.value())
	}
	for _, c := range raw.Characters {
		comic.Characters = append(comic.Characters, c.value())
	}

	for _, t := range raw.Tags {
		comic.Tags = append(comic.Tags, domain.Tag{Name: t.Tag, Male: int(t.Male), Female: int(t.Female)})
	}

	for _, l := range raw.Languages {
		comic.Languages = append(comic.Languages, domain.LanguageVariant{
			GalleryID:         int(l.GalleryID),
			Language:          l.Name,
			LanguageLocalName: l.LanguageLocalName,
		})
	}

	for _, f := range raw.Files {
		comic.Files = append(comic.Files, domain.File{
			Hash:    f.Hash,
			Name:    f.Name,
			Width:   f.Width,
			Height:  f.Height,
			HasAvif: f.HasAvif != 0,
			HasWebp: f.HasWebp != 0,
			HasJxl:  f.HasJxl != 0,
		})
	}

	return comic, nil
}
