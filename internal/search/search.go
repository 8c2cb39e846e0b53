package search

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"hitomidl/internal/domain"
	"hitomidl/internal/gallery"
	"hitomidl/internal/sharedhttp"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	galleriesIndexRoot = "galleriesindex"
	pageSize           = 25
	pageFanout         = 8
)

// Engine is C4: it resolves a query string into an ordered gallery ID
// list by walking the tag-index B-tree, then pages and resolves those IDs
// into full Comic records through the gallery resolver.
type Engine struct {
	http     *sharedhttp.Client
	resolver *gallery.Resolver

	mu       sync.Mutex
	sources  map[string]*nodeSource
	versions map[string]versionEntry
	misses   map[string]*bloom.BloomFilter
}

// missEstimate/missFPRate size the per-namespace bloom filter that
// remembers keys a B-tree traversal already confirmed absent, so a
// repeated negative term (common in "-namespace:value" filters reapplied
// across pagination) skips straight to an empty result.
const (
	missEstimate = 50_000
	missFPRate   = 0.01
)

type versionEntry struct {
	version   string
	fetchedAt time.Time
}

const versionTTL = 5 * time.Minute

func New(httpClient *sharedhttp.Client, resolver *gallery.Resolver) *Engine {
	return &Engine{
		http:     httpClient,
		resolver: resolver,
		sources:  make(map[string]*nodeSource),
		versions: make(map[string]versionEntry),
		misses:   make(map[string]*bloom.BloomFilter),
	}
}

// term is one parsed query clause, e.g. "artist:mameroku" or
// "-artist:mameroku".
type term struct {
	namespace string
	value     string
	negate    bool
}

// parseQuery splits a free-text query into its positive and negative
// terms, per §4.4's namespace:value syntax with a default "global"
// namespace.
func parseQuery(query string) []term {
	fields := strings.Fields(query)
	terms := make([]term, 0, len(fields))

	for _, f := range fields {
		t := term{namespace: "global"}
		t.negate = strings.HasPrefix(f, "-")
		if t.negate {
			f = strings.TrimPrefix(f, "-")
		}
		if idx := strings.Index(f, ":"); idx >= 0 {
			t.namespace = f[:idx]
			t.value = f[idx+1:]
		} else {
			t.value = f
		}
		if t.value == "" {
			continue
		}
		terms = append(terms, t)
	}

	return terms
}

// Query resolves query into an ordered gallery ID list, per §4.4 steps
// 1-5: an empty query returns the whole popularity index; otherwise each
// positive term's posting list is intersected and each negative term's
// posting list is subtracted, left to right.
func (e *Engine) Query(ctx context.Context, query string) ([]int, error) {
	terms := parseQuery(query)
	if len(terms) == 0 {
		return e.popularityIndex(ctx)
	}

	var result []int
	haveResult := false
	var deferred []term

	for _, t := range terms {
		if t.negate && !haveResult {
			// A leading negative term has nothing to subtract from yet;
			// defer it until a positive term establishes a base set.
			deferred = append(deferred, t)
			continue
		}

		ids, err := e.lookupTerm(ctx, t)
		if err != nil {
			return nil, err
		}

		if t.negate {
			result = difference(result, ids)
			continue
		}

		if !haveResult {
			result = ids
			haveResult = true
			continue
		}
		result = intersect(result, ids)
	}

	// Re-run any negative terms that preceded every positive term, now that
	// a base set exists.
	if haveResult {
		for _, t := range deferred {
			ids, err := e.lookupTerm(ctx, t)
			if err != nil {
				return nil, err
			}
			result = difference(result, ids)
		}
	}

	return result, nil
}

func (e *Engine) lookupTerm(ctx context.Context, t term) ([]int, error) {
	key := hashTerm(t.value)

	if e.knownMiss(t.namespace, key) {
		return nil, nil
	}

	version, err := e.fieldVersion(ctx, t.namespace)
	if err != nil {
		return nil, err
	}

	indexURL, dataURL := indexURLs(t.namespace, version)
	src := e.nodeSourceFor(indexURL)

	root, err := src.get(ctx, 0)
	if err != nil {
		return nil, err
	}

	k, found, err := bSearch(ctx, src, root, key)
	if err != nil {
		return nil, err
	}
	if !found {
		e.recordMiss(t.namespace, key)
		return nil, nil
	}

	return readPosting(ctx, e.http, dataURL, k)
}

// knownMiss reports whether namespace's bloom filter has already seen
// key confirmed absent, letting a repeated negative term skip the
// byte-range round trip entirely. A false positive only costs a
// redundant B-tree walk, never a correctness violation.
func (e *Engine) knownMiss(namespace string, key []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	filter, ok := e.misses[namespace]
	return ok && filter.Test(key)
}

func (e *Engine) recordMiss(namespace string, key []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filter, ok := e.misses[namespace]
	if !ok {
		filter = bloom.NewWithEstimates(missEstimate, missFPRate)
		e.misses[namespace] = filter
	}
	filter.Add(key)
}

func (e *Engine) nodeSourceFor(indexURL string) *nodeSource {
	e.mu.Lock()
	defer e.mu.Unlock()

	if src, ok := e.sources[indexURL]; ok {
		return src
	}
	src := newNodeSource(e.http, indexURL)
	e.sources[indexURL] = src
	return src
}

// fieldVersion fetches and caches (5-minute TTL) the current index
// version for a tagindex field, per §4.4's version-discovery step.
func (e *Engine) fieldVersion(ctx context.Context, field string) (string, error) {
	root := fmt.Sprintf("tagindex/%s", field)
	return e.discoverVersion(ctx, root)
}

func (e *Engine) discoverVersion(ctx context.Context, root string) (string, error) {
	e.mu.Lock()
	if v, ok := e.versions[root]; ok && time.Since(v.fetchedAt) < versionTTL {
		e.mu.Unlock()
		return v.version, nil
	}
	e.mu.Unlock()

	url := fmt.Sprintf("https://%s/%s/version?_=%d", indexDomain, root, time.Now().UnixMilli())

	resp, err := e.http.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewNetworkError("could not read index version", err)
	}
	version := strings.TrimSpace(string(buf))
	if version == "" {
		return "", domain.NewParseError("index reported an empty version", nil)
	}

	e.mu.Lock()
	e.versions[root] = versionEntry{version: version, fetchedAt: time.Now()}
	e.mu.Unlock()

	return version, nil
}

// popularityIndex implements the default-query branch of §4.4: fetch the
// full galleries JSON list rather than walking a B-tree.
func (e *Engine) popularityIndex(ctx context.Context) ([]int, error) {
	version, err := e.discoverVersion(ctx, galleriesIndexRoot)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/%s/galleries.%s.json", indexDomain, galleriesIndexRoot, version)

	var ids []int
	if err := e.http.GetJSON(ctx, url, &ids); err != nil {
		return nil, err
	}

	return ids, nil
}

// GetPage resolves one PAGE_SIZE-wide slice of ids (1-based page
// numbers) into full Comic records, fetching up to pageFanout galleries
// concurrently, per §4.4's getPage.
func (e *Engine) GetPage(ctx context.Context, ids []int, page int) (domain.SearchResult, error) {
	if page < 1 {
		page = 1
	}

	totalPage := (len(ids) + pageSize - 1) / pageSize
	result := domain.SearchResult{IDs: ids, TotalPage: totalPage, CurrentPage: page}

	start := (page - 1) * pageSize
	if start >= len(ids) {
		return result, nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	slice := ids[start:end]

	comics := make([]domain.Comic, len(slice))
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(pageFanout)

	for i, id := range slice {
		i, id := i, id
		if err := sem.Acquire(gctx, 1); err != nil {
			return domain.SearchResult{}, domain.NewCancelledError("page resolution cancelled")
		}
		g.Go(func() error {
			defer sem.Release(1)
			comic, err := e.resolver.GetComic(gctx, id)
			if err != nil {
				return err
			}
			comics[i] = comic
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.SearchResult{}, err
	}

	result.Comics = comics
	return result, nil
}

// Search resolves query and returns the requested page of results, the
// composition C8 exposes as the `search` command.
func (e *Engine) Search(ctx context.Context, query string, page int) (domain.SearchResult, error) {
	ids, err := e.Query(ctx, query)
	if err != nil {
		return domain.SearchResult{}, err
	}
	return e.GetPage(ctx, ids, page)
}

func intersect(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func difference(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

