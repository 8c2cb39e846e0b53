// Package routing implements C2, the URL-derivation engine: it reproduces
// the site's runtime gg.js subdomain/path selection so image URLs can be
// computed locally instead of scraping HTML.
package routing

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"hitomidl/internal/domain"
	"hitomidl/internal/sharedhttp"
)

const (
	ggURL = "https://ltn.gold-usergeneratedcontent.net/gg.js"
	ttl   = 5 * time.Minute
)

var (
	reDefault = regexp.MustCompile(`var\s+o\s*=\s*(\d+)`)
	reSalt    = regexp.MustCompile(`b:\s*'([^']*)'`)
	// Matches `case N:` blocks terminated by `o = 1;` before the next case/default/closing brace.
	reOverride = regexp.MustCompile(`case\s+(\d+):\s*o\s*=\s*1;\s*break;`)
)

// Engine caches the routing table and reproduces the site's subdomain and
// path derivation, per §4.2.
type Engine struct {
	http *sharedhttp.Client

	mu         sync.RWMutex
	table      *domain.RoutingTable
	fetchedAt  time.Time
	inFlight   chan struct{} // non-nil while a reload is in progress; closed on completion
}

func New(http *sharedhttp.Client) *Engine {
	return &Engine{http: http}
}

// ImageURL computes the CDN URL for hash/format using the cached routing
// table, fetching or refreshing it first if the cache is stale, per §4.2.
func (e *Engine) ImageURL(ctx context.Context, hash, format string) (string, error) {
	table, err := e.table2(ctx)
	if err != nil {
		return "", err
	}

	return deriveURL(table, hash, format)
}

// ReloadRouting forces a fresh fetch of gg.js, ignoring the cache TTL.
// Concurrent callers within the same in-flight fetch collapse onto the
// single outstanding request (§4.2, §9 debounce note).
func (e *Engine) ReloadRouting(ctx context.Context) error {
	_, err := e.fetch(ctx, true)
	return err
}

func (e *Engine) table2(ctx context.Context) (*domain.RoutingTable, error) {
	e.mu.RLock()
	fresh := e.table != nil && time.Since(e.fetchedAt) < ttl
	table := e.table
	e.mu.RUnlock()

	if fresh {
		return table, nil
	}

	return e.fetch(ctx, false)
}

// fetch refreshes the routing table. If a fetch is already in flight, the
// caller waits on it instead of issuing a duplicate request (the
// thundering-herd debounce described in §9's open question).
func (e *Engine) fetch(ctx context.Context, force bool) (*domain.RoutingTable, error) {
	e.mu.Lock()
	if e.inFlight != nil {
		wait := e.inFlight
		e.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		e.mu.RLock()
		table, fetchedAt := e.table, e.fetchedAt
		e.mu.RUnlock()

		if table != nil && (!force || time.Since(fetchedAt) < time.Second) {
			return table, nil
		}
		return e.fetch(ctx, force)
	}

	done := make(chan struct{})
	e.inFlight = done
	e.mu.Unlock()

	table, err := e.fetchLocked(ctx)

	e.mu.Lock()
	if err == nil {
		e.table = table
		e.fetchedAt = time.Now()
	}
	e.inFlight = nil
	e.mu.Unlock()
	close(done)

	if err != nil {
		if table := e.cached(); table != nil {
			return table, nil
		}
		return nil, err
	}

	return table, nil
}

func (e *Engine) cached() *domain.RoutingTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

func (e *Engine) fetchLocked(ctx context.Context) (*domain.RoutingTable, error) {
	resp, err := e.http.Get(ctx, ggURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("could not read gg.js", err)
	}

	return parseGGJS(string(buf))
}

func parseGGJS(body string) (*domain.RoutingTable, error) {
	defaultMatch := reDefault.FindStringSubmatch(body)
	if defaultMatch == nil {
		return nil, domain.NewParseError("gg.js missing default offset", nil)
	}
	defaultOffset, err := strconv.Atoi(defaultMatch[1])
	if err != nil {
		return nil, domain.NewParseError("gg.js default offset not numeric", err)
	}

	saltMatch := reSalt.FindStringSubmatch(body)
	if saltMatch == nil {
		return nil, domain.NewParseError("gg.js missing path salt", nil)
	}

	overrides := make(map[int]int)
	for _, m := range reOverride.FindAllStringSubmatch(body, -1) {
		k, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		overrides[k] = 1 - defaultOffset
	}

	return &domain.RoutingTable{
		DefaultSubdomainOffset: defaultOffset,
		Overrides:              overrides,
		PathSalt:               saltMatch[1],
	}, nil
}

// deriveURL reproduces the site's subdomain/path selection exactly, per the
// algorithm and oracle scenarios in §4.2/§8.
func deriveURL(table *domain.RoutingTable, hash, format string) (string, error) {
	if len(hash) < 3 {
		return "", domain.NewParseError("image hash too short", nil)
	}

	last3 := hash[len(hash)-3:]
	k, err := strconv.ParseInt(last3, 16, 32)
	if err != nil {
		return "", domain.NewParseError("image hash is not hex", err)
	}

	offset := table.DefaultSubdomainOffset
	if o, ok := table.Overrides[int(k)]; ok {
		offset = o
	}

	letter := "w"
	if format == "avif" {
		letter = "a"
	}
	subdomain := fmt.Sprintf("%s%d", letter, offset+1)

	path := fmt.Sprintf("%s/%s%d/%s.%s", format, table.PathSalt, k, hash, format)

	return fmt.Sprintf("https://%s.gold-usergeneratedcontent.net/%s", subdomain, path), nil
}
