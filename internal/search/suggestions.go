package search

import (
	"context"
	"fmt"
	"strings"

	"hitomidl/internal/domain"
)

// maxSuggestions bounds the number of completions returned per §4.4's
// "up to N entries".
const maxSuggestions = 20

// GetSearchSuggestions resolves up to maxSuggestions tag-name completions
// for a fragment, per §4.4. A fragment may carry a namespace prefix the
// same way a query term does ("artist:mame"); bare fragments default to
// the "global" namespace.
//
// Unlike the exact-match lookup path, which keys the tag B-tree by
// sha256(term)[:4] and can never recover a plaintext tag name from a
// hash, suggestions are served from a namespace's dedicated suggest
// index: the same B-tree binary layout and byte-range-over-HTTP
// machinery as tagindex (nodeSource, decodeNode, walkPrefix), keyed by
// the raw tag bytes instead of a hash, so a prefix match against its
// leaves yields real candidate tag names.
func (e *Engine) GetSearchSuggestions(ctx context.Context, fragment string) ([]domain.Suggestion, error) {
	if fragment == "" {
		return nil, nil
	}

	namespace, prefix := "global", fragment
	if idx := strings.IndexByte(fragment, ':'); idx >= 0 {
		namespace, prefix = fragment[:idx], fragment[idx+1:]
	}
	if prefix == "" {
		return nil, nil
	}

	version, err := e.discoverVersion(ctx, suggestRoot(namespace))
	if err != nil {
		return nil, err
	}

	indexURL, dataURL := suggestIndexURLs(namespace, version)
	src := e.nodeSourceFor(indexURL)

	root, err := src.get(ctx, 0)
	if err != nil {
		return nil, err
	}

	matches, err := walkPrefix(ctx, src, root, []byte(prefix), maxSuggestions)
	if err != nil {
		return nil, err
	}

	suggestions := make([]domain.Suggestion, 0, len(matches))
	for _, m := range matches {
		count, err := postingCount(ctx, e.http, dataURL, m)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, domain.Suggestion{S: string(m.key), N: namespace, T: count})
	}

	return suggestions, nil
}

func suggestRoot(namespace string) string {
	return "suggestindex/" + namespace
}

func suggestIndexURLs(namespace, version string) (indexURL, dataURL string) {
	base := fmt.Sprintf("https://%s/%s/%s.%s", indexDomain, suggestRoot(namespace), namespace, version)
	return base + ".index", base + ".data"
}
