package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkPrefixCollectsMatchingLeafKeys(t *testing.T) {
	buf := encodeLeaf(t, map[string]nodeKey{
		"mameroku":   {postingOffset: 0, postingLength: 8},
		"mamehaji":   {postingOffset: 8, postingLength: 8},
		"someoneelse": {postingOffset: 16, postingLength: 8},
	})
	root, err := decodeNode(buf)
	require.NoError(t, err)

	matches, err := walkPrefix(nil, nil, root, []byte("mame"), maxSuggestions)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	var keys []string
	for _, m := range matches {
		keys = append(keys, string(m.key))
	}
	assert.ElementsMatch(t, []string{"mameroku", "mamehaji"}, keys)
}

func TestWalkPrefixRespectsLimit(t *testing.T) {
	buf := encodeLeaf(t, map[string]nodeKey{
		"cat1": {postingOffset: 0, postingLength: 4},
		"cat2": {postingOffset: 4, postingLength: 4},
		"cat3": {postingOffset: 8, postingLength: 4},
	})
	root, err := decodeNode(buf)
	require.NoError(t, err)

	matches, err := walkPrefix(nil, nil, root, []byte("cat"), 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestWalkPrefixReturnsNoMatchesForUnrelatedPrefix(t *testing.T) {
	buf := encodeLeaf(t, map[string]nodeKey{
		"mameroku": {postingOffset: 0, postingLength: 8},
	})
	root, err := decodeNode(buf)
	require.NoError(t, err)

	matches, err := walkPrefix(nil, nil, root, []byte("zzz"), maxSuggestions)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSuggestRootAndIndexURLsNamespaceTheSuggestIndex(t *testing.T) {
	assert.Equal(t, "suggestindex/artist", suggestRoot("artist"))

	indexURL, dataURL := suggestIndexURLs("artist", "1234")
	assert.Equal(t, "https://ltn.gold-usergeneratedcontent.net/suggestindex/artist/artist.1234.index", indexURL)
	assert.Equal(t, "https://ltn.gold-usergeneratedcontent.net/suggestindex/artist/artist.1234.data", dataURL)
}
