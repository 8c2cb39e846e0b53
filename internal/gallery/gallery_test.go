package gallery

import (
	"testing"

	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A file advertising none of the three known image formats is still a
// browsable Comic: normalize only shapes the descriptor, it does not
// reject downloads. download.Manager.CreateDownloadTask is what turns
// this into a fatal ErrNoUsableFormat, and only at task-creation time,
// so a single such gallery can't make a whole search-result page fail.
func TestNormalizeAllowsFileWithNoUsableFormatForBrowsing(t *testing.T) {
	raw := rawGalleryInfo{
		ID:    42,
		Title: "Gallery",
		Files: []rawFile{{Hash: "abc", Name: "1.jpg"}},
	}

	comic, err := normalize(raw)
	require.NoError(t, err)
	assert.False(t, comic.Files[0].HasWebp || comic.Files[0].HasAvif || comic.Files[0].HasJxl)
}

func TestNormalizePromotesArtistsTagsAndLanguages(t *testing.T) {
	raw := rawGalleryInfo{
		ID:      7,
		Title:   "Gallery",
		Artists: []rawNamed{{Artist: "someone"}},
		Tags:    []rawTag{{Tag: "cat", Male: 1, Female: 0}},
		Languages: []rawLanguage{
			{GalleryID: 8, Name: "japanese", LanguageLocalName: "日本語"},
		},
		Files: []rawFile{{Hash: "abc", Name: "1.webp", HasWebp: 1}},
	}

	comic, err := normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, comic.ID)
	assert.Equal(t, []string{"someone"}, comic.Artists)
	assert.Equal(t, []domain.Tag{{Name: "cat", Male: 1, Female: 0}}, comic.Tags)
	assert.Equal(t, 8, comic.Languages[0].GalleryID)
	assert.True(t, comic.Files[0].HasWebp)
}

func TestNormalizeDefaultsEmptyOptionalStrings(t *testing.T) {
	raw := rawGalleryInfo{
		ID:    1,
		Title: "Gallery",
		Files: []rawFile{{Hash: "abc", Name: "1.webp", HasWebp: 1}},
	}

	comic, err := normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "", comic.Language)
	assert.Equal(t, "", comic.LanguageLocalName)
}
