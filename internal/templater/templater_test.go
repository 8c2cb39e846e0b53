package templater

import (
	"testing"

	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestDirNameRendersKnownFields(t *testing.T) {
	comic := domain.Comic{ID: 42, Title: "My Gallery", Type: "doujinshi", Artists: []string{"a", "b"}}

	assert.Equal(t, "My Gallery (42)", DirName(comic, "{title} ({id})"))
	assert.Equal(t, "doujinshi/My Gallery", DirName(comic, "{type}/{title}"))
	assert.Equal(t, "a, b", DirName(comic, "{artists}"))
}

func TestDirNameFallsBackToDefaultWhenEmpty(t *testing.T) {
	comic := domain.Comic{ID: 1, Title: "T"}
	assert.Equal(t, DirName(comic, domain.DefaultDirFmt), DirName(comic, ""))
}

func TestDirNameIsPureFunctionOfComicAndTemplate(t *testing.T) {
	comic := domain.Comic{ID: 7, Title: "Repeat"}
	a := DirName(comic, "{title} ({id})")
	b := DirName(comic, "{title} ({id})")
	assert.Equal(t, a, b)
}

func TestDirNameSanitisesEachComponent(t *testing.T) {
	comic := domain.Comic{ID: 1, Title: "Bad:Title/Name"}
	result := DirName(comic, "{title}")
	assert.NotContains(t, result, ":")
}
