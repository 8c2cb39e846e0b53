package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentReplacesIllegalCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c", Component(`a<b>c`))
	assert.Equal(t, "a_b", Component(`a/b`))
}

func TestComponentTrimsTrailingDotsAndSpaces(t *testing.T) {
	assert.Equal(t, "title", Component("title. . "))
}

func TestComponentCapsLength(t *testing.T) {
	long := strings.Repeat("a", 500)
	result := Component(long)
	assert.LessOrEqual(t, len(result), maxComponentBytes)
}

func TestComponentNeverEmpty(t *testing.T) {
	assert.Equal(t, "_", Component("..."))
}
