// Package templater renders a Comic's dirName from the config's dirFmt
// template, per the grammar in §4.6. `/` in the template introduces a
// subdirectory; each resulting component is sanitised independently.
package templater

import (
	"regexp"
	"strconv"
	"strings"

	"hitomidl/internal/domain"
	"hitomidl/internal/sanitize"
)

var fieldPattern = regexp.MustCompile(`{(\w+)}`)

// DirName renders template against comic, returning a `/`-separated
// relative path with one sanitised component per `/` in the template; a
// `/` inside a field value is sanitised like any other illegal character
// rather than starting a new component. dirName is a pure function of
// (comic, dirFmt), per the invariant in §8.
func DirName(comic domain.Comic, template string) string {
	if template == "" {
		template = domain.DefaultDirFmt
	}

	parts := strings.Split(template, "/")
	for i, p := range parts {
		rendered := fieldPattern.ReplaceAllStringFunc(p, func(match string) string {
			field := fieldPattern.FindStringSubmatch(match)[1]
			return renderField(comic, field)
		})
		parts[i] = sanitize.Component(rendered)
	}

	return strings.Join(parts, "/")
}

func renderField(comic domain.Comic, field string) string {
	switch field {
	case "id":
		return strconv.Itoa(comic.ID)
	case "title":
		return comic.Title
	case "type":
		return comic.Type
	case "artists":
		return strings.Join(comic.Artists, ", ")
	case "language":
		return comic.Language
	case "language_localname":
		return comic.LanguageLocalName
	default:
		return "{" + field + "}"
	}
}
