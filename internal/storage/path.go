package storage

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/xid"
)

const (
	maxSegmentLength = 100
	fallbackFormType = "general"
	fallbackCompany  = "unspecified"
	fallbackLeafName = "file"
)

var (
	multiDot        = regexp.MustCompile(`\.{2,}`)
	multiUnderscore = regexp.MustCompile(`_{2,}`)
)

// lookalikeSeparators render like a slash, a backslash or a dot in most fonts.
var lookalikeSeparators = map[rune]struct{}{
	'\u2044': {}, // fraction slash
	'\u2215': {}, // division slash
	'\u2216': {}, // set minus
	'\u29f8': {}, // big solidus
	'\u29f9': {}, // big reverse solidus
	'\uff0f': {}, // fullwidth solidus
	'\uff3c': {}, // fullwidth reverse solidus
	'\u2024': {}, // one dot leader
	'\u2025': {}, // two dot leader
	'\uff0e': {}, // fullwidth full stop
}

// NewProjectFolder returns a random folder name used when a submission has
// no usable project name.
func NewProjectFolder() string {
	return xid.New().String()
}

// GenerateFilePath returns the storage key for an upload:
//
//	{formType}/{company}/{project}/{relativePath or filename}
//
// Every segment is sanitized on its own so the key never leaves the
// {formType}/{company}/{project}/ prefix. A project that sanitizes to
// nothing gets a random folder name.
func GenerateFilePath(formType, company, project, filename, relativePath string) string {
	ft := SanitizeSegment(formType, maxSegmentLength)
	if ft == "" {
		ft = fallbackFormType
	}
	co := SanitizeSegment(company, maxSegmentLength)
	if co == "" {
		co = fallbackCompany
	}
	pr := SanitizeSegment(project, maxSegmentLength)
	if pr == "" {
		pr = NewProjectFolder()
	}
	return ft + "/" + co + "/" + pr + "/" + SanitizeRelativePath(relativePath, filename)
}

// ProjectPrefix is the folder GenerateFilePath writes under for the given
// names. The project must already be non-empty after sanitizing.
func ProjectPrefix(formType, company, project string) string {
	p := GenerateFilePath(formType, company, project, fallbackLeafName, "")
	return strings.TrimSuffix(p, fallbackLeafName)
}

// SanitizeRelativePath keeps the folder structure of rel, sanitizing each
// segment and dropping the empty ones. It falls back to filename when rel
// is empty.
func SanitizeRelativePath(rel, filename string) string {
	if strings.TrimSpace(rel) == "" {
		rel = filename
	}
	rel = strings.ReplaceAll(rel, "\\", "/")

	raw := strings.Split(rel, "/")
	segs := make([]string, 0, len(raw))
	for i, s := range raw {
		limit := maxSegmentLength
		if i == len(raw)-1 {
			limit = MaxFilenameLength
		}
		if s = SanitizeSegment(s, limit); s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return fallbackLeafName
	}
	return strings.Join(segs, "/")
}

// SanitizeSegment turns s into a single safe key segment: no separators,
// no control characters, no runs of dots, and at most maxLen runes.
func SanitizeSegment(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if _, ok := lookalikeSeparators[r]; ok {
			return '_'
		}
		switch {
		case r == 0 || unicode.IsControl(r):
			return -1
		case r == '.' || r == '-' || r == '_' || r == '(' || r == ')':
			return r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		}
		return '_'
	}, s)
	s = multiDot.ReplaceAllString(s, ".")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")

	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = truncateKeepExt(s, maxLen)
	}
	return s
}

func truncateKeepExt(s string, maxLen int) string {
	ext := path.Ext(s)
	if n := utf8.RuneCountInString(ext); n == 0 || n >= maxLen/2 {
		return strings.Trim(string([]rune(s)[:maxLen]), "._")
	}
	stem := []rune(strings.TrimSuffix(s, ext))
	keep := maxLen - utf8.RuneCountInString(ext)
	return strings.Trim(string(stem[:keep]), "._") + ext
}
