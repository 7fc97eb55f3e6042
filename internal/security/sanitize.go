// Package security holds the client-facing gatekeeping used before a form
// submission is accepted: string sanitization and format validation,
// injection detection, a sliding-window rate limiter, a heuristic pattern
// monitor and a batching security event logger.
package security

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"golang.org/x/crypto/blake2b"
)

// DefaultMaxLength caps free-text fields when the caller gives no limit.
const DefaultMaxLength = 5000

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// SanitizeString removes markup, control characters and null bytes from s,
// collapses runs of spaces, trims it and truncates it to maxLen runes.
// Newlines are kept so multi-line descriptions survive.
func SanitizeString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = tagRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return -1
		case r == '<' || r == '>':
			return -1
		case unicode.IsControl(r):
			return -1
		case r == '\u200b' || r == '\ufeff':
			return -1
		}
		return r
	}, s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
		s = strings.TrimSpace(s)
	}
	return s
}

// SanitizeEmail lower-cases and trims an address and drops every character
// that cannot appear in one.
func SanitizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		switch r {
		case '<', '>', '"', '\'', '(', ')', ',', ';', ':', '\\', '[', ']':
			return -1
		}
		return r
	}, s)
}

// SanitizeFields applies SanitizeString to every value. Keys listed in
// limits get their own maximum length.
func SanitizeFields(fields map[string]string, limits map[string]int) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "email" {
			out[k] = SanitizeEmail(v)
			continue
		}
		out[k] = SanitizeString(v, limits[k])
	}
	return out
}

type threatPattern struct {
	name string
	re   *regexp.Regexp
}

var threatPatterns = []threatPattern{
	{"script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script`)},
	{"javascript_uri", regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)},
	{"data_uri_html", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)},
	{"embedded_object", regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg|link|meta|style)\b`)},
	{"sql_union", regexp.MustCompile(`(?i)\bunion\b[\s(]+(all\s+)?select\b`)},
	{"sql_statement", regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate|exec)\b`)},
	{"sql_tautology", regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\d+'?\s*=\s*'?\d+`)},
	{"sql_comment", regexp.MustCompile(`'\s*(--|#|/\*)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f)`)},
	{"null_byte", regexp.MustCompile(`(\x00|%00)`)},
	{"template_injection", regexp.MustCompile(`(\{\{.*\}\}|\$\{.*\})`)},
}

// DetectSecurityThreat reports whether s looks like an injection payload.
// The returned reason names the matching pattern and is meant for the
// security log only.
func DetectSecurityThreat(s string) (bool, string) {
	if s == "" {
		return false, ""
	}
	for _, p := range threatPatterns {
		if p.re.MatchString(s) {
			return true, p.name
		}
	}
	return false, ""
}

// ThreatReport is one field that tripped DetectSecurityThreat.
type ThreatReport struct {
	Field  string
	Reason string
}

// ScanFields runs DetectSecurityThreat over every value and returns the
// offending fields in a stable order.
func ScanFields(fields map[string]string) []ThreatReport {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var reports []ThreatReport
	for _, k := range keys {
		if bad, reason := DetectSecurityThreat(fields[k]); bad {
			reports = append(reports, ThreatReport{Field: k, Reason: reason})
		}
	}
	return reports
}

// ValidateFields fails with common.ErrSecurityViolation when any value
// looks like an injection payload. The error names the first field only.
func ValidateFields(fields map[string]string) error {
	if reports := ScanFields(fields); len(reports) > 0 {
		return fmt.Errorf("%w: field %s", common.ErrSecurityViolation, reports[0].Field)
	}
	return nil
}

var sensitiveKeyParts = []string{"password", "token", "secret", "key", "ssn"}

// MaskSensitive returns a copy of data safe to write to logs: emails,
// phones and names are partially masked and secrets are redacted.
func MaskSensitive(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		lk := strings.ToLower(k)
		s, isString := v.(string)

		switch {
		case containsAny(lk, sensitiveKeyParts):
			out[k] = "[REDACTED]"
		case !isString:
			out[k] = v
		case strings.Contains(lk, "email"):
			out[k] = MaskEmail(s)
		case strings.Contains(lk, "phone"):
			out[k] = MaskPhone(s)
		case strings.Contains(lk, "name") && !strings.Contains(lk, "file"):
			out[k] = maskName(s)
		default:
			out[k] = v
		}
	}
	return out
}

// MaskEmail keeps the first letter of the local part and of the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	tld := ""
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		tld = domain[dot:]
		domain = domain[:dot]
	}
	return local[:1] + "***@" + domain[:1] + "***" + tld
}

// MaskPhone keeps only the last four digits.
func MaskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

func maskName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(s)
	return string(r) + "***"
}

// Fingerprint returns a short, stable, non-reversible identifier for s so
// masked log lines can still be correlated.
func Fingerprint(s string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:6])
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
