package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/civilforms/internal/security"
)

const (
	// DefaultMaxFileSize is used when the gateway is given no limit.
	DefaultMaxFileSize int64 = 100 << 20
	MaxFilenameLength        = 255
)

// AllowedExtensions are accepted regardless of the reported MIME type.
var AllowedExtensions = setOf(
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv", ".txt", ".rtf", ".ppt", ".pptx",
	".jpg", ".jpeg", ".png", ".gif", ".tif", ".tiff", ".bmp", ".webp", ".heic",
	".dwg", ".dxf", ".dgn", ".skp", ".rvt", ".ifc",
	".xml", ".json", ".geojson", ".kml", ".kmz",
	".shp", ".shx", ".dbf", ".prj", ".las", ".laz",
	".zip", ".7z", ".rar",
	".mp4", ".mov",
)

// AllowedMimeTypes are consulted only when the extension is not allowed.
var AllowedMimeTypes = setOf(
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/rtf", "text/plain", "text/csv",
	"image/jpeg", "image/png", "image/gif", "image/tiff", "image/bmp", "image/webp", "image/heic",
	"image/vnd.dwg", "image/vnd.dxf", "application/acad", "application/dxf",
	"application/xml", "text/xml", "application/json", "application/geo+json",
	"application/vnd.google-earth.kml+xml", "application/vnd.google-earth.kmz",
	"application/zip", "application/x-zip-compressed", "application/x-7z-compressed", "application/vnd.rar",
	"video/mp4", "video/quicktime",
)

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// FileInfo is what a source reports about a file.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}

// ValidationResult is the outcome of ValidateFile. Warning is set for
// accepted files whose MIME type did not match and is meant for logs.
type ValidationResult struct {
	IsValid bool
	Error   string
	Warning string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Error: fmt.Sprintf(format, args...)}
}

// ValidateFile applies size, name and type rules. The extension is the
// primary signal. The MIME type is only consulted when the extension is
// not on the allow-list. Disguised names such as report.pdf.exe and
// executable extensions are rejected whatever the MIME type says.
func ValidateFile(f FileInfo, maxSize int64) ValidationResult {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	name := path.Base(strings.ReplaceAll(f.Name, "\\", "/"))

	switch {
	case strings.TrimSpace(name) == "" || name == "." || name == "/":
		return invalid("file name is empty")
	case f.Size <= 0:
		return invalid("%s is empty", name)
	case f.Size > maxSize:
		return invalid("%s exceeds the maximum size of %d MB", name, maxSize>>20)
	case utf8.RuneCountInString(name) > MaxFilenameLength:
		return invalid("file name is longer than %d characters", MaxFilenameLength)
	case security.HasDoubleExtension(name):
		return invalid("%s has a double extension", name)
	case security.IsExecutableName(name):
		return invalid("%s is not an allowed file type", name)
	}

	ext := strings.ToLower(path.Ext(name))
	mimeType := normalizeMime(f.MimeType)

	if _, ok := AllowedExtensions[ext]; ok {
		if mimeType != "" {
			if _, known := AllowedMimeTypes[mimeType]; !known {
				return ValidationResult{IsValid: true, Warning: fmt.Sprintf("unrecognized MIME type %q for %s", mimeType, ext)}
			}
		}
		return ValidationResult{IsValid: true}
	}

	if _, ok := AllowedMimeTypes[mimeType]; ok {
		return ValidationResult{IsValid: true}
	}
	return invalid("%s is not an allowed file type", name)
}

func normalizeMime(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(m)
}
