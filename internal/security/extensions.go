package security

import (
	"path"
	"strings"
)

// commonExtensions are extensions that, when they appear before the final
// one, mark a name like "report.pdf.exe" as a disguised file.
var commonExtensions = map[string]struct{}{
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "csv": {}, "txt": {}, "rtf": {},
	"ppt": {}, "pptx": {}, "jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "tif": {}, "tiff": {},
	"bmp": {}, "webp": {}, "heic": {}, "dwg": {}, "dxf": {}, "dgn": {}, "skp": {}, "rvt": {},
	"zip": {}, "rar": {}, "7z": {}, "xml": {}, "kml": {}, "kmz": {}, "shp": {}, "las": {},
	"laz": {}, "ifc": {}, "mp4": {}, "mov": {}, "html": {}, "htm": {},
	"exe": {}, "bat": {}, "cmd": {}, "com": {}, "scr": {}, "pif": {}, "vbs": {}, "js": {},
	"jar": {}, "msi": {}, "ps1": {}, "sh": {}, "php": {}, "dll": {}, "hta": {},
}

// HasDoubleExtension reports names of the form name.ext1.ext2 where ext1 is
// itself a recognizable file extension.
func HasDoubleExtension(name string) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	base = strings.TrimLeft(base, ".")
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return false
	}
	inner := parts[len(parts)-2]
	_, ok := commonExtensions[inner]
	return ok
}

// IsExecutableName reports extensions that run code on a desktop.
func IsExecutableName(name string) bool {
	_, ok := riskyExtensions[strings.ToLower(path.Ext(name))]
	return ok
}
