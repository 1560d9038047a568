package mediastream

import (
	"mime"
	"path/filepath"
	"strings"
)

// videoTypes lists the container formats accepted for registration. System
// MIME tables vary between hosts, so these are pinned.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

// Supported reports whether path has a playable video extension.
func Supported(path string) bool {
	_, ok := videoTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ContentType returns the MIME type served for path.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ctype, ok := videoTypes[ext]; ok {
		return ctype
	}
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}
