package drive

import (
	"mime"
	"path"
	"strings"
)

// FolderMimeType marks folders in the remote store.
const FolderMimeType = "application/vnd.google-apps.folder"

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ImageMimeTypes lists the MIME types indexed as images.
func ImageMimeTypes() []string {
	return []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif"}
}

// IsImageMime reports whether mimeType is an indexed image type.
func IsImageMime(mimeType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	return imageMimeTypes[mt]
}

// MimeFromName guesses a MIME type from a file name. Used when the remote
// reports a generic type such as application/octet-stream.
func MimeFromName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if ext == ".jpg" || ext == ".jpeg" {
		return "image/jpeg"
	}
	mt := mime.TypeByExtension(ext)
	mt, _, _ = strings.Cut(mt, ";")
	return mt
}

// kindOf classifies a MIME type as folder or file.
func kindOf(mimeType string) ItemKind {
	if mimeType == FolderMimeType {
		return KindFolder
	}
	return KindFile
}
