package drive

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultThumbSize is the thumbnail edge length stored on indexed images.
const DefaultThumbSize = 400

var (
	idPattern       = regexp.MustCompile(`^[A-Za-z0-9_-]{10,100}$`)
	folderPathRe    = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	filePathRe      = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	trailingSegment = regexp.MustCompile(`/([A-Za-z0-9_-]{20,})/?$`)
	invalidIDChars  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ValidateID reports whether id has the shape of a remote item id.
func ValidateID(id string) bool {
	return idPattern.MatchString(id)
}

// SanitizeID strips characters that can never appear in an id.
func SanitizeID(id string) string {
	return invalidIDChars.ReplaceAllString(strings.TrimSpace(id), "")
}

// IsDriveURL reports whether raw points at drive.google.com or
// docs.google.com.
func IsDriveURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "drive.google.com" || host == "docs.google.com"
}

// ParseURL extracts an item id from a share URL or accepts a bare id.
// Recognized forms are /folders/<id>, /file/d/<id>, ?id=<id> and a
// trailing path segment of 20 or more id characters.
func ParseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("parse drive url: empty: %w", ErrInvalidInput)
	}
	if ValidateID(raw) {
		return raw, nil
	}
	if !IsDriveURL(raw) {
		return "", fmt.Errorf("parse drive url %q: not a drive url: %w", raw, ErrInvalidInput)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse drive url %q: %w", raw, ErrInvalidInput)
	}

	var id string
	switch {
	case folderPathRe.MatchString(u.Path):
		id = folderPathRe.FindStringSubmatch(u.Path)[1]
	case filePathRe.MatchString(u.Path):
		id = filePathRe.FindStringSubmatch(u.Path)[1]
	case u.Query().Get("id") != "":
		id = u.Query().Get("id")
	case trailingSegment.MatchString(u.Path):
		id = trailingSegment.FindStringSubmatch(u.Path)[1]
	}
	if !ValidateID(id) {
		return "", fmt.Errorf("parse drive url %q: no id: %w", raw, ErrInvalidInput)
	}
	return id, nil
}

// ThumbnailURL is the CDN thumbnail, cropped square.
func ThumbnailURL(id string, size int) string {
	return fmt.Sprintf("https://lh3.googleusercontent.com/d/%s=w%d-h%d-c", id, size, size)
}

// AltThumbnailURL is the Drive thumbnail endpoint.
func AltThumbnailURL(id string, size int) string {
	return fmt.Sprintf("https://drive.google.com/thumbnail?id=%s&sz=w%d", id, size)
}

// FullImageURL is a large rendition from the CDN.
func FullImageURL(id string) string {
	return fmt.Sprintf("https://lh3.googleusercontent.com/d/%s=w1920", id)
}

// ViewURL opens the file in the Drive viewer.
func ViewURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", id)
}

// DownloadURL downloads the original file.
func DownloadURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", id)
}

// FolderURL opens a folder in Drive.
func FolderURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/drive/folders/%s", id)
}

// ProxyURL is the local image endpoint for id.
func ProxyURL(id string, size int) string {
	return fmt.Sprintf("/api/image/%s?sz=%d", url.PathEscape(id), size)
}

// ImageSources lists candidate URLs for an image in the order a client
// should try them. A stored thumbnail link that differs from the CDN URL
// goes first.
func ImageSources(id, thumbnailLink string, size int) []string {
	if size <= 0 {
		size = DefaultThumbSize
	}
	cdn := ThumbnailURL(id, size)
	out := make([]string, 0, 6)
	if thumbnailLink != "" && thumbnailLink != cdn {
		out = append(out, thumbnailLink)
	}
	return append(out,
		cdn,
		ProxyURL(id, size),
		AltThumbnailURL(id, size),
		FullImageURL(id),
		DownloadURL(id),
	)
}
