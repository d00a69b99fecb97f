package index

import (
	"slices"
	"strings"

	"github.com/maruel/natural"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MinQueryLength is the shortest accepted search query.
const MinQueryLength = 2

// foldName makes names comparable regardless of case and Unicode form.
// Uploads from macOS arrive in NFD. A Caser is stateful, so one is made
// per call.
func foldName(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// SearchResult holds matches from one search.
type SearchResult struct {
	Folders []*Folder `json:"folders"`
	Images  []*Image  `json:"images"`
}

// Search matches folders by name or path and images by name. Results are
// ordered by path, then name, and capped at limit each.
func (idx *Index) Search(query string, limit int) SearchResult {
	q := foldName(strings.TrimSpace(query))
	if len([]rune(q)) < MinQueryLength {
		return SearchResult{Folders: []*Folder{}, Images: []*Image{}}
	}

	folders := lo.Filter(lo.Values(idx.Folders), func(f *Folder, _ int) bool {
		return strings.Contains(foldName(f.Name), q) || strings.Contains(foldName(f.Path), q)
	})
	slices.SortFunc(folders, func(a, b *Folder) int { return compareNatural(a.Path, b.Path) })

	images := lo.Filter(lo.Values(idx.Files), func(img *Image, _ int) bool {
		return strings.Contains(foldName(img.Name), q)
	})
	slices.SortFunc(images, func(a, b *Image) int {
		if c := compareNatural(idx.folderPath(a.FolderID), idx.folderPath(b.FolderID)); c != 0 {
			return c
		}
		return compareNatural(a.Name, b.Name)
	})

	if limit > 0 {
		folders = folders[:min(limit, len(folders))]
		images = images[:min(limit, len(images))]
	}
	return SearchResult{Folders: folders, Images: images}
}

func (idx *Index) folderPath(id string) string {
	if f, ok := idx.Folders[id]; ok {
		return f.Path
	}
	return ""
}

// SortField selects the image ordering for ImagePage.
type SortField string

const (
	SortModified SortField = "modifiedTime"
	SortName     SortField = "name"
	SortSize     SortField = "size"
)

// PageQuery requests one page of a folder's images.
type PageQuery struct {
	SortBy   SortField
	Desc     bool
	Page     int // 1-based
	PageSize int
}

// MaxPageSize caps PageQuery.PageSize.
const MaxPageSize = 100

// ImagePage is one page of images plus pagination metadata.
type ImagePage struct {
	Images     []*Image `json:"images"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	Total      int      `json:"total"`
	TotalPages int      `json:"totalPages"`
	HasMore    bool     `json:"hasMore"`
}

// Page returns a sorted page of the folder's direct images. Out-of-range
// pages are empty; page size is clamped to [1, MaxPageSize].
func (idx *Index) Page(folderID string, q PageQuery) ImagePage {
	size := min(max(q.PageSize, 1), MaxPageSize)
	page := max(q.Page, 1)

	images := idx.Images(folderID)
	slices.SortStableFunc(images, func(a, b *Image) int {
		var c int
		switch q.SortBy {
		case SortName:
			c = compareNatural(a.Name, b.Name)
		case SortSize:
			c = cmpInt64(a.Size, b.Size)
		default:
			c = a.ModifiedTime.Compare(b.ModifiedTime)
		}
		if q.Desc {
			return -c
		}
		return c
	})

	total := len(images)
	totalPages := (total + size - 1) / size
	start := min((page-1)*size, total)
	end := min(start+size, total)

	return ImagePage{
		Images:     images[start:end],
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

func compareNatural(a, b string) int {
	switch {
	case a == b:
		return 0
	case natural.Less(a, b):
		return -1
	default:
		return 1
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
