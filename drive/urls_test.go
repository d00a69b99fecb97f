package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	const id = "1AbCdEfGhIjKlMnOpQrStUvWxYz"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare id", id, id},
		{"folder url", "https://drive.google.com/drive/folders/" + id + "?usp=sharing", id},
		{"nested folder url", "https://drive.google.com/drive/u/0/folders/" + id, id},
		{"file url", "https://drive.google.com/file/d/" + id + "/view", id},
		{"open id", "https://drive.google.com/open?id=" + id, id},
		{"docs trailing", "https://docs.google.com/presentation/" + id, id},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURL_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"https://example.com/folders/1AbCdEfGhIjKlMnOpQrSt",
		"https://drive.google.com/drive/my-drive",
		"short",
	} {
		_, err := ParseURL(in)
		assert.ErrorIs(t, err, ErrInvalidInput, in)
	}
}

func TestValidateAndSanitizeID(t *testing.T) {
	assert.True(t, ValidateID("abcdefghij"))
	assert.False(t, ValidateID("abcdefghi"))
	assert.False(t, ValidateID("abc def ghi jkl"))
	assert.Equal(t, "abc_def-123", SanitizeID(" abc_def-123/?& "))
}

func TestImageSources_Order(t *testing.T) {
	got := ImageSources("img0000001", "", 300)
	assert.Equal(t, []string{
		"https://lh3.googleusercontent.com/d/img0000001=w300-h300-c",
		"/api/image/img0000001?sz=300",
		"https://drive.google.com/thumbnail?id=img0000001&sz=w300",
		"https://lh3.googleusercontent.com/d/img0000001=w1920",
		"https://drive.google.com/uc?export=download&id=img0000001",
	}, got)

	withLink := ImageSources("img0000001", "https://example.test/thumb", 0)
	assert.Equal(t, "https://example.test/thumb", withLink[0])
	assert.Equal(t, ThumbnailURL("img0000001", DefaultThumbSize), withLink[1])
}

func TestIsImageMime(t *testing.T) {
	assert.True(t, IsImageMime("image/JPEG"))
	assert.True(t, IsImageMime("image/webp; charset=binary"))
	assert.False(t, IsImageMime("image/svg+xml"))
	assert.False(t, IsImageMime(FolderMimeType))
	assert.Equal(t, "image/jpeg", MimeFromName("a.JPG"))
	assert.Equal(t, "image/png", MimeFromName("a.png"))
}
