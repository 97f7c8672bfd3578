package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImageType(t *testing.T) {
	assert.True(t, ValidateImageType("image/png", "logo"))
	assert.True(t, ValidateImageType("", "burger.JPEG"))
	assert.True(t, ValidateImageType("application/octet-stream", "pasta.webp"))
	assert.False(t, ValidateImageType("video/mp4", "clip.mp4"))
	assert.False(t, ValidateImageType("", "menu.pdf"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("IMAGE/PNG", "x"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("", "x.jpg"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("", "x.bin"))
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey(FolderMenuItems, "../etc/My Burger.png")
	assert.True(t, strings.HasPrefix(key, "menu-items/"))
	assert.True(t, strings.HasSuffix(key, "-My-Burger.png"))
	assert.NotContains(t, key, "..")

	assert.NotEqual(t, ObjectKey(FolderLogos, "a.png"), ObjectKey(FolderLogos, "a.png"))
}

func TestKeyFromURL_RoundTrip(t *testing.T) {
	s := &S3{cfg: S3Config{Bucket: "menuqr-assets", Region: "eu-west-1"}}

	u := s.PublicObjectURL("menu-items/abc-burger.png")
	assert.Equal(t, "https://menuqr-assets.s3.eu-west-1.amazonaws.com/menu-items/abc-burger.png", u)

	key, err := s.KeyFromURL(u)
	require.NoError(t, err)
	assert.Equal(t, "menu-items/abc-burger.png", key)
}

func TestKeyFromURL_CustomBase(t *testing.T) {
	s := &S3{cfg: S3Config{Bucket: "b", PublicBaseURL: "http://localhost:9000/b/"}}

	key, err := s.KeyFromURL("http://localhost:9000/b/restaurant-logos/x%20y.png")
	require.NoError(t, err)
	assert.Equal(t, "restaurant-logos/x y.png", key)
}

func TestKeyFromURL_ForeignURL(t *testing.T) {
	s := &S3{cfg: S3Config{Bucket: "menuqr-assets", Region: "eu-west-1"}}

	_, err := s.KeyFromURL("https://cdn.example.com/menu-items/a.png")
	assert.ErrorIs(t, err, ErrForeignURL)
	_, err = s.KeyFromURL(s.PublicObjectURL(""))
	assert.ErrorIs(t, err, ErrForeignURL)
}
