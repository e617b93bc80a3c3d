package resource

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegish = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 60)...)

func TestCreateAndLookup(t *testing.T) {
	s := NewStore("http://localhost:8080/")

	url := s.Create(jpegish)
	require.True(t, strings.HasPrefix(url, "blob:http://localhost:8080/"), url)

	res, ok := s.Lookup(url)
	require.True(t, ok)
	assert.Equal(t, jpegish, res.Data)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, 1, s.Len())
}

func TestCreateRecordsFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 24)), nil))

	s := NewStore("o")
	res, ok := s.Lookup(s.Create(buf.Bytes()))
	require.True(t, ok)
	assert.Equal(t, "jpeg", res.Format.Codec)
	assert.Equal(t, 32, res.Format.Width)
	assert.Equal(t, 24, res.Format.Height)
	assert.Equal(t, res.Format.ContentType, res.ContentType)

	// undecodable bytes keep the sniffed type but no dimensions
	res, ok = s.Lookup(s.Create([]byte("not an image")))
	require.True(t, ok)
	assert.False(t, res.Format.Decodable())
	assert.Zero(t, res.Format.Width)
	assert.Equal(t, "text/plain; charset=utf-8", res.ContentType)
}

func TestURLsAreUnique(t *testing.T) {
	s := NewStore("o")
	assert.NotEqual(t, s.Create(jpegish), s.Create(jpegish))
	assert.Equal(t, 2, s.Len())
}

func TestRevoke(t *testing.T) {
	s := NewStore("o")
	url := s.Create(jpegish)

	s.Revoke(url)
	_, ok := s.Lookup(url)
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	// second revoke and foreign sources are no-ops
	s.Revoke(url)
	s.Revoke("")
	s.Revoke("#")
	s.Revoke("blob:o/unknown")

	created, revoked := s.Counts()
	assert.Equal(t, uint64(1), created)
	assert.Equal(t, uint64(1), revoked)
}

func TestID(t *testing.T) {
	s := NewStore("o")
	url := s.Create(jpegish)

	id, ok := s.ID(url)
	require.True(t, ok)
	assert.Equal(t, url, "blob:o/"+id)

	_, ok = s.ID("blob:other/" + id)
	assert.False(t, ok)
}

func TestConcurrentCreateRevoke(t *testing.T) {
	s := NewStore("o")
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Revoke(s.Create(jpegish))
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, s.Len())
}

func TestServeHTTP(t *testing.T) {
	s := NewStore("o")
	url := s.Create(jpegish)
	id, _ := s.ID(url)

	srv := httptest.NewServer(http.StripPrefix("/blob/", s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blob/" + id)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, jpegish, body)

	s.Revoke(url)
	resp, err = http.Get(srv.URL + "/blob/" + id)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/blob/"+id, "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
