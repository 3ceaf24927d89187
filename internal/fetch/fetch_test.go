package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwin-go/xwin/internal/xwinerr"
)

func TestFetchBytesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := New()
	b, err := f.FetchBytes(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestFetchBytesNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	_, err := f.FetchBytes(t.Context(), srv.URL)
	require.Error(t, err)
	var dl *xwinerr.DownloadError
	require.ErrorAs(t, err, &dl)
	require.NotNil(t, dl.Status)
	assert.Equal(t, 404, *dl.Status)
}

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("text body"))
	}))
	defer srv.Close()

	f := New()
	s, err := f.FetchText(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "text body", s)
}
