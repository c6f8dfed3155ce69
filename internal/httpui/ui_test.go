package httpui

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUI(t *testing.T) http.Handler {
	t.Helper()
	h, err := Handler(fstest.MapFS{
		"index.html":          {Data: []byte("<html>olympus</html>")},
		"assets/index-abc.js": {Data: []byte("console.log(1)")},
		"assets/logo-def.svg": {Data: []byte("<svg/>")},
	})
	require.NoError(t, err)
	return h
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServesAssetsAndFallsBack(t *testing.T) {
	h := testUI(t)

	rec := get(h, "/assets/index-abc.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	for _, route := range []string{"/", "/auctions-page", "/token/7"} {
		rec := get(h, route)
		assert.Equal(t, http.StatusOK, rec.Code, route)
		assert.Contains(t, rec.Body.String(), "olympus", route)
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"), route)
	}
}

func TestAPIPathsAreNotTheUI(t *testing.T) {
	h := testUI(t)
	for _, p := range []string{"/nfts/unknown", "/session/x", "/events"} {
		assert.Equal(t, http.StatusNotFound, get(h, p).Code, p)
	}
	assert.False(t, IsAPIPath("/nftsx"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNeedsIndex(t *testing.T) {
	_, err := Handler(fstest.MapFS{"app.js": {Data: []byte("x")}})
	assert.Error(t, err)

	_, err = Dir(t.TempDir() + "/missing")
	assert.Error(t, err)
}
