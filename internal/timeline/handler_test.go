package timeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/auth"
	"chronozoom/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testTokens = auth.TokenService{Secret: []byte("handler-secret"), Issuer: "chronozoom-test", Duration: time.Hour}

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	r := gin.New()
	api := r.Group("/api")
	api.Use(auth.IdentityMiddleware(testTokens, f.store, zerolog.Nop()))
	NewHandler(f.query, f.mutate, zerolog.Nop()).RegisterRoutes(api)
	return r
}

func bearer(t *testing.T, u *models.User) string {
	t.Helper()
	token, _, err := testTokens.Sign(u)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(r *gin.Engine, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandler_TimelineRoundTrip(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)
	root := f.root(t, SandboxRef)

	w := do(r, http.MethodPut, "/api/Sandbox/Sandbox/timeline", "",
		`{"parent_timeline_id":"`+root.ID.String()+`","title":"Era","from_year":0,"to_year":100}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode(t, w)["id"]
	require.NotEmpty(t, id)

	w = do(r, http.MethodGet, "/api/sandbox/sandbox/timelines?start=-10&end=50", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Timeline
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, root.ID, got.ID)
	require.Len(t, got.ChildTimelines, 1)
	assert.Equal(t, id, got.ChildTimelines[0].ID.String())
}

func TestHandler_Errors(t *testing.T) {
	f := newFixture(t)
	f.withAlice(t)
	r := newTestRouter(t, f)
	aliceRoot := f.root(t, aliceRef)
	aliceBody := `{"parent_timeline_id":"` + aliceRoot.ID.String() + `","title":"t","from_year":0,"to_year":1}`

	tests := []struct {
		name     string
		method   string
		path     string
		authz    string
		body     string
		wantCode int
		wantKind string
	}{
		{"empty body", http.MethodPut, "/api/Sandbox/Sandbox/timeline", "", "", http.StatusBadRequest, "RequestBodyEmpty"},
		{"malformed body", http.MethodPut, "/api/Sandbox/Sandbox/timeline", "", `{"title":`, http.StatusBadRequest, ""},
		{"missing years", http.MethodPut, "/api/Sandbox/Sandbox/timeline", "", `{"title":"t"}`, http.StatusBadRequest, ""},
		{"range", http.MethodPut, "/api/Sandbox/Sandbox/timeline", "", `{"title":"t","from_year":5,"to_year":1}`, http.StatusUnprocessableEntity, "TimelineRangeInvalid"},
		{"unknown collection", http.MethodPut, "/api/No/Where/timeline", "", `{"title":"t","from_year":0,"to_year":1}`, http.StatusNotFound, "CollectionNotFound"},
		{"anonymous on owned", http.MethodPut, "/api/Alice/Alice/timeline", "", aliceBody, http.StatusForbidden, "UnauthorizedUser"},
		{"other user on owned", http.MethodPut, "/api/Alice/Alice/timeline", "bob", aliceBody, http.StatusForbidden, "UnauthorizedUser"},
		{"delete without id", http.MethodDelete, "/api/Sandbox/Sandbox/timeline", "", "", http.StatusBadRequest, "RequestBodyEmpty"},
		{"delete unknown", http.MethodDelete, "/api/Sandbox/Sandbox/exhibit", "", `{"id":"6f1c54a4-4f7e-4a57-a8c3-1f3e2c8f0a11"}`, http.StatusNotFound, "ExhibitNotFound"},
		{"collection title with separator", http.MethodPut, "/api/Acme/Acme", "", `{"title":"Ac|me"}`, http.StatusBadRequest, ""},
		{"collection title mismatch", http.MethodPut, "/api/Acme/Acme", "", `{"title":"Other"}`, http.StatusConflict, "CollectionIdMismatch"},
		{"bad query", http.MethodGet, "/api/Sandbox/Sandbox/timelines?start=abc", "", "", http.StatusBadRequest, ""},
		{"bad max elements", http.MethodGet, "/api/Sandbox/Sandbox/timelines?maxElements=0", "", "", http.StatusBadRequest, ""},
		{"anonymous get user", http.MethodGet, "/api/user", "", "", http.StatusUnauthorized, "Unauthenticated"},
		{"bad token", http.MethodGet, "/api/user", "Bearer nope", "", http.StatusUnauthorized, "Unauthenticated"},
		{"unknown super collection", http.MethodGet, "/api/Nobody/collections", "", "", http.StatusNotFound, "SuperCollectionNotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authz := tt.authz
			if authz == "bob" {
				authz = bearer(t, bob)
			}
			w := do(r, tt.method, tt.path, authz, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			body := decode(t, w)
			assert.NotEmpty(t, body["error"])
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
			}
		})
	}
}

func TestHandler_Search(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)

	w := do(r, http.MethodGet, "/api/Sandbox/Sandbox/search?searchTerm=", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = do(r, http.MethodGet, "/api/Sandbox/Sandbox/search?searchTerm=cos", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var results []models.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, RootTimelineTitle, results[0].Title)
	assert.Equal(t, "timeline", results[0].Type)
}

func TestHandler_UserLifecycle(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)
	token := bearer(t, alice)

	w := do(r, http.MethodPut, "/api/user", token, `{"display_name":"Alice","email":"alice@example.org"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/alice/alice", decode(t, w)["collection"])

	w = do(r, http.MethodGet, "/api/user", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.org", decode(t, w)["email"])

	w = do(r, http.MethodGet, "/api/Alice/collections", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var colls []models.Collection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &colls))
	require.Len(t, colls, 1)

	w = do(r, http.MethodDelete, "/api/user", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/user", token, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "UserNotFound", decode(t, w)["kind"])
}

func TestHandler_AnonymousUser(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)

	w := do(r, http.MethodPut, "/api/user", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/sandbox/sandbox", decode(t, w)["collection"])
}

func TestHandler_ExhibitAndTour(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)
	root := f.root(t, SandboxRef)

	w := do(r, http.MethodPut, "/api/Sandbox/Sandbox/exhibit", "",
		`{"parent_timeline_id":"`+root.ID.String()+`","title":"Moon landing","year":1969,
		  "content_items":[{"title":"photo","media_type":"image","uri":"https://example.org/moon.jpg"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res ExhibitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.ContentItemIDs, 1)
	require.Len(t, f.thumbs.items, 1)

	w = do(r, http.MethodPut, "/api/Sandbox/Sandbox/exhibit", "",
		`{"title":"bad item","content_items":[{"title":""}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/Sandbox/Sandbox/tour", "",
		`{"name":"Space","bookmarks":[{"name":"launch","url":"#/e1","lapse_time":5}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/Sandbox/Sandbox/tours", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tours []models.Tour
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tours))
	require.Len(t, tours, 1)
	assert.Equal(t, "Space", tours[0].Name)

	w = do(r, http.MethodDelete, "/api/Sandbox/Sandbox/exhibit", "", `{"id":"`+res.ExhibitID.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
