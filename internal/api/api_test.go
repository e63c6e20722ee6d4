package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/refdeck/internal/docstore"
	"github.com/starford/refdeck/internal/index"
	"github.com/starford/refdeck/internal/refservice"
	"github.com/starford/refdeck/internal/storage"
	"github.com/starford/refdeck/internal/testutil"
	"github.com/starford/refdeck/internal/view"
)

var testFields = []string{"related", "up"}

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string, docs map[string]string) (storage.Provider, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil, docs)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler, docs map[string]string) (storage.Provider, http.Handler) {
	t.Helper()
	_, store := testutil.TestVault(t)
	testutil.WriteDocs(t, store, docs)
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := index.Sync(db, store, testFields, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	svc := refservice.New(docstore.New(store), db, nil, refservice.Options{
		View:         view.Options{Fields: testFields},
		DefaultField: "related",
	}, logger)
	t.Cleanup(svc.Close)

	return store, NewRouter(svc, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

const docA = "---\ntitle: A\nrelated:\n  - \"[[B]]\"\n  - https://example.com\n---\n# A\n"

func TestGetPanel(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{"notes/a.md": docA, "B.md": "# B\n"})

	w := do(t, router, http.MethodGet, "/references/notes%2Fa.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("panel status = %d, body = %s", w.Code, w.Body.String())
	}
	p := decode[Panel](t, w)
	if p.DocID != "notes/a.md" {
		t.Errorf("doc id = %q", p.DocID)
	}
	if len(p.Sections) != 1 || len(p.Sections[0].Entries) != 2 {
		t.Fatalf("sections = %+v", p.Sections)
	}
	if p.Sections[0].Entries[1].Kind != "url" {
		t.Errorf("second entry kind = %q, want url", p.Sections[0].Entries[1].Kind)
	}
}

func TestGetPanel_NotFound(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/references/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing doc = %d, want 404", w.Code)
	}
}

func TestToggleCollapse(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{"a.md": docA})

	w := do(t, router, http.MethodPost, "/collapse", CollapseRequest{Path: "a.md", Key: "field:related|wikilink:B"})
	if w.Code != http.StatusOK {
		t.Fatalf("collapse = %d, body = %s", w.Code, w.Body.String())
	}
	if !decode[CollapseResponse](t, w).Collapsed {
		t.Error("expected collapsed after first toggle")
	}

	p := decode[Panel](t, do(t, router, http.MethodGet, "/references/a.md", nil))
	if !p.Sections[0].Entries[0].Collapsed {
		t.Error("panel should show the entry collapsed")
	}

	w = do(t, router, http.MethodPost, "/collapse", map[string]string{"path": "a.md"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing key = %d, want 400", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	store, router := testEnv(t, "", map[string]string{"a.md": docA, "B.md": "", "C.md": ""})

	w := do(t, router, http.MethodPost, "/sessions", OpenSessionRequest{Path: "a.md"})
	if w.Code != http.StatusCreated {
		t.Fatalf("open = %d, body = %s", w.Code, w.Body.String())
	}
	sv := decode[SessionView](t, w)
	base := "/sessions/" + sv.ID

	if w := do(t, router, http.MethodPost, "/sessions", OpenSessionRequest{Path: "a.md"}); w.Code != http.StatusConflict {
		t.Errorf("second open = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/append-note", AppendNoteRequest{Target: "C"})
	if w.Code != http.StatusOK {
		t.Fatalf("append-note = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, base+"/append-url", AppendURLRequest{URL: "mailto:x"})
	if w.Code != http.StatusOK || decode[AppendURLResponse](t, w).Added {
		t.Errorf("non-URL input should be a no-op, got %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, base+"/move", MoveRequest{From: 2, To: 0})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d", w.Code)
	}
	got := decode[SessionView](t, w).Displayed
	want := []string{"[[C]]", "[[B]]", "https://example.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("displayed = %v, want %v", got, want)
	}

	w = do(t, router, http.MethodPost, base+"/reorder", ReorderRequest{Order: []string{"[[B]]"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("reorder with dropped entry = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/field", FieldRequest{Field: "up"})
	if w.Code != http.StatusOK || decode[SessionView](t, w).Active != "up" {
		t.Fatalf("switch field = %d, body = %s", w.Code, w.Body.String())
	}
	_ = do(t, router, http.MethodPost, base+"/append", AppendRequest{Entry: "[[B]]"})

	w = do(t, router, http.MethodPost, base+"/commit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("commit = %d, body = %s", w.Code, w.Body.String())
	}
	cv := decode[CommitView](t, w)
	if strings.Join(cv.Result.Written, ",") != "related,up" {
		t.Errorf("written = %v", cv.Result.Written)
	}

	data, _ := store.Read("a.md")
	out := string(data)
	if !strings.Contains(out, "title: A") || !strings.Contains(out, "up:") {
		t.Errorf("unexpected document:\n%s", out)
	}
	if strings.Index(out, "[[C]]") > strings.Index(out, "https://example.com") {
		t.Errorf("order not persisted:\n%s", out)
	}

	if w := do(t, router, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("session after commit = %d, want 404", w.Code)
	}
}

func TestSessionCancel(t *testing.T) {
	store, router := testEnv(t, "", map[string]string{"a.md": docA})
	before, _ := store.Read("a.md")

	sv := decode[SessionView](t, do(t, router, http.MethodPost, "/sessions", OpenSessionRequest{Path: "a.md", Field: "up"}))
	_ = do(t, router, http.MethodPost, "/sessions/"+sv.ID+"/append", AppendRequest{Entry: "x"})

	if w := do(t, router, http.MethodPost, "/sessions/"+sv.ID+"/cancel", nil); w.Code != http.StatusNoContent {
		t.Fatalf("cancel = %d", w.Code)
	}
	after, _ := store.Read("a.md")
	if string(before) != string(after) {
		t.Error("cancel must not write")
	}
	if w := do(t, router, http.MethodPost, "/sessions/"+sv.ID+"/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("second cancel = %d, want 404", w.Code)
	}
}

func TestOpenSession_Validation(t *testing.T) {
	_, router := testEnv(t, "", nil)

	if w := do(t, router, http.MethodPost, "/sessions", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/sessions", OpenSessionRequest{Path: "ghost.md"}); w.Code != http.StatusNotFound {
		t.Errorf("missing doc = %d, want 404", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestReferrersAndDocuments(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{
		"a.md":       docA,
		"c.md":       "---\nup: \"[[B|bee]]\"\n---\n",
		"B.md":       "# Bravo\n",
		"notes/x.md": "",
	})

	w := do(t, router, http.MethodGet, "/referrers?entry="+urlQuery("[[B]]"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("referrers = %d", w.Code)
	}
	rr := decode[ReferrersResponse](t, w)
	if len(rr.Referrers) != 2 {
		t.Errorf("referrers = %+v, want 2", rr.Referrers)
	}

	if w := do(t, router, http.MethodGet, "/referrers", nil); w.Code != http.StatusBadRequest {
		t.Errorf("referrers without entry = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/documents?q=brav", nil)
	docs := decode[DocumentSearchResponse](t, w).Documents
	if len(docs) == 0 || docs[0].ID != "B.md" {
		t.Errorf("documents = %+v, want B.md first", docs)
	}
}

func TestSearchText(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{
		"B.md": "# Bravo\n\nthe quokka lives here\n",
		"C.md": "nothing to see\n",
	})

	w := do(t, router, http.MethodGet, "/search?q=quokka", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	res := decode[TextSearchResponse](t, w).Results
	if len(res) != 1 || res[0].Path != "B.md" {
		t.Errorf("results = %+v, want B.md", res)
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without query = %d, want 400", w.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{"B.md": "Some **bold** body\n"})

	w := do(t, router, http.MethodGet, "/preview?entry="+urlQuery("[[B]]")+"&source=a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "\\u003cstrong\\u003ebold") {
		t.Errorf("preview body = %s", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/preview?entry="+urlQuery("[[Missing]]"), nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"found":false`) {
		t.Errorf("missing preview = %d %s", w.Code, w.Body.String())
	}
}

func urlQuery(s string) string {
	r := strings.NewReplacer("[", "%5B", "]", "%5D", "#", "%23", "|", "%7C", " ", "%20")
	return r.Replace(s)
}

// Auth tests.

func TestAuthMiddleware_RejectsWithoutToken(t *testing.T) {
	_, router := testEnv(t, "secret", nil)

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	_, router := testEnv(t, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret", nil)

	if w := do(t, router, http.MethodGet, "/documents?access_token=secret", nil); w.Code != http.StatusOK {
		t.Errorf("query token on GET = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/sessions?access_token=secret", OpenSessionRequest{Path: "a.md"}); w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/documents?access_token=secret", nil)
	req.Header.Set("Authorization", "Basic secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("non-bearer header = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvFull(t, true, "secret", sseStub, nil)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvFull(t, true, "tok", sseStub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
