package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wanderboard/api/internal/auth"
	"wanderboard/api/internal/board"
	"wanderboard/api/internal/export"
)

func newTestServer(fs *fakeStore) *HTTPServer {
	return NewHTTPServer(New(testConfig(), fs), "*")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func loginToken(t *testing.T, handler http.Handler, name string) string {
	t.Helper()
	rr := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]string{"name": name})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse login response: %v", err)
	}
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(newFakeStore()).Handler()
	rr := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %v", resp["ok"])
	}
}

func TestReadyReportsDatabaseOutage(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	handler := newTestServer(fs).Handler()
	rr := doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["status"] != "not_ready" {
		t.Fatalf("status field = %v", resp["status"])
	}
}

func TestBoardsRequireAuth(t *testing.T) {
	handler := newTestServer(newFakeStore()).Handler()
	rr := doJSON(t, handler, http.MethodGet, "/api/boards", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	rr = doJSON(t, handler, http.MethodGet, "/api/boards", "not-a-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rr.Code)
	}
}

func TestCreateOpenAndMoveOverHTTP(t *testing.T) {
	fs := newFakeStore()
	handler := newTestServer(fs).Handler()
	token := loginToken(t, handler, "Olive")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards", token, map[string]string{"title": "Porto"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created board.Board
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse created board: %v", err)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/"+created.ID+"/open", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/"+created.ID+"/elements", token, map[string]any{
		"action": "add",
		"type":   "text",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("add element status = %d, body %s", rr.Code, rr.Body.String())
	}
	var withElement board.Board
	if err := json.Unmarshal(rr.Body.Bytes(), &withElement); err != nil {
		t.Fatalf("parse board: %v", err)
	}
	if len(withElement.Elements) != 1 {
		t.Fatalf("expected one element, got %d", len(withElement.Elements))
	}
	elementID := withElement.Elements[0].ID

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/"+created.ID+"/elements/"+elementID, token, map[string]any{
		"action": "resize",
		"width":  300,
		"height": 200,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("resize status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resized board.Board
	if err := json.Unmarshal(rr.Body.Bytes(), &resized); err != nil {
		t.Fatalf("parse board: %v", err)
	}
	el := resized.Elements[resized.FindElement(elementID)]
	if el.Width != 300 || el.Height != 200 {
		t.Fatalf("element size = %gx%g, want 300x200", el.Width, el.Height)
	}
}

func seededToken(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testConfig().TokenSecret), auth.Claims{
		UserID: userID,
		Name:   name,
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestElementActionOnUnknownElementIs404(t *testing.T) {
	fs := newFakeStore()
	seedBoard(fs)
	handler := newTestServer(fs).Handler()
	token := seededToken(t, "usr_owner", "Olive")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards/brd_seed/open", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/brd_seed/elements/el_missing", token, map[string]any{
		"action": "move",
		"dx":     10,
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", rr.Code, rr.Body.String())
	}
}

func TestViewerElementActionIs403OverHTTP(t *testing.T) {
	fs := newFakeStore()
	seedBoard(fs)
	handler := newTestServer(fs).Handler()
	owner := seededToken(t, "usr_owner", "Olive")
	viewer := seededToken(t, "usr_viewer", "Vera")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards/brd_seed/open", owner, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/brd_seed/elements/el_1", viewer, map[string]any{
		"action": "move",
		"dx":     10,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body %s", rr.Code, rr.Body.String())
	}
}

func TestExportRejectsUnknownFormatOverHTTP(t *testing.T) {
	fs := newFakeStore()
	handler := newTestServer(fs).Handler()
	token := loginToken(t, handler, "Olive")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards", token, map[string]string{"title": "Porto"})
	var created board.Board
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse created board: %v", err)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/"+created.ID+"/export", token, map[string]any{"format": "svg"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rr.Code, rr.Body.String())
	}
}

func TestExportInlinesArtifactWithoutMediaStore(t *testing.T) {
	fs := newFakeStore()
	svc := New(testConfig(), fs)
	svc.exportFn = func(b board.Board, req export.Request) (*export.Result, error) {
		return &export.Result{Data: []byte("png-bytes"), Filename: "board.png", MimeType: "image/png"}, nil
	}
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Olive")

	rr := doJSON(t, handler, http.MethodPost, "/api/boards", token, map[string]string{"title": "Porto"})
	var created board.Board
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse created board: %v", err)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/boards/"+created.ID+"/export", token, map[string]any{"format": "png"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["mimeType"] != "image/png" || resp["data"] == "" {
		t.Fatalf("unexpected export response: %v", resp)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	handler := newTestServer(newFakeStore()).Handler()
	token := loginToken(t, handler, "Olive")
	rr := doJSON(t, handler, http.MethodGet, "/api/unknown", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
