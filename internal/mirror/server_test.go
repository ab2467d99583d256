package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/remote"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

func newTestMirror(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RegisterFolder("ARCHIVE001", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := db.RegisterFolder("ARCHIVE002", 9); err != nil {
		t.Fatal(err)
	}
	if _, err := db.IngestText("CALLX.LOG", "Tom & Mara > relay", store.ByExternalID(8)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.IngestText("MEMO.LOG", "first", store.ByExternalID(8)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.IngestText("MEMO.LOG", "second", store.ByExternalID(8)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.IngestAudio("VOICE1.MP3", []byte{1, 2, 3}, store.ByExternalID(9)); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(New(db, config.Default().Mirror).Handler())
	t.Cleanup(srv.Close)
	return db, srv
}

func newMirrorClient(srv *httptest.Server) *remote.Client {
	cfg := config.Default().Remote
	cfg.Endpoint = srv.URL + "/backend"
	return remote.NewClient(cfg)
}

// The remote client must work unchanged against the mirror
func TestMirrorSpeaksRemoteProtocol(t *testing.T) {
	_, srv := newTestMirror(t)
	client := newMirrorClient(srv)
	ctx := context.Background()

	folders, err := client.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	if len(folders) != 2 || folders[0] != "ARCHIVE001" {
		t.Errorf("Unexpected folders %v", folders)
	}

	id, err := client.FolderID(ctx, "ARCHIVE001")
	if err != nil || id != 8 {
		t.Fatalf("FolderID = %d, %v", id, err)
	}

	entries, err := client.FolderContent(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0] != "CALLX.LOG" || entries[1] != "MEMO.LOG" {
		t.Errorf("Expected each name once, got %v", entries)
	}

	body, err := client.ReadLog(ctx, "CALLX")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Tom & Mara > relay" {
		t.Errorf("Content did not survive the round trip: %q", body)
	}

	body, err = client.ReadLog(ctx, "MEMO")
	if err != nil || body != "second" {
		t.Errorf("Expected the newest revision, got %q, %v", body, err)
	}
}

func TestMirrorNotFound(t *testing.T) {
	_, srv := newTestMirror(t)
	client := newMirrorClient(srv)
	ctx := context.Background()

	if _, err := client.FolderID(ctx, "NOPE"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown folder, got %v", err)
	}
	if _, err := client.FolderContent(ctx, 4242); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown id, got %v", err)
	}
	if _, err := client.ReadLog(ctx, "MISSING"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown log, got %v", err)
	}
	if _, err := client.ReadLog(ctx, "VOICE1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Audio logs have no text, got %v", err)
	}
}

func TestMirrorRoutes(t *testing.T) {
	_, srv := newTestMirror(t)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/backend/hdd", http.StatusOK},
		{http.MethodGet, "/backend/hdd/", http.StatusOK},
		{http.MethodPost, "/backend/hdd", http.StatusOK},
		{http.MethodGet, "/backend/hdd_details/ARCHIVE001/", http.StatusOK},
		{http.MethodPost, "/backend/file/8", http.StatusOK},
		{http.MethodGet, "/backend/readFile/CALLX/", http.StatusOK},
		{http.MethodDelete, "/backend/hdd", http.StatusMethodNotAllowed},
		{http.MethodGet, "/backend/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.status, resp.StatusCode)
		}
	}
}

func TestMirrorCORS(t *testing.T) {
	_, srv := newTestMirror(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/backend/hdd", nil)
	req.Header.Set("Origin", "http://example.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard CORS header, got %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ARCHIVE002") {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(db, config.MirrorConfig{Listen: "127.0.0.1:0"}).ListenAndServe(ctx)
	}()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
