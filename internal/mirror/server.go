// Package mirror serves the local archive under the same URLs and JSON
// shapes as the remote backend, so a client written for the remote can be
// pointed at a local copy.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/remote"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

const (
	noDiskName = "NO DISK WITH THAT NAME"
	noDiskID   = "NO DISK WITH THAT ID"

	pageSize = 200
)

// Server answers remote-style requests from the store
type Server struct {
	store *store.Store
	cfg   config.MirrorConfig
}

// New creates a mirror over db
func New(db *store.Store, cfg config.MirrorConfig) *Server {
	return &Server{store: db, cfg: cfg}
}

type statusMessage struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
}

// Handler returns the routed, CORS-wrapped handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	routes := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/backend/hdd", s.handleFolders},
		{"/backend/hdd_details/{disk}", s.handleFolderDetails},
		{"/backend/file/{id}", s.handleFolderContent},
		{"/backend/readFile/{name}", s.handleReadFile},
	}
	for _, r := range routes {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			mux.HandleFunc(method+" "+r.path, r.handler)
			mux.HandleFunc(method+" "+r.path+"/{$}", r.handler)
		}
	}

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})

	return corsHandler.Handler(logRequests(mux))
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLog("Mirror listening on http://%s/backend", s.cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		util.InfoLog("Mirror shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0)
	for offset := 0; ; offset += pageSize {
		folders, err := s.store.ListFolders(store.ListOptions{Offset: offset, Limit: pageSize, OrderField: "uid"})
		if err != nil {
			s.fail(w, err)
			return
		}
		for _, f := range folders {
			names = append(names, f.Name)
		}
		if len(folders) < pageSize {
			break
		}
	}
	writeJSON(w, names)
}

func (s *Server) handleFolderDetails(w http.ResponseWriter, r *http.Request) {
	id, ok, err := s.store.ExternalIDByName(r.PathValue("disk"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, statusMessage{Type: "ERROR", Message: noDiskName})
		return
	}
	writeJSON(w, statusMessage{Type: "OK", Message: []int64{id}})
}

func (s *Server) handleFolderContent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, statusMessage{Type: "ERROR", Message: noDiskID})
		return
	}

	name, ok, err := s.store.FolderNameByExternalID(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, statusMessage{Type: "ERROR", Message: noDiskID})
		return
	}

	entries := make([]string, 0)
	for page := 0; ; page++ {
		names, err := s.store.ListByFolder(name, page, pageSize)
		if err != nil {
			s.fail(w, err)
			return
		}
		entries = append(entries, names...)
		if len(names) < pageSize {
			break
		}
	}
	writeJSON(w, entries)
}

// handleReadFile looks the name up without its extension, as the remote does
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	base := r.PathValue("name")

	name, err := s.store.ResolveExtensionBlind(base)
	if errors.Is(err, util.ErrNotFound) {
		writeJSON(w, remote.NoSuchItem)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	rec, err := s.store.GetRevision(name, -1)
	if errors.Is(err, util.ErrNotFound) {
		writeJSON(w, remote.NoSuchItem)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if rec.Audio {
		writeJSON(w, remote.NoSuchItem)
		return
	}
	writeJSON(w, html.EscapeString(rec.Content))
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	util.ErrorLog("Mirror: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(statusMessage{Type: "ERROR", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.WarnLog("Mirror: failed to write response: %v", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		util.DebugLog("Mirror: %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}
