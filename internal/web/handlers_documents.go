package web

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/logging"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
	"github.com/go-chi/chi/v5"
)

// defaultUploadName names raw-body uploads sent without ?name=.
const defaultUploadName = "upload.json"

type documentResponse struct {
	ID string `json:"id"`
	core.Progress
}

type previewResponse struct {
	DocumentID string         `json:"documentId"`
	Ready      bool           `json:"ready"`
	Rows       []rowstore.Row `json:"rows"`
}

type pageResponse struct {
	DocumentID string `json:"documentId"`
	Generation int    `json:"generation"`
	paging.Page
}

type reloadResponse struct {
	DocumentID string `json:"documentId"`
	Reloaded   bool   `json:"reloaded"`
	Generation int    `json:"generation"`
}

// handleCreateDocument opens a document from a multipart "file" field, a
// raw request body, or a server-local ?path= under an allowed root.
//
// Query flags: turbo (default from config), preview (default true).
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	turbo, err := queryBool(r, "turbo", s.cfg.Ingest.Turbo)
	if err != nil {
		respondError(w, r, err)
		return
	}
	preview, err := queryBool(r, "preview", true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	src, err := s.requestSource(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := s.service.Open(r.Context(), src, core.OpenOptions{Turbo: turbo, Preview: preview})
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("document created",
		"document_id", sess.ID,
		"name", sess.Name,
		"turbo", turbo,
	)
	w.Header().Set("Location", "/api/documents/"+sess.ID)
	writeJSON(w, r, http.StatusCreated, documentResponse{ID: sess.ID, Progress: sess.Progress()})
}

// requestSource builds the ingest source for a create request.
func (s *Server) requestSource(r *http.Request) (ingest.Source, error) {
	if p := r.URL.Query().Get("path"); p != "" {
		abs, err := allowedPath(s.cfg.Ingest.AllowedRoots, p)
		if err != nil {
			return nil, err
		}
		return ingest.FileSource(abs)
	}

	body := http.MaxBytesReader(nil, r.Body, s.cfg.Ingest.MaxFileSize)
	defer body.Close()

	name := r.URL.Query().Get("name")
	var data []byte

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil, errNoFile
			}
			if err != nil {
				return nil, err
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}
			if name == "" {
				name = filepath.Base(part.FileName())
			}
			data, err = io.ReadAll(part)
			part.Close()
			if err != nil {
				return nil, err
			}
			break
		}
	} else {
		var err error
		data, err = io.ReadAll(body)
		if err != nil {
			return nil, err
		}
	}

	if len(data) == 0 {
		return nil, errNoFile
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = defaultUploadName
	}
	return ingest.BytesSource(name, data), nil
}

// allowedPath resolves p and checks that it lies under one of roots.
// Symlinks are resolved first so they cannot point outside a root.
func allowedPath(roots []string, p string) (string, error) {
	if len(roots) == 0 {
		return "", core.ErrPathNotAllowed
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	for _, root := range roots {
		root, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%s: %w", p, core.ErrPathNotAllowed)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"documents": s.service.List()})
}

// session looks up the {id} URL parameter, writing the error response when
// it fails.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, documentResponse{ID: sess.ID, Progress: sess.Progress()})
}

func (s *Server) handleCloseDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Close(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview returns the preview rows, which are replaced by the first
// full page once that exists. ready is false until the preview pass ran.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rows := sess.Preview()
	writeJSON(w, r, http.StatusOK, previewResponse{
		DocumentID: sess.ID,
		Ready:      rows != nil,
		Rows:       nonNil(rows),
	})
}

// handlePage serves ?offset=&size=. A page that cannot be filled within
// the wait budget is returned short with status "pending".
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	size, err := queryInt(r, "size", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	pg, err := sess.Page(r.Context(), offset, size)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pg.Rows = nonNil(pg.Rows)
	writeJSON(w, r, http.StatusOK, pageResponse{DocumentID: sess.ID, Generation: sess.Generation(), Page: pg})
}

// handleReset returns the first rows, leaving a scoped search view.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pg, err := sess.Reset()
	if err != nil {
		respondError(w, r, err)
		return
	}
	pg.Rows = nonNil(pg.Rows)
	writeJSON(w, r, http.StatusOK, pageResponse{DocumentID: sess.ID, Generation: sess.Generation(), Page: pg})
}

// handleCancel stops ingestion. Rows already loaded stay readable.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Cancel()
	writeJSON(w, r, http.StatusAccepted, documentResponse{ID: sess.ID, Progress: sess.Progress()})
}

// handleReload re-reads a file-backed document. reloaded is false when the
// content is unchanged.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	reloaded, err := s.service.Reload(r.Context(), sess.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, reloadResponse{
		DocumentID: sess.ID,
		Reloaded:   reloaded,
		Generation: sess.Generation(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.service.Len(),
		"ingest":    s.service.LimiterStatus(),
	})
}

func nonNil(rows []rowstore.Row) []rowstore.Row {
	if rows == nil {
		return []rowstore.Row{}
	}
	return rows
}
