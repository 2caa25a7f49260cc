package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/core"
	"spacecore/internal/exif"
	"spacecore/pkg/domain"
)

const maxUploadBytes = 64 << 20

// Form boundary defaults. The core itself never fills these in.
const (
	defaultAuthor = "Unknown"
	defaultStatus = domain.StatusDraft
	defaultAction = domain.ActionUpdate
)

func (s *Server) handleListSpaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListSpaces())
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	author := formOr(r, "author", defaultAuthor)
	description := r.FormValue("description")

	folder := s.uploadFolder(r.FormValue("slug"))
	saved, err := s.storeUploads(r, uploadFiles(r, "files"), folder)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	created, _, err := s.service.CreateSpace(r.Context(), core.Space{
		Description: description,
		Images:      saved,
		CreatedBy:   author,
	})
	if err != nil {
		s.failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": created.ID, "folder": folder})
}

func (s *Server) handleAddUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	id, err := strconv.Atoi(r.FormValue("title_id"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "title_id required")
		return
	}

	author := formOr(r, "author", defaultAuthor)
	status := domain.Status(formOr(r, "status", string(defaultStatus)))
	action := domain.Action(formOr(r, "action", string(defaultAction)))
	noAppend := r.FormValue("no_append") == "1"

	var related []int
	for _, part := range strings.Split(r.FormValue("related"), ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			related = append(related, n)
		}
	}

	folder := fmt.Sprintf("%d-%s", id, s.uploadFolder(r.FormValue("slug")))
	saved, err := s.storeUploads(r, uploadFiles(r, "files"), folder)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(saved) == 0 {
		s.fail(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	// The client names the primary file; it leads the event's image list.
	images := orderByPrimary(saved, r.FormValue("primary"))

	event := core.UpdateEvent{
		Author:  author,
		Action:  action,
		Status:  status,
		Images:  images,
		Related: related,
	}
	if text := r.FormValue("text"); text != "" {
		event.Text = &text
	}

	updated, _, err := s.service.AppendUpdate(r.Context(), id, event, !noAppend)
	if err != nil {
		s.failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": updated.ID, "folder": folder})
}

func (s *Server) handleMarkTaken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	id, err := strconv.Atoi(r.FormValue("mark_id"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "mark_id required")
		return
	}

	req := core.TakeRequest{
		Artist:       formOr(r, "taken_by", defaultAuthor),
		Note:         r.FormValue("taken_note"),
		Publish:      r.FormValue("mark_publish") == "1" || r.FormValue("mark_publish") == "on",
		Instructions: r.FormValue("instructions"),
	}

	if files := uploadFiles(r, "taken_file"); len(files) > 0 {
		folder := fmt.Sprintf("%d-manual-update-%s", id, s.uploadFolder(""))
		saved, err := s.storeUploads(r, files[:1], folder)
		if err != nil {
			s.fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.ReplacementImage = &saved[0]
	}

	if files := uploadFiles(r, "instruction_files"); len(files) > 0 {
		folder := fmt.Sprintf("instruction-%d-%s", id, s.uploadFolder(""))
		saved, err := s.storeUploads(r, files, folder)
		if err != nil {
			s.fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.InstructionImages = saved
	}

	updated, _, err := s.service.MarkTaken(r.Context(), id, req)
	if err != nil {
		s.failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"id":        updated.ID,
		"status":    updated.Status,
		"published": updated.Status == core.StatusPublished,
	})
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid form")
		return
	}
	id, err := strconv.Atoi(r.FormValue("revert_id"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "revert_id required")
		return
	}
	updated, _, err := s.service.RevertUpdate(r.Context(), id)
	if err != nil {
		s.failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": updated.ID, "status": updated.Status})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	info, rc, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	_, _ = io.Copy(w, rc)
}

// storeUploads saves each upload to the blob store under folder and returns
// image references. taken_at comes from EXIF data when present, falling back
// to the upload time.
func (s *Server) storeUploads(r *http.Request, files []*multipart.FileHeader, folder string) ([]domain.ImageRef, error) {
	refs := make([]domain.ImageRef, 0, len(files))
	for _, fh := range files {
		file, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}

		name := sanitizeFilename(fh.Filename)
		takenAt := s.extractTakenAt(r, name, data)

		key := folder + "/" + name
		if _, err := s.blobs.Put(r.Context(), key, bytes.NewReader(data), blob.PutOptions{
			ContentType: fh.Header.Get("Content-Type"),
		}); err != nil {
			return nil, fmt.Errorf("store upload %s: %w", name, err)
		}
		refs = append(refs, domain.ImageRef{Src: "img/" + key, TakenAt: takenAt})
	}
	return refs, nil
}

// extractTakenAt runs exiftool against a temp copy of the upload. Any
// failure falls back to the upload time.
func (s *Server) extractTakenAt(r *http.Request, name string, data []byte) *string {
	fallback := domain.FormatTimestamp(s.clock())
	tmp, err := os.CreateTemp("", "upload-*-"+name)
	if err != nil {
		return &fallback
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &fallback
	}
	tmp.Close()
	if taken := exif.ExtractTakenAt(r.Context(), tmp.Name()); taken != nil {
		return taken
	}
	return &fallback
}

func (s *Server) uploadFolder(slug string) string {
	batch := strings.Split(uuid.NewString(), "-")[0]
	if slug == "" {
		return "upload-" + batch
	}
	return sanitizeFilename(slug) + "-" + batch
}

// orderByPrimary tags and fronts the named primary file; the rest follow as
// supplementary in upload order.
func orderByPrimary(saved []domain.ImageRef, primary string) []domain.ImageRef {
	ordered := make([]domain.ImageRef, 0, len(saved))
	var rest []domain.ImageRef
	for _, ref := range saved {
		if primary != "" && filepath.Base(ref.Src) == primary {
			ref.Role = domain.RolePrimary
			ordered = append(ordered, ref)
			continue
		}
		ref.Role = domain.RoleSupplementary
		rest = append(rest, ref)
	}
	return append(ordered, rest...)
}

func uploadFiles(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '.', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, base)
	if clean == "" || clean == "." {
		clean = "file"
	}
	return clean
}

func formOr(r *http.Request, field, fallback string) string {
	if v := r.FormValue(field); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// failErr translates service errors into HTTP responses.
func (s *Server) failErr(w http.ResponseWriter, err error) {
	var notFound domain.NotFoundError
	var emptyLog domain.EmptyLogError
	var invalid domain.ValidationError
	var blocked domain.RuleViolationError
	switch {
	case errors.As(err, &notFound):
		s.fail(w, http.StatusNotFound, err.Error())
	case errors.As(err, &emptyLog):
		s.fail(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		s.fail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &blocked):
		s.fail(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("handler error", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "internal error")
	}
}
