package devserver

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MaxImageBytes bounds accepted uploads.
const MaxImageBytes = 5 << 20

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read upload")
		return
	}
	if len(data) > MaxImageBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	ct := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		respondError(w, http.StatusUnsupportedMediaType, "only images are accepted")
		return
	}

	key := uuid.NewString() + strings.ToLower(filepath.Ext(hdr.Filename))
	s.mu.Lock()
	s.images[key] = image{contentType: ct, data: data}
	s.mu.Unlock()

	respondData(w, http.StatusCreated, map[string]any{
		"url":         "http://" + r.Host + "/images/" + key,
		"key":         key,
		"size":        len(data),
		"contentType": ct,
	})
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	img, ok := s.images[chi.URLParam(r, "key")]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", img.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.data)))
	_, _ = w.Write(img.data)
}
