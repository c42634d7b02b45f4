package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/compasshq/compass-backend/internal/auth"
	"github.com/compasshq/compass-backend/internal/cache"
	"github.com/compasshq/compass-backend/internal/document"
	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/storage"
)

const downloadURLTTL = time.Hour

type DocumentHandler struct {
	svc     *document.Service
	storage storage.Storage
	cache   *cache.Cache
}

func NewDocumentHandler(svc *document.Service, store storage.Storage, c *cache.Cache) *DocumentHandler {
	return &DocumentHandler{svc: svc, storage: store, cache: c}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}

	doc, err := h.svc.Upload(r.Context(), document.UploadRequest{
		OwnerID:     auth.OwnerFromContext(r.Context()),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		switch {
		case errors.Is(err, document.ErrUnsupportedType), errors.Is(err, document.ErrInvalidPDF):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Document uploaded successfully",
		"document": doc,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}

	docs, err := h.svc.List(r.Context(), auth.OwnerFromContext(r.Context()), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	fileURL, err := h.signedURL(r, doc)
	if err != nil {
		// The record is still useful without a link.
		fileURL = ""
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document": doc,
		"file_url": fileURL,
	})
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            doc.ID.String(),
		"status":        doc.Status,
		"error_message": doc.ErrorMessage,
	})
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	url, err := h.signedURL(r, doc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate download URL"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"download_url": url,
		"filename":     doc.OriginalFilename,
		"expires_in":   int(downloadURLTTL.Seconds()),
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	err = h.svc.Delete(r.Context(), id, auth.OwnerFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.cache.Delete(r.Context(), signURLCacheKey(id))

	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

// ownedDocument resolves {id} scoped to the authenticated owner, writing
// the error response itself when the lookup fails.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return nil, false
	}

	doc, err := h.svc.GetForOwner(r.Context(), id, auth.OwnerFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
			return nil, false
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return doc, true
}

// signedURL returns a time-limited blob URL, cached for slightly less than
// its validity so a cached link is never already expired when served.
func (h *DocumentHandler) signedURL(r *http.Request, doc *models.Document) (string, error) {
	key := signURLCacheKey(doc.ID)

	var cached string
	if err := h.cache.Get(r.Context(), key, &cached); err == nil && cached != "" {
		return cached, nil
	}

	url, err := h.storage.SignURL(r.Context(), doc.StorageBucket, doc.StorageKey, downloadURLTTL)
	if err != nil {
		return "", err
	}

	// Cache failures only cost a re-sign next time.
	_ = h.cache.Set(r.Context(), key, url, downloadURLTTL-5*time.Minute)
	return url, nil
}

func signURLCacheKey(id uuid.UUID) string {
	return "signurl:" + id.String()
}
