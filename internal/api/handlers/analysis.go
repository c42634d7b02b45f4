package handlers

import (
	"net/http"

	"github.com/compasshq/compass-backend/internal/classify"
	"github.com/compasshq/compass-backend/internal/document"
	"github.com/compasshq/compass-backend/internal/summarize"
)

// AnalysisHandler serves the on-demand LLM operations that work off a
// document's OCR text: classification and summarization. Both require OCR
// to have produced text already.
type AnalysisHandler struct {
	docs       *DocumentHandler
	classifier *classify.Classifier
	summarizer *summarize.Summarizer
}

func NewAnalysisHandler(docs *DocumentHandler, c *classify.Classifier, s *summarize.Summarizer) *AnalysisHandler {
	return &AnalysisHandler{docs: docs, classifier: c, summarizer: s}
}

func (h *AnalysisHandler) Classify(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.docs.ownedDocument(w, r)
	if !ok {
		return
	}

	text := document.TrimmedOCRText(doc)
	if text == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "document has no OCR text yet"})
		return
	}

	result, err := h.classifier.Classify(r.Context(), text)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id":    doc.ID.String(),
		"classification": result,
	})
}

func (h *AnalysisHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.docs.ownedDocument(w, r)
	if !ok {
		return
	}

	text := document.TrimmedOCRText(doc)
	if text == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "document has no OCR text yet"})
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), text)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": doc.ID.String(),
		"summary":     summary,
	})
}
