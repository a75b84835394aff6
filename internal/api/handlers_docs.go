package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/store"
)

type tickerDocument struct {
	store.Summary
	ComparedWith string          `json:"compared_with,omitempty"`
	Metrics      doctree.Metrics `json:"metrics"`
}

// handleTickerDocuments lists a ticker's filings with whole-document drift
// from the last similarity run.
func (s *Server) handleTickerDocuments(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	ctx := r.Context()

	summaries, err := s.db.Summaries(ctx, ticker)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	scored, err := s.db.DocumentsForTicker(ctx, ticker)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	byName := make(map[string]store.TickerDocument, len(scored))
	for _, d := range scored {
		byName[d.Name] = d
	}

	docs := make([]tickerDocument, 0, len(summaries))
	for _, sum := range summaries {
		d := tickerDocument{Summary: sum}
		if td, ok := byName[sum.Name]; ok {
			d.ComparedWith = td.ComparedWith
			d.Metrics = td.Metrics
		}
		docs = append(docs, d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ticker": ticker, "documents": docs})
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rows, err := s.catalog.Sections(r.Context(), name)
	if err != nil {
		storeError(w, err)
		return
	}
	if rows == nil {
		rows = []store.SectionRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"document": name, "sections": rows})
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil {
		jsonError(w, "invalid section title", http.StatusBadRequest)
		return
	}
	row, err := s.catalog.Section(r.Context(), name, title)
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(row)
}

// handleSearch returns title -> text for sections whose title contains any
// of the q parameters.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	keywords := r.URL.Query()["q"]
	if len(keywords) == 0 {
		jsonError(w, "at least one q parameter is required", http.StatusBadRequest)
		return
	}
	matches, err := s.catalog.Search(r.Context(), name, keywords...)
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"document": name, "sections": matches})
}

func storeError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}
