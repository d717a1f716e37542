// Package router exposes the search pager over HTTP.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/core/config"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	"github.com/mohammed-shakir/map-search-pager/internal/pager"
)

const maxSelectionBody = 1 << 20

// Handlers serves one pager instance.
type Handlers struct {
	logger *slog.Logger
	cfg    config.Config
	bus    bus.Bus
	pager  *pager.Pager
	pages  *pager.AnchorList
}

func New(logger *slog.Logger, cfg config.Config, b bus.Bus, p *pager.Pager, pages *pager.AnchorList) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, cfg: cfg, bus: b, pager: p, pages: pages}
}

type SearchParams struct {
	Rows  int
	Page  int
	Query *string
}

// ParseSearchParams reads rows, page and q. An absent q means "reuse the last query".
func ParseSearchParams(r *http.Request, cfg config.Config) (SearchParams, error) {
	v := r.URL.Query()
	out := SearchParams{Rows: cfg.DefaultRows, Page: 1}

	if raw := strings.TrimSpace(v.Get("rows")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SearchParams{}, fmt.Errorf("%w: rows: %w", pager.ErrInvalidPageRequest, err)
		}
		out.Rows = n
	}
	if cfg.MaxRows > 0 && out.Rows > cfg.MaxRows {
		return SearchParams{}, fmt.Errorf("%w: rows %d exceeds max %d", pager.ErrInvalidPageRequest, out.Rows, cfg.MaxRows)
	}
	if raw := strings.TrimSpace(v.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SearchParams{}, fmt.Errorf("%w: page: %w", pager.ErrInvalidPageRequest, err)
		}
		out.Page = n
	}
	if v.Has("q") {
		q := v.Get("q")
		out.Query = &q
	}
	return out, nil
}

type searchResponse struct {
	Results  []model.Item   `json:"results"`
	Query    string         `json:"query"`
	Count    int            `json:"count"`
	Page     int            `json:"page"`
	Rows     int            `json:"rows"`
	Start    int            `json:"start"`
	NumPages int            `json:"num_pages"`
	Pages    []pager.Anchor `json:"pages"`
}

// Search runs GoTo with the pager's default action and waits for the outcome.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	sp, err := ParseSearchParams(r, h.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pending, err := h.pager.GoTo(r.Context(), pager.Params{Rows: sp.Rows, Page: sp.Page, Query: sp.Query})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	page, err := pending.Wait(r.Context())
	switch {
	case errors.Is(err, pager.ErrSuperseded):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, pager.ErrSearchFailed):
		h.logger.WarnContext(r.Context(), "search failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		// client went away
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	results := page.Result.Results
	if results == nil {
		results = []model.Item{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:  results,
		Query:    page.Request.Query,
		Count:    page.Result.Count,
		Page:     sp.Page,
		Rows:     page.Request.Rows,
		Start:    page.Request.Start,
		NumPages: page.NumPages,
		Pages:    page.Anchors,
	})
}

// Selection accepts a Map.area_selected payload and publishes it on the bus.
func (h *Handlers) Selection(w http.ResponseWriter, r *http.Request) {
	var ev model.AreaSelected
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSelectionBody))
	if err := dec.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", model.ErrInvalidSelection, err))
		return
	}

	sel, err := ev.Selection()
	switch {
	case errors.Is(err, model.ErrUnknownShape):
		// unknown shapes leave the filter untouched
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.bus.Publish(bus.TopicAreaSelected, ev)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"extras": sel.Filter().Extras(),
	})
}

// Pages returns the current page links as JSON or, for browsers, as HTML.
func (h *Handlers) Pages(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		html, err := h.pages.HTML()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, html)
		return
	}
	writeJSON(w, http.StatusOK, h.pages.Anchors())
}

type stateResponse struct {
	Page   int           `json:"page"`
	Query  string        `json:"query"`
	Extras *model.Extras `json:"extras,omitempty"`
}

func (h *Handlers) State(w http.ResponseWriter, _ *http.Request) {
	out := stateResponse{
		Page:  h.pager.Shared().CurrentPage(),
		Query: h.pager.Shared().CurrentQuery(),
	}
	if f := h.pager.Filter(); f != nil {
		e := f.Extras()
		out.Extras = &e
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
