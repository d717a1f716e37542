// Package pager turns map selections into paginated searches and renders
// the page-number links for the result count.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
	mylog "github.com/mohammed-shakir/map-search-pager/internal/logger"
)

var (
	ErrInvalidSelection   = model.ErrInvalidSelection
	ErrUnknownShape       = model.ErrUnknownShape
	ErrInvalidPageRequest = errors.New("invalid page request")
	ErrSearchFailed       = errors.New("search failed")
	ErrSuperseded         = errors.New("search superseded by a newer request")
)

// Action executes one page of a search.
type Action func(ctx context.Context, req model.PageRequest) (model.SearchResult, error)

// Params for GoTo. A nil Query reuses the previous query text.
type Params struct {
	Rows   int
	Page   int
	Query  *string
	Action Action
}

// Page is the outcome of a completed GoTo.
type Page struct {
	Request  model.PageRequest
	Result   model.SearchResult
	NumPages int
	Anchors  []Anchor
}

type Option func(*Pager)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pager) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithContainer(c Container) Option {
	return func(p *Pager) {
		if c != nil {
			p.container = c
		}
	}
}

func WithSharedState(s *SharedState) Option {
	return func(p *Pager) {
		if s != nil {
			p.shared = s
		}
	}
}

// WithDefaultAction is used when Params.Action is nil.
func WithDefaultAction(a Action) Option {
	return func(p *Pager) { p.defaultAction = a }
}

// WithSearchTimeout bounds every action call; zero disables the bound.
func WithSearchTimeout(d time.Duration) Option {
	return func(p *Pager) { p.timeout = d }
}

type Pager struct {
	bus           bus.Bus
	logger        *slog.Logger
	container     Container
	shared        *SharedState
	defaultAction Action
	timeout       time.Duration
	now           func() time.Time

	mu         sync.Mutex
	lastQuery  string
	lastFilter model.SpatialFilter
	gen        uint64
	cancel     context.CancelFunc
	closed     bool

	renderMu    sync.Mutex
	unsubscribe func()
}

// New creates a pager and subscribes it to bus.TopicAreaSelected until Close.
func New(b bus.Bus, opts ...Option) *Pager {
	p := &Pager{
		bus:       b,
		logger:    slog.Default(),
		container: NewAnchorList(),
		shared:    NewSharedState(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.unsubscribe = b.Subscribe(bus.TopicAreaSelected, p.handleAreaSelected)
	return p
}

func (p *Pager) Shared() *SharedState { return p.shared }

func (p *Pager) Container() Container { return p.container }

// Filter returns the active spatial filter, or nil when nothing is selected yet.
func (p *Pager) Filter() model.SpatialFilter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFilter
}

// Close unsubscribes from the bus and cancels any in-flight search.
func (p *Pager) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.unsubscribe()
}

func (p *Pager) handleAreaSelected(_ string, payload any) {
	ctx := mylog.WithComponent(context.Background(), "pager")

	var (
		sel model.Selection
		err error
	)
	switch v := payload.(type) {
	case model.Selection:
		sel = v
	case model.AreaSelected:
		sel, err = v.Selection()
	case *model.AreaSelected:
		if v == nil {
			err = fmt.Errorf("%w: nil payload", ErrInvalidSelection)
			break
		}
		sel, err = v.Selection()
	default:
		err = fmt.Errorf("%w: payload %T", ErrUnknownShape, payload)
	}

	switch {
	case errors.Is(err, ErrUnknownShape):
		observability.IncSelection("", "ignored")
		p.logger.DebugContext(ctx, "ignoring unrecognised selection", "err", err)
		return
	case err != nil:
		observability.IncSelection("", "invalid")
		p.logger.WarnContext(ctx, "ignoring invalid selection", "err", err)
		return
	}
	p.OnSpatialSelection(sel)
}

// OnSpatialSelection replaces the active filter with the one derived from sel.
func (p *Pager) OnSpatialSelection(sel model.Selection) {
	if sel == nil {
		return
	}
	f := sel.Filter()

	p.mu.Lock()
	p.lastFilter = f
	p.mu.Unlock()

	observability.IncSelection(string(sel.Shape()), "applied")
	p.logger.Debug("spatial filter updated", "shape", string(sel.Shape()), "kind", string(f.Kind()))
}

// GoTo starts the search for params.Page and returns immediately. The returned
// Pending resolves once the results were published and the page links rebuilt,
// or with an error wrapping ErrSearchFailed or ErrSuperseded.
func (p *Pager) GoTo(ctx context.Context, params Params) (*Pending, error) {
	if params.Rows <= 0 {
		observability.IncSearch("invalid")
		return nil, fmt.Errorf("%w: rows must be positive (got %d)", ErrInvalidPageRequest, params.Rows)
	}
	if params.Page < 1 {
		observability.IncSearch("invalid")
		return nil, fmt.Errorf("%w: page must be >= 1 (got %d)", ErrInvalidPageRequest, params.Page)
	}
	action := params.Action
	if action == nil {
		action = p.defaultAction
	}
	if action == nil {
		observability.IncSearch("invalid")
		return nil, fmt.Errorf("%w: no search action", ErrInvalidPageRequest)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: pager closed", ErrInvalidPageRequest)
	}
	if params.Query != nil {
		p.lastQuery = *params.Query
	}
	q := p.lastQuery
	if p.lastFilter == nil {
		p.lastFilter = model.WorldBBox()
	}
	req := model.PageRequest{
		Rows:   params.Rows,
		Query:  q,
		Start:  StartOffset(params.Page, params.Rows),
		Extras: p.lastFilter.Extras(),
	}
	p.shared.set(params.Page, q)

	// last write wins
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if p.timeout > 0 {
		runCtx, cancel = withTimeout(runCtx, cancel, p.timeout)
	}
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "searching",
		"q", q, "rows", req.Rows, "page", params.Page, "start", req.Start)

	pending := newPending()
	go p.run(runCtx, cancel, gen, params, req, action, pending)
	return pending, nil
}

func withTimeout(ctx context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, tcancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		tcancel()
		parentCancel()
	}
}

func (p *Pager) run(ctx context.Context, cancel context.CancelFunc, gen uint64, params Params, req model.PageRequest, action Action, pending *Pending) {
	defer cancel()

	start := p.now()
	res, err := callAction(ctx, action, req)
	observability.ObserveSearchDuration(p.now().Sub(start).Seconds())

	if !p.isCurrent(gen) {
		p.supersede(params, pending)
		return
	}

	if err != nil {
		observability.IncSearch("failed")
		p.logger.Warn("search failed", "q", req.Query, "page", params.Page, "err", err)
		p.bus.Publish(bus.TopicSearchFailed, model.SearchFailed{
			Query: req.Query,
			Page:  params.Page,
			Rows:  params.Rows,
			Error: err.Error(),
		})
		pending.resolve(Page{}, fmt.Errorf("%w: %w", ErrSearchFailed, err))
		return
	}

	p.bus.Publish(bus.TopicResultsReceived, model.ResultsReceived{
		Results: res.Results,
		Query:   req.Query,
		Count:   res.Count,
	})

	// a subscriber may have started a newer search while we published
	anchors, ok := p.render(gen, res.Count, params)
	if !ok {
		p.supersede(params, pending)
		return
	}
	observability.IncSearch("ok")
	pending.resolve(Page{
		Request:  req,
		Result:   res,
		NumPages: len(anchors),
		Anchors:  anchors,
	}, nil)
}

func (p *Pager) supersede(params Params, pending *Pending) {
	observability.IncSearch("superseded")
	pending.resolve(Page{}, fmt.Errorf("%w: page %d", ErrSuperseded, params.Page))
}

type actionResult struct {
	res model.SearchResult
	err error
}

// callAction runs the action on its own goroutine so a deadline is honoured
// even when the action ignores ctx.
func callAction(ctx context.Context, action Action, req model.PageRequest) (model.SearchResult, error) {
	done := make(chan actionResult, 1)
	go func() {
		var out actionResult
		defer func() {
			if rec := recover(); rec != nil {
				out = actionResult{err: fmt.Errorf("action panic: %v", rec)}
			}
			done <- out
		}()
		out.res, out.err = action(ctx, req)
	}()

	select {
	case out := <-done:
		if out.err == nil && ctx.Err() != nil {
			return model.SearchResult{}, ctx.Err()
		}
		return out.res, out.err
	case <-ctx.Done():
		return model.SearchResult{}, ctx.Err()
	}
}

func (p *Pager) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen && !p.closed
}

// render rebuilds the container for a search that is still current. The check
// and the rebuild share renderMu, so a newer search always renders last.
func (p *Pager) render(gen uint64, count int, params Params) ([]Anchor, bool) {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	if !p.isCurrent(gen) {
		return nil, false
	}
	anchors := Render(count, params.Rows, params.Page)
	if r, ok := p.container.(Replacer); ok {
		r.Replace(anchors)
	} else {
		p.container.Reset()
		for _, a := range anchors {
			p.container.Append(a)
		}
	}
	observability.SetPagesRendered(len(anchors))
	return anchors, true
}
