package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/cpuprof/internal/analysis"
	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/filter"
	"github.com/getsentry/cpuprof/internal/httputil"
	"github.com/getsentry/cpuprof/internal/metrics"
	"github.com/getsentry/cpuprof/internal/profile"
	"github.com/getsentry/cpuprof/internal/storageutil"
	"github.com/getsentry/cpuprof/internal/timings"
)

const defaultTopLimit = 20

type (
	// session is an analysis kept in memory. Filters mutate the timings, so
	// every access goes through mu.
	session struct {
		mu       sync.Mutex
		analysis *analysis.Analysis
	}

	sessions struct {
		mu   sync.RWMutex
		byID map[string]*session
	}

	PostProfileResponse struct {
		ID string `json:"id"`
	}

	NodeResponse struct {
		Node      uint32          `json:"node"`
		Value     uint32          `json:"value"`
		Label     analysis.Label  `json:"label"`
		Nested    bool            `json:"nested"`
		Timings   timings.Timings `json:"timings"`
		Ancestors []uint32        `json:"ancestors"`
		Children  []uint32        `json:"children"`
	}

	ValueResponse struct {
		Value   uint32          `json:"value"`
		Label   analysis.Label  `json:"label"`
		Timings timings.Timings `json:"timings"`
		Nodes   []uint32        `json:"nodes"`
	}
)

func newSessions() *sessions {
	return &sessions{byID: make(map[string]*session)}
}

func (s *sessions) get(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.byID[id]
	return ss, ok
}

func (s *sessions) put(id string, a *analysis.Analysis) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := &session{analysis: a}
	s.byID[id] = ss
	return ss
}

func (s *sessions) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	return ok
}

// session returns the analysis of a profile, reading it from storage when it
// is not in memory.
func (e *environment) session(ctx context.Context, id string) (*session, error) {
	if ss, ok := e.sessions.get(id); ok {
		return ss, nil
	}
	s := sentry.StartSpan(ctx, "storage.read")
	p, err := profile.Read(ctx, e.storage, id)
	s.Finish()
	if err != nil {
		return nil, err
	}
	a, err := analyze(ctx, e.config, p, e.set)
	if err != nil {
		return nil, err
	}
	e.set.Add(id, a.Keys())
	return e.sessions.put(id, a), nil
}

func (e *environment) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session, string, bool) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	id := httprouter.ParamsFromContext(ctx).ByName("profile_id")
	if hub != nil {
		hub.Scope().SetTag("profile_id", id)
	}
	ss, err := e.session(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, storageutil.ErrObjectNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, errorutil.ErrDataIntegrity):
			log.Err(err).Str("profile_id", id).Msg("stored profile can't be analyzed")
			w.WriteHeader(http.StatusUnprocessableEntity)
		default:
			captureException(hub, err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return nil, id, false
	}
	return ss, id, true
}

func treeFromRequest(w http.ResponseWriter, r *http.Request, a *analysis.Analysis) (*analysis.Tree, bool) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("tree")
	t, ok := a.Tree(name)
	if !ok {
		http.Error(w, "unknown tree "+strconv.Quote(name), http.StatusNotFound)
		return nil, false
	}
	return t, true
}

func uint32Param(w http.ResponseWriter, r *http.Request, key string) (uint32, bool) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName(key)
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.Error(w, "invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return uint32(v), true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	s := sentry.StartSpan(r.Context(), "json.marshal")
	defer s.Finish()
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		captureException(sentry.GetHubFromContext(r.Context()), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func captureException(hub *sentry.Hub, err error) {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

func (e *environment) postProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Decode raw profile"
	p, err := profile.Decode(r.Body)
	s.Finish()
	if err != nil {
		log.Err(err).Msg("profile can't be decoded")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := analyze(ctx, e.config, p, e.set)
	if err != nil {
		if errors.Is(err, errorutil.ErrDataIntegrity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		captureException(hub, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	s = sentry.StartSpan(ctx, "storage.write")
	err = profile.Write(ctx, e.storage, id, p)
	s.Finish()
	if err != nil {
		captureException(hub, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	e.set.Add(id, a.Keys())
	e.sessions.put(id, a)
	log.Debug().Str("profile_id", id).Str("profile", p.Summary()).Msg("profile stored")
	writeJSON(w, r, http.StatusCreated, PostProfileResponse{ID: id})
}

func (e *environment) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("profile_id")
	if !e.sessions.remove(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	e.set.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) getNode(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	a := ss.analysis
	tree, ok := treeFromRequest(w, r, a)
	if !ok {
		return
	}
	node, ok := uint32Param(w, r, "node")
	if !ok {
		return
	}
	ct := tree.CallTree
	ancestors, err := ct.Ancestors(node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	children, _ := ct.Children(node)
	value := ct.Value(node)
	writeJSON(w, r, http.StatusOK, NodeResponse{
		Node:      node,
		Value:     value,
		Label:     a.Label(tree.Name, value),
		Nested:    ct.Nested[node] == 1,
		Timings:   tree.GetTimings(node),
		Ancestors: ancestors,
		Children:  children,
	})
}

func (e *environment) getValue(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	a := ss.analysis
	tree, ok := treeFromRequest(w, r, a)
	if !ok {
		return
	}
	value, ok := uint32Param(w, r, "value")
	if !ok {
		return
	}
	includeNested := r.URL.Query().Get("include_nested") == "true"
	nodes := tree.SelectNodes(value, includeNested)
	if nodes == nil {
		nodes = []uint32{}
	}
	writeJSON(w, r, http.StatusOK, ValueResponse{
		Value:   value,
		Label:   a.Label(tree.Name, value),
		Timings: tree.GetValueTimings(value),
		Nodes:   nodes,
	})
}

func (e *environment) getTop(w http.ResponseWriter, r *http.Request) {
	ss, id, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	tree, ok := treeFromRequest(w, r, ss.analysis)
	if !ok {
		return
	}
	limit := uint64(defaultTopLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	ma := metrics.NewAggregator(uint(limit), 1)
	ma.AddFunctions(metrics.Functions(ss.analysis, tree), id)
	writeJSON(w, r, http.StatusOK, ma.ToMetrics())
}

func (e *environment) getExport(w http.ResponseWriter, r *http.Request) {
	ss, id, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	tree, ok := treeFromRequest(w, r, ss.analysis)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", formatSpeedscope:
		format = formatSpeedscope
		w.Header().Set("Content-Type", "application/json")
	case formatPprof:
		w.Header().Set("Content-Type", "application/octet-stream")
	default:
		http.Error(w, "unknown format "+strconv.Quote(format), http.StatusBadRequest)
		return
	}
	if err := writeExport(w, format, ss.analysis, tree, id); err != nil {
		captureException(sentry.GetHubFromContext(r.Context()), err)
	}
}

func (e *environment) putRange(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	params, logger, ok := httputil.GetRequiredQueryParameters(w, r, "start", "end")
	if !ok {
		return
	}
	start, err := strconv.ParseInt(params["start"], 10, 64)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := strconv.ParseInt(params["end"], 10, 64)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if err := ss.analysis.Range.SetRange(start, end); err != nil {
		logger.Debug().Err(err).Msg("invalid range")
		if errors.Is(err, errorutil.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		captureException(sentry.GetHubFromContext(r.Context()), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) deleteRange(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.analysis.Range.ResetRange()
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) putConvolution(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rule, err := filter.ExprRule(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.analysis.Convolution.SetRule(rule)
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) deleteConvolution(w http.ResponseWriter, r *http.Request) {
	ss, _, ok := e.sessionFromRequest(w, r)
	if !ok {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.analysis.Convolution.SetRule(nil)
	w.WriteHeader(http.StatusNoContent)
}
