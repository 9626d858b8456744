package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/aether/internal/derive"
	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// projectionView is the body of GET /projection.
type projectionView struct {
	Cursor    int64               `json:"cursor"`
	Loaded    bool                `json:"loaded"`
	Snapshot  projection.Snapshot `json:"snapshot"`
	Selected  string              `json:"selected_item_id,omitempty"`
	Connected bool                `json:"connected"`
	Views     Views               `json:"views"`
}

// statusView is the body of GET /status.
type statusView struct {
	Status    Status             `json:"status"`
	Summary   projection.Summary `json:"summary"`
	Cursor    int64              `json:"cursor"`
	Connected bool               `json:"connected"`
	Renders   int64              `json:"renders"`
	Sheets    int64              `json:"sheet_builds"`
}

// Handler returns the status server routes wrapped in the observability
// middleware.
//
//	GET /healthz     liveness
//	GET /readyz      snapshot loaded, stream connected, journal reachable
//	GET /metrics     Prometheus scrape
//	GET /projection  the full projection as JSON plus derived views
//	GET /log         the event log, newest first (?limit=N)
//	GET /status      last command status and a projection summary
//
//	GET  /catalog/items      item templates (?q=&type=&rarity=&two_handed=&class=)
//	GET  /catalog/quests     quest templates (?q=&mandatory=)
//	GET  /catalog/messages   message templates (?q=&severity=)
//	POST /view/item          select an inventory item (?id=, empty clears)
//	POST /view/chat          open a chat thread (?id=, empty closes)
//	POST /view/messages/{id} collapse or expand a message (?collapsed=true|false)
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(a.promReg))
	mux.HandleFunc("GET /projection", a.handleProjection)
	mux.HandleFunc("GET /log", a.handleLog)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /catalog/items", a.handleCatalogItems)
	mux.HandleFunc("GET /catalog/quests", a.handleCatalogQuests)
	mux.HandleFunc("GET /catalog/messages", a.handleCatalogMessages)
	mux.HandleFunc("POST /view/item", a.handleSelectItem)
	mux.HandleFunc("POST /view/chat", a.handleSelectChat)
	mux.HandleFunc("POST /view/messages/{id}", a.handleCollapseMessage)

	mw := observe.Middleware(a.metrics, observe.WithQuietPaths("/healthz", "/readyz", "/metrics"))
	return mw(mux)
}

func (a *App) handleProjection(w http.ResponseWriter, r *http.Request) {
	cursor, loaded := a.rec.Cursor(), a.rec.Loaded()

	// Encode under the lock; the snapshot shares maps with the store.
	var buf bytes.Buffer
	var err error
	a.rec.View(func(s *projection.Store) {
		err = json.NewEncoder(&buf).Encode(projectionView{
			Cursor:    cursor,
			Loaded:    loaded,
			Snapshot:  s.Snapshot(),
			Selected:  s.SelectedItemID,
			Connected: a.rec.Connected(),
			Views:     a.buildViews(s),
		})
	})
	if err != nil {
		slog.WarnContext(r.Context(), "encode projection", "err", err)
		http.Error(w, "encode projection", http.StatusInternalServerError)
		return
	}
	writeRaw(w, buf.Bytes())
}

func (a *App) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var events []event.Event
	a.rec.View(func(s *projection.Store) {
		events = s.LogNewestFirst()
	})
	if limit >= 0 && len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, map[string]any{"events": events})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var sum projection.Summary
	a.rec.View(func(s *projection.Store) { sum = s.Summarize() })
	writeJSON(w, statusView{
		Status:    a.Status(),
		Summary:   sum,
		Cursor:    a.rec.Cursor(),
		Connected: a.rec.Connected(),
		Renders:   a.Renders(),
		Sheets:    a.SheetBuilds(),
	})
}

// ─── Catalog search ─────────────────────────────────────────────────────────

func (a *App) handleCatalogItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	twoHanded, err := queryBool(q.Get("two_handed"))
	if err != nil {
		http.Error(w, "two_handed must be a boolean", http.StatusBadRequest)
		return
	}
	items := a.SearchItemTemplates(derive.ItemFilter{
		Type:      q.Get("type"),
		Rarity:    q.Get("rarity"),
		TwoHanded: twoHanded,
		ClassID:   q.Get("class"),
		Query:     q.Get("q"),
	})
	if items == nil {
		items = []types.ItemTemplate{}
	}
	writeJSON(w, map[string]any{"items": items})
}

func (a *App) handleCatalogQuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mandatory, err := queryBool(q.Get("mandatory"))
	if err != nil {
		http.Error(w, "mandatory must be a boolean", http.StatusBadRequest)
		return
	}
	quests := a.SearchQuestTemplates(derive.QuestFilter{OnlyMandatory: mandatory, Query: q.Get("q")})
	if quests == nil {
		quests = []types.QuestTemplate{}
	}
	writeJSON(w, map[string]any{"quests": quests})
}

func (a *App) handleCatalogMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs := a.SearchMessageTemplates(derive.MessageFilter{
		Severity: types.Severity(q.Get("severity")),
		Query:    q.Get("q"),
	})
	if msgs == nil {
		msgs = []types.MessageTemplate{}
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// ─── View state ─────────────────────────────────────────────────────────────

func (a *App) handleSelectItem(w http.ResponseWriter, r *http.Request) {
	a.writeViewResult(w, a.SelectItem(r.URL.Query().Get("id")))
}

func (a *App) handleSelectChat(w http.ResponseWriter, r *http.Request) {
	a.writeViewResult(w, a.SelectChat(r.URL.Query().Get("id")))
}

func (a *App) handleCollapseMessage(w http.ResponseWriter, r *http.Request) {
	collapsed, err := queryBool(r.URL.Query().Get("collapsed"))
	if err != nil {
		http.Error(w, "collapsed must be a boolean", http.StatusBadRequest)
		return
	}
	a.writeViewResult(w, a.SetMessageCollapsed(r.PathValue("id"), collapsed))
}

func (a *App) writeViewResult(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, a.Views())
}

// queryBool parses an optional boolean query value; empty is false.
func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}
