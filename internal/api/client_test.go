package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/resilience"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// ---- test helpers ----

// recordedRequest captures what the fake server received.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// fakeServer answers every request with status and body and records it.
type fakeServer struct {
	mu     sync.Mutex
	reqs   []recordedRequest
	status int
	body   string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.reqs = append(f.reqs, recordedRequest{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(b),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeServer) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("server received no request")
	}
	return f.reqs[len(f.reqs)-1]
}

func (f *fakeServer) respond(body string) {
	f.mu.Lock()
	f.body = body
	f.mu.Unlock()
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func newTestClient(t *testing.T, f *fakeServer, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	opts = append([]Option{WithMetrics(m)}, opts...)
	c, err := New(srv.URL+"/", "tok", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

const oneEvent = `{"events":[{"kind":"xp.granted","payload":{"amount":5},"ts":"2026-01-01T00:00:00Z","seq":7,"actor":"host"}]}`

func jsonEqual(t *testing.T, got, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("request body is not JSON: %v (%q)", err, got)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expectation: %v", err)
	}
	gb, _ := json.Marshal(g)
	wb, _ := json.Marshal(w)
	if string(gb) != string(wb) {
		t.Errorf("body = %s, want %s", gb, wb)
	}
}

// ---- constructor ----

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "tok"); err == nil {
		t.Error("expected error for empty baseURL")
	}
	if _, err := New("ftp://example.com", "tok"); err == nil {
		t.Error("expected error for ftp scheme")
	}
	if _, err := New("http://example.com", "tok", WithRole("gm")); err == nil {
		t.Error("expected error for unknown role")
	}

	c, err := New("http://example.com/base/", "tok", WithTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "http://example.com/base" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.Role() != RoleHost {
		t.Errorf("Role = %q, want host", c.Role())
	}
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", c.httpClient.Timeout)
	}
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	hc := &http.Client{}
	c, err := New("http://example.com", "", WithHTTPClient(hc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.httpClient != hc {
		t.Error("custom http client not used")
	}
}

// ---- transport ----

func TestCommand_SendsBearerAndDecodesEvents(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: oneEvent}
	c := newTestClient(t, f)

	events, err := c.GrantXP(context.Background(), 5)
	if err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
	if len(events) != 1 || events[0].Kind != event.KindXPGranted || events[0].SeqOr(0) != 7 {
		t.Fatalf("events = %+v", events)
	}

	req := f.last(t)
	if req.Method != http.MethodPost || req.Path != "/api/host/grant-xp" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Auth != "Bearer tok" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	jsonEqual(t, req.Body, `{"amount":5}`)
}

func TestSetToken(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: `{"events":[]}`}
	c := newTestClient(t, f)
	c.SetToken("rotated")

	if _, err := c.Freeze(context.Background(), true); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if got := f.last(t).Auth; got != "Bearer rotated" {
		t.Errorf("Authorization = %q", got)
	}

	c.SetToken("")
	if _, err := c.Freeze(context.Background(), false); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if got := f.last(t).Auth; got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestError_Detail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		forbidden  bool
	}{
		{"string detail", 400, `{"detail":"Item not found"}`, "Item not found", false},
		{"role mismatch", 403, `{"detail":"Forbidden"}`, "Forbidden", true},
		{"validation list", 422, `{"detail": [ {"loc":["body","amount"]} ]}`, `[{"loc":["body","amount"]}]`, false},
		{"plain text", 500, "boom\n", "boom", false},
		{"empty", 502, "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeServer{status: tc.status, body: tc.body}
			c := newTestClient(t, f)

			_, err := c.AssignQuest(context.Background(), "q1")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if apiErr.Status != tc.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tc.status)
			}
			if apiErr.Detail != tc.wantDetail {
				t.Errorf("Detail = %q, want %q", apiErr.Detail, tc.wantDetail)
			}
			if apiErr.Forbidden() != tc.forbidden {
				t.Errorf("Forbidden = %v", apiErr.Forbidden())
			}
			if apiErr.Op != "AssignQuest" {
				t.Errorf("Op = %q", apiErr.Op)
			}
		})
	}
}

func TestDecodeError_BadJSON(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: `{"events":`}
	c := newTestClient(t, f)
	_, err := c.AssignQuest(context.Background(), "q1")
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("err = %v, want decode error", err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		t.Error("decode failure must not be an *Error")
	}
}

func TestContextCanceled(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: oneEvent}
	c := newTestClient(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GrantXP(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// ---- breaker ----

func (f *fakeServer) setStatus(status int, body string) {
	f.mu.Lock()
	f.status, f.body = status, body
	f.mu.Unlock()
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	t.Parallel()

	f := &fakeServer{status: http.StatusBadGateway, body: `{"detail":"upstream"}`}
	b := resilience.New(resilience.Config{MaxFailures: 2, ResetTimeout: time.Hour, IsFailure: ServerFault})
	c := newTestClient(t, f, WithBreaker(b))
	ctx := context.Background()

	for range 2 {
		var apiErr *Error
		if _, err := c.GrantXP(ctx, 1); !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
			t.Fatalf("err = %v, want 502 *Error", err)
		}
	}
	if b.State() != resilience.StateOpen {
		t.Fatalf("breaker = %v, want open", b.State())
	}

	_, err := c.GrantXP(ctx, 1)
	if !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if !strings.HasPrefix(err.Error(), "api: GrantXP: ") {
		t.Errorf("err = %q, want op prefix", err)
	}
	if got := f.count(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestBreaker_RejectionsDoNotTrip(t *testing.T) {
	t.Parallel()

	f := &fakeServer{status: http.StatusUnprocessableEntity, body: `{"detail":"not enough points"}`}
	b := resilience.New(resilience.Config{MaxFailures: 1, IsFailure: ServerFault})
	c := newTestClient(t, f, WithBreaker(b))
	ctx := context.Background()

	for range 3 {
		if _, err := c.AllocateStat(ctx, "str", 1); err == nil {
			t.Fatal("expected 422 error")
		}
	}
	if _, err := c.GrantXP(ctx, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if b.State() != resilience.StateClosed {
		t.Errorf("breaker = %v, want closed", b.State())
	}

	f.setStatus(http.StatusOK, oneEvent)
	if _, err := c.GrantXP(ctx, 5); err != nil {
		t.Fatalf("GrantXP: %v", err)
	}
}

func TestBreaker_TransportErrorsTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	b := resilience.New(resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour, IsFailure: ServerFault})
	c, err := New(base, "tok", WithBreaker(b), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Snapshot(context.Background()); err == nil || errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("first call err = %v, want transport error", err)
	}
	if _, err := c.Snapshot(context.Background()); !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("second call err = %v, want ErrOpen", err)
	}
}

func TestServerFault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("api: X: %w", context.Canceled), false},
		{"invalid", invalid("bad"), false},
		{"bad request", &Error{Op: "X", Status: http.StatusBadRequest}, false},
		{"forbidden", &Error{Op: "X", Status: http.StatusForbidden}, false},
		{"server error", &Error{Op: "X", Status: http.StatusInternalServerError}, true},
		{"unavailable", fmt.Errorf("wrapped: %w", &Error{Op: "X", Status: http.StatusServiceUnavailable}), true},
		{"transport", fmt.Errorf("api: X: %w: %w", errTransport, errors.New("connection refused")), true},
		{"decode", errors.New("api: X: decode response: EOF"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerFault(tt.err); got != tt.want {
				t.Errorf("ServerFault(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// ---- validation ----

func TestInvalidInput_NoRequest(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: oneEvent}
	c := newTestClient(t, f)
	ctx := context.Background()

	calls := []struct {
		name string
		call func() error
	}{
		{"zero xp", func() error { _, err := c.GrantXP(ctx, 0); return err }},
		{"negative xp", func() error { _, err := c.GrantXP(ctx, -3); return err }},
		{"zero levels", func() error { _, err := c.LevelUp(ctx, 0); return err }},
		{"base xp", func() error {
			_, err := c.UpdateRules(ctx, Rules{XPCurve: types.XPCurve{BaseXP: 0, GrowthRate: 1}})
			return err
		}},
		{"growth rate", func() error {
			_, err := c.UpdateRules(ctx, Rules{XPCurve: types.XPCurve{BaseXP: 100, GrowthRate: 0}})
			return err
		}},
		{"stat rule", func() error {
			_, err := c.UpdateRules(ctx, Rules{
				XPCurve:  types.XPCurve{BaseXP: 100, GrowthRate: 1.5},
				StatRule: types.StatRule{BasePerLevel: -1},
			})
			return err
		}},
		{"stat mods", func() error {
			_, err := c.UpsertItemTemplate(ctx, ItemTemplateInput{Name: "Sword", StatMods: json.RawMessage(`{str: 2}`)})
			return err
		}},
		{"stat mods not ints", func() error {
			_, err := c.UpsertItemTemplate(ctx, ItemTemplateInput{Name: "Sword", StatMods: json.RawMessage(`{"str":"high"}`)})
			return err
		}},
		{"template name", func() error { _, err := c.UpsertItemTemplate(ctx, ItemTemplateInput{}); return err }},
		{"bad slot", func() error { _, err := c.Equip(ctx, "i1", "tail"); return err }},
		{"qty", func() error { _, err := c.AddItem(ctx, "t1", 0, ""); return err }},
		{"quest status", func() error { _, err := c.SetQuestStatus(ctx, "q1", "abandoned"); return err }},
		{"message title", func() error { _, err := c.SendMessage(ctx, Message{Body: "x"}); return err }},
		{"severity", func() error { _, err := c.SendMessage(ctx, Message{Title: "t", Severity: "loud"}); return err }},
		{"msg template name", func() error {
			_, err := c.UpsertMessageTemplate(ctx, Message{Title: "t"})
			return err
		}},
		{"ability name", func() error { _, err := c.UpsertAbility(ctx, AbilityInput{}); return err }},
		{"ability scope", func() error { _, err := c.RemoveAbility(ctx, "a1", "global"); return err }},
		{"contact name", func() error { _, err := c.AddContact(ctx, " ", nil); return err }},
		{"link payload", func() error {
			_, err := c.AddContact(ctx, "Mira", json.RawMessage(`[1,2]`))
			return err
		}},
		{"no chat", func() error { _, err := c.SendChatMessage(ctx, "", ChatMessageInput{Text: "hi"}); return err }},
		{"no text", func() error { _, err := c.SendChatMessage(ctx, "chat1", ChatMessageInput{Text: "  "}); return err }},
		{"bad link", func() error {
			_, err := c.SendChatMessage(ctx, "chat1", ChatMessageInput{Text: "hi", Links: []types.ChatLink{{Type: "npc"}}})
			return err
		}},
		{"section", func() error { _, err := c.ExportSection(ctx, "everything"); return err }},
		{"import nil", func() error { return c.Import(ctx, nil) }},
		{"import json", func() error { return c.ImportSection(ctx, SectionLog, json.RawMessage(`{`)) }},
	}
	for _, tc := range calls {
		if err := tc.call(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
	if n := f.count(); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

// ---- endpoints ----

func TestCommands_Routes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name     string
		call     func(c *Client) error
		method   string
		path     string
		query    string
		wantBody string
	}{
		{
			name:     "level up",
			call:     func(c *Client) error { _, err := c.LevelUp(ctx, 2); return err },
			method:   http.MethodPost,
			path:     "/api/host/level-up",
			wantBody: `{"levels":2}`,
		},
		{
			name: "rules",
			call: func(c *Client) error {
				_, err := c.UpdateRules(ctx, Rules{
					XPCurve:  types.XPCurve{BaseXP: 100, GrowthRate: 1.5},
					StatRule: types.StatRule{BasePerLevel: 2, BonusEvery5: 1},
				})
				return err
			},
			method:   http.MethodPost,
			path:     "/api/host/settings",
			wantBody: `{"xp_curve":{"base_xp":100,"growth_rate":1.5},"stat_rule":{"base_per_level":2,"bonus_every_5":1,"bonus_every_10":0}}`,
		},
		{
			name: "sheet sections",
			call: func(c *Client) error {
				_, err := c.UpdateSheetSections(ctx, []types.SheetSection{{Key: "stats"}})
				return err
			},
			method:   http.MethodPost,
			path:     "/api/host/settings",
			wantBody: `{"sheet_sections":[{"key":"stats"}]}`,
		},
		{
			name:     "class bonus",
			call:     func(c *Client) error { _, err := c.UpdateClassBonus(ctx, "ranger", map[string]int{"dex": 1}); return err },
			method:   http.MethodPost,
			path:     "/api/host/classes/ranger/per-level-bonus",
			wantBody: `{"per_level_bonus":{"dex":1}}`,
		},
		{
			name:     "add item",
			call:     func(c *Client) error { _, err := c.AddItem(ctx, "bow", 1, ""); return err },
			method:   http.MethodPost,
			path:     "/api/host/items",
			wantBody: `{"template_id":"bow","qty":1}`,
		},
		{
			name:     "add named item",
			call:     func(c *Client) error { _, err := c.AddItem(ctx, "bow", 2, "Whisper"); return err },
			method:   http.MethodPost,
			path:     "/api/host/items",
			wantBody: `{"template_id":"bow","qty":2,"custom_name":"Whisper"}`,
		},
		{
			name:   "remove item",
			call:   func(c *Client) error { _, err := c.RemoveItem(ctx, "i 1"); return err },
			method: http.MethodDelete,
			path:   "/api/host/items/i%201",
		},
		{
			name:     "equip",
			call:     func(c *Client) error { _, err := c.Equip(ctx, "i1", types.SlotWeapon1); return err },
			method:   http.MethodPost,
			path:     "/api/host/equip",
			wantBody: `{"item_instance_id":"i1","slot":"weapon_1"}`,
		},
		{
			name:     "request equip",
			call:     func(c *Client) error { _, err := c.RequestEquip(ctx, "i1", types.SlotHead); return err },
			method:   http.MethodPost,
			path:     "/api/player/equip-request",
			wantBody: `{"item_instance_id":"i1","slot":"head"}`,
		},
		{
			name:     "quest status",
			call:     func(c *Client) error { _, err := c.SetQuestStatus(ctx, "q1", types.QuestCompleted); return err },
			method:   http.MethodPost,
			path:     "/api/host/quests/q1/status",
			wantBody: `{"status":"completed"}`,
		},
		{
			name:     "send message",
			call:     func(c *Client) error { _, err := c.SendMessage(ctx, Message{Title: "Hi", Body: "there"}); return err },
			method:   http.MethodPost,
			path:     "/api/host/messages",
			wantBody: `{"title":"Hi","body":"there","severity":"info","collapsible":false}`,
		},
		{
			name:     "choose option",
			call:     func(c *Client) error { _, err := c.ChooseOption(ctx, "m1", "yes"); return err },
			method:   http.MethodPost,
			path:     "/api/player/messages/m1/choice",
			wantBody: `{"option_id":"yes"}`,
		},
		{
			name:     "resource",
			call:     func(c *Client) error { _, err := c.SetResource(ctx, "hp", 3, 10); return err },
			method:   http.MethodPost,
			path:     "/api/host/resources",
			wantBody: `{"resource_id":"hp","current":3,"maximum":10}`,
		},
		{
			name:     "upsert ability defaults",
			call:     func(c *Client) error { _, err := c.UpsertAbility(ctx, AbilityInput{Name: "Dash", Active: true}); return err },
			method:   http.MethodPost,
			path:     "/api/host/abilities",
			wantBody: `{"name":"Dash","description":"","category_id":"","active":true,"hidden":false,"source":"manual","scope":"character"}`,
		},
		{
			name:   "remove ability",
			call:   func(c *Client) error { _, err := c.RemoveAbility(ctx, "a1", event.ScopeLibrary); return err },
			method: http.MethodDelete,
			path:   "/api/host/abilities/a1",
			query:  "scope=library",
		},
		{
			name:     "add contact",
			call:     func(c *Client) error { _, err := c.AddContact(ctx, "Mira", nil); return err },
			method:   http.MethodPost,
			path:     "/api/host/contacts",
			wantBody: `{"display_name":"Mira","link_payload":{}}`,
		},
		{
			name:     "friend request",
			call:     func(c *Client) error { _, err := c.SendFriendRequest(ctx, "npc1"); return err },
			method:   http.MethodPost,
			path:     "/api/host/friend-requests",
			wantBody: `{"contact_id":"npc1"}`,
		},
		{
			name:   "accept request",
			call:   func(c *Client) error { _, err := c.AcceptFriendRequest(ctx, "fr1"); return err },
			method: http.MethodPost,
			path:   "/api/player/friend-requests/fr1/accept",
		},
		{
			name:     "allocate",
			call:     func(c *Client) error { _, err := c.AllocateStat(ctx, "str", 2); return err },
			method:   http.MethodPost,
			path:     "/api/player/stats/allocate",
			wantBody: `{"stat_id":"str","points":2}`,
		},
		{
			name: "host chat",
			call: func(c *Client) error {
				_, err := c.SendChatMessage(ctx, "chat1", ChatMessageInput{Text: "hello"})
				return err
			},
			method:   http.MethodPost,
			path:     "/api/host/chats/chat1/messages",
			wantBody: `{"text":"hello","links":[]}`,
		},
		{
			name:   "events",
			call:   func(c *Client) error { _, err := c.Events(ctx, 42); return err },
			method: http.MethodGet,
			path:   "/api/events",
			query:  "after_seq=42",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeServer{body: oneEvent}
			c := newTestClient(t, f)

			if err := tc.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
			req := f.last(t)
			if req.Method != tc.method || req.Path != tc.path {
				t.Errorf("request = %s %s, want %s %s", req.Method, req.Path, tc.method, tc.path)
			}
			if req.Query != tc.query {
				t.Errorf("query = %q, want %q", req.Query, tc.query)
			}
			if tc.wantBody != "" {
				jsonEqual(t, req.Body, tc.wantBody)
			}
		})
	}
}

func TestPlayerRolePaths(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: `{"npcs":[{"type":"npc","id":"n1","label":"Mira"}],"quests":[],"items":[]}`}
	c := newTestClient(t, f, WithRole(RolePlayer))

	l, err := c.Linkables(context.Background())
	if err != nil {
		t.Fatalf("Linkables: %v", err)
	}
	if got := f.last(t).Path; got != "/api/player/linkables" {
		t.Errorf("path = %q", got)
	}
	if len(l.NPCs) != 1 || l.NPCs[0].Label != "Mira" {
		t.Errorf("linkables = %+v", l)
	}

	f.respond(`{"events":[]}`)
	if _, err := c.SendChatMessage(context.Background(), "chat1", ChatMessageInput{Text: "hi"}); err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	if got := f.last(t).Path; got != "/api/player/chats/chat1/messages" {
		t.Errorf("path = %q", got)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: `{"snapshot":{"id":"camp","character":{"id":"c1","name":"Ayla","level":3}},"last_seq":41}`}
	c := newTestClient(t, f)

	resp, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if resp.LastSeq != 41 || resp.Snapshot.ID != "camp" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Snapshot.Character == nil || resp.Snapshot.Character.Level != 3 {
		t.Errorf("character = %+v", resp.Snapshot.Character)
	}
	if got := f.last(t); got.Method != http.MethodGet || got.Path != "/api/snapshot" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
}

func TestExportImport(t *testing.T) {
	t.Parallel()

	f := &fakeServer{body: `{"snapshot":{"id":"camp"},"last_seq":3,"events":[{"kind":"xp.granted","payload":{"amount":1},"ts":"t","seq":3}],"schema_version":2}`}
	c := newTestClient(t, f)
	ctx := context.Background()

	file, err := c.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if file.LastSeq != 3 || len(file.Events) != 1 || file.SchemaVersion == nil || *file.SchemaVersion != 2 {
		t.Fatalf("file = %+v", file)
	}

	f.respond(`{"status":"ok"}`)
	if err := c.Import(ctx, &snapshot.File{Snapshot: projection.Snapshot{ID: "camp"}, LastSeq: 3}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	req := f.last(t)
	if req.Path != "/api/host/import" || !strings.Contains(req.Body, `"last_seq":3`) {
		t.Errorf("import request = %+v", req)
	}

	f.respond(`{"schema_version":2,"item_templates":{}}`)
	raw, err := c.ExportSection(ctx, SectionTemplates)
	if err != nil {
		t.Fatalf("ExportSection: %v", err)
	}
	if !strings.Contains(string(raw), "item_templates") {
		t.Errorf("raw = %s", raw)
	}
	if got := f.last(t).Path; got != "/api/export/templates" {
		t.Errorf("path = %q", got)
	}

	if err := c.ImportSection(ctx, SectionChats, json.RawMessage(`{"chats":{}}`)); err != nil {
		t.Fatalf("ImportSection: %v", err)
	}
	req = f.last(t)
	if req.Path != "/api/import/chats" {
		t.Errorf("path = %q", req.Path)
	}
	jsonEqual(t, req.Body, `{"chats":{}}`)
}

func TestExportImport_PassesUnknownKeysThrough(t *testing.T) {
	t.Parallel()

	const export = `{"schema_version":1,"snapshot":{"id":"camp","item_templates":{"t":{"id":"t","granted_ability_ids":["slash"]}},"character":{"equipment":{"head":null}}},"events":[],"last_seq":7,"recovery_reason":"invalid json"}`
	f := &fakeServer{body: export}
	c := newTestClient(t, f)
	ctx := context.Background()

	file, err := c.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if file.LastSeq != 7 {
		t.Errorf("last_seq = %d", file.LastSeq)
	}

	f.respond(`{"status":"ok"}`)
	if err := c.Import(ctx, file); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := f.last(t).Body; got != export {
		t.Errorf("import body changed:\n got %s\nwant %s", got, export)
	}
}
