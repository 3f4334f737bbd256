package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/config"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/db"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/migrate"
	nominasdk "github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/sdk/go"
)

const (
	testSecret  = "test-secret"
	coordinator = "coord-1"
	supervisor  = "sup-1"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Cycle.Timezone = "UTC"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	e.Now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	seedTerritory(t, e)

	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String() + "/v1",
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func seedTerritory(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.SetPlot(ctx, domain.Plot{ID: "plot-1", Name: "North", FarmID: "farm-1", HubID: "hub-1", ZoneID: "zone-1"}, "seed"); err != nil {
		t.Fatalf("seed plot: %v", err)
	}
	if _, err := e.AssignSupervisor(ctx, domain.SupervisorAssignment{SupervisorID: supervisor, Level: domain.LevelFarm, ScopeID: "farm-1", Active: true}, "seed"); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	if err := e.GrantRole(ctx, coordinator, "coordinator", "seed"); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if err := e.GrantRole(ctx, supervisor, "supervisor", "seed"); err != nil {
		t.Fatalf("seed role: %v", err)
	}
}

func bearer(t *testing.T, actorID string) map[string]string {
	t.Helper()
	token, err := signDevToken(testSecret, actorID, nil, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %T: %v (%s)", out, err, string(data))
	}
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s status %d, want %d: %s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, string(data))
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[map[string]string](t, data); got["status"] != "ok" {
		t.Fatalf("unexpected health body %v", got)
	}
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/weeks", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/weeks", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/auth/dev/login", map[string]any{"actor_id": coordinator}, nil)
	expectStatus(t, res, data, http.StatusOK)
	login := decode[DevLoginResponse](t, data)
	if login.Token == "" {
		t.Fatalf("expected token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	expectStatus(t, res, data, http.StatusOK)
	me := decode[WhoAmIResponse](t, data)
	if me.ActorID != coordinator || !me.Escalated || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestSupervisorCannotCreateActivities(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/activities", map[string]any{
		"code":       "PLANT",
		"name":       "Planting",
		"daily_rate": 5,
	}, bearer(t, supervisor))
	expectStatus(t, res, data, http.StatusForbidden)
	if env := decode[errorEnvelope](t, data); env.Error.Code != "access_denied" {
		t.Fatalf("expected access_denied, got %+v", env.Error)
	}
}

func TestWeekClosureFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	coord := bearer(t, coordinator)
	sup := bearer(t, supervisor)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/weeks/resolve", map[string]any{"date": "2024-03-05"}, coord)
	expectStatus(t, res, data, http.StatusOK)
	week := decode[domain.OperationalWeek](t, data)
	if week.State != domain.WeekOpen || week.StartDate > "2024-03-05" || week.EndDate < "2024-03-05" {
		t.Fatalf("unexpected week %+v", week)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/activities", map[string]any{
		"code":       "PLANT",
		"name":       "Planting",
		"daily_rate": 5,
	}, coord)
	expectStatus(t, res, data, http.StatusCreated)
	activity := decode[domain.Activity](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/units", map[string]any{
		"project_id":  "P1",
		"activity_id": activity.ID,
		"plot_id":     "plot-1",
		"min_target":  100,
	}, coord)
	expectStatus(t, res, data, http.StatusCreated)
	unit := decode[domain.WorkUnit](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/entries", map[string]any{
		"date":      "2024-03-05",
		"worker_id": "w-1",
		"unit_id":   unit.ID,
		"quantity":  60,
		"hours":     8,
	}, sup)
	expectStatus(t, res, data, http.StatusCreated)
	entry := decode[domain.DailyEntry](t, data)
	if entry.State != domain.EntryPending {
		t.Fatalf("supervisor entry should start pending, got %s", entry.State)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/entries/"+entry.ID+"/approve", nil, sup)
	expectStatus(t, res, data, http.StatusForbidden)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/entries/"+entry.ID+"/approve", nil, coord)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/weeks/"+week.ID+"/close-check", nil, sup)
	expectStatus(t, res, data, http.StatusOK)
	check := decode[CloseCheckResponse](t, data)
	if check.Allowed || len(check.Blocking) != 1 || check.Blocking[0].Shortfall != 40 {
		t.Fatalf("unexpected close check %+v", check)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/weeks/"+week.Code+"/close", nil, coord)
	expectStatus(t, res, data, http.StatusConflict)
	env := decode[errorEnvelope](t, data)
	if env.Error.Code != "targets_unmet" {
		t.Fatalf("expected targets_unmet, got %+v", env.Error)
	}
	if blocking, _ := env.Error.Details["blocking_units"].([]any); len(blocking) != 1 {
		t.Fatalf("expected one blocking unit in details, got %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/units/"+unit.ID+"/met", nil, coord)
	expectStatus(t, res, data, http.StatusUnprocessableEntity)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/entries", map[string]any{
		"date":         "2024-03-06",
		"worker_id":    "w-2",
		"unit_id":      unit.ID,
		"quantity":     40,
		"hours":        8,
		"auto_approve": true,
	}, coord)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/units/"+unit.ID+"/met", nil, coord)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[domain.WorkUnit](t, data); got.State != domain.UnitMet || got.Executed != 100 {
		t.Fatalf("unexpected unit after met %+v", got)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/weeks/"+week.ID+"/process", nil, coord)
	expectStatus(t, res, data, http.StatusOK)
	report := decode[engine.WeekReport](t, data)
	if report.Consolidations.Succeeded != 2 {
		t.Fatalf("expected two consolidations, got %+v", report.Consolidations)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/weeks/"+week.ID+"/close", nil, coord)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[domain.OperationalWeek](t, data); got.State != domain.WeekClosed {
		t.Fatalf("expected closed week, got %s", got.State)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/entries", map[string]any{
		"date":      "2024-03-07",
		"worker_id": "w-1",
		"unit_id":   unit.ID,
		"quantity":  5,
		"hours":     2,
	}, sup)
	expectStatus(t, res, data, http.StatusConflict)
	if env := decode[errorEnvelope](t, data); env.Error.Code != "already_closed" {
		t.Fatalf("expected already_closed, got %+v", env.Error)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events?entity_kind=week&limit=10", nil, coord)
	expectStatus(t, res, data, http.StatusOK)
	events := decode[paginatedEvents](t, data)
	if len(events.Items) == 0 || events.Items[0].Type != "week.closed" {
		t.Fatalf("expected week.closed first, got %+v", events.Items)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api-keys", map[string]any{"name": "tablet"}, bearer(t, supervisor))
	expectStatus(t, res, data, http.StatusCreated)
	key := decode[APIKeyResponse](t, data)
	if key.Key == "" || key.ActorID != supervisor {
		t.Fatalf("unexpected key %+v", key)
	}

	headers := map[string]string{"X-Api-Key": key.Key}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, headers)
	expectStatus(t, res, data, http.StatusOK)
	if me := decode[WhoAmIResponse](t, data); me.ActorID != supervisor || me.Escalated {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api-keys", nil, headers)
	expectStatus(t, res, data, http.StatusOK)
	if list := decode[listResponse[APIKeyResponse]](t, data); len(list.Items) != 1 || list.Items[0].Key != "" {
		t.Fatalf("listed keys must not carry secrets: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api-keys/"+key.ID, nil, headers)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, headers)
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestNegotiatePriceRejectsMalformedAmount(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	coord := bearer(t, coordinator)

	act, err := srv.Engine.CreateActivity(context.Background(), engine.ActivityOptions{Code: "PRUNE", Name: "Pruning", DailyRate: 3, ActorID: "seed"})
	if err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	unit, err := srv.Engine.CreateWorkUnit(context.Background(), engine.WorkUnitOptions{ProjectID: "P1", ActivityID: act.ID, PlotID: "plot-1", MinTarget: 10, ActorID: "seed"})
	if err != nil {
		t.Fatalf("seed unit: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/units/"+unit.ID+"/prices", map[string]any{"price": "abc"}, coord)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/units/"+unit.ID+"/prices", map[string]any{"price": "1250.50", "motive": "season"}, coord)
	expectStatus(t, res, data, http.StatusCreated)
	price := decode[PriceResponse](t, data)
	if price.Price != "1250.5" || price.AuthorizedBy != coordinator || !price.Active {
		t.Fatalf("unexpected price %+v", price)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/units/"+unit.ID+"/prices/current", nil, coord)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[PriceResponse](t, data); got.ID != price.ID {
		t.Fatalf("current price %s, want %s", got.ID, price.ID)
	}
}

func TestSDKClosesWeekOnceTargetsAreMet(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	e := srv.Engine

	token, err := signDevToken(testSecret, coordinator, nil, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	client := nominasdk.New(srv.URL)
	client.BearerToken = token

	week, err := client.ResolveWeek(ctx, "2024-03-05")
	if err != nil {
		t.Fatalf("resolve week: %v", err)
	}
	act, err := e.CreateActivity(ctx, engine.ActivityOptions{Code: "WEED", Name: "Weeding", DailyRate: 4, ActorID: coordinator})
	if err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	unit, err := e.CreateWorkUnit(ctx, engine.WorkUnitOptions{ProjectID: "P1", ActivityID: act.ID, PlotID: "plot-1", MinTarget: 20, ActorID: coordinator})
	if err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	if _, err := e.CreateEntry(ctx, engine.EntryCreateOptions{Date: "2024-03-05", WorkerID: "w-1", UnitID: unit.ID, Quantity: 10, Hours: 8, RecordedBy: coordinator, AutoApprove: true}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	check, err := client.CloseCheck(ctx, week.Code)
	if err != nil {
		t.Fatalf("close check: %v", err)
	}
	if check.Allowed || len(check.Blocking) != 1 || check.Blocking[0].UnitID != unit.ID {
		t.Fatalf("unexpected close check %+v", check)
	}
	_, err = client.CloseWeek(ctx, week.Code)
	var apiErr *nominasdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code() != "targets_unmet" {
		t.Fatalf("expected targets_unmet conflict, got %v", err)
	}

	report, err := client.ProcessWeek(ctx, week.ID)
	if err != nil {
		t.Fatalf("process week: %v", err)
	}
	if report.Consolidations.Succeeded != 1 {
		t.Fatalf("expected one consolidation, got %+v", report.Consolidations)
	}
	alerts, err := client.ListAlerts(ctx, nominasdk.AlertQuery{Week: week.Code})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != report.Alerts.Created {
		t.Fatalf("listed %d alerts, report created %d", len(alerts), report.Alerts.Created)
	}

	if _, err := e.CreateEntry(ctx, engine.EntryCreateOptions{Date: "2024-03-06", WorkerID: "w-1", UnitID: unit.ID, Quantity: 10, Hours: 8, RecordedBy: coordinator, AutoApprove: true}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	closed, err := client.CloseWeek(ctx, week.ID)
	if err != nil {
		t.Fatalf("close week: %v", err)
	}
	if closed.State != "CLOSED" || closed.ClosedBy == nil || *closed.ClosedBy != coordinator {
		t.Fatalf("unexpected closed week %+v", closed)
	}

	page, err := client.EventsPage(ctx, 1, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "week.closed" || page.NextCursor == "" {
		t.Fatalf("unexpected events page %+v", page)
	}
	next, err := client.EventsPage(ctx, 1, page.NextCursor)
	if err != nil {
		t.Fatalf("events next page: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].ID >= page.Items[0].ID {
		t.Fatalf("cursor did not advance: %+v", next.Items)
	}
}
