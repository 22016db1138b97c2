package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/auth"
	"ledger/internal/blob"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/metrics"
	"ledger/internal/services"
	"ledger/internal/store"
	"ledger/internal/store/memory"
	"ledger/internal/summary"
)

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	store    store.Store
	gate     *auth.Gate
	sessions *auth.Sessions
	projects *services.ProjectService
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	st := memory.New(nil)
	gate := auth.NewGate(st, auth.PlaintextHasher{})
	sessions := auth.NewSessions(st, auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef")), time.Hour)
	projects := services.NewProjectService(st, blob.NewMemory(), nil, nil)
	reports := services.NewReportService(projects, summary.New(nil, summary.Options{}))

	srv, err := NewServer(":0", Deps{
		Config:   cfg,
		Metrics:  metrics.New(),
		Location: time.UTC,
		Store:    st,
		Gate:     gate,
		Sessions: sessions,
		Projects: projects,
		Reports:  reports,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.WithClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, store: st, gate: gate, sessions: sessions, projects: projects}
}

// signIn registers username with role and returns a live session cookie.
func (e *testEnv) signIn(t *testing.T, username string, role core.Role) *http.Cookie {
	t.Helper()
	u, err := e.gate.Register(context.Background(), username, "pw", role)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := e.sessions.Start(context.Background(), u)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (e *testEnv) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookie)
}

func (e *testEnv) seedProject(t *testing.T, admin *core.Session, name string) core.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), admin, core.ProjectInput{
		Name:      name,
		StartDate: core.NewDate(2024, 5, 1),
		EndDate:   core.NewDate(2024, 5, 31),
		Budget:    core.MoneyFromUnits(1000),
		Advance:   core.MoneyFromUnits(200),
		Expense:   core.MoneyFromUnits(500),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

var adminSession = &core.Session{ID: "seed", Username: "seeder", Role: core.RoleAdmin}

func projectForm1(name, budget string) url.Values {
	return url.Values{
		fieldName:      {name},
		fieldStartDate: {"2024-05-01"},
		fieldEndDate:   {"2024-05-31"},
		fieldBudget:    {budget},
		fieldAdvance:   {"200"},
		fieldExpense:   {"500"},
	}
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := e.get(path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s content type = %q", path, ct)
		}
	}
	if body := e.get("/readyz", nil).Body.String(); !strings.Contains(body, `"amqp":"not_configured"`) {
		t.Errorf("readyz should report the missing broker: %s", body)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	e := newTestEnv(t, nil)
	rr := e.get("/login", nil)

	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q", rr.Header().Get("X-Frame-Options"))
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestAnonymousRequestsRedirectToLogin(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, path := range []string{"/", "/history", "/upcoming", "/projects/new"} {
		rr := e.get(path, nil)
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Errorf("%s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("HX-Request", "true")
	rr := e.do(req, nil)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("htmx request should get HX-Redirect, got headers %v", rr.Header())
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	if _, err := e.gate.Register(context.Background(), "Auditor", "secret", core.RoleAdmin); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rr := e.postForm("/login", url.Values{"username": {"auditor"}, "password": {"wrong"}}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Invalid corporate credentials.") {
		t.Errorf("missing credentials message: %s", rr.Body.String())
	}

	rr = e.postForm("/login", url.Values{"username": {"AUDITOR"}, "password": {"secret"}}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("session cookie = %+v", cookie)
	}

	rr = e.get("/", cookie)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Dashboard") {
		t.Fatalf("dashboard status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Logout Session") {
		t.Error("signed-in pages render the sidebar")
	}

	if rr := e.get("/login", cookie); rr.Code != http.StatusSeeOther {
		t.Errorf("signed-in GET /login status=%d, want redirect", rr.Code)
	}
}

func TestRegister(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.postForm("/register", url.Values{"username": {"clerk"}, "password": {"pw"}, "role": {"viewer"}}, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), registeredMessage) {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	u, err := e.store.FindUserByUsername(context.Background(), "clerk")
	if err != nil || u.Role != core.RoleViewer {
		t.Fatalf("stored user = %+v, %v", u, err)
	}

	rr = e.postForm("/register", url.Values{"username": {"CLERK"}, "password": {"other"}, "role": {"ADMIN"}}, nil)
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "Username already registered in ledger.") {
		t.Fatalf("duplicate status=%d body=%s", rr.Code, rr.Body.String())
	}
	u, _ = e.store.FindUserByUsername(context.Background(), "clerk")
	if u.Role != core.RoleViewer || u.Password != "pw" {
		t.Errorf("duplicate registration changed the record: %+v", u)
	}

	rr = e.postForm("/register", url.Values{"username": {"x"}, "password": {"pw"}, "role": {"owner"}}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad role status=%d", rr.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	e := newTestEnv(t, nil)
	cookie := e.signIn(t, "auditor", core.RoleViewer)

	if rr := e.get("/", cookie); rr.Code != http.StatusOK {
		t.Fatalf("before logout status=%d", rr.Code)
	}
	rr := e.postForm("/logout", url.Values{}, cookie)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("logout status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if rr := e.get("/", cookie); rr.Code != http.StatusSeeOther {
		t.Fatalf("revoked token still accepted: status=%d", rr.Code)
	}
}

func TestAccessControlPerRoute(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.seedProject(t, adminSession, "Survey")
	viewer := e.signIn(t, "viewer", core.RoleViewer)
	admin := e.signIn(t, "admin", core.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		cookie *http.Cookie
		want   int
	}{
		{"viewer dashboard", http.MethodGet, "/", viewer, http.StatusOK},
		{"viewer history", http.MethodGet, "/history", viewer, http.StatusOK},
		{"viewer upcoming", http.MethodGet, "/upcoming", viewer, http.StatusOK},
		{"viewer completed", http.MethodGet, "/completed", viewer, http.StatusOK},
		{"viewer report", http.MethodGet, "/projects/" + p.ID + "/report", viewer, http.StatusOK},
		{"viewer new form", http.MethodGet, "/projects/new", viewer, http.StatusForbidden},
		{"viewer edit form", http.MethodGet, "/projects/" + p.ID + "/edit", viewer, http.StatusForbidden},
		{"viewer print", http.MethodGet, "/projects/" + p.ID + "/report/print", viewer, http.StatusForbidden},
		{"viewer create", http.MethodPost, "/projects", viewer, http.StatusForbidden},
		{"viewer delete", http.MethodPost, "/projects/" + p.ID + "/delete", viewer, http.StatusForbidden},
		{"admin new form", http.MethodGet, "/projects/new", admin, http.StatusOK},
		{"admin edit form", http.MethodGet, "/projects/" + p.ID + "/edit", admin, http.StatusOK},
		{"admin print", http.MethodGet, "/projects/" + p.ID + "/report/print", admin, http.StatusOK},
		{"admin missing report", http.MethodGet, "/projects/nope/report", admin, http.StatusNotFound},
		{"admin missing edit", http.MethodGet, "/projects/nope/edit", admin, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rr *httptest.ResponseRecorder
			if tt.method == http.MethodPost {
				rr = e.postForm(tt.path, url.Values{}, tt.cookie)
			} else {
				rr = e.get(tt.path, tt.cookie)
			}
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d", rr.Code, tt.want)
			}
		})
	}

	if _, err := e.projects.Get(context.Background(), p.ID); err != nil {
		t.Fatalf("viewer delete must not remove the project: %v", err)
	}
}

func TestViewerPrintNotice(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.seedProject(t, adminSession, "Survey")
	viewer := e.signIn(t, "viewer", core.RoleViewer)

	rr := e.get("/projects/"+p.ID+"/report/print", viewer)
	want := "Unauthorized Access: Only Administrative users can print official audit documentation."
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProject(t *testing.T) {
	e := newTestEnv(t, nil)
	admin := e.signIn(t, "admin", core.RoleAdmin)

	rr := e.postForm("/projects", projectForm1("Bridge Survey", "1,000"), admin)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	projects, _ := e.projects.List(context.Background())
	if len(projects) != 1 {
		t.Fatalf("projects = %d", len(projects))
	}
	if got := projects[0].BalanceAmount.Cents; got != 30000 {
		t.Errorf("balance = %d cents, want 30000", got)
	}

	rr = e.get("/", admin)
	body := rr.Body.String()
	for _, want := range []string{"Bridge Survey", "BDT 1,000", "BDT 300", "Ongoing"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestCreateProjectValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	admin := e.signIn(t, "admin", core.RoleAdmin)

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"bad amount", projectForm1("Survey", "12abc"), "Budget amount"},
		{"negative amount", projectForm1("Survey", "-5"), "Budget amount"},
		{"missing name", projectForm1("", "100"), "empty project name"},
		{"bad date", func() url.Values {
			f := projectForm1("Survey", "100")
			f.Set(fieldStartDate, "15/05/2024")
			return f
		}(), "Commencement date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.postForm("/projects", tt.form, admin)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}

	if projects, _ := e.projects.List(context.Background()); len(projects) != 0 {
		t.Fatalf("invalid submissions stored %d projects", len(projects))
	}
}

func TestUpdateAndDeleteProject(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.seedProject(t, adminSession, "Survey")
	admin := e.signIn(t, "admin", core.RoleAdmin)

	rr := e.postForm("/projects/"+p.ID, projectForm1("Survey Phase 2", "2000"), admin)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, err := e.projects.Get(context.Background(), p.ID)
	if err != nil || got.Name != "Survey Phase 2" || got.BalanceAmount.Cents != 130000 {
		t.Fatalf("updated = %+v, %v", got, err)
	}

	if rr := e.postForm("/projects/missing", projectForm1("X", "1"), admin); rr.Code != http.StatusNotFound {
		t.Errorf("update missing status=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/projects/"+p.ID+"/delete", nil)
	req.Header.Set("HX-Request", "true")
	rr = e.do(req, admin)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), "project:deleted") {
		t.Fatalf("delete status=%d trigger=%q", rr.Code, rr.Header().Get("HX-Trigger"))
	}
	if _, err := e.projects.Get(context.Background(), p.ID); err == nil {
		t.Fatal("project still stored after delete")
	}
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	e := newTestEnv(t, nil)
	admin := e.signIn(t, "admin", core.RoleAdmin)
	png := []byte("\x89PNG\r\n\x1a\nfake-image")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range projectForm1("Scanned", "100") {
		_ = mw.WriteField(k, v[0])
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+fieldBillTopSheet+`"; filename="sheet.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(png)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/projects", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if rr := e.do(req, admin); rr.Code != http.StatusSeeOther {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}

	projects, _ := e.projects.List(context.Background())
	if len(projects) != 1 || projects[0].BillTopSheetImage == nil {
		t.Fatalf("attachment not stored: %+v", projects)
	}
	id := projects[0].ID

	rr := e.get("/projects/"+id+"/attachments/"+string(core.SlotBillTopSheet), admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("download status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), png) {
		t.Error("downloaded bytes differ from upload")
	}

	if rr := e.get("/projects/"+id+"/attachments/"+string(core.SlotBudgetCopy), admin); rr.Code != http.StatusNotFound {
		t.Errorf("empty slot status=%d", rr.Code)
	}
	if rr := e.get("/projects/"+id+"/attachments/selfie", admin); rr.Code != http.StatusNotFound {
		t.Errorf("unknown slot status=%d", rr.Code)
	}

	report := e.get("/projects/"+id+"/report", admin).Body.String()
	if !strings.Contains(report, `/projects/`+id+`/attachments/bill-top-sheet`) {
		t.Error("report does not embed the bill top sheet")
	}
}

func TestReportAndPrint(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.seedProject(t, adminSession, "Dhaka Plant / Phase#1")
	admin := e.signIn(t, "admin", core.RoleAdmin)

	rr := e.get("/projects/"+p.ID+"/report", admin)
	body := rr.Body.String()
	for _, want := range []string{
		"Official Audit Report",
		"AI Automated Summary Service is temporarily unavailable.",
		"Total Project Budget Allocation",
		"1 May 2024",
		core.NotRecorded,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}

	rr = e.get("/projects/"+p.ID+"/report/print", admin)
	wantTitle := "<title>" + core.PrintTitle(p.Name, testNow) + "</title>"
	if !strings.Contains(rr.Body.String(), wantTitle) {
		t.Errorf("print page missing %s", wantTitle)
	}
	if strings.Contains(rr.Body.String(), "Logout Session") {
		t.Error("print page must not render the sidebar")
	}
}

func TestHistoryPage(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seedProject(t, adminSession, "A")
	viewer := e.signIn(t, "viewer", core.RoleViewer)

	body := e.get("/history", viewer).Body.String()
	for _, want := range []string{"Total Projects per Month", "Total Projects per Year", "width: 100%"} {
		if !strings.Contains(body, want) {
			t.Errorf("history missing %q", want)
		}
	}
}

func TestRateLimitOnPost(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.RateLimitPerMinute = 1 })

	form := url.Values{"username": {"ghost"}, "password": {"x"}}
	if rr := e.postForm("/login", form, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt status=%d", rr.Code)
	}
	rr := e.postForm("/login", form, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rr := e.get("/login", nil); rr.Code != http.StatusOK {
		t.Errorf("GET must not be limited, status=%d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	e.get("/healthz", nil)

	rr := e.get("/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="GET /healthz"`) {
		t.Errorf("request counter missing the healthz route:\n%s", rr.Body.String())
	}
}

func TestStaticAssets(t *testing.T) {
	e := newTestEnv(t, nil)
	rr := e.get("/static/style.css", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("style.css status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}
