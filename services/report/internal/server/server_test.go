package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/ai"
	"sinapsisdata/pkg/auth"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/storage"
	"sinapsisdata/pkg/store"
	"sinapsisdata/services/report/internal/app"
)

const (
	testPassword = "Str0ng#Password!"
	reportReply  = `{"html":"<!DOCTYPE html><html><body>ok</body></html>","questions":[{"question":"Who is the audience?"}],"proposals":[{"type":"RISK","title":"Churn","description":"Churn is rising.","priority":"HIGH"}]}`
)

type stubGenerator struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, _ ai.Request) (ai.Completion, error) {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ai.Completion{}, ctx.Err()
		}
	}
	return ai.Completion{Text: reportReply, Model: "claude-sonnet-4-5", InputTokens: 10, OutputTokens: 20}, nil
}

type stubSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *stubSessions) NewSession(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	s.tokens[token] = userID
	return token, nil
}

func (s *stubSessions) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.tokens[token]
	return uid, ok, nil
}

func (s *stubSessions) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

type testEnv struct {
	srv   *httptest.Server
	store *store.MemoryStore
	gen   *stubGenerator
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	objects, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	gen := &stubGenerator{}
	a, err := app.New(app.Config{
		Store:                  st,
		Objects:                objects,
		Generator:              gen,
		Sessions:               &stubSessions{tokens: map[string]string{}},
		Policy:                 generation.DefaultPolicy(),
		GenerationTimeout:      5 * time.Second,
		BootstrapAdminEmail:    "admin@example.com",
		BootstrapAdminPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: a}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, gen: gen}
}

func (e *testEnv) addUser(t *testing.T, email string, role domain.UserRole) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := domain.User{ID: util.NewID(), Email: email, Name: email, PasswordHash: hash, Role: role, Status: domain.UserActive, CreatedAt: time.Now()}
	if err := e.store.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var out authResponse
	decode(t, resp, &out)
	return out.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) upload(t *testing.T, path, token, filename string, content []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// seed creates a consultant with one project and one report holding data.
func (e *testEnv) seed(t *testing.T) (token, slug, reportID string) {
	t.Helper()
	e.addUser(t, "consultant@example.com", domain.RoleConsultant)
	token = e.login(t, "consultant@example.com")

	resp := e.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": "Acme Retail"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d", resp.StatusCode)
	}
	var project domain.Project
	decode(t, resp, &project)

	resp = e.do(t, http.MethodPost, "/api/projects/"+project.Slug+"/reports", token, map[string]string{
		"title": "Q1 Sales", "prompt": "Analyze Q1 sales", "periodFrom": "2024-01-01", "periodTo": "2024-03-31",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create report: %d", resp.StatusCode)
	}
	var report domain.Report
	decode(t, resp, &report)

	resp = e.upload(t, "/api/reports/"+report.ID+"/files", token, "sales.csv", []byte("month,revenue\njan,10\nfeb,12\n"), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload data: %d", resp.StatusCode)
	}
	return token, project.Slug, report.ID
}

func (e *testEnv) waitStatus(t *testing.T, reportID string, want domain.ReportStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, ok, err := e.store.GetReport(reportID)
		if err != nil || !ok {
			t.Fatalf("get report: ok=%v err=%v", ok, err)
		}
		if r.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("report %s never reached %s", reportID, want)
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cfg.LoginRateLimitPerMinute = 1
	})

	body := map[string]string{"email": "admin@example.com", "password": testPassword}
	if resp := env.do(t, http.MethodPost, "/api/auth/login", "", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp.StatusCode)
	}
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	var errResp errorResponse
	decode(t, resp, &errResp)
	if errResp.Code != "RATE_LIMITED" {
		t.Fatalf("code = %q", errResp.Code)
	}
}

func TestUnauthorizedErrorEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/projects", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errResp errorResponse
	decode(t, resp, &errResp)
	if errResp.Code != "AUTH_INVALID_TOKEN" {
		t.Fatalf("code = %q", errResp.Code)
	}
	if errResp.RequestID == "" || errResp.RequestID != resp.Header.Get(util.RequestIDHeader) {
		t.Fatalf("requestId %q does not match header %q", errResp.RequestID, resp.Header.Get(util.RequestIDHeader))
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password expected 401, got %d", resp.StatusCode)
	}
}

func TestGenerateAcceptedThenBusy(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _, reportID := env.seed(t)

	gate := make(chan struct{})
	env.gen.mu.Lock()
	env.gen.gate = gate
	env.gen.mu.Unlock()

	resp := env.do(t, http.MethodPost, "/api/reports/"+reportID+"/generate", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate expected 202, got %d", resp.StatusCode)
	}
	var accepted map[string]any
	decode(t, resp, &accepted)
	if accepted["success"] != true || accepted["reportId"] != reportID {
		t.Fatalf("unexpected body: %v", accepted)
	}

	resp = env.do(t, http.MethodPost, "/api/reports/"+reportID+"/generate", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second generate expected 409, got %d", resp.StatusCode)
	}
	var errResp errorResponse
	decode(t, resp, &errResp)
	if errResp.Code != "REPORT_BUSY" {
		t.Fatalf("code = %q", errResp.Code)
	}

	close(gate)
	env.waitStatus(t, reportID, domain.StatusReady)

	resp = env.do(t, http.MethodGet, "/api/reports/"+reportID, token, nil)
	var report domain.Report
	decode(t, resp, &report)
	if report.HTMLContent == nil || report.AIMetadata == nil || report.AIMetadata.OutputTokens != 20 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	token, slug, reportID := env.seed(t)
	if resp := env.do(t, http.MethodPost, "/api/reports/"+reportID+"/generate", token, nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate: %d", resp.StatusCode)
	}
	env.waitStatus(t, reportID, domain.StatusReady)

	resp := env.do(t, http.MethodGet, "/api/projects/"+slug+"/questions?status=PENDING", token, nil)
	var questions struct {
		Items []domain.Question `json:"items"`
	}
	decode(t, resp, &questions)
	if len(questions.Items) != 1 {
		t.Fatalf("expected one pending question, got %d", len(questions.Items))
	}
	qid := questions.Items[0].ID

	if resp := env.do(t, http.MethodPost, "/api/questions/"+qid+"/answer", token, map[string]string{"answer": " "}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank answer expected 400, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/questions/"+qid+"/answer", token, map[string]string{"answer": "Store managers"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("answer expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/questions/"+qid+"/dismiss", token, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("resolved question expected 409, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/projects/"+slug+"/proposals", token, nil)
	var proposals struct {
		Items []domain.Proposal `json:"items"`
	}
	decode(t, resp, &proposals)
	if len(proposals.Items) != 1 {
		t.Fatalf("expected one proposal, got %d", len(proposals.Items))
	}
	pid := proposals.Items[0].ID
	if resp := env.do(t, http.MethodPost, "/api/proposals/"+pid+"/vote", token, map[string]string{"action": "maybe"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid vote expected 400, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/api/proposals/"+pid+"/vote", token, map[string]string{"action": "REJECT", "comment": "not now"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote expected 200, got %d", resp.StatusCode)
	}
	var voted domain.Proposal
	decode(t, resp, &voted)
	if voted.Status != domain.ProposalRejected {
		t.Fatalf("status = %s", voted.Status)
	}
	if resp := env.do(t, http.MethodGet, "/api/projects/"+slug+"/proposals?status=bogus", token, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadRejectsLargeAndUnsupportedFiles(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.MaxUploadBytes = 1024 })
	token, slug, reportID := env.seed(t)

	resp := env.upload(t, "/api/reports/"+reportID+"/files", token, "deck.pdf", []byte("%PDF-1.4"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("pdf expected 400, got %d", resp.StatusCode)
	}
	var errResp errorResponse
	decode(t, resp, &errResp)
	if errResp.Code != "FILE_UNSUPPORTED_TYPE" {
		t.Fatalf("code = %q", errResp.Code)
	}

	big := []byte("month,revenue\n" + strings.Repeat("jan,10\n", 400))
	resp = env.upload(t, "/api/reports/"+reportID+"/files", token, "big.csv", big, nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("big file expected 413, got %d", resp.StatusCode)
	}

	resp = env.upload(t, "/api/projects/"+slug+"/reports/upload", token, "notes.txt", []byte("<html></html>"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-html upload expected 400, got %d", resp.StatusCode)
	}
}

func TestPublishedReportIsServedWithDocumentPolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	token, slug, _ := env.seed(t)

	doc := []byte("<!DOCTYPE html><html><head><title>Board Pack</title></head><body><h1>Board</h1></body></html>")
	resp := env.upload(t, "/api/projects/"+slug+"/reports/upload", token, "board.html", doc, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload html expected 201, got %d", resp.StatusCode)
	}
	var uploaded domain.Report
	decode(t, resp, &uploaded)
	if uploaded.Status != domain.StatusReady || uploaded.Title != "Board Pack" {
		t.Fatalf("unexpected uploaded report: %+v", uploaded)
	}

	resp = env.do(t, http.MethodPost, "/api/reports/"+uploaded.ID+"/publish", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish expected 200, got %d", resp.StatusCode)
	}
	var published struct {
		PublicURL string `json:"publicUrl"`
	}
	decode(t, resp, &published)
	if published.PublicURL != "/r/"+slug+"/board-pack" {
		t.Fatalf("publicUrl = %q", published.PublicURL)
	}

	resp = env.do(t, http.MethodGet, published.PublicURL, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public document expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); csp != util.ReportDocumentCSP {
		t.Fatalf("csp = %q", csp)
	}

	if resp := env.do(t, http.MethodPost, "/api/reports/"+uploaded.ID+"/publish", token, map[string]bool{"isPublic": false}); resp.StatusCode != http.StatusOK {
		t.Fatalf("republish expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, published.PublicURL, "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("private document without token expected 401, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, published.PublicURL, token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("private document for member expected 200, got %d", resp.StatusCode)
	}

	if resp := env.do(t, http.MethodPost, "/api/reports/"+uploaded.ID+"/unpublish", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("unpublish expected 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, published.PublicURL, token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished document expected 404, got %d", resp.StatusCode)
	}
}

func TestClientCannotCreateReports(t *testing.T) {
	env := newTestEnv(t, nil)
	_, slug, _ := env.seed(t)
	env.addUser(t, "client@example.com", domain.RoleClient)
	token := env.login(t, "client@example.com")

	resp := env.do(t, http.MethodPost, "/api/projects/"+slug+"/reports", token, map[string]string{"title": "Mine"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("client create expected 403, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/usage", token, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("client usage expected 403, got %d", resp.StatusCode)
	}
}
