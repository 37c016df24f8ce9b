package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/config"
	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/embedding"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/internal/keyword"
	"github.com/mindhub/mindlink/internal/knowledge"
	"github.com/mindhub/mindlink/internal/llm"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/mutate"
	"github.com/mindhub/mindlink/internal/ooxml/ooxmltest"
	"github.com/mindhub/mindlink/internal/progress"
	"github.com/mindhub/mindlink/internal/retrieval"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/vector"
)

func TestMain(m *testing.M) {
	// Bleve starts its analysis workers at package init.
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

const testCookie = "mindlink_session"

type codeMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *codeMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *codeMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type testServer struct {
	handler  http.Handler
	store    *storage.SQLiteStorage
	llm      *llm.StaticClient
	mailer   *codeMailer
	manualID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	root := filepath.Join(dir, "drive")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "RH"), 0755))
	manual := filepath.Join(root, "RH", "Manual.docx")
	require.NoError(t, os.WriteFile(manual, ooxmltest.Docx("Férias: 30 dias corridos.", "Vale refeição: R$ 30,00"), 0644))

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "mindlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	vec, err := vector.NewMemoryIndex(32)
	require.NoError(t, err)
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	ld, err := drive.NewLocalDrive(root, "empresa", nil)
	require.NoError(t, err)
	manualID, err := ld.IDForPath(manual)
	require.NoError(t, err)

	embedder := embedding.NewMockEmbedder(32)
	idx := indexer.NewIndexer(ld, store, embedder, vec, kw, nil, indexer.Options{
		RootID:       ld.RootID(),
		RootName:     "empresa",
		Extensions:   []string{".docx", ".xlsx", ".pdf"},
		ChunkSize:    1500,
		ChunkOverlap: 100,
	})
	client := llm.NewStaticClient("São 30 dias corridos de férias.")
	asst := assistant.New(retrieval.NewRetriever(store, embedder, vec, kw, retrieval.Options{TopK: 5}), client, assistant.Options{TopK: 5})
	kb := knowledge.New(idx, store, vec, kw, knowledge.OnRefresh(asst.Clear))
	t.Cleanup(kb.Close)
	ed := editor.New(ld, store, store, editor.Options{Enabled: true, AllowedRoles: []models.Role{models.RoleAdmin}},
		editor.WithRefresher(kb))

	mailer := &codeMailer{codes: make(map[string]string)}
	authSvc := auth.New(store, store, mailer, auth.Options{BcryptCost: bcrypt.MinCost, RequireVerified: true})
	_, err = authSvc.SeedTestAccounts(ctx, false)
	require.NoError(t, err)

	cfg := &config.Config{Auth: config.AuthConfig{CookieName: testCookie}}
	srv := NewServer(Deps{
		Auth:      authSvc,
		Assistant: asst,
		Editor:    ed,
		Knowledge: kb,
		Progress:  progress.New(store, store, progress.Options{}),
		Edits:     store,
	}, cfg, zap.NewNop())
	return &testServer{handler: srv.Router(), store: store, llm: client, mailer: mailer, manualID: manualID}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "senha": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLogin_CookieSessionAndLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": "admin@mindhub.com", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": "admin@mindhub.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Status string      `json:"status"`
		Role   models.Role `json:"role"`
	}
	decodeBody(t, w, &out)
	assert.Equal(t, "sucesso", out.Status)
	assert.Equal(t, models.RoleAdmin, out.Role)

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.AddCookie(session)
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, me)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		User    models.User `json:"user"`
		CanEdit bool        `json:"can_edit"`
	}
	decodeBody(t, w, &profile)
	assert.Equal(t, "admin@mindhub.com", profile.User.Email)
	assert.True(t, profile.CanEdit)

	logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logout.AddCookie(session)
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, logout)
	require.Equal(t, http.StatusOK, w.Code)

	me = httptest.NewRequest(http.MethodGet, "/me", nil)
	me.AddCookie(session)
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, me)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignupVerifyAndLogin(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/signup", "", map[string]string{
		"email": "Nova@MindHub.com", "password": "segredo1", "first_name": "Nova",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": "nova@mindhub.com", "password": "segredo1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/signup", "", map[string]string{"email": "nova@mindhub.com", "password": "segredo1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/verify-email", "", map[string]string{"email": "nova@mindhub.com", "code": "000000x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	code := ts.mailer.code("nova@mindhub.com")
	require.Len(t, code, 6)
	w = ts.do(t, http.MethodPost, "/verify-email", "", map[string]string{"email": "nova@mindhub.com", "code": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	token := ts.login(t, "nova@mindhub.com", "segredo1")
	w = ts.do(t, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/resend-code", "", map[string]string{"email": "ninguem@mindhub.com"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "aluno1@mindhub.com", "aluno123")

	w := ts.do(t, http.MethodPost, "/ask", "", map[string]string{"message": "Quantos dias de férias?"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/ask", token, map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/ask", token, map[string]string{"message": "Quantos dias de férias?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans assistant.Answer
	decodeBody(t, w, &ans)
	assert.Equal(t, "São 30 dias corridos de férias.", ans.Text)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, ts.manualID, ans.Sources[0].FileID)

	calls := ts.llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0][len(calls[0])-1].Content, "Férias: 30 dias corridos.")

	w = ts.do(t, http.MethodGet, "/api/v1/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Index    knowledge.Status `json:"index"`
		Sessions int              `json:"sessions"`
	}
	decodeBody(t, w, &status)
	assert.Equal(t, int64(1), status.Index.Documents)
	assert.Equal(t, 1, status.Sessions)
}

func TestRoleEnforcement(t *testing.T) {
	ts := newTestServer(t)
	student := ts.login(t, "aluno1@mindhub.com", "aluno123")
	monitor := ts.login(t, "monitor@mindhub.com", "monitor123")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"anonymous monitor api", http.MethodGet, "/api/monitor/students", "", http.StatusUnauthorized},
		{"student monitor api", http.MethodGet, "/api/monitor/students", student, http.StatusForbidden},
		{"monitor monitor api", http.MethodGet, "/api/monitor/students", monitor, http.StatusOK},
		{"monitor admin api", http.MethodGet, "/api/admin/users", monitor, http.StatusForbidden},
		{"monitor trail api", http.MethodGet, "/api/trilha/progress", monitor, http.StatusForbidden},
		{"student trail api", http.MethodGet, "/api/trilha/progress", student, http.StatusOK},
		{"student refresh", http.MethodPost, "/refresh", student, http.StatusForbidden},
		{"bad id", http.MethodGet, "/api/monitor/students/abc", monitor, http.StatusBadRequest},
		{"unknown student", http.MethodGet, "/api/monitor/students/9999", monitor, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEdit(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@mindhub.com", "admin123")
	student := ts.login(t, "aluno1@mindhub.com", "aluno123")

	replace := map[string]string{"file_id": ts.manualID, "text": `[AÇÃO: SUBSTITUIR | DE: "R$ 30,00" | PARA: "R$ 35,00"]`}
	w := ts.do(t, http.MethodPost, "/edit", student, replace)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/edit", admin, replace)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Status  string         `json:"status"`
		Outcome editor.Outcome `json:"outcome"`
	}
	decodeBody(t, w, &out)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Outcome.Result.Changes)

	w = ts.do(t, http.MethodPost, "/edit", admin, replace)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, "/edit", admin, map[string]string{"file_id": ts.manualID, "text": `[AÇÃO: SUBSTITUIR | DE: "x]`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/edit", admin, map[string]string{"file_name": "Outro.docx", "text": `[AÇÃO: LIMPAR]`})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/admin/edits?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var log struct {
		Edits []models.EditRecord `json:"edits"`
		Limit int                 `json:"limit"`
	}
	decodeBody(t, w, &log)
	assert.Equal(t, 10, log.Limit)
	require.Len(t, log.Edits, 2)
}

func TestTrailSubmissionAndValidation(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@mindhub.com", "admin123")
	monitor := ts.login(t, "monitor@mindhub.com", "monitor123")
	student := ts.login(t, "aluno1@mindhub.com", "aluno123")

	w := ts.do(t, http.MethodPost, "/api/admin/worlds", admin, map[string]interface{}{"number": 1, "name": "Fundamentos"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var world models.World
	decodeBody(t, w, &world)
	assert.True(t, world.Active)

	w = ts.do(t, http.MethodPost, "/api/admin/steps", admin, map[string]interface{}{"world_id": world.ID, "order": 1, "title": "Apresentação"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var step models.Step
	decodeBody(t, w, &step)

	submitPath := fmt.Sprintf("/api/trilha/steps/%d/submissions", step.ID)
	w = ts.do(t, http.MethodPost, submitPath, student, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, submitPath, student, map[string]string{"text": "Vídeo enviado"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub models.Submission
	decodeBody(t, w, &sub)
	w = ts.do(t, http.MethodPost, submitPath, student, map[string]string{"text": "De novo"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/monitor/submissions/pending", monitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Total int `json:"total"`
	}
	decodeBody(t, w, &pending)
	assert.Equal(t, 1, pending.Total)

	validatePath := fmt.Sprintf("/api/monitor/submissions/%d/validate", sub.ID)
	w = ts.do(t, http.MethodPost, validatePath, monitor, map[string]interface{}{"approved": false})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, validatePath, monitor, map[string]interface{}{"feedback": "ok"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, validatePath, monitor, map[string]interface{}{"approved": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var validated struct {
		StepStatus models.ProgressStatus `json:"step_status"`
	}
	decodeBody(t, w, &validated)
	assert.Equal(t, models.StatusCompleted, validated.StepStatus)
	w = ts.do(t, http.MethodPost, validatePath, monitor, map[string]interface{}{"approved": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/trilha/progress", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view progress.TrailView
	decodeBody(t, w, &view)
	assert.Equal(t, 1, view.Progress.CompletedSteps)
	assert.Equal(t, float64(100), view.Progress.Percent)
}

func TestMonitorScoreAndStats(t *testing.T) {
	ts := newTestServer(t)
	monitor := ts.login(t, "monitor@mindhub.com", "monitor123")

	w := ts.do(t, http.MethodGet, "/api/monitor/students", monitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list progress.StudentList
	decodeBody(t, w, &list)
	require.Equal(t, 5, list.Total)
	id := list.Students[0].ID

	path := fmt.Sprintf("/api/monitor/students/%d/score", id)
	w = ts.do(t, http.MethodPost, path, monitor, map[string]interface{}{"score": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, path, monitor, map[string]interface{}{"note": "sem nota"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, path, monitor, map[string]interface{}{"score": 5, "note": "Ótimo ritmo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/monitor/stats", monitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats progress.Stats
	decodeBody(t, w, &stats)
	assert.Equal(t, 5, stats.TotalStudents)
	assert.Equal(t, 1, stats.Distribution[5])

	// Seeded students have no phone.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/monitor/students/%d/alert", id), monitor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@mindhub.com", "admin123")
	student := ts.login(t, "aluno2@mindhub.com", "aluno123")

	w := ts.do(t, http.MethodGet, "/api/admin/users?role=student", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users struct {
		Users []models.User `json:"users"`
		Total int           `json:"total"`
	}
	decodeBody(t, w, &users)
	assert.Equal(t, 5, users.Total)

	w = ts.do(t, http.MethodGet, "/api/admin/users?role=chefe", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var target int64
	for _, u := range users.Users {
		if u.Email == "aluno2@mindhub.com" {
			target = u.ID
		}
	}
	require.NotZero(t, target)
	w = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/users/%d", target), admin, map[string]interface{}{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/me", student, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("apply: %w", mutate.ErrNoMatch), http.StatusUnprocessableEntity},
		{&command.SyntaxError{Offset: 3, Msg: "unterminated quote"}, http.StatusBadRequest},
		{fmt.Errorf("edit: %w", editor.ErrAmbiguousFile), http.StatusConflict},
		{fmt.Errorf("lookup: %w", storage.ErrNotFound), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{knowledge.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	s := NewServer(Deps{}, &config.Config{}, zap.NewNop())
	w := httptest.NewRecorder()
	s.fail(w, "boom", fmt.Errorf("password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
