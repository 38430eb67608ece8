package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
	"github.com/ibrahim-sultan/examPro/internal/handler"
	"github.com/ibrahim-sultan/examPro/internal/i18n"
	"github.com/ibrahim-sultan/examPro/internal/middleware"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository/sqlite"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/shuffle"
	"github.com/ibrahim-sultan/examPro/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	m.Run()
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

type testApp struct {
	t         *testing.T
	engine    *gin.Engine
	auth      *service.AuthService
	exam      *model.Exam
	questions []model.Question
}

func newTestApp(t *testing.T, eventRate int) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLite(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		JWTSecret:          "router-test-secret",
		JWTExpiry:          time.Hour,
		DefaultLocale:      "en",
		EventRatePerMinute: eventRate,
	}

	exams := sqlite.NewExamRepository(db)
	bank := sqlite.NewQuestionRepository(db)
	app := &testApp{t: t, auth: service.NewAuthService(cfg)}

	now := time.Now().UTC()
	app.exam = &model.Exam{
		Title:           "Physics midterm",
		Subject:         "physics",
		DurationMinutes: 30,
		MarkingScheme:   model.DefaultMarkingScheme,
		Status:          model.ExamStatusPublished,
		StartTime:       now.Add(-time.Hour),
	}
	for i, correct := range []int{3, 0} {
		q := model.Question{
			Subject:       "physics",
			QuestionText:  fmt.Sprintf("question %d", i+1),
			Options:       []string{"alpha", "beta", "gamma", "delta"},
			CorrectOption: correct,
		}
		if err := bank.Create(ctx, &q); err != nil {
			t.Fatalf("create question: %v", err)
		}
		app.questions = append(app.questions, q)
		app.exam.QuestionIDs = append(app.exam.QuestionIDs, q.ID)
	}
	if err := exams.Create(ctx, app.exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	catalog := service.NewExamCatalog(exams, bank, nil, zerolog.Nop())
	sessions := service.NewSessionService(sqlite.NewExamSessionRepository(db), catalog, shuffle.NewSeeded(7, 11), zerolog.Nop())

	locales, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}
	limiterCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	limiter := middleware.NewRateLimiter(limiterCtx, cfg.EventRatePerMinute, time.Minute)

	app.engine = SetupRouter(app.auth, &Handlers{
		Session: handler.NewSessionHandler(sessions, zerolog.Nop()),
		Monitor: handler.NewMonitorHandler(nil, sessions, zerolog.Nop()),
		WS:      handler.NewWSHandler(sessions, limiter, zerolog.Nop(), nil),
		System:  handler.NewSystemHandler(database.PingFunc(db.PingContext), nil, zerolog.Nop()),
	}, locales, limiter, cfg)
	return app
}

func (a *testApp) studentToken(id int) string {
	a.t.Helper()
	tok, err := a.auth.GenerateStudentToken(id)
	if err != nil {
		a.t.Fatalf("student token: %v", err)
	}
	return tok
}

func (a *testApp) adminToken(perms ...model.Permission) string {
	a.t.Helper()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	tok, err := a.auth.GenerateAdminToken(1, names)
	if err != nil {
		a.t.Fatalf("admin token: %v", err)
	}
	return tok
}

func (a *testApp) do(method, path, token string, body interface{}, header ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func (a *testApp) start(token string) model.SessionView {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/results/start/"+a.exam.ID.String(), token, nil)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		a.t.Fatalf("start: status %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		Session model.SessionView `json:"session"`
	}
	decode(a.t, w, &data)
	return data.Session
}

// correctDisplayIndex finds where the correct option text landed in the view.
func (a *testApp) correctDisplayIndex(v model.QuestionView) int {
	a.t.Helper()
	for _, q := range a.questions {
		if q.ID != v.QuestionID {
			continue
		}
		want := q.Options[q.CorrectOption]
		for i, opt := range v.Options {
			if opt == want {
				return i
			}
		}
	}
	a.t.Fatalf("question %s not found in view", v.QuestionID)
	return -1
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, 100)
	w := app.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"store":"up"`) {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t, 100)

	w := app.do(http.MethodPost, "/api/v1/results/start/"+app.exam.ID.String(), "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if env := decode(t, w, nil); env.Error == nil || env.Error.Code != "TOKEN_REQUIRED" {
		t.Errorf("error = %+v, want TOKEN_REQUIRED", env.Error)
	}

	w = app.do(http.MethodPost, "/api/v1/results/start/"+app.exam.ID.String(), "not-a-jwt", nil)
	if env := decode(t, w, nil); env.Error == nil || env.Error.Code != "TOKEN_INVALID" {
		t.Errorf("error = %+v, want TOKEN_INVALID", env.Error)
	}

	admin := app.adminToken(model.PermissionSessionsMonitor)
	w = app.do(http.MethodPost, "/api/v1/results/start/"+app.exam.ID.String(), admin, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("admin on student route: status = %d, want 403", w.Code)
	}
}

func TestStartSubmitFlow(t *testing.T) {
	app := newTestApp(t, 100)
	token := app.studentToken(42)

	view := app.start(token)
	if view.Resumed {
		t.Fatal("first start reported resumed")
	}
	if len(view.Questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(view.Questions))
	}
	if w := app.do(http.MethodPost, "/api/v1/results/start/"+app.exam.ID.String(), token, nil); w.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", w.Code)
	}
	if w := app.do(http.MethodGet, "/api/v1/results/"+view.SessionID.String(), token, nil); w.Header().Get("Cache-Control") != "no-store, private" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	// The view must not carry answer keys.
	w := app.do(http.MethodPost, "/api/v1/results/start/"+app.exam.ID.String(), token, nil)
	if body := w.Body.String(); strings.Contains(body, "correct") || strings.Contains(body, "option_order") {
		t.Errorf("view leaks answer data: %s", body)
	}

	first := view.Questions[0]
	answers := map[string]interface{}{
		first.QuestionID.String(): app.correctDisplayIndex(first),
		"not-a-uuid":              1,
	}
	w = app.do(http.MethodPost, "/api/v1/results/submit/"+view.SessionID.String(), token, gin.H{"answers": answers})
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		Summary model.SessionSummary `json:"summary"`
	}
	decode(t, w, &data)
	if data.Summary.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", data.Summary.Status)
	}
	if data.Summary.Score == nil || *data.Summary.Score != 1 {
		t.Errorf("score = %v, want 1", data.Summary.Score)
	}

	w = app.do(http.MethodPost, "/api/v1/results/submit/"+view.SessionID.String(), token, gin.H{"answers": answers})
	if w.Code != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409", w.Code)
	}
	if env := decode(t, w, nil); env.Error == nil || env.Error.Code != "ALREADY_FINALIZED" {
		t.Errorf("error = %+v, want ALREADY_FINALIZED", env.Error)
	}

	w = app.do(http.MethodGet, "/api/v1/results/"+view.SessionID.String()+"/state", token, nil)
	var state model.SessionState
	decode(t, w, &state)
	if state.Status != model.SessionStatusCompleted || state.RemainingSeconds != 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestSubmitValidation(t *testing.T) {
	app := newTestApp(t, 100)
	token := app.studentToken(1)
	view := app.start(token)

	w := app.do(http.MethodPost, "/api/v1/results/submit/not-a-uuid", token, gin.H{})
	if env := decode(t, w, nil); w.Code != http.StatusBadRequest || env.Error.Code != "INVALID_ID" {
		t.Errorf("bad id: status %d error %+v", w.Code, env.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/submit/"+view.SessionID.String(), strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d", rec.Code)
	}
	if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != "INVALID_PAYLOAD" || len(env.Error.Fields) != 0 {
		t.Errorf("malformed body: error %+v", env.Error)
	}

	other := app.studentToken(2)
	w = app.do(http.MethodPost, "/api/v1/results/submit/"+view.SessionID.String(), other, gin.H{"answers": gin.H{}})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign submit: status %d, want 403", w.Code)
	}
}

func TestSubmitGarbledAnswersScoresZero(t *testing.T) {
	app := newTestApp(t, 100)

	for i, answers := range []interface{}{[]int{1, 2}, "garbled", 7} {
		token := app.studentToken(100 + i)
		view := app.start(token)

		w := app.do(http.MethodPost, "/api/v1/results/submit/"+view.SessionID.String(), token, gin.H{"answers": answers})
		if w.Code != http.StatusOK {
			t.Fatalf("answers %v: status %d body %s", answers, w.Code, w.Body.String())
		}
		var data struct {
			Summary model.SessionSummary `json:"summary"`
		}
		decode(t, w, &data)
		if data.Summary.Status != model.SessionStatusCompleted {
			t.Errorf("answers %v: status %s, want COMPLETED", answers, data.Summary.Status)
		}
		if data.Summary.Score == nil || *data.Summary.Score != 0 {
			t.Errorf("answers %v: score %v, want 0", answers, data.Summary.Score)
		}
	}
}

func TestLocalizedErrors(t *testing.T) {
	app := newTestApp(t, 100)
	token := app.studentToken(1)

	w := app.do(http.MethodGet, "/api/v1/results/"+uuid.NewString(), token, nil, "Accept-Language", "id")
	env := decode(t, w, nil)
	if w.Code != http.StatusNotFound || env.Error == nil {
		t.Fatalf("status %d error %+v", w.Code, env.Error)
	}
	if env.Error.Message == "" || env.Error.Message == "Resource not found." {
		t.Errorf("message not localized: %q", env.Error.Message)
	}
}

func TestRecordEvent(t *testing.T) {
	app := newTestApp(t, 3)
	token := app.studentToken(5)
	view := app.start(token)

	w := app.do(http.MethodPost, "/api/v1/monitor/events", token, gin.H{"session_id": view.SessionID, "type": "teleport"})
	env := decode(t, w, nil)
	if w.Code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unknown type: status %d error %+v", w.Code, env.Error)
	}
	if env.Error.Fields["type"] == "" {
		t.Errorf("missing field error for type: %+v", env.Error.Fields)
	}

	for i := 0; i < 2; i++ {
		w = app.do(http.MethodPost, "/api/v1/monitor/events", token, gin.H{"session_id": view.SessionID, "type": "visibilitychange"})
		if w.Code != http.StatusAccepted {
			t.Fatalf("event %d: status %d body %s", i, w.Code, w.Body.String())
		}
	}

	// The rejected request above spent one token too.
	w = app.do(http.MethodPost, "/api/v1/monitor/events", token, gin.H{"session_id": view.SessionID, "type": "blur"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: status %d, want 429", w.Code)
	}

	w = app.do(http.MethodGet, "/api/v1/results/"+view.SessionID.String(), token, nil)
	var data struct {
		Summary model.SessionSummary `json:"summary"`
	}
	decode(t, w, &data)
	if data.Summary.Telemetry.TabSwitchCount != 2 {
		t.Errorf("tab switches = %d, want 2", data.Summary.Telemetry.TabSwitchCount)
	}
}

func TestAdminMonitor(t *testing.T) {
	app := newTestApp(t, 100)
	var views []model.SessionView
	for id := 1; id <= 12; id++ {
		views = append(views, app.start(app.studentToken(id)))
	}

	w := app.do(http.MethodGet, "/api/v1/monitor/ongoing", app.studentToken(1), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("student on admin route: status %d", w.Code)
	}
	w = app.do(http.MethodGet, "/api/v1/monitor/ongoing", app.adminToken(), nil)
	if env := decode(t, w, nil); w.Code != http.StatusForbidden || env.Error.Code != "PERMISSION_DENIED" {
		t.Errorf("no permission: status %d error %+v", w.Code, env.Error)
	}

	monitorTok := app.adminToken(model.PermissionSessionsMonitor)
	w = app.do(http.MethodGet, "/api/v1/monitor/ongoing?exam_id="+app.exam.ID.String(), monitorTok, nil, "Accept-Encoding", "br")
	if w.Code != http.StatusOK {
		t.Fatalf("ongoing status %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q, want br", w.Header().Get("Content-Encoding"))
	}
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil {
		t.Fatalf("brotli decode: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var list struct {
		Sessions []model.OngoingSession `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 12 {
		t.Errorf("ongoing = %d, want 12", len(list.Sessions))
	}

	target := views[0].SessionID.String()
	w = app.do(http.MethodPost, "/api/v1/monitor/force-submit/"+target, monitorTok, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("force-submit without control: status %d", w.Code)
	}

	controlTok := app.adminToken(model.PermissionSessionsControl)
	w = app.do(http.MethodPost, "/api/v1/monitor/force-submit/"+target, controlTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("force-submit status %d body %s", w.Code, w.Body.String())
	}
	w = app.do(http.MethodPost, "/api/v1/monitor/suspend/"+target, controlTok, nil)
	if env := decode(t, w, nil); w.Code != http.StatusConflict || env.Error.Code != "INVALID_STATE" {
		t.Errorf("suspend after force: status %d error %+v", w.Code, env.Error)
	}

	w = app.do(http.MethodPost, "/api/v1/monitor/suspend/"+views[1].SessionID.String(), controlTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suspend status %d", w.Code)
	}

	w = app.do(http.MethodGet, "/api/v1/monitor/results/"+target, monitorTok, nil)
	var data struct {
		Summary model.SessionSummary `json:"summary"`
	}
	decode(t, w, &data)
	if !data.Summary.ForcedSubmit || data.Summary.Score != nil {
		t.Errorf("forced summary = %+v", data.Summary)
	}

	w = app.do(http.MethodGet, "/api/v1/monitor/ongoing", monitorTok, nil)
	decode(t, w, &list)
	if len(list.Sessions) != 10 {
		t.Errorf("ongoing after admin actions = %d, want 10", len(list.Sessions))
	}
}

func TestStudentWebSocket(t *testing.T) {
	app := newTestApp(t, 100)
	token := app.studentToken(9)
	view := app.start(token)

	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/" + view.SessionID.String() + "/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong map[string]interface{}
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong["event"] != "pong" || pong["remaining_seconds"].(float64) <= 0 {
		t.Errorf("pong = %v", pong)
	}

	if err := conn.WriteJSON(map[string]string{"action": "event", "type": "blur"}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	var ack map[string]interface{}
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack["event"] != "ack" || ack["recorded"] != true {
		t.Errorf("ack = %v", ack)
	}

	if err := conn.WriteJSON(map[string]string{"action": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	var rejected map[string]interface{}
	if err := conn.ReadJSON(&rejected); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if rejected["event"] != "error" {
		t.Errorf("submit over websocket = %v, want error", rejected)
	}

	other := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/" + view.SessionID.String() + "/stream?token=" + app.studentToken(10)
	if _, resp, err := websocket.DefaultDialer.Dial(other, nil); err == nil {
		t.Fatal("foreign student upgraded")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign dial response = %v", resp)
	}
}
