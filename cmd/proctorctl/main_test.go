package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/shuffle"
	"github.com/ibrahim-sultan/examPro/internal/store"
)

type cli struct {
	t      *testing.T
	dbPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET", "proctorctl-test-secret")
	return &cli{t: t, dbPath: filepath.Join(t.TempDir(), "proctor.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := rootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--store", "sqlite", "--sqlite-path", c.dbPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(v interface{}, args ...string) {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("%v: %v", args, err)
	}
	if v != nil {
		if err := json.Unmarshal([]byte(out), v); err != nil {
			c.t.Fatalf("%v: decode %q: %v", args, out, err)
		}
	}
}

func writeQuestions(t *testing.T, entries []questionImport) string {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportCreateAndControl(t *testing.T) {
	c := newCLI(t)

	file := writeQuestions(t, []questionImport{
		{Subject: "biology", QuestionText: "Powerhouse of the cell?", Options: []string{"nucleus", "mitochondria", "ribosome"}, CorrectOption: 1},
		{Subject: "biology", QuestionText: "DNA shape?", Options: []string{"helix", "sheet"}, CorrectOption: 0},
		{Subject: "history", QuestionText: "Year?", Options: []string{"1945", "1939"}, CorrectOption: 0},
	})
	var imported []model.Question
	c.mustRun(&imported, "questions", "import", file)
	if len(imported) != 3 {
		t.Fatalf("imported %d questions", len(imported))
	}

	var sample []model.Question
	c.mustRun(&sample, "questions", "sample", "--subject", "biology", "-n", "5")
	if len(sample) != 2 {
		t.Fatalf("sampled %d biology questions, want 2", len(sample))
	}

	var exam model.Exam
	c.mustRun(&exam, "exams", "create", "--title", "Cells", "--subject", "biology", "-n", "2", "--duration", "20", "--publish")
	if exam.Status != model.ExamStatusPublished || len(exam.QuestionIDs) != 2 {
		t.Fatalf("exam = %+v", exam)
	}

	// Start an attempt the way the API would.
	cfg := &config.Config{StoreDriver: config.StoreDriverSQLite, SQLitePath: c.dbPath}
	stores, err := store.Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	catalog := service.NewExamCatalog(stores.Exams, stores.Questions, nil, zerolog.Nop())
	view, err := service.NewSessionService(stores.Sessions, catalog, shuffle.New(), zerolog.Nop()).StartOrResume(context.Background(), 31, exam.ID)
	stores.Close()
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var ongoing []model.OngoingSession
	c.mustRun(&ongoing, "ongoing", "--exam", exam.ID.String())
	if len(ongoing) != 1 || ongoing[0].StudentID != 31 {
		t.Fatalf("ongoing = %+v", ongoing)
	}

	var summary model.SessionSummary
	c.mustRun(&summary, "force-submit", view.SessionID.String())
	if !summary.ForcedSubmit || summary.Status != model.SessionStatusCompleted {
		t.Errorf("force-submit summary = %+v", summary)
	}

	if _, err := c.run("suspend", view.SessionID.String()); err == nil {
		t.Error("suspending a completed session should fail")
	}

	c.mustRun(&ongoing, "ongoing")
	if len(ongoing) != 0 {
		t.Errorf("ongoing after force-submit = %d", len(ongoing))
	}
}

func TestImportRejectsInvalidFile(t *testing.T) {
	c := newCLI(t)
	file := writeQuestions(t, []questionImport{
		{Subject: "math", QuestionText: "1+1?", Options: []string{"2", "3"}, CorrectOption: 0},
		{Subject: "math", QuestionText: "broken", Options: []string{"only"}, CorrectOption: 0},
	})
	if _, err := c.run("questions", "import", file); err == nil {
		t.Fatal("expected validation error")
	}

	var sample []model.Question
	c.mustRun(&sample, "questions", "sample", "--subject", "math")
	if len(sample) != 0 {
		t.Errorf("partial import wrote %d questions", len(sample))
	}
}

func TestTokenCommands(t *testing.T) {
	c := newCLI(t)
	auth := service.NewAuthService(&config.Config{JWTSecret: "proctorctl-test-secret"})

	out, err := c.run("token", "student", "--id", "12")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ValidateToken(strings.TrimSpace(out))
	if err != nil || claims.UserID != 12 || claims.TokenType != service.TokenTypeStudent {
		t.Fatalf("student claims = %+v err %v", claims, err)
	}

	out, err = c.run("token", "admin", "--id", "2", "--perm", string(model.PermissionSessionsMonitor))
	if err != nil {
		t.Fatal(err)
	}
	claims, err = auth.ValidateToken(strings.TrimSpace(out))
	if err != nil || !claims.HasPermission(string(model.PermissionSessionsMonitor)) || claims.HasPermission(string(model.PermissionSessionsControl)) {
		t.Fatalf("admin claims = %+v err %v", claims, err)
	}
}
