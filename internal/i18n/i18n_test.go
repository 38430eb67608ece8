package i18n

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestTranslate(t *testing.T) {
	b, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := Translate(b.Localizer("id"), "NOT_FOUND", "x"); got != "Sumber daya tidak ditemukan." {
		t.Fatalf("id translation = %q", got)
	}
	if got := Translate(b.Localizer("fr-FR"), "NOT_FOUND", "x"); got != "Resource not found." {
		t.Fatalf("fallback translation = %q", got)
	}
	if got := Translate(b.Localizer(), "NO_SUCH_MESSAGE", "fallback"); got != "fallback" {
		t.Fatalf("missing message = %q", got)
	}
	if got := Translate(nil, "NOT_FOUND", "fallback"); got != "fallback" {
		t.Fatalf("nil localizer = %q", got)
	}
	if len(b.Tags()) != 2 {
		t.Fatalf("tags = %v", b.Tags())
	}
}

func TestNew_RejectsBadLocale(t *testing.T) {
	if _, err := New("not a locale!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b, err := New("en")
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.Use(b.Middleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Translate(FromContext(c), "INVALID_ID", "?"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9,en;q=0.8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "Format ID tidak valid." {
		t.Fatalf("body = %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "Invalid ID format." {
		t.Fatalf("body = %q", w.Body.String())
	}
}
