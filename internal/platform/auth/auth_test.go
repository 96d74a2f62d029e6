package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func testConfig() Config {
	return Config{
		Secret:          "test-secret",
		Issuer:          "cds",
		Audience:        "chub-api",
		DefaultLifetime: time.Hour,
		MaxLifetime:     24 * time.Hour,
	}
}

func TestSignAndVerify(t *testing.T) {
	cfg := testConfig()
	issuer := NewTokenIssuer(cfg)

	token, err := issuer.Sign("static:alice", 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	subject, err := Verify(cfg, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "static:alice" {
		t.Errorf("subject = %q, want static:alice", subject)
	}
}

func TestVerifyRejects(t *testing.T) {
	cfg := testConfig()
	issuer := NewTokenIssuer(cfg)
	token, err := issuer.Sign("static:alice", 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	t.Run("wrong secret", func(t *testing.T) {
		bad := cfg
		bad.Secret = "other"
		if _, err := Verify(bad, token); err == nil {
			t.Error("token accepted with wrong secret")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		bad := cfg
		bad.Issuer = "someone-else"
		if _, err := Verify(bad, token); err == nil {
			t.Error("token accepted with wrong issuer")
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := issuer.Sign("static:alice", -time.Minute)
		if err == nil {
			if _, verr := Verify(cfg, expired); verr == nil {
				t.Error("expired token accepted")
			}
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := Verify(cfg, "not.a.token"); err == nil {
			t.Error("garbage accepted")
		}
	})
}

func TestJWTMiddleware(t *testing.T) {
	cfg := testConfig()
	issuer := NewTokenIssuer(cfg)
	e := echo.New()

	handler := JWTMiddleware(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, UserFromContext(c.Request().Context()))
	})

	t.Run("valid token passes", func(t *testing.T) {
		token, _ := issuer.Sign("static:alice", 0)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Body.String() != "static:alice" {
			t.Errorf("subject in context = %q", rec.Body.String())
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		var httpErr *echo.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
			t.Fatalf("err = %v, want 401", err)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Error("missing WWW-Authenticate challenge")
		}
	})

	t.Run("malformed scheme rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		var httpErr *echo.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
			t.Fatalf("err = %v, want 401", err)
		}
	})
}

func TestStaticStore(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := NewStaticStore("static", map[string]string{"alice": hash})

	t.Run("valid credentials", func(t *testing.T) {
		uid, err := store.Authenticate(context.Background(), "alice", "s3cret")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if uid != "alice" {
			t.Errorf("uid = %q", uid)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := store.Authenticate(context.Background(), "alice", "nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := store.Authenticate(context.Background(), "bob", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}

type failingStore struct{}

func (failingStore) Realm() string { return "broken" }
func (failingStore) Authenticate(context.Context, string, string) (string, error) {
	return "", errors.New("backend down")
}

func TestAuthenticateChain(t *testing.T) {
	hash, _ := HashPassword("pw")
	stores := []UserStore{
		failingStore{},
		NewStaticStore("static", map[string]string{"alice": hash}),
	}

	subject, err := Authenticate(context.Background(), stores, "alice", "pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if subject != "static:alice" {
		t.Errorf("subject = %q, want realm-qualified id", subject)
	}

	if _, err := Authenticate(context.Background(), stores, "alice", "bad"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}
