package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// makeJWT builds an unsigned JWT-shaped token with the given expiry.
func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	claims, err := json.Marshal(map[string]int64{"exp": exp.Unix()})
	if err != nil {
		t.Fatal(err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + ".sig"
}

func TestValid(t *testing.T) {
	p := NewProvider("http://id.invalid", "acme", "id", "secret")
	tests := []struct {
		name string
		tok  string
		want bool
	}{
		{"fresh", makeJWT(t, time.Now().Add(time.Hour)), true},
		{"expired", makeJWT(t, time.Now().Add(-time.Hour)), false},
		{"within_margin", makeJWT(t, time.Now().Add(30*time.Second)), false},
		{"not_a_jwt", "garbage", false},
		{"bad_base64", "a.!!!.c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.valid(tt.tok); got != tt.want {
				t.Errorf("valid(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestToken_fetchAndCache(t *testing.T) {
	fresh := makeJWT(t, time.Now().Add(time.Hour))
	var calls int

	r := chi.NewRouter()
	r.Post("/oauth2/token", func(w http.ResponseWriter, req *http.Request) {
		calls++
		user, pass, ok := req.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := req.ParseForm(); err != nil || req.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":3600}`, fresh)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	dir := t.TempDir()
	p := NewProvider(srv.URL+"/oauth2/token", "acme", "id", "secret", WithCacheDir(dir))

	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != fresh {
		t.Errorf("unexpected token: %s", tok)
	}

	// Second call must hit the cache, not the server.
	tok2, err := p.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok2 != fresh {
		t.Errorf("cached token mismatch: %s", tok2)
	}
	if calls != 1 {
		t.Errorf("identity provider called %d times, want 1", calls)
	}

	if _, err := os.Stat(filepath.Join(dir, ".partcli.acme.token")); err != nil {
		t.Errorf("token cache file missing: %v", err)
	}
}

func TestToken_expiredCacheRefetches(t *testing.T) {
	fresh := makeJWT(t, time.Now().Add(time.Hour))
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		fmt.Fprintf(w, `{"access_token":%q}`, fresh)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := NewProvider(srv.URL, "acme", "id", "secret", WithCacheDir(dir))
	stale := makeJWT(t, time.Now().Add(-time.Minute))
	if err := os.WriteFile(p.CachePath(), []byte(stale), 0600); err != nil {
		t.Fatal(err)
	}

	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != fresh {
		t.Error("stale cached token was reused")
	}
	if calls != 1 {
		t.Errorf("identity provider called %d times, want 1", calls)
	}
}

func TestToken_rejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "acme", "id", "wrong", WithCacheDir(t.TempDir()))
	if _, err := p.Token(context.Background()); err == nil {
		t.Error("expected an error for rejected credentials")
	}
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider("http://id.invalid", "acme", "id", "secret", WithCacheDir(dir))
	if err := os.WriteFile(p.CachePath(), []byte("tok"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := p.Invalidate(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.CachePath()); !os.IsNotExist(err) {
		t.Error("cache file still present after Invalidate")
	}
	// Invalidating again is not an error.
	if err := p.Invalidate(); err != nil {
		t.Errorf("second Invalidate: %v", err)
	}
}
