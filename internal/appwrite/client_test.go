package appwrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc, apiKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{Endpoint: srv.URL + "/v1", ProjectID: "pulse", APIKey: apiKey})
}

func TestClient_Call_SetsProjectHeaders(t *testing.T) {
	var gotProject, gotKey, gotSession string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotProject = r.Header.Get("X-Appwrite-Project")
		gotKey = r.Header.Get("X-Appwrite-Key")
		gotSession = r.Header.Get("X-Appwrite-Session")
		w.Write([]byte(`{}`))
	}, "secret-key")
	c.SetSession("sess-1")

	if err := c.Call(context.Background(), http.MethodGet, "/account", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotProject != "pulse" {
		t.Errorf("X-Appwrite-Project = %q, want %q", gotProject, "pulse")
	}
	if gotKey != "secret-key" {
		t.Errorf("X-Appwrite-Key = %q, want %q", gotKey, "secret-key")
	}
	if gotSession != "sess-1" {
		t.Errorf("X-Appwrite-Session = %q, want %q", gotSession, "sess-1")
	}
}

func TestClient_Call_PostSendsJSONBody(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"$id":"abc"}`))
	}, "")

	var out struct {
		ID string `json:"$id"`
	}
	err := c.Call(context.Background(), http.MethodPost, "/account", map[string]any{"email": "a@b.com"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["email"] != "a@b.com" {
		t.Errorf("body email = %v", body["email"])
	}
	if out.ID != "abc" {
		t.Errorf("out.ID = %q, want %q", out.ID, "abc")
	}
}

func TestClient_Call_ParsesErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"More factors are required to complete the sign in process.","code":401,"type":"user_more_factors_required"}`))
	}, "")

	err := c.Call(context.Background(), http.MethodGet, "/account", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsType(err, TypeMoreFactorsRequired) {
		t.Errorf("expected more factors type, got %v", err)
	}
	if !IsUnauthorized(err) {
		t.Error("expected IsUnauthorized to be true")
	}
	if IsNotFound(err) {
		t.Error("expected IsNotFound to be false")
	}
}

func TestClient_Call_NonJSONErrorUsesStatusText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}, "")

	err := c.Call(context.Background(), http.MethodGet, "/health", nil, nil)
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Code != http.StatusBadGateway || e.Message != "Bad Gateway" {
		t.Errorf("error = %+v", e)
	}
}

func TestClient_CapturesSessionCookie(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "a_session_pulse", Value: "cookie-secret", Path: "/"})
		w.Write([]byte(`{}`))
	}, "")

	if err := c.Call(context.Background(), http.MethodPost, "/account/sessions/email", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Session(); got != "cookie-secret" {
		t.Errorf("Session() = %q, want %q", got, "cookie-secret")
	}
}

func TestClient_SetSessionEmpty_DropsCookies(t *testing.T) {
	var gotCookie string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = ""
		if ck, err := r.Cookie("a_session_pulse"); err == nil {
			gotCookie = ck.Value
		}
		if r.URL.Path == "/v1/account/sessions/email" {
			http.SetCookie(w, &http.Cookie{Name: "a_session_pulse", Value: "cookie-secret", Path: "/"})
		}
		w.Write([]byte(`{}`))
	}, "")
	ctx := context.Background()

	if err := c.Call(ctx, http.MethodPost, "/account/sessions/email", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Call(ctx, http.MethodGet, "/account", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCookie != "cookie-secret" {
		t.Fatalf("cookie before clear = %q, want %q", gotCookie, "cookie-secret")
	}

	c.SetSession("")
	if err := c.Call(ctx, http.MethodGet, "/account", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCookie != "" {
		t.Errorf("cookie after clear = %q, want empty", gotCookie)
	}
	if c.Session() != "" {
		t.Errorf("Session() = %q, want empty", c.Session())
	}
}

func TestClient_SetSessionDuringCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "a_session_pulse", Value: "cookie-secret", Path: "/"})
		w.Write([]byte(`{}`))
	}, "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := c.Call(ctx, http.MethodGet, "/account", nil, nil); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			c.SetSession("")
			c.SetSession("sess-1")
		}
	}()
	wg.Wait()
}

func TestClient_Call_GetEncodesSliceQuery(t *testing.T) {
	var rawQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.Query().Get("queries[]")
		w.Write([]byte(`{"total":0,"memberships":[]}`))
	}, "key")

	_, err := NewTeams(c).ListMemberships(context.Background(), "premium", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rawQuery, `"attribute":"userId"`) || !strings.Contains(rawQuery, `"user-1"`) {
		t.Errorf("queries[] = %q", rawQuery)
	}
}

func TestQuery_String(t *testing.T) {
	got := Equal("status", "active").String()
	want := `{"method":"equal","attribute":"status","values":["active"]}`
	if got != want {
		t.Errorf("Equal().String() = %s, want %s", got, want)
	}
}
