package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kodibridge/internal/service"
)

func postJSON(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp_ReturnsNewUserID(t *testing.T) {
	auth := &mockAuth{signUpID: 7}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-up", `{"username":"operator","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != 7 {
		t.Fatalf("id: got %d, want 7", resp.ID)
	}
	if auth.lastSignUpUsername != "operator" || auth.lastSignUpPassword != "hunter2" {
		t.Fatalf("credentials not forwarded: %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}
}

func TestSignIn_ReturnsToken(t *testing.T) {
	auth := &mockAuth{genTokenToken: "jwt-abc"}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-in", `{"username":"operator","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token != "jwt-abc" {
		t.Fatalf("token: got %q, want %q", resp.Token, "jwt-abc")
	}
	if auth.lastGenUsername != "operator" {
		t.Fatalf("GenerateToken got username %q", auth.lastGenUsername)
	}
}

func TestAuth_MalformedBodyRejected(t *testing.T) {
	auth := &mockAuth{}
	r := newTestRouter(&service.Service{Authorization: auth})

	for _, path := range []string{"/auth/sign-up", "/auth/sign-in"} {
		w := postJSON(t, r, path, `{"username":1}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d, want 400 (body=%s)", path, w.Code, w.Body.String())
		}
	}
}
