package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
		wantBody    string
	}{
		{"valid object", http.MethodPost, "application/json", `{"username":"alice"}`, http.StatusOK, `{"username":"alice"}`},
		{"content type with charset", http.MethodPost, "application/json; charset=utf-8", `{"a":1}`, http.StatusOK, `{"a":1}`},
		{"missing content type is checked", http.MethodPost, "", `{"a":`, http.StatusBadRequest, ""},
		{"truncated object", http.MethodPost, "application/json", `{"username":`, http.StatusBadRequest, ""},
		{"trailing garbage", http.MethodPut, "application/json", `{"a":1}}`, http.StatusBadRequest, ""},
		{"empty body passes", http.MethodPost, "application/json", ``, http.StatusOK, ``},
		{"form bodies are not checked", http.MethodPost, "application/x-www-form-urlencoded", `website=`, http.StatusOK, `website=`},
		{"GET is not checked", http.MethodGet, "application/json", `{`, http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			handler := ValidateJSON(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				seen = string(b)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/auth/register", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen != tt.wantBody {
				t.Errorf("handler saw body %q, want %q", seen, tt.wantBody)
			}
			if tt.wantStatus == http.StatusBadRequest {
				env := decodeEnvelope(t, rec)
				if env.Code != "BAD_REQUEST" {
					t.Errorf("code = %v, want BAD_REQUEST", env.Code)
				}
			}
		})
	}
}
