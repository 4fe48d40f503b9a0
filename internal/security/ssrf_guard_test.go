package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	for _, allowPrivate := range []bool{false, true} {
		client := NewSSRFGuard(allowPrivate).NewSafeClient(5 * time.Second)
		if client.Timeout != 5*time.Second {
			t.Errorf("allowPrivate=%v: expected timeout 5s, got %v", allowPrivate, client.Timeout)
		}
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
func TestNewSafeClientHasTransport(t *testing.T) {
	client := NewSSRFGuard(false).NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はループバック上のLMSへのリクエストがブロックされることをテストする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard(false).NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestNewSafeClientAllowPrivate はallowPrivate時にローカルのLMSへ接続できることをテストする。
func TestNewSafeClientAllowPrivate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard(true).NewSafeClient(5 * time.Second)

	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestValidateURL_PublicURL は公開されたLMSのURLの検証が成功することをテストする。
func TestValidateURL_PublicURL(t *testing.T) {
	guard := NewSSRFGuard(false)

	urls := []string{
		"https://canvas.instructure.com/login/oauth2/token",
		"https://lms.example.com/api/lti/courses/1/line_items",
		"https://moodle.example.org:443/mod/lti/token.php",
	}
	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err != nil {
				t.Errorf("ValidateURL(%q) returned unexpected error: %v", u, err)
			}
		})
	}
}

// TestValidateURL_BlockedTargets はプライベート・ループバック・メタデータのアドレスを拒否することをテストする。
func TestValidateURL_BlockedTargets(t *testing.T) {
	guard := NewSSRFGuard(false)

	blocked := []string{
		"https://10.0.0.1/token",
		"https://172.16.0.1/token",
		"https://192.168.1.1/token",
		"https://127.0.0.1/token",
		"https://localhost/token",
		"https://169.254.169.254/latest/meta-data/",
		"https://[::1]/token",
		"https://0.0.0.0/token",
	}
	for _, u := range blocked {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error", u)
			}
		})
	}
}

// TestValidateURL_RequiresHTTPS は本番設定でhttpを拒否することをテストする。
func TestValidateURL_RequiresHTTPS(t *testing.T) {
	if err := NewSSRFGuard(false).ValidateURL("http://lms.example.com/token"); err == nil {
		t.Error("http scheme should be rejected")
	}
	if err := NewSSRFGuard(true).ValidateURL("http://lms.example.com/token"); err != nil {
		t.Errorf("allowPrivate should accept http: %v", err)
	}
}

// TestValidateURL_AllowPrivate はallowPrivate時にローカルアドレスを許可することをテストする。
func TestValidateURL_AllowPrivate(t *testing.T) {
	guard := NewSSRFGuard(true)

	for _, u := range []string{"http://localhost:8080/token", "http://192.168.1.10/token"} {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) returned unexpected error: %v", u, err)
		}
	}
}

// TestValidateURL_InvalidURL は無効なURLの検証が失敗することをテストする。
func TestValidateURL_InvalidURL(t *testing.T) {
	guard := NewSSRFGuard(true)

	invalidURLs := []string{
		"",
		"not-a-url",
		"ftp://example.com/token",
		"file:///etc/passwd",
		"gopher://example.com",
	}

	for _, u := range invalidURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error for invalid URL", u)
			}
		})
	}
}

// TestSSRFGuardInterface はSSRFGuardがインターフェースを正しく実装していることをテストする。
func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard(false)
}
