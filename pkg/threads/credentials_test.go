package threads

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/threadgrabba/pkg/crypto"
)

const sampleCookies = `# Netscape HTTP Cookie File
.threads.net	TRUE	/	TRUE	0	sessionid	sess-123
#HttpOnly_.instagram.com	TRUE	/	TRUE	0	csrftoken	csrf-456
.example.com	TRUE	/	FALSE	0	tracker	nope
malformed line without tabs
`

func writeCookies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	return path
}

func TestParseCookies(t *testing.T) {
	cookies, err := ParseCookies(strings.NewReader(sampleCookies))
	if err != nil {
		t.Fatalf("ParseCookies() error = %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("len(cookies) = %d, want 2", len(cookies))
	}
	if cookies[0].Name != "sessionid" || cookies[0].Value != "sess-123" {
		t.Errorf("cookies[0] = %+v", cookies[0])
	}
	if !cookies[1].HttpOnly || cookies[1].Name != "csrftoken" {
		t.Errorf("cookies[1] = %+v, want HttpOnly csrftoken", cookies[1])
	}
}

func TestSession_IsValid(t *testing.T) {
	var nilSession *Session
	if nilSession.IsValid() {
		t.Error("nil session should not be valid")
	}

	expired := &Session{Cookies: []*http.Cookie{{Name: "sessionid", Value: "x", Expires: time.Now().Add(-time.Hour)}}}
	if expired.IsValid() {
		t.Error("expired session should not be valid")
	}

	noSession := &Session{Cookies: []*http.Cookie{{Name: "csrftoken", Value: "x"}}}
	if noSession.IsValid() {
		t.Error("session without sessionid should not be valid")
	}

	ok := &Session{Cookies: []*http.Cookie{{Name: "sessionid", Value: "x", Expires: time.Now().Add(time.Hour)}}}
	if !ok.IsValid() {
		t.Error("session should be valid")
	}
}

func TestSession_Apply(t *testing.T) {
	cookies, _ := ParseCookies(strings.NewReader(sampleCookies))
	s := &Session{Cookies: cookies}

	req, _ := http.NewRequest(http.MethodGet, "https://www.threads.net/", nil)
	s.Apply(req)

	if c, err := req.Cookie("sessionid"); err != nil || c.Value != "sess-123" {
		t.Errorf("sessionid cookie = %v, %v", c, err)
	}
	if got := req.Header.Get("X-CSRFToken"); got != "csrf-456" {
		t.Errorf("X-CSRFToken = %q, want csrf-456", got)
	}
}

func TestLoadSession_Encrypted(t *testing.T) {
	sealed, err := crypto.Seal([]byte(sampleCookies), "hunter2")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	path := writeCookies(t, string(sealed))

	if _, err := LoadSession(path, ""); err == nil {
		t.Error("LoadSession() without passphrase should fail")
	}
	if _, err := LoadSession(path, "wrong"); err == nil {
		t.Error("LoadSession() with wrong passphrase should fail")
	}

	s, err := LoadSession(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if !s.IsValid() {
		t.Error("decrypted session should be valid")
	}
}

func TestSessionStore_Reload(t *testing.T) {
	path := writeCookies(t, ".threads.net\tTRUE\t/\tTRUE\t0\tsessionid\tfirst\n")
	store := newSessionStore(path, "")

	s, err := store.Get()
	if err != nil || s.cookie("sessionid").Value != "first" {
		t.Fatalf("Get() = %v, %v", s, err)
	}

	if err := os.WriteFile(path, []byte(".threads.net\tTRUE\t/\tTRUE\t0\tsessionid\tsecond\n"), 0600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	s, err = store.Get()
	if err != nil || s.cookie("sessionid").Value != "second" {
		t.Fatalf("Get() after change = %v, %v", s, err)
	}
}

func TestSessionStore_MissingFile(t *testing.T) {
	store := newSessionStore(filepath.Join(t.TempDir(), "absent.txt"), "")
	s, err := store.Get()
	if err != nil || s != nil {
		t.Errorf("Get() = %v, %v; want nil, nil", s, err)
	}
}
