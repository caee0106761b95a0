package threads

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/threadgrabba/pkg/crypto"
)

// sessionDomains are the cookie domains the platform session lives on.
var sessionDomains = []string{"instagram.com", "threads.net", "threads.com"}

// Session holds cookies exported from a logged-in browser.
type Session struct {
	Cookies  []*http.Cookie
	LoadedAt time.Time
}

// IsValid checks that a session cookie is present and not expired.
func (s *Session) IsValid() bool {
	if s == nil {
		return false
	}
	c := s.cookie("sessionid")
	if c == nil || c.Value == "" {
		return false
	}
	return c.Expires.IsZero() || time.Now().Before(c.Expires)
}

// CSRFToken returns the csrftoken cookie value, or "".
func (s *Session) CSRFToken() string {
	if c := s.cookie("csrftoken"); c != nil {
		return c.Value
	}
	return ""
}

// Apply adds the session cookies to req.
func (s *Session) Apply(req *http.Request) {
	if s == nil {
		return
	}
	for _, c := range s.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if token := s.CSRFToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
}

func (s *Session) cookie(name string) *http.Cookie {
	if s == nil {
		return nil
	}
	for _, c := range s.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// LoadSession reads a Netscape cookies.txt file. Files sealed with pkg/crypto
// are decrypted with passphrase first.
func LoadSession(path, passphrase string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	if crypto.IsSealed(data) {
		if passphrase == "" {
			return nil, errors.New("cookie file is encrypted but no passphrase is configured")
		}
		data, err = crypto.Open(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypt cookie file: %w", err)
		}
	}

	cookies, err := ParseCookies(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Session{Cookies: cookies, LoadedAt: time.Now()}, nil
}

// ParseCookies parses Netscape cookie file lines, keeping only cookies for
// the platform's domains. Malformed lines are skipped.
func ParseCookies(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		domain := fields[0]
		if !isSessionDomain(domain) {
			continue
		}

		c := &http.Cookie{
			Domain:   domain,
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan cookie file: %w", err)
	}
	return cookies, nil
}

func isSessionDomain(domain string) bool {
	for _, d := range sessionDomains {
		if strings.Contains(domain, d) {
			return true
		}
	}
	return false
}

// sessionStore reloads the cookie file when it changes on disk.
type sessionStore struct {
	path       string
	passphrase string

	mu      sync.RWMutex
	session *Session
	modTime time.Time
}

func newSessionStore(path, passphrase string) *sessionStore {
	return &sessionStore{path: path, passphrase: passphrase}
}

// Get returns the current session, or nil when none is configured or loadable.
func (s *sessionStore) Get() (*Session, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat cookie file: %w", err)
	}

	s.mu.RLock()
	if s.session != nil && info.ModTime().Equal(s.modTime) {
		sess := s.session
		s.mu.RUnlock()
		return sess, nil
	}
	s.mu.RUnlock()

	sess, err := LoadSession(s.path, s.passphrase)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.modTime = info.ModTime()
	s.mu.Unlock()

	return sess, nil
}
