package command

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/cmd/cli/authentication"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestLoadSettings_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("NOTIFY_PAGE_SIZE", "30")

	cfg, err := loadSettings(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 30, cfg.PageSize)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadSettings_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://sms.school.example/api
ws_url: wss://sms.school.example/ws
reconnect_delay: 750ms
poll_interval: 1m
rate_limit: 2.5
`), 0o600))

	cfg, err := loadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, "https://sms.school.example/api", cfg.APIURL)
	assert.Equal(t, "wss://sms.school.example/ws", cfg.WSURL)
	assert.Equal(t, 750*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.InDelta(t, 2.5, cfg.RateLimit, 0.001)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
}

func TestLoadSettings_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o600))

	_, err := loadSettings(path)

	assert.ErrorContains(t, err, "reading config")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

// fakeAPI records requests and serves canned notification responses
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	auth     []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
		json.NewEncoder(w).Encode(models.NotificationPage{
			Items: []models.Notification{{
				ID: 7, Type: models.TypeGrade, Title: "Grade posted", Message: "Physics: 17/20",
				Priority: models.PriorityHigh, CreatedAt: time.Now().Add(-5 * time.Minute),
			}},
			Total:       1,
			UnreadCount: 1,
		})
	case r.URL.Path == "/api/notifications/unread-count":
		json.NewEncoder(w).Encode(models.UnreadCountResponse{UnreadCount: 3})
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/token":
		json.NewEncoder(w).Encode(map[string]any{"access_token": testToken(t0), "user_id": "student-1", "expires_in": 3600})
	case r.Method == http.MethodPost || r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var t0 = time.Now().Add(time.Hour)

// testToken is a well formed JWT for student-1; the CLI never checks the signature
func testToken(exp time.Time) string {
	header := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"
	payload, _ := json.Marshal(map[string]any{"user_id": "student-1", "sub": "student-1", "exp": exp.Unix()})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
}

// run executes the CLI with args and returns what it printed on stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	color.Output = w
	defer func() {
		os.Stdout = stdout
		color.Output = stdout
	}()

	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	runErr := rootCmd.Execute()
	w.Close()
	out, _ := io.ReadAll(r)
	return string(out), runErr
}

func TestCommands_AgainstAPI(t *testing.T) {
	keyring.MockInit()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	base := srv.URL + "/api"

	_, err := run(t, "notifications", "unread", "--api", base)
	assert.ErrorIs(t, err, authentication.ErrNotLoggedIn)

	out, err := run(t, "auth", "login", "--dev-user", "student-1", "--api", base)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as student-1")

	out, err = run(t, "notifications", "unread", "--api", base)
	require.NoError(t, err)
	assert.Contains(t, out, "3 unread")

	out, err = run(t, "notifications", "list", "--api", base)
	require.NoError(t, err)
	assert.Contains(t, out, "[7] Grade posted")
	assert.Contains(t, out, "Physics: 17/20")
	assert.Contains(t, out, "Showing 1-1 of 1 · 1 unread")

	_, err = run(t, "notifications", "read", "7", "--api", base)
	require.NoError(t, err)
	_, err = run(t, "notifications", "read-all", "--api", base)
	require.NoError(t, err)
	_, err = run(t, "notifications", "delete", "7", "--api", base)
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/auth/token",
		"GET /api/notifications/unread-count",
		"GET /api/notifications",
		"POST /api/notifications/7/read",
		"POST /api/notifications/read-all",
		"DELETE /api/notifications/7",
	}, api.requests)
	assert.Equal(t, "Bearer "+testToken(t0), api.auth[len(api.auth)-1])
}

func TestCommands_ExpiredToken(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, authentication.StoreTokens(&authentication.StoredCredentials{
		AccessToken: "x", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}))

	_, err := run(t, "notifications", "unread")

	assert.ErrorContains(t, err, "expired")
}
