package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
	hhttp "github.com/abdul-hamid-achik/hitcall/packages/http"
	"github.com/abdul-hamid-achik/hitcall/packages/output"
	"github.com/abdul-hamid-achik/hitcall/packages/store"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return out.String(), errOut.String(), err
}

// setup isolates HOME and returns a directory for descriptor files.
func setup(t *testing.T) (home, dir string) {
	t.Helper()
	homedir.DisableCache = true
	home = t.TempDir()
	t.Setenv("HOME", home)
	return home, t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func descriptorJSON(baseURL string) string {
	return `{
  "base_url": "` + baseURL + `",
  "headers": {"Accept": "application/json"},
  "access_token_file": "token.txt",
  "variable_dir": "vars",
  "requests": [
    {"tag": "me", "title": "Current user", "method": "GET", "endpoint": "/me", "token_type": "Bearer"},
    {"tag": "login", "method": "POST", "endpoint": "/auth",
     "body": {"body_type": "JSON", "body_file": "login.json"},
     "token_path": "token.access", "token_save": true},
    {"tag": "refresh", "method": "POST", "endpoint": "/refresh",
     "body": {"body_type": "FORM_DATA", "body_file": "refresh.json"}}
  ]
}`
}

type recorder struct {
	calls    int
	lastAuth string
	lastBody string
}

func newServer(t *testing.T, rec *recorder) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls++
		rec.lastAuth = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		rec.lastBody = buf.String()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth":
			_, _ = w.Write([]byte(`{"token":{"access":"fresh-token"}}`))
		default:
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRun_GetByTag(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))
	writeFile(t, filepath.Join(dir, "token.txt"), "abc123\n")

	out, _, err := execute(t, "run", "--file", path, "--tag", "me", "--no-color")

	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "Bearer abc123", rec.lastAuth)
	assert.Contains(t, out, "200 OK me")
	assert.Contains(t, out, `"status": "ok"`)
	assert.NotContains(t, out, "Saved:")
}

func TestRun_ByIndex(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))

	out, errOut, err := execute(t, "run", "-f", path, "-i", "0", "--no-color")

	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Empty(t, rec.lastAuth)
	assert.Contains(t, out, "200 OK me")
	assert.Contains(t, errOut, "token file not found")
}

func TestRun_NotFound(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))

	out, _, err := execute(t, "run", "-f", path, "-t", "nope")
	require.NoError(t, err)
	assert.Equal(t, output.NotFoundMessage+"\n", out)

	out, _, err = execute(t, "run", "-f", path, "-i", "7")
	require.NoError(t, err)
	assert.Equal(t, output.NotFoundMessage+"\n", out)
	assert.Equal(t, 0, rec.calls)
}

func TestRun_SavesTokenAndSubstitutes(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))
	writeFile(t, filepath.Join(dir, "login.json"), `{"user":"me","otp":"{{OTP}}"}`)
	writeFile(t, filepath.Join(dir, "vars", "OTP.txt"), "424242\n")

	out, _, err := execute(t, "run", "-f", path, "-t", "login", "--no-color")
	require.NoError(t, err)

	assert.JSONEq(t, `{"user":"me","otp":"424242"}`, rec.lastBody)
	tokenPath := filepath.Join(dir, "token.txt")
	data, err := os.ReadFile(tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", string(data))
	assert.Contains(t, out, "Saved: "+tokenPath)

	_, _, err = execute(t, "run", "-f", path, "-t", "me")
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-token", rec.lastAuth)
}

func TestRun_FormBody(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))
	writeFile(t, filepath.Join(dir, "refresh.json"), `{"grant_type":"refresh","n":1}`)

	_, _, err := execute(t, "run", "-f", path, "-t", "refresh")
	require.NoError(t, err)
	assert.Equal(t, "grant_type=refresh&n=1", rec.lastBody)
}

func TestRun_JSONOutput(t *testing.T) {
	_, dir := setup(t)
	server := newServer(t, &recorder{})

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))

	out, _, err := execute(t, "run", "-f", path, "-t", "me", "-o", "json")
	require.NoError(t, err)

	var result output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "me", result.Tag)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, "succeeded", result.State)
	assert.JSONEq(t, `{"status":"ok"}`, string(result.Body))
}

func TestRun_DryRun(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))
	writeFile(t, filepath.Join(dir, "token.txt"), "abcdefghijkl")
	writeFile(t, filepath.Join(dir, "login.json"), `{"user":"me"}`)

	out, _, err := execute(t, "run", "-f", path, "-t", "login", "--dry-run", "--no-color")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.calls)
	assert.Contains(t, out, "POST "+server.URL+"/auth")
	assert.Contains(t, out, "Authorization: ********ijkl")
	assert.Contains(t, out, `"user": "me"`)
}

func TestRun_StrictAuth(t *testing.T) {
	_, dir := setup(t)
	rec := &recorder{}
	server := newServer(t, rec)

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))

	out, _, err := execute(t, "run", "-f", path, "-t", "me", "--strict-auth", "--no-color")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCodeFor(err))
	assert.Contains(t, out, "credential unavailable")
	assert.Equal(t, 0, rec.calls)
}

func TestRun_NetworkError(t *testing.T) {
	_, dir := setup(t)
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(baseURL))

	out, _, err := execute(t, "run", "-f", path, "-t", "me", "--no-color")
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, exitCodeFor(err))
	assert.Contains(t, out, "Error:")
}

func TestRun_DescriptorErrors(t *testing.T) {
	_, dir := setup(t)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"base_url": "http://x", "requests": [{"tag": "a", "method": "GET"}, {"tag": "a", "method": "GET"}]}`)

	_, _, err := execute(t, "run", "-f", bad, "-t", "a", "--no-color")
	require.Error(t, err)
	assert.Equal(t, ExitParseError, exitCodeFor(err))

	_, _, err = execute(t, "run", "-f", filepath.Join(dir, "missing.json"), "-t", "a")
	require.Error(t, err)
	assert.Equal(t, ExitParseError, exitCodeFor(err))
}

func TestRun_Usage(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))

	_, _, err := execute(t, "run", "-f", path, "-t", "me", "-i", "0")
	assert.Error(t, err)

	_, _, err = execute(t, "run", "-f", path)
	assert.Error(t, err)

	_, _, err = execute(t, "run", "-f", path, "-t", "me", "--timeout", "soon")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))

	_, _, err = execute(t, "run", "-f", path, "-t", "me", "-o", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))

	_, _, err = execute(t, "run", "--bogus")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))
}

func TestRun_ConfigFile(t *testing.T) {
	home, dir := setup(t)
	server := newServer(t, &recorder{})
	writeFile(t, filepath.Join(home, ".hitcall.yaml"), "output: json\n")

	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON(server.URL))

	out, _, err := execute(t, "run", "-f", path, "-t", "me")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, _, err = execute(t, "run", "-f", path, "-t", "me", "-o", "console", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK me")
}

func TestList(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))

	out, _, err := execute(t, "list", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")
	assert.Regexp(t, `0\s+me\s+GET\s+/me\s+Current user`, out)
	assert.Regexp(t, `1\s+login\s+POST\s+/auth`, out)
}

func TestValidate(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))
	writeFile(t, filepath.Join(dir, "login.json"), `{"otp":"{{OTP}}"}`)
	writeFile(t, filepath.Join(dir, "refresh.json"), `{"a":"b"}`)

	_, errOut, err := execute(t, "validate", "-f", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCodeFor(err))
	assert.Contains(t, errOut, "login: {{OTP}}: missing variable file "+filepath.Join(dir, "vars", "OTP.txt"))

	writeFile(t, filepath.Join(dir, "vars", "OTP.txt"), "1")
	out, _, err := execute(t, "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid: "+path+" (3 requests)")
}

func TestValidate_NonObjectBody(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))
	writeFile(t, filepath.Join(dir, "login.json"), `[{"otp":"{{OTP}}"}]`)
	writeFile(t, filepath.Join(dir, "refresh.json"), `{"a":"b"}`)

	out, errOut, err := execute(t, "validate", "-f", path)
	require.NoError(t, err)
	assert.NotContains(t, errOut, "OTP")
	assert.Contains(t, out, "Valid: "+path)
}

func TestValidate_EscapingPlaceholder(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))
	writeFile(t, filepath.Join(dir, "login.json"), `{"otp":"{{../token}}"}`)
	writeFile(t, filepath.Join(dir, "refresh.json"), `{"a":"b"}`)
	writeFile(t, filepath.Join(dir, "token.txt"), "abc")

	_, errOut, err := execute(t, "validate", "-f", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCodeFor(err))
	assert.Contains(t, errOut, "login: {{../token}}: path escapes target directory")
}

func TestValidate_SchemaErrors(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, `{"requests": [{"tag": "a", "method": "PATCH"}]}`)

	_, errOut, err := execute(t, "validate", "-f", path)
	require.Error(t, err)
	assert.Equal(t, ExitParseError, exitCodeFor(err))
	assert.Contains(t, errOut, "base_url")
	assert.Contains(t, errOut, "method")
}

func TestVars(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))
	writeFile(t, filepath.Join(dir, "vars", "REFRESH.txt"), "secret\n")
	writeFile(t, filepath.Join(dir, "vars", "A.txt"), "1")

	out, _, err := execute(t, "vars", "-f", path)
	require.NoError(t, err)
	assert.Regexp(t, `A\.txt\s+1 bytes`, out)
	assert.Regexp(t, `REFRESH\.txt\s+6 bytes`, out)
	assert.NotContains(t, out, "secret")

	out, _, err = execute(t, "vars", "-f", path, "--show")
	require.NoError(t, err)
	assert.Regexp(t, `REFRESH\.txt\s+secret`, out)
}

func TestVersion(t *testing.T) {
	setup(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hitcall version dev")
}

func TestVerboseLogsConfigLookup(t *testing.T) {
	home, _ := setup(t)

	_, errOut, err := execute(t, "version", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, `msg="no config file"`)
	assert.Contains(t, errOut, "default="+filepath.Join(home, ".hitcall.yaml"))

	writeFile(t, filepath.Join(home, ".hitcall.yaml"), "timeout: 5s\n")
	_, errOut, err = execute(t, "version", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, `msg="config loaded"`)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    slog.Level
		wantErr bool
	}{
		{name: "", want: slog.LevelWarn},
		{name: "warn", want: slog.LevelWarn},
		{name: "info", want: slog.LevelInfo},
		{name: "DEBUG", want: slog.LevelDebug},
		{name: "error", verbose: true, want: slog.LevelDebug},
		{name: "loud", wantErr: true},
	}

	for _, tt := range tests {
		level, err := logLevel(tt.name, tt.verbose)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, level, tt.name)
	}
}

func TestWatchedFiles(t *testing.T) {
	_, dir := setup(t)
	path := filepath.Join(dir, "api.json")
	writeFile(t, path, descriptorJSON("http://x"))

	resetFlags(rootCmd)
	require.NoError(t, runCmd.Flags().Set("tag", "login"))
	s := store.New("")

	assert.Equal(t, []string{path, filepath.Join(dir, "login.json")}, watchedFiles(runCmd, path, s))

	require.NoError(t, runCmd.Flags().Set("tag", "me"))
	assert.Equal(t, []string{path}, watchedFiles(runCmd, path, s))
}

type countingFormatter struct {
	mu      sync.Mutex
	results int
	errs    []error
}

func (f *countingFormatter) FormatResult(*runner.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results++
}

func (f *countingFormatter) FormatRequest(*hhttp.Request) {}

func (f *countingFormatter) FormatError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *countingFormatter) FormatNotFound() {}

func (f *countingFormatter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_RerunsAndRetracks(t *testing.T) {
	_, dir := setup(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(dir, "api.json")
	bodyPath := filepath.Join(dir, "bodies", "w.json")
	writeFile(t, path, `{"base_url": "`+server.URL+`", "requests": [{"tag": "w", "method": "GET", "endpoint": "/w"}]}`)
	writeFile(t, bodyPath, `{"n":0}`)

	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })
	fileFlag = path
	tagFlag = "w"

	c := &cobra.Command{}
	stderr := &syncBuffer{}
	c.SetErr(stderr)
	f := &countingFormatter{}
	s := store.New("")
	r := runner.NewRunner(nil, runner.WithStore(s))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watch(ctx, c, r, s, f) }()

	watching := func(n int) func() bool {
		return func() bool { return strings.Count(stderr.String(), "Watching for changes") >= n }
	}
	require.Eventually(t, watching(1), 5*time.Second, 10*time.Millisecond)

	// Files next to the descriptor that are not tracked do not trigger a run.
	writeFile(t, filepath.Join(dir, "notes.json"), `{}`)
	time.Sleep(2 * WatchDebounceDelay)
	assert.Equal(t, 0, f.count())

	// The entry now has a body file, which must be tracked after the rerun.
	writeFile(t, path, `{"base_url": "`+server.URL+`", "requests": [{"tag": "w", "method": "POST", "endpoint": "/w", "body": {"body_type": "JSON", "body_file": "bodies/w.json"}}]}`)
	require.Eventually(t, func() bool { return f.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, watching(2), 5*time.Second, 10*time.Millisecond)
	time.Sleep(2 * WatchDebounceDelay)
	assert.Equal(t, 1, f.count(), "one write runs once")

	writeFile(t, bodyPath, `{"n":1}`)
	require.Eventually(t, func() bool { return f.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Empty(t, f.errs)
	assert.Contains(t, stderr.String(), "File changed: "+bodyPath)
}
