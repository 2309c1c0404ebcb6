package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/quayside/cutover/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommandRunner scripts validate/reload outcomes per command line.
type fakeCommandRunner struct {
	calls []string
	fail  map[string]error
}

func (f *fakeCommandRunner) Run(ctx context.Context, commandLine string) error {
	f.calls = append(f.calls, commandLine)
	if f.fail != nil {
		if err, ok := f.fail[commandLine]; ok {
			return err
		}
	}
	return nil
}

func newTestSwitcher(t *testing.T, runner *fakeCommandRunner) *NginxSwitcher {
	t.Helper()
	s := NewNginxSwitcher(Options{
		ConfPath:   filepath.Join(t.TempDir(), "cutover.conf"),
		ListenPort: 8080,
		ColorPort: func(color types.Color) int {
			if color == types.ColorGreen {
				return 8082
			}
			return 8081
		},
		VerifyURL: "http://127.0.0.1:8080/health",
	})
	s.runner = runner
	return s
}

func TestSwitchToRendersAndReloads(t *testing.T) {
	runner := &fakeCommandRunner{}
	s := newTestSwitcher(t, runner)

	require.NoError(t, s.SwitchTo(context.Background(), types.ColorGreen))

	assert.Equal(t, []string{"nginx -t", "nginx -s reload"}, runner.calls)

	conf, err := os.ReadFile(s.opts.ConfPath)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "server 127.0.0.1:8082;")
	assert.Contains(t, string(conf), "listen 8080;")
	assert.Contains(t, string(conf), "add_header X-Cutover-Color green always;")
	assert.Contains(t, string(conf), "color: green")
}

func TestSwitchToRestoresOnValidateFailure(t *testing.T) {
	runner := &fakeCommandRunner{}
	s := newTestSwitcher(t, runner)
	require.NoError(t, s.SwitchTo(context.Background(), types.ColorBlue))

	runner.fail = map[string]error{"nginx -t": errors.New("unexpected token")}
	err := s.SwitchTo(context.Background(), types.ColorGreen)
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailSwitch))

	// The blue config survives the failed attempt.
	conf, readErr := os.ReadFile(s.opts.ConfPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(conf), "color: blue")
}

func TestSwitchToRestoresOnReloadFailure(t *testing.T) {
	runner := &fakeCommandRunner{}
	s := newTestSwitcher(t, runner)
	require.NoError(t, s.SwitchTo(context.Background(), types.ColorBlue))

	runner.fail = map[string]error{"nginx -s reload": errors.New("signal process started")}
	err := s.SwitchTo(context.Background(), types.ColorGreen)
	require.Error(t, err)

	conf, readErr := os.ReadFile(s.opts.ConfPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(conf), "color: blue")
}

func TestSwitchToRemovesConfWhenNoPrevious(t *testing.T) {
	runner := &fakeCommandRunner{fail: map[string]error{"nginx -t": errors.New("bad")}}
	s := newTestSwitcher(t, runner)

	err := s.SwitchTo(context.Background(), types.ColorGreen)
	require.Error(t, err)

	_, statErr := os.Stat(s.opts.ConfPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSwitchToCustomTemplate(t *testing.T) {
	runner := &fakeCommandRunner{}
	s := newTestSwitcher(t, runner)

	tmplPath := filepath.Join(t.TempDir(), "routing.tmpl")
	require.NoError(t, os.WriteFile(tmplPath,
		[]byte("# color: {{.Color}}\nbackend {{.BackendHost}}:{{.Port}}\n"), 0644))
	s.opts.TemplatePath = tmplPath

	require.NoError(t, s.SwitchTo(context.Background(), types.ColorGreen))

	conf, err := os.ReadFile(s.opts.ConfPath)
	require.NoError(t, err)
	assert.Equal(t, "# color: green\nbackend 127.0.0.1:8082\n", string(conf))
}

func TestActiveReadback(t *testing.T) {
	runner := &fakeCommandRunner{}
	s := newTestSwitcher(t, runner)

	_, ok := s.Active(context.Background())
	assert.False(t, ok, "no config yet")

	require.NoError(t, s.SwitchTo(context.Background(), types.ColorGreen))
	color, ok := s.Active(context.Background())
	require.True(t, ok)
	assert.Equal(t, types.ColorGreen, color)

	require.NoError(t, s.SwitchTo(context.Background(), types.ColorBlue))
	color, ok = s.Active(context.Background())
	require.True(t, ok)
	assert.Equal(t, types.ColorBlue, color)
}

func TestVerifyMatchingColor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ColorHeader, "green")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSwitcher(t, &fakeCommandRunner{})
	s.opts.VerifyURL = server.URL

	ok, err := s.Verify(context.Background(), types.ColorGreen)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyWrongColor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ColorHeader, "blue")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSwitcher(t, &fakeCommandRunner{})
	s.opts.VerifyURL = server.URL

	ok, err := s.Verify(context.Background(), types.ColorGreen)
	require.NoError(t, err)
	assert.False(t, ok, "stale color through the public route must fail verification")
}

func TestVerifyNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := newTestSwitcher(t, &fakeCommandRunner{})
	s.opts.VerifyURL = server.URL

	ok, err := s.Verify(context.Background(), types.ColorGreen)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMissingHeaderPassesOnStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSwitcher(t, &fakeCommandRunner{})
	s.opts.VerifyURL = server.URL

	ok, err := s.Verify(context.Background(), types.ColorGreen)
	require.NoError(t, err)
	assert.True(t, ok, "custom templates without the header verify by status alone")
}

func TestVerifyUnreachableProxy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	s := newTestSwitcher(t, &fakeCommandRunner{})
	s.opts.VerifyURL = url

	ok, err := s.Verify(context.Background(), types.ColorGreen)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWriteAtomicReplacesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf")
	require.NoError(t, writeAtomic(path, []byte("one")))
	require.NoError(t, writeAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
