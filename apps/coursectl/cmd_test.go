package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clonecademy/clonecademy/core"
)

// syncBuffer is written to by OnChange while the test reads it.
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

type fakeAPI struct {
	mu           sync.Mutex
	requestedMod bool
}

func (api *fakeAPI) handler() http.Handler {
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing or malformed jwt"}`))
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "Zebra#Lamp42" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"authentication failed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"s3cret"}`))
	})
	mux.HandleFunc("/api/courses/", authed(func(w http.ResponseWriter, r *http.Request) {
		switch strings.Trim(r.URL.Path, "/") {
		case "api/courses/1":
			_, _ = w.Write([]byte(`{"id":1,"name":"Genetics","modules":[` +
				`{"name":"DNA","question":[{"id":1,"title":"Helix"},{"id":2,"title":"Bases"}]},` +
				`{"name":"RNA","question":[{"id":3,"title":"Codons"}]}],"solved":[1]}`))
		case "api/courses/2":
			_, _ = w.Write([]byte(`{"id":2,"name":"Enzymes","modules":[{"name":"Intro","question":[{"id":4,"title":"Kinetics"}]}],"solved":[4]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"course not found"}`))
		}
	}))
	mux.HandleFunc("/api/user/can_request_mod", authed(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]bool{"requested_mod": api.requestedMod, "allowed": !api.requestedMod})
	}))
	mux.HandleFunc("/api/user/request_mod", authed(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		api.requestedMod = true
		_, _ = w.Write([]byte(`{"Request":"ok"}`))
	}))
	return mux
}

type testCLI struct {
	url       string
	tokenFile string
}

func newTestCLI(t *testing.T) testCLI {
	t.Helper()
	ts := httptest.NewServer(new(fakeAPI).handler())
	t.Cleanup(ts.Close)
	return testCLI{url: ts.URL + "/api/", tokenFile: filepath.Join(t.TempDir(), "token")}
}

func (c testCLI) run(t *testing.T, in io.Reader, out io.Writer, args ...string) error {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Client.Timeout = 5 * time.Second
	a := &app{conf: conf, logger: core.NopLogger(), in: in, out: out}

	root := newRootCmd(a)
	root.SetArgs(append([]string{"--api", c.url, "--token-file", c.tokenFile}, args...))
	return root.ExecuteContext(context.Background())
}

func (c testCLI) login(t *testing.T) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte("Zebra#Lamp42"), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
	require.NoError(t, c.run(t, strings.NewReader(""), io.Discard, "login", "learner"))
}

func Test_login(t *testing.T) {
	cli := newTestCLI(t)
	defer func(orig func(int) ([]byte, error)) { readPasswordFunc = orig }(readPasswordFunc)

	readPasswordFunc = func(int) ([]byte, error) { return []byte("wrong"), nil }
	out := new(bytes.Buffer)
	err := cli.run(t, strings.NewReader(""), out, "login", "learner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
	_, err = os.Stat(cli.tokenFile)
	assert.True(t, os.IsNotExist(err))

	readPasswordFunc = func(int) ([]byte, error) { return []byte("Zebra#Lamp42"), nil }
	out.Reset()
	require.NoError(t, cli.run(t, strings.NewReader(""), out, "login", "learner"))
	assert.Equal(t, "Password: \nLogged in as learner.\n", out.String())

	b, err := os.ReadFile(cli.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", string(b))
}

func Test_course(t *testing.T) {
	cli := newTestCLI(t)

	err := cli.run(t, strings.NewReader(""), io.Discard, "course", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	cli.login(t)

	out := new(bytes.Buffer)
	require.NoError(t, cli.run(t, strings.NewReader(""), out, "course", "1"))
	want := "Genetics (incomplete)\n" +
		"  1. DNA\n" +
		"     [x] 1.1 Helix\n" +
		"     [ ] 1.2 Bases\n" +
		"  2. RNA\n" +
		"     [ ] 2.1 Codons\n"
	assert.Equal(t, want, out.String())

	out.Reset()
	require.NoError(t, cli.run(t, strings.NewReader(""), out, "course", "2"))
	assert.True(t, strings.HasPrefix(out.String(), "Enzymes (completed)\n"))

	err = cli.run(t, strings.NewReader(""), io.Discard, "course", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course not found")
}

func Test_watch(t *testing.T) {
	cli := newTestCLI(t)
	cli.login(t)

	pr, pw := io.Pipe()
	out := new(syncBuffer)
	done := make(chan error, 1)
	go func() { done <- cli.run(t, pr, out, "watch", "1") }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Genetics (incomplete)") }, 5*time.Second, 5*time.Millisecond)
	_, err := pw.Write([]byte("2\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Enzymes (completed)") }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, pw.Close())

	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop at end of input")
	}
	assert.Equal(t, 2, strings.Count(out.String(), "Loading..."))
}

func Test_requestMod(t *testing.T) {
	cli := newTestCLI(t)
	cli.login(t)

	err := cli.run(t, strings.NewReader(""), io.Discard, "request-mod")
	require.Error(t, err)

	out := new(bytes.Buffer)
	require.NoError(t, cli.run(t, strings.NewReader(""), out, "request-mod", "I", "teach", "biology"))
	assert.Equal(t, "Request sent, the admins will get back to you.\n", out.String())

	out.Reset()
	require.NoError(t, cli.run(t, strings.NewReader(""), out, "request-mod", "again"))
	assert.Equal(t, "You already requested moderator rights.\n", out.String())
}

func Test_watch_pipedInput(t *testing.T) {
	cli := newTestCLI(t)
	cli.login(t)

	tests := []struct {
		name    string
		args    []string
		input   string
		want    []string
		wantErr string
	}{
		{name: "single id", args: []string{"watch"}, input: "2\n", want: []string{"Enzymes (completed)"}},
		{name: "initial id", args: []string{"watch", "1"}, want: []string{"Genetics (incomplete)"}},
		{name: "blank lines skipped", args: []string{"watch"}, input: "\n  \n2\n", want: []string{"Enzymes (completed)"}},
		{name: "unknown course", args: []string{"watch"}, input: "3\n", wantErr: "course not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := new(syncBuffer)
			err := cli.run(t, strings.NewReader(tt.input), out, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}
