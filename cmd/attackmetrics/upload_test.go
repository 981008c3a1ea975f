package main

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/attackmetrics/config"
)

// fakeS3 answers the bucket and object calls made by the upload sink using
// path-style addressing.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case key != "" && r.Method == http.MethodPut:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, err := readObjectBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[bucket+"/"+key] = body
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	return data, ok
}

// readObjectBody returns the payload of a PUT, decoding aws-chunked framing
// when the client streams a signed body.
func readObjectBody(r *http.Request) ([]byte, error) {
	chunked := strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING") ||
		strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked")
	if !chunked {
		return io.ReadAll(r.Body)
	}
	br := bufio.NewReader(r.Body)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func TestExportUploadsCopyToBucket(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "token")
	t.Setenv("S3_ACCESS_KEY", "minioadmin")
	t.Setenv("S3_SECRET_KEY", "minioadmin-secret")
	sonarSrv, _ := newSonarServer(t, http.StatusOK, componentPage)
	store, s3Srv := newFakeS3(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "attackmetrics.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("upload:\n  bucket: metrics\n  prefix: thesis/run1\n"), 0o644))
	outDir := filepath.Join(dir, "Analysis-data")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"--config", cfgFile,
		"--env-file", filepath.Join(dir, "absent.env"),
		"--server", sonarSrv.URL,
		"--out", outDir,
		"--upload", strings.TrimPrefix(s3Srv.URL, "http://"),
	})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "s3://metrics/thesis/run1")

	for _, name := range []string{"rcg.csv", "pcg.csv"} {
		local, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err)
		remote, ok := store.object("metrics/thesis/run1/" + name)
		require.True(t, ok, "missing object for %s", name)
		require.Equal(t, string(local), string(remote))
	}
	rcg, _ := store.object("metrics/thesis/run1/rcg.csv")
	require.Equal(t, "generation;compound_id;cyclomatic complexity;cognitive complexity\r\n1;1;3;2\r\n3;12;7;\r\n", string(rcg))
}

func TestExportUploadFailureKeepsLocalFiles(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "token")
	t.Setenv("S3_ACCESS_KEY", "minioadmin")
	t.Setenv("S3_SECRET_KEY", "minioadmin-secret")
	sonarSrv, _ := newSonarServer(t, http.StatusOK, componentPage)
	s3Srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(s3Srv.Close)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := runCLI(t, "--server", sonarSrv.URL, "--out", outDir, "--upload", strings.TrimPrefix(s3Srv.URL, "http://"))
	require.Error(t, err)
	for _, name := range []string{"rcg.csv", "pcg.csv"} {
		_, statErr := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, statErr, name)
	}
}
