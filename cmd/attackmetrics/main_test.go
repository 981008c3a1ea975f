package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/attackmetrics/config"
)

const componentPage = `{"paging":{"pageIndex":1,"pageSize":500,"total":4},"components":[
  {"key":"attack-generation:rcg","path":"rcg","measures":[{"metric":"complexity","value":"40"}]},
  {"key":"attack-generation:rcg/gen3/compound_12","path":"rcg/gen3/compound_12","measures":[{"metric":"complexity","value":"7"}]},
  {"key":"attack-generation:pcg/gen1/compound_2","path":"pcg/gen1/compound_2"},
  {"key":"attack-generation:rcg/gen1/compound_1","path":"rcg/gen1/compound_1","measures":[{"metric":"complexity","value":"3"},{"metric":"cognitive_complexity","value":"2"}]}
]}`

func newSonarServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/api/measures/component_tree" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	base := []string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--env-file", filepath.Join(dir, "absent.env"),
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, base...))
	err := root.Execute()
	return out.String(), err
}

func TestExportMissingTokenMakesNoRequest(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "")
	srv, hits := newSonarServer(t, http.StatusOK, componentPage)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := runCLI(t, "--server", srv.URL, "--out", outDir)
	require.Error(t, err)
	require.True(t, errors.Is(err, config.ErrMissingToken))
	require.Zero(t, atomic.LoadInt32(hits))

	var stderr bytes.Buffer
	require.Equal(t, 1, reportError(&stderr, err))
	require.Contains(t, stderr.String(), "API_KEY")
	_, statErr := os.Stat(outDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestExportWritesBothFiles(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "squ_0123456789abcd")
	srv, hits := newSonarServer(t, http.StatusOK, componentPage)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "Analysis-data")
	historyDB := filepath.Join(dir, "history.db")

	out, err := runCLI(t, "--server", srv.URL, "--out", outDir, "--history", historyDB)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(hits))

	require.Contains(t, out, "Using API key: **************abcd")
	require.NotContains(t, out, "squ_0123456789abcd")
	require.Contains(t, out, "Total components fetched: 4")
	require.Contains(t, out, "Exported rcg.csv and pcg.csv to "+outDir)

	rcg, err := os.ReadFile(filepath.Join(outDir, "rcg.csv"))
	require.NoError(t, err)
	require.Equal(t, "generation;compound_id;cyclomatic complexity;cognitive complexity\r\n1;1;3;2\r\n3;12;7;\r\n", string(rcg))

	pcg, err := os.ReadFile(filepath.Join(outDir, "pcg.csv"))
	require.NoError(t, err)
	require.Equal(t, "generation;compound_id;cyclomatic complexity;cognitive complexity\r\n1;2;;\r\n", string(pcg))

	history, err := runCLI(t, "history", "--db", historyDB)
	require.NoError(t, err)
	require.Contains(t, history, "attack-generation\t4\t")
	require.Contains(t, history, "\trcg.csv\t2\t")
	require.Contains(t, history, "\tpcg.csv\t1\t")
}

func TestExportShowTokenPrintsFullKey(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "squ_0123456789abcd")
	srv, _ := newSonarServer(t, http.StatusOK, `{"components":[]}`)

	out, err := runCLI(t, "export", "--server", srv.URL, "--out", t.TempDir(), "--show-token")
	require.NoError(t, err)
	require.Contains(t, out, "Using API key: squ_0123456789abcd\n")
}

func TestExportSubcommandEmptyTree(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "token")
	srv, _ := newSonarServer(t, http.StatusOK, `{"components":[]}`)
	outDir := t.TempDir()

	out, err := runCLI(t, "export", "--server", srv.URL, "--out", outDir)
	require.NoError(t, err)
	require.Contains(t, out, "Total components fetched: 0")
	for _, name := range []string{"rcg.csv", "pcg.csv"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err)
		require.Equal(t, "generation;compound_id;cyclomatic complexity;cognitive complexity\r\n", string(data))
	}
}

func TestExportServerErrorPrintsBody(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "token")
	srv, _ := newSonarServer(t, http.StatusForbidden, `{"errors":[{"msg":"Insufficient privileges"}]}`)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := runCLI(t, "--server", srv.URL, "--out", outDir)
	require.Error(t, err)

	var stderr bytes.Buffer
	require.Equal(t, 1, reportError(&stderr, err))
	require.Equal(t, "Response text: {\"errors\":[{\"msg\":\"Insufficient privileges\"}]}\n", stderr.String())
	_, statErr := os.Stat(outDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestExportReadsTokenFromEnvFile(t *testing.T) {
	const name = "ATTACKMETRICS_CLI_TOKEN"
	os.Unsetenv(name)
	t.Cleanup(func() { os.Unsetenv(name) })

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(name+"=from-dotenv\n"), 0o644))
	cfgFile := filepath.Join(dir, "attackmetrics.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("token_env: "+name+"\n"), 0o644))

	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"components":[]}`))
	}))
	defer srv.Close()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgFile, "--env-file", envFile, "--server", srv.URL, "--out", filepath.Join(dir, "out")})
	require.NoError(t, root.Execute())
	require.Equal(t, "Bearer from-dotenv", auth.Load())
}

func TestCoverageCommand(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "jacocoTestReport.xml")
	xml := `<report name="core"><package name="generated/pcg"><class name="generated/pcg/A"><counter type="LINE" missed="1" covered="1"/></class></package></report>`
	require.NoError(t, os.WriteFile(reportPath, []byte(xml), 0o644))
	outPath := filepath.Join(dir, "reports", "coverage_report.csv")

	out, err := runCLI(t, "coverage", "--report", reportPath, "--out", outPath)
	require.NoError(t, err)
	require.Contains(t, out, "Coverage report written to: "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "Class;LineCoverage;BranchCoverage\ngenerated/pcg/A;50.00;0.00\n", string(data))
}

func TestHistoryRequiresDatabase(t *testing.T) {
	_, err := runCLI(t, "history")
	require.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	require.Equal(t, "***", maskToken("abc"))
	require.Equal(t, "****5678", maskToken("12345678"))
	require.Equal(t, "", maskToken(""))
}

func TestReportErrorGeneric(t *testing.T) {
	var buf bytes.Buffer
	require.Equal(t, 0, reportError(&buf, nil))
	require.Equal(t, 1, reportError(&buf, errors.New("boom")))
	require.True(t, strings.HasSuffix(buf.String(), "boom\n"))
}
