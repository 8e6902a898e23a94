package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/crm/internal/api"
	"github.com/vladislavdragonenkov/crm/internal/jobs"
)

func TestRootCmd_HasAllTasks(t *testing.T) {
	root := newRootCmd()
	for _, name := range append(jobs.Names(), "cron") {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRunOnce_HeartbeatWithUnreachableAPI(t *testing.T) {
	cfg := jobs.DefaultConfig()
	cfg.APIURL = "http://127.0.0.1:1/graphql"
	cfg.APITimeout = 200 * time.Millisecond
	cfg.APIRetries = 1
	cfg.LogDir = t.TempDir()

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), cfg, jobs.JobHeartbeat, &out))
	assert.Equal(t, "heartbeat: error\n", out.String())

	raw, err := os.ReadFile(filepath.Join(cfg.LogDir, jobs.HeartbeatLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "CRM is alive (hello: ERROR)")
}

func TestRunOnce_DialFailureIsLogged(t *testing.T) {
	dialAPI = func(jobs.Config) (*api.Client, func() error, error) {
		return nil, nil, errors.New("dial grpc bad target: invalid")
	}
	t.Cleanup(func() { dialAPI = jobs.Config.Dial })

	cfg := jobs.DefaultConfig()
	cfg.LogDir = t.TempDir()

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), cfg, jobs.JobHeartbeat, &out))
	assert.Equal(t, "heartbeat: error\n", out.String())

	raw, err := os.ReadFile(filepath.Join(cfg.LogDir, jobs.HeartbeatLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CRM is alive (hello: ERROR): dial grpc bad target: invalid")
}

func TestRunOnce_ReportAgainstStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		if strings.Contains(body.String(), `"customers"`) {
			_, _ = w.Write([]byte(`{"data":{"customers":[{"id":"c1"},{"id":"c2"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"orders":[{"id":"o1","totalAmount":"10.50"}]}}`))
	}))
	defer srv.Close()

	cfg := jobs.DefaultConfig()
	cfg.APIURL = srv.URL
	cfg.LogDir = t.TempDir()

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), cfg, jobs.JobReport, &out))
	assert.Equal(t, "report: success\n", out.String())

	raw, err := os.ReadFile(filepath.Join(cfg.LogDir, jobs.ReportLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Report: 2 customers, 1 orders, 10.50 total revenue")
}

func TestRunCron_StopsOnCancel(t *testing.T) {
	cfg := jobs.DefaultConfig()
	cfg.LogDir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runCron(ctx, cfg, "") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cron did not stop")
	}
}
