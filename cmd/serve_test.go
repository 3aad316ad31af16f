package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/daemon"
	"github.com/joescharf/ait/internal/models"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	assert.Equal(t, filepath.Join(dir, "ait.pid"), pf.Path)
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	err := serveStatusRun()
	assert.NoError(t, err)
}

func TestServeStatusRun_Running(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	ui.Out = &out

	pf := pidFile()
	require.NoError(t, pf.Acquire(daemon.Record{Port: 3123, Store: "/tmp/issues.json"}))
	t.Cleanup(func() { _ = pf.Remove() })

	require.NoError(t, serveStatusRun())
	assert.Contains(t, out.String(), "http://localhost:3123")
	assert.Contains(t, out.String(), "/tmp/issues.json")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeRun_AlreadyRunning(t *testing.T) {
	if os.Getppid() <= 1 {
		t.Skip("no live parent process to own the PID file")
	}
	dir := testEnv(t)

	// A PID file owned by a live process that is not us.
	pf := daemon.NewPIDFile(filepath.Join(dir, "ait.pid"))
	require.NoError(t, pf.WriteRecord(daemon.Record{PID: os.Getppid()}))

	err := serveRun(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)
}

func TestNewServeHandler_Routes(t *testing.T) {
	testEnv(t)
	tr, err := getTracker(context.Background())
	require.NoError(t, err)
	_, err = tr.CreateIssue(context.Background(), "Wire routes", "", models.ClassificationFeature, "test")
	require.NoError(t, err)

	h, err := newServeHandler(tr, classify.Heuristic{}, "test")
	require.NoError(t, err)

	// Dashboard
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Wire routes")

	// Health
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"issueCount":1`)

	// REST
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/issues", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	// MCP
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agent-issue-tracker")
}
