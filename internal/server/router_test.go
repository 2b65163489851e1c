package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/launchcheck/internal/auth"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/runner"
)

type fakeService struct {
	ctrl       *control.RunControl
	status     runner.Status
	results    []result.TestResult
	triggerErr error
	triggered  int
}

func (f *fakeService) Control() *control.RunControl { return f.ctrl }
func (f *fakeService) Status() runner.Status {
	st := f.status
	st.Paused = f.ctrl.Paused()
	st.Cancelled = f.ctrl.Cancelled()
	return st
}
func (f *fakeService) Results() []result.TestResult { return f.results }
func (f *fakeService) Trigger(context.Context) error {
	f.triggered++
	return f.triggerErr
}

func setupRouter(t *testing.T, base string) (http.Handler, *fakeService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &fakeService{ctrl: control.New()}
	return NewRouter(context.Background(), svc, base).Handler(), svc
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPauseResumeToggle(t *testing.T) {
	h, svc := setupRouter(t, "/api")

	rec := doReq(t, h, http.MethodPost, "/api/pause")
	if rec.Code != http.StatusOK || !svc.ctrl.Paused() {
		t.Fatalf("pause: code=%d paused=%v", rec.Code, svc.ctrl.Paused())
	}
	rec = doReq(t, h, http.MethodPost, "/api/resume")
	if rec.Code != http.StatusOK || svc.ctrl.Paused() {
		t.Fatalf("resume: code=%d paused=%v", rec.Code, svc.ctrl.Paused())
	}
	rec = doReq(t, h, http.MethodPost, "/api/toggle")
	var pr pauseResp
	if err := json.Unmarshal(rec.Body.Bytes(), &pr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !pr.Paused || !svc.ctrl.Paused() {
		t.Fatalf("toggle should pause, got %+v", pr)
	}
}

func TestCancel(t *testing.T) {
	h, svc := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/cancel")
	if rec.Code != http.StatusOK || !svc.ctrl.Cancelled() {
		t.Fatalf("cancel: code=%d cancelled=%v", rec.Code, svc.ctrl.Cancelled())
	}
}

func TestRun(t *testing.T) {
	h, svc := setupRouter(t, "/api")
	if rec := doReq(t, h, http.MethodPost, "/api/run"); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	svc.triggerErr = runner.ErrBusy
	if rec := doReq(t, h, http.MethodPost, "/api/run"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	svc.triggerErr = errors.New("load inventory: missing")
	rec := doReq(t, h, http.MethodPost, "/api/run")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "missing") {
		t.Fatalf("expected 500 with error, got %d %s", rec.Code, rec.Body.String())
	}
	if svc.triggered != 3 {
		t.Fatalf("expected 3 triggers, got %d", svc.triggered)
	}
}

func TestStatus(t *testing.T) {
	h, svc := setupRouter(t, "/api")
	svc.status = runner.Status{RunID: "r1", Running: true, Index: 2, Total: 5, Current: "Paint"}
	svc.ctrl.Pause()

	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st runner.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.RunID != "r1" || st.Index != 2 || st.Total != 5 || st.Current != "Paint" || !st.Paused {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestResultsFormats(t *testing.T) {
	h, svc := setupRouter(t, "")
	res := result.NewTestResult(result.NewTestCase(`C:\Menu\Notepad.lnk`, `C:\Windows\notepad.exe`))
	res.Status = result.StatusSuccess
	res.Remarks = "Application tested successfully."
	svc.results = []result.TestResult{res}

	rec := doReq(t, h, http.MethodGet, "/results")
	if rec.Code != http.StatusOK {
		t.Fatalf("json: %d", rec.Code)
	}
	var rows []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["Name"] != "Notepad" || rows[0]["Status"] != "Success" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	rec = doReq(t, h, http.MethodGet, "/results?format=csv")
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content-type: %s", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "Name,Shortcut Path,") {
		t.Fatalf("csv header missing: %q", rec.Body.String())
	}

	rec = doReq(t, h, http.MethodGet, "/results?format=yaml")
	if !strings.Contains(rec.Body.String(), "Name: Notepad") {
		t.Fatalf("yaml body: %q", rec.Body.String())
	}

	if rec := doReq(t, h, http.MethodGet, "/results?format=xlsx"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	if rec := doReq(t, h, http.MethodPost, "/pause"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodGet, "/api/pause"); rec.Code == http.StatusOK {
		t.Fatalf("GET on a POST route should not succeed")
	}
}

func TestAuthScopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := auth.New("s3cret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	svc := &fakeService{ctrl: control.New()}
	h := NewRouter(context.Background(), svc, "/api").WithAuth(a).Handler()

	read, _ := a.Issue("viewer", []string{auth.ScopeRead})
	ctl, _ := a.Issue("operator", []string{auth.ScopeControl})

	send := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodGet, "/api/status", ""); code != http.StatusUnauthorized {
		t.Fatalf("status without token: %d", code)
	}
	if code := send(http.MethodGet, "/api/status", read.Value); code != http.StatusOK {
		t.Fatalf("status with read token: %d", code)
	}
	if code := send(http.MethodPost, "/api/cancel", read.Value); code != http.StatusForbidden {
		t.Fatalf("cancel with read token: %d", code)
	}
	if svc.ctrl.Cancelled() {
		t.Fatal("cancel must not reach the service without control scope")
	}
	if code := send(http.MethodPost, "/api/cancel", ctl.Value); code != http.StatusOK || !svc.ctrl.Cancelled() {
		t.Fatalf("cancel with control token: %d", code)
	}
	if code := send(http.MethodGet, "/api/results", ctl.Value); code != http.StatusOK {
		t.Fatalf("control implies read: %d", code)
	}
}
