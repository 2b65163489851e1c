package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/launchcheck/internal/auth"
	"github.com/loykin/launchcheck/internal/control"
	"github.com/loykin/launchcheck/internal/metrics"
	"github.com/loykin/launchcheck/internal/report"
	"github.com/loykin/launchcheck/internal/result"
	"github.com/loykin/launchcheck/internal/runner"
)

// Service is the batch the API controls. *runner.Service implements it.
type Service interface {
	Control() *control.RunControl
	Status() runner.Status
	Results() []result.TestResult
	Trigger(ctx context.Context) error
}

// Router provides embeddable HTTP handlers for controlling a batch.
// Endpoints:
//
//	POST {basePath}/pause
//	POST {basePath}/resume
//	POST {basePath}/toggle
//	POST {basePath}/cancel
//	POST {basePath}/run        starts a batch, 409 while one is running
//	GET  {basePath}/status
//	GET  {basePath}/results    query: format=json|csv|yaml (default json)
//	POST {basePath}/auth/token client credentials for a bearer token
//
// basePath may be empty or start with '/'; no trailing slash. With an auth
// service attached, status and results need a read token and every POST a
// control token.
type Router struct {
	svc      Service
	basePath string
	auth     *auth.Service
	// ctx outlives requests; batches started by /run use it.
	ctx context.Context
}

// NewRouter constructs a Router. Example basePath: "/api" results in
// /api/pause, /api/status and so on.
func NewRouter(ctx context.Context, svc Service, basePath string) *Router {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Router{svc: svc, basePath: sanitizeBase(basePath), ctx: ctx}
}

// WithAuth requires bearer tokens issued by a. A nil a disables auth.
func (r *Router) WithAuth(a *auth.Service) *Router {
	r.auth = a
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/auth/token", auth.GinLogin(r.auth))

	read := group.Group("", auth.GinRequire(r.auth, auth.ScopeRead))
	read.GET("/status", r.handleStatus)
	read.GET("/results", r.handleResults)

	ctl := group.Group("", auth.GinRequire(r.auth, auth.ScopeControl))
	ctl.POST("/pause", r.handlePause)
	ctl.POST("/resume", r.handleResume)
	ctl.POST("/toggle", r.handleToggle)
	ctl.POST("/cancel", r.handleCancel)
	ctl.POST("/run", r.handleRun)
	return g
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// NewServer starts the control API on addr in the background. Shut it down
// with the returned server's Shutdown or Close.
func NewServer(ctx context.Context, addr, basePath string, svc Service, a *auth.Service) *http.Server {
	server := newHTTPServer(addr, NewRouter(ctx, svc, basePath).WithAuth(a).Handler())
	go func() { _ = server.ListenAndServe() }()
	return server
}

// NewMetricsServer serves the Prometheus registry at /metrics on its own
// listener.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := newHTTPServer(addr, mux)
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type pauseResp struct {
	Paused bool `json:"paused"`
}

func (r *Router) handlePause(c *gin.Context) {
	r.svc.Control().Pause()
	writeJSON(c, http.StatusOK, pauseResp{Paused: true})
}

func (r *Router) handleResume(c *gin.Context) {
	r.svc.Control().Resume()
	writeJSON(c, http.StatusOK, pauseResp{Paused: false})
}

func (r *Router) handleToggle(c *gin.Context) {
	writeJSON(c, http.StatusOK, pauseResp{Paused: r.svc.Control().Toggle()})
}

func (r *Router) handleCancel(c *gin.Context) {
	r.svc.Control().Cancel()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRun(c *gin.Context) {
	err := r.svc.Trigger(r.ctx)
	switch {
	case err == nil:
		writeJSON(c, http.StatusAccepted, okResp{OK: true})
	case errors.Is(err, runner.ErrBusy):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.Status())
}

func (r *Router) handleResults(c *gin.Context) {
	results := r.svc.Results()
	var (
		format      report.Format
		contentType string
	)
	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "json":
		format, contentType = report.JSON, "application/json"
	case "csv":
		format, contentType = report.CSV, "text/csv"
	case "yaml", "yml":
		format, contentType = report.YAML, "application/yaml"
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "format must be json, csv or yaml"})
		return
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if err := report.Encode(c.Writer, format, results); err != nil {
		_ = c.Error(err)
	}
}
