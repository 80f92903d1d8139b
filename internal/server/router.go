package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/bringup/internal/registry"
)

// Router provides embeddable read-only HTTP handlers over the supervisor.
// Endpoints:
//
//	GET {basePath}/status        all registered services
//	GET {basePath}/status?name=X one service, 404 when unknown
//	GET {basePath}/state         supervisor lifecycle state
//	GET {basePath}/healthz       liveness of the API itself
//
// The API never mutates anything; the supervisor owns the lifecycle.
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	reg      *registry.Registry
	state    func() string
	basePath string
}

// NewRouter constructs a Router. state reports the supervisor's current
// lifecycle state; it must be safe for concurrent use.
func NewRouter(reg *registry.Registry, state func() string, basePath string) *Router {
	return &Router{reg: reg, state: state, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/state", r.handleState)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down with http.Server's Shutdown or Close.
func NewServer(addr, basePath string, reg *registry.Registry, state func() string) (*http.Server, error) {
	r := NewRouter(reg, state, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type stateResp struct {
	State string `json:"state"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.reg.Statuses())
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	p, ok := r.reg.Get(name)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown service: " + name})
		return
	}
	writeJSON(c, http.StatusOK, p.Snapshot())
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, stateResp{State: r.state()})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
