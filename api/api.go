// Package api serves the ambient operability surface: /health and
// /metrics. The exchange's own domain REST/CLI surface is out of scope
// (spec.md §1), so this stays deliberately narrow compared to the
// teacher's API, which also serves coordinator/explorer domain endpoints.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorpkg "github.com/go-playground/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ordermatch-pipeline/common"
)

// API serves the ambient HTTP surface for one orchestrator process.
type API struct {
	server   *gin.Engine
	validate *validatorpkg.Validate
	registry *prometheus.Registry
	ready    func() bool
}

// Config wraps the parameters needed to start the API.
type Config struct {
	Server   *gin.Engine
	Registry *prometheus.Registry
	// Ready reports whether every configured chain's orchestrator has
	// completed its initial matchsource snapshot.
	Ready func() bool
}

// New sets up the endpoints and handlers but does not start the server.
func New(cfg Config) (*API, error) {
	if cfg.Server == nil {
		return nil, common.Wrap(errNilServer)
	}
	a := &API{
		server:   cfg.Server,
		validate: validatorpkg.New(),
		registry: cfg.Registry,
		ready:    cfg.Ready,
	}
	a.registerEndpoints()
	return a, nil
}

var errNilServer = &missingServerError{}

type missingServerError struct{}

func (*missingServerError) Error() string { return "api: a gin.Engine must be provided" }

func (a *API) registerEndpoints() {
	a.server.GET("/health", a.health)
	if a.registry != nil {
		a.server.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	} else {
		a.server.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func (a *API) health(c *gin.Context) {
	if a.ready != nil && !a.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
