package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kode4food/braid/internal/client"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/util"
)

// Server implements the HTTP front door for starting and following
// orchestration instances
type Server struct {
	client   *client.Client
	hub      *history.Hub
	gatherer prometheus.Gatherer
	version  string
	sockets  util.Set[*Socket]
	mu       sync.Mutex
}

const serviceName = "braid"

var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrStartFailed     = errors.New("failed to start instance")
	ErrQueryFailed     = errors.New("failed to query instance")
	ErrTerminateFailed = errors.New("failed to terminate instance")
)

// NewServer creates a new HTTP API server
func NewServer(
	cl *client.Client, hub *history.Hub, gatherer prometheus.Gatherer,
	version string,
) *Server {
	return &Server{
		client:   cl,
		hub:      hub,
		gatherer: gatherer,
		version:  version,
		sockets:  util.Set[*Socket]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
	))
	router.GET("/openapi.json", s.handleOpenAPI)

	router.POST("/orchestrations/:name", s.startInstance)

	inst := router.Group("/instances/:id")
	{
		inst.GET("", s.getInstance)
		inst.GET("/history", s.getHistory)
		inst.POST("/terminate", s.terminateInstance)
		inst.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: serviceName,
		Version: s.version,
		Status:  "healthy",
	})
}

func (s *Server) registerWebSocket(sock *Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(sock)
}

func (s *Server) unregisterWebSocket(sock *Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(sock)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	socks := make([]*Socket, 0, s.sockets.Len())
	for sock := range s.sockets {
		socks = append(socks, sock)
	}
	s.mu.Unlock()

	for _, sock := range socks {
		sock.Close()
	}
}

// errorStatus maps client and engine errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, api.ErrInstanceNotFound),
		errors.Is(err, engine.ErrOrchestrationNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrInstanceExists),
		errors.Is(err, api.ErrInstanceTerminal):
		return http.StatusConflict
	case errors.Is(err, client.ErrInvalidInstanceID),
		errors.Is(err, client.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, base, err error) {
	status := errorStatus(err)
	c.JSON(status, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", base, err),
		Status: status,
	})
}
