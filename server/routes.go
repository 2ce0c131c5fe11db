// Package server - HTTP-Statusoberflaeche ueber die registrierten Pipelines
//
// Dieses Modul enthaelt:
// - Server: gin-Router mit CORS und Host-Pruefung
// - GET  /api/pipelines               Liste aller Pipelines
// - GET  /api/pipelines/:handle       Status, Fehlermeldung und Zeiten
// - POST /api/pipelines/:handle/reset neue Epoche
//
// Der Server liest nur ueber das api-Paket; Pipelines erzeugt der Prozess selbst.
package server

import (
	"errors"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/7blacky7/rocal/api"
	"github.com/7blacky7/rocal/envconfig"
)

type Server struct {
	addr net.Addr
}

func New(addr net.Addr) *Server { return &Server{addr: addr} }

// GenerateRoutes baut den Router.
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowHeaders = []string{
		"Content-Type",
		"User-Agent",
		"Accept",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "rocal is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "rocal is running") })

	r.GET("/api/pipelines", s.ListHandler)
	r.GET("/api/pipelines/:handle", s.ShowHandler)
	r.POST("/api/pipelines/:handle/reset", s.ResetHandler)
	return r
}

func (s *Server) ListHandler(c *gin.Context) {
	list := api.List()
	if list == nil {
		list = []api.PipelineInfo{}
	}
	c.JSON(http.StatusOK, api.ListResponse{Pipelines: list})
}

func handleParam(c *gin.Context) (api.Handle, bool) {
	h, err := api.ParseHandle(c.Param("handle"))
	if err != nil || h == api.InvalidHandle {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid handle " + c.Param("handle")})
		return api.InvalidHandle, false
	}
	return h, true
}

func describe(c *gin.Context, h api.Handle) {
	pi, err := api.Describe(h)
	switch {
	case errors.Is(err, api.ErrInvalidHandle):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, pi)
	}
}

func (s *Server) ShowHandler(c *gin.Context) {
	h, ok := handleParam(c)
	if !ok {
		return
	}
	describe(c, h)
}

func (s *Server) ResetHandler(c *gin.Context) {
	h, ok := handleParam(c)
	if !ok {
		return
	}
	switch st := api.Reset(h); st {
	case api.StatusOK:
		describe(c, h)
	case api.StatusContextInvalid:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
	default:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": api.GetErrorMessage(h), "status": st.String()})
	}
}
