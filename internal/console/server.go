// Package console is the local HTTP control surface for a running peer: read
// and submit state, fetch the bootstrap link or its QR code, health and
// metrics.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/link"
	"github.com/danmuck/statewarp/internal/observability"
	"github.com/danmuck/statewarp/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	version          = "0.1.0"
	defaultLinkBase  = "statewarp://join"
	maxStateBodySize = 32 << 20
)

// Session is the part of a running session the console drives.
type Session interface {
	State() session.State
	Role() session.Role
	Submit(v any) error
}

type Config struct {
	ID          string
	Addr        string
	CORSOrigins []string
	// LinkBase is the address bootstrap links are built on.
	LinkBase string
}

type Server struct {
	ID       string
	Addr     string
	LinkBase string
	Appeared time.Time

	sess   Session
	router *gin.Engine
}

func New(sess Session, cfg Config) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	base := strings.TrimSpace(cfg.LinkBase)
	if base == "" {
		base = defaultLinkBase
	}
	s := &Server{
		ID:       cfg.ID,
		Addr:     cfg.Addr,
		LinkBase: base,
		Appeared: time.Now(),
		sess:     sess,
		router:   r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		st := s.sess.State()
		ready := st.Status == session.StatusIdle || st.Status == session.StatusConnected
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"status":  st.Status.String(),
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	r.GET("/state", s.getState)
	r.PUT("/state", s.putState)
	r.GET("/link", s.getLink)
	r.GET("/link.png", s.getLinkPNG)
}

// Serve runs the HTTP server until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", s.Addr).Str("service", s.ID).Msg("console listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getState(c *gin.Context) {
	st := s.sess.State()
	data, hasBinary, err := codec.Encode(c.Request.Context(), st.Data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{
		"role":       s.sess.Role().String(),
		"status":     st.Status.String(),
		"local_id":   st.LocalID,
		"remote_id":  st.RemoteID,
		"data":       data,
		"has_binary": hasBinary,
	}
	if st.Err != nil {
		body["error"] = st.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) putState(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxStateBodySize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	v, err := codec.DecodeJSON(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sess.Submit(v); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, codec.ErrUnsupportedType), errors.Is(err, codec.ErrReservedKey):
			status = http.StatusBadRequest
		case errors.Is(err, session.ErrSessionClosed):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("service", s.ID).Int("bytes", len(raw)).Msg("console state submitted")
	c.JSON(http.StatusAccepted, gin.H{"status": s.sess.State().Status.String()})
}

func (s *Server) bootstrapLink(c *gin.Context) (string, bool) {
	if s.sess.Role() != session.RoleHost {
		c.JSON(http.StatusConflict, gin.H{"error": "only a host has a bootstrap link"})
		return "", false
	}
	id := s.sess.State().LocalID
	if id == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local identity not yet assigned"})
		return "", false
	}
	raw, err := link.Build(s.LinkBase, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}
	return raw, true
}

func (s *Server) getLink(c *gin.Context) {
	raw, ok := s.bootstrapLink(c)
	if !ok {
		return
	}
	qr, err := link.DataURL(raw, link.DefaultPNGSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": raw, "session": s.sess.State().LocalID, "qr": qr})
}

func (s *Server) getLinkPNG(c *gin.Context) {
	raw, ok := s.bootstrapLink(c)
	if !ok {
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(link.DefaultPNGSize)))
	if err != nil || size < link.MinPNGSize || size > link.MaxPNGSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("size must be an integer in [%d, %d]", link.MinPNGSize, link.MaxPNGSize),
		})
		return
	}
	png, err := link.PNG(raw, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
