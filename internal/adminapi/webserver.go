// Package adminapi serves the inventory over HTTP: the product table, the add and
// edit forms, ordering, and exports.
package adminapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/ledger"
)

const apiPrefix = "/api/inventory"

type Server struct {
	root   *echo.Echo
	addr   string
	ledger *ledger.Service
}

func NewServer(addr string, svc *ledger.Service) *Server {
	s := &Server{root: echo.New(), addr: addr, ledger: svc}
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.Logger.SetLevel(log.ERROR)
	s.root.Use(middleware.Recover())
	s.root.Use(zapRequestLogger())
	s.root.Use(middleware.BodyLimit("8M"))

	api := s.root.Group(apiPrefix, s.bindLedger)
	registerProductRoutes(api)
	registerReportRoutes(api)
	registerImageRoutes(api)
	return s
}

func (s *Server) bindLedger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(ledgerContextKey, s.ledger)
		return next(c)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.root
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	zap.L().Info("admin api listening", zap.String("namespace", "adminapi"), zap.String("addr", s.addr))
	if err := s.root.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

func zapRequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			zap.L().Debug("http request",
				zap.String("namespace", "adminapi"),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}
