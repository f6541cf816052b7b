// Package api serves the rider-facing ETA board, notification feed and
// location updates over HTTP.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"sakay-eta/internal/location"
	"sakay-eta/internal/poller"
	"sakay-eta/internal/transit"
)

// State is the read side of the polling loop.
type State interface {
	Snapshot() poller.Snapshot
	Routes() []transit.Route
}

type Server struct {
	app   *fiber.App
	state State
	watch *location.Watch
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Server)

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New builds the HTTP app. loc is the zone used to render arrival clocks.
func New(state State, watch *location.Watch, loc *time.Location, opts ...Option) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		state: state,
		watch: watch,
		loc:   loc,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.app.Use(NewLogger())

	group := s.app.Group("/api")
	group.Get("/routes", s.listRoutes)
	group.Get("/eta", s.getBoard)
	group.Get("/eta/:id", s.getRouteBoard)
	group.Get("/notifications", s.listNotifications)
	group.Get("/vehicles", s.listVehicles)
	group.Get("/status", s.getStatus)
	group.Put("/location", s.putLocation)
	group.Delete("/location", s.deleteLocation)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
