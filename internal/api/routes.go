package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"sakay-eta/internal/display"
	"sakay-eta/internal/eta"
	"sakay-eta/internal/geo"
	"sakay-eta/internal/location"
	"sakay-eta/internal/notify"
	"sakay-eta/internal/transit"
)

type locationBody struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type stopView struct {
	StopName  string `json:"stopName"`
	Arrival   int64  `json:"arrival"`
	Clock     string `json:"clock"`
	Countdown string `json:"countdown"`
}

type routeView struct {
	RouteID   int        `json:"routeId"`
	RouteName string     `json:"routeName"`
	Stops     []stopView `json:"stops"`
}

type boardView struct {
	GeneratedAt int64       `json:"generatedAt"`
	Closed      bool        `json:"closed"`
	Tier        string      `json:"tier"`
	Routes      []routeView `json:"routes"`
}

// routeViewOf formats a board entry; countdowns are relative to the request
// time and no estimate is recomputed.
func (s *Server) routeViewOf(r eta.RouteBoard) routeView {
	now := s.now()
	v := routeView{RouteID: r.RouteID, RouteName: r.RouteName, Stops: make([]stopView, 0, len(r.Stops))}
	for _, st := range r.Stops {
		v.Stops = append(v.Stops, stopView{
			StopName:  st.StopName,
			Arrival:   st.ArrivalTimestamp,
			Clock:     display.Clock(st.ArrivalTimestamp, s.loc),
			Countdown: display.Countdown(st.ArrivalTimestamp, now),
		})
	}
	return v
}

func (s *Server) listRoutes(c *fiber.Ctx) error {
	routes := s.state.Routes()
	if routes == nil {
		routes = []transit.Route{}
	}
	return c.JSON(routes)
}

func (s *Server) getBoard(c *fiber.Ctx) error {
	b := s.state.Snapshot().Board
	v := boardView{Closed: b.Closed, Routes: make([]routeView, 0, len(b.Routes))}
	if !b.GeneratedAt.IsZero() {
		v.GeneratedAt = b.GeneratedAt.UnixMilli()
		v.Tier = b.Tier.String()
	}
	for _, r := range b.Routes {
		v.Routes = append(v.Routes, s.routeViewOf(r))
	}
	return c.JSON(v)
}

func (s *Server) getRouteBoard(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "route id must be an integer")
	}
	r, ok := s.state.Snapshot().Board.Route(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "could not find route "+strconv.Itoa(id))
	}
	return c.JSON(s.routeViewOf(r))
}

func (s *Server) listNotifications(c *fiber.Ctx) error {
	records := s.state.Snapshot().Notifications
	if records == nil {
		records = []notify.Record{}
	}
	return c.JSON(records)
}

func (s *Server) listVehicles(c *fiber.Ctx) error {
	vehicles := s.state.Snapshot().Vehicles
	if vehicles == nil {
		vehicles = []transit.Vehicle{}
	}
	return c.JSON(vehicles)
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	st := s.state.Snapshot().Status
	// location changes land between ticks; report the live value
	available, reason, _ := s.watch.Status()
	st.LocationAvailable = available
	st.LocationReason = reason
	return c.JSON(st)
}

func (s *Server) putLocation(c *fiber.Ctx) error {
	var body locationBody
	if err := c.BodyParser(&body); err != nil || body.Lat == nil || body.Lng == nil {
		return fiber.NewError(fiber.StatusBadRequest, `body must be {"lat": number, "lng": number}`)
	}
	if err := s.watch.Set(geo.Point{Lat: *body.Lat, Lng: *body.Lng}); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteLocation(c *fiber.Ctx) error {
	reason := c.Query("reason", location.ReasonDenied)
	s.watch.Clear(reason)
	return c.SendStatus(fiber.StatusNoContent)
}
