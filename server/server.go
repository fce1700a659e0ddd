// Package server exposes the entity store as a GTFS-Realtime feed over HTTP.
package server

import (
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/gtfs"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/store"
)

const contentTypeProtobuf = "application/x-protobuf"

type Server struct {
	app      *fiber.App
	store    *store.Store
	resource *gtfs.Resource
}

func New(st *store.Store, resource *gtfs.Resource) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	app.Use(requestLogger())

	s := &Server{app: app, store: st, resource: resource}

	app.Get("/trip-updates", s.handleTripUpdates)
	app.Get("/trip-updates.json", s.handleTripUpdatesJSON)
	app.Get("/vehicle-positions", s.handleVehiclePositions)
	app.Get("/vehicle-positions.json", s.handleVehiclePositionsJSON)
	app.Get("/", s.handleCombined)
	app.Get("/health", s.handleHealth)

	return s
}

// Listen blocks serving the feed until Shutdown is called.
func (s *Server) Listen(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("Feed server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) handleTripUpdates(c *fiber.Ctx) error {
	return sendProtobuf(c, assembleFeed(s.store.TripUpdates()))
}

func (s *Server) handleTripUpdatesJSON(c *fiber.Ctx) error {
	return sendJSON(c, assembleFeed(s.store.TripUpdates()))
}

func (s *Server) handleVehiclePositions(c *fiber.Ctx) error {
	return sendProtobuf(c, assembleFeed(s.store.VehiclePositions()))
}

func (s *Server) handleVehiclePositionsJSON(c *fiber.Ctx) error {
	return sendJSON(c, assembleFeed(s.store.VehiclePositions()))
}

func (s *Server) handleCombined(c *fiber.Ctx) error {
	feed := assembleFeed(s.store.TripUpdates(), s.store.VehiclePositions())
	if c.Query("format") == "json" {
		return sendJSON(c, feed)
	}
	return sendProtobuf(c, feed)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	schedule := s.resource.Schedule()

	return c.JSON(fiber.Map{
		"status":            "ok",
		"resource_state":    s.resource.State().String(),
		"schedule_imported": schedule.ImportedAt.UTC().Format(time.RFC3339),
		"trip_updates":      len(s.store.TripUpdates()),
		"vehicle_positions": len(s.store.VehiclePositions()),
	})
}

func sendProtobuf(c *fiber.Ctx, feed *gtfsrtpb.FeedMessage) error {
	payload, err := marshalFeed(feed)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, contentTypeProtobuf)
	return c.Send(payload)
}

func sendJSON(c *fiber.Ctx, feed *gtfsrtpb.FeedMessage) error {
	payload, err := marshalFeedJSON(feed)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("Request")
		return err
	}
}
