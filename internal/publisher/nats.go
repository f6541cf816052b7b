package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"sakay-eta/internal/notify"
	"sakay-eta/internal/transit"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Connect dials NATS and wires connection state into m (which may be nil).
func Connect(url, name string, m PublisherMetrics) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return nc, nil
}

// NATSPublisher publishes vehicle positions and notification records under a
// common subject prefix.
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

func NewNATSPublisher(nc *nats.Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: SubjectToken(prefix), logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	VehicleID int       `json:"vehicleId"`
	Route     string    `json:"route"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
}

// PositionSubject is the subject a vehicle's positions are published on.
func PositionSubject(prefix, route string, vehicleID int) string {
	return fmt.Sprintf("%s.positions.%s.%s", SubjectToken(prefix), SubjectToken(route), strconv.Itoa(vehicleID))
}

// PositionWildcard matches every position subject under prefix.
func PositionWildcard(prefix string) string {
	return SubjectToken(prefix) + ".positions.>"
}

func NotificationSubject(prefix string, c notify.Category) string {
	return fmt.Sprintf("%s.notifications.%s", SubjectToken(prefix), SubjectToken(string(c)))
}

func (p *NATSPublisher) PublishPosition(v transit.Vehicle, at time.Time) error {
	return p.publish(PositionSubject(p.prefix, v.RouteRef, v.ID), PositionMessage{
		VehicleID: v.ID,
		Route:     v.RouteRef,
		Timestamp: at,
		Lat:       v.Lat,
		Lng:       v.Lng,
	})
}

// Notify publishes r fire-and-forget; failures are logged and counted only.
func (p *NATSPublisher) Notify(r notify.Record) {
	if err := p.publish(NotificationSubject(p.prefix, r.Category), r); err != nil {
		log.Warn().Err(err).Str("id", r.ID).Msg("publish notification failed")
	}
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Debug().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// SubjectToken makes s safe to use as a single NATS subject token.
func SubjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
