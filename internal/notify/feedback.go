package notify

import (
	"github.com/rs/zerolog/log"
)

// Feedback is the fire-and-forget side channel triggered for every fired
// record (sound, vibration, push). It must not block.
type Feedback interface {
	Notify(r Record)
}

type FeedbackFunc func(r Record)

func (f FeedbackFunc) Notify(r Record) { f(r) }

// LogFeedback writes every record to the global logger.
type LogFeedback struct{}

func (LogFeedback) Notify(r Record) {
	ev := log.Info().Str("id", r.ID).Str("category", string(r.Category))
	if r.VehicleID != 0 {
		ev = ev.Int("vehicle", r.VehicleID).Stringer("kind", r.Kind)
	}
	ev.Msg(r.Message)
}

// MultiFeedback delivers to every channel in order.
type MultiFeedback []Feedback

func (m MultiFeedback) Notify(r Record) {
	for _, f := range m {
		deliver(f, r)
	}
}

// deliver isolates the notifier from a failing channel.
func deliver(f Feedback, r Record) {
	if f == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("id", r.ID).Msg("feedback delivery failed")
		}
	}()
	f.Notify(r)
}
