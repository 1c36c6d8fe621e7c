package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message kinds produced by the appointment response workflow.
const (
	KindAppointmentConfirmed = "appointment_confirmed"
	KindAppointmentDeclined  = "appointment_declined"
	KindNewTimeProposed      = "new_time_proposed"
)

// Message is one patient-facing notification to deliver. Payload fields are
// pre-formatted strings (dates, times, labels) so the dispatcher stays a dumb
// transport.
type Message struct {
	AppointmentID uuid.UUID
	RecipientID   uuid.UUID
	Kind          string
	Payload       map[string]string
}

// Dispatcher sends a message to the affected patient. Implementations are
// external collaborators (email, push); delivery failure is reported but
// never affects the state transition that produced the message.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type logDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher returns a dispatcher that writes deliveries to the log.
// It stands in for the real messaging collaborator in dev and tests.
func NewLogDispatcher(log zerolog.Logger) Dispatcher {
	return &logDispatcher{log: log}
}

func (d *logDispatcher) Send(_ context.Context, msg Message) error {
	d.log.Info().
		Str("kind", msg.Kind).
		Str("appointment_id", msg.AppointmentID.String()).
		Str("recipient_id", msg.RecipientID.String()).
		Fields(map[string]any{"payload": msg.Payload}).
		Msg("notification delivered")
	return nil
}
