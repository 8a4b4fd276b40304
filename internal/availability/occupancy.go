package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

type AppointmentReader interface {
	ListAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]appointment.Appointment, error)
}

// Occupancy reads which slots are held by active appointments. Every call
// goes to the store; nothing is cached.
type Occupancy struct {
	appointments AppointmentReader
}

func NewOccupancy(appointments AppointmentReader) *Occupancy {
	return &Occupancy{appointments: appointments}
}

func (o *Occupancy) OccupiedSlots(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) (map[timegrid.Clock]struct{}, error) {
	return o.occupiedExcluding(ctx, doctorID, date, 0)
}

// occupiedExcluding skips the appointment with id exclude, so a reschedule
// does not collide with the slot it is about to vacate.
func (o *Occupancy) occupiedExcluding(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, exclude int64) (map[timegrid.Clock]struct{}, error) {
	appts, err := o.appointments.ListAppointmentsForDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", date, err)
	}

	taken := make(map[timegrid.Clock]struct{}, len(appts))
	for _, a := range appts {
		if a.ID == exclude && exclude != 0 {
			continue
		}
		if a.Status.Active() {
			taken[a.Time] = struct{}{}
		}
	}
	return taken, nil
}
