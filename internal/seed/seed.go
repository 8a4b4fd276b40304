// Package seed generates demo doctors and availability blocks.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Store is where generated data is written.
type Store interface {
	InsertDoctor(ctx context.Context, d appointment.Doctor) error
	InsertBlock(ctx context.Context, b appointment.AvailabilityBlock) error
}

type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator returns a generator; seed 0 picks a random seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

func (g *Generator) Doctor() appointment.Doctor {
	specialty := g.faker.RandomString(specialties)
	return appointment.Doctor{
		ID:        uuid.New(),
		Name:      "Dr. " + g.faker.FirstName() + " " + g.faker.LastName(),
		Specialty: &specialty,
	}
}

// Blocks lays out a working week for days dates from from: a morning block
// every weekday and, on some days, a disjoint afternoon block.
func (g *Generator) Blocks(doctorID uuid.UUID, from timegrid.Date, days int) []appointment.AvailabilityBlock {
	var out []appointment.AvailabilityBlock
	for i := 0; i < days; i++ {
		date := from.AddDays(i)
		switch date.Time().Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}

		morningStart := timegrid.NewClock(g.faker.Number(7, 9), 0)
		out = append(out, appointment.AvailabilityBlock{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			Date:      date,
			StartTime: morningStart,
			EndTime:   timegrid.NewClock(12, 0),
		})

		if g.faker.Bool() {
			out = append(out, appointment.AvailabilityBlock{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      date,
				StartTime: timegrid.NewClock(13, 0),
				EndTime:   timegrid.NewClock(g.faker.Number(15, 18), 30*g.faker.Number(0, 1)),
			})
		}
	}
	return out
}

type Summary struct {
	DoctorIDs []uuid.UUID
	Blocks    int
}

// Populate writes doctors with their blocks for days dates from from.
func (g *Generator) Populate(ctx context.Context, store Store, doctors int, from timegrid.Date, days int) (Summary, error) {
	var sum Summary
	for i := 0; i < doctors; i++ {
		d := g.Doctor()
		if err := store.InsertDoctor(ctx, d); err != nil {
			return sum, fmt.Errorf("insert doctor: %w", err)
		}
		sum.DoctorIDs = append(sum.DoctorIDs, d.ID)

		for _, b := range g.Blocks(d.ID, from, days) {
			if err := store.InsertBlock(ctx, b); err != nil {
				return sum, fmt.Errorf("insert block for %s: %w", d.ID, err)
			}
			sum.Blocks++
		}
	}
	return sum, nil
}
