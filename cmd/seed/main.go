package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/db"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("seed providers")
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	typeIDs, err := seedConsultationTypes(context.Background(), pool, providerIDs)
	if err != nil {
		log.Fatal().Err(err).Msg("seed consultation types")
	}
	if err := seedTemplates(context.Background(), pool, providerIDs, typeIDs); err != nil {
		log.Fatal().Err(err).Msg("seed availability templates")
	}
	if err := seedAppointments(context.Background(), pool, providerIDs, patientIDs, typeIDs); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding providers")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, display_name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 200

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

func seedConsultationTypes(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	log.Info().Msg("seeding consultation types")

	kinds := []struct {
		code     string
		name     string
		duration int
		price    int64
	}{
		{"initial", "Première consultation", 60, 12000},
		{"followup", "Consultation de suivi", 30, 7500},
		{"bilan", "Bilan nutritionnel", 45, 9500},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	byProvider := make(map[uuid.UUID][]uuid.UUID, len(providerIDs))
	for _, pid := range providerIDs {
		for i, k := range kinds {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO consultation_types (
					id, provider_id, code, name, description,
					default_duration_min, default_price_cents, video_enabled,
					in_person_enabled, lifecycle, sort_order, created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, NULL, $5, $6, true, true, 'active', $7, now(), now())
			`, id, pid, k.code, k.name, k.duration, k.price, i)
			if err != nil {
				return nil, err
			}
			byProvider[pid] = append(byProvider[pid], id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return byProvider, nil
}

func seedTemplates(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID, typeIDs map[uuid.UUID][]uuid.UUID) error {
	log.Info().Msg("seeding availability templates")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range providerIDs {
		// Weekday mornings and afternoons, Monday through Friday.
		for weekday := 1; weekday <= 5; weekday++ {
			for _, window := range [][2]int{{9 * 60, 12 * 60}, {14 * 60, 18 * 60}} {
				var typeID *uuid.UUID
				if ids := typeIDs[pid]; len(ids) > 0 && gofakeit.Bool() {
					typeID = &ids[gofakeit.Number(0, len(ids)-1)]
				}

				_, err := tx.Exec(ctx, `
					INSERT INTO availability_templates (
						id, provider_id, kind, weekday, start_minute, end_minute,
						valid_from, valid_until, video_enabled, in_person_enabled,
						consultation_type_id, active, created_at, updated_at
					)
					VALUES ($1, $2, 'recurring', $3, $4, $5, NULL, NULL, true, $6, $7, true, now(), now())
				`, uuid.New(), pid, weekday, window[0], window[1], gofakeit.Bool(), typeID)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, providerIDs, patientIDs []uuid.UUID, typeIDs map[uuid.UUID][]uuid.UUID) error {
	log.Info().Msg("seeding pending appointments")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range providerIDs {
		// A handful of non-overlapping pending requests next week.
		day := time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
		for i := 0; i < 4; i++ {
			start := day.Add(time.Duration(9+2*i) * time.Hour)
			end := start.Add(30 * time.Minute)
			patient := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]

			var typeID *uuid.UUID
			if ids := typeIDs[pid]; len(ids) > 0 {
				typeID = &ids[gofakeit.Number(0, len(ids)-1)]
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (
					id, provider_id, patient_id, consultation_type_id,
					scheduled_at, scheduled_end_at, status, status_reason,
					status_changed_at, cancelled_at, cancelled_by, internal_note,
					created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, 'pending', NULL, NULL, NULL, NULL, NULL, now(), now())
			`, uuid.New(), pid, patient, typeID, start, end)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
