package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id                TEXT PRIMARY KEY,
	platform          TEXT NOT NULL,
	content           TEXT NOT NULL,
	severity          TEXT NOT NULL,
	status            TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	detected_entities TEXT[] NOT NULL DEFAULT '{}',
	confidence_score  DOUBLE PRECISION,
	potential_reach   BIGINT,
	date              TIMESTAMPTZ NOT NULL,
	recommendation    TEXT NOT NULL DEFAULT '',
	source_type       TEXT NOT NULL DEFAULT '',
	threat_type       TEXT NOT NULL DEFAULT '',
	date_ingested     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS escalations (
	id                 TEXT PRIMARY KEY,
	simulation_id      TEXT NOT NULL DEFAULT '',
	topic              TEXT NOT NULL,
	threat_level       INTEGER NOT NULL,
	likelihood_score   DOUBLE PRECISION NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	geographical_scope TEXT[] NOT NULL DEFAULT '{}',
	predicted_keywords TEXT[] NOT NULL DEFAULT '{}',
	status             TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	triggered_at       TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

ALTER TABLE escalations ADD COLUMN IF NOT EXISTS simulation_key TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS escalations_simulation_key_idx ON escalations (simulation_key, triggered_at DESC);
`

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO alerts (id, platform, content, severity, status, category, detected_entities,
			confidence_score, potential_reach, date, recommendation, source_type, threat_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	for _, a := range alerts {
		entities := a.DetectedEntities
		if entities == nil {
			entities = []string{}
		}
		batch.Queue(query,
			a.ID,
			a.Platform,
			a.Content,
			string(a.Severity),
			string(a.Status),
			a.Category,
			entities,
			a.ConfidenceScore,
			a.PotentialReach,
			a.Date,
			a.Recommendation,
			a.SourceType,
			a.ThreatType,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}

	return nil
}

func (r *PostgresRepository) UpdateAlertStatus(ctx context.Context, id string, status domain.Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE alerts SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAlert, id)
	}
	return nil
}

func (r *PostgresRepository) FindRecentAlerts(ctx context.Context, since time.Time, limit int) ([]domain.Alert, error) {
	query := `
		SELECT id, platform, content, severity, status, category, detected_entities,
			confidence_score, potential_reach, date, recommendation, source_type, threat_type
		FROM alerts
		WHERE date_ingested >= $1
		ORDER BY date_ingested DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts since %v: %w", since, err)
	}
	defer rows.Close()

	var alerts []domain.Alert

	for rows.Next() {
		var a domain.Alert
		var severity, status string
		err := rows.Scan(
			&a.ID,
			&a.Platform,
			&a.Content,
			&severity,
			&status,
			&a.Category,
			&a.DetectedEntities,
			&a.ConfidenceScore,
			&a.PotentialReach,
			&a.Date,
			&a.Recommendation,
			&a.SourceType,
			&a.ThreatType,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Severity = domain.Severity(severity)
		a.Status = domain.Status(status)
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return alerts, nil
}

func (r *PostgresRepository) SaveEscalation(ctx context.Context, rec domain.EscalationRecord) error {
	query := `
		INSERT INTO escalations (id, simulation_id, topic, threat_level, likelihood_score, source,
			geographical_scope, predicted_keywords, status, error, triggered_at, updated_at, simulation_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	sim := rec.Simulation
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.SimulationID,
		sim.Topic,
		sim.ThreatLevel,
		sim.LikelihoodScore,
		sim.Source,
		nonNil(sim.GeographicalScope),
		nonNil(sim.PredictedKeywords),
		string(rec.Status),
		rec.Error,
		rec.TriggeredAt,
		rec.UpdatedAt,
		sim.Key(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation %s: %w", rec.ID, err)
	}
	return nil
}

func (r *PostgresRepository) UpdateEscalationStatus(ctx context.Context, id string, status domain.EscalationStatus, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE escalations SET status = $2, error = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), reason, at)
	if err != nil {
		return fmt.Errorf("failed to update escalation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEscalation, id)
	}
	return nil
}

const escalationColumns = `id, simulation_id, topic, threat_level, likelihood_score, source,
	geographical_scope, predicted_keywords, status, error, triggered_at, updated_at`

func (r *PostgresRepository) FindEscalation(ctx context.Context, id string) (*domain.EscalationRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id)

	rec, err := scanEscalation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) FindLatestEscalation(ctx context.Context, simulationKey string) (*domain.EscalationRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE simulation_key = $1 ORDER BY triggered_at DESC LIMIT 1`,
		simulationKey)

	rec, err := scanEscalation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListEscalations(ctx context.Context, limit int) ([]domain.EscalationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+escalationColumns+` FROM escalations ORDER BY triggered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	var records []domain.EscalationRecord
	for rows.Next() {
		rec, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func scanEscalation(row pgx.Row) (*domain.EscalationRecord, error) {
	var rec domain.EscalationRecord
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.SimulationID,
		&rec.Simulation.Topic,
		&rec.Simulation.ThreatLevel,
		&rec.Simulation.LikelihoodScore,
		&rec.Simulation.Source,
		&rec.Simulation.GeographicalScope,
		&rec.Simulation.PredictedKeywords,
		&status,
		&rec.Error,
		&rec.TriggeredAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan escalation: %w", err)
	}
	rec.Status = domain.EscalationStatus(status)
	rec.Simulation.ID = rec.SimulationID
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
