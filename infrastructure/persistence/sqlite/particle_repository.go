package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

const particleColumns = `id, user_id, pos_x, pos_y, vel_x, vel_y, mass, energy, state,
	expiry_reason, decay_level, created_at, updated_at, last_input_at, version`

const upsertParticle = `INSERT INTO particles (` + particleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		user_id = excluded.user_id,
		pos_x = excluded.pos_x,
		pos_y = excluded.pos_y,
		vel_x = excluded.vel_x,
		vel_y = excluded.vel_y,
		mass = excluded.mass,
		energy = excluded.energy,
		state = excluded.state,
		expiry_reason = excluded.expiry_reason,
		decay_level = excluded.decay_level,
		updated_at = excluded.updated_at,
		last_input_at = excluded.last_input_at,
		version = excluded.version
	WHERE particles.version = ?`

// ParticleRepository implements ports.ParticleRepository over SQLite
type ParticleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save upserts a particle unless another writer changed it since it was loaded
func (r *ParticleRepository) Save(ctx context.Context, particle *entities.Particle) error {
	if err := writeParticle(ctx, r.db, particle); err != nil {
		return fmt.Errorf("save particle: %w", err)
	}
	particle.MarkPersisted(particle.NextStoredVersion())
	return nil
}

// GetByID returns a particle in any state, or nil
func (r *ParticleRepository) GetByID(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+particleColumns+` FROM particles WHERE id = ?`, id.String())
	p, err := scanParticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get particle: %w", err)
	}
	return p, nil
}

// GetActiveParticles returns Active and Decaying particles ordered by id
func (r *ParticleRepository) GetActiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+particleColumns+` FROM particles WHERE state != ? ORDER BY id`,
		string(entities.StateExpired),
	)
	if err != nil {
		return nil, fmt.Errorf("query active particles: %w", err)
	}
	defer rows.Close()

	var out []*entities.Particle
	for rows.Next() {
		p, err := scanParticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan particle: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate particles: %w", err)
	}
	return out, nil
}

// GetParticleByUser returns the user's live particle, or nil
func (r *ParticleRepository) GetParticleByUser(ctx context.Context, userID string) (*entities.Particle, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+particleColumns+` FROM particles WHERE user_id = ? AND state != ? ORDER BY created_at DESC LIMIT 1`,
		userID, string(entities.StateExpired),
	)
	p, err := scanParticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get particle by user: %w", err)
	}
	return p, nil
}

// UpdateParticlesBatch writes every particle in one transaction; one stale
// particle rolls back the whole batch
func (r *ParticleRepository) UpdateParticlesBatch(ctx context.Context, particles []*entities.Particle) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range particles {
		if err := writeParticle(ctx, tx, p); err != nil {
			return fmt.Errorf("batch write particle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for _, p := range particles {
		p.MarkPersisted(p.NextStoredVersion())
	}

	r.logger.Debug("Particle batch committed", zap.Int("count", len(particles)))
	return nil
}

func writeParticle(ctx context.Context, db execer, p *entities.Particle) error {
	if p == nil {
		return fmt.Errorf("particle cannot be nil")
	}
	d := p.Data()

	var lastInput sql.NullInt64
	if d.LastInputAt != nil {
		lastInput = sql.NullInt64{Int64: toMillis(*d.LastInputAt), Valid: true}
	}

	res, err := db.ExecContext(ctx, upsertParticle,
		d.ID.String(), d.UserID,
		d.Position.X, d.Position.Y, d.Velocity.X, d.Velocity.Y,
		d.Mass, d.Energy, string(d.State), string(d.ExpiryReason), d.DecayLevel,
		toMillis(d.CreatedAt), toMillis(d.UpdatedAt), lastInput, p.NextStoredVersion(),
		p.StoredVersion(),
	)
	if err != nil {
		return err
	}
	// The guarded upsert touches no row when the stored version moved on
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.NewVersionConflictError("particle "+d.ID.String(), p.StoredVersion())
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParticle(s scanner) (*entities.Particle, error) {
	var (
		id, state, reason string
		d                 entities.ParticleData
		createdAt         int64
		updatedAt         int64
		lastInput         sql.NullInt64
	)
	err := s.Scan(
		&id, &d.UserID,
		&d.Position.X, &d.Position.Y, &d.Velocity.X, &d.Velocity.Y,
		&d.Mass, &d.Energy, &state, &reason, &d.DecayLevel,
		&createdAt, &updatedAt, &lastInput, &d.Version,
	)
	if err != nil {
		return nil, err
	}

	pid, err := valueobjects.NewParticleIDFromString(id)
	if err != nil {
		return nil, err
	}
	d.ID = pid
	d.State = entities.ParticleState(state)
	d.ExpiryReason = entities.ExpiryReason(reason)
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	if lastInput.Valid {
		t := fromMillis(lastInput.Int64)
		d.LastInputAt = &t
	}
	return entities.ReconstructParticle(d)
}
