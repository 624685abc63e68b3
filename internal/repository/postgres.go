// Package repository содержит реализации хранилища заявок и анкет: в PostgreSQL и в памяти.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const applicationColumns = `id, user_id, scheme_id, status, documents, created_at, updated_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := newRepository(stdlib.OpenDBFromPool(pool))
	r.pool = pool

	if err := r.runMigrations(ctx); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func newRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, r.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !retryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

// malformedID сообщает, что идентификатор не приводится к типу UUID.
func malformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает соединения с БД.
func (r *PostgresRepository) Close() error {
	err := r.db.Close()
	if r.pool != nil {
		r.pool.Close()
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (model.Application, error) {
	var (
		app    model.Application
		status string
		docs   []byte
	)
	if err := row.Scan(&app.ID, &app.UserID, &app.SchemeID, &status, &docs, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return model.Application{}, err
	}
	app.Status = model.ApplicationStatus(status)
	app.Documents = []string{}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &app.Documents); err != nil {
			return model.Application{}, fmt.Errorf("decode documents: %w", err)
		}
	}
	return app, nil
}

func encodeDocuments(docs []string) (string, error) {
	if docs == nil {
		docs = []string{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("encode documents: %w", err)
	}
	return string(b), nil
}

// FindActiveApplication возвращает неотклонённую заявку пользователя на программу или nil.
func (r *PostgresRepository) FindActiveApplication(ctx context.Context, userID int64, schemeID string) (*model.Application, error) {
	var app model.Application
	err := r.withRetry(ctx, func() error {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+applicationColumns+`
			 FROM applications
			 WHERE user_id = $1 AND scheme_id = $2 AND status <> $3`,
			userID, schemeID, string(model.ApplicationStatusRejected),
		)
		var err error
		app, err = scanApplication(row)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select active application: %w", err)
	}
	return &app, nil
}

// CreateApplication сохраняет новую заявку. Уникальный частичный индекс гарантирует
// не более одной активной заявки на пару пользователь-программа.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app model.Application) error {
	docs, err := encodeDocuments(app.Documents)
	if err != nil {
		return err
	}

	err = r.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO applications (`+applicationColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			app.ID, app.UserID, app.SchemeID, string(app.Status), docs, app.CreatedAt, app.UpdatedAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: user %d scheme %s", ErrDuplicateActive, app.UserID, app.SchemeID)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// GetApplication возвращает заявку по идентификатору.
func (r *PostgresRepository) GetApplication(ctx context.Context, id string) (model.Application, error) {
	var app model.Application
	err := r.withRetry(ctx, func() error {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+applicationColumns+` FROM applications WHERE id = $1`,
			id,
		)
		var err error
		app, err = scanApplication(row)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || malformedID(err) {
			return model.Application{}, fmt.Errorf("application %s: %w", id, model.ErrNotFound)
		}
		return model.Application{}, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

// UpdateApplication сохраняет статус и документы заявки в одной транзакции.
func (r *PostgresRepository) UpdateApplication(ctx context.Context, app model.Application) error {
	docs, err := encodeDocuments(app.Documents)
	if err != nil {
		return err
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		var dummy int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = $1 FOR UPDATE`, app.ID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || malformedID(err) {
				return fmt.Errorf("application %s: %w", app.ID, model.ErrNotFound)
			}
			return fmt.Errorf("lock application: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE applications SET status = $2, documents = $3, updated_at = $4 WHERE id = $1`,
			app.ID, string(app.Status), docs, app.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ListApplicationsByUser возвращает заявки пользователя в порядке создания.
func (r *PostgresRepository) ListApplicationsByUser(ctx context.Context, userID int64) ([]model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	res := []model.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProfile возвращает анкету пользователя.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	var p model.UserProfile
	var gender, caste, education, ration string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, age, gender, state, district, address, pincode,
		        occupation, income, caste, education, ration_card_type
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Age, &gender, &p.State, &p.District, &p.Address, &p.Pincode,
		&p.Occupation, &p.Income, &caste, &education, &ration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserProfile{}, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
		}
		return model.UserProfile{}, fmt.Errorf("select profile: %w", err)
	}

	p.Gender = model.Gender(gender)
	p.Category = model.Category(caste)
	p.Education = model.Education(education)
	p.RationCardType = model.RationCard(ration)
	return p, nil
}

// SaveProfile создаёт или заменяет анкету пользователя.
func (r *PostgresRepository) SaveProfile(ctx context.Context, p model.UserProfile) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO users (id, name, age, gender, state, district, address, pincode,
			                    occupation, income, caste, education, ration_card_type, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
			 ON CONFLICT (id) DO UPDATE SET
			     name = EXCLUDED.name,
			     age = EXCLUDED.age,
			     gender = EXCLUDED.gender,
			     state = EXCLUDED.state,
			     district = EXCLUDED.district,
			     address = EXCLUDED.address,
			     pincode = EXCLUDED.pincode,
			     occupation = EXCLUDED.occupation,
			     income = EXCLUDED.income,
			     caste = EXCLUDED.caste,
			     education = EXCLUDED.education,
			     ration_card_type = EXCLUDED.ration_card_type,
			     updated_at = now()`,
			p.UserID, p.Name, p.Age, string(p.Gender), p.State, p.District, p.Address, p.Pincode,
			p.Occupation, p.Income, string(p.Category), string(p.Education), string(p.RationCardType),
		)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return nil
	})
}
