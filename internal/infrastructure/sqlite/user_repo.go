package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/mattn/go-sqlite3"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, is_organizer, is_email_verified,
	account_status, profile, last_login, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, u *domain.User, passwordHash string) error {
	profile, err := encodeProfile(u.Profile)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, is_organizer,
			is_email_verified, account_status, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, passwordHash, u.FirstName, u.LastName, u.IsOrganizer,
		u.IsEmailVerified, string(u.AccountStatus), profile, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`, email)

	var hash string
	u, err := scanUser(row, &hash)
	if err != nil {
		return nil, "", err
	}
	return u, hash, nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	profile, err := encodeProfile(u.Profile)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, profile = ?, updated_at = ?
		WHERE id = ?`,
		u.FirstName, u.LastName, profile, u.UpdatedAt.UTC(), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res, domain.ErrUserNotFound)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (r *UserRepository) CreateVerificationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (r *UserRepository) ClaimVerificationToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE verification_tokens SET used_at = ?
			WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
			RETURNING user_id`,
			now.UTC(), tokenHash, now.UTC(),
		).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTokenInvalid
		}
		if err != nil {
			return fmt.Errorf("claim verification token: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET is_email_verified = 1, account_status = ?, updated_at = ?
			WHERE id = ?`,
			string(domain.AccountActive), now.UTC(), userID,
		)
		if err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		return nil
	})
	return userID, err
}

func (r *UserRepository) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *UserRepository) RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (string, error) {
	var userID string
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE refresh_tokens SET revoked_at = ?
			WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?
			RETURNING user_id`,
			now.UTC(), oldHash, now.UTC(),
		).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTokenInvalid
		}
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
			newHash, userID, expiresAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}
		return nil
	})
	return userID, err
}

func (r *UserRepository) RevokeRefreshTokens(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		now.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *UserRepository) RecordLoginFailure(ctx context.Context, ip, email string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_failures (ip, email, created_at) VALUES (?, ?, ?)`,
		ip, email, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (r *UserRepository) CountLoginFailures(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM login_failures WHERE ip = ? AND created_at >= ?`,
		ip, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return n, nil
}

// scanUser reads userColumns followed by any extra destinations.
func scanUser(row *sql.Row, extra ...any) (*domain.User, error) {
	var (
		u         domain.User
		status    string
		profile   sql.NullString
		lastLogin sql.NullTime
	)
	dest := append([]any{
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsOrganizer, &u.IsEmailVerified,
		&status, &profile, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.AccountStatus = domain.AccountStatus(status)
	u.Roles = []domain.Role{}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if profile.Valid && profile.String != "" {
		u.Profile = &domain.UserProfile{}
		if err := json.Unmarshal([]byte(profile.String), u.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	return &u, nil
}

func encodeProfile(p *domain.UserProfile) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode profile: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
