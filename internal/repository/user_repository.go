package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/scalpel-app/scalpel/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, email, password_hash, role, plan, file_limit, files_used, pro_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.Role, user.Plan, user.FileLimit, user.FilesUsed, user.ProExpiresAt, user.CreatedAt)
	return err
}

func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, password_hash, role, plan, file_limit, files_used, pro_expires_at, created_at
		FROM users WHERE id = ?
	`, id))
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, password_hash, role, plan, file_limit, files_used, pro_expires_at, created_at
		FROM users WHERE email = ? COLLATE NOCASE
	`, email))
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var proExpiresAt sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.Plan,
		&user.FileLimit, &user.FilesUsed, &proExpiresAt, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if proExpiresAt.Valid {
		t := proExpiresAt.Time
		user.ProExpiresAt = &t
	}
	return user, nil
}

// ReserveFiles atomically checks the quota and charges count files against
// it. Pro accounts with no expiry or an expiry in the future always pass the
// check; the counter still advances for reporting. A lapsed pro period is
// metered like a free account. Returns true if the reservation was applied.
func (r *UserRepository) ReserveFiles(id string, count int) (bool, error) {
	if count <= 0 {
		return false, fmt.Errorf("reserve count must be positive, got %d", count)
	}
	result, err := r.db.Exec(`
		UPDATE users SET files_used = files_used + ?
		WHERE id = ? AND (
			(plan = 'pro' AND (pro_expires_at IS NULL OR pro_expires_at > ?))
			OR files_used + ? <= file_limit
		)
	`, count, id, time.Now().UTC(), count)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpgradeToPro switches the account to the pro plan. A nil expiresAt grants
// lifetime access.
func (r *UserRepository) UpgradeToPro(id string, fileLimit int, expiresAt *time.Time) error {
	_, err := r.db.Exec(`
		UPDATE users SET plan = 'pro', file_limit = ?, pro_expires_at = ? WHERE id = ?
	`, fileLimit, expiresAt, id)
	return err
}
