package postgres

import (
	"database/sql"
	"errors"

	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/jmoiron/sqlx"
)

// UserRepository reads credentials and principals off the employees
// table for token issuance.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

type employeeRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	Name         string `db:"name"`
	Role         string `db:"role"`
	PasswordHash string `db:"password_hash"`
	IsActive     bool   `db:"is_active"`
}

func (r *UserRepository) GetCredentialsByEmail(email string) (string, *auth.User, error) {
	var row employeeRow
	err := r.db.Get(&row,
		"SELECT id, email, name, role, password_hash, is_active FROM employees WHERE email = $1", email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, auth.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !row.IsActive {
		return "", nil, auth.ErrUserInactive
	}

	return row.PasswordHash, &auth.User{
		ID:    row.ID,
		Email: row.Email,
		Name:  row.Name,
		Role:  row.Role,
	}, nil
}

func (r *UserRepository) GetUserByID(userID int64) (*auth.User, error) {
	var row employeeRow
	err := r.db.Get(&row,
		"SELECT id, email, name, role, password_hash, is_active FROM employees WHERE id = $1", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	if !row.IsActive {
		return nil, auth.ErrUserInactive
	}

	return &auth.User{
		ID:    row.ID,
		Email: row.Email,
		Name:  row.Name,
		Role:  row.Role,
	}, nil
}
