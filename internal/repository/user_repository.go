package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
)

const userColumns = `id, username, email, password, role, first_name, last_name, phone`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db}
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.getUser(ctx, query, id)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.getUser(ctx, query, email)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return r.getUser(ctx, query, username)
}

func (r *UserRepository) GetUsers(ctx context.Context) ([]entity.User, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []entity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	query := `
		INSERT INTO users (username, email, password, role, first_name, last_name, phone)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		user.Username, user.Email, user.Password, user.Role, user.FirstName, user.LastName, user.Phone)
	if isDuplicateKey(err) {
		return nil, fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	user.ID = id
	return user, nil
}

// UpdateUser overwrites every column of the user. MySQL reports 0 affected rows for an
// unchanged row, so existence is the caller's check.
func (r *UserRepository) UpdateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	query := `
		UPDATE users
		SET username = ?, email = ?, password = ?, role = ?, first_name = ?, last_name = ?, phone = ?
		WHERE id = ?`
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		user.Username, user.Email, user.Password, user.Role, user.FirstName, user.LastName, user.Phone, user.ID)
	if isDuplicateKey(err) {
		return nil, fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", user.ID, err)
	}
	return user, nil
}

// DeleteUser removes the user; orders, their items and the address go with it (ON DELETE CASCADE).
func (r *UserRepository) DeleteUser(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg any) (*entity.User, error) {
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*entity.User, error) {
	user := &entity.User{}
	var role string
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &role, &user.FirstName, &user.LastName, &user.Phone)
	if err != nil {
		return nil, err
	}
	user.Role = entity.UserRole(role)
	return user, nil
}
