package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
)

type AddressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) *AddressRepository {
	return &AddressRepository{db}
}

func (r *AddressRepository) GetAddressByUserID(ctx context.Context, userID int64) (*entity.Address, error) {
	query := `SELECT id, fk_user_id, city, street, house FROM addresses WHERE fk_user_id = ?`

	address := &entity.Address{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, userID).
		Scan(&address.ID, &address.UserID, &address.City, &address.Street, &address.House)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get address of user %d: %w", userID, err)
	}
	return address, nil
}

// SaveAddress inserts the user's address or replaces the one already stored. A user has at
// most one address (unique fk_user_id); LAST_INSERT_ID(id) makes the existing row id come back.
func (r *AddressRepository) SaveAddress(ctx context.Context, address *entity.Address) (*entity.Address, error) {
	query := `
		INSERT INTO addresses (fk_user_id, city, street, house) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), city = VALUES(city), street = VALUES(street), house = VALUES(house)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, address.UserID, address.City, address.Street, address.House)
	if err != nil {
		return nil, fmt.Errorf("save address of user %d: %w", address.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("save address of user %d: %w", address.UserID, err)
	}

	address.ID = id
	return address, nil
}
