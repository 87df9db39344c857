package entity

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"-"` // bcrypt hash
	Role      UserRole `json:"role"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone"`
	Address   *Address `json:"address,omitempty"` // loaded on demand, not a column
}

// Address is the single delivery address of a user.
type Address struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	City   string `json:"city"`
	Street string `json:"street"`
	House  string `json:"house"`
}

/*
Mysql Schema:
CREATE TABLE users (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	username VARCHAR(50) NOT NULL,
	email VARCHAR(50) NOT NULL,
	password VARCHAR(255) NOT NULL,
	role VARCHAR(10) NOT NULL DEFAULT 'USER',
	first_name VARCHAR(50) NOT NULL DEFAULT '',
	last_name VARCHAR(50) NOT NULL DEFAULT '',
	phone VARCHAR(20) NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX username_idx ON users(username);
CREATE UNIQUE INDEX email_idx ON users(email);

CREATE TABLE addresses (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	fk_user_id BIGINT NOT NULL,
	city VARCHAR(100) NOT NULL,
	street VARCHAR(100) NOT NULL,
	house VARCHAR(20) NOT NULL
);

CREATE UNIQUE INDEX addresses_user_idx ON addresses(fk_user_id);
*/
