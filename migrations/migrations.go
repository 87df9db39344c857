package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// statements are applied in order; each is idempotent.
var statements = []struct {
	name  string
	query string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(50) NOT NULL,
			email VARCHAR(50) NOT NULL,
			password VARCHAR(255) NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'USER',
			first_name VARCHAR(50) NOT NULL DEFAULT '',
			last_name VARCHAR(50) NOT NULL DEFAULT '',
			phone VARCHAR(20) NOT NULL DEFAULT '',
			UNIQUE KEY username_idx (username),
			UNIQUE KEY email_idx (email)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{"addresses", `
		CREATE TABLE IF NOT EXISTS addresses (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			fk_user_id BIGINT NOT NULL,
			city VARCHAR(100) NOT NULL,
			street VARCHAR(100) NOT NULL,
			house VARCHAR(20) NOT NULL,
			UNIQUE KEY addresses_user_idx (fk_user_id),
			FOREIGN KEY (fk_user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{"products", `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			UNIQUE KEY products_name_idx (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			fk_user_id BIGINT NOT NULL,
			order_date DATETIME(6) NOT NULL,
			status VARCHAR(20) NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			KEY orders_user_status_idx (fk_user_id, status),
			FOREIGN KEY (fk_user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	// No unique (fk_order_id, fk_product_id): positional updates move products between
	// rows one statement at a time.
	{"order_items", `
		CREATE TABLE IF NOT EXISTS order_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			fk_order_id BIGINT NOT NULL,
			fk_product_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			KEY order_items_order_idx (fk_order_id),
			FOREIGN KEY (fk_order_id) REFERENCES orders(id) ON DELETE CASCADE,
			FOREIGN KEY (fk_product_id) REFERENCES products(id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
}

// AutoMigrate creates the tables if they do not exist, retrying each statement while the
// database is still starting up.
func AutoMigrate(ctx context.Context, db *sql.DB, retries int, backoff time.Duration) error {
	for _, st := range statements {
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if _, err = db.ExecContext(ctx, st.query); err == nil {
				break
			}
			logger.Warn().Err(err).Msgf("Retry %d: failed to migrate %s table", attempt+1, st.name)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err != nil {
			return fmt.Errorf("migrate %s table: %w", st.name, err)
		}
		logger.Info().Msgf("Table %s is up to date", st.name)
	}
	return nil
}
