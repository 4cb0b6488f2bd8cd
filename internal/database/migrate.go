package database

import (
	"context"
	"database/sql"
	"fmt"
)

// unique_code is indexed but not unique: a value may come back once the
// code holding it has been deactivated.  Uniqueness among active codes is
// checked by the issuing transaction.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seat_code VARCHAR(10) NOT NULL,
		row_letter CHAR(1) NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		is_vip TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seat_code (seat_code),
		KEY idx_row_seat (row_letter, seat_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_codes (
		id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seat_id INT UNSIGNED NOT NULL,
		unique_code VARCHAR(5) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		is_used TINYINT(1) NOT NULL DEFAULT 0,
		expires_at DATETIME NOT NULL,
		used_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_codes_seat FOREIGN KEY (seat_id) REFERENCES seats(id) ON DELETE CASCADE,
		KEY idx_unique_code (unique_code),
		KEY idx_seat_active (seat_id, is_active),
		KEY idx_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS seat_sessions (
		id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seat_id INT UNSIGNED NOT NULL,
		code_id INT UNSIGNED NOT NULL,
		user_ip VARCHAR(64) NULL,
		status ENUM('active','completed','ended','expired') NOT NULL DEFAULT 'active',
		accessed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		session_end DATETIME NULL,
		CONSTRAINT fk_sessions_seat FOREIGN KEY (seat_id) REFERENCES seats(id) ON DELETE CASCADE,
		CONSTRAINT fk_sessions_code FOREIGN KEY (code_id) REFERENCES seat_codes(id) ON DELETE CASCADE,
		KEY idx_seat_status (seat_id, status),
		KEY idx_accessed (accessed_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_physical_status (
		seat_id INT UNSIGNED PRIMARY KEY,
		physical_status ENUM('waiting','pending') NOT NULL DEFAULT 'waiting',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_physical_seat FOREIGN KEY (seat_id) REFERENCES seats(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables when they do not exist yet.  It is safe to
// run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
