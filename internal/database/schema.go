package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(120) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(20)  NOT NULL DEFAULT 'customer',
		created_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS products (
		id             BIGINT AUTO_INCREMENT PRIMARY KEY,
		name           VARCHAR(200)   NOT NULL,
		slug           VARCHAR(220)   NOT NULL,
		description    TEXT           NULL,
		category       VARCHAR(80)    NOT NULL DEFAULT '',
		price          DECIMAL(12,2)  NOT NULL,
		image          VARCHAR(500)   NOT NULL DEFAULT '',
		weight         DECIMAL(8,3)   NOT NULL DEFAULT 0,
		count_in_stock INT            NOT NULL DEFAULT 0,
		created_at     DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at     DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_products_slug (slug),
		KEY idx_products_category (category)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                    BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id               BIGINT         NOT NULL,
		shipping_address      JSON           NOT NULL,
		payment_method        VARCHAR(30)    NOT NULL,
		items_price           DECIMAL(12,2)  NOT NULL,
		shipping_price        DECIMAL(12,2)  NOT NULL,
		tax_price             DECIMAL(12,2)  NOT NULL,
		discount              DECIMAL(12,2)  NOT NULL DEFAULT 0,
		total_price           DECIMAL(12,2)  NOT NULL,
		promo_code            VARCHAR(40)    NULL,
		is_paid               TINYINT(1)     NOT NULL DEFAULT 0,
		paid_at               DATETIME(3)    NULL,
		payment_reference     VARCHAR(100)   NULL,
		status                VARCHAR(20)    NOT NULL DEFAULT 'Pending',
		tracking_number       VARCHAR(100)   NULL,
		cancel_reason         VARCHAR(500)   NULL,
		cancelled_at          DATETIME(3)    NULL,
		delivered_at          DATETIME(3)    NULL,
		delivery_confirmed_at DATETIME(3)    NULL,
		created_at            DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at            DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		KEY idx_orders_user (user_id, created_at),
		KEY idx_orders_status (status, is_paid),
		CONSTRAINT fk_orders_user FOREIGN KEY (user_id) REFERENCES users(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id               BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id         BIGINT        NOT NULL,
		product_id       BIGINT        NOT NULL,
		name             VARCHAR(200)  NOT NULL,
		image            VARCHAR(500)  NOT NULL DEFAULT '',
		price            DECIMAL(12,2) NOT NULL,
		qty              INT           NOT NULL,
		size             VARCHAR(20)   NOT NULL DEFAULT '',
		color            VARCHAR(40)   NOT NULL DEFAULT '',
		is_custom_design TINYINT(1)    NOT NULL DEFAULT 0,
		KEY idx_order_items_order (order_id),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payments (
		id               BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id         BIGINT       NOT NULL,
		user_id          BIGINT       NOT NULL,
		reference        VARCHAR(100) NOT NULL,
		amount           BIGINT       NOT NULL,
		currency         CHAR(3)      NOT NULL DEFAULT 'NGN',
		status           VARCHAR(20)  NOT NULL DEFAULT 'pending',
		channel          VARCHAR(40)  NULL,
		gateway_response VARCHAR(255) NULL,
		paid_at          DATETIME(3)  NULL,
		created_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_payments_reference (reference),
		KEY idx_payments_order (order_id, status),
		CONSTRAINT fk_payments_order FOREIGN KEY (order_id) REFERENCES orders(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS carts (
		user_id    BIGINT      PRIMARY KEY,
		payload    JSON        NOT NULL,
		updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		CONSTRAINT fk_carts_user FOREIGN KEY (user_id) REFERENCES users(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS webhook_events (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		event_key   VARCHAR(191) NOT NULL,
		event       VARCHAR(60)  NOT NULL,
		reference   VARCHAR(100) NULL,
		received_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_webhook_events_key (event_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database: migrate statement %d: %w", i+1, err)
		}
	}
	slog.Info("database schema up to date", "tables", len(schema))
	return nil
}
