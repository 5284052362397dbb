package sqlite

import (
	"context"
	"fmt"
)

// AppSchema is the subset of the application backend's tables that sitecalm
// reads or writes. Production databases are migrated by the backend itself;
// this exists for tests and local development.
const AppSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS campaigns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	description TEXT,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT,
	slug TEXT NOT NULL UNIQUE,
	file_path TEXT,
	thumbnail_path TEXT,
	cta_text TEXT,
	cta_url TEXT,
	weight INTEGER NOT NULL DEFAULT 1,
	duration INTEGER,
	status TEXT NOT NULL DEFAULT 'draft'
);

CREATE TABLE IF NOT EXISTS analytics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
	campaign_id INTEGER REFERENCES campaigns(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	device_type TEXT,
	browser TEXT,
	os TEXT,
	country TEXT,
	city TEXT,
	referrer TEXT,
	additional_data TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func CreateAppSchema(ctx context.Context, db *AppDB) error {
	if _, err := db.ExecContext(ctx, AppSchema); err != nil {
		return fmt.Errorf("failed to create application schema: %w", err)
	}
	return nil
}
