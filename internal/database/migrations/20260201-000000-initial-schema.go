package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260201-000000",
		Description: "Initial schema: stores, patterns, products, listings, price history, subscriptions, notifications",
		Up: []string{
			// Store - one per domain.
			`CREATE TABLE IF NOT EXISTS stores (
				id TEXT PRIMARY KEY,
				domain TEXT UNIQUE NOT NULL,
				active INTEGER NOT NULL DEFAULT 1,
				rate_limit_seconds REAL NOT NULL DEFAULT 2.0,
				currency_hint TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stores_domain ON stores(domain)`,

			// Pattern - the active extraction recipe for a store (denormalized view of the active PatternVersion).
			`CREATE TABLE IF NOT EXISTS patterns (
				id TEXT PRIMARY KEY,
				domain TEXT UNIQUE NOT NULL,
				pattern_json TEXT NOT NULL,
				last_validated TEXT,
				total_attempts INTEGER NOT NULL DEFAULT 0,
				successful_attempts INTEGER NOT NULL DEFAULT 0,
				success_rate REAL NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (domain) REFERENCES stores(domain) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_patterns_domain ON patterns(domain)`,

			// PatternVersion - immutable snapshot for history.
			`CREATE TABLE IF NOT EXISTS pattern_versions (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL,
				version_number INTEGER NOT NULL,
				pattern_json TEXT NOT NULL,
				content_digest TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				change_reason TEXT,
				change_type TEXT NOT NULL DEFAULT 'auto_generated',
				total_attempts INTEGER NOT NULL DEFAULT 0,
				successful_attempts INTEGER NOT NULL DEFAULT 0,
				success_rate REAL NOT NULL DEFAULT 0,
				FOREIGN KEY (domain) REFERENCES stores(domain) ON DELETE CASCADE
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_pattern_versions_domain_version ON pattern_versions(domain, version_number)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_pattern_versions_domain_active ON pattern_versions(domain) WHERE is_active = 1`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_versions_domain_created ON pattern_versions(domain, created_at DESC)`,

			// Product - a logical item, identity independent of any one store.
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				canonical_name TEXT NOT NULL,
				brand TEXT,
				ean TEXT,
				upc TEXT,
				isbn TEXT,
				image_url TEXT,
				subscriber_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// ProductListing - a (Product, Store) pair with a concrete URL.
			`CREATE TABLE IF NOT EXISTS product_listings (
				id TEXT PRIMARY KEY,
				product_id TEXT NOT NULL,
				store_id TEXT NOT NULL,
				url TEXT NOT NULL,
				url_base TEXT NOT NULL,
				current_price REAL,
				currency TEXT,
				available INTEGER NOT NULL DEFAULT 0,
				last_checked TEXT,
				last_available TEXT,
				extractor_version_id TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE,
				FOREIGN KEY (store_id) REFERENCES stores(id) ON DELETE CASCADE,
				FOREIGN KEY (extractor_version_id) REFERENCES pattern_versions(id) ON DELETE SET NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_store_urlbase_active ON product_listings(store_id, url_base) WHERE active = 1`,
			`CREATE INDEX IF NOT EXISTS idx_listings_last_checked ON product_listings(last_checked)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_product ON product_listings(product_id)`,

			// PriceHistory - append-only.
			`CREATE TABLE IF NOT EXISTS price_history (
				id TEXT PRIMARY KEY,
				listing_id TEXT NOT NULL,
				price REAL,
				currency TEXT,
				available INTEGER NOT NULL DEFAULT 0,
				recorded_at TEXT NOT NULL,
				extraction_method TEXT,
				confidence REAL NOT NULL DEFAULT 0,
				FOREIGN KEY (listing_id) REFERENCES product_listings(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_price_history_listing_recorded ON price_history(listing_id, recorded_at DESC)`,

			// UserSubscription.
			`CREATE TABLE IF NOT EXISTS user_subscriptions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				product_id TEXT NOT NULL,
				priority TEXT NOT NULL DEFAULT 'normal',
				target_price REAL,
				notify_on_drop INTEGER NOT NULL DEFAULT 1,
				notify_on_restock INTEGER NOT NULL DEFAULT 1,
				notify_on_target INTEGER NOT NULL DEFAULT 1,
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_user_product ON user_subscriptions(user_id, product_id)`,

			// Notification.
			`CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				product_id TEXT NOT NULL,
				type TEXT NOT NULL,
				old_price REAL,
				new_price REAL,
				message TEXT NOT NULL,
				created_at TEXT NOT NULL,
				read INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_user_product_type_created ON notifications(user_id, product_id, type, created_at DESC)`,
		},
	})
}
