package migrations

// InitialSchema creates the vessel, task, check, entry and stats tables
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS vessels (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mmsi TEXT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS tracking_tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			vessel_id TEXT NOT NULL REFERENCES vessels (id) ON DELETE CASCADE,
			task_type TEXT NOT NULL DEFAULT 'ais_check',
			interval_hours INTEGER NOT NULL CHECK (interval_hours >= 1),
			last_run TIMESTAMPTZ,
			next_run TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		-- One task of each type per vessel
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tracking_tasks_vessel_type
			ON tracking_tasks (vessel_id, task_type);

		CREATE TABLE IF NOT EXISTS position_checks (
			id TEXT PRIMARY KEY,
			vessel_id TEXT NOT NULL REFERENCES vessels (id) ON DELETE CASCADE,
			check_time TIMESTAMPTZ NOT NULL,
			is_moving BOOLEAN NOT NULL,
			speed_knots DOUBLE PRECISION,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			source TEXT NOT NULL DEFAULT 'scheduled',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sea_time_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			vessel_id TEXT NOT NULL REFERENCES vessels (id) ON DELETE CASCADE,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			duration_hours DOUBLE PRECISION,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'confirmed', 'rejected')),
			start_latitude DOUBLE PRECISION,
			start_longitude DOUBLE PRECISION,
			end_latitude DOUBLE PRECISION,
			end_longitude DOUBLE PRECISION,
			service_type TEXT NOT NULL DEFAULT 'actual_sea_service',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS scheduler_stats (
			time TIMESTAMPTZ NOT NULL,
			total_ticks BIGINT NOT NULL,
			skipped_ticks BIGINT NOT NULL,
			tasks_processed BIGINT NOT NULL,
			tasks_failed BIGINT NOT NULL,
			checks_stored BIGINT NOT NULL,
			entries_created BIGINT NOT NULL,
			manual_checks BIGINT NOT NULL,
			poll_failures JSONB NOT NULL DEFAULT '{}',
			uptime_seconds BIGINT NOT NULL
		);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS scheduler_stats;
		DROP TABLE IF EXISTS sea_time_entries;
		DROP TABLE IF EXISTS position_checks;
		DROP TABLE IF EXISTS tracking_tasks;
		DROP TABLE IF EXISTS vessels;
	`,
}
