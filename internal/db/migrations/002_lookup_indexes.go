package migrations

// LookupIndexes adds the indexes the scheduler queries rely on
var LookupIndexes = &Migration{
	ID:   "002_lookup_indexes",
	Name: "002_lookup_indexes",
	UpSQL: `
		-- Due task scan
		CREATE INDEX IF NOT EXISTS idx_tracking_tasks_due
			ON tracking_tasks (next_run) WHERE is_active;

		-- 24h window and most-recent reads
		CREATE INDEX IF NOT EXISTS idx_position_checks_vessel_time
			ON position_checks (vessel_id, check_time DESC);

		-- Calendar day dedupe and open entry lookup
		CREATE INDEX IF NOT EXISTS idx_sea_time_entries_user_start
			ON sea_time_entries (user_id, start_time);
		CREATE INDEX IF NOT EXISTS idx_sea_time_entries_open
			ON sea_time_entries (vessel_id) WHERE end_time IS NULL;

		CREATE INDEX IF NOT EXISTS idx_vessels_user
			ON vessels (user_id);
		CREATE INDEX IF NOT EXISTS idx_scheduler_stats_time
			ON scheduler_stats (time DESC);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_scheduler_stats_time;
		DROP INDEX IF EXISTS idx_vessels_user;
		DROP INDEX IF EXISTS idx_sea_time_entries_open;
		DROP INDEX IF EXISTS idx_sea_time_entries_user_start;
		DROP INDEX IF EXISTS idx_position_checks_vessel_time;
		DROP INDEX IF EXISTS idx_tracking_tasks_due;
	`,
}
