package database

// AppSchema is the schema for the primary application database: facility
// topology, monthly parameters, storage history, transfers, environmental
// data, constants, and alerts.
const AppSchema = `
CREATE TABLE IF NOT EXISTS storage_facilities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	facility_type TEXT NOT NULL,
	capacity_m3 REAL NOT NULL CHECK (capacity_m3 > 0),
	surface_area_m2 REAL,
	current_volume_m3 REAL NOT NULL DEFAULT 0,
	is_lined INTEGER,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS facility_monthly_parameters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	facility_id INTEGER NOT NULL REFERENCES storage_facilities(id) ON DELETE CASCADE,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	total_inflows_m3 REAL NOT NULL DEFAULT 0,
	total_outflows_m3 REAL NOT NULL DEFAULT 0,
	UNIQUE (facility_id, year, month)
);

CREATE TABLE IF NOT EXISTS storage_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	facility_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	opening_volume_m3 REAL NOT NULL,
	closing_volume_m3 REAL NOT NULL,
	delta_m3 REAL NOT NULL,
	data_source TEXT NOT NULL,
	UNIQUE (facility_code, year, month)
);
CREATE INDEX IF NOT EXISTS idx_storage_history_period ON storage_history(year, month);

CREATE TABLE IF NOT EXISTS facility_transfers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_facility_code TEXT NOT NULL,
	dest_facility_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	volume_m3 REAL NOT NULL CHECK (volume_m3 > 0),
	transfer_method TEXT NOT NULL,
	CHECK (source_facility_code <> dest_facility_code)
);
CREATE INDEX IF NOT EXISTS idx_facility_transfers_period ON facility_transfers(year, month);

CREATE TABLE IF NOT EXISTS environmental_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	rainfall_mm REAL NOT NULL DEFAULT 0,
	evaporation_mm REAL NOT NULL DEFAULT 0,
	UNIQUE (year, month)
);

CREATE TABLE IF NOT EXISTS environmental_data_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	changed_at TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	field TEXT NOT NULL,
	old_value REAL,
	new_value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS system_constants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	constant_key TEXT NOT NULL UNIQUE,
	constant_value REAL NOT NULL,
	min_value REAL,
	max_value REAL,
	unit TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	editable INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS system_constants_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	changed_at TEXT NOT NULL,
	constant_key TEXT NOT NULL,
	old_value REAL,
	new_value REAL NOT NULL,
	updated_by TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alert_rules (
	rule_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	operator TEXT NOT NULL,
	threshold REAL NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	message_template TEXT NOT NULL,
	show_popup INTEGER NOT NULL DEFAULT 0,
	auto_resolve INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_id TEXT NOT NULL REFERENCES alert_rules(rule_id),
	calculation_date TEXT NOT NULL,
	facility_id INTEGER,
	source_id TEXT,
	metric_value REAL NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	resolved_by TEXT,
	created_at TEXT NOT NULL,
	last_checked_at TEXT NOT NULL,
	resolved_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(rule_id, calculation_date, facility_id, source_id, status);
`

// CacheSchema is the schema for the persistent storage-record cache
// database (see internal/cache).
const CacheSchema = `
CREATE TABLE IF NOT EXISTS storage_record_cache (
	workbook_path TEXT NOT NULL,
	facility_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	excel_signature TEXT NOT NULL,
	payload BLOB NOT NULL,
	written_at TEXT NOT NULL,
	PRIMARY KEY (workbook_path, facility_code, year, month)
);
CREATE INDEX IF NOT EXISTS idx_storage_record_cache_signature ON storage_record_cache(workbook_path, excel_signature);
`
