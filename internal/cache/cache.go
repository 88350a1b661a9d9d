// Package cache implements the Persistent Cache (§4.10): a key-addressed,
// on-disk store of computed per-facility storage records. It is
// write-through on compute and read-through on lookup, keyed by
// (workbook_path, facility_code, year, month, excel_signature).
package cache

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"; kept physically distinct from the WAL-tuned application database
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// Cache is the persistent storage-record cache.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (or attaches to) the cache database at path and ensures its
// schema exists.
func New(path string, log zerolog.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "open cache database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, waterr.Wrap(waterr.StorageBackendError, "ping cache database", err)
	}
	c := &Cache{db: db, log: log.With().Str("component", "storage_cache").Logger()}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	const schema = `
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
	_, err := c.db.Exec(schema)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "migrate cache schema", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

type cachedRecord struct {
	FacilityCode        string
	Year                int
	Month               int
	OpeningVolumeM3     float64
	ClosingVolumeM3     float64
	LevelPercent        float64
	InflowManualM3      float64
	OutflowManualM3     float64
	InflowTotalM3       float64
	OutflowTotalM3      float64
	RainfallVolumeM3    float64
	EvaporationVolumeM3 float64
	AbstractionToPlantM3 float64
	OverflowM3          float64
	DeficitM3           float64
	Warnings            []string
}

func toCached(rec domain.StorageRecord) cachedRecord {
	return cachedRecord{
		FacilityCode:         rec.FacilityCode,
		Year:                 rec.Period.Year,
		Month:                rec.Period.Month,
		OpeningVolumeM3:      rec.OpeningVolumeM3,
		ClosingVolumeM3:      rec.ClosingVolumeM3,
		LevelPercent:         rec.LevelPercent,
		InflowManualM3:       rec.InflowManualM3,
		OutflowManualM3:      rec.OutflowManualM3,
		InflowTotalM3:        rec.InflowTotalM3,
		OutflowTotalM3:       rec.OutflowTotalM3,
		RainfallVolumeM3:     rec.RainfallVolumeM3,
		EvaporationVolumeM3:  rec.EvaporationVolumeM3,
		AbstractionToPlantM3: rec.AbstractionToPlantM3,
		OverflowM3:           rec.OverflowM3,
		DeficitM3:            rec.DeficitM3,
		Warnings:             rec.Warnings,
	}
}

func fromCached(c cachedRecord) domain.StorageRecord {
	return domain.StorageRecord{
		FacilityCode:         c.FacilityCode,
		Period:               domain.CalculationPeriod{Year: c.Year, Month: c.Month},
		OpeningVolumeM3:      c.OpeningVolumeM3,
		ClosingVolumeM3:      c.ClosingVolumeM3,
		LevelPercent:         c.LevelPercent,
		InflowManualM3:       c.InflowManualM3,
		OutflowManualM3:      c.OutflowManualM3,
		InflowTotalM3:        c.InflowTotalM3,
		OutflowTotalM3:       c.OutflowTotalM3,
		RainfallVolumeM3:     c.RainfallVolumeM3,
		EvaporationVolumeM3:  c.EvaporationVolumeM3,
		AbstractionToPlantM3: c.AbstractionToPlantM3,
		OverflowM3:           c.OverflowM3,
		DeficitM3:            c.DeficitM3,
		Warnings:             c.Warnings,
	}
}

// Get performs a read-through lookup for (workbookPath, facilityCode,
// period, signature). The second return value is false on a cache miss.
func (c *Cache) Get(workbookPath, facilityCode string, period domain.CalculationPeriod, signature string) (domain.StorageRecord, bool) {
	var payload []byte
	var storedSig string
	err := c.db.QueryRow(
		`SELECT excel_signature, payload FROM storage_record_cache
		 WHERE workbook_path = ? AND facility_code = ? AND year = ? AND month = ?`,
		workbookPath, facilityCode, period.Year, period.Month,
	).Scan(&storedSig, &payload)
	if err != nil {
		return domain.StorageRecord{}, false
	}
	if storedSig != signature {
		return domain.StorageRecord{}, false
	}

	var cr cachedRecord
	if err := msgpack.Unmarshal(payload, &cr); err != nil {
		c.log.Warn().Err(err).Msg("cache payload corrupt; treating as miss")
		return domain.StorageRecord{}, false
	}
	return fromCached(cr), true
}

// Put writes the record through to disk, keyed on the current signature.
func (c *Cache) Put(workbookPath string, period domain.CalculationPeriod, signature string, rec domain.StorageRecord) error {
	payload, err := msgpack.Marshal(toCached(rec))
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "encode cache payload", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO storage_record_cache (workbook_path, facility_code, year, month, excel_signature, payload, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workbook_path, facility_code, year, month) DO UPDATE SET
			excel_signature = excluded.excel_signature,
			payload = excluded.payload,
			written_at = excluded.written_at`,
		workbookPath, rec.FacilityCode, period.Year, period.Month, signature, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "write cache entry", err)
	}
	return nil
}

// PurgeForWorkbook drops every cache entry for workbookPath, used by
// Reload().
func (c *Cache) PurgeForWorkbook(workbookPath string) error {
	_, err := c.db.Exec(`DELETE FROM storage_record_cache WHERE workbook_path = ?`, workbookPath)
	if err != nil {
		return waterr.Wrap(waterr.StorageBackendError, "purge cache for workbook", err)
	}
	return nil
}
