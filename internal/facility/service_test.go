package facility

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := conn.Exec(database.AppSchema); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func surfaceArea(v float64) *float64 { return &v }
func lined(v bool) *bool             { return &v }

func TestServiceCreateEnforcesInvariants(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn, zerolog.Nop())
	svc := NewService(repo, zerolog.Nop(), nil)

	f := &domain.StorageFacility{
		Code:          "TSF1",
		Name:          "Tailings Storage Facility 1",
		FacilityType:  domain.FacilityTSF,
		CapacityM3:    500000,
		SurfaceAreaM2: surfaceArea(10000),
		IsLined:       lined(true),
	}

	created, err := svc.Create(f)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	// Duplicate code must fail.
	_, err = svc.Create(&domain.StorageFacility{
		Code: "TSF1", Name: "dup", FacilityType: domain.FacilityPond, CapacityM3: 1,
	})
	if !waterr.Is(err, waterr.DuplicateCode) {
		t.Fatalf("expected DuplicateCode, got %v", err)
	}
}

func TestServiceCreateCoercesTankLining(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn, zerolog.Nop())
	svc := NewService(repo, zerolog.Nop(), nil)

	created, err := svc.Create(&domain.StorageFacility{
		Code: "TANK1", Name: "Process Water Tank", FacilityType: domain.FacilityTank,
		CapacityM3: 1000, IsLined: lined(true),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.IsLined != nil {
		t.Fatalf("expected is_lined coerced to nil for Tank, got %v", *created.IsLined)
	}
}

func TestServiceDeleteRefusesActive(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn, zerolog.Nop())
	svc := NewService(repo, zerolog.Nop(), nil)

	created, err := svc.Create(&domain.StorageFacility{
		Code: "POND1", Name: "Evaporation Pond", FacilityType: domain.FacilityPond, CapacityM3: 2000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(created.ID); !waterr.Is(err, waterr.InvariantViolation) {
		t.Fatalf("expected InvariantViolation deleting active facility, got %v", err)
	}

	if err := svc.Update(created.ID, map[string]interface{}{"status": string(domain.StatusInactive)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := svc.Delete(created.ID); err != nil {
		t.Fatalf("Delete after deactivation: %v", err)
	}
}

func TestServiceInvalidationHookFires(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn, zerolog.Nop())

	var notified []string
	svc := NewService(repo, zerolog.Nop(), func(code string) {
		notified = append(notified, code)
	})

	if _, err := svc.Create(&domain.StorageFacility{
		Code: "DAM1", Name: "Dam 1", FacilityType: domain.FacilityDam, CapacityM3: 3000,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(notified) != 1 || notified[0] != "DAM1" {
		t.Fatalf("expected invalidation hook called with DAM1, got %v", notified)
	}
}
