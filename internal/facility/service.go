package facility

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/domain"
	"github.com/aristath/waterbalance/internal/waterr"
)

// InvalidationHook is called after any mutation so dependent caches (the
// calculator's persistent cache, the engine's in-memory results) can be
// invalidated.
type InvalidationHook func(facilityCode string)

// Service enforces facility invariants and smart rules on top of Repository.
type Service struct {
	repo      *Repository
	log       zerolog.Logger
	onMutate  InvalidationHook
}

// NewService constructs a facility Service.
func NewService(repo *Repository, log zerolog.Logger, onMutate InvalidationHook) *Service {
	return &Service{
		repo:     repo,
		log:      log.With().Str("service", "facility").Logger(),
		onMutate: onMutate,
	}
}

func (s *Service) notify(code string) {
	if s.onMutate != nil {
		s.onMutate(code)
	}
}

// GetAll delegates to the repository.
func (s *Service) GetAll() ([]*domain.StorageFacility, error) {
	return s.repo.GetAll()
}

// GetByID delegates to the repository.
func (s *Service) GetByID(id int64) (*domain.StorageFacility, error) {
	return s.repo.GetByID(id)
}

// GetByCode delegates to the repository.
func (s *Service) GetByCode(code string) (*domain.StorageFacility, error) {
	return s.repo.GetByCode(code)
}

// ListByStatus delegates to the repository.
func (s *Service) ListByStatus(status domain.FacilityStatus) ([]*domain.StorageFacility, error) {
	return s.repo.ListByStatus(status)
}

// Create validates invariants, coerces Tank lining to null, and persists a
// new facility.
func (s *Service) Create(f *domain.StorageFacility) (*domain.StorageFacility, error) {
	f.NormalizeLining()
	if f.Status == "" {
		f.Status = domain.StatusActive
	}
	if err := f.Validate(); err != nil {
		return nil, waterr.Wrap(waterr.InvariantViolation, "facility validation failed", err)
	}

	created, err := s.repo.Insert(f)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("code", created.Code).Msg("facility created")
	s.notify(created.Code)
	return created, nil
}

// Update validates and applies a partial update; current_volume_m3 and
// capacity_m3 are merged onto the existing record and the result is
// validated, so volume never exceeds capacity after the write. Tank lining is re-coerced to null whenever
// facility_type is updated to Tank.
func (s *Service) Update(id int64, fields map[string]interface{}) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	merged := *existing
	if v, ok := fields["facility_type"]; ok {
		merged.FacilityType = domain.FacilityType(fmt.Sprint(v))
	}
	if v, ok := fields["capacity_m3"]; ok {
		if f, ok := v.(float64); ok {
			merged.CapacityM3 = f
		}
	}
	if v, ok := fields["current_volume_m3"]; ok {
		if f, ok := v.(float64); ok {
			merged.CurrentVolumeM3 = f
		}
	}

	merged.NormalizeLining()
	if merged.FacilityType == domain.FacilityTank {
		fields["is_lined"] = nil
	}

	if err := merged.Validate(); err != nil {
		return waterr.Wrap(waterr.InvariantViolation, "facility update validation failed", err)
	}

	if err := s.repo.Update(id, fields); err != nil {
		return err
	}

	s.log.Info().Str("code", existing.Code).Msg("facility updated")
	s.notify(existing.Code)
	return nil
}

// Delete refuses to remove an active facility.
func (s *Service) Delete(id int64) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if existing.Status == domain.StatusActive {
		return waterr.New(waterr.InvariantViolation, "cannot delete an active facility")
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.log.Info().Str("code", existing.Code).Msg("facility deleted")
	s.notify(existing.Code)
	return nil
}
