package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"donorlink/internal/donor/metrics"
	"donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/platform/sentinel"
	"donorlink/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store persists donors. Implementations return sentinel errors.
type Store interface {
	Create(ctx context.Context, donor *models.Donor) error
	FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*models.Donor, error)
	FindByIDs(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error)
	FindMatching(ctx context.Context, q models.Query, limit int) ([]*models.Donor, error)
	Search(ctx context.Context, q models.Query, page models.PageRequest) ([]*models.Donor, int, error)
	SearchAvailable(ctx context.Context, q models.Query, page models.PageRequest) (*models.SearchResult, error)
	Execute(ctx context.Context, donorID id.DonorID, fn func(*models.Donor) error) (*models.Donor, error)
}

// Service is the donor directory: registration, eligibility-annotated search,
// and the availability write-back used by the contact ledger.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and stores a new donor. Email and phone uniqueness is
// checked up front and again by the store's unique constraint.
func (s *Service) Register(ctx context.Context, reg models.Registration) (*models.Donor, error) {
	donor, err := models.NewDonor(id.NewDonorID(), reg, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindByEmailOrPhone(ctx, donor.Email, donor.Phone)
	switch {
	case err == nil && existing != nil:
		s.incrementConflict()
		return nil, dErrors.New(dErrors.CodeConflict, "Donor with this email or phone already exists")
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, wrapStoreErr(err, "failed to check existing donor")
	}

	if err := s.store.Create(ctx, donor); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.incrementConflict()
			return nil, dErrors.New(dErrors.CodeConflict, "Duplicate entry. Email or phone already exists")
		}
		return nil, wrapStoreErr(err, "failed to register donor")
	}

	s.logger.InfoContext(ctx, "donor registered",
		"request_id", requestcontext.RequestID(ctx),
		"donor_id", donor.ID,
		"district", donor.District,
		"blood_group", donor.BloodGroup,
	)
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	return donor, nil
}

// Get returns a donor by id.
func (s *Service) Get(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	donor, err := s.store.FindByID(ctx, donorID)
	if err != nil {
		return nil, wrapNotFound(err, "Donor not found", "failed to load donor")
	}
	return donor, nil
}

// FindEligibleDonors returns up to limit active, willing donors for an exact
// district and blood group, available donors first and most recently updated
// first within a tag. Eligibility is not a filter.
func (s *Service) FindEligibleDonors(ctx context.Context, district models.District, group models.BloodGroup, limit int) ([]*models.Donor, error) {
	start := time.Now()
	defer s.observeSearch("matching", start)

	donors, err := s.store.FindMatching(ctx, models.Query{District: district, BloodGroup: group}, limit)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to query donors")
	}
	return donors, nil
}

// Search returns one page of matchable donors ordered by last donation
// (never-donated first) with the total count.
func (s *Service) Search(ctx context.Context, q models.Query, page models.PageRequest) ([]*models.Donor, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	start := time.Now()
	defer s.observeSearch("search", start)

	donors, total, err := s.store.Search(ctx, q, page)
	if err != nil {
		return nil, 0, wrapStoreErr(err, "failed to search donors")
	}
	return donors, total, nil
}

// SearchAvailable returns one page in matching order with availability counts.
func (s *Service) SearchAvailable(ctx context.Context, q models.Query, page models.PageRequest) (*models.SearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.observeSearch("available", start)

	res, err := s.store.SearchAvailable(ctx, q, page)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to search donors")
	}
	return res, nil
}

// FindByIDs returns the donors that exist among ids.
func (s *Service) FindByIDs(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error) {
	donors, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load donors")
	}
	return donors, nil
}

// RecordContact stores a request-independent outreach outcome on a donor.
func (s *Service) RecordContact(ctx context.Context, donorID id.DonorID, outcome models.ContactOutcome) (*models.Donor, error) {
	if !outcome.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of contacted, unavailable, donated_recently")
	}
	now := requestcontext.Now(ctx)
	donor, err := s.store.Execute(ctx, donorID, func(d *models.Donor) error {
		d.ApplyContact(outcome, now)
		return nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "Donor not found", "failed to record donor contact")
	}
	s.logger.InfoContext(ctx, "donor contact recorded",
		"request_id", requestcontext.RequestID(ctx),
		"donor_id", donorID,
		"status", outcome,
	)
	if s.metrics != nil {
		s.metrics.IncrementContact(string(outcome))
	}
	return donor, nil
}

// UpdateAvailability overwrites the directory availability tag. Fails
// NotFound for an unknown donor.
func (s *Service) UpdateAvailability(ctx context.Context, donorID id.DonorID, availability models.Availability) error {
	if !availability.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown availability "+string(availability))
	}
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, donorID, func(d *models.Donor) error {
		d.ApplyAvailability(availability, now)
		return nil
	})
	if err != nil {
		return wrapNotFound(err, "Donor not found", "failed to update donor availability")
	}
	if s.metrics != nil {
		s.metrics.IncrementAvailability(string(availability))
	}
	return nil
}

func (s *Service) incrementConflict() {
	if s.metrics != nil {
		s.metrics.IncrementConflict()
	}
}

func (s *Service) observeSearch(kind string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSearch(kind, start)
	}
}

func wrapNotFound(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return wrapStoreErr(err, internalMsg)
}

// wrapStoreErr keeps coded errors (including those returned by Execute
// callbacks) and surfaces deadlines as retriable.
func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "donor directory timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
