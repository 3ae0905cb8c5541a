package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/outbox"
	"donorlink/internal/platform/lock"
	"donorlink/internal/request/metrics"
	"donorlink/internal/request/models"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/platform/middleware/metadata"
	"donorlink/pkg/platform/sentinel"
	"donorlink/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Directory,Matcher,Outbox,Locker,TxRunner

const (
	// ListPageSize is the admin listing page size.
	ListPageSize = 20

	maxNumberAttempts = 3
)

// Store persists blood requests. Implementations return sentinel errors.
type Store interface {
	Create(ctx context.Context, r *models.BloodRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)
	Execute(ctx context.Context, requestID id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error)
	List(ctx context.Context, filter models.ListFilter, page donormodels.PageRequest) ([]*models.BloodRequest, int, error)
	LatestByContactNumber(ctx context.Context, phone string) (*models.BloodRequest, error)
}

// Directory is the donor directory as seen by the ledger.
type Directory interface {
	FindByIDs(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*donormodels.Donor, error)
	UpdateAvailability(ctx context.Context, donorID id.DonorID, availability donormodels.Availability) error
}

// Matcher selects the donors frozen into a new request.
type Matcher interface {
	Match(ctx context.Context, district donormodels.District, group donormodels.BloodGroup) ([]*donormodels.Donor, error)
}

// Outbox records domain events in the caller's unit of work.
type Outbox interface {
	Append(ctx context.Context, event outbox.Event) error
}

// Locker serializes ledger writers on one request.
type Locker interface {
	Lock(ctx context.Context, key string) (lock.Unlock, error)
}

// TxRunner scopes a unit of work. Without one, the locker and the store's
// Execute provide atomicity.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns blood requests: matching at creation, the paginated snapshot,
// the contact ledger, and completion.
type Service struct {
	store     Store
	directory Directory
	matcher   Matcher
	outbox    Outbox
	locker    Locker
	tx        TxRunner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	numbers   func() string
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithNumberGenerator replaces the request number source.
func WithNumberGenerator(fn func() string) Option {
	return func(s *Service) {
		s.numbers = fn
	}
}

func New(store Store, directory Directory, matcher Matcher, events Outbox, opts ...Option) *Service {
	s := &Service{
		store:     store,
		directory: directory,
		matcher:   matcher,
		outbox:    events,
		locker:    lock.NewLocal(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("donorlink/request/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageDonor is one snapshot entry joined with its directory record. Donor is
// nil when the directory no longer has the record.
type PageDonor struct {
	Donor *donormodels.Donor
	Entry models.ContactEntry
}

// PageResult is one display page of a request's snapshot.
type PageResult struct {
	Request    *models.BloodRequest
	Donors     []PageDonor
	Pagination models.Pagination
}

// Detail is a request with its ledger donors populated.
type Detail struct {
	Request *models.BloodRequest
	Donors  map[id.DonorID]*donormodels.Donor
}

// ListResult is one page of the admin listing.
type ListResult struct {
	Requests    []*models.BloodRequest
	Total       int
	CurrentPage int
	TotalPages  int
}

// StatusChange is one ledger transition requested by a caller.
type StatusChange struct {
	DonorID id.DonorID
	Status  models.ContactStatus
	Notes   string
}

// Create validates the submission, freezes the current matches as the
// request's snapshot, and returns the session's current page. A zero-match
// request is still created.
func (s *Service) Create(ctx context.Context, sub models.Submission) (*PageResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if sub.SessionID == "" {
		sub.SessionID = uuid.NewString()
	}
	if sub.SubmittedByIP == "" {
		sub.SubmittedByIP = requestcontext.ClientIP(ctx)
	}
	if sub.SubmittedByUserAgent == "" {
		sub.SubmittedByUserAgent = requestcontext.UserAgent(ctx)
	}
	sub.SubmittedFrom = metadata.DescribeUserAgent(sub.SubmittedByUserAgent)

	donors, err := s.matcher.Match(ctx, sub.District, sub.BloodGroup)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to match donors")
	}
	snapshot := make([]id.DonorID, len(donors))
	byID := make(map[id.DonorID]*donormodels.Donor, len(donors))
	for i, d := range donors {
		snapshot[i] = d.ID
		byID[d.ID] = d
	}

	now := requestcontext.Now(ctx)
	requestID := id.NewRequestID()
	var req *models.BloodRequest
	for attempt := 1; ; attempt++ {
		req, err = models.NewBloodRequest(requestID, s.nextNumber(now), sub, snapshot, now)
		if err != nil {
			return nil, err
		}
		err = s.inTx(ctx, func(ctx context.Context) error {
			if err := s.store.Create(ctx, req); err != nil {
				return err
			}
			return s.appendEvent(ctx, req, outbox.EventRequestCreated, createdPayload(req))
		})
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, wrapStoreErr(err, "failed to create blood request")
		}
		if s.metrics != nil {
			s.metrics.IncrementCollision()
		}
		s.logger.WarnContext(ctx, "request number collision",
			"request_id", requestcontext.RequestID(ctx),
			"request_number", req.RequestNumber,
			"attempt", attempt,
		)
		if attempt == maxNumberAttempts {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "Could not allocate a unique request number")
		}
	}

	s.logger.InfoContext(ctx, "blood request created",
		"request_id", requestcontext.RequestID(ctx),
		"blood_request_id", req.ID,
		"request_number", req.RequestNumber,
		"district", req.District,
		"blood_group", req.BloodGroup,
		"urgency", req.Urgency,
		"matched_donors", len(snapshot),
	)
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(req.Urgency), len(snapshot))
	}

	page := req.PageOf(req.Session.CurrentPage)
	return &PageResult{
		Request:    req,
		Donors:     joinDonors(page.Entries, byID),
		Pagination: page.Pagination,
	}, nil
}

// GetPage returns one page of the frozen snapshot and records pageNum as the
// last viewed page. Out-of-range pages are empty.
func (s *Service) GetPage(ctx context.Context, requestID id.RequestID, pageNum int) (*PageResult, error) {
	if pageNum < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "page must be a positive integer")
	}
	var req *models.BloodRequest
	err := s.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		var err error
		req, err = s.store.Execute(ctx, requestID, func(r *models.BloodRequest) error {
			r.ViewPage(pageNum, now)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "Blood request not found", "failed to load request page")
	}

	page := req.PageOf(pageNum)
	if s.metrics != nil {
		s.metrics.IncrementPageView(pageNum <= page.Pagination.TotalPages)
	}
	ids := make([]id.DonorID, len(page.Entries))
	for i, e := range page.Entries {
		ids[i] = e.DonorID
	}
	byID, err := s.populate(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &PageResult{
		Request:    req,
		Donors:     joinDonors(page.Entries, byID),
		Pagination: page.Pagination,
	}, nil
}

// UpdateStatus records one ledger transition, mirrors it onto the donor's
// directory availability, and appends the audit entry. The donor must be a
// member of the request's snapshot.
func (s *Service) UpdateStatus(ctx context.Context, requestID id.RequestID, change StatusChange) error {
	ctx, span := s.tracer.Start(ctx, "ledger.UpdateStatus", trace.WithAttributes(
		attribute.String("blood_request.id", requestID.String()),
		attribute.String("donor.id", change.DonorID.String()),
		attribute.String("ledger.status", string(change.Status)),
	))
	defer span.End()

	if !change.Status.IsValid() {
		return invalidStatus(change.Status)
	}
	err := s.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, requestID, func(r *models.BloodRequest) error {
			return s.applyChange(ctx, r, change, now)
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger update failed")
		return wrapNotFound(err, "Blood request not found", "failed to update donor status")
	}

	s.logger.InfoContext(ctx, "donor status updated",
		"request_id", requestcontext.RequestID(ctx),
		"blood_request_id", requestID,
		"donor_id", change.DonorID,
		"status", change.Status,
	)
	return nil
}

// UpdateStatusBatch applies every change whose donor is in the snapshot and
// skips the rest. It reports the number of changes submitted, not applied.
func (s *Service) UpdateStatusBatch(ctx context.Context, requestID id.RequestID, changes []StatusChange) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.UpdateStatusBatch", trace.WithAttributes(
		attribute.String("blood_request.id", requestID.String()),
		attribute.Int("ledger.batch_size", len(changes)),
	))
	defer span.End()

	if len(changes) == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "updates must be a non-empty array")
	}
	for _, c := range changes {
		if !c.Status.IsValid() {
			return 0, invalidStatus(c.Status)
		}
	}

	skipped := 0
	err := s.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, requestID, func(r *models.BloodRequest) error {
			skipped = 0
			for _, c := range changes {
				if r.IndexOf(c.DonorID) < 0 {
					skipped++
					continue
				}
				if err := s.applyChange(ctx, r, c, now); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch ledger update failed")
		return 0, wrapNotFound(err, "Blood request not found", "failed to update donor statuses")
	}

	span.SetAttributes(attribute.Int("ledger.skipped", skipped))
	if skipped > 0 {
		s.logger.WarnContext(ctx, "batch entries skipped",
			"request_id", requestcontext.RequestID(ctx),
			"blood_request_id", requestID,
			"skipped", skipped,
		)
		if s.metrics != nil {
			s.metrics.AddBatchSkipped(skipped)
		}
	}
	s.logger.InfoContext(ctx, "donor statuses updated",
		"request_id", requestcontext.RequestID(ctx),
		"blood_request_id", requestID,
		"submitted", len(changes),
		"applied", len(changes)-skipped,
	)
	return len(changes), nil
}

// Complete closes the request with a caller-asserted status.
func (s *Service) Complete(ctx context.Context, requestID id.RequestID, status models.Status, notes string) (*models.BloodRequest, error) {
	if status == "" {
		status = models.StatusFulfilled
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of pending, in_progress, fulfilled, cancelled, expired")
	}
	var req *models.BloodRequest
	err := s.withRequestLock(ctx, requestID, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		var err error
		req, err = s.store.Execute(ctx, requestID, func(r *models.BloodRequest) error {
			if err := r.Complete(status, notes, now); err != nil {
				return err
			}
			return s.appendEvent(ctx, r, outbox.EventRequestCompleted, completedPayload(r))
		})
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "Blood request not found", "failed to complete blood request")
	}

	s.logger.InfoContext(ctx, "blood request completed",
		"request_id", requestcontext.RequestID(ctx),
		"blood_request_id", requestID,
		"status", status,
	)
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(status))
	}
	return req, nil
}

// Get returns the full request with its ledger donors populated.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*Detail, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapNotFound(err, "Blood request not found", "failed to load blood request")
	}
	donors, err := s.populate(ctx, req.DonorIDs())
	if err != nil {
		return nil, err
	}
	return &Detail{Request: req, Donors: donors}, nil
}

// List returns one page of requests, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter, page int) (*ListResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	requests, total, err := s.store.List(ctx, filter, donormodels.PageRequest{Page: page, Limit: ListPageSize})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list blood requests")
	}
	return &ListResult{
		Requests:    requests,
		Total:       total,
		CurrentPage: page,
		TotalPages:  donormodels.TotalPages(total, ListPageSize),
	}, nil
}

// LatestByPhone returns the most recent request submitted with phone.
func (s *Service) LatestByPhone(ctx context.Context, phone string) (*models.BloodRequest, error) {
	req, err := s.store.LatestByContactNumber(ctx, phone)
	if err != nil {
		return nil, wrapNotFound(err, "No blood request found for this phone number", "failed to look up blood request")
	}
	return req, nil
}

// applyChange runs inside the store's Execute so the ledger entry, the
// directory write-back and the event commit or fail together.
func (s *Service) applyChange(ctx context.Context, r *models.BloodRequest, change StatusChange, now time.Time) error {
	update, err := r.ApplyContactStatus(change.DonorID, change.Status, change.Notes, now)
	if err != nil {
		return err
	}
	if err := s.directory.UpdateAvailability(ctx, change.DonorID, models.AvailabilityFor(change.Status)); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, r, outbox.EventContactStatusChanged, statusPayload(r, update)); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementLedgerUpdate(string(change.Status))
	}
	return nil
}

func (s *Service) withRequestLock(ctx context.Context, requestID id.RequestID, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, "blood_request:"+requestID.String())
	if err != nil {
		return err
	}
	defer unlock()
	return s.inTx(ctx, fn)
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) appendEvent(ctx context.Context, r *models.BloodRequest, eventType string, payload any) error {
	if s.outbox == nil {
		return nil
	}
	event, err := outbox.NewEvent(outbox.AggregateBloodRequest, r.ID.String(), eventType, payload, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, event)
}

func (s *Service) populate(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*donormodels.Donor, error) {
	if len(ids) == 0 {
		return map[id.DonorID]*donormodels.Donor{}, nil
	}
	donors, err := s.directory.FindByIDs(ctx, ids)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load matched donors")
	}
	return donors, nil
}

func (s *Service) nextNumber(now time.Time) string {
	if s.numbers != nil {
		return s.numbers()
	}
	return models.NewRequestNumber(now)
}

func joinDonors(entries []models.ContactEntry, byID map[id.DonorID]*donormodels.Donor) []PageDonor {
	out := make([]PageDonor, len(entries))
	for i, e := range entries {
		out[i] = PageDonor{Donor: byID[e.DonorID], Entry: e}
	}
	return out
}

func validateFilter(f models.ListFilter) error {
	var problems []string
	if f.Status != "" && !f.Status.IsValid() {
		problems = append(problems, "status must be one of pending, in_progress, fulfilled, cancelled, expired")
	}
	if f.District != "" && !f.District.IsValid() {
		problems = append(problems, "district is not a known district")
	}
	if f.BloodGroup != "" && !f.BloodGroup.IsValid() {
		problems = append(problems, "bloodGroup is not a valid blood group")
	}
	if len(problems) > 0 {
		return dErrors.Validation("Invalid filters", problems...)
	}
	return nil
}

func invalidStatus(status models.ContactStatus) error {
	return dErrors.New(dErrors.CodeValidation,
		"status must be one of not_contacted, contacted, confirmed, declined, unavailable; got "+strconv.Quote(string(status)))
}

func wrapNotFound(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return wrapStoreErr(err, internalMsg)
}

// wrapStoreErr keeps coded errors (including those raised inside Execute
// callbacks) and surfaces deadlines as retriable.
func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "request store timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
