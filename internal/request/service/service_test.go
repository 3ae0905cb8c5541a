package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	donormodels "donorlink/internal/donor/models"
	donorservice "donorlink/internal/donor/service"
	donorstore "donorlink/internal/donor/store"
	"donorlink/internal/outbox"
	outboxstore "donorlink/internal/outbox/store"
	"donorlink/internal/request/matching"
	"donorlink/internal/request/models"
	"donorlink/internal/request/service/mocks"
	"donorlink/internal/request/store"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/requestcontext"
	"donorlink/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	donors  *donorstore.InMemoryStore
	store   *store.InMemoryStore
	events  *outboxstore.InMemoryStore
	service *Service
	seq     int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithClientMetadata(testutil.Context(testutil.FixedTime), "203.0.113.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	s.donors = donorstore.NewInMemoryStore()
	s.store = store.NewInMemoryStore()
	s.events = outboxstore.NewInMemoryStore()
	directory := donorservice.New(s.donors)
	s.service = New(s.store, directory, matching.New(directory), s.events)
}

// seed stores n matchable donors, most recently updated first.
func (s *ServiceSuite) seed(n int, district donormodels.District, group donormodels.BloodGroup) []*donormodels.Donor {
	out := make([]*donormodels.Donor, 0, n)
	for i := range n {
		s.seq++
		d := &donormodels.Donor{
			ID:               id.NewDonorID(),
			FullName:         fmt.Sprintf("Donor %d", s.seq),
			Email:            fmt.Sprintf("donor%d@example.com", s.seq),
			Phone:            fmt.Sprintf("90%08d", s.seq),
			Age:              30,
			Gender:           donormodels.GenderOther,
			BloodGroup:       group,
			District:         district,
			WillingToDonate:  true,
			IsActive:         true,
			Availability:     donormodels.AvailabilityAvailable,
			RegistrationDate: testutil.FixedTime,
			LastUpdated:      testutil.FixedTime.Add(-time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.donors.Create(context.Background(), d))
		out = append(out, d)
	}
	return out
}

func (s *ServiceSuite) submission(district donormodels.District, group donormodels.BloodGroup) models.Submission {
	return models.Submission{
		PatientName:   "ravi",
		HospitalName:  "Apollo",
		ContactNumber: "9876543210",
		BloodGroup:    group,
		District:      district,
	}
}

func (s *ServiceSuite) create(n int) (*PageResult, []*donormodels.Donor) {
	donors := s.seed(n, "Chennai", donormodels.BloodGroupOPos)
	res, err := s.service.Create(s.ctx, s.submission("Chennai", donormodels.BloodGroupOPos))
	s.Require().NoError(err)
	return res, donors
}

func (s *ServiceSuite) availability(donorID id.DonorID) donormodels.Availability {
	d, err := s.donors.FindByID(context.Background(), donorID)
	s.Require().NoError(err)
	return d.Availability
}

func (s *ServiceSuite) eventTypes() []string {
	var out []string
	for _, e := range s.events.All() {
		out = append(out, e.Type)
	}
	return out
}

func (s *ServiceSuite) TestCreateSnapshotsMatchesAndReturnsFirstPage() {
	s.seed(2, "Chennai", donormodels.BloodGroupONeg)
	s.seed(3, "Madurai", donormodels.BloodGroupOPos)
	res, donors := s.create(7)

	req := res.Request
	s.Equal(models.StatusPending, req.Status)
	s.Equal("RAVI", req.PatientName)
	s.Regexp(`^BR-[0-9A-Z]+-[0-9A-Z]{5}$`, req.RequestNumber)
	s.NotEmpty(req.Session.SessionID)
	s.Equal("203.0.113.7", req.SubmittedByIP)
	s.Contains(req.SubmittedFrom, "Chrome on Windows")
	s.Require().Len(req.Contacts, 7)
	for i, c := range req.Contacts {
		s.Equal(donors[i].ID, c.DonorID)
		s.Equal(models.ContactNotContacted, c.Status)
	}
	s.Equal(models.Pagination{CurrentPage: 1, TotalPages: 2, TotalDonors: 7, HasNextPage: true}, res.Pagination)
	s.Require().Len(res.Donors, 5)
	s.Equal(donors[0].ID, res.Donors[0].Donor.ID)
	s.Equal([]string{outbox.EventRequestCreated}, s.eventTypes())
}

func (s *ServiceSuite) TestCreateWithoutMatchesIsValid() {
	res, err := s.service.Create(s.ctx, s.submission("Ariyalur", donormodels.BloodGroupABNeg))
	s.Require().NoError(err)
	s.Empty(res.Request.Contacts)
	s.Empty(res.Donors)
	s.Equal(0, res.Pagination.TotalPages)
}

func (s *ServiceSuite) TestCreateValidation() {
	sub := s.submission("Chennai", donormodels.BloodGroupOPos)
	sub.UnitsRequired = 12
	sub.ContactNumber = "98765"
	_, err := s.service.Create(s.ctx, sub)
	s.Require().Error(err)
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	s.ElementsMatch([]string{"Phone number must be 10 digits", "Maximum 10 units per request"}, dErrors.DetailsOf(err))
	s.Empty(s.events.All())
}

func (s *ServiceSuite) TestCreateRetriesNumberCollisions() {
	numbers := []string{"BR-TAKEN-00001", "BR-TAKEN-00001", "BR-FRESH-00002"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
	directory := donorservice.New(s.donors)
	svc := New(s.store, directory, matching.New(directory), s.events, WithNumberGenerator(next))

	first, err := svc.Create(s.ctx, s.submission("Chennai", donormodels.BloodGroupOPos))
	s.Require().NoError(err)
	s.Equal("BR-TAKEN-00001", first.Request.RequestNumber)

	second, err := svc.Create(s.ctx, s.submission("Chennai", donormodels.BloodGroupOPos))
	s.Require().NoError(err)
	s.Equal("BR-FRESH-00002", second.Request.RequestNumber)
}

func (s *ServiceSuite) TestCreateGivesUpAfterRepeatedCollisions() {
	directory := donorservice.New(s.donors)
	svc := New(s.store, directory, matching.New(directory), s.events,
		WithNumberGenerator(func() string { return "BR-SAME-00000" }))

	_, err := svc.Create(s.ctx, s.submission("Chennai", donormodels.BloodGroupOPos))
	s.Require().NoError(err)
	_, err = svc.Create(s.ctx, s.submission("Chennai", donormodels.BloodGroupOPos))
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestGetPageSlicesFrozenSnapshot() {
	res, donors := s.create(7)
	requestID := res.Request.ID

	// Later registrations never enter an existing snapshot.
	s.seed(4, "Chennai", donormodels.BloodGroupOPos)

	page2, err := s.service.GetPage(s.ctx, requestID, 2)
	s.Require().NoError(err)
	s.Require().Len(page2.Donors, 2)
	s.Equal(donors[5].ID, page2.Donors[0].Donor.ID)
	s.Equal(donors[6].ID, page2.Donors[1].Donor.ID)
	s.True(page2.Pagination.HasPreviousPage)
	s.False(page2.Pagination.HasNextPage)

	beyond, err := s.service.GetPage(s.ctx, requestID, 9)
	s.Require().NoError(err)
	s.Empty(beyond.Donors)

	stored, err := s.store.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(9, stored.Session.CurrentPage)

	_, err = s.service.GetPage(s.ctx, id.NewRequestID(), 1)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	_, err = s.service.GetPage(s.ctx, requestID, 0)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestUpdateStatusMirrorsAvailability() {
	res, donors := s.create(3)
	requestID := res.Request.ID

	cases := []struct {
		donor  *donormodels.Donor
		status models.ContactStatus
		want   donormodels.Availability
	}{
		{donors[0], models.ContactConfirmed, donormodels.AvailabilityAvailable},
		{donors[1], models.ContactDeclined, donormodels.AvailabilityUnavailable},
		{donors[2], models.ContactContacted, donormodels.AvailabilityOther},
	}
	for _, tc := range cases {
		s.Require().NoError(s.service.UpdateStatus(s.ctx, requestID, StatusChange{DonorID: tc.donor.ID, Status: tc.status}))
		s.Equal(tc.want, s.availability(tc.donor.ID), string(tc.status))
	}

	s.Require().NoError(s.service.UpdateStatus(s.ctx, requestID,
		StatusChange{DonorID: donors[2].ID, Status: models.ContactUnavailable, Notes: "travelling"}))
	s.Equal(donormodels.AvailabilityUnavailable, s.availability(donors[2].ID))

	stored, err := s.store.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	updates := stored.Session.StatusUpdates
	s.Require().Len(updates, 4)
	s.Equal(models.ContactContacted, updates[3].OldStatus)
	s.Equal(models.ContactUnavailable, updates[3].NewStatus)
	s.Equal("travelling", stored.Contacts[2].Notes)
	s.Len(s.eventTypes(), 5)
}

func (s *ServiceSuite) TestUpdateStatusRejectsDonorOutsideSnapshot() {
	res, _ := s.create(2)
	outsider := s.seed(1, "Chennai", donormodels.BloodGroupOPos)[0]

	err := s.service.UpdateStatus(s.ctx, res.Request.ID, StatusChange{DonorID: outsider.ID, Status: models.ContactConfirmed})
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	s.Equal(donormodels.AvailabilityAvailable, s.availability(outsider.ID))

	err = s.service.UpdateStatus(s.ctx, id.NewRequestID(), StatusChange{DonorID: outsider.ID, Status: models.ContactConfirmed})
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	err = s.service.UpdateStatus(s.ctx, res.Request.ID, StatusChange{DonorID: outsider.ID, Status: "ghosted"})
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestUpdateStatusBatchIsLenient() {
	res, donors := s.create(3)
	outsider := s.seed(1, "Chennai", donormodels.BloodGroupOPos)[0]

	count, err := s.service.UpdateStatusBatch(s.ctx, res.Request.ID, []StatusChange{
		{DonorID: donors[0].ID, Status: models.ContactConfirmed},
		{DonorID: outsider.ID, Status: models.ContactDeclined},
		{DonorID: id.NewDonorID(), Status: models.ContactDeclined},
		{DonorID: donors[2].ID, Status: models.ContactDeclined, Notes: "not this month"},
	})
	s.Require().NoError(err)
	s.Equal(4, count)

	stored, err := s.store.FindByID(context.Background(), res.Request.ID)
	s.Require().NoError(err)
	s.Equal(models.ContactConfirmed, stored.Contacts[0].Status)
	s.Equal(models.ContactNotContacted, stored.Contacts[1].Status)
	s.Equal(models.ContactDeclined, stored.Contacts[2].Status)
	s.Len(stored.Session.StatusUpdates, 2)
	s.Equal(donormodels.AvailabilityAvailable, s.availability(outsider.ID))
	s.Equal(donormodels.AvailabilityUnavailable, s.availability(donors[2].ID))

	_, err = s.service.UpdateStatusBatch(s.ctx, res.Request.ID, nil)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestConcurrentLedgerUpdatesAreNotLost() {
	res, donors := s.create(20)

	var wg sync.WaitGroup
	for _, d := range donors {
		wg.Add(1)
		go func(donorID id.DonorID) {
			defer wg.Done()
			s.NoError(s.service.UpdateStatus(s.ctx, res.Request.ID, StatusChange{DonorID: donorID, Status: models.ContactContacted}))
		}(d.ID)
	}
	wg.Wait()

	stored, err := s.store.FindByID(context.Background(), res.Request.ID)
	s.Require().NoError(err)
	s.Len(stored.Session.StatusUpdates, 20)
	for _, c := range stored.Contacts {
		s.Equal(models.ContactContacted, c.Status)
	}
}

func (s *ServiceSuite) TestComplete() {
	res, _ := s.create(1)
	later := requestcontext.WithTime(s.ctx, testutil.FixedTime.Add(3*time.Hour))

	req, err := s.service.Complete(later, res.Request.ID, "", "Received 2 units")
	s.Require().NoError(err)
	s.Equal(models.StatusFulfilled, req.Status)
	s.Require().NotNil(req.FulfilledAt)
	s.False(req.FulfilledAt.Before(req.RequestedAt))
	s.Equal("\n[Completion Notes]: Received 2 units", req.AdditionalNotes)
	s.Contains(s.eventTypes(), outbox.EventRequestCompleted)

	_, err = s.service.Complete(s.ctx, res.Request.ID, "archived", "")
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	_, err = s.service.Complete(s.ctx, id.NewRequestID(), models.StatusCancelled, "")
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestGetPopulatesDonors() {
	res, donors := s.create(6)

	detail, err := s.service.Get(s.ctx, res.Request.ID)
	s.Require().NoError(err)
	s.Len(detail.Donors, 6)
	s.Equal(donors[4].FullName, detail.Donors[donors[4].ID].FullName)

	_, err = s.service.Get(s.ctx, id.NewRequestID())
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestListAndLatestByPhone() {
	first, _ := s.create(1)
	later := requestcontext.WithTime(s.ctx, testutil.FixedTime.Add(time.Hour))
	second, err := s.service.Create(later, s.submission("Madurai", donormodels.BloodGroupBPos))
	s.Require().NoError(err)

	all, err := s.service.List(s.ctx, models.ListFilter{}, 1)
	s.Require().NoError(err)
	s.Equal(2, all.Total)
	s.Equal(1, all.TotalPages)
	s.Equal(second.Request.ID, all.Requests[0].ID)

	madurai, err := s.service.List(s.ctx, models.ListFilter{District: "Madurai"}, 0)
	s.Require().NoError(err)
	s.Equal(1, madurai.CurrentPage)
	s.Require().Len(madurai.Requests, 1)

	_, err = s.service.List(s.ctx, models.ListFilter{Status: "lost"}, 1)
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))

	latest, err := s.service.LatestByPhone(s.ctx, "9876543210")
	s.Require().NoError(err)
	s.Equal(second.Request.ID, latest.ID)
	s.NotEqual(first.Request.ID, latest.ID)

	_, err = s.service.LatestByPhone(s.ctx, "1111111111")
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

type ServiceCollaboratorSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	directory *mocks.MockDirectory
	matcher   *mocks.MockMatcher
	outbox    *mocks.MockOutbox
	locker    *mocks.MockLocker
	tx        *mocks.MockTxRunner
	service   *Service
	ctx       context.Context
}

func TestServiceCollaboratorSuite(t *testing.T) {
	suite.Run(t, new(ServiceCollaboratorSuite))
}

func (s *ServiceCollaboratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.directory = mocks.NewMockDirectory(s.ctrl)
	s.matcher = mocks.NewMockMatcher(s.ctrl)
	s.outbox = mocks.NewMockOutbox(s.ctrl)
	s.locker = mocks.NewMockLocker(s.ctrl)
	s.tx = mocks.NewMockTxRunner(s.ctrl)
	s.service = New(s.store, s.directory, s.matcher, s.outbox, WithLocker(s.locker), WithTx(s.tx))
	s.ctx = testutil.Context(testutil.FixedTime)
}

func (s *ServiceCollaboratorSuite) passThroughTx() {
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *ServiceCollaboratorSuite) request(n int) *models.BloodRequest {
	donors := make([]id.DonorID, n)
	for i := range donors {
		donors[i] = id.NewDonorID()
	}
	r, err := models.NewBloodRequest(id.NewRequestID(), "BR-MOCK-00001", models.Submission{
		PatientName:   "Anu",
		HospitalName:  "CMC",
		ContactNumber: "9876543210",
		BloodGroup:    donormodels.BloodGroupANeg,
		District:      "Vellore",
	}, donors, testutil.FixedTime)
	s.Require().NoError(err)
	return r
}

func (s *ServiceCollaboratorSuite) TestLedgerUpdateRunsUnderLockAndTransaction() {
	r := s.request(2)
	donorID := r.Contacts[1].DonorID
	unlocked := false

	gomock.InOrder(
		s.locker.EXPECT().Lock(gomock.Any(), "blood_request:"+r.ID.String()).
			Return(func() { unlocked = true }, nil),
		s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				return fn(ctx)
			}),
	)
	s.store.EXPECT().Execute(gomock.Any(), r.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error) {
			if err := fn(r); err != nil {
				return nil, err
			}
			return r, nil
		})
	s.directory.EXPECT().UpdateAvailability(gomock.Any(), donorID, donormodels.AvailabilityAvailable).Return(nil)
	s.outbox.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e outbox.Event) error {
			s.Equal(outbox.EventContactStatusChanged, e.Type)
			s.Equal(r.ID.String(), e.AggregateID)
			s.Contains(string(e.Payload), `"oldStatus":"not_contacted"`)
			return nil
		})

	s.Require().NoError(s.service.UpdateStatus(s.ctx, r.ID, StatusChange{DonorID: donorID, Status: models.ContactConfirmed}))
	s.True(unlocked)
}

func (s *ServiceCollaboratorSuite) TestDirectoryFailureAbortsLedgerUpdate() {
	r := s.request(1)
	donorID := r.Contacts[0].DonorID

	s.locker.EXPECT().Lock(gomock.Any(), gomock.Any()).Return(func() {}, nil)
	s.passThroughTx()
	s.store.EXPECT().Execute(gomock.Any(), r.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error) {
			return nil, fn(r.Clone())
		})
	s.directory.EXPECT().UpdateAvailability(gomock.Any(), donorID, donormodels.AvailabilityUnavailable).
		Return(dErrors.New(dErrors.CodeNotFound, "Donor not found"))

	err := s.service.UpdateStatus(s.ctx, r.ID, StatusChange{DonorID: donorID, Status: models.ContactDeclined})
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceCollaboratorSuite) TestLockTimeoutIsUnavailable() {
	s.locker.EXPECT().Lock(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeUnavailable, "timed out waiting for lock"))

	_, err := s.service.Complete(s.ctx, id.NewRequestID(), models.StatusCancelled, "")
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *ServiceCollaboratorSuite) TestStoreFailuresAreInternal() {
	s.store.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
	_, err := s.service.Get(s.ctx, id.NewRequestID())
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))

	s.store.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, 0, context.DeadlineExceeded)
	_, err = s.service.List(s.ctx, models.ListFilter{}, 1)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *ServiceCollaboratorSuite) TestCreateWritesRequestAndEventInOneTransaction() {
	s.matcher.EXPECT().Match(gomock.Any(), donormodels.District("Vellore"), donormodels.BloodGroupANeg).
		Return([]*donormodels.Donor{}, nil)
	s.passThroughTx()
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.outbox.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("outbox insert failed"))

	_, err := s.service.Create(s.ctx, models.Submission{
		PatientName:   "Anu",
		HospitalName:  "CMC",
		ContactNumber: "9876543210",
		BloodGroup:    donormodels.BloodGroupANeg,
		District:      "Vellore",
	})
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}
