package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/slug"
)

type fakeRepo struct {
	hotels      map[uuid.UUID]*models.Hotel
	entries     []audit.Entry
	imageRefs   map[uuid.UUID][]string
	createFails int
	reassigned  map[uuid.UUID]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		hotels:     make(map[uuid.UUID]*models.Hotel),
		imageRefs:  make(map[uuid.UUID][]string),
		reassigned: make(map[uuid.UUID]string),
	}
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Hotel, error) {
	h, ok := r.hotels[id]
	if !ok {
		return nil, apperr.NotFound("hotel not found")
	}
	cp := *h
	return &cp, nil
}

func (r *fakeRepo) CodeExists(_ context.Context, code string) (bool, error) {
	for _, h := range r.hotels {
		if h.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) Create(_ context.Context, h *models.Hotel) error {
	if r.createFails > 0 {
		r.createFails--
		return apperr.Conflict("code already exists")
	}
	cp := *h
	r.hotels[h.ID] = &cp
	return nil
}

func (r *fakeRepo) store(h *models.Hotel, entry audit.Entry) error {
	if _, ok := r.hotels[h.ID]; !ok {
		return apperr.NotFound("hotel not found")
	}
	cp := *h
	r.hotels[h.ID] = &cp
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRepo) UpdateDetails(_ context.Context, h *models.Hotel, e audit.Entry) error {
	return r.store(h, e)
}

func (r *fakeRepo) SetStatus(_ context.Context, h *models.Hotel, e audit.Entry) error {
	return r.store(h, e)
}

func (r *fakeRepo) UpdatePin(_ context.Context, h *models.Hotel, e audit.Entry) error {
	h.PinResetCount++
	return r.store(h, e)
}

func (r *fakeRepo) SoftDelete(_ context.Context, h *models.Hotel, e audit.Entry) error {
	r.reassigned[h.ID] = models.ActorDeletedUser
	return r.store(h, e)
}

func (r *fakeRepo) CollectImageRefs(_ context.Context, id uuid.UUID) ([]string, error) {
	return r.imageRefs[id], nil
}

func (r *fakeRepo) Purge(_ context.Context, id uuid.UUID) error {
	if _, ok := r.hotels[id]; !ok {
		return apperr.NotFound("hotel not found")
	}
	delete(r.hotels, id)
	return nil
}

func (r *fakeRepo) ListPurgeDue(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, h := range r.hotels {
		if h.Status == models.StatusDeleted && h.PurgeAfter != nil && !h.PurgeAfter.After(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeDeleter struct {
	deleted []string
	fail    bool
}

func (d *fakeDeleter) DeleteByURL(_ context.Context, ref string) error {
	if d.fail {
		return context.DeadlineExceeded
	}
	d.deleted = append(d.deleted, ref)
	return nil
}

func newTestService(t *testing.T, repo *fakeRepo) (*Service, *fakeDeleter) {
	t.Helper()
	logger := zap.NewNop()
	deleter := &fakeDeleter{}
	svc := NewService(repo, slug.NewGenerator(repo, logger), credential.NewStore(), deleter, logger)
	return svc, deleter
}

func seedHotel(repo *fakeRepo, status models.Status) *models.Hotel {
	h := &models.Hotel{
		ID:     uuid.New(),
		Code:   "ABCDEF",
		Name:   "Blue Lagoon",
		City:   "Goa",
		Phone:  "9876543210",
		Plan:   models.PlanStarter,
		Status: status,
		Theme:  "classic",
	}
	repo.hotels[h.ID] = h
	return h
}

func TestCreateProvisionsTrialTenant(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	created, err := svc.Create(context.Background(), CreateInput{
		Name:  "Blue Lagoon",
		City:  "Goa",
		Phone: "9876543210",
	})
	require.NoError(t, err)

	h := created.Hotel
	require.Equal(t, models.StatusTrial, h.Status)
	require.Equal(t, models.PlanStarter, h.Plan)
	require.Regexp(t, `^[A-Z2-7]{6}$`, h.Code)
	require.Regexp(t, `^\d{8}$`, created.Pin)
	require.NotNil(t, h.TrialEnds)
	require.Equal(t, now.AddDate(0, 0, 30), *h.TrialEnds)
	require.NotNil(t, h.ConsentedAt)

	// The returned plaintext must verify against the stored hash and never
	// appear in the record itself.
	require.True(t, credential.NewStore().Verify(created.Pin, h.PinHash))
	require.NotContains(t, h.PinHash, created.Pin)
}

func TestCreateRetriesOnCodeConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.createFails = 1
	svc, _ := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateInput{Name: "Blue Lagoon"})
	require.NoError(t, err)
	require.Len(t, repo.hotels, 1)
	require.NotEmpty(t, created.Hotel.Code)
}

func TestCreateThemeEnum(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	for _, theme := range []string{"classic", "warm", "nature", "elegant"} {
		created, err := svc.Create(ctx, CreateInput{Name: "Blue Lagoon", Theme: theme})
		require.NoError(t, err)
		require.Equal(t, theme, created.Hotel.Theme)
	}

	_, err := svc.Create(ctx, CreateInput{Name: "Blue Lagoon", Theme: "dark"})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Empty falls back to the default.
	created, err := svc.Create(ctx, CreateInput{Name: "Blue Lagoon"})
	require.NoError(t, err)
	require.Equal(t, models.DefaultTheme, created.Hotel.Theme)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Create(context.Background(), CreateInput{})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSetStatusTransitions(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusTrial)

	paid := time.Now().AddDate(0, 1, 0)
	updated, err := svc.SetStatus(context.Background(), h.ID, StatusInput{
		Status:    models.StatusActive,
		PaidUntil: &paid,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, updated.Status)
	require.NotNil(t, updated.PaidUntil)

	require.Len(t, repo.entries, 1)
	require.Equal(t, "status_changed", repo.entries[0].Action)
	require.Equal(t, models.ActorAdmin, repo.entries[0].ActorType)
}

func TestSetStatusDeletedIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusDeleted)

	_, err := svc.SetStatus(context.Background(), h.ID, StatusInput{Status: models.StatusActive})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSetStatusRejectsDeletedTarget(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusActive)

	_, err := svc.SetStatus(context.Background(), h.ID, StatusInput{Status: models.StatusDeleted})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestResetPinIssuesFreshCredential(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusActive)

	pin, err := svc.ResetPin(context.Background(), h.ID)
	require.NoError(t, err)
	require.Regexp(t, `^\d{8}$`, pin)

	stored := repo.hotels[h.ID]
	require.True(t, credential.NewStore().Verify(pin, stored.PinHash))
	require.Equal(t, 1, stored.PinResetCount)
	require.NotNil(t, stored.LastPinResetAt)
	require.Equal(t, models.ActorAdmin, *stored.LastPinResetBy)

	// Audit values carry timestamps only, never the PIN or its hash.
	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, "pin_reset", entry.Action)
	old, ok := entry.Old.(map[string]interface{})
	require.True(t, ok)
	require.NotContains(t, old, "pin_hash")
}

func TestSetPinRejectsWeakPin(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusActive)

	err := svc.SetPin(context.Background(), h.ID, "12345678")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = svc.SetPin(context.Background(), h.ID, "59273841")
	require.NoError(t, err)
	require.Equal(t, models.ActorOwner, *repo.hotels[h.ID].LastPinResetBy)
}

func TestSoftDeleteAnonymizes(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusActive)
	email := "owner@bluelagoon.example"
	repo.hotels[h.ID].Email = &email

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	require.NoError(t, svc.SoftDelete(context.Background(), h.ID, models.ActorOwner))

	stored := repo.hotels[h.ID]
	require.Equal(t, models.StatusDeleted, stored.Status)
	require.Equal(t, "Deleted Hotel", stored.Name)
	require.Equal(t, "0000000000", stored.Phone)
	require.Nil(t, stored.Email)
	require.Equal(t, models.PinHashInvalidated, stored.PinHash)
	require.Equal(t, now.AddDate(0, 0, 180), *stored.PurgeAfter)
	require.Equal(t, models.ActorDeletedUser, repo.reassigned[h.ID])

	// Invalidated sentinel can never verify.
	require.False(t, credential.NewStore().Verify("00000000", stored.PinHash))

	// The deletion entry keeps the pre-anonymization values.
	require.Len(t, repo.entries, 1)
	old, ok := repo.entries[0].Old.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Blue Lagoon", old["name"])

	// Second delete is a conflict.
	err := svc.SoftDelete(context.Background(), h.ID, models.ActorOwner)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestHardPurgeRequiresSoftDelete(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	h := seedHotel(repo, models.StatusActive)

	err := svc.HardPurge(context.Background(), h.ID)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestHardPurgeDeletesAssetsAndRows(t *testing.T) {
	repo := newFakeRepo()
	svc, deleter := newTestService(t, repo)
	h := seedHotel(repo, models.StatusDeleted)
	repo.imageRefs[h.ID] = []string{"menu-images/a.jpg", "menu-images/b.png"}

	require.NoError(t, svc.HardPurge(context.Background(), h.ID))
	require.ElementsMatch(t, []string{"menu-images/a.jpg", "menu-images/b.png"}, deleter.deleted)
	require.NotContains(t, repo.hotels, h.ID)

	// Rerun is NotFound once the record is gone.
	err := svc.HardPurge(context.Background(), h.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestHardPurgeSurvivesAssetFailures(t *testing.T) {
	repo := newFakeRepo()
	svc, deleter := newTestService(t, repo)
	deleter.fail = true
	h := seedHotel(repo, models.StatusDeleted)
	repo.imageRefs[h.ID] = []string{"menu-images/a.jpg"}

	require.NoError(t, svc.HardPurge(context.Background(), h.ID))
	require.NotContains(t, repo.hotels, h.ID)
}

func TestPurgeDueSweepsOnlyExpired(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	due := seedHotel(repo, models.StatusDeleted)
	past := now.AddDate(0, 0, -1)
	repo.hotels[due.ID].PurgeAfter = &past

	notDue := &models.Hotel{ID: uuid.New(), Code: "GGGGGG", Status: models.StatusDeleted}
	future := now.AddDate(0, 0, 30)
	notDue.PurgeAfter = &future
	repo.hotels[notDue.ID] = notDue

	live := &models.Hotel{ID: uuid.New(), Code: "HHHHHH", Status: models.StatusActive}
	repo.hotels[live.ID] = live

	purged, err := svc.PurgeDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, purged)
	require.NotContains(t, repo.hotels, due.ID)
	require.Contains(t, repo.hotels, notDue.ID)
	require.Contains(t, repo.hotels, live.ID)
}
