package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"workplacemapping/internal/config"
	"workplacemapping/internal/database"
	"workplacemapping/internal/domain"
	"workplacemapping/internal/repository"
	apperrors "workplacemapping/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyCreation(ctx context.Context, c domain.Comment, post domain.Post) {
	m.Called(c.ID, post.Title)
}

func (m *mockNotifier) NotifyApproval(ctx context.Context, c domain.Comment, post domain.Post) {
	m.Called(c.ID, post.Title)
}

func newNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("NotifyCreation", mock.Anything, mock.Anything).Return().Maybe()
	n.On("NotifyApproval", mock.Anything, mock.Anything).Return().Maybe()
	return n
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]domain.Thread
	gets        int
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]domain.Thread{}}
}

func (c *memoryCache) Get(_ context.Context, postID string) ([]domain.Thread, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	threads, ok := c.entries[postID]
	return threads, ok, nil
}

func (c *memoryCache) Set(_ context.Context, postID string, threads []domain.Thread) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[postID] = threads
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, postID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, postID)
	c.invalidated = append(c.invalidated, postID)
	return nil
}

type fixture struct {
	db       *gorm.DB
	comments *repository.CommentRepository
	notifier *mockNotifier
	cache    *memoryCache
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.DatabaseConfig{URL: "sqlite:///" + filepath.Join(t.TempDir(), "moderation.db")}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.Create(&domain.Post{ID: "p1", Slug: "mapping-teams", Title: "Mapping Teams"}).Error)

	f := &fixture{
		db:       db,
		comments: repository.NewCommentRepository(db),
		notifier: newNotifier(),
		cache:    newMemoryCache(),
	}
	f.svc = NewService(f.comments, repository.NewPostRepository(db), f.notifier, f.cache)
	return f
}

func validInput() CommentInput {
	return CommentInput{
		Name:    "  Priya  ",
		Email:   "Priya@Example.com",
		Website: "https://priya.dev",
		Content: "This matches what we saw after the reorg.",
	}
}

func (f *fixture) create(t *testing.T, parentID *string) *domain.Comment {
	t.Helper()
	in := validInput()
	in.ParentID = parentID
	c, err := f.svc.Create(context.Background(), "p1", in)
	require.NoError(t, err)
	return c
}

func TestCreate_StoresPendingAndNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c, err := f.svc.Create(context.Background(), "mapping-teams", validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, c.Status)
	assert.Equal(t, "p1", c.PostID)
	assert.Equal(t, "Priya", c.AuthorName)
	assert.Equal(t, "priya@example.com", c.AuthorEmail)
	require.NotNil(t, c.AuthorWebsite)
	assert.Equal(t, "https://priya.dev", *c.AuthorWebsite)

	f.notifier.AssertCalled(t, "NotifyCreation", c.ID, "Mapping Teams")
	f.notifier.AssertNotCalled(t, "NotifyApproval", mock.Anything, mock.Anything)
}

func TestCreate_ValidationFailsBeforeLookup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "no-such-post", CommentInput{Email: "not-an-email", Website: "notaurl"})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "content")
	assert.Contains(t, appErr.Fields, "website")
	f.notifier.AssertNotCalled(t, "NotifyCreation", mock.Anything, mock.Anything)
}

func TestCreate_WebsiteMustBeHTTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, website := range []string{
		"javascript:alert(document.cookie)",
		"data:text/html,<script>x</script>",
		"ftp://files.example.com/cv.pdf",
		"//priya.dev",
	} {
		in := validInput()
		in.Website = website
		_, err := f.svc.Create(context.Background(), "p1", in)

		appErr, ok := apperrors.As(err)
		require.True(t, ok, website)
		assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code, website)
		assert.Contains(t, appErr.Fields, "website", website)
	}

	in := validInput()
	in.Website = "http://priya.dev/about"
	_, err := f.svc.Create(context.Background(), "p1", in)
	require.NoError(t, err)

	var stored int64
	require.NoError(t, f.db.Model(&domain.Comment{}).Count(&stored).Error)
	assert.EqualValues(t, 1, stored)
}

func TestCreate_UnknownPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "missing", validInput())
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestCreate_ReplyNeedsTopLevelParent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	top := f.create(t, nil)
	reply := f.create(t, &top.ID)
	assert.True(t, reply.IsReply())

	in := validInput()
	in.ParentID = &reply.ID
	_, err := f.svc.Create(context.Background(), "p1", in)
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	blank := "   "
	in.ParentID = &blank
	c, err := f.svc.Create(context.Background(), "p1", in)
	require.NoError(t, err)
	assert.False(t, c.IsReply())
}

func TestApprovalMakesCommentPublic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)

	threads, err := f.svc.PublicThreads(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, threads)

	res, err := f.svc.Transition(ctx, c.ID, domain.StatusApproved)
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.Equal(t, domain.StatusPending, res.Transition.From)
	assert.Equal(t, domain.StatusApproved, res.Comment.Status)

	threads, err = f.svc.PublicThreads(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, c.ID, threads[0].ID)

	f.notifier.AssertNumberOfCalls(t, "NotifyApproval", 1)
	f.notifier.AssertCalled(t, "NotifyApproval", c.ID, "Mapping Teams")
}

func TestTransition_StateMachine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		path    []domain.CommentStatus
		to      domain.CommentStatus
		changed bool
	}{
		{"pending to spam", nil, domain.StatusSpam, true},
		{"pending to rejected", nil, domain.StatusRejected, true},
		{"pending to pending", nil, domain.StatusPending, false},
		{"approved back to pending", []domain.CommentStatus{domain.StatusApproved}, domain.StatusPending, true},
		{"spam back to pending", []domain.CommentStatus{domain.StatusSpam}, domain.StatusPending, true},
		{"approved to spam", []domain.CommentStatus{domain.StatusApproved}, domain.StatusSpam, false},
		{"rejected to pending", []domain.CommentStatus{domain.StatusRejected}, domain.StatusPending, false},
		{"rejected to approved", []domain.CommentStatus{domain.StatusRejected}, domain.StatusApproved, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			c := f.create(t, nil)
			for _, step := range tc.path {
				res, err := f.svc.Transition(ctx, c.ID, step)
				require.NoError(t, err)
				require.True(t, res.Changed)
			}
			before, err := f.comments.Get(ctx, c.ID)
			require.NoError(t, err)

			res, err := f.svc.Transition(ctx, c.ID, tc.to)
			require.NoError(t, err)
			assert.Equal(t, tc.changed, res.Changed)

			after, err := f.comments.Get(ctx, c.ID)
			require.NoError(t, err)
			if tc.changed {
				assert.Equal(t, tc.to, after.Status)
				require.NotNil(t, res.Transition)
			} else {
				assert.Equal(t, before.Status, after.Status)
				assert.Nil(t, res.Transition)
			}
		})
	}
}

func TestTransition_RejectedAndInvalidDoNotNotify(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)

	_, err := f.svc.Transition(ctx, c.ID, domain.StatusRejected)
	require.NoError(t, err)
	res, err := f.svc.Transition(ctx, c.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = f.svc.Transition(ctx, c.ID, domain.CommentStatus("published"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	f.notifier.AssertNotCalled(t, "NotifyApproval", mock.Anything, mock.Anything)
}

func TestTransition_ReapprovalNotifiesAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)

	for _, to := range []domain.CommentStatus{domain.StatusApproved, domain.StatusApproved, domain.StatusPending, domain.StatusApproved} {
		_, err := f.svc.Transition(ctx, c.ID, to)
		require.NoError(t, err)
	}

	f.notifier.AssertNumberOfCalls(t, "NotifyApproval", 2)
}

func TestTransition_MissingComment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), "nope", domain.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestTransition_ConcurrentModeratorsHaveOneWinner(t *testing.T) {
	t.Parallel()

	for i := 0; i < 5; i++ {
		f := newFixture(t)
		c := f.create(t, nil)

		targets := []domain.CommentStatus{domain.StatusApproved, domain.StatusSpam}
		results := make([]TransitionResult, len(targets))
		var wg sync.WaitGroup
		for j, to := range targets {
			wg.Add(1)
			go func(j int, to domain.CommentStatus) {
				defer wg.Done()
				res, err := f.svc.Transition(context.Background(), c.ID, to)
				if err != nil {
					t.Errorf("Transition(%s) error: %v", to, err)
				}
				results[j] = res
			}(j, to)
		}
		wg.Wait()

		var winner domain.CommentStatus
		changed := 0
		for j, res := range results {
			if res.Changed {
				changed++
				winner = targets[j]
			}
		}
		require.Equal(t, 1, changed)

		final, err := f.comments.Get(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, winner, final.Status)

		approvals := 0
		if winner == domain.StatusApproved {
			approvals = 1
		}
		f.notifier.AssertNumberOfCalls(t, "NotifyApproval", approvals)
	}
}

// racingStore lets another moderator act between our read and our write.
type racingStore struct {
	*repository.CommentRepository
	interfere func(id string)
	casCalls  int
}

func (s *racingStore) CompareAndSetStatus(ctx context.Context, id string, from, to domain.CommentStatus) (bool, error) {
	s.casCalls++
	if s.interfere != nil {
		s.interfere(id)
	}
	return s.CommentRepository.CompareAndSetStatus(ctx, id, from, to)
}

func TestTransition_LoserReevaluatesAgainstNewStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)

	store := &racingStore{CommentRepository: f.comments}
	store.interfere = func(id string) {
		store.interfere = nil
		_, err := f.comments.CompareAndSetStatus(ctx, id, domain.StatusPending, domain.StatusSpam)
		require.NoError(t, err)
	}
	svc := NewService(store, repository.NewPostRepository(f.db), f.notifier, nil)

	res, err := svc.Transition(ctx, c.ID, domain.StatusApproved)
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Equal(t, domain.StatusSpam, res.Comment.Status)
	assert.Equal(t, 1, store.casCalls)
	f.notifier.AssertNotCalled(t, "NotifyApproval", mock.Anything, mock.Anything)
}

type alwaysConflict struct {
	*repository.CommentRepository
	calls int
}

func (s *alwaysConflict) CompareAndSetStatus(context.Context, string, domain.CommentStatus, domain.CommentStatus) (bool, error) {
	s.calls++
	return false, nil
}

func TestTransition_GivesUpAfterBoundedRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, nil)

	store := &alwaysConflict{CommentRepository: f.comments}
	svc := NewService(store, repository.NewPostRepository(f.db), f.notifier, nil)

	res, err := svc.Transition(context.Background(), c.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, maxTransitionRounds, store.calls)
	assert.Equal(t, domain.StatusPending, res.Comment.Status)
}

type failingCAS struct {
	*repository.CommentRepository
}

func (failingCAS) CompareAndSetStatus(context.Context, string, domain.CommentStatus, domain.CommentStatus) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestTransition_StorageFailureIsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, nil)
	svc := NewService(failingCAS{f.comments}, repository.NewPostRepository(f.db), f.notifier, nil)

	_, err := svc.Transition(context.Background(), c.ID, domain.StatusApproved)
	assert.ErrorContains(t, err, "disk I/O error")
	f.notifier.AssertNotCalled(t, "NotifyApproval", mock.Anything, mock.Anything)
}

func TestPublicThreads_UsesCacheAndInvalidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	top := f.create(t, nil)
	reply := f.create(t, &top.ID)

	for _, id := range []string{top.ID, reply.ID} {
		_, err := f.svc.Transition(ctx, id, domain.StatusApproved)
		require.NoError(t, err)
	}

	threads, err := f.svc.PublicThreads(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Replies, 1)

	cached, ok, err := f.cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, threads, cached)

	_, err = f.svc.Transition(ctx, reply.ID, domain.StatusPending)
	require.NoError(t, err)
	_, ok, _ = f.cache.Get(ctx, "p1")
	assert.False(t, ok)

	threads, err = f.svc.PublicThreads(ctx, "mapping-teams")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Empty(t, threads[0].Replies)
}

// blockingThreads holds ApprovedThreads open until release is closed.
type blockingThreads struct {
	*repository.CommentRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingThreads) ApprovedThreads(ctx context.Context, postID string) ([]domain.Thread, error) {
	threads, err := s.CommentRepository.ApprovedThreads(ctx, postID)
	s.once.Do(func() { close(s.entered) })
	<-s.release
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return threads, err
}

func TestPublicThreads_LoadRacingInvalidationIsNotCached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)
	_, err := f.svc.Transition(ctx, c.ID, domain.StatusApproved)
	require.NoError(t, err)

	store := &blockingThreads{CommentRepository: f.comments, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, repository.NewPostRepository(f.db), f.notifier, f.cache)

	done := make(chan []domain.Thread, 1)
	go func() {
		threads, err := svc.PublicThreads(ctx, "p1")
		assert.NoError(t, err)
		done <- threads
	}()

	<-store.entered
	res, err := svc.Transition(ctx, c.ID, domain.StatusPending)
	require.NoError(t, err)
	require.True(t, res.Changed)
	close(store.release)

	stale := <-done
	assert.Len(t, stale, 1, "the in-flight read still answers its own caller")

	_, ok, _ := f.cache.Get(ctx, "p1")
	assert.False(t, ok, "a load that began before the status change must not be cached")

	threads, err := svc.PublicThreads(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestPublicThreads_CallerCancellationDoesNotFailLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, nil)
	_, err := f.svc.Transition(context.Background(), c.ID, domain.StatusApproved)
	require.NoError(t, err)

	store := &blockingThreads{CommentRepository: f.comments, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, repository.NewPostRepository(f.db), f.notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.PublicThreads(ctx, "p1")
		first <- err
	}()

	<-store.entered
	second := make(chan error, 1)
	go func() {
		threads, err := svc.PublicThreads(context.Background(), "p1")
		if err == nil && len(threads) != 1 {
			err = errors.New("expected one thread")
		}
		second <- err
	}()

	cancel()
	close(store.release)

	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
}

func TestPublicThreads_UnknownPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.PublicThreads(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestModerationQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, nil)
	f.create(t, nil)
	f.create(t, nil)
	_, err := f.svc.Transition(ctx, a.ID, domain.StatusSpam)
	require.NoError(t, err)

	q, err := f.svc.ModerationQueue(ctx, domain.CommentFilter{Status: domain.StatusPending, Limit: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 2, q.Total)
	assert.Len(t, q.Comments, 2)
	assert.EqualValues(t, 2, q.Counts[domain.StatusPending])
	assert.EqualValues(t, 1, q.Counts[domain.StatusSpam])
	assert.EqualValues(t, 0, q.Counts[domain.StatusRejected])

	q, err = f.svc.ModerationQueue(ctx, domain.CommentFilter{Status: domain.StatusRejected})
	require.NoError(t, err)
	assert.NotNil(t, q.Comments)
	assert.Empty(t, q.Comments)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, nil)

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	assert.Contains(t, f.cache.invalidated, "p1")

	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID), domain.ErrCommentNotFound)
}
