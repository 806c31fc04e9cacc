package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pbi-manager/activity-sync/activity/internal/merger"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/repository"
	"github.com/pbi-manager/activity-sync/activity/internal/tokens"
	"github.com/pbi-manager/activity-sync/activity/internal/upstream"
	"github.com/pbi-manager/activity-sync/activity/internal/window"
	"github.com/pbi-manager/activity-sync/common/messaging"
)

type fixedPlanner window.Window

func (p fixedPlanner) Plan(context.Context, *int) (window.Window, error) {
	return window.Window(p), nil
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchAll(ctx context.Context, start, end time.Time, token string) ([]upstream.RawRecord, []models.FailedRequest) {
	args := m.Called(ctx, start, end, token)
	var records []upstream.RawRecord
	if v := args.Get(0); v != nil {
		records = v.([]upstream.RawRecord)
	}
	var failed []models.FailedRequest
	if v := args.Get(1); v != nil {
		failed = v.([]models.FailedRequest)
	}
	return records, failed
}

type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) Token(ctx context.Context, credential string) (string, error) {
	args := m.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

func (m *MockPublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockPublisher) Close() error { return nil }

func record(id string, created string) upstream.RawRecord {
	return upstream.RawRecord{
		"Id": id, "Activity": "ViewReport", "Operation": "ViewReport",
		"OrganizationId": "org", "UserId": "u@example.com", "UserKey": "k",
		"CreationTime": created,
	}
}

// twoDays spans the end of 14 Jan and the start of 15 Jan.
var twoDays = window.Window{
	Start: time.Date(2024, 1, 14, 22, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC),
}

func newOrchestrator(repo *repository.InMemoryRepository, fetcher *MockFetcher, tok tokens.Provider, pub messaging.Publisher) *Orchestrator {
	return New("fetch_activity_events", "default", Deps{
		Planner:  fixedPlanner(twoDays),
		Tokens:   tok,
		Fetcher:  fetcher,
		Merger:   merger.New(repo, true, nil),
		Runs:     repo,
		Notifier: pub,
	})
}

func TestRunSync_Success(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	days := window.SplitDays(twoDays.Start, twoDays.End)
	require.Len(t, days, 2)

	fetcher := new(MockFetcher)
	fetcher.On("FetchAll", mock.Anything, days[0].Start, days[0].End, "tok").
		Return([]upstream.RawRecord{record("a", "2024-01-14T22:30:00Z"), record("b", "2024-01-14T23:00:00Z")}, nil).Once()
	fetcher.On("FetchAll", mock.Anything, days[1].Start, days[1].End, "tok").
		Return([]upstream.RawRecord{record("b", "2024-01-14T23:00:00Z"), record("c", "2024-01-15T01:00:00Z")}, nil).Once()

	tok := new(MockTokens)
	tok.On("Token", mock.Anything, "default").Return("tok", nil).Twice()

	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, messaging.SubjectSyncCompleted, mock.MatchedBy(func(data []byte) bool {
		var c Completion
		return json.Unmarshal(data, &c) == nil && c.Status == models.StatusSuccess && c.Created == 3
	})).Return(nil).Once()

	o := newOrchestrator(repo, fetcher, tok, pub)
	res, err := o.RunSync(ctx, Options{RunID: "synctask-test", PersistRun: true})
	require.NoError(t, err)

	assert.Equal(t, "synctask-test", res.RunID)
	assert.Equal(t, twoDays.Start, res.Start)
	assert.Equal(t, twoDays.End, res.End)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.False(t, res.HasFailedRequests)
	assert.False(t, res.HasFailedRecords)
	assert.Len(t, res.Details, 2)

	run, err := repo.GetRun(ctx, "synctask-test")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Equal(t, "fetch_activity_events", run.TaskName)

	e, err := repo.GetEvent(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "synctask-test", e.TaskID)

	fetcher.AssertExpectations(t)
	tok.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRunSync_PageFailureIsolated(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRepository()
	days := window.SplitDays(twoDays.Start, twoDays.End)

	fetcher := new(MockFetcher)
	fetcher.On("FetchAll", mock.Anything, days[0].Start, days[0].End, "tok").
		Return([]upstream.RawRecord{record("a", "2024-01-14T22:30:00Z")},
			[]models.FailedRequest{{URL: "https://api/next", Error: "status 500"}}).Once()
	fetcher.On("FetchAll", mock.Anything, days[1].Start, days[1].End, "tok").
		Return([]upstream.RawRecord{record("c", "2024-01-15T01:00:00Z")}, nil).Once()

	tok := new(MockTokens)
	tok.On("Token", mock.Anything, "default").Return("tok", nil)

	res, err := newOrchestrator(repo, fetcher, tok, nil).RunSync(ctx, Options{RunID: "synctask-fail", PersistRun: true})
	require.NoError(t, err)
	assert.True(t, res.HasFailedRequests)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, models.StatusFailure, res.Status())

	run, err := repo.GetRun(ctx, "synctask-fail")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, run.Status)
	assert.Equal(t, 1, run.Result.FailedRequests)
}

func TestRunSync_RecordFailureMarksRun(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	fetcher := new(MockFetcher)
	bad := record("", "2024-01-14T22:30:00Z")
	fetcher.On("FetchAll", mock.Anything, mock.Anything, mock.Anything, "tok").
		Return([]upstream.RawRecord{bad}, nil)

	tok := new(MockTokens)
	tok.On("Token", mock.Anything, "default").Return("tok", nil)

	res, err := newOrchestrator(repo, fetcher, tok, nil).RunSync(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.HasFailedRecords)
	assert.Equal(t, 2, res.FailedRecords)
	assert.Contains(t, res.RunID, models.RunIDPrefix)

	runs, err := repo.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "run is only stored when requested")
}

func TestRunSync_CredentialErrorIsFatal(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	fetcher := new(MockFetcher)
	tok := new(MockTokens)
	tok.On("Token", mock.Anything, "default").Return("", tokens.ErrCredential)

	res, err := newOrchestrator(repo, fetcher, tok, nil).RunSync(context.Background(), Options{RunID: "synctask-x", PersistRun: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, tokens.ErrCredential)
	assert.Nil(t, res)

	_, err = repo.GetRun(context.Background(), "synctask-x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	fetcher.AssertNotCalled(t, "FetchAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type brokenMerger struct{}

func (brokenMerger) Merge(context.Context, []upstream.RawRecord, string) (merger.Result, error) {
	return merger.Result{}, errors.Join(repository.ErrStorage, errors.New("connection reset"))
}

func TestRunSync_StorageErrorIsFatal(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	fetcher := new(MockFetcher)
	fetcher.On("FetchAll", mock.Anything, mock.Anything, mock.Anything, "tok").Return(nil, nil)

	o := New("t", "default", Deps{
		Planner: fixedPlanner(twoDays),
		Tokens:  tokens.Static("tok"),
		Fetcher: fetcher,
		Merger:  brokenMerger{},
		Runs:    repo,
	})
	_, err := o.RunSync(context.Background(), Options{RunID: "synctask-y", PersistRun: true})
	assert.ErrorIs(t, err, repository.ErrStorage)

	runs, _ := repo.ListRuns(context.Background(), "", 0)
	assert.Empty(t, runs)
}

func TestRunSync_Cancelled(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New("t", "default", Deps{
		Planner: fixedPlanner(twoDays),
		Tokens:  tokens.Static("tok"),
		Fetcher: new(MockFetcher),
		Merger:  merger.New(repo, true, nil),
		Runs:    repo,
	})
	_, err := o.RunSync(ctx, Options{PersistRun: true})
	assert.ErrorIs(t, err, context.Canceled)

	runs, _ := repo.ListRuns(context.Background(), "", 0)
	assert.Empty(t, runs)
}

func TestRunSync_PlannerScenario(t *testing.T) {
	// last success five days ago, 30 day cap, 2 hour buffer
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.AddDate(0, 0, -5)

	planner := &window.Planner{
		TaskName:    "t",
		MaxPastDays: 30,
		BufferHours: 2,
		Now:         func() time.Time { return now },
		Sources: []window.LastSuccessSource{window.SourceFunc(func(context.Context, string) (*time.Time, error) {
			return &last, nil
		})},
	}

	fetcher := new(MockFetcher)
	fetcher.On("FetchAll", mock.Anything, mock.Anything, mock.Anything, "tok").Return(nil, nil)

	repo := repository.NewInMemoryRepository()
	o := New("t", "default", Deps{
		Planner: planner,
		Tokens:  tokens.Static("tok"),
		Fetcher: fetcher,
		Merger:  merger.New(repo, true, nil),
		Runs:    repo,
	})
	res, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, last.Add(-2*time.Hour), res.Start)
	assert.Equal(t, now, res.End)
	assert.Len(t, res.Details, 6)
}
