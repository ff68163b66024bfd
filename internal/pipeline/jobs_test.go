package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starminder/config"
	"starminder/internal/database"
	"starminder/internal/models"
	"starminder/internal/provider"
	"starminder/internal/queue"
	"starminder/internal/secrets"
)

type fakeClient struct {
	pagesByToken map[string][][]provider.StarRecord
	calls        []string
	err          error
}

func (f *fakeClient) FetchPage(ctx context.Context, token string, page int) ([]provider.StarRecord, bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", token, page))
	if f.err != nil {
		return nil, false, f.err
	}
	pages := f.pagesByToken[token]
	if page > len(pages) {
		return nil, true, nil
	}
	records := pages[page-1]
	return records, len(records) < provider.PageSize, nil
}

type recordedTask struct {
	name string
	args []any
}

type recordingQueue struct {
	tasks []recordedTask
}

func (r *recordingQueue) Enqueue(name string, args ...any) {
	r.tasks = append(r.tasks, recordedTask{name: name, args: args})
}

func (r *recordingQueue) names() []string {
	names := make([]string, 0, len(r.tasks))
	for _, t := range r.tasks {
		names = append(names, t.name)
	}
	return names
}

func makeRecords(prefix string, n int) []provider.StarRecord {
	records := make([]provider.StarRecord, n)
	for i := range records {
		id := fmt.Sprintf("%s-%d", prefix, i)
		records[i] = provider.StarRecord{
			ProviderID: id,
			Owner:      "owner",
			OwnerID:    "1",
			Name:       "repo-" + id,
			StarCount:  i,
			RepoURL:    "https://example.com/" + id,
			Raw:        json.RawMessage(`{}`),
		}
	}
	return records
}

func paginate(records []provider.StarRecord, pageSize int) [][]provider.StarRecord {
	var pages [][]provider.StarRecord
	for len(records) > pageSize {
		pages = append(pages, records[:pageSize])
		records = records[pageSize:]
	}
	return append(pages, records)
}

func setupTestDB(t *testing.T) *database.GormDB {
	t.Helper()

	keeper, err := secrets.NewKeeper("")
	require.NoError(t, err)

	db, err := database.NewGormDB("sqlite", config.DatabaseConfig{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, keeper)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AutoMigrate())
	return db
}

func setupUser(t *testing.T, db *database.GormDB, username string) *models.User {
	t.Helper()

	user, err := db.CreateUser(username, "", username+"@example.com")
	require.NoError(t, err)
	_, err = db.CreateProviderToken(user.ID, "github", "tok-"+username)
	require.NoError(t, err)
	return user
}

func newTestJobs(db *database.GormDB, client provider.Client, q queue.Enqueuer, guard *Guard) *Jobs {
	jobs := NewJobs(db, provider.Registry{provider.GitHub: client}, q, guard, nil, time.Second)
	jobs.newRand = func() *rand.Rand { return rand.New(rand.NewSource(1)) }
	return jobs
}

func runPipeline(t *testing.T, db *database.GormDB, client provider.Client, userID string) *Guard {
	t.Helper()

	inline := queue.NewInline()
	guard := NewGuard(time.Hour)
	jobs := newTestJobs(db, client, inline, guard)
	jobs.Register(inline)

	require.True(t, guard.Acquire(userID))
	inline.Enqueue(TaskUserJob, userID)
	require.NoError(t, inline.Err())
	return guard
}

func TestPipelineTerminatesPagination(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	// 250 records: two full pages and one short page
	client := &fakeClient{pagesByToken: map[string][][]provider.StarRecord{
		"tok-alice": paginate(makeRecords("r", 250), provider.PageSize),
	}}

	guard := runPipeline(t, db, client, user.ID)

	assert.Equal(t, []string{"tok-alice:1", "tok-alice:2", "tok-alice:3"}, client.calls)

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Len(t, reminders[0].Stars, models.DefaultMaxEntries)

	// cleanup ran and released the pipeline slot
	staged, err := db.TempStarsForUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, staged)
	assert.True(t, guard.Acquire(user.ID))
}

func TestPipelineSweepsAllTokens(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")
	time.Sleep(2 * time.Millisecond) // keep token creation order distinct
	_, err := db.CreateProviderToken(user.ID, "github", "tok-second")
	require.NoError(t, err)

	client := &fakeClient{pagesByToken: map[string][][]provider.StarRecord{
		"tok-alice":  paginate(makeRecords("a", 120), provider.PageSize),
		"tok-second": paginate(makeRecords("b", 3), provider.PageSize),
	}}

	runPipeline(t, db, client, user.ID)

	// first token pages out, then the next token restarts at page 1
	assert.Equal(t, []string{"tok-alice:1", "tok-alice:2", "tok-second:1"}, client.calls)
}

func TestPipelineSkipsRejectedToken(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")
	_, err := db.CreateProviderToken(user.ID, "github", "tok-good")
	require.NoError(t, err)

	// first token is revoked upstream, second still works
	client := &revokedThenGood{good: "tok-good", records: makeRecords("g", 4)}

	runPipeline(t, db, client, user.ID)

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Len(t, reminders[0].Stars, 4)
}

type revokedThenGood struct {
	good    string
	records []provider.StarRecord
}

func (c *revokedThenGood) FetchPage(ctx context.Context, token string, page int) ([]provider.StarRecord, bool, error) {
	if token != c.good {
		return nil, false, &provider.APIError{StatusCode: 401, Body: "bad credentials"}
	}
	return c.records, true, nil
}

func TestUserJobReleasesGuardWithoutTokens(t *testing.T) {
	db := setupTestDB(t)
	user, err := db.CreateUser("alice", "", "alice@example.com")
	require.NoError(t, err)

	inline := queue.NewInline()
	guard := NewGuard(time.Hour)
	jobs := newTestJobs(db, &fakeClient{}, inline, guard)
	jobs.Register(inline)

	require.True(t, guard.Acquire(user.ID))
	inline.Enqueue(TaskUserJob, user.ID)
	require.NoError(t, inline.Err())

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, reminders)
	assert.True(t, guard.Acquire(user.ID), "guard must be released on the no-token exit")
}

func TestCleanupIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")
	require.NoError(t, db.AppendTempStars(user.ID, "github", makeRecords("r", 5)))

	guard := NewGuard(time.Hour)
	jobs := newTestJobs(db, &fakeClient{}, &recordingQueue{}, guard)

	require.NoError(t, jobs.CleanupTempStars(user.ID))
	require.NoError(t, jobs.CleanupTempStars(user.ID))

	staged, err := db.TempStarsForUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestDispatchMatchesSchedules(t *testing.T) {
	db := setupTestDB(t)

	everyDay := setupUser(t, db, "everyday")
	monday := setupUser(t, db, "monday")
	tuesday := setupUser(t, db, "tuesday")

	setSchedule := func(userID string, day, hour int) {
		profile, err := db.GetProfileForUser(userID)
		require.NoError(t, err)
		profile.DayOfWeek = day
		profile.HourOfDay = hour
		require.NoError(t, db.SaveProfileSettings(profile))
	}
	setSchedule(everyDay.ID, models.EveryDay, 12)
	setSchedule(monday.ID, 0, 12)
	setSchedule(tuesday.ID, 1, 12)

	dispatchAt := func(now time.Time) []string {
		rec := &recordingQueue{}
		guard := NewGuard(time.Hour)
		jobs := newTestJobs(db, &fakeClient{}, rec, guard)
		jobs.now = func() time.Time { return now }
		require.NoError(t, jobs.StartJobs())

		var users []string
		for _, task := range rec.tasks {
			require.Equal(t, TaskUserJob, task.name)
			users = append(users, task.args[0].(string))
		}
		return users
	}

	mondayNoon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	assert.ElementsMatch(t, []string{everyDay.ID, monday.ID}, dispatchAt(mondayNoon))
	assert.Empty(t, dispatchAt(mondayNoon.Add(time.Hour)), "nothing due at hour 13")
	assert.ElementsMatch(t, []string{everyDay.ID, tuesday.ID}, dispatchAt(mondayNoon.Add(24*time.Hour)))
}

func TestDispatchSkipsUsersWithoutTokens(t *testing.T) {
	db := setupTestDB(t)
	user, err := db.CreateUser("tokenless", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	jobs.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, jobs.StartJobs())
	assert.Empty(t, rec.tasks)
}

func TestDispatchRespectsSingleFlight(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	rec := &recordingQueue{}
	guard := NewGuard(time.Hour)
	jobs := newTestJobs(db, &fakeClient{}, rec, guard)
	jobs.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	require.True(t, guard.Acquire(user.ID), "simulate an in-flight run")
	require.NoError(t, jobs.StartJobs())
	assert.Empty(t, rec.tasks, "dispatch must not double-start a user's pipeline")
}

func TestGenerateDataCreatesReminderAndAdvancesCycle(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")
	require.NoError(t, db.AppendTempStars(user.ID, "github", makeRecords("r", 5)))

	profile, err := db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	profile.MaxEntries = 3
	require.NoError(t, db.SaveProfileSettings(profile))

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	require.NoError(t, jobs.GenerateData(user.ID))

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Len(t, reminders[0].Stars, 3)

	// fresh cycle with unshown records remaining: the marker falls back to
	// the first sampled snapshot
	profile, err = db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.CycleStartID)
	assert.Equal(t, reminders[0].Stars[0].ID, *profile.CycleStartID)

	// no reminder email configured, so only cleanup follows
	assert.Equal(t, []string{TaskCleanup}, rec.names())
}

func TestGenerateDataNoStagedRecords(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	require.NoError(t, jobs.GenerateData(user.ID))

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, reminders, "no reminder without staged records")

	profile, err := db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.CycleStartID, "cycle state untouched")

	assert.Equal(t, []string{TaskCleanup}, rec.names())
}

func TestGenerateDataFiltersArchived(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	records := makeRecords("live", 3)
	archived := makeRecords("dead", 3)
	for i := range archived {
		archived[i].Archived = true
	}
	require.NoError(t, db.AppendTempStars(user.ID, "github", append(records, archived...)))

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	require.NoError(t, jobs.GenerateData(user.ID))

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	require.Len(t, reminders[0].Stars, 3, "only the live records are eligible")
	for _, star := range reminders[0].Stars {
		assert.False(t, star.Archived)
	}
}

func TestGenerateDataIncludesArchivedWhenConfigured(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	records := makeRecords("dead", 4)
	for i := range records {
		records[i].Archived = true
	}
	require.NoError(t, db.AppendTempStars(user.ID, "github", records))

	profile, err := db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	profile.IncludeArchived = true
	require.NoError(t, db.SaveProfileSettings(profile))

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	require.NoError(t, jobs.GenerateData(user.ID))

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Len(t, reminders[0].Stars, 4)
}

func TestGenerateDataQueuesEmailWhenConfigured(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")
	require.NoError(t, db.AppendTempStars(user.ID, "github", makeRecords("r", 5)))

	profile, err := db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	email := "alice@example.com"
	profile.ReminderEmail = &email
	require.NoError(t, db.SaveProfileSettings(profile))

	rec := &recordingQueue{}
	jobs := newTestJobs(db, &fakeClient{}, rec, NewGuard(time.Hour))
	require.NoError(t, jobs.GenerateData(user.ID))

	assert.Equal(t, []string{TaskSendEmail, TaskCleanup}, rec.names())
}

// Running the pipeline repeatedly over a stable star set must show every
// record before any repeats, then reset.
func TestPipelineCompletesFullCycle(t *testing.T) {
	db := setupTestDB(t)
	user := setupUser(t, db, "alice")

	profile, err := db.GetProfileForUser(user.ID)
	require.NoError(t, err)
	profile.MaxEntries = 2
	require.NoError(t, db.SaveProfileSettings(profile))

	client := &fakeClient{pagesByToken: map[string][][]provider.StarRecord{
		"tok-alice": {makeRecords("r", 4)},
	}}

	seenBeforeReset := make(map[string]int)
	var resetAfter int
	for run := 1; run <= 4; run++ {
		client.calls = nil
		runPipeline(t, db, client, user.ID)

		profile, err := db.GetProfileForUser(user.ID)
		require.NoError(t, err)
		if profile.CycleStartID == nil {
			resetAfter = run
			break
		}
	}
	require.Greater(t, resetAfter, 0, "cycle never completed")

	reminders, err := db.RemindersForUser(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, reminders, resetAfter)
	for _, reminder := range reminders {
		for _, star := range reminder.Stars {
			seenBeforeReset[star.ProviderID]++
		}
	}

	// four records at two per reminder: the second draw exhausts the unshown
	// pool exactly, completing the cycle with no repeats inside it
	assert.Equal(t, 2, resetAfter)
	assert.Len(t, seenBeforeReset, 4)
	for id, count := range seenBeforeReset {
		assert.Equal(t, 1, count, "record %s repeated within one cycle", id)
	}
}
