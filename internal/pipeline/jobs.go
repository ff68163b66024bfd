package pipeline

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"starminder/internal/database"
	"starminder/internal/models"
	"starminder/internal/provider"
	"starminder/internal/queue"
)

// Task names. Each pipeline stage runs as its own queued task, so one slow
// provider never stalls dispatch and a restart between stages loses at most
// one stage of work.
const (
	TaskUserJob      = "user_job"
	TaskPager        = "pager"
	TaskGenerateData = "generate_data"
	TaskCleanup      = "cleanup_temp_stars"
	TaskSendEmail    = "send_email"
)

// Notifier delivers a rendered reminder digest. Implementations live outside
// the pipeline; failures surface as task failures.
type Notifier interface {
	Send(ctx context.Context, recipient string, user *models.User, reminder *models.Reminder) error
}

// Jobs owns the pipeline stages and their transitions.
type Jobs struct {
	db        *database.GormDB
	providers provider.Registry
	queue     queue.Enqueuer
	guard     *Guard
	notifier  Notifier

	fetchTimeout time.Duration

	// injectable for deterministic tests
	newRand func() *rand.Rand
	now     func() time.Time
}

func NewJobs(db *database.GormDB, providers provider.Registry, q queue.Enqueuer, guard *Guard, notifier Notifier, fetchTimeout time.Duration) *Jobs {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Jobs{
		db:           db,
		providers:    providers,
		queue:        q,
		guard:        guard,
		notifier:     notifier,
		fetchTimeout: fetchTimeout,
		newRand:      NewRand,
		now:          time.Now,
	}
}

// Register binds every pipeline stage to its task name.
func (j *Jobs) Register(r queue.Registry) {
	r.Register(TaskUserJob, func(args ...any) error {
		userID, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		return j.UserJob(userID)
	})
	r.Register(TaskPager, func(args ...any) error {
		userID, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		tokenIDs, err := stringsArg(args, 1)
		if err != nil {
			return err
		}
		page, err := intArg(args, 2)
		if err != nil {
			return err
		}
		return j.Pager(userID, tokenIDs, page)
	})
	r.Register(TaskGenerateData, func(args ...any) error {
		userID, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		return j.GenerateData(userID)
	})
	r.Register(TaskCleanup, func(args ...any) error {
		userID, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		return j.CleanupTempStars(userID)
	})
	r.Register(TaskSendEmail, func(args ...any) error {
		userID, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		reminderID, err := stringArg(args, 1)
		if err != nil {
			return err
		}
		return j.SendEmail(userID, reminderID)
	})
}

// StartJobs is the hourly dispatch stage: for every profile due right now,
// claim the user's single-flight slot and enqueue their pipeline. Users with
// no tokens or with a run already in flight are skipped without state change.
func (j *Jobs) StartJobs() error {
	now := j.now().UTC()
	profiles, err := j.db.DueProfiles(now)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	dispatched := 0
	for _, profile := range profiles {
		tokens, err := j.db.TokensForUser(profile.UserID)
		if err != nil {
			log.Printf("⚠️ Skipping user %s: %v", profile.UserID, err)
			continue
		}
		if len(tokens) == 0 {
			log.Printf("User %s is due but has no provider tokens, skipping", profile.UserID)
			continue
		}
		if !j.guard.Acquire(profile.UserID) {
			log.Printf("⚠️ Pipeline already in flight for user %s, skipping dispatch", profile.UserID)
			continue
		}
		j.queue.Enqueue(TaskUserJob, profile.UserID)
		dispatched++
	}

	log.Printf("🔄 Dispatch at %s: %d due, %d enqueued", now.Format("Mon 15:04"), len(profiles), dispatched)
	return nil
}

// UserJob starts one user's pipeline: collect their token IDs and enqueue
// the first paging step.
func (j *Jobs) UserJob(userID string) error {
	tokens, err := j.db.TokensForUser(userID)
	if err != nil {
		return fmt.Errorf("user job for %s failed: %w", userID, err)
	}
	if len(tokens) == 0 {
		log.Printf("User %s has no provider tokens, releasing pipeline", userID)
		j.guard.Release(userID)
		return nil
	}

	tokenIDs := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tokenIDs = append(tokenIDs, tok.ID)
	}

	j.queue.Enqueue(TaskPager, userID, tokenIDs, 1)
	return nil
}

// Pager fetches one page for the head token and stages the results.
// Transitions: a full page continues on the same token at page+1; a short
// page advances to the next token at page 1; a short page on the last token
// moves the pipeline to sampling.
func (j *Jobs) Pager(userID string, tokenIDs []string, page int) error {
	if len(tokenIDs) == 0 {
		j.queue.Enqueue(TaskGenerateData, userID)
		return nil
	}

	advance := func() {
		j.queue.Enqueue(TaskPager, userID, tokenIDs[1:], 1)
	}

	token, err := j.db.GetTokenByID(tokenIDs[0])
	if err != nil {
		log.Printf("⚠️ Token %s not found for user %s, skipping: %v", tokenIDs[0], userID, err)
		advance()
		return nil
	}

	prov, err := provider.Parse(token.Provider)
	if err != nil {
		log.Printf("⚠️ CRITICAL: no implementation for provider %q (token %s), skipping", token.Provider, token.ID)
		advance()
		return nil
	}
	client, ok := j.providers.For(prov)
	if !ok {
		log.Printf("⚠️ CRITICAL: provider %q not registered, skipping token %s", prov, token.ID)
		advance()
		return nil
	}

	plaintext, err := j.db.TokenPlaintext(token)
	if err != nil {
		log.Printf("⚠️ Failed to open token %s, skipping: %v", token.ID, err)
		advance()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.fetchTimeout)
	records, lastPage, err := client.FetchPage(ctx, plaintext, page)
	cancel()
	if err != nil {
		if provider.IsPermanent(err) {
			// aborts this token only; other tokens still get their sweep
			log.Printf("⚠️ Provider rejected token %s on page %d, skipping: %v", token.ID, page, err)
			advance()
			return nil
		}
		return fmt.Errorf("page %d for token %s failed: %w", page, token.ID, err)
	}

	if err := j.db.AppendTempStars(userID, token.Provider, records); err != nil {
		return err
	}
	log.Printf("Staged %d records for user %s (%s page %d)", len(records), userID, prov, page)

	if !lastPage {
		j.queue.Enqueue(TaskPager, userID, tokenIDs, page+1)
		return nil
	}
	if len(tokenIDs) > 1 {
		advance()
		return nil
	}
	j.queue.Enqueue(TaskGenerateData, userID)
	return nil
}

// GenerateData is the sampling stage: draw the selection, persist the
// reminder, advance the cycle marker, hand off to notification and cleanup.
func (j *Jobs) GenerateData(userID string) error {
	profile, err := j.db.GetProfileForUser(userID)
	if err != nil {
		return err
	}

	staged, err := j.db.TempStarsForUser(userID)
	if err != nil {
		return err
	}

	candidates := staged
	if !profile.IncludeArchived {
		candidates = make([]models.TempStar, 0, len(staged))
		for _, rec := range staged {
			if !rec.Archived {
				candidates = append(candidates, rec)
			}
		}
	}

	if len(candidates) == 0 {
		log.Printf("No records staged for user %s, nothing to sample", userID)
		j.queue.Enqueue(TaskCleanup, userID)
		return nil
	}

	shown, err := j.db.ShownProviderIDs(userID, profile.CycleStartID, profile.IncludeArchived)
	if err != nil {
		return err
	}

	maxEntries := profile.MaxEntries
	if maxEntries <= 0 {
		maxEntries = models.DefaultMaxEntries
	}

	selection := ComputeSelection(candidates, shown, maxEntries, j.newRand())
	if len(selection.Records) == 0 {
		log.Printf("Empty selection for user %s, skipping reminder", userID)
		j.queue.Enqueue(TaskCleanup, userID)
		return nil
	}

	reminder, err := j.db.CreateReminder(userID, selection.Records)
	if err != nil {
		return err
	}

	newStart := nextCycleStart(profile.CycleStartID, selection, reminder.Stars)
	if err := j.db.UpdateCycleStart(profile.ID, newStart); err != nil {
		return err
	}

	log.Printf("✅ Created reminder %s for user %s with %d stars (cycle complete: %v)",
		reminder.ID, userID, len(reminder.Stars), selection.CycleComplete)

	if profile.WantsEmail() {
		j.queue.Enqueue(TaskSendEmail, userID, reminder.ID)
	}
	j.queue.Enqueue(TaskCleanup, userID)
	return nil
}

// nextCycleStart decides the new cycle boundary after a reminder. A complete
// cycle clears the marker; otherwise the snapshot at the cutoff position
// becomes the new boundary, falling back to the first snapshot when no
// marker existed yet.
func nextCycleStart(previous *uint, sel Selection, stars []models.Star) *uint {
	switch {
	case sel.CycleComplete:
		return nil
	case sel.CutoffIndex >= 0 && sel.CutoffIndex < len(stars):
		return &stars[sel.CutoffIndex].ID
	case previous == nil:
		return &stars[0].ID
	}
	return previous
}

// SendEmail renders and delivers the reminder digest for a user.
func (j *Jobs) SendEmail(userID, reminderID string) error {
	profile, err := j.db.GetProfileForUser(userID)
	if err != nil {
		return err
	}
	if !profile.WantsEmail() {
		return nil
	}
	user, err := j.db.GetUserByID(userID)
	if err != nil {
		return err
	}
	reminder, err := j.db.GetReminderByID(reminderID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.fetchTimeout)
	defer cancel()
	if err := j.notifier.Send(ctx, *profile.ReminderEmail, user, reminder); err != nil {
		return fmt.Errorf("failed to send reminder %s: %w", reminderID, err)
	}
	log.Printf("📧 Sent reminder %s to user %s", reminderID, userID)
	return nil
}

// CleanupTempStars is the terminal stage: drop the staging rows and release
// the user's pipeline slot.
func (j *Jobs) CleanupTempStars(userID string) error {
	count, err := j.db.DeleteTempStarsForUser(userID)
	if err != nil {
		return err
	}
	log.Printf("🔄 Cleaned up %d staged records for user %s", count, userID)
	j.guard.Release(userID)
	return nil
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
	return s, nil
}

func stringsArg(args []any, i int) ([]string, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].([]string)
	if !ok {
		return nil, fmt.Errorf("argument %d: expected []string, got %T", i, args[i])
	}
	return s, nil
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	n, ok := args[i].(int)
	if !ok {
		return 0, fmt.Errorf("argument %d: expected int, got %T", i, args[i])
	}
	return n, nil
}
