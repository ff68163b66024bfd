package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"starminder/internal/notifier"
	"starminder/internal/pipeline"
	"starminder/internal/queue"
)

var generateUserID string

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a reminder for one user, ignoring their schedule",
	Run:   runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateUserID, "user", "", "user id to generate a reminder for")
	generateCmd.MarkFlagRequired("user")
}

func runGenerate(cmd *cobra.Command, args []string) {
	a, err := bootstrap()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	if _, err := a.db.GetUserByID(generateUserID); err != nil {
		log.Fatalf("Unknown user %s: %v", generateUserID, err)
	}

	inline := queue.NewInline()
	guard := pipeline.NewGuard(pipeline.DefaultGuardTTL)
	mailer := notifier.NewMailer(a.cfg.Email)
	jobs := pipeline.NewJobs(a.db, a.providers, inline, guard, mailer, a.fetchTimeout())
	jobs.Register(inline)

	if !guard.Acquire(generateUserID) {
		log.Fatalf("Pipeline already in flight for user %s", generateUserID)
	}
	inline.Enqueue(pipeline.TaskUserJob, generateUserID)

	if err := inline.Err(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	fmt.Printf("✅ Generated reminder pipeline for user %s\n", generateUserID)
}
