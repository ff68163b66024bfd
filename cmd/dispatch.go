package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"starminder/internal/notifier"
	"starminder/internal/pipeline"
	"starminder/internal/queue"
)

// dispatchCmd represents the dispatch command
var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the reminder pipeline for all currently due users",
	Long: `Run dispatch once, immediately, for every user whose schedule matches
the current hour. Each due user's full pipeline (fetch, sample, notify,
cleanup) runs to completion before the command exits.`,
	Run: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) {
	a, err := bootstrap()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	inline := queue.NewInline()
	guard := pipeline.NewGuard(pipeline.DefaultGuardTTL)
	mailer := notifier.NewMailer(a.cfg.Email)
	jobs := pipeline.NewJobs(a.db, a.providers, inline, guard, mailer, a.fetchTimeout())
	jobs.Register(inline)

	if err := jobs.StartJobs(); err != nil {
		log.Fatalf("Dispatch failed: %v", err)
	}
	if err := inline.Err(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	fmt.Println("✅ Dispatch complete")
}
