package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"starminder/internal/notifier"
	"starminder/internal/pipeline"
	"starminder/internal/queue"
	"starminder/internal/scheduler"
	"starminder/internal/web"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Starminder service",
	Long: `Start the long-running Starminder service which provides:
- Hourly dispatch of due reminder pipelines
- Task queue workers running the fetch/sample/notify stages
- HTTP server for the public reminder feeds`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config file)")
	serveCmd.Flags().Bool("scheduler", true, "Run the hourly dispatch scheduler")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("scheduler.enabled", serveCmd.Flags().Lookup("scheduler"))
}

func runServe(cmd *cobra.Command, args []string) {
	a, err := bootstrap()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	fmt.Println("🚀 Starting Starminder...")
	fmt.Printf("   Config file: %s\n", viper.ConfigFileUsed())
	fmt.Printf("   Database: %s\n", a.cfg.Database.Type)
	fmt.Printf("   HTTP Listen: %s\n", a.cfg.Server.Listen)
	fmt.Printf("   Providers: %v\n", a.cfg.Providers.Enabled)

	pool := queue.NewPool(a.cfg.Queue.Workers, a.cfg.Queue.Size)
	guard := pipeline.NewGuard(pipeline.DefaultGuardTTL)
	mailer := notifier.NewMailer(a.cfg.Email)
	jobs := pipeline.NewJobs(a.db, a.providers, pool, guard, mailer, a.fetchTimeout())
	jobs.Register(pool)
	pool.Start()

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		sched = scheduler.New(jobs.StartJobs)
		sched.Start()
	} else {
		fmt.Println("   Scheduler: disabled")
	}

	router := web.SetupRouter(a.db, a.cfg.Server)
	httpServer := &http.Server{
		Addr:    a.cfg.Server.Listen,
		Handler: router,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	fmt.Println("✅ Starminder is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("🔄 Shutting down...")
	if sched != nil {
		sched.Stop()
	}
	pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	fmt.Println("✅ Shutdown complete")
}
