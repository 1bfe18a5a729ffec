// Command scan-cli creates a scan through the API and waits for its result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/jobhound/backend/internal/logger"
	"github.com/jobhound/backend/pkg/client"
)

func main() {
	_ = godotenv.Load()

	var (
		api     = flag.String("api", envOr("JOBHOUND_API", "http://localhost:8080"), "API base URL")
		token   = flag.String("token", os.Getenv("JOBHOUND_TOKEN"), "Bearer token")
		jobID   = flag.String("job", "", "Job id")
		resume  = flag.String("resume", "", "Resume id")
		timeout = flag.Duration("timeout", 3*time.Minute, "Maximum time to wait for the result")
	)
	flag.Parse()

	log := logger.New()
	if *jobID == "" || *resume == "" || *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*api, *token)
	id, err := c.CreateScanAsync(ctx, *jobID, *resume)
	if err != nil {
		log.WithError(err).Fatal("create scan failed")
	}
	log.WithField("scan_id", id).Info("scan admitted")

	policy := client.DefaultPollPolicy()
	policy.MaxDuration = *timeout
	policy.OnPoll = func(s *client.Scan) {
		log.WithField("status", s.Status).Debug("poll")
	}

	scan, err := c.WaitForScan(ctx, id, policy)
	var te *client.PollTimeoutError
	switch {
	case errors.As(err, &te):
		log.WithField("scan_id", id).Warn("gave up waiting; the scan is still processing")
		os.Exit(3)
	case err != nil:
		log.WithError(err).Fatal("wait failed")
	}

	if scan.Status == client.StatusError {
		fmt.Fprintln(os.Stderr, scan.ErrorMessage)
		os.Exit(1)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	_ = out.Encode(scan)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
