package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/compassionsafe/portal/internal/config"
	"github.com/compassionsafe/portal/internal/jobs"
	"github.com/compassionsafe/portal/internal/sms"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config error:", err)
	}

	var gateway sms.Gateway
	if cfg.HasSMS() {
		gateway = sms.NewHTTPGateway(cfg.SMS.URL, cfg.SMS.APIKey)
	} else {
		log.Println("no SMS gateway configured, logging sends to stdout")
		gateway = sms.StdoutGateway{}
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency:    8,
		StrictPriority: false,
		Queues: map[string]int{
			"sms":     10, // higher priority
			"default": 5,  // default priority
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskSendSMS, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.SendSMSPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Printf("[asynq] bad payload: %v", err)
			return err
		}
		start := time.Now()
		err := gateway.Send(ctx, p.Phone, p.Message)
		duration := time.Since(start)

		if err != nil {
			if isRetryableError(err) {
				log.Printf("[sms] retryable error broadcast=%s phone=%s duration=%v: %v", p.BroadcastID, p.Phone, duration, err)
				return err // allow retry
			}
			log.Printf("[sms] permanent error broadcast=%s phone=%s duration=%v: %v (dropping job)", p.BroadcastID, p.Phone, duration, err)
			return nil // don't retry permanent failures
		}
		log.Printf("[sms] sent broadcast=%s phone=%s duration=%v", p.BroadcastID, p.Phone, duration)
		return nil
	})

	log.Println("Worker running...")
	log.Fatal(srv.Run(mux))
}

// isRetryableError determines if a failed send should be attempted again
func isRetryableError(err error) bool {
	errStr := strings.ToLower(err.Error())

	// Network/connectivity issues - should retry
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") {
		return true
	}

	// Provider rate limiting - should retry later
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	// Temporary server errors - should retry
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Everything else (bad numbers, rejected content) - don't retry
	return false
}
