package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catholink/internal/attendance"
	"catholink/internal/config"
	"catholink/internal/metrics"
	"catholink/internal/notify"
	"catholink/internal/queue"
	"catholink/internal/store"
)

// Worker consumes attendance notification jobs and fans them out to
// parents over email, push and SMS. Delivery is best-effort: a failed
// channel is logged and counted, never retried into the scan path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "catholink:notifications")
	}

	loc := cfg.Location()

	var email notify.EmailSender
	if cfg.SendGridKey != "" {
		email = notify.NewSendGridEmail(cfg.SendGridKey, cfg.EmailFromName, cfg.EmailFromAddress, cfg.EmailTemplateID)
	} else {
		log.Println("SENDGRID_API_KEY not set, email channel disabled")
	}

	var push notify.PushSender
	if cfg.PushGatewayURL != "" {
		push = notify.NewPushClient(cfg.PushGatewayURL, cfg.PushGatewayKey)
	} else {
		log.Println("PUSH_GATEWAY_URL not set, push channel disabled")
	}

	var sms notify.SMSSender
	if cfg.SMSGatewayURL != "" {
		sms = notify.NewSMSClient(cfg.SMSGatewayURL, cfg.SMSGatewayKey)
	} else {
		log.Println("SMS_GATEWAY_URL not set, sms channel disabled")
	}

	dispatcher := notify.NewDispatcher(email, push, sms, loc)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for notification jobs...")
	for msg := range messages {
		if msg.Type != attendance.JobType {
			continue
		}

		var job attendance.NotificationJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("bad notification job: %v", err)
			continue
		}

		log.Printf("dispatching notifications for record %s (%s, %s)",
			job.Record.ID, job.Record.StudentName, job.Record.Status)

		outcome := dispatcher.Dispatch(ctx, job.Record, job.Student)
		for _, ch := range outcome.Channels() {
			switch {
			case ch.Skipped:
				metrics.Notifications.WithLabelValues(ch.Channel, "skipped").Inc()
			case ch.Err != nil:
				metrics.Notifications.WithLabelValues(ch.Channel, "failed").Inc()
				log.Printf("record %s: %s delivery failed: %v", job.Record.ID, ch.Channel, ch.Err)
			default:
				metrics.Notifications.WithLabelValues(ch.Channel, "sent").Inc()
			}
		}
	}

	log.Println("worker stopped")
}
