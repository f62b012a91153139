// Package queue wraps asynq task publishing and handler registration for
// the background worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tablecode/tablecode/internal/config"
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SendOTP enqueues an OTP delivery email on the critical queue. The OTP
// rides in the task payload only for the lifetime of the job.
func (c *Client) SendOTP(_ context.Context, email, code, otp string) error {
	return c.enqueue(TypeOTPEmail, OTPEmailPayload{Email: email, Code: code, OTP: otp},
		asynq.Queue("critical"), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
}

func (c *Client) EnqueuePurgeSweep() error {
	return c.enqueue(TypePurgeSweep, PurgeSweepPayload{},
		asynq.Queue("low"), asynq.MaxRetry(1), asynq.Timeout(10*time.Minute))
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.Enqueue(task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
