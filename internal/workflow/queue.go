package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"notra/internal/logging"
)

// defaultRunTimeout bounds one workflow execution inside the consumer.
const defaultRunTimeout = 5 * time.Minute

// QueueConfig names the JetStream stream that carries run requests.
type QueueConfig struct {
	Stream     string
	RunTimeout time.Duration
}

// Publisher enqueues run requests onto the JetStream work queue. Scheduler
// callbacks publish here instead of running workflows inline so the HTTP
// response returns immediately and failed runs are re-delivered.
type Publisher struct {
	js     jetstream.JetStream
	stream string
	logger logging.Logger
}

// NewPublisher creates a Publisher on the given NATS connection.
func NewPublisher(nc *nats.Conn, cfg QueueConfig, logger logging.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "WORKFLOWS"
	}
	return &Publisher{js: js, stream: stream, logger: logging.OrNop(logger)}, nil
}

// Publish enqueues one run request.
func (p *Publisher) Publish(ctx context.Context, req RunRequest) error {
	if req.RunID == "" {
		req.RunID = NewRunID()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("workflows.run.%s", req.TriggerID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	p.logger.Debug("Queued run %s for trigger %s", req.RunID, req.TriggerID)
	return nil
}

// Consumer pulls run requests from the work queue and executes them through
// the Runner. Failed runs are Nak'd for re-delivery, giving the at-least-once
// retry semantics the orchestrator expects from its invoker; completed and
// canceled runs are Ack'd.
type Consumer struct {
	js         jetstream.JetStream
	runner     *Runner
	stream     string
	runTimeout time.Duration
	logger     logging.Logger
}

// NewConsumer creates a Consumer on the given NATS connection.
func NewConsumer(nc *nats.Conn, runner *Runner, cfg QueueConfig, logger logging.Logger) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "WORKFLOWS"
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &Consumer{
		js:         js,
		runner:     runner,
		stream:     stream,
		runTimeout: timeout,
		logger:     logging.OrNop(logger),
	}, nil
}

// Start begins consuming run requests. It blocks until the context is
// cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	// WorkQueue retention hands each request to exactly one consumer.
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.stream,
		Subjects:  []string{"workflows.run.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:       "WorkflowRunner",
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: "workflows.run.>",
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	iter, err := consumer.Messages(jetstream.PullMaxMessages(1))
	if err != nil {
		return fmt.Errorf("create message iterator: %w", err)
	}
	go func() {
		<-ctx.Done()
		iter.Stop()
	}()

	c.logger.Info("Workflow consumer started on stream %s", c.stream)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, err := iter.Next()
			if err != nil {
				continue
			}
			if err := c.processMsg(ctx, msg); err != nil {
				c.logger.Error("Run request failed, scheduling redelivery: %v", err)
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

func (c *Consumer) processMsg(ctx context.Context, msg jetstream.Msg) error {
	var req RunRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		// A payload that never parses would redeliver forever; ack it away.
		c.logger.Error("Dropping malformed run request: %v", err)
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	_, err := c.runner.Run(runCtx, req)
	return err
}
