package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/postcrew/internal/post"
)

// Dispatcher publishes job tasks to a RabbitMQ queue and consumes them in the
// same process. Queues are transient: job records live in memory, so a task
// that outlives the process has nothing to update.
type Dispatcher struct {
	conn        *amqp.Connection
	pubMu       sync.Mutex
	pub         *amqp.Channel
	queue       string
	concurrency int
	log         *slog.Logger
}

type JobMessage struct {
	JobID    string `json:"job_id"`
	Topic    string `json:"topic"`
	Industry string `json:"industry"`
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
}

func NewDispatcher(url, queue string, concurrency int, log *slog.Logger) (*Dispatcher, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}

	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Dispatcher{conn: conn, pub: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func declareQueues(ch *amqp.Channel, queue string) error {
	dlqQ := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		false, // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	if _, err := ch.QueueDeclare(
		queue,
		false,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

func (d *Dispatcher) Close() error {
	if d.pub != nil {
		_ = d.pub.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, t post.Task) error {
	body, err := json.Marshal(encodeTask(t))
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	return d.pub.PublishWithContext(cctx,
		"",      // default exchange
		d.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Run consumes the queue with a fixed pool of workers until ctx is done.
// Deliveries already handed to workers finish before Run returns.
func (d *Dispatcher) Run(ctx context.Context, h post.Handler) error {
	ch, err := d.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer ch.Close()

	// strict concurrency control
	if err := ch.Qos(d.concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(d.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	d.log.Info("rabbit consumer started", "queue", d.queue, "concurrency", d.concurrency)

	jobCtx := context.WithoutCancel(ctx)
	jobs := make(chan amqp.Delivery, d.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(d.concurrency)
	for i := 0; i < d.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for dl := range jobs {
				d.handle(jobCtx, workerID, h, dl)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			d.log.Info("rabbit consumer shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case dl, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("rabbit delivery channel closed")
			}
			jobs <- dl
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, workerID int, h post.Handler, dl amqp.Delivery) {
	t, err := decodeTask(dl.Body)
	if err != nil {
		d.log.Warn("bad job message", "worker", workerID, "err", err)
		_ = dl.Nack(false, false)
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("worker recovered from panic", "worker", workerID, "job_id", t.JobID, "panic", r)
			}
		}()
		h(ctx, t)
	}()

	if err := dl.Ack(false); err != nil {
		d.log.Warn("ack failed", "worker", workerID, "job_id", t.JobID, "err", err)
	}
}

func encodeTask(t post.Task) JobMessage {
	return JobMessage{
		JobID:    t.JobID,
		Topic:    t.Request.Topic,
		Industry: t.Request.Industry,
		Tone:     t.Request.Tone,
		Audience: t.Request.Audience,
	}
}

func decodeTask(body []byte) (post.Task, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return post.Task{}, err
	}
	if m.JobID == "" {
		return post.Task{}, errors.New("missing job_id")
	}
	return post.Task{
		JobID: m.JobID,
		Request: post.Request{
			Topic:    m.Topic,
			Industry: m.Industry,
			Tone:     m.Tone,
			Audience: m.Audience,
		},
	}, nil
}

var _ post.Dispatcher = (*Dispatcher)(nil)
