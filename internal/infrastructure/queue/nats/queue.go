package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
)

const (
	workerGroup   = "lifecycle-workers"
	companyHeader = "Accruals-Company"
	drainTimeout  = 5 * time.Second
)

// Subjects names the two streams the queue uses. An empty Transitions
// subject disables transition announcements.
type Subjects struct {
	StatusChanges string
	Transitions   string
}

// Queue carries operator status changes to the worker and announces the
// resulting transitions.
type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
	logger   *slog.Logger
}

type settings struct {
	connectTimeout time.Duration
	reconnectWait  time.Duration
	maxReconnects  int
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Option func(*settings)

func WithExecutor(executor *resilience.Executor) Option {
	return func(s *settings) { s.executor = executor }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReconnect overrides the reconnect backoff. Non-positive values keep the
// defaults.
func WithReconnect(wait time.Duration, attempts int) Option {
	return func(s *settings) {
		if wait > 0 {
			s.reconnectWait = wait
		}
		if attempts > 0 {
			s.maxReconnects = attempts
		}
	}
}

func New(url string, subjects Subjects, opts ...Option) (*Queue, error) {
	if subjects.StatusChanges == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "init queue", errors.New("status change subject is required"))
	}
	s := settings{
		connectTimeout: 2 * time.Second,
		reconnectWait:  2 * time.Second,
		maxReconnects:  60,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	logger := s.logger
	conn, err := nats.Connect(url,
		nats.Name("accruals-router"),
		nats.Timeout(s.connectTimeout),
		nats.ReconnectWait(s.reconnectWait),
		nats.MaxReconnects(s.maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats_async_error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subjects: subjects, executor: s.executor, logger: logger}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishStatusChange(ctx context.Context, change domain.StatusChange) error {
	if change.Company == "" || change.Row <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "publish status change", errors.New("company and row are required"))
	}
	return q.publish(ctx, "nats.publish_status", q.subjects.StatusChanges, change.Company, change)
}

func (q *Queue) PublishTransition(ctx context.Context, result domain.TransitionResult) error {
	if q.subjects.Transitions == "" {
		return nil
	}
	return q.publish(ctx, "nats.publish_transition", q.subjects.Transitions, result.Company, result)
}

// SubscribeStatusChanges hands each change to one worker of the group and
// blocks until ctx is done, then drains in-flight messages.
func (q *Queue) SubscribeStatusChanges(ctx context.Context, handler func(context.Context, domain.StatusChange) error) error {
	sub, err := q.conn.QueueSubscribe(q.subjects.StatusChanges, workerGroup, q.dispatch(ctx, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subjects.StatusChanges, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// dispatch decodes one message and runs handler on it. Handler failures are
// logged only; the operator re-edits the row to retry.
func (q *Queue) dispatch(ctx context.Context, handler func(context.Context, domain.StatusChange) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		var change domain.StatusChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			q.logger.Error("status_change_decode_failed",
				"subject", msg.Subject,
				"company", msg.Header.Get(companyHeader),
				"error", err,
			)
			return
		}
		if err := handler(ctx, change); err != nil {
			q.logger.Error("status_change_handler_failed",
				"company", change.Company,
				"field", change.Field,
				"row", change.Row,
				"error", err,
			)
		}
	}
}

func (q *Queue) publish(ctx context.Context, operation, subject, company string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: body, Header: nats.Header{}}
	msg.Header.Set(companyHeader, company)
	msg.Header.Set("Accruals-Published-At", strconv.FormatInt(time.Now().UTC().UnixMilli(), 10))

	send := func(context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
	if q.executor == nil {
		err = send(ctx)
	} else {
		err = q.executor.Execute(ctx, operation, send, classifyNATSError)
	}
	return resilience.WrapTemporary(operation, err, classifyNATSError)
}
