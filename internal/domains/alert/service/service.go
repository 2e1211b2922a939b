package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"chalet/config"
	"chalet/infras/kafka"
	"chalet/infras/otel"
	"chalet/internal/domains/alert/model"
	"chalet/shared/constant"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 100

type Sink interface {
	// Notify logs the alert and hands it to the background publisher. It never blocks and
	// never fails the caller.
	Notify(ctx context.Context, kind model.Kind, payload model.Payload)
	// Close stops accepting alerts and waits for queued ones to be published before the
	// publisher is closed.
	Close(ctx context.Context) error
}

type sinkImpl struct {
	cfg       *config.Config
	publisher kafka.Client
	otel      otel.Otel
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan model.Event
	done   chan struct{}
}

// New starts the publishing worker when alert delivery is enabled. With delivery disabled
// alerts are only logged.
func New(cfg *config.Config, publisher kafka.Client, otel otel.Otel) Sink {
	s := &sinkImpl{
		cfg:       cfg,
		publisher: publisher,
		otel:      otel,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	if !cfg.Alert.Enable {
		close(s.done)

		return s
	}

	size := cfg.Alert.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	s.queue = make(chan model.Event, size)

	go s.run()

	return s
}

func (s *sinkImpl) Notify(ctx context.Context, kind model.Kind, payload model.Payload) {
	event := model.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   kind.Severity(),
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	}

	logEvent(event)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue == nil || s.closed {
		return
	}

	select {
	case s.queue <- event:
	default:
		log.Warn().Str("alert_id", event.ID).Str("kind", string(kind)).Msg("alert queue full, dropping delivery")
	}
}

func (s *sinkImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed && s.queue != nil {
		close(s.queue)
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain alert queue: %w", ctx.Err())
	}
}

func (s *sinkImpl) run() {
	defer close(s.done)

	for event := range s.queue {
		s.publish(event)
	}

	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close alert publisher")
	}
}

func (s *sinkImpl) publish(event model.Event) {
	var err error

	timeout := time.Duration(s.cfg.Alert.PublishTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ctx, scope := s.otel.NewScope(ctx, constant.OtelEventScopeName, constant.OtelEventScopeName+".alert.Publish")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("alert.kind", string(event.Kind))

	err = s.publisher.SendMessages(ctx, s.cfg.Alert.Topic, kafka.Message{Key: string(event.Kind), Value: event})
	if err != nil {
		log.Error().Err(err).Str("alert_id", event.ID).Str("kind", string(event.Kind)).Msg("failed to deliver alert")
	}
}

func logEvent(event model.Event) {
	var entry *zerolog.Event

	if event.Severity == model.SeverityWarning {
		entry = log.Warn()
	} else {
		entry = log.Error()
	}

	p := event.Payload

	entry.
		Str("alert_id", event.ID).
		Str("kind", string(event.Kind)).
		Str("severity", string(event.Severity)).
		Str("property_id", p.PropertyID).
		Str("booking_id", p.BookingID).
		Str("payment_intent_id", p.PaymentIntentID).
		Strs("missing_dates", p.MissingDates).
		Str("reason", p.Reason).
		Msg("booking alert")
}
