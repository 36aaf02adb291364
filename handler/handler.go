package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-notifier/internal/domain"
	"chat-notifier/internal/platform/logger"
	"chat-notifier/internal/stream"
)

// Notifier is the event-handling surface the stream adapter drives.
type Notifier interface {
	OnMessageCreated(ctx context.Context, msg domain.Message) error
	OnMessageDeleted(ctx context.Context, msg domain.Message) error
	OnReceiptCreated(ctx context.Context, receipt domain.MessageReceipt) error
}

// Pusher ships collected metrics somewhere a scraper can read them.
// *push.Pusher from client_golang satisfies this interface.
type Pusher interface {
	PushContext(ctx context.Context) error
}

// Tables names the stream sources the handler reacts to.
type Tables struct {
	Messages string
	Receipts string
}

const (
	kindMessageCreated = "message_created"
	kindMessageDeleted = "message_deleted"
	kindReceiptCreated = "receipt_created"
	kindIgnored        = "ignored"

	statusOK        = "ok"
	statusError     = "error"
	statusMalformed = "malformed"
	statusPanic     = "panic"
)

type Handler struct {
	notifier Notifier
	tables   Tables
	metrics  *Metrics
	pusher   Pusher
	log      *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithPusher pushes metrics after every invocation.
func WithPusher(p Pusher) Option {
	return func(h *Handler) {
		h.pusher = p
	}
}

func NewHandler(n Notifier, tables Tables, opts ...Option) (*Handler, error) {
	if n == nil {
		return nil, errors.New("handler: notifier must not be nil")
	}
	if strings.TrimSpace(tables.Messages) == "" || strings.TrimSpace(tables.Receipts) == "" {
		return nil, errors.New("handler: messages and receipts table names must not be empty")
	}
	h := &Handler{notifier: n, tables: tables, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		return nil, errors.New("handler: metrics must not be nil")
	}
	h.log = h.log.With("component", "stream_handler")
	return h, nil
}

// Handle processes a batch of stream records. Records whose handling failed
// in a way a retry could fix are reported back as batch item failures; every
// other record counts as done.
func (h *Handler) Handle(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	log := h.log.With("correlation_id", newCorrelationID())
	log.Debug("received stream batch", "records", len(ev.Records))

	var resp events.DynamoDBEventResponse
	for _, rec := range ev.Records {
		if err := h.handleRecord(ctx, log, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: rec.Change.SequenceNumber,
			})
		}
	}

	h.pushMetrics(ctx, log)
	return resp, nil
}

func (h *Handler) handleRecord(ctx context.Context, log *slog.Logger, rec events.DynamoDBEventRecord) (err error) {
	table := stream.TableName(rec.EventSourceArn)
	kind := h.classify(table, rec.EventName)
	log = log.With("event_id", rec.EventID, "event_name", rec.EventName, "table", table)
	ctx = logger.WithContext(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling stream record", "panic", r)
			h.metrics.records.WithLabelValues(kind, statusPanic).Inc()
			err = fmt.Errorf("handler: panic: %v", r)
		}
	}()

	if kind == kindIgnored {
		log.Debug("ignoring stream record")
		h.metrics.records.WithLabelValues(kind, statusOK).Inc()
		return nil
	}

	callErr, decodeErr := h.dispatch(ctx, kind, rec.Change)
	switch {
	case decodeErr != nil:
		// Redelivery would decode the same bytes again.
		log.Error("skipping malformed stream record", "err", decodeErr)
		h.metrics.records.WithLabelValues(kind, statusMalformed).Inc()
		return nil
	case callErr != nil:
		log.Error("stream record failed, requesting redelivery", "err", callErr)
		h.metrics.records.WithLabelValues(kind, statusError).Inc()
		return callErr
	}
	h.metrics.records.WithLabelValues(kind, statusOK).Inc()
	return nil
}

func (h *Handler) classify(table, eventName string) string {
	switch {
	case table == h.tables.Messages && eventName == string(events.DynamoDBOperationTypeInsert):
		return kindMessageCreated
	case table == h.tables.Messages && eventName == string(events.DynamoDBOperationTypeRemove):
		return kindMessageDeleted
	case table == h.tables.Receipts && eventName == string(events.DynamoDBOperationTypeInsert):
		return kindReceiptCreated
	}
	return kindIgnored
}

func (h *Handler) dispatch(ctx context.Context, kind string, change events.DynamoDBStreamRecord) (callErr, decodeErr error) {
	switch kind {
	case kindMessageCreated:
		msg, err := stream.DecodeMessage(change.Keys, change.NewImage)
		if err != nil {
			return nil, err
		}
		return h.notifier.OnMessageCreated(ctx, msg), nil
	case kindMessageDeleted:
		msg, err := stream.DecodeMessage(change.Keys, change.OldImage)
		if err != nil {
			return nil, err
		}
		return h.notifier.OnMessageDeleted(ctx, msg), nil
	case kindReceiptCreated:
		receipt, err := stream.DecodeReceipt(change.Keys, change.NewImage)
		if err != nil {
			return nil, err
		}
		return h.notifier.OnReceiptCreated(ctx, receipt), nil
	}
	return nil, nil
}

func (h *Handler) pushMetrics(ctx context.Context, log *slog.Logger) {
	if h.pusher == nil {
		return
	}
	if err := h.pusher.PushContext(ctx); err != nil {
		log.Warn("failed to push metrics", "err", err)
	}
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
