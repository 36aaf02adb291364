package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"chat-notifier/internal/domain"
	"chat-notifier/internal/platform/logger"
)

type Sender interface {
	Send(ctx context.Context, token string, payload domain.Payload) (domain.DeliveryResult, error)
}

type UserStore interface {
	UserFinder
	TokenClearer
}

type ReceiptDeleter interface {
	DeleteReceipt(ctx context.Context, conversationID, messageID string) error
}

// Service reacts to chat events by notifying the participants involved.
// Each call is independent and keeps no state between invocations.
type Service struct {
	resolver   *Resolver
	reconciler *Reconciler
	sender     Sender
	receipts   ReceiptDeleter
	metrics    *Metrics
	log        *slog.Logger
}

func NewService(users UserStore, receipts ReceiptDeleter, sender Sender, metrics *Metrics, log *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, errors.New("usecase: user store must not be nil")
	}
	if receipts == nil {
		return nil, errors.New("usecase: receipt deleter must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: sender must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("usecase: metrics must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	resolver, err := NewResolver(users)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(users, metrics, log)
	if err != nil {
		return nil, err
	}
	return &Service{
		resolver:   resolver,
		reconciler: reconciler,
		sender:     sender,
		receipts:   receipts,
		metrics:    metrics,
		log:        log.With("component", "notifier"),
	}, nil
}

// OnMessageCreated tells the receiver a message arrived, then tells the
// sender it was sent. The sender branch starts only once the receiver
// branch, including any token repair, has finished.
func (s *Service) OnMessageCreated(ctx context.Context, msg domain.Message) error {
	ctx = s.withMessage(ctx, msg.ConversationID, msg.MessageID)

	if err := s.notify(ctx, msg.Receiver, domain.ActionMessageReceived, PayloadFields{
		Sender:           msg.Sender,
		ConversationID:   msg.ConversationID,
		MessageID:        msg.MessageID,
		MessageTimestamp: msg.TimeStamp,
	}); err != nil {
		return s.abort(ctx, domain.ActionMessageReceived, msg.Receiver, err)
	}

	if err := s.notify(ctx, msg.Sender, domain.ActionMessageSent, PayloadFields{
		Receiver:       msg.Receiver,
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
	}); err != nil {
		return s.abort(ctx, domain.ActionMessageSent, msg.Sender, err)
	}
	return nil
}

// OnMessageDeleted tells the sender their message was delivered. The
// delivery timestamp is taken when the deletion is processed.
func (s *Service) OnMessageDeleted(ctx context.Context, msg domain.Message) error {
	ctx = s.withMessage(ctx, msg.ConversationID, msg.MessageID)

	if err := s.notify(ctx, msg.Sender, domain.ActionMessageDelivered, PayloadFields{
		Receiver:          msg.Receiver,
		ConversationID:    msg.ConversationID,
		MessageID:         msg.MessageID,
		DeliveryTimestamp: strconv.FormatInt(now().UnixMilli(), 10),
	}); err != nil {
		return s.abort(ctx, domain.ActionMessageDelivered, msg.Sender, err)
	}
	return nil
}

// OnReceiptCreated consumes a read receipt and tells the sender their
// message was read. The sender lookup and the receipt deletion run
// concurrently and both finish before the notification is sent. A failed
// deletion does not hold back the notification but is returned so the
// receipt gets processed again.
func (s *Service) OnReceiptCreated(ctx context.Context, receipt domain.MessageReceipt) error {
	ctx = s.withMessage(ctx, receipt.ConversationID, receipt.MessageID)
	log := logger.FromContext(ctx, s.log)

	var (
		user       domain.UserRecord
		resolveErr error
		deleteErr  error
		g          errgroup.Group
	)
	g.Go(func() error {
		user, resolveErr = s.resolver.Resolve(ctx, receipt.Sender)
		return nil
	})
	g.Go(func() error {
		deleteErr = s.receipts.DeleteReceipt(ctx, receipt.ConversationID, receipt.MessageID)
		return nil
	})
	_ = g.Wait()

	if deleteErr != nil {
		s.metrics.receiptDeletes.WithLabelValues("error").Inc()
		log.Error("failed to delete message receipt", "err", deleteErr)
		deleteErr = newError(ErrorInternal, "receipt_delete_error", deleteErr)
	} else {
		s.metrics.receiptDeletes.WithLabelValues("success").Inc()
	}

	if resolveErr != nil {
		return errors.Join(s.abort(ctx, domain.ActionMessageRead, receipt.Sender, resolveErr), deleteErr)
	}

	s.deliver(ctx, user, domain.ActionMessageRead, PayloadFields{
		ConversationID: receipt.ConversationID,
		MessageID:      receipt.MessageID,
		ReadTimestamp:  receipt.Timestamp,
	})
	return deleteErr
}

// notify resolves phoneNumber and delivers the action to that user. Only
// resolution errors are returned; delivery problems end in deliver.
func (s *Service) notify(ctx context.Context, phoneNumber string, action domain.Action, fields PayloadFields) error {
	user, err := s.resolver.Resolve(ctx, phoneNumber)
	if err != nil {
		return err
	}
	s.deliver(ctx, user, action, fields)
	return nil
}

// deliver sends one notification and repairs the user's token when the
// transport rejects it for good. Neither a failed send nor a failed repair
// is reported upward: a retry would resend the notification, and a token
// left in place costs at most one more wasted send.
func (s *Service) deliver(ctx context.Context, user domain.UserRecord, action domain.Action, fields PayloadFields) {
	token := user.Token()
	log := logger.FromContext(ctx, s.log).With("action", string(action), "uid", user.UID, "token", token)

	res, err := s.sender.Send(ctx, token, BuildPayload(action, fields))
	if err != nil {
		s.metrics.notificationsSent.WithLabelValues(string(action), outcomeTransportError).Inc()
		log.Warn("failed sending notification", "err", newError(ErrorTransientDelivery, "transport_error", err))
		return
	}

	class := Classify(res)
	s.metrics.notificationsSent.WithLabelValues(string(action), class.String()).Inc()
	switch class {
	case DeliveryOK:
		log.Debug("notification sent", "fcm_message_id", res.MessageID)
		return
	case DeliveryTransient:
		log.Warn("failed sending notification", "err", newError(ErrorTransientDelivery, res.Error.Code, nil))
		return
	}

	log.Warn("failed sending notification", "err", newError(ErrorPermanentDelivery, res.Error.Code, nil))
	if err := s.reconciler.Reconcile(ctx, user.UID, token, res); err != nil {
		log.Error("failed removing device token", "err", err)
	}
}

// abort logs why a handler stopped early. Failing to identify the recipient
// completes the event; anything else is returned for redelivery.
func (s *Service) abort(ctx context.Context, action domain.Action, phoneNumber string, err error) error {
	log := logger.FromContext(ctx, s.log).With("action", string(action), "phone_number", phoneNumber)
	if isResolutionFailure(err) {
		var ue *Error
		errors.As(err, &ue)
		s.metrics.resolutionFailures.WithLabelValues(string(action), string(ue.Code)).Inc()
		log.Warn("recipient not resolved, skipping notification", "err", err)
		return nil
	}
	log.Error("recipient lookup failed", "err", err)
	return err
}

func (s *Service) withMessage(ctx context.Context, conversationID, messageID string) context.Context {
	l := logger.FromContext(ctx, s.log).With("conversation_id", conversationID, "message_id", messageID)
	return logger.WithContext(ctx, l)
}

var now = time.Now
