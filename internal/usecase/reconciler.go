package usecase

import (
	"context"
	"errors"
	"log/slog"

	"chat-notifier/internal/domain"
	"chat-notifier/internal/platform/logger"
)

// DeliveryClass is how a delivery result affects the recipient's token.
type DeliveryClass int

const (
	DeliveryOK DeliveryClass = iota
	DeliveryTransient
	DeliveryPermanent
)

func (c DeliveryClass) String() string {
	switch c {
	case DeliveryOK:
		return outcomeDelivered
	case DeliveryTransient:
		return outcomeTransient
	case DeliveryPermanent:
		return outcomePermanent
	}
	return "unknown"
}

// Classify treats only unregistered or malformed tokens as permanent.
// Every other transport error may succeed on a later attempt.
func Classify(res domain.DeliveryResult) DeliveryClass {
	if !res.Failed() {
		return DeliveryOK
	}
	switch res.Error.Code {
	case domain.CodeInvalidRegistrationToken, domain.CodeTokenNotRegistered:
		return DeliveryPermanent
	}
	return DeliveryTransient
}

type TokenClearer interface {
	ClearDeviceToken(ctx context.Context, uid, staleToken string) (bool, error)
}

// Reconciler removes device tokens the transport reported as permanently invalid.
type Reconciler struct {
	users   TokenClearer
	metrics *Metrics
	log     *slog.Logger
}

func NewReconciler(users TokenClearer, metrics *Metrics, log *slog.Logger) (*Reconciler, error) {
	if users == nil {
		return nil, errors.New("usecase: token clearer must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("usecase: metrics must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{users: users, metrics: metrics, log: log.With("component", "reconciler")}, nil
}

// Reconcile clears token from the user uid when res marks it permanently
// invalid. Other results, an absent token and a token that was already
// cleared or replaced are no-ops. A failed write is returned as
// ErrorReconciliationWrite and is not retried.
func (r *Reconciler) Reconcile(ctx context.Context, uid, token string, res domain.DeliveryResult) error {
	if Classify(res) != DeliveryPermanent {
		return nil
	}
	log := logger.FromContext(ctx, r.log).With("uid", uid, "token", token, "error_code", res.Error.Code)
	if token == "" {
		log.Debug("no device token to remove")
		return nil
	}

	log.Info("removing device token")
	cleared, err := r.users.ClearDeviceToken(ctx, uid, token)
	if err != nil {
		r.metrics.reconciliations.WithLabelValues(reconcileFailed).Inc()
		return newError(ErrorReconciliationWrite, "clear_device_token_error", err)
	}
	if !cleared {
		r.metrics.reconciliations.WithLabelValues(reconcileAlreadyCleared).Inc()
		log.Info("device token already cleared or replaced")
		return nil
	}
	r.metrics.reconciliations.WithLabelValues(reconcileCleared).Inc()
	return nil
}
