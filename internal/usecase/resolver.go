package usecase

import (
	"context"
	"errors"

	"chat-notifier/internal/domain"
)

type UserFinder interface {
	FindUsersByPhoneNumber(ctx context.Context, phoneNumber string) ([]domain.UserRecord, error)
}

// Resolver maps a participant's phone number to exactly one user record.
type Resolver struct {
	users UserFinder
}

func NewResolver(users UserFinder) (*Resolver, error) {
	if users == nil {
		return nil, errors.New("usecase: user finder must not be nil")
	}
	return &Resolver{users: users}, nil
}

// Resolve fails with ErrorRecipientNotFound when nobody has phoneNumber and
// with ErrorAmbiguousRecipient when more than one user does. Picking one of
// several matches could deliver a notification to the wrong person.
func (r *Resolver) Resolve(ctx context.Context, phoneNumber string) (domain.UserRecord, error) {
	users, err := r.users.FindUsersByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		return domain.UserRecord{}, newError(ErrorInternal, "user_lookup_error", err)
	}
	switch len(users) {
	case 0:
		return domain.UserRecord{}, newError(ErrorRecipientNotFound, "no_user_for_phone_number", nil)
	case 1:
		return users[0], nil
	default:
		return domain.UserRecord{}, newError(ErrorAmbiguousRecipient, "multiple_users_for_phone_number", nil)
	}
}
