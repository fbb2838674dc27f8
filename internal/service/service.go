package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Outcome is a value together with how it was obtained. Fallback is true when
// Value is a default substituted for a failed external call; Cause then holds
// that failure.
type Outcome[T any] struct {
	Value    T
	Fallback bool
	Cause    error
}

// Definitive wraps a value produced by the primary path.
func Definitive[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Fallback wraps a default used because cause prevented the primary path.
func Fallback[T any](v T, cause error) Outcome[T] {
	return Outcome[T]{Value: v, Fallback: true, Cause: cause}
}

// Clock returns the current time. Components default to UTC wall time.
type Clock func() time.Time

func defaultClock(c Clock) Clock {
	if c != nil {
		return c
	}
	return func() time.Time { return time.Now().UTC() }
}

// storeError translates repository failures into the service error taxonomy.
func storeError(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{resource + "_id": id})
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewPersistenceError(op, err)
}

func newID() string {
	return uuid.NewString()
}

func actor(userID string) events.Actor {
	if userID == "" {
		return events.Actor{}
	}
	return events.Actor{UserID: &userID}
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// maxPersistenceReserve is the most of a caller's remaining time that is kept
// back from an external call for the writes that follow it. With less than
// twice this left, half of the remaining time is kept.
const maxPersistenceReserve = 2 * time.Second

// externalContext derives the context for an optional external call. Its
// deadline is the earlier of now+timeout and the caller's deadline minus the
// persistence reserve, so a hung evaluator or enhancer can not starve the
// transaction that records the fallback. A timeout <= 0 means no own limit.
func externalContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	budget, bounded := timeout, timeout > 0
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		left := remaining - min(remaining/2, maxPersistenceReserve)
		if !bounded || left < budget {
			budget, bounded = left, true
		}
	}
	if !bounded {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, max(budget, 0))
}

// noTx runs fn directly; used when no Transactor is configured.
type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
