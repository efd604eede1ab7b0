package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictPredicates(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("save order 42: %w", err) }

	cases := []struct {
		err         error
		version     bool
		idempotency bool
	}{
		{err: nil},
		{err: ErrOrderVersionConflict, version: true},
		{err: wrap(ErrCartVersionConflict), version: true},
		{err: errors.Join(ErrOrderVersionConflict, errors.New("retry")), version: true},
		{err: ErrIdempotencyKeyAlreadyExists, idempotency: true},
		{err: wrap(ErrIdempotencyHashMismatch), idempotency: true},
		{err: ErrIdempotencyKeyNotFound},
		{err: ErrConcurrentModification},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.version, IsVersionConflict(tc.err), "IsVersionConflict(%v)", tc.err)
		assert.Equal(t, tc.idempotency, IsIdempotencyConflict(tc.err), "IsIdempotencyConflict(%v)", tc.err)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[ErrorKind][]error{
		KindNone:                    {nil},
		KindInvalidQuantity:         {ErrInvalidQuantity},
		KindQuantityLimitExceeded:   {fmt.Errorf("line 2: %w", ErrQuantityLimitExceeded)},
		KindLineNotFound:            {fmt.Errorf("cart 7: %w", ErrLineNotFound)},
		KindEmptyCart:               {ErrEmptyCart},
		KindInvalidStatusTransition: {ErrInvalidStatusTransition},
		KindOrderAlreadyFinalized:   {ErrOrderAlreadyFinalized},
		KindOrderNotMutable:         {ErrOrderNotMutable},
		KindForbidden:               {ErrForbidden, ErrRoleDenied, ErrPrincipalInactive, ErrOrderNotOwned},
		KindConcurrentModification:  {ErrConcurrentModification, ErrOrderVersionConflict, ErrCartVersionConflict},
		KindCatalogUnavailable:      {ErrCatalogUnavailable},
		KindInvalidChannel:          {ErrInvalidChannel},
		KindInternal:                {errors.New("disk on fire"), ErrOutboxPublish},
	}

	for want, errs := range cases {
		for _, err := range errs {
			assert.Equal(t, want, KindOf(err), "KindOf(%v)", err)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []error{
		ErrCatalogUnavailable,
		fmt.Errorf("save order: %w", ErrOrderVersionConflict),
		ErrCartVersionConflict,
		errors.New("connection refused"),
	}
	for _, err := range retryable {
		assert.True(t, Retryable(err), "Retryable(%v)", err)
	}

	final := []error{nil, ErrEmptyCart, ErrProductUnavailable, ErrOrderNotMutable, ErrForbidden, ErrInvalidChannel}
	for _, err := range final {
		assert.False(t, Retryable(err), "Retryable(%v)", err)
	}
}

func TestForbiddenRefinementsStayDistinct(t *testing.T) {
	assert.ErrorIs(t, ErrOrderNotOwned, ErrForbidden)
	assert.NotErrorIs(t, ErrOrderNotOwned, ErrOrderNotFound, "ownership failure is not a missing order")
	assert.NotErrorIs(t, ErrOrderNotOwned, ErrRoleDenied)
	assert.NotErrorIs(t, ErrPrincipalInactive, ErrRoleDenied)
}
