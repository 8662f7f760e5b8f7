package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

type registrationFixture struct {
	flow     *identity.RegistrationFlow
	store    *identity.MemoryPendingStore
	users    *memoryDirectory
	notifier *recordingNotifier
	clock    *fakeClock
}

func newRegistrationFixture(t *testing.T, codes ...string) *registrationFixture {
	t.Helper()
	clock := newFakeClock()
	fx := &registrationFixture{
		store:    identity.NewMemoryPendingStore(clock.Now, 3),
		users:    newMemoryDirectory(),
		notifier: &recordingNotifier{},
		clock:    clock,
	}
	fx.flow = identity.NewRegistrationFlow(identity.RegistrationConfig{
		Pending:              fx.store,
		Users:                fx.users,
		Notifier:             fx.notifier,
		Bearer:               stubBearer{},
		Secrets:              &sequenceSecrets{codes: codes},
		Clock:                clock.Now,
		VerificationRequired: true,
		CodeTTL:              10 * time.Minute,
	})
	return fx
}

func TestRegistrationFlow_RequestAndConfirm(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	ctx := context.Background()

	issue, err := fx.flow.RequestCode(ctx, "  User@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "user@x.com", issue.Email)
	assert.Equal(t, fx.clock.Now().Add(600*time.Second), issue.ExpiresAt)
	assert.Empty(t, issue.Code, "code must not be returned when it is mailed")
	assert.Equal(t, "123456", fx.notifier.LastCode())

	entry, err := fx.store.Get(ctx, "user@x.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", entry.Code)

	session, err := fx.flow.ConfirmAndCreate(ctx, "user@x.com", "123456", fields("user@x.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "user@x.com", session.User.Email)
	assert.True(t, session.User.EmailVerified)
	assert.Equal(t, models.StatusActive, session.User.Status)

	_, err = fx.store.Get(ctx, "user@x.com")
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)

	_, err = fx.flow.ConfirmAndCreate(ctx, "user@x.com", "123456", fields("user@x.com"))
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)
	assert.Equal(t, 1, fx.users.Count())
}

func TestRegistrationFlow_ReissueInvalidatesEarlierCode(t *testing.T) {
	fx := newRegistrationFixture(t, "111111", "222222")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)
	_, err = fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "111111", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrCodeMismatch)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "222222", fields("a@b.com"))
	assert.NoError(t, err)
}

func TestRegistrationFlow_ConfirmAfterExpiry(t *testing.T) {
	fx := newRegistrationFixture(t, "654321")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)

	fx.clock.Advance(601 * time.Second)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "654321", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrCodeExpired)
	assert.Equal(t, identity.KindExpired, identity.KindOf(err))
	assert.Equal(t, 0, fx.store.Len(), "expired entry should be evicted on confirm")

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "654321", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)
}

func TestRegistrationFlow_ExpiryBoundary(t *testing.T) {
	fx := newRegistrationFixture(t, "654321")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)

	fx.clock.Advance(10 * time.Minute)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "654321", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrCodeExpired)
}

func TestRegistrationFlow_RequestCodeForExistingAccount(t *testing.T) {
	fx := newRegistrationFixture(t, "123456", "999999")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)
	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "123456", fields("a@b.com"))
	require.NoError(t, err)

	_, err = fx.flow.RequestCode(ctx, "A@B.com")
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
	assert.Equal(t, identity.KindConflict, identity.KindOf(err))

	available, err := fx.flow.CheckAvailability(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestRegistrationFlow_AccountCreatedWhilePending(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)

	// another path created the account between issuance and confirmation
	_, err = fx.users.Create(ctx, models.UserDetails{Email: "a@b.com"}, "whatever-pass")
	require.NoError(t, err)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "123456", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
	assert.Equal(t, 1, fx.users.Count())
}

func TestRegistrationFlow_TooManyAttempts(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	require.NoError(t, err)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "000000", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrCodeMismatch)
	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "000001", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrCodeMismatch)
	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "000002", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrTooManyAttempts)

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "123456", fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)
}

func TestRegistrationFlow_Validation(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "")
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	_, err = fx.flow.RequestCode(ctx, "not-an-email")
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "12ab56", fields("a@b.com"))
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	short := fields("a@b.com")
	short.Password = "short"
	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "123456", short)
	var ierr *identity.Error
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "password", ierr.Field)
}

func TestRegistrationFlow_DeliveryFailureKeepsCode(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	fx.notifier.Err = errors.New("smtp down")
	ctx := context.Background()

	_, err := fx.flow.RequestCode(ctx, "a@b.com")
	assert.ErrorIs(t, err, identity.ErrDeliveryFailed)
	assert.Equal(t, identity.KindDependency, identity.KindOf(err))

	_, err = fx.flow.ConfirmAndCreate(ctx, "a@b.com", "123456", fields("a@b.com"))
	assert.NoError(t, err)
}

func TestRegistrationFlow_DirectDelivery(t *testing.T) {
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	flow := identity.NewRegistrationFlow(identity.RegistrationConfig{
		Pending:        identity.NewMemoryPendingStore(clock.Now, 0),
		Users:          newMemoryDirectory(),
		Notifier:       notifier,
		Bearer:         stubBearer{},
		Secrets:        &sequenceSecrets{codes: []string{"424242"}},
		Clock:          clock.Now,
		DirectDelivery: true,
	})

	issue, err := flow.RequestCode(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "424242", issue.Code)
	assert.Empty(t, notifier.Codes())
}

func TestRegistrationFlow_DirectoryFailure(t *testing.T) {
	fx := newRegistrationFixture(t, "123456")
	fx.users.FailAll = errors.New("connection reset")

	_, err := fx.flow.RequestCode(context.Background(), "a@b.com")
	assert.Equal(t, identity.KindDependency, identity.KindOf(err))
	assert.Equal(t, 0, fx.store.Len())
}

func TestRegistrationFlow_Register(t *testing.T) {
	ctx := context.Background()

	fx := newRegistrationFixture(t)
	_, err := fx.flow.Register(ctx, fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrVerificationRequired)

	users := newMemoryDirectory()
	store := identity.NewMemoryPendingStore(nil, 0)
	bypass := identity.NewRegistrationFlow(identity.RegistrationConfig{
		Pending:  store,
		Users:    users,
		Notifier: &recordingNotifier{},
		Bearer:   stubBearer{},
	})
	assert.False(t, bypass.VerificationRequired())

	_, err = store.Put(ctx, "a@b.com", "123456", time.Minute)
	require.NoError(t, err)

	session, err := bypass.Register(ctx, fields("A@b.com"))
	require.NoError(t, err)
	assert.True(t, session.User.EmailVerified)
	assert.Equal(t, "a@b.com", session.User.Email)
	assert.Equal(t, 0, store.Len())

	_, err = bypass.Register(ctx, fields("a@b.com"))
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
}

func TestRegistrationFlow_ConcurrentConfirmCreatesOneAccount(t *testing.T) {
	for i := 0; i < 50; i++ {
		fx := newRegistrationFixture(t, "123456")
		ctx := context.Background()

		_, err := fx.flow.RequestCode(ctx, "race@x.com")
		require.NoError(t, err)

		const callers = 4
		var wg sync.WaitGroup
		results := make([]error, callers)
		start := make(chan struct{})
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				<-start
				_, results[c] = fx.flow.ConfirmAndCreate(ctx, "race@x.com", "123456", fields("race@x.com"))
			}(c)
		}
		close(start)
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
				continue
			}
			assert.True(t,
				errors.Is(err, identity.ErrAlreadyRegistered) || errors.Is(err, identity.ErrNoPendingRequest),
				"unexpected error %v", err)
		}
		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, fx.users.Count())
	}
}

func TestRegistrationFlow_DuplicateCreateLosesToUniqueness(t *testing.T) {
	ctx := context.Background()
	users := newMemoryDirectory()
	bypass := identity.NewRegistrationFlow(identity.RegistrationConfig{
		Pending:  identity.NewMemoryPendingStore(nil, 0),
		Users:    users,
		Notifier: &recordingNotifier{},
		Bearer:   stubBearer{},
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bypass.Register(ctx, fields("dup@x.com"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, users.Count())
}
