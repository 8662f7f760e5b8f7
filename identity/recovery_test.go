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

type recoveryFixture struct {
	flow     *identity.PasswordRecoveryFlow
	users    *memoryDirectory
	notifier *recordingNotifier
	clock    *fakeClock
	user     *models.User
}

func newRecoveryFixture(t *testing.T, tokens ...string) *recoveryFixture {
	t.Helper()
	clock := newFakeClock()
	fx := &recoveryFixture{
		users:    newMemoryDirectory(),
		notifier: &recordingNotifier{},
		clock:    clock,
	}
	user, err := fx.users.Create(context.Background(), models.UserDetails{
		Email:  "owner@x.com",
		Name:   "Owner",
		Status: models.StatusActive,
	}, "old-password")
	require.NoError(t, err)
	fx.user = user

	fx.flow = identity.NewPasswordRecoveryFlow(identity.RecoveryConfig{
		Users:    fx.users,
		Resets:   fx.users,
		Notifier: fx.notifier,
		Secrets:  &sequenceSecrets{tokens: tokens},
		Clock:    clock.Now,
		ResetTTL: 10 * time.Minute,
	})
	return fx
}

func (fx *recoveryFixture) passwordIs(t *testing.T, password string) bool {
	t.Helper()
	u, err := fx.users.FindByID(context.Background(), fx.user.ID.Hex())
	require.NoError(t, err)
	return fx.users.VerifyPassword(u, password)
}

func TestPasswordRecoveryFlow_RequestAndRedeem(t *testing.T) {
	fx := newRecoveryFixture(t, "abc123def456ghi789jkl012")
	ctx := context.Background()

	issue, err := fx.flow.RequestReset(ctx, "Owner@X.com")
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Now().Add(600*time.Second), issue.ExpiresAt)
	assert.Empty(t, issue.Token)
	assert.Equal(t, "abc123def456ghi789jkl012", fx.notifier.LastReset())

	stored, err := fx.users.FindByID(ctx, fx.user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, identity.HashToken("abc123def456ghi789jkl012"), stored.Details.ResetPasswordToken)

	err = fx.flow.Redeem(ctx, "wrong-token-wrong-token", "new-password")
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)

	err = fx.flow.Redeem(ctx, "abc123def456ghi789jkl012", "new-password")
	require.NoError(t, err)
	assert.True(t, fx.passwordIs(t, "new-password"))

	err = fx.flow.Redeem(ctx, "abc123def456ghi789jkl012", "another-password")
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)
	assert.True(t, fx.passwordIs(t, "new-password"))
}

func TestPasswordRecoveryFlow_UnknownAccount(t *testing.T) {
	fx := newRecoveryFixture(t, "abc123def456ghi789jkl012")

	_, err := fx.flow.RequestReset(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	assert.Equal(t, identity.KindNotFound, identity.KindOf(err))
	assert.Empty(t, fx.notifier.Resets())
}

func TestPasswordRecoveryFlow_NewTokenInvalidatesOld(t *testing.T) {
	fx := newRecoveryFixture(t, "first-token-0000000000", "second-token-000000000")
	ctx := context.Background()

	_, err := fx.flow.RequestReset(ctx, "owner@x.com")
	require.NoError(t, err)
	_, err = fx.flow.RequestReset(ctx, "owner@x.com")
	require.NoError(t, err)

	err = fx.flow.Redeem(ctx, "first-token-0000000000", "new-password")
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)

	err = fx.flow.Redeem(ctx, "second-token-000000000", "new-password")
	assert.NoError(t, err)
}

func TestPasswordRecoveryFlow_ExpiredToken(t *testing.T) {
	fx := newRecoveryFixture(t, "abc123def456ghi789jkl012")
	ctx := context.Background()

	_, err := fx.flow.RequestReset(ctx, "owner@x.com")
	require.NoError(t, err)

	fx.clock.Advance(10*time.Minute + time.Second)

	err = fx.flow.Redeem(ctx, "abc123def456ghi789jkl012", "new-password")
	assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)
	assert.True(t, fx.passwordIs(t, "old-password"))
}

func TestPasswordRecoveryFlow_TokenMatchIsExact(t *testing.T) {
	fx := newRecoveryFixture(t, "AbC123def456ghi789jkl012")
	ctx := context.Background()

	_, err := fx.flow.RequestReset(ctx, "owner@x.com")
	require.NoError(t, err)

	for _, guess := range []string{"abc123def456ghi789jkl012", "AbC123def456ghi789jkl01", "AbC123def456ghi789jkl012 "} {
		err = fx.flow.Redeem(ctx, guess, "new-password")
		assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken, guess)
	}
}

func TestPasswordRecoveryFlow_Validation(t *testing.T) {
	fx := newRecoveryFixture(t)
	ctx := context.Background()

	err := fx.flow.Redeem(ctx, "", "new-password")
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	err = fx.flow.Redeem(ctx, "token", "short")
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))
}

func TestPasswordRecoveryFlow_DeliveryFailureKeepsToken(t *testing.T) {
	fx := newRecoveryFixture(t, "abc123def456ghi789jkl012")
	fx.notifier.Err = errors.New("sendgrid 500")
	ctx := context.Background()

	_, err := fx.flow.RequestReset(ctx, "owner@x.com")
	assert.ErrorIs(t, err, identity.ErrDeliveryFailed)

	assert.NoError(t, fx.flow.Redeem(ctx, "abc123def456ghi789jkl012", "new-password"))
}

func TestPasswordRecoveryFlow_DirectDelivery(t *testing.T) {
	users := newMemoryDirectory()
	_, err := users.Create(context.Background(), models.UserDetails{Email: "owner@x.com"}, "old-password")
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	flow := identity.NewPasswordRecoveryFlow(identity.RecoveryConfig{
		Users:          users,
		Resets:         users,
		Notifier:       notifier,
		DirectDelivery: true,
	})

	issue, err := flow.RequestReset(context.Background(), "owner@x.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(issue.Token), 20)
	assert.Empty(t, notifier.Resets())
	assert.NoError(t, flow.Redeem(context.Background(), issue.Token, "new-password"))
}

func TestPasswordRecoveryFlow_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	fx := newRecoveryFixture(t, "abc123def456ghi789jkl012")
	ctx := context.Background()

	_, err := fx.flow.RequestReset(ctx, "owner@x.com")
	require.NoError(t, err)

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fx.flow.Redeem(ctx, "abc123def456ghi789jkl012", "new-password")
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
		assert.ErrorIs(t, err, identity.ErrInvalidOrExpiredToken)
	}
	assert.Equal(t, 1, successes)
}
