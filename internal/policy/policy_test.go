package policy

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/data/inmemory"
	"github.com/shiplane/wallet-ledger/internal/domain/audit"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *capturingRecorder) Record(event *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func setupPolicy(t *testing.T, bypassEnabled bool, mode wallet.BillingMode, balance int64) (*Policy, uuid.UUID, *capturingRecorder) {
	t.Helper()
	repo := inmemory.NewWalletRepository()
	tenantID := uuid.New()
	b, err := wallet.NewBalance(tenantID, mode, 0)
	require.NoError(t, err)
	b.Balance = balance
	require.NoError(t, repo.Create(context.Background(), b))

	recorder := &capturingRecorder{}
	cfg := config.GovernanceConfig{RoleBypassEnabled: bypassEnabled}
	return New(newTestLogger(), cfg, repo, recorder), tenantID, recorder
}

func TestCheckSufficientCredit_PrepaidSufficient(t *testing.T) {
	p, tenantID, recorder := setupPolicy(t, false, wallet.BillingModePrepaid, 10000)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{Role: "tenant"}, tenantID, 5000)
	require.NoError(t, err)

	assert.True(t, check.Sufficient)
	assert.Equal(t, int64(10000), check.CurrentBalance)
	assert.False(t, check.Bypassed)
	assert.Empty(t, recorder.events)
}

func TestCheckSufficientCredit_PrepaidInsufficient(t *testing.T) {
	p, tenantID, recorder := setupPolicy(t, false, wallet.BillingModePrepaid, 3000)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{Role: "tenant"}, tenantID, 10000)
	require.NoError(t, err)

	assert.False(t, check.Sufficient)
	assert.Equal(t, int64(3000), check.CurrentBalance)
	assert.Equal(t, int64(7000), check.Deficit)
	assert.Empty(t, recorder.events)
}

func TestCheckSufficientCredit_PostpaidAlwaysSufficient(t *testing.T) {
	p, tenantID, _ := setupPolicy(t, false, wallet.BillingModePostpaid, -50000)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{Role: "tenant"}, tenantID, 1_000_000)
	require.NoError(t, err)

	assert.True(t, check.Sufficient)
	assert.Equal(t, int64(-50000), check.CurrentBalance)
}

func TestCheckSufficientCredit_BypassDisabledByDefault(t *testing.T) {
	// Kill switch off: even a superadmin is refused
	p, tenantID, recorder := setupPolicy(t, false, wallet.BillingModePrepaid, 0)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{ID: uuid.New(), Role: RoleSuperAdmin}, tenantID, 5000)
	require.NoError(t, err)

	assert.False(t, check.Sufficient)
	assert.False(t, check.Bypassed)
	assert.Empty(t, recorder.events, "no bypass means nothing to audit")
}

func TestCheckSufficientCredit_PrivilegedBypassIsAudited(t *testing.T) {
	p, tenantID, recorder := setupPolicy(t, true, wallet.BillingModePrepaid, 1000)
	actorID := uuid.New()

	check, err := p.CheckSufficientCredit(context.Background(), Actor{
		ID:            actorID,
		Role:          RoleAdmin,
		Impersonating: true,
	}, tenantID, 5000)
	require.NoError(t, err)

	assert.True(t, check.Sufficient)
	assert.True(t, check.Bypassed)

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.Equal(t, audit.ActionSufficiencyBypass, event.Action)
	assert.Equal(t, actorID, event.ActorID)
	assert.Equal(t, RoleAdmin, event.ActorRole)
	assert.Equal(t, tenantID, event.TenantID)
	assert.Equal(t, int64(5000), event.Amount)
	assert.Equal(t, int64(1000), event.Balance)
	assert.True(t, event.Impersonated)
}

func TestCheckSufficientCredit_BypassRequiresPrivilegedRole(t *testing.T) {
	p, tenantID, recorder := setupPolicy(t, true, wallet.BillingModePrepaid, 0)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{ID: uuid.New(), Role: "tenant"}, tenantID, 5000)
	require.NoError(t, err)

	assert.False(t, check.Sufficient)
	assert.Empty(t, recorder.events)
}

func TestCheckSufficientCredit_SufficientFundsSkipBypass(t *testing.T) {
	// A privileged actor with enough balance is a plain sufficient result
	p, tenantID, recorder := setupPolicy(t, true, wallet.BillingModePrepaid, 10000)

	check, err := p.CheckSufficientCredit(context.Background(), Actor{ID: uuid.New(), Role: RoleAdmin}, tenantID, 5000)
	require.NoError(t, err)

	assert.True(t, check.Sufficient)
	assert.False(t, check.Bypassed)
	assert.Empty(t, recorder.events)
}

func TestCheckSufficientCredit_UnknownTenant(t *testing.T) {
	p, _, _ := setupPolicy(t, false, wallet.BillingModePrepaid, 0)

	_, err := p.CheckSufficientCredit(context.Background(), Actor{}, uuid.New(), 5000)
	var notFoundErr wallet.ErrTenantNotFound
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestCheckSufficientCredit_InvalidAmount(t *testing.T) {
	p, tenantID, _ := setupPolicy(t, false, wallet.BillingModePrepaid, 1000)

	_, err := p.CheckSufficientCredit(context.Background(), Actor{}, tenantID, 0)
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	_, err = p.CheckSufficientCredit(context.Background(), Actor{}, tenantID, -100)
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)
}
