// Package policy decides whether a tenant's wallet can absorb a debit, and
// under which governance rules that decision may be overridden.
package policy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/domain/audit"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// Roles that may bypass the sufficiency check when the kill switch allows it
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Actor identifies who is asking for a wallet operation
type Actor struct {
	ID            uuid.UUID
	Role          string
	Impersonating bool // Acting on a tenant's behalf rather than their own
}

// Privileged reports whether the actor's role can qualify for a bypass
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// CreditCheck is the outcome of a sufficiency decision
type CreditCheck struct {
	Sufficient     bool  `json:"sufficient"`
	CurrentBalance int64 `json:"current_balance"`
	Deficit        int64 `json:"deficit,omitempty"` // How much is missing, when insufficient

	// Bypassed marks a decision where governance let a privileged actor
	// through despite insufficient funds. Every bypass is audited.
	Bypassed bool `json:"bypassed,omitempty"`
}

// Recorder is the subset of the audit dispatcher the policy needs
type Recorder interface {
	Record(event *audit.Event)
}

// Policy applies billing-mode and governance rules to debit decisions
type Policy struct {
	roleBypassEnabled bool
	walletRepo        wallet.Repository
	recorder          Recorder
	logger            *slog.Logger
}

// New creates a policy. The bypass kill switch comes from configuration and
// defaults to disabled: absent configuration means no role ever bypasses.
func New(logger *slog.Logger, cfg config.GovernanceConfig, walletRepo wallet.Repository, recorder Recorder) *Policy {
	return &Policy{
		roleBypassEnabled: cfg.RoleBypassEnabled,
		walletRepo:        walletRepo,
		recorder:          recorder,
		logger:            logger,
	}
}

// CheckSufficientCredit decides whether the tenant can absorb a debit of
// amount (positive, in cents). Postpaid tenants are always sufficient.
// Prepaid tenants need the funds, unless the kill switch is enabled AND the
// actor is privileged, in which case the call passes and is audited.
func (p *Policy) CheckSufficientCredit(ctx context.Context, actor Actor, tenantID uuid.UUID, amount int64) (*CreditCheck, error) {
	if amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}

	balance, err := p.walletRepo.GetBalance(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if balance.BillingMode == wallet.BillingModePostpaid {
		return &CreditCheck{Sufficient: true, CurrentBalance: balance.Balance}, nil
	}

	if balance.Balance >= amount {
		return &CreditCheck{Sufficient: true, CurrentBalance: balance.Balance}, nil
	}

	if p.roleBypassEnabled && actor.Privileged() {
		p.logger.Warn("Sufficiency check bypassed by privileged role",
			"tenant_id", tenantID.String(),
			"actor_id", actor.ID.String(),
			"actor_role", actor.Role,
			"amount", amount,
			"balance", balance.Balance,
		)
		p.recorder.Record(&audit.Event{
			Action:       audit.ActionSufficiencyBypass,
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			TenantID:     tenantID,
			Amount:       amount,
			Balance:      balance.Balance,
			Impersonated: actor.Impersonating,
		})
		return &CreditCheck{
			Sufficient:     true,
			CurrentBalance: balance.Balance,
			Bypassed:       true,
		}, nil
	}

	return &CreditCheck{
		Sufficient:     false,
		CurrentBalance: balance.Balance,
		Deficit:        amount - balance.Balance,
	}, nil
}
