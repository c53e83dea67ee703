package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/secret"
)

const testWindow = 12 * time.Hour

// fixture собранные сервисы поверх одного in-memory хранилища.
type fixture struct {
	db       *memDB
	notifier *recordingNotifier
	proofs   *memProofs

	accounts   *AccountService
	ledger     *LedgerService
	holdSvc    *HoldService
	hires      *HireService
	milestones *MilestoneService
	disputes   *DisputeService
	contracts  *ContractService
	sweeps     *SweepService

	admin Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	notifier := &recordingNotifier{}
	proofs := newMemProofs()
	policy, err := NewPolicy()
	require.NoError(t, err)

	users := memUsers{db}
	holds := memHolds{db}
	jobs := memJobs{db}
	hires := memHires{db}

	accounts, err := NewAccountService(users, policy, 1)
	require.NoError(t, err)

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")

	holdSvc := NewHoldService(holds, hires, policy, notifier)
	f := &fixture{
		db:         db,
		notifier:   notifier,
		proofs:     proofs,
		accounts:   accounts,
		ledger:     NewLedgerService(users, memLedger{db}, policy, notifier),
		holdSvc:    holdSvc,
		hires:      NewHireService(users, jobs, hires, holds, holdSvc, policy, notifier, testWindow),
		milestones: NewMilestoneService(jobs, hires, proofs, policy, notifier),
		disputes:   NewDisputeService(memDisputes{db}, hires, holds, jobs, proofs, policy, notifier, 15*time.Minute),
		contracts:  NewContractService(memContracts{db}, hires, holds, proofs, secret.NewBox(key), policy, notifier),
		sweeps:     NewSweepService(holds, hires, policy, notifier, testWindow, 50),
		admin:      Actor{ID: uuid.New(), Role: valueobject.RoleAdmin},
	}
	f.hires.now = func() time.Time { return memEpoch }
	f.sweeps.now = func() time.Time { return memEpoch.Add(13 * time.Hour) }
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireAmount(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

// openUser открывает счёт и, если balance не пустой, пополняет его администратором.
func (f *fixture) openUser(t *testing.T, role valueobject.Role, balance string) (Actor, *models.User) {
	t.Helper()
	ctx := context.Background()
	user, err := f.accounts.OpenAccount(ctx, f.admin, role, string(role)+" "+uuid.NewString()[:8])
	require.NoError(t, err)
	if balance != "" {
		_, err = f.ledger.Credit(ctx, f.admin, user.ID, dec(balance), "top up")
		require.NoError(t, err)
	}
	return Actor{ID: user.ID, Role: role}, user
}

func (f *fixture) balances(t *testing.T, id uuid.UUID) (coin, frozen decimal.Decimal) {
	t.Helper()
	u, err := memUsers{f.db}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.CoinBalance, u.FrozenBalance
}

func (f *fixture) holdsOf(t *testing.T, hireID uuid.UUID) []models.CoinHold {
	t.Helper()
	holds, err := memHolds{f.db}.ListByHire(context.Background(), hireID)
	require.NoError(t, err)
	return holds
}

// hire проводит заказ через одобрение и подбор и оформляет найм.
func (f *fixture) hire(t *testing.T, client, freelancer Actor, in CreateJobInput) (*models.Hire, []models.Milestone) {
	t.Helper()
	ctx := context.Background()

	job, milestones, err := f.hires.CreateJob(ctx, client, in)
	require.NoError(t, err)
	_, err = f.hires.ApproveJob(ctx, f.admin, job.ID)
	require.NoError(t, err)
	_, err = f.hires.CreateMatch(ctx, f.admin, job.ID, freelancer.ID)
	require.NoError(t, err)

	hire, err := f.hires.SecureHire(ctx, client, job.ID, freelancer.ID)
	require.NoError(t, err)
	return hire, milestones
}

func (f *fixture) singleHire(t *testing.T, client, freelancer Actor, budget string) *models.Hire {
	t.Helper()
	hire, _ := f.hire(t, client, freelancer, CreateJobInput{
		Title:       "Landing page",
		PaymentType: valueobject.PaymentTypeSingle,
		Budget:      dec(budget),
	})
	return hire
}

func (f *fixture) milestoneHire(t *testing.T, client, freelancer Actor, amounts ...string) (*models.Hire, []models.Milestone) {
	t.Helper()
	inputs := make([]MilestoneInput, 0, len(amounts))
	for i, a := range amounts {
		inputs = append(inputs, MilestoneInput{Title: "Stage " + string(rune('A'+i)), Amount: dec(a)})
	}
	return f.hire(t, client, freelancer, CreateJobInput{
		Title:       "Mobile app",
		PaymentType: valueobject.PaymentTypeMilestone,
		Milestones:  inputs,
	})
}

// approvedFinal сдаёт и принимает итоговую работу, холд уходит во frozen фрилансера.
func (f *fixture) approvedFinal(t *testing.T, hire *models.Hire, freelancer Actor) *models.FinalSubmission {
	t.Helper()
	ctx := context.Background()
	final, err := f.hires.SubmitFinal(ctx, freelancer, hire.ID, "https://files.test/result.zip", "done")
	require.NoError(t, err)
	approved, err := f.hires.ReviewFinal(ctx, f.admin, final.ID, true, "")
	require.NoError(t, err)
	return approved
}
