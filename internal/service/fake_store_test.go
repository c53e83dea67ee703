package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/repository"
)

// memEpoch начало часов in-memory хранилища.
var memEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// memDB in-memory замена Postgres с теми же условиями, что и SQL в репозиториях.
// Каждая операция выполняется под одним мьютексом, ошибка откатывает состояние.
type memDB struct {
	mu  sync.Mutex
	seq int

	users         map[uuid.UUID]models.User
	journal       []models.CoinTransaction
	holds         map[uuid.UUID]models.CoinHold
	jobs          map[uuid.UUID]models.Job
	milestones    map[uuid.UUID]models.Milestone
	submissions   []models.MilestoneSubmission
	matches       map[[2]uuid.UUID]models.JobMatch
	hires         map[uuid.UUID]models.Hire
	finals        map[uuid.UUID]models.FinalSubmission
	disputes      map[uuid.UUID]models.Dispute
	contracts     map[uuid.UUID]models.Contract
	details       map[uuid.UUID]models.PaymentDetails
	payments      []models.PaymentRecord
	notifications map[uuid.UUID]models.Notification

	// failRelease ошибки, которые Release вернёт для конкретных холдов.
	failRelease map[uuid.UUID]error
}

func newMemDB() *memDB {
	return &memDB{
		users:         map[uuid.UUID]models.User{},
		holds:         map[uuid.UUID]models.CoinHold{},
		jobs:          map[uuid.UUID]models.Job{},
		milestones:    map[uuid.UUID]models.Milestone{},
		matches:       map[[2]uuid.UUID]models.JobMatch{},
		hires:         map[uuid.UUID]models.Hire{},
		finals:        map[uuid.UUID]models.FinalSubmission{},
		disputes:      map[uuid.UUID]models.Dispute{},
		contracts:     map[uuid.UUID]models.Contract{},
		details:       map[uuid.UUID]models.PaymentDetails{},
		notifications: map[uuid.UUID]models.Notification{},
		failRelease:   map[uuid.UUID]error{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// tx выполняет fn атомарно: при ошибке все изменения отменяются.
func (db *memDB) tx(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := memDB{
		users:         cloneMap(db.users),
		journal:       db.journal,
		holds:         cloneMap(db.holds),
		jobs:          cloneMap(db.jobs),
		milestones:    cloneMap(db.milestones),
		submissions:   db.submissions,
		matches:       cloneMap(db.matches),
		hires:         cloneMap(db.hires),
		finals:        cloneMap(db.finals),
		disputes:      cloneMap(db.disputes),
		contracts:     cloneMap(db.contracts),
		details:       cloneMap(db.details),
		payments:      db.payments,
		notifications: cloneMap(db.notifications),
	}
	if err := fn(); err != nil {
		db.users, db.journal, db.holds = snapshot.users, snapshot.journal, snapshot.holds
		db.jobs, db.milestones, db.submissions = snapshot.jobs, snapshot.milestones, snapshot.submissions
		db.matches, db.hires, db.finals = snapshot.matches, snapshot.hires, snapshot.finals
		db.disputes, db.contracts, db.details = snapshot.disputes, snapshot.contracts, snapshot.details
		db.payments, db.notifications = snapshot.payments, snapshot.notifications
		return err
	}
	return nil
}

// now монотонные часы хранилища для created_at и submitted_at.
func (db *memDB) now() time.Time {
	db.seq++
	return memEpoch.Add(time.Duration(db.seq) * time.Millisecond)
}

func (db *memDB) adjust(userID uuid.UUID, coinDelta, frozenDelta decimal.Decimal) (models.User, error) {
	u, ok := db.users[userID]
	if !ok {
		return u, apperror.ErrUserNotFound
	}
	coin := u.CoinBalance.Add(coinDelta)
	frozen := u.FrozenBalance.Add(frozenDelta)
	if coin.IsNegative() || frozen.IsNegative() {
		return u, apperror.ErrInsufficientFunds
	}
	u.CoinBalance, u.FrozenBalance = coin, frozen
	db.users[userID] = u
	return u, nil
}

func (db *memDB) mutate(accountID uuid.UUID, coinDelta, frozenDelta decimal.Decimal, entry models.CoinTransaction) (*models.CoinTransaction, error) {
	u, err := db.adjust(accountID, coinDelta, frozenDelta)
	if err != nil {
		return nil, err
	}
	entry.ID = uuid.New()
	entry.AccountID = accountID
	entry.BalanceAfter = u.CoinBalance
	entry.FrozenAfter = u.FrozenBalance
	entry.CreatedAt = db.now()
	db.journal = append(db.journal, entry)
	return &entry, nil
}

func (db *memDB) insertHold(h models.CoinHold) error {
	for _, existing := range db.holds {
		if existing.HireID == h.HireID && sameMilestone(existing.MilestoneID, h.MilestoneID) && existing.Status.IsActive() {
			return apperror.ErrDuplicateHold
		}
	}
	h.Status = valueobject.HoldStatusHeld
	h.AutoRelease = true
	h.CreatedAt = db.now()
	h.UpdatedAt = h.CreatedAt
	db.holds[h.ID] = h
	return nil
}

func sameMilestone(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (db *memDB) releaseLocked(h models.CoinHold, freelancerID uuid.UUID, txType, note string) (*models.CoinHold, *models.CoinTransaction, error) {
	if err := db.failRelease[h.ID]; err != nil {
		return nil, nil, err
	}
	frozenDelta := decimal.Zero
	if h.IsFrozen() {
		frozenDelta = h.Amount.Neg()
	}
	entry, err := db.mutate(freelancerID, h.Amount, frozenDelta, models.CoinTransaction{
		FromUserID: &h.ClientID,
		ToUserID:   &freelancerID,
		HoldID:     &h.ID,
		Amount:     h.Amount,
		Type:       txType,
		Note:       note,
	})
	if err != nil {
		return nil, nil, err
	}
	at := db.now()
	h.Status = valueobject.HoldStatusReleased
	h.ReleasedAt = &at
	db.holds[h.ID] = h
	return &h, entry, nil
}

// openContract по найму есть контракт, который ещё не закрыт.
func (db *memDB) openContract(hireID uuid.UUID) bool {
	for _, c := range db.contracts {
		if c.HireID == hireID && c.Status != valueobject.ContractStatusReleased {
			return true
		}
	}
	return false
}

func (db *memDB) refundLocked(h models.CoinHold, freelancerID uuid.UUID, note string) (*models.CoinHold, error) {
	if h.IsFrozen() {
		if _, err := db.mutate(freelancerID, decimal.Zero, h.Amount.Neg(), models.CoinTransaction{
			FromUserID: &freelancerID,
			HoldID:     &h.ID,
			Amount:     h.Amount,
			Type:       models.TxTypeRefund,
			Note:       note,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := db.mutate(h.ClientID, h.Amount, decimal.Zero, models.CoinTransaction{
		ToUserID: &h.ClientID,
		HoldID:   &h.ID,
		Amount:   h.Amount,
		Type:     models.TxTypeRefund,
		Note:     note,
	}); err != nil {
		return nil, err
	}
	h.Status = valueobject.HoldStatusRefunded
	h.EligibleAt = nil
	db.holds[h.ID] = h
	return &h, nil
}

func (db *memDB) sortedHolds(keep func(models.CoinHold) bool) []models.CoinHold {
	var out []models.CoinHold
	for _, h := range db.holds {
		if keep(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- users & ledger ----

type memUsers struct{ *memDB }

func (s memUsers) Create(_ context.Context, user *models.User) error {
	return s.tx(func() error {
		for _, u := range s.users {
			if u.AccountNumber == user.AccountNumber {
				return repository.ErrAccountNumberTaken
			}
		}
		user.ID = uuid.New()
		user.CoinBalance, user.FrozenBalance = decimal.Zero, decimal.Zero
		user.CreatedAt = s.now()
		user.UpdatedAt = user.CreatedAt
		s.users[user.ID] = *user
		return nil
	})
}

func (s memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return &u, nil
}

func (s memUsers) GetByAccountNumber(_ context.Context, number string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.AccountNumber == number {
			return &u, nil
		}
	}
	return nil, apperror.ErrUserNotFound
}

func (s memUsers) HeldTotal(_ context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, h := range s.holds {
		if h.ClientID == clientID && h.Status.IsActive() {
			total = total.Add(h.Amount)
		}
	}
	return total, nil
}

type memLedger struct{ *memDB }

func (s memLedger) Credit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := s.tx(func() error {
		var err error
		out, err = s.mutate(userID, amount, decimal.Zero, models.CoinTransaction{ToUserID: &userID, Amount: amount, Type: txType, Note: note})
		return err
	})
	return out, err
}

func (s memLedger) Debit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := s.tx(func() error {
		var err error
		out, err = s.mutate(userID, amount.Neg(), decimal.Zero, models.CoinTransaction{FromUserID: &userID, Amount: amount, Type: txType, Note: note})
		return err
	})
	return out, err
}

func (s memLedger) Transfer(_ context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := s.tx(func() error {
		if _, err := s.adjust(toID, amount, decimal.Zero); err != nil {
			return err
		}
		var err error
		out, err = s.mutate(fromID, amount.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &fromID,
			ToUserID:   &toID,
			Amount:     amount,
			Type:       models.TxTypeTransfer,
			Note:       note,
		})
		return err
	})
	return out, err
}

func (s memLedger) ListTransactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.CoinTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CoinTransaction
	for i := len(s.journal) - 1; i >= 0; i-- {
		e := s.journal[i]
		if e.AccountID == userID || (e.FromUserID != nil && *e.FromUserID == userID) || (e.ToUserID != nil && *e.ToUserID == userID) {
			out = append(out, e)
		}
	}
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ---- holds ----

type memHolds struct{ *memDB }

func (s memHolds) Create(_ context.Context, hold *models.CoinHold) error {
	return s.tx(func() error {
		if hold.ID == uuid.Nil {
			hold.ID = uuid.New()
		}
		if err := s.insertHold(*hold); err != nil {
			return err
		}
		if _, err := s.mutate(hold.ClientID, hold.Amount.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &hold.ClientID,
			HoldID:     &hold.ID,
			Amount:     hold.Amount,
			Type:       models.TxTypeHold,
		}); err != nil {
			return err
		}
		*hold = s.holds[hold.ID]
		return nil
	})
}

func (s memHolds) GetByID(_ context.Context, id uuid.UUID) (*models.CoinHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, apperror.ErrHoldNotFound
	}
	return &h, nil
}

func (s memHolds) ListByHire(_ context.Context, hireID uuid.UUID) ([]models.CoinHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedHolds(func(h models.CoinHold) bool { return h.HireID == hireID }), nil
}

func (s memHolds) Release(_ context.Context, holdID, freelancerID uuid.UUID, txType, note string) (*models.CoinHold, error) {
	var out *models.CoinHold
	err := s.tx(func() error {
		h, ok := s.holds[holdID]
		if !ok {
			return apperror.ErrHoldNotFound
		}
		if h.Status != valueobject.HoldStatusHeld {
			return apperror.InvalidState("hold is " + string(h.Status))
		}
		if s.openContract(h.HireID) {
			return apperror.InvalidState("hold is settled by an open contract")
		}
		var err error
		out, _, err = s.releaseLocked(h, freelancerID, txType, note)
		return err
	})
	return out, err
}

func (s memHolds) Refund(_ context.Context, holdID, freelancerID uuid.UUID) (*models.CoinHold, error) {
	var out *models.CoinHold
	err := s.tx(func() error {
		h, ok := s.holds[holdID]
		if !ok {
			return apperror.ErrHoldNotFound
		}
		if !h.Status.CanTransitionTo(valueobject.HoldStatusRefunded) {
			return apperror.InvalidState("hold is " + string(h.Status))
		}
		var err error
		out, err = s.refundLocked(h, freelancerID, "")
		return err
	})
	return out, err
}

func (s memHolds) ListEligible(_ context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedHolds(func(h models.CoinHold) bool {
		return h.Status == valueobject.HoldStatusHeld && h.AutoRelease && h.EligibleAt != nil &&
			!h.EligibleAt.After(cutoff) && !s.openContract(h.HireID)
	})
	return page(out, limit, 0), nil
}

func (s memHolds) ListUnconfirmedWork(_ context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedHolds(func(h models.CoinHold) bool {
		if h.MilestoneID != nil || h.Status != valueobject.HoldStatusHeld || !h.AutoRelease || s.openContract(h.HireID) {
			return false
		}
		for _, f := range s.finals {
			if f.HireID == h.HireID && f.Status == valueobject.FinalStatusApproved && !f.SubmittedAt.After(cutoff) {
				return true
			}
		}
		return false
	})
	return page(out, limit, 0), nil
}

// ---- jobs ----

type memJobs struct{ *memDB }

func (s memJobs) Create(_ context.Context, job *models.Job, milestones []models.Milestone) error {
	return s.tx(func() error {
		job.ID = uuid.New()
		job.CreatedAt = s.now()
		s.jobs[job.ID] = *job
		for i := range milestones {
			milestones[i].ID = uuid.New()
			milestones[i].JobID = job.ID
			milestones[i].Status = valueobject.MilestoneStatusPending
			milestones[i].CreatedAt = s.now()
			s.milestones[milestones[i].ID] = milestones[i]
		}
		return nil
	})
}

func (s memJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperror.ErrJobNotFound
	}
	return &j, nil
}

func (s memJobs) Approve(_ context.Context, id uuid.UUID) (*models.Job, error) {
	var out models.Job
	err := s.tx(func() error {
		j, ok := s.jobs[id]
		if !ok {
			return apperror.ErrJobNotFound
		}
		if j.Approved {
			return apperror.ErrInvalidState
		}
		j.Approved = true
		s.jobs[id] = j
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s memJobs) ListMilestones(_ context.Context, jobID uuid.UUID) ([]models.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Milestone
	for _, m := range s.milestones {
		if m.JobID == jobID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s memJobs) GetMilestone(_ context.Context, id uuid.UUID) (*models.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, apperror.ErrMilestoneNotFound
	}
	return &m, nil
}

func (s memJobs) SubmitMilestone(_ context.Context, milestoneID, freelancerID uuid.UUID, fileURL, message string) (*models.Milestone, error) {
	var out models.Milestone
	err := s.tx(func() error {
		m, ok := s.milestones[milestoneID]
		if !ok {
			return apperror.ErrMilestoneNotFound
		}
		if !m.Status.CanTransitionTo(valueobject.MilestoneStatusSubmitted) {
			return apperror.InvalidState("milestone is " + string(m.Status))
		}
		at := s.now()
		m.Status = valueobject.MilestoneStatusSubmitted
		m.SubmissionURL = &fileURL
		m.SubmittedAt = &at
		m.RejectionReason = nil
		s.milestones[milestoneID] = m
		s.submissions = append(s.submissions, models.MilestoneSubmission{
			ID:           uuid.New(),
			MilestoneID:  milestoneID,
			FreelancerID: freelancerID,
			FileURL:      fileURL,
			Message:      message,
			CreatedAt:    at,
		})
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s memJobs) ApproveMilestone(_ context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, *models.CoinHold, error) {
	var (
		milestone models.Milestone
		hold      *models.CoinHold
	)
	err := s.tx(func() error {
		m, ok := s.milestones[milestoneID]
		if !ok {
			return apperror.ErrMilestoneNotFound
		}
		if !m.Status.CanTransitionTo(valueobject.MilestoneStatusApproved) {
			return apperror.InvalidState("milestone is " + string(m.Status))
		}
		active := s.sortedHolds(func(h models.CoinHold) bool {
			return h.MilestoneID != nil && *h.MilestoneID == milestoneID && h.Status.IsActive()
		})
		if len(active) == 0 {
			return apperror.ErrHoldNotFound
		}
		if active[0].Status != valueobject.HoldStatusHeld {
			return apperror.InvalidState("milestone hold is " + string(active[0].Status))
		}
		at := s.now()
		m.Status = valueobject.MilestoneStatusApproved
		m.ApprovedAt = &at
		s.milestones[milestoneID] = m
		milestone = m

		var err error
		hold, _, err = s.releaseLocked(active[0], freelancerID, models.TxTypeMilestonePay, "milestone "+m.Title)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &milestone, hold, nil
}

func (s memJobs) RejectMilestone(_ context.Context, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	var out models.Milestone
	err := s.tx(func() error {
		m, ok := s.milestones[milestoneID]
		if !ok {
			return apperror.ErrMilestoneNotFound
		}
		if m.Status != valueobject.MilestoneStatusSubmitted {
			return apperror.ErrInvalidState
		}
		m.Status = valueobject.MilestoneStatusRejected
		m.RejectionReason = &reason
		s.milestones[milestoneID] = m
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s memJobs) CreateMatch(_ context.Context, match *models.JobMatch) error {
	return s.tx(func() error {
		key := [2]uuid.UUID{match.JobID, match.FreelancerID}
		if _, ok := s.matches[key]; ok {
			return apperror.New(apperror.ErrCodeConflict, "match already exists")
		}
		match.ID = uuid.New()
		match.Status = valueobject.MatchStatusMatched
		match.CreatedAt = s.now()
		s.matches[key] = *match
		return nil
	})
}

func (s memJobs) GetMatch(_ context.Context, jobID, freelancerID uuid.UUID) (*models.JobMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[[2]uuid.UUID{jobID, freelancerID}]
	if !ok {
		return nil, apperror.ErrMatchNotFound
	}
	return &m, nil
}

// ---- hires ----

type memHires struct{ *memDB }

func (s memHires) Create(_ context.Context, hire *models.Hire, holds []models.CoinHold) error {
	return s.tx(func() error {
		key := [2]uuid.UUID{hire.JobID, hire.FreelancerID}
		match, ok := s.matches[key]
		if !ok || match.Status != valueobject.MatchStatusMatched {
			return apperror.InvalidState("match is not in matched state")
		}
		match.Status = valueobject.MatchStatusHired
		s.matches[key] = match

		for _, h := range s.hires {
			if h.JobID == hire.JobID {
				return apperror.ErrDuplicateHire
			}
		}
		hire.ID = uuid.New()
		hire.CreatedAt = s.now()
		s.hires[hire.ID] = *hire

		total := decimal.Zero
		for i := range holds {
			holds[i].ID = uuid.New()
			holds[i].HireID = hire.ID
			holds[i].ClientID = hire.ClientID
			holds[i].Status = valueobject.HoldStatusHeld
			total = total.Add(holds[i].Amount)
		}
		if _, err := s.mutate(hire.ClientID, total.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &hire.ClientID,
			Amount:     total,
			Type:       models.TxTypeHold,
			Note:       "hire " + hire.ID.String(),
		}); err != nil {
			return err
		}
		for _, h := range holds {
			if err := s.insertHold(h); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s memHires) GetByID(_ context.Context, id uuid.UUID) (*models.Hire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hires[id]
	if !ok {
		return nil, apperror.ErrHireNotFound
	}
	return &h, nil
}

func (s memHires) GetByJob(_ context.Context, jobID uuid.UUID) (*models.Hire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hires {
		if h.JobID == jobID {
			return &h, nil
		}
	}
	return nil, apperror.ErrHireNotFound
}

func (s memHires) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Hire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Hire
	for _, h := range s.hires {
		if h.ClientID == userID || h.FreelancerID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memHires) CreateFinal(_ context.Context, final *models.FinalSubmission) error {
	return s.tx(func() error {
		for _, f := range s.finals {
			if f.HireID == final.HireID && f.Status != valueobject.FinalStatusRejected {
				return apperror.InvalidState("final submission already pending or approved")
			}
		}
		final.ID = uuid.New()
		final.Status = valueobject.FinalStatusSubmitted
		final.SubmittedAt = s.now()
		s.finals[final.ID] = *final
		return nil
	})
}

func (s memHires) GetFinal(_ context.Context, id uuid.UUID) (*models.FinalSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.finals[id]
	if !ok {
		return nil, apperror.ErrFinalNotFound
	}
	return &f, nil
}

func (s memHires) LatestFinal(_ context.Context, hireID uuid.UUID) (*models.FinalSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.FinalSubmission
	for _, f := range s.finals {
		if f.HireID != hireID {
			continue
		}
		if latest == nil || f.SubmittedAt.After(latest.SubmittedAt) {
			f := f
			latest = &f
		}
	}
	if latest == nil {
		return nil, apperror.ErrFinalNotFound
	}
	return latest, nil
}

func (s memHires) ApproveFinal(_ context.Context, finalID, freelancerID uuid.UUID, at time.Time) (*models.FinalSubmission, *models.CoinHold, error) {
	var (
		final models.FinalSubmission
		hold  *models.CoinHold
	)
	err := s.tx(func() error {
		f, ok := s.finals[finalID]
		if !ok {
			return apperror.ErrFinalNotFound
		}
		if !f.Status.CanTransitionTo(valueobject.FinalStatusApproved) {
			return apperror.InvalidState("final submission is " + string(f.Status))
		}
		held := s.sortedHolds(func(h models.CoinHold) bool {
			return h.HireID == f.HireID && h.MilestoneID == nil && h.Status == valueobject.HoldStatusHeld
		})
		if len(held) == 0 {
			return apperror.InvalidState("no held single hold for hire")
		}
		h := held[0]
		if h.IsFrozen() {
			return apperror.InvalidState("hold already frozen")
		}

		f.Status = valueobject.FinalStatusApproved
		f.ReviewedAt = &at
		s.finals[finalID] = f
		final = f

		if _, err := s.mutate(freelancerID, decimal.Zero, h.Amount, models.CoinTransaction{
			FromUserID: &h.ClientID,
			ToUserID:   &freelancerID,
			HoldID:     &h.ID,
			Amount:     h.Amount,
			Type:       models.TxTypeFreeze,
		}); err != nil {
			return err
		}
		h.EligibleAt = &at
		s.holds[h.ID] = h
		hold = &h
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &final, hold, nil
}

func (s memHires) RejectFinal(_ context.Context, finalID uuid.UUID, reason string) (*models.FinalSubmission, error) {
	var out models.FinalSubmission
	err := s.tx(func() error {
		f, ok := s.finals[finalID]
		if !ok {
			return apperror.ErrFinalNotFound
		}
		if f.Status != valueobject.FinalStatusSubmitted {
			return apperror.ErrInvalidState
		}
		at := s.now()
		f.Status = valueobject.FinalStatusRejected
		f.RejectionReason = &reason
		f.ReviewedAt = &at
		s.finals[finalID] = f
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- disputes ----

type memDisputes struct{ *memDB }

func (s memDisputes) Open(_ context.Context, dispute *models.Dispute) ([]models.CoinHold, error) {
	var moved []models.CoinHold
	err := s.tx(func() error {
		for _, d := range s.disputes {
			if d.HireID == dispute.HireID && d.Status == valueobject.DisputeStatusOpen {
				return apperror.ErrDuplicateDispute
			}
		}
		dispute.ID = uuid.New()
		dispute.Status = valueobject.DisputeStatusOpen
		dispute.CreatedAt = s.now()
		s.disputes[dispute.ID] = *dispute

		for _, h := range s.sortedHolds(func(h models.CoinHold) bool {
			return h.HireID == dispute.HireID && h.Status == valueobject.HoldStatusHeld
		}) {
			id := dispute.ID
			h.Status = valueobject.HoldStatusDisputed
			h.DisputeID = &id
			s.holds[h.ID] = h
			moved = append(moved, h)
		}
		if len(moved) == 0 {
			return apperror.InvalidState("hire has no held funds")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (s memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return &d, nil
}

func (s memDisputes) ListOpen(_ context.Context, limit, offset int) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if d.Status == valueobject.DisputeStatusOpen {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s memDisputes) SetProofPath(_ context.Context, id uuid.UUID, path string) error {
	return s.tx(func() error {
		d, ok := s.disputes[id]
		if !ok {
			return apperror.ErrDisputeNotFound
		}
		d.ProofPath = &path
		s.disputes[id] = d
		return nil
	})
}

func (s memDisputes) close(id, adminID uuid.UUID, note string, status valueobject.DisputeStatus) (*models.Dispute, error) {
	d, ok := s.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	if !d.Status.CanTransitionTo(status) {
		return nil, apperror.InvalidState("dispute is " + string(d.Status))
	}
	at := s.now()
	d.Status = status
	d.Resolution = &note
	d.ResolvedBy = &adminID
	d.ResolvedAt = &at
	s.disputes[id] = d
	return &d, nil
}

func (s memDisputes) disputed(id uuid.UUID) []models.CoinHold {
	return s.sortedHolds(func(h models.CoinHold) bool {
		return h.DisputeID != nil && *h.DisputeID == id && h.Status == valueobject.HoldStatusDisputed
	})
}

func (s memDisputes) Resolve(_ context.Context, id, adminID uuid.UUID, note string) (*models.Dispute, []models.CoinHold, error) {
	var (
		dispute *models.Dispute
		holds   []models.CoinHold
	)
	err := s.tx(func() error {
		var err error
		if dispute, err = s.close(id, adminID, note, valueobject.DisputeStatusResolved); err != nil {
			return err
		}
		for _, h := range s.disputed(id) {
			h.Status = valueobject.HoldStatusHeld
			h.AutoRelease = false
			s.holds[h.ID] = h
			holds = append(holds, h)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return dispute, holds, nil
}

func (s memDisputes) Reject(_ context.Context, id, adminID uuid.UUID, note string, freelancerID uuid.UUID) (*models.Dispute, []models.CoinHold, error) {
	var (
		dispute *models.Dispute
		holds   []models.CoinHold
	)
	err := s.tx(func() error {
		var err error
		if dispute, err = s.close(id, adminID, note, valueobject.DisputeStatusRejected); err != nil {
			return err
		}
		for _, h := range s.disputed(id) {
			refunded, err := s.refundLocked(h, freelancerID, "dispute rejected")
			if err != nil {
				return err
			}
			holds = append(holds, *refunded)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return dispute, holds, nil
}

// ---- contracts ----

type memContracts struct{ *memDB }

func (s memContracts) Create(_ context.Context, contract *models.Contract) error {
	return s.tx(func() error {
		for _, c := range s.contracts {
			if c.FinalSubmissionID == contract.FinalSubmissionID {
				return apperror.ErrDuplicateContract
			}
		}
		contract.ID = uuid.New()
		contract.Status = valueobject.ContractStatusPendingDetails
		contract.CreatedAt = s.now()
		contract.UpdatedAt = contract.CreatedAt
		s.contracts[contract.ID] = *contract
		return nil
	})
}

func (s memContracts) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, apperror.ErrContractNotFound
	}
	return &c, nil
}

func (s memContracts) AddDetails(_ context.Context, details *models.PaymentDetails) error {
	return s.tx(func() error {
		details.ID = uuid.New()
		details.CreatedAt = s.now()
		s.details[details.ID] = *details
		return nil
	})
}

func (s memContracts) GetDetails(_ context.Context, id uuid.UUID) (*models.PaymentDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[id]
	if !ok {
		return nil, apperror.ErrDetailsNotFound
	}
	return &d, nil
}

func (s memContracts) LatestDetails(_ context.Context, contractID uuid.UUID) (*models.PaymentDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.PaymentDetails
	for _, d := range s.details {
		if d.ContractID != contractID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			d := d
			latest = &d
		}
	}
	if latest == nil {
		return nil, apperror.ErrDetailsNotFound
	}
	return latest, nil
}

func (s memContracts) VerifyDetails(_ context.Context, id uuid.UUID) (*models.PaymentDetails, error) {
	var out models.PaymentDetails
	err := s.tx(func() error {
		d, ok := s.details[id]
		if !ok {
			return apperror.ErrDetailsNotFound
		}
		if d.Verified {
			return apperror.ErrInvalidState
		}
		d.Verified = true
		s.details[id] = d
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s memContracts) transition(id uuid.UUID, from valueobject.ContractStatus, apply func(*models.Contract)) (*models.Contract, error) {
	var out models.Contract
	err := s.tx(func() error {
		c, ok := s.contracts[id]
		if !ok {
			return apperror.ErrContractNotFound
		}
		if c.Status != from {
			return apperror.ErrInvalidState
		}
		apply(&c)
		c.UpdatedAt = s.now()
		s.contracts[id] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s memContracts) MarkSent(_ context.Context, id uuid.UUID, proofPath *string) (*models.Contract, error) {
	return s.transition(id, valueobject.ContractStatusPendingDetails, func(c *models.Contract) {
		c.Status = valueobject.ContractStatusPaymentSent
		c.ClientMarkedSent = true
		if proofPath != nil {
			c.ProofPath = proofPath
		}
	})
}

func (s memContracts) MarkReceived(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	return s.transition(id, valueobject.ContractStatusPaymentSent, func(c *models.Contract) {
		c.FreelancerMarkedReceived = true
	})
}

func (s memContracts) Release(_ context.Context, id uuid.UUID) (*models.Contract, *models.CoinTransaction, error) {
	var (
		contract models.Contract
		entry    *models.CoinTransaction
	)
	err := s.tx(func() error {
		c, ok := s.contracts[id]
		if !ok {
			return apperror.ErrContractNotFound
		}
		if !c.Status.CanTransitionTo(valueobject.ContractStatusReleased) {
			return apperror.InvalidState("contract is " + string(c.Status))
		}
		escrow := s.sortedHolds(func(h models.CoinHold) bool {
			return h.HireID == c.HireID && h.MilestoneID == nil && h.Status == valueobject.HoldStatusHeld
		})
		if len(escrow) == 0 {
			return apperror.InvalidState("hire has no held escrow for the contract")
		}
		if !escrow[0].Amount.Equal(c.TotalAmount) {
			return apperror.InvalidState("contract amount differs from escrow")
		}

		at := s.now()
		c.Status = valueobject.ContractStatusReleased
		c.AdminConfirmed = true
		c.ReleasedAt = &at
		s.contracts[id] = c
		contract = c

		var err error
		_, entry, err = s.releaseLocked(escrow[0], c.FreelancerID, models.TxTypeContractPayment, "contract "+c.ID.String())
		if err != nil {
			return err
		}
		s.payments = append(s.payments, models.PaymentRecord{
			ID:                       uuid.New(),
			HireID:                   c.HireID,
			ContractID:               c.ID,
			ClientID:                 c.ClientID,
			FreelancerID:             c.FreelancerID,
			Amount:                   c.TotalAmount,
			Method:                   string(c.PaymentMethod),
			ClientMarkedSent:         c.ClientMarkedSent,
			FreelancerMarkedReceived: c.FreelancerMarkedReceived,
			CreatedAt:                at,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &contract, entry, nil
}

func (s memContracts) ListAwaitingRelease(_ context.Context, limit, offset int) ([]models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Contract
	for _, c := range s.contracts {
		if c.Status == valueobject.ContractStatusPaymentSent {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// ---- notifications ----

type memNotifications struct {
	*memDB
	failCreate bool
}

func (s *memNotifications) Create(_ context.Context, n *models.Notification) error {
	if s.failCreate {
		return errors.New("notifications table unavailable")
	}
	return s.tx(func() error {
		n.ID = uuid.New()
		n.CreatedAt = s.now()
		s.notifications[n.ID] = *n
		return nil
	})
}

func (s *memNotifications) GetByID(_ context.Context, id uuid.UUID) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, apperror.ErrNotificationNotFound
	}
	return &n, nil
}

func (s *memNotifications) visible(userID uuid.UUID, includeAdmins bool, unreadOnly bool) []models.Notification {
	var out []models.Notification
	for _, n := range s.notifications {
		mine := n.UserID != nil && *n.UserID == userID
		broadcast := includeAdmins && n.Audience == models.AudienceAdmins
		if (mine || broadcast) && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memNotifications) List(_ context.Context, userID uuid.UUID, includeAdmins bool, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.visible(userID, includeAdmins, unreadOnly), limit, offset), nil
}

func (s *memNotifications) MarkAsRead(_ context.Context, id uuid.UUID) error {
	return s.tx(func() error {
		n, ok := s.notifications[id]
		if !ok {
			return apperror.ErrNotificationNotFound
		}
		n.IsRead = true
		s.notifications[id] = n
		return nil
	})
}

func (s *memNotifications) CountUnread(_ context.Context, userID uuid.UUID, includeAdmins bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visible(userID, includeAdmins, true)), nil
}

// ---- collaborators ----

// memProofs хранилище файлов в памяти.
type memProofs struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newMemProofs() *memProofs {
	return &memProofs{objects: map[string][]byte{}}
}

func (p *memProofs) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.objects[path] = data
	return path, nil
}

func (p *memProofs) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	return "https://proofs.test/" + path + "?ttl=" + ttl.String(), nil
}

// sentEvent одно отправленное уведомление.
type sentEvent struct {
	UserID uuid.UUID
	Admins bool
	Kind   string
	Event  string
}

// recordingNotifier запоминает уведомления вместо доставки.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Kind: kind, Event: event})
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, kind, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Admins: true, Kind: kind, Event: event})
}

func (n *recordingNotifier) sent(userID uuid.UUID, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.UserID == userID && e.Event == event {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) sentToAdmins(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Admins && e.Event == event {
			return true
		}
	}
	return false
}
