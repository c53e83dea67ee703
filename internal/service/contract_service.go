package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
)

// Обязательные поля реквизитов по способу оплаты.
var requiredDetailFields = map[valueobject.PaymentMethod][]string{
	valueobject.PaymentMethodBankTransfer: {"bank_name", "account_name", "account_number"},
	valueobject.PaymentMethodCrypto:       {"network", "address"},
	valueobject.PaymentMethodOther:        {"note"},
}

// Допустимые поля реквизитов. Остальные отбрасываются.
var allowedDetailFields = map[valueobject.PaymentMethod][]string{
	valueobject.PaymentMethodBankTransfer: {"bank_name", "account_name", "account_number", "swift"},
	valueobject.PaymentMethodCrypto:       {"network", "address"},
	valueobject.PaymentMethodOther:        {"note"},
}

// CreateContractInput данные внеплатформенного контракта.
type CreateContractInput struct {
	HireID            uuid.UUID
	FinalSubmissionID uuid.UUID
	PaymentMethod     valueobject.PaymentMethod
	TotalAmount       decimal.Decimal
}

// RevealedDetails расшифрованные реквизиты.
type RevealedDetails struct {
	Details *models.PaymentDetails `json:"details"`
	Fields  map[string]string      `json:"fields"`
}

// ContractService внеплатформенная оплата: pending_details → payment_sent → released.
type ContractService struct {
	contracts ContractStore
	hires     HireStore
	holds     HoldStore
	proofs    ProofStore
	sealer    Sealer
	policy    *Policy
	notifier  Notifier
	now       func() time.Time
}

// NewContractService создаёт сервис.
func NewContractService(contracts ContractStore, hires HireStore, holds HoldStore, proofs ProofStore, sealer Sealer, policy *Policy, notifier Notifier) *ContractService {
	return &ContractService{
		contracts: contracts,
		hires:     hires,
		holds:     holds,
		proofs:    proofs,
		sealer:    sealer,
		policy:    policy,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Create создаёт контракт по принятой итоговой сдаче.
func (s *ContractService) Create(ctx context.Context, actor Actor, in CreateContractInput) (*models.Contract, error) {
	hire, err := s.hires.GetByID(ctx, in.HireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpCreateContract, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	if !in.PaymentMethod.IsValid() {
		return nil, apperror.Validation("payment_method")
	}
	amount, err := valueobject.NewAmount(in.TotalAmount)
	if err != nil {
		return nil, err
	}

	final, err := s.hires.GetFinal(ctx, in.FinalSubmissionID)
	if err != nil {
		return nil, err
	}
	if final.HireID != hire.ID {
		return nil, apperror.Validation("final_submission_id")
	}
	if final.Status != valueobject.FinalStatusApproved {
		return nil, apperror.InvalidState("final submission is " + string(final.Status))
	}
	if err := s.ensureEscrow(ctx, hire.ID, amount); err != nil {
		return nil, err
	}

	contract := &models.Contract{
		HireID:            hire.ID,
		FinalSubmissionID: final.ID,
		ClientID:          hire.ClientID,
		FreelancerID:      hire.FreelancerID,
		PaymentMethod:     in.PaymentMethod,
		TotalAmount:       amount,
	}
	if err := s.contracts.Create(ctx, contract); err != nil {
		return nil, err
	}
	s.log(contract).Info("contract created")

	s.notifier.Notify(ctx, contract.FreelancerID, models.NotificationTypeAction, "contract_created", map[string]interface{}{
		"contract_id":    contract.ID,
		"payment_method": contract.PaymentMethod,
		"total_amount":   contract.TotalAmount,
	})
	return contract, nil
}

// ensureEscrow контракт оплачивается из холда разового найма, поэтому холд должен быть held и совпадать по сумме.
func (s *ContractService) ensureEscrow(ctx context.Context, hireID uuid.UUID, amount decimal.Decimal) error {
	holds, err := s.holds.ListByHire(ctx, hireID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.MilestoneID != nil || h.Status != valueobject.HoldStatusHeld {
			continue
		}
		if !h.Amount.Equal(amount) {
			return apperror.Validation("total_amount")
		}
		return nil
	}
	return apperror.InvalidState("hire has no held escrow for a contract")
}

// SubmitDetails фрилансер передаёт реквизиты для оплаты. Реквизиты шифруются.
func (s *ContractService) SubmitDetails(ctx context.Context, actor Actor, contractID uuid.UUID, method valueobject.PaymentMethod, fields map[string]string, proof *ProofFile) (*models.PaymentDetails, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpSubmitDetails, RelationTo(actor, contract.ClientID, contract.FreelancerID)); err != nil {
		return nil, err
	}
	if contract.Status != valueobject.ContractStatusPendingDetails {
		return nil, apperror.InvalidState("contract is " + string(contract.Status))
	}

	clean, err := validateDetails(method, fields)
	if err != nil {
		return nil, err
	}
	plain, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("contract service: marshal details %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("contract service: seal details %w", err)
	}

	details := &models.PaymentDetails{
		ContractID:    contract.ID,
		FreelancerID:  actor.ID,
		Method:        method,
		SealedDetails: sealed,
		ProofPath:     s.storeProof(ctx, contract, "details", proof),
	}
	if err := s.contracts.AddDetails(ctx, details); err != nil {
		return nil, err
	}
	s.log(contract).WithField("details_id", details.ID).Info("payment details submitted")

	data := map[string]interface{}{"contract_id": contract.ID, "details_id": details.ID, "method": method}
	s.notifier.Notify(ctx, contract.ClientID, models.NotificationTypeAction, "payment_details_submitted", data)
	s.notifier.NotifyAdmins(ctx, models.NotificationTypeAction, "payment_details_submitted", data)
	return details, nil
}

func validateDetails(method valueobject.PaymentMethod, fields map[string]string) (map[string]string, error) {
	if !method.IsValid() {
		return nil, apperror.Validation("method")
	}
	clean := make(map[string]string, len(fields))
	for _, key := range allowedDetailFields[method] {
		if v := strings.TrimSpace(fields[key]); v != "" {
			clean[key] = v
		}
	}
	for _, key := range requiredDetailFields[method] {
		if clean[key] == "" {
			return nil, apperror.Validation(key)
		}
	}
	return clean, nil
}

// RevealDetails расшифровывает последние реквизиты контракта для клиента или администратора.
func (s *ContractService) RevealDetails(ctx context.Context, actor Actor, contractID uuid.UUID) (*RevealedDetails, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpViewDetails, RelationTo(actor, contract.ClientID, contract.FreelancerID)); err != nil {
		return nil, err
	}
	details, err := s.contracts.LatestDetails(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(details.SealedDetails)
	if err != nil {
		return nil, fmt.Errorf("contract service: open details %w", err)
	}
	fields := map[string]string{}
	if err := json.Unmarshal(plain, &fields); err != nil {
		return nil, fmt.Errorf("contract service: decode details %w", err)
	}
	return &RevealedDetails{Details: details, Fields: fields}, nil
}

// VerifyDetails администратор подтверждает реквизиты.
func (s *ContractService) VerifyDetails(ctx context.Context, actor Actor, detailsID uuid.UUID) (*models.PaymentDetails, error) {
	if err := s.policy.Authorize(actor, OpVerifyDetails, RelNone); err != nil {
		return nil, err
	}
	details, err := s.contracts.VerifyDetails(ctx, detailsID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.GetByID(ctx, details.ContractID)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{"contract_id": contract.ID, "details_id": details.ID}
	s.notifier.Notify(ctx, contract.ClientID, models.NotificationTypeInfo, "payment_details_verified", data)
	s.notifier.Notify(ctx, contract.FreelancerID, models.NotificationTypeInfo, "payment_details_verified", data)
	return details, nil
}

// MarkSent клиент отмечает отправку оплаты. Требуются реквизиты фрилансера.
func (s *ContractService) MarkSent(ctx context.Context, actor Actor, contractID uuid.UUID, proof *ProofFile) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpMarkSent, RelationTo(actor, contract.ClientID, contract.FreelancerID)); err != nil {
		return nil, err
	}
	if _, err := s.contracts.LatestDetails(ctx, contract.ID); err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.InvalidState("freelancer has not submitted payment details")
		}
		return nil, err
	}

	updated, err := s.contracts.MarkSent(ctx, contract.ID, s.storeProof(ctx, contract, "payment", proof))
	if err != nil {
		return nil, err
	}
	s.log(updated).Info("payment marked sent")

	data := map[string]interface{}{"contract_id": updated.ID, "total_amount": updated.TotalAmount}
	s.notifier.Notify(ctx, updated.FreelancerID, models.NotificationTypePayment, "payment_sent", data)
	s.notifier.NotifyAdmins(ctx, models.NotificationTypeAction, "contract_awaiting_release", data)
	return updated, nil
}

// MarkReceived фрилансер подтверждает получение оплаты.
func (s *ContractService) MarkReceived(ctx context.Context, actor Actor, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpMarkReceived, RelationTo(actor, contract.ClientID, contract.FreelancerID)); err != nil {
		return nil, err
	}

	updated, err := s.contracts.MarkReceived(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	s.log(updated).Info("payment marked received")

	s.notifier.NotifyAdmins(ctx, models.NotificationTypeAction, "payment_received", map[string]interface{}{
		"contract_id": updated.ID,
	})
	return updated, nil
}

// ConfirmRelease администратор закрывает контракт: зачисление фрилансеру и запись в журнал выплат.
func (s *ContractService) ConfirmRelease(ctx context.Context, actor Actor, contractID uuid.UUID) (*models.Contract, error) {
	if err := s.policy.Authorize(actor, OpReleaseContract, RelNone); err != nil {
		return nil, err
	}
	contract, entry, err := s.contracts.Release(ctx, contractID)
	if err != nil {
		return nil, err
	}
	metrics.Escrow().ObserveLedgerMutation(entry.Type)
	s.log(contract).WithField("tx_id", entry.ID).Info("contract released")

	data := map[string]interface{}{"contract_id": contract.ID, "total_amount": contract.TotalAmount}
	s.notifier.Notify(ctx, contract.FreelancerID, models.NotificationTypePayment, "contract_released", data)
	s.notifier.Notify(ctx, contract.ClientID, models.NotificationTypePayment, "contract_released", data)
	return contract, nil
}

// ListAwaitingRelease контракты, ожидающие подтверждения администратора.
func (s *ContractService) ListAwaitingRelease(ctx context.Context, actor Actor, limit, offset int) ([]models.Contract, error) {
	if err := s.policy.Authorize(actor, OpReleaseContract, RelNone); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.contracts.ListAwaitingRelease(ctx, limit, offset)
}

// storeProof загружает необязательный файл. Ошибка загрузки не прерывает операцию.
func (s *ContractService) storeProof(ctx context.Context, contract *models.Contract, kind string, proof *ProofFile) *string {
	if proof == nil {
		return nil
	}
	path := storage.ContractProofPath(contract.ID, kind, proof.Name, s.now())
	stored, err := s.proofs.Upload(ctx, path, proof.Data, proof.ContentType)
	if err != nil {
		metrics.Escrow().ObserveSideEffectFailure("proof_upload")
		s.log(contract).WithError(err).Warn("contract proof not stored")
		return nil
	}
	return &stored
}

func (s *ContractService) log(contract *models.Contract) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"hire_id":     contract.HireID,
		"status":      contract.Status,
	})
}
