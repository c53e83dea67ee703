package service

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// Actor вызывающий пользователь, полученный от провайдера идентичности.
type Actor struct {
	ID   uuid.UUID
	Role valueobject.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == valueobject.RoleAdmin
}

// Operation операция, к которой применяется политика доступа.
type Operation string

const (
	OpOpenAccount      Operation = "account.open"
	OpViewWallet       Operation = "wallet.view"
	OpTransfer         Operation = "wallet.transfer"
	OpAdjustLedger     Operation = "ledger.adjust"
	OpCreateJob        Operation = "job.create"
	OpApproveJob       Operation = "job.approve"
	OpCreateMatch      Operation = "match.create"
	OpSecureHire       Operation = "hire.secure"
	OpViewHire         Operation = "hire.view"
	OpConfirmWork      Operation = "hire.confirm"
	OpSubmitFinal      Operation = "final.submit"
	OpReviewFinal      Operation = "final.review"
	OpSubmitMilestone  Operation = "milestone.submit"
	OpReviewMilestone  Operation = "milestone.review"
	OpRaiseDispute     Operation = "dispute.raise"
	OpViewDisputeProof Operation = "dispute.proof"
	OpListDisputes     Operation = "dispute.list"
	OpDecideDispute    Operation = "dispute.decide"
	OpManageHold       Operation = "hold.manage"
	OpCreateContract   Operation = "contract.create"
	OpSubmitDetails    Operation = "contract.details"
	OpViewDetails      Operation = "contract.details.view"
	OpVerifyDetails    Operation = "contract.verify"
	OpMarkSent         Operation = "contract.sent"
	OpMarkReceived     Operation = "contract.received"
	OpReleaseContract  Operation = "contract.release"
	OpRunSweep         Operation = "sweep.run"
)

// Relation отношение вызывающего к ресурсу.
type Relation string

const (
	// RelOwner клиент, которому принадлежит заказ.
	RelOwner Relation = "owner"
	// RelParty фрилансер найма или контракта.
	RelParty Relation = "party"
	RelNone  Relation = "none"
)

// RelationTo вычисляет отношение актора к ресурсу клиента clientID и исполнителя freelancerID.
func RelationTo(actor Actor, clientID, freelancerID uuid.UUID) Relation {
	switch actor.ID {
	case clientID:
		return RelOwner
	case freelancerID:
		return RelParty
	}
	return RelNone
}

const policyModel = `
[request_definition]
r = role, op, rel

[policy_definition]
p = role, op, rel

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.role == p.role && r.op == p.op && (p.rel == "*" || p.rel == r.rel)
`

// policyTable единая таблица (роль, операция, отношение).
var policyTable = [][3]string{
	{"client", string(OpViewWallet), "*"},
	{"client", string(OpTransfer), "*"},
	{"client", string(OpCreateJob), "*"},
	{"client", string(OpSecureHire), string(RelOwner)},
	{"client", string(OpViewHire), string(RelOwner)},
	{"client", string(OpConfirmWork), string(RelOwner)},
	{"client", string(OpReviewMilestone), string(RelOwner)},
	{"client", string(OpRaiseDispute), string(RelOwner)},
	{"client", string(OpViewDisputeProof), string(RelOwner)},
	{"client", string(OpCreateContract), string(RelOwner)},
	{"client", string(OpViewDetails), string(RelOwner)},
	{"client", string(OpMarkSent), string(RelOwner)},

	{"freelancer", string(OpViewWallet), "*"},
	{"freelancer", string(OpViewHire), string(RelParty)},
	{"freelancer", string(OpSubmitFinal), string(RelParty)},
	{"freelancer", string(OpSubmitMilestone), string(RelParty)},
	{"freelancer", string(OpViewDisputeProof), string(RelParty)},
	{"freelancer", string(OpSubmitDetails), string(RelParty)},
	{"freelancer", string(OpMarkReceived), string(RelParty)},

	{"admin", string(OpOpenAccount), "*"},
	{"admin", string(OpViewWallet), "*"},
	{"admin", string(OpAdjustLedger), "*"},
	{"admin", string(OpApproveJob), "*"},
	{"admin", string(OpCreateMatch), "*"},
	{"admin", string(OpViewHire), "*"},
	{"admin", string(OpReviewFinal), "*"},
	{"admin", string(OpViewDisputeProof), "*"},
	{"admin", string(OpListDisputes), "*"},
	{"admin", string(OpDecideDispute), "*"},
	{"admin", string(OpManageHold), "*"},
	{"admin", string(OpViewDetails), "*"},
	{"admin", string(OpVerifyDetails), "*"},
	{"admin", string(OpReleaseContract), "*"},
	{"admin", string(OpRunSweep), "*"},
}

// Policy проверяет доступ по таблице политик через casbin.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPolicy собирает enforcer из встроенной модели и таблицы политик.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("policy: model %w", err)
	}

	var sb strings.Builder
	for _, row := range policyTable {
		fmt.Fprintf(&sb, "p, %s, %s, %s\n", row[0], row[1], row[2])
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("policy: enforcer %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// Authorize возвращает ErrUnauthorized для анонимного актора и ErrForbidden, если политика не разрешает операцию.
func (p *Policy) Authorize(actor Actor, op Operation, rel Relation) error {
	if actor.ID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	ok, err := p.enforcer.Enforce(string(actor.Role), string(op), string(rel))
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "policy evaluation")
	}
	if !ok {
		return apperror.ErrForbidden
	}
	return nil
}
