package services

import (
	"encoding/json"

	"gorm.io/gorm"

	"flow/internal/logger"
	"flow/internal/models"
)

// Audited actions.
const (
	AuditCreateAccount     = "CREATE_ACCOUNT"
	AuditSetDefaultAccount = "SET_DEFAULT_ACCOUNT"
	AuditCreateTransaction = "CREATE_TRANSACTION"
	AuditUpdateTransaction = "UPDATE_TRANSACTION"
	AuditDeleteTransaction = "DELETE_TRANSACTION"
	AuditBulkDeleteTxs     = "BULK_DELETE_TRANSACTIONS"
	AuditUpsertBudget      = "UPSERT_BUDGET"
)

const (
	auditResourceAccount     = "account"
	auditResourceBudget      = "budget"
	auditResourceTransaction = "transaction"
)

// AuditEvent describes one user-initiated change.
type AuditEvent struct {
	UserID     string
	Action     string
	ResourceID string
	IPAddress  string
	Changes    map[string]any
}

// resourceType derives the audited resource from the action.
func (e AuditEvent) resourceType() string {
	switch e.Action {
	case AuditCreateAccount, AuditSetDefaultAccount:
		return auditResourceAccount
	case AuditUpsertBudget:
		return auditResourceBudget
	default:
		return auditResourceTransaction
	}
}

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Record stores ev. Failures are logged and swallowed: the change being
// audited has already committed.
func (s *auditService) Record(ev AuditEvent) {
	log := logger.Get()

	var changes string
	if len(ev.Changes) > 0 {
		data, err := json.Marshal(ev.Changes)
		if err != nil {
			log.Warnw("Unencodable audit changes", "action", ev.Action, "error", err)
			data = []byte("{}")
		}
		changes = string(data)
	}

	entry := &models.AuditLog{
		UserID:       ev.UserID,
		Action:       ev.Action,
		ResourceType: ev.resourceType(),
		ResourceID:   ev.ResourceID,
		IPAddress:    ev.IPAddress,
		Changes:      changes,
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("Failed to write audit log",
			"user_id", ev.UserID,
			"action", ev.Action,
			"resource_id", ev.ResourceID,
			"error", err,
		)
	}
}
