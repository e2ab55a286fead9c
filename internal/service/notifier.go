package service

import (
	"context"
	"fmt"
	"strconv"

	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/event"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/metrics"
	"rentdesk-backend/internal/repository"
)

// Notifier delivers late fee side effects: an in-app notification, an
// email to the tenant and a broadcast event. Each is attempted
// independently and failures are only logged.
type Notifier struct {
	tenantRepo  repository.TenantRepository
	noteRepo    repository.NotificationRepository
	emailSvc    EmailService
	broadcaster Broadcaster
}

func NewNotifier(tenantRepo repository.TenantRepository, noteRepo repository.NotificationRepository, emailSvc EmailService, broadcaster Broadcaster) *Notifier {
	return &Notifier{
		tenantRepo:  tenantRepo,
		noteRepo:    noteRepo,
		emailSvc:    emailSvc,
		broadcaster: broadcaster,
	}
}

func (n *Notifier) LateFeeApplied(ctx context.Context, ev domain.LateFeeEvent) {
	log := logger.WithBill(ev.BillID)

	if n.noteRepo != nil {
		note := &domain.Notification{
			UserID: ev.TenantID,
			BillID: ev.BillID,
			Type:   domain.NotificationTypeLateFee,
			Title:  "Late fee applied",
			Message: fmt.Sprintf("A late fee of %s has been added to bill %s (%d days overdue). Total outstanding: %s.",
				ev.LateFee.StringFixed(2), ev.BillNumber, ev.Days, ev.TotalOutstanding.StringFixed(2)),
			Attributes: map[string]string{
				"event_id":          ev.ID,
				"bill_number":       ev.BillNumber,
				"late_fee":          ev.LateFee.StringFixed(2),
				"total_outstanding": ev.TotalOutstanding.StringFixed(2),
				"days_overdue":      strconv.Itoa(ev.Days),
			},
			CreatedAt: ev.AppliedAt,
		}
		if err := n.noteRepo.Create(ctx, note); err != nil {
			log.Error("Failed to create late fee notification", "tenantID", ev.TenantID, "error", err)
			metrics.IncSideEffectFailure("notification")
		}
	}

	if n.emailSvc != nil && n.tenantRepo != nil {
		n.sendEmail(ctx, ev)
	}

	if n.broadcaster != nil {
		if err := n.broadcaster.Broadcast(ctx, event.TypeLateFeeApplied, ev); err != nil {
			log.Error("Failed to broadcast late fee event", "eventID", ev.ID, "error", err)
			metrics.IncSideEffectFailure("broadcast")
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, ev domain.LateFeeEvent) {
	log := logger.WithBill(ev.BillID)

	tenant, err := n.tenantRepo.GetByID(ctx, ev.TenantID)
	if err != nil {
		log.Error("Failed to load tenant for late fee email", "tenantID", ev.TenantID, "error", err)
		metrics.IncSideEffectFailure("email")
		return
	}
	if tenant.Email == "" {
		log.Debug("Tenant has no email address, skipping late fee email", "tenantID", ev.TenantID)
		return
	}

	notice := LateFeeNotice{
		BillNumber:       ev.BillNumber,
		Month:            ev.Month,
		Year:             ev.Year,
		DueDate:          ev.DueDate,
		Days:             ev.Days,
		LateFee:          ev.LateFee,
		TotalOutstanding: ev.TotalOutstanding,
	}
	if err := n.emailSvc.SendLateFeeNotification(ctx, tenant.Email, tenant.Name, notice); err != nil {
		log.Error("Failed to send late fee email", "tenantID", ev.TenantID, "error", err)
		metrics.IncSideEffectFailure("email")
	}
}

func (n *Notifier) PenaltiesApplied(ctx context.Context, ev domain.SweepEvent) {
	if n.broadcaster == nil {
		return
	}
	if err := n.broadcaster.Broadcast(ctx, event.TypePenaltiesApplied, ev); err != nil {
		logger.Error("Failed to broadcast sweep event", "runID", ev.RunID, "error", err)
		metrics.IncSideEffectFailure("broadcast")
	}
}
