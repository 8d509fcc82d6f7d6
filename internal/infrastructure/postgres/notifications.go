package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NotificationLogStatus tracks a request through the external send path.
type NotificationLogStatus string

const (
	NotificationPending NotificationLogStatus = "PENDING"
	NotificationSuccess NotificationLogStatus = "SUCCESS"
	NotificationError   NotificationLogStatus = "ERROR"
)

// NotificationRequest is the payload handed to the external notification
// subsystem. The engine never talks to the SMS gateway itself.
type NotificationRequest struct {
	OccurrenceID string `json:"occurrence_id"`
	CycleID      string `json:"cycle_id"`
	PatientID    string `json:"patient_id"`
	Phone        string `json:"phone"`
	Message      string `json:"message"`
	RequestedBy  string `json:"requested_by"`
}

// NotificationRepository records notification requests and their outcomes.
type NotificationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewNotificationRepository creates a new repository.
func NewNotificationRepository(pool *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRepository{pool: pool, logger: logger}
}

// Enqueue writes the notification log row and the outbox entry in a single
// transaction, so the audit trail and the queued request cannot diverge.
func (r *NotificationRepository) Enqueue(ctx context.Context, req *NotificationRequest, topic string) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification request: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertLog := `
		INSERT INTO notification_log
		(occurrence_id, cycle_id, phone, message, status, sent_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, insertLog,
		req.OccurrenceID, req.CycleID, req.Phone, req.Message,
		NotificationPending, req.RequestedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}

	entry := &OutboxEntry{
		OccurrenceID: req.OccurrenceID,
		CycleID:      req.CycleID,
		PatientID:    req.PatientID,
		Payload:      payload,
		Topic:        topic,
		Key:          req.PatientID,
	}
	if err := writeOutboxEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("notification enqueued",
		zap.String("occurrence_id", req.OccurrenceID),
		zap.String("patient_id", req.PatientID))
	return nil
}

// RecordResult resolves the most recent pending log row for an occurrence with
// the outcome reported by the external sender.
func (r *NotificationRepository) RecordResult(ctx context.Context, occurrenceID string, success bool, apiID, sendErr string) error {
	status := NotificationSuccess
	if !success {
		status = NotificationError
	}
	query := `
		UPDATE notification_log
		SET status = $1, api_id = NULLIF($2, ''), error = NULLIF($3, '')
		WHERE id = (
			SELECT id FROM notification_log
			WHERE occurrence_id = $4 AND status = $5
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	_, err := r.pool.Exec(ctx, query, status, apiID, sendErr, occurrenceID, NotificationPending)
	if err != nil {
		return fmt.Errorf("record notification result: %w", err)
	}
	return nil
}
