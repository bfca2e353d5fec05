package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/messenger-server-go/internal/database"
	"github.com/openclaw/messenger-server-go/internal/model"
)

// MessageArchive keeps a history of routed text messages.
type MessageArchive interface {
	Create(ctx context.Context, params model.CreateArchivedMessageParams) (*model.ArchivedMessage, error)
	FindByID(ctx context.Context, id string) (*model.ArchivedMessage, error)
	FindByLogin(ctx context.Context, login string, limit, offset int) ([]model.ArchivedMessage, error)
	CountByLogin(ctx context.Context, login string) (int, error)
	// MarkDelivered flips the queued row for messageID and receiver. Ids wrap,
	// so the receiver keeps an old undelivered row from matching.
	MarkDelivered(ctx context.Context, messageID uint32, receiver string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageArchiveRepo struct {
	db database.DBTX
}

func NewMessageArchiveRepository(db database.DBTX) MessageArchive {
	return &messageArchiveRepo{db: db}
}

func (r *messageArchiveRepo) Create(ctx context.Context, params model.CreateArchivedMessageParams) (*model.ArchivedMessage, error) {
	msg := model.ArchivedMessage{
		ID:        uuid.NewString(),
		MessageID: int64(params.MessageID),
		Sender:    params.Sender,
		Receiver:  params.Receiver,
		Body:      params.Body,
		Status:    params.Status,
		SentAt:    params.SentAt.UTC(),
	}
	if msg.Status == model.ArchiveStatusDelivered || msg.Status == model.ArchiveStatusBroadcast {
		delivered := msg.SentAt
		msg.DeliveredAt = &delivered
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO message_archive
			(id, message_id, sender, receiver, body, status, sent_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), msg.ID, msg.MessageID, msg.Sender, msg.Receiver, msg.Body, msg.Status, msg.SentAt, msg.DeliveredAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageArchiveRepo) FindByID(ctx context.Context, id string) (*model.ArchivedMessage, error) {
	var msg model.ArchivedMessage
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT * FROM message_archive WHERE id = ?`), id)
	return HandleNotFound(&msg, err)
}

func (r *messageArchiveRepo) FindByLogin(ctx context.Context, login string, limit, offset int) ([]model.ArchivedMessage, error) {
	var msgs []model.ArchivedMessage
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`
		SELECT * FROM message_archive
		WHERE sender = ? OR receiver = ?
		ORDER BY sent_at DESC
		LIMIT ? OFFSET ?
	`), login, login, limit, offset)
	return msgs, err
}

func (r *messageArchiveRepo) CountByLogin(ctx context.Context, login string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM message_archive WHERE sender = ? OR receiver = ?
	`), login, login)
	return count, err
}

func (r *messageArchiveRepo) MarkDelivered(ctx context.Context, messageID uint32, receiver string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE message_archive SET
			status = ?,
			delivered_at = ?
		WHERE message_id = ? AND receiver = ? AND status = ?
	`), model.ArchiveStatusDelivered, at.UTC(), int64(messageID), receiver, model.ArchiveStatusQueued)
	return err
}

func (r *messageArchiveRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM message_archive WHERE sent_at < ?
	`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
