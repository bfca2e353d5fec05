package model

import (
	"time"
)

// Message is the common inbound shape decoded from both inbound channels.
type Message struct {
	Type      MessageType `json:"type"`
	ID        uint32      `json:"id,omitempty"`
	Timestamp uint32      `json:"timestamp,omitempty"`
	Sender    string      `json:"sender"`
	Receiver  string      `json:"receiver,omitempty"`
	Text      string      `json:"text,omitempty"`
	Flags     Flags       `json:"flags,omitempty"`
	Status    Status      `json:"status,omitempty"`
}

// Reply answers a command-channel request.
type Reply struct {
	OriginalType MessageType `json:"original_type"`
	OriginalID   uint32      `json:"original_id"`
	Code         int         `json:"code"`
	Error        string      `json:"error,omitempty"`
	Info         string      `json:"info,omitempty"`
}

func (r Reply) OK() bool {
	return r.Code == 0
}

type ArchiveStatus string

const (
	ArchiveStatusDelivered ArchiveStatus = "delivered"
	ArchiveStatusQueued    ArchiveStatus = "queued"
	ArchiveStatusBroadcast ArchiveStatus = "broadcast"
)

type ArchivedMessage struct {
	ID          string        `db:"id" json:"id"`
	MessageID   int64         `db:"message_id" json:"messageId"`
	Sender      string        `db:"sender" json:"sender"`
	Receiver    string        `db:"receiver" json:"receiver"`
	Body        string        `db:"body" json:"body"`
	Status      ArchiveStatus `db:"status" json:"status"`
	SentAt      time.Time     `db:"sent_at" json:"sentAt"`
	DeliveredAt *time.Time    `db:"delivered_at" json:"deliveredAt,omitempty"`
}

type CreateArchivedMessageParams struct {
	MessageID uint32
	Sender    string
	Receiver  string
	Body      string
	Status    ArchiveStatus
	SentAt    time.Time
}
