package models

import "time"

// DocumentNotification is sent after every committed approve/reject on a document.
type DocumentNotification struct {
	OwnerID      string       `json:"owner_id"`
	DocumentType DocumentType `json:"document_type"`
	Outcome      Outcome      `json:"outcome"`
	DocumentID   string       `json:"document_id"`
	Stage        ReviewRole   `json:"stage"`
	ActorID      string       `json:"actor_id"`
	Reason       string       `json:"reason,omitempty"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
}

// EventNotification is sent when a compliance decision settles an event batch.
type EventNotification struct {
	OwnerID    string      `json:"owner_id"`
	Outcome    Outcome     `json:"outcome"`
	EventTitle string      `json:"event_title"`
	BatchID    string      `json:"batch_id"`
	Status     BatchStatus `json:"status"`
}
