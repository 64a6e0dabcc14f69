package types

import "time"

// MessageRecord is a persisted conversation message.
//
// Encrypted records carry both Ciphertext and SchemeVersion; a record with only
// one of them is treated as partially written and never decrypted.
type MessageRecord struct {
	ID             string         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Sender         UserID         `json:"sender"`
	Recipient      UserID         `json:"recipient"`
	Ciphertext     string         `json:"ciphertext,omitempty"`
	SchemeVersion  *int           `json:"scheme_version,omitempty"`
	Body           string         `json:"body,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
}

// Envelope is the wire-format message posted to and fetched from the mailbox.
type Envelope struct {
	ID            string `json:"id"`
	From          UserID `json:"from"`
	To            UserID `json:"to"`
	SchemeVersion int    `json:"scheme_version"`
	Ciphertext    string `json:"ciphertext"`
	Timestamp     int64  `json:"timestamp"`
}
