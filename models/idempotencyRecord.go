package models

import (
	"encoding/json"
	"time"
)

// IdempotencyRecord is the durable ledger backing idempotent HTTP endpoints.
// Unique constraint: (user_id, idempotency_key). A row with NULL response
// columns marks an execution in flight; a populated row holds the response to
// replay verbatim. The guard in workflow/idempotency.go is the only writer.
type IdempotencyRecord struct {
	ID              int       `gorm:"primary_key" json:"id"`
	UserId          int       `gorm:"not null;index:uniq_idempotency,unique" json:"user_id"`
	IdempotencyKey  string    `gorm:"size:50;not null;index:uniq_idempotency,unique" json:"idempotency_key"`
	ResponseStatus  *int      `json:"response_status"`
	ResponseHeaders []byte    `gorm:"type:mediumblob" json:"-"`
	ResponseBody    []byte    `gorm:"type:mediumblob" json:"-"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HeaderPair preserves response header order and duplicates, which a plain
// map[string]string would lose.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func EncodeHeaderPairs(headers []HeaderPair) ([]byte, error) {
	if len(headers) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(headers)
}

func DecodeHeaderPairs(raw []byte) ([]HeaderPair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var headers []HeaderPair
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}
