package models

import "time"

// Credential stores AEAD-sealed provider credentials, one row per connection.
type Credential struct {
	ConnectionID  string    `db:"connection_id"`
	Ciphertext    []byte    `db:"ciphertext"`
	Nonce         []byte    `db:"nonce"`
	KeyVersion    int       `db:"key_version"`
	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}
