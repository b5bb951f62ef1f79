package domain

import "time"

// EncryptedCredential is a provider access credential at rest: AEAD ciphertext
// with a per-record nonce and the key version it was sealed under. The key
// version tag is what makes rotation lazy and resumable.
type EncryptedCredential struct {
	ConnectionID  string    `json:"connectionID"`
	Ciphertext    []byte    `json:"-"`
	Nonce         []byte    `json:"-"`
	KeyVersion    int       `json:"keyVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
