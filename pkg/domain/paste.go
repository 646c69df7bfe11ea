package domain

import (
	"time"
)

// Paste is a local record of a paste this client created.
type Paste struct {
	ID            int64     `json:"id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Privacy       string    `json:"privacy"`
	Expiration    string    `json:"expiration"`
	Format        string    `json:"format,omitempty"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
}
