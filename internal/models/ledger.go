package models

import (
	"crypto/sha1" //nolint:gosec // content-addressing digest, not a security boundary
	"encoding/hex"
	"time"
)

// LedgerEntry is one dense, per-job citation slot (spec §3 Citation Ledger Entry).
type LedgerEntry struct {
	ID             int64     `json:"id"`
	JobID          string    `json:"job_id"`
	SourceHash     string    `json:"source_hash"`
	CitationNumber int       `json:"citation_number"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	AccessedAt     time.Time `json:"accessed_at"`
}

// SourceHash computes the stable digest used to dedup ledger entries within a
// job: SHA1(url | "|" | title | "|" | raw_storage_url). Any component may be
// empty (spec §4.2 step 1).
func SourceHash(url, title, rawStorageURL string) string {
	h := sha1.New() //nolint:gosec // content-addressing digest, not a security boundary
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(title))
	h.Write([]byte("|"))
	h.Write([]byte(rawStorageURL))
	return hex.EncodeToString(h.Sum(nil))
}
