package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size used when a caller does not ask for one.
	DefaultLimit = 10
	// MaxLimit caps how many rows any query can request.
	MaxLimit = 100
)

// NormalizeLimit enforces the default and maximum limits.
func NormalizeLimit(limit int) int {
	return NormalizeLimitWithDefault(limit, DefaultLimit)
}

// NormalizeLimitWithDefault is NormalizeLimit with a caller-supplied default.
func NormalizeLimitWithDefault(limit, def int) int {
	if def <= 0 || def > MaxLimit {
		def = DefaultLimit
	}
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalized limit plus one to detect a next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Page is the numbered-page request shape used by list endpoints.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to the configured bounds.
func (p Page) Normalize(defaultLimit int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	p.Limit = NormalizeLimitWithDefault(p.Limit, defaultLimit)
	return p
}

// Offset returns the row offset for the page; call on a normalized Page.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// PageInfo is returned next to a page of results.
type PageInfo struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPageInfo computes the page count for total rows.
func NewPageInfo(p Page, total int64) PageInfo {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PageInfo{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

// Cursor represents a keyset position: a timestamp plus a tiebreaker id.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%s", cursor.At.UTC().Format(time.RFC3339Nano), cursor.ID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components. An empty
// value yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{At: at, ID: id}, nil
}
