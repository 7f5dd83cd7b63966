package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/newsgraph/newsgraph-go/internal/models"
)

// Key holds the natural-key fields an entity can carry. Which fields
// participate in identity depends on the node type; unused fields are
// ignored. Name must already be canonicalized by the standardizer - raw
// surface forms would fracture identities.
type Key struct {
	Name      string     // canonical display name
	SourceID  string     // Article: stable source identifier
	StockCode string     // Company: exchange ticker, optional
	Date      *time.Time // Policy/Event: announce or occurrence date
	Sequence  int        // Policy: intra-day sequence number
}

// Derive computes the deterministic node id for a natural key. Identity is
// a pure function of the key: replaying the same input always yields the
// same id, so repeated merges can never create a second node for the same
// logical entity. The switch is exhaustive over the closed node type set.
func Derive(t models.NodeType, key Key) string {
	switch t {
	case models.NodeArticle:
		return ArticleID(key.SourceID)
	case models.NodeInstitution:
		return nameHashID("inst", key.Name)
	case models.NodePolicy:
		return PolicyID(key.Date, key.Sequence, key.Name)
	case models.NodeIndustry:
		return nameHashID("industry", key.Name)
	case models.NodeCompany:
		return CompanyID(key.StockCode, key.Name)
	case models.NodeIndicator:
		return nameHashID("indicator", key.Name)
	case models.NodeRegion:
		return nameHashID("region", key.Name)
	case models.NodeEvent:
		return EventID(key.Name, key.Date)
	}
	// Unreachable for valid node types; callers validate before deriving.
	return nameHashID("unknown", key.Name)
}

// ArticleID encodes the stable article source id directly.
func ArticleID(sourceID string) string {
	return "article:" + strings.TrimSpace(sourceID)
}

// PolicyID encodes announce date plus intra-day sequence. Policies without
// a known date fall back to a name hash so the id stays total.
func PolicyID(date *time.Time, seq int, name string) string {
	if date == nil {
		return nameHashID("policy", name)
	}
	return fmt.Sprintf("policy:%s-%d", date.Format("20060102"), seq)
}

// CompanyID prefers the exchange stock code as the natural key; companies
// without a listed code fall back to a canonical-name hash.
func CompanyID(stockCode, name string) string {
	code := strings.TrimSpace(stockCode)
	if code != "" {
		return "company:" + strings.ToUpper(code)
	}
	return nameHashID("company", name)
}

// EventID hashes the canonical title together with the occurrence date so
// recurring events on different dates stay distinct.
func EventID(name string, date *time.Time) string {
	if date == nil {
		return nameHashID("event", name)
	}
	return nameHashID("event", name+"|"+date.Format("20060102"))
}

// nameHashID derives an id from free-text keys via content hash.
// 16 hex chars (64 bits) keeps collisions negligible at this graph's scale.
func nameHashID(prefix, name string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(name)))
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}
