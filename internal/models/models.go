package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeType identifies one of the eight graph node labels.
// The set is closed: every switch over NodeType must cover all eight values.
type NodeType string

const (
	NodeArticle     NodeType = "Article"
	NodeInstitution NodeType = "Institution"
	NodePolicy      NodeType = "Policy"
	NodeIndustry    NodeType = "Industry"
	NodeCompany     NodeType = "Company"
	NodeIndicator   NodeType = "Indicator"
	NodeRegion      NodeType = "Region"
	NodeEvent       NodeType = "Event"
)

// Valid reports whether t is one of the eight known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeArticle, NodeInstitution, NodePolicy, NodeIndustry,
		NodeCompany, NodeIndicator, NodeRegion, NodeEvent:
		return true
	default:
		return false
	}
}

// AllNodeTypes returns the closed node type set.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeArticle, NodeInstitution, NodePolicy, NodeIndustry,
		NodeCompany, NodeIndicator, NodeRegion, NodeEvent,
	}
}

// EdgeType identifies one of the seven graph relationship labels.
type EdgeType string

const (
	EdgeAnnounced EdgeType = "ANNOUNCED"
	EdgeAffects   EdgeType = "AFFECTS"
	EdgeBelongsTo EdgeType = "BELONGS_TO"
	EdgeMentions  EdgeType = "MENTIONS"
	EdgeReportsOn EdgeType = "REPORTS_ON"
	EdgeCovers    EdgeType = "COVERS"
	EdgeCites     EdgeType = "CITES"
)

// Valid reports whether t is one of the seven known edge types.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeAnnounced, EdgeAffects, EdgeBelongsTo, EdgeMentions,
		EdgeReportsOn, EdgeCovers, EdgeCites:
		return true
	default:
		return false
	}
}

// AllEdgeTypes returns the closed edge type set.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeAnnounced, EdgeAffects, EdgeBelongsTo, EdgeMentions,
		EdgeReportsOn, EdgeCovers, EdgeCites,
	}
}

// Node is a fully resolved graph node ready for merging: canonical name,
// derived identity, and display attributes.
type Node struct {
	Type  NodeType
	ID    string
	Name  string
	Attrs map[string]any
}

// Edge is a fully resolved, directed graph relationship.
type Edge struct {
	Type     EdgeType
	FromType NodeType
	FromID   string
	ToType   NodeType
	ToID     string
	Attrs    map[string]any
}

// GraphSet is the complete node/edge payload derived from one article.
// The merge engine applies an entire GraphSet in a single transaction.
type GraphSet struct {
	Nodes []Node
	Edges []Edge
}

// ExtractedEntity is the loose per-entity output of the external extractor.
// Type and Name are free-form text until coerced at the standardizer boundary.
type ExtractedEntity struct {
	Type  string         `json:"type"`
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attributes,omitempty"`
}

// ExtractedRelation is the loose per-relation output of the external
// extractor. From and To reference entities as "Type:raw name".
type ExtractedRelation struct {
	Type  string         `json:"type"`
	From  string         `json:"from"`
	To    string         `json:"to"`
	Attrs map[string]any `json:"attributes,omitempty"`
}

// ExtractionResult is everything the extractor produced for one article.
type ExtractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// Article is the read model of the external article store. The pipeline
// only ever reads articles; it never writes to the publishing store.
type Article struct {
	Ref         string     `db:"id"`
	Source      string     `db:"source"`
	Title       string     `db:"title"`
	Content     string     `db:"content"`
	PublishedAt *time.Time `db:"published_at"`
}

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusInProgress   JobStatus = "in_progress"
	StatusDone         JobStatus = "done"
	StatusFailed       JobStatus = "failed"
	StatusManualReview JobStatus = "manual_review"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusFailed, StatusManualReview:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is immutable. Done and manual_review jobs are
// never transitioned again by the pipeline.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusManualReview
}

// Job is one record in the sync queue ledger.
type Job struct {
	ID           uuid.UUID `db:"id"`
	ArticleRef   string    `db:"article_reference"`
	Status       JobStatus `db:"status"`
	RetryCount   int       `db:"retry_count"`
	ErrorMessage *string   `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
