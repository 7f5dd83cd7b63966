package dispatch

import (
	"io"
	"testing"
	"time"

	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/standardize"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builderWith(t *testing.T, std *standardize.Standardizer) *Dispatcher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(nil, nil, nil, nil, std, nil, StaticGate(true), Options{}, logger)
}

func testArticle() *models.Article {
	published := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	return &models.Article{
		Ref:         "a-42",
		Source:      "wire",
		Title:       "央行宣布降准",
		Content:     "...",
		PublishedAt: &published,
	}
}

func TestBuildGraphSetAlwaysIncludesArticleNode(t *testing.T) {
	d := builderWith(t, standardize.Empty())

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{})

	require.Len(t, set.Nodes, 1)
	n := set.Nodes[0]
	assert.Equal(t, models.NodeArticle, n.Type)
	assert.Equal(t, "article:a-42", n.ID)
	assert.Equal(t, "央行宣布降准", n.Name)
	assert.Equal(t, "wire", n.Attrs["source"])
	assert.Equal(t, "2026-03-15T08:00:00Z", n.Attrs["published_at"])
	assert.Empty(t, set.Edges)
}

func TestBuildGraphSetAliasedMentionsCollapse(t *testing.T) {
	std, err := standardize.Parse([]byte(`
institution:
  央行: 中国人民银行
  人行: 中国人民银行
`))
	require.NoError(t, err)
	d := builderWith(t, std)

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{
		Entities: []models.ExtractedEntity{
			{Type: "institution", Name: "央行"},
			{Type: "institution", Name: "人行"},
			{Type: "institution", Name: "中国人民银行"},
		},
	})

	// Three surface forms, one canonical institution node.
	require.Len(t, set.Nodes, 2)
	inst := set.Nodes[1]
	assert.Equal(t, models.NodeInstitution, inst.Type)
	assert.Equal(t, "中国人民银行", inst.Name)
}

func TestBuildGraphSetDropsUnknownEntitiesAndRelations(t *testing.T) {
	d := builderWith(t, standardize.Empty())

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{
		Entities: []models.ExtractedEntity{
			{Type: "celebrity", Name: "somebody"},
			{Type: "company", Name: ""},
			{Type: "company", Name: "招商银行", Attrs: map[string]any{"stock_code": "600036"}},
		},
		Relations: []models.ExtractedRelation{
			{Type: "LIKES", From: "Article:央行宣布降准", To: "Company:招商银行"},
			{Type: "MENTIONS", From: "Article:央行宣布降准", To: "Company:招商银行"},
		},
	})

	require.Len(t, set.Nodes, 2)
	assert.Equal(t, "company:600036", set.Nodes[1].ID)
	require.Len(t, set.Edges, 1)
	assert.Equal(t, models.EdgeMentions, set.Edges[0].Type)
}

func TestBuildGraphSetResolvesEndpointsByRawAndCanonicalName(t *testing.T) {
	std, err := standardize.Parse([]byte(`
institution:
  央行: 中国人民银行
`))
	require.NoError(t, err)
	d := builderWith(t, std)

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{
		Entities: []models.ExtractedEntity{
			{Type: "institution", Name: "央行"},
			{Type: "policy", Name: "降低存款准备金率", Attrs: map[string]any{"announce_date": "2026-03-15", "sequence": float64(1)}},
		},
		Relations: []models.ExtractedRelation{
			// Raw surface form on one endpoint, canonical on the next.
			{Type: "ANNOUNCED", From: "Institution:央行", To: "Policy:降低存款准备金率"},
			{Type: "REPORTS_ON", From: "Article:央行宣布降准", To: "Institution:中国人民银行"},
		},
	})

	require.Len(t, set.Edges, 2)
	announced := set.Edges[0]
	assert.Equal(t, models.NodeInstitution, announced.FromType)
	assert.Equal(t, "policy:20260315-1", announced.ToID)

	reports := set.Edges[1]
	assert.Equal(t, "article:a-42", reports.FromID)
	assert.Equal(t, announced.FromID, reports.ToID)
}

func TestBuildGraphSetDropsUnresolvableEndpoints(t *testing.T) {
	d := builderWith(t, standardize.Empty())

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{
		Entities: []models.ExtractedEntity{
			{Type: "region", Name: "长三角"},
		},
		Relations: []models.ExtractedRelation{
			{Type: "COVERS", From: "Article:央行宣布降准", To: "Region:珠三角"},
			{Type: "COVERS", From: "Article:央行宣布降准", To: "Region:长三角"},
			{Type: "COVERS", From: "not a ref", To: "Region:长三角"},
		},
	})

	require.Len(t, set.Edges, 1)
	assert.Equal(t, set.Nodes[1].ID, set.Edges[0].ToID)
}

func TestBuildGraphSetCarriesEdgeAttributes(t *testing.T) {
	d := builderWith(t, standardize.Empty())

	set := d.buildGraphSet(testArticle(), &models.ExtractionResult{
		Entities: []models.ExtractedEntity{
			{Type: "indicator", Name: "CPI"},
		},
		Relations: []models.ExtractedRelation{
			{Type: "CITES", From: "Article:央行宣布降准", To: "Indicator:CPI", Attrs: map[string]any{"period": "2026-02", "value": "0.7%"}},
		},
	})

	require.Len(t, set.Edges, 1)
	assert.Equal(t, models.EdgeCites, set.Edges[0].Type)
	assert.Equal(t, "2026-02", set.Edges[0].Attrs["period"])
	assert.Equal(t, "0.7%", set.Edges[0].Attrs["value"])
}

func TestBuildGraphSetEventIdentityUsesDate(t *testing.T) {
	d := builderWith(t, standardize.Empty())

	result := func(date string) *models.ExtractionResult {
		attrs := map[string]any{}
		if date != "" {
			attrs["date"] = date
		}
		return &models.ExtractionResult{
			Entities: []models.ExtractedEntity{{Type: "event", Name: "中央经济工作会议", Attrs: attrs}},
		}
	}

	a := d.buildGraphSet(testArticle(), result("2025-12-10")).Nodes[1]
	b := d.buildGraphSet(testArticle(), result("2026-12-09")).Nodes[1]
	c := d.buildGraphSet(testArticle(), result("2025-12-10")).Nodes[1]

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.ID, c.ID)
}
