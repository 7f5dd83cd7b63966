package dispatch

import (
	"strconv"
	"time"

	"github.com/newsgraph/newsgraph-go/internal/identity"
	"github.com/newsgraph/newsgraph-go/internal/models"
	"github.com/newsgraph/newsgraph-go/internal/standardize"
	"github.com/sirupsen/logrus"
)

// buildGraphSet turns one article's loose extraction output into a fully
// resolved GraphSet: types coerced against the closed sets, names
// canonicalized, identities derived. The article node itself is always
// included so relation endpoints like "Article:..." resolve even when the
// extractor returned nothing else.
func (d *Dispatcher) buildGraphSet(article *models.Article, result *models.ExtractionResult) models.GraphSet {
	set := models.GraphSet{}
	seen := map[string]bool{}

	articleNode := models.Node{
		Type: models.NodeArticle,
		ID:   identity.ArticleID(article.Ref),
		Name: article.Title,
		Attrs: map[string]any{
			"source": article.Source,
		},
	}
	if article.PublishedAt != nil {
		articleNode.Attrs["published_at"] = article.PublishedAt.UTC().Format(time.RFC3339)
	}
	set.Nodes = append(set.Nodes, articleNode)
	seen[articleNode.ID] = true

	// refs maps both the raw surface form and the canonical name of every
	// resolved entity back to its node, keyed per type. Relations reference
	// entities by whatever form the extractor used, so both must resolve.
	refs := map[models.NodeType]map[string]models.Node{
		models.NodeArticle: {article.Title: articleNode},
	}
	addRef := func(t models.NodeType, name string, n models.Node) {
		if refs[t] == nil {
			refs[t] = map[string]models.Node{}
		}
		refs[t][name] = n
	}

	for _, e := range result.Entities {
		t, name, ok := d.standardizer.CoerceEntity(e)
		if !ok {
			d.logger.WithFields(logrus.Fields{
				"type": e.Type,
				"name": e.Name,
			}).Warn("Dropping unrecognized entity")
			continue
		}
		if t == models.NodeArticle {
			// The article node is authoritative from the store, not the
			// extractor; fold extractor references onto it.
			addRef(t, e.Name, articleNode)
			continue
		}

		node := models.Node{
			Type:  t,
			ID:    identity.Derive(t, entityKey(name, e.Attrs)),
			Name:  name,
			Attrs: e.Attrs,
		}
		addRef(t, e.Name, node)
		addRef(t, name, node)
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		set.Nodes = append(set.Nodes, node)
	}

	for _, r := range result.Relations {
		et, ok := standardize.CoerceRelation(r)
		if !ok {
			d.logger.WithField("type", r.Type).Warn("Dropping unrecognized relation")
			continue
		}
		from, ok := d.resolveRef(refs, article, r.From)
		if !ok {
			d.logger.WithField("ref", r.From).Warn("Dropping relation with unresolvable endpoint")
			continue
		}
		to, ok := d.resolveRef(refs, article, r.To)
		if !ok {
			d.logger.WithField("ref", r.To).Warn("Dropping relation with unresolvable endpoint")
			continue
		}
		set.Edges = append(set.Edges, models.Edge{
			Type:     et,
			FromType: from.Type,
			FromID:   from.ID,
			ToType:   to.Type,
			ToID:     to.ID,
			Attrs:    r.Attrs,
		})
	}

	return set
}

// resolveRef resolves a "Type:raw name" relation endpoint against the
// entities of this extraction. Any Article reference resolves to the job's
// article node regardless of the name used.
func (d *Dispatcher) resolveRef(refs map[models.NodeType]map[string]models.Node, article *models.Article, ref string) (models.Node, bool) {
	t, raw, ok := standardize.ParseEntityRef(ref)
	if !ok {
		return models.Node{}, false
	}
	if t == models.NodeArticle {
		return models.Node{
			Type: models.NodeArticle,
			ID:   identity.ArticleID(article.Ref),
			Name: article.Title,
		}, true
	}
	if n, ok := refs[t][raw]; ok {
		return n, true
	}
	if n, ok := refs[t][d.standardizer.Standardize(t, raw)]; ok {
		return n, true
	}
	return models.Node{}, false
}

// entityKey lifts the identity-bearing fields out of loose extractor
// attributes. Missing or malformed fields simply stay zero; identity
// derivation handles the fallbacks.
func entityKey(canonicalName string, attrs map[string]any) identity.Key {
	key := identity.Key{Name: canonicalName}
	if s, ok := stringAttr(attrs, "stock_code"); ok {
		key.StockCode = s
	}
	for _, field := range []string{"announce_date", "date"} {
		if s, ok := stringAttr(attrs, field); ok {
			if t, err := time.Parse("2006-01-02", s); err == nil {
				key.Date = &t
				break
			}
		}
	}
	if n, ok := intAttr(attrs, "sequence"); ok {
		key.Sequence = n
	}
	return key
}

func stringAttr(attrs map[string]any, field string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	s, ok := attrs[field].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func intAttr(attrs map[string]any, field string) (int, bool) {
	if attrs == nil {
		return 0, false
	}
	switch v := attrs[field].(type) {
	case float64: // JSON numbers decode as float64
		return int(v), true
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
