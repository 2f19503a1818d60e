package vectorstore

import "context"

// GraphQueryType is the closed set the Graph Query tool accepts.
type GraphQueryType string

const (
	GraphQueryEntity   GraphQueryType = "entity"
	GraphQueryRelation GraphQueryType = "relation"
	GraphQueryPath     GraphQueryType = "path"
)

// GraphHit is one result out of a graph-style query: a vector hit enriched
// with the entity/relation metadata the document was indexed with.
type GraphHit struct {
	Content   string
	Source    string
	Entities  []string
	Relations []string
}

// GraphProvider answers entity/relation/path queries. There is no standalone
// graph database wired into this module (the teacher repo and the rest of
// the example pack carry no graph-store dependency); instead it is backed
// by the same vector Provider, reading the "entities" and "relations" list
// metadata a document was upserted with. Path queries degrade to relation
// queries since a vector index has no notion of multi-hop traversal. The
// chromem backend stores every metadata value as a string, so list metadata
// does not survive there and entity/relation/path queries return no hits.
type GraphProvider struct {
	vectors Provider
}

func NewGraphProvider(vectors Provider) *GraphProvider {
	return &GraphProvider{vectors: vectors}
}

func (g *GraphProvider) Query(ctx context.Context, text string, queryType GraphQueryType, topK int) ([]GraphHit, error) {
	hits, err := g.vectors.Query(ctx, text, topK, "")
	if err != nil {
		return nil, err
	}

	results := make([]GraphHit, 0, len(hits))
	for _, h := range hits {
		gh := GraphHit{Content: h.Content, Source: h.Source}
		gh.Entities = stringList(h.Metadata["entities"])
		gh.Relations = stringList(h.Metadata["relations"])
		switch queryType {
		case GraphQueryEntity:
			if len(gh.Entities) == 0 {
				continue
			}
		case GraphQueryRelation, GraphQueryPath:
			if len(gh.Relations) == 0 {
				continue
			}
		}
		results = append(results, gh)
	}
	return results, nil
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
