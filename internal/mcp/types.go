package mcp

// --- Tool Arguments ---

type QueryArgs struct {
	Text       string    `json:"text,omitempty" jsonschema:"Natural language query. Embedded into a vector when no vector is given"`
	Vector     []float32 `json:"vector,omitempty" jsonschema:"Query embedding, if already computed"`
	MaxResults int       `json:"max_results,omitempty" jsonschema:"Number of seed entities from vector search (default 5)"`
	Depth      int       `json:"depth,omitempty" jsonschema:"Maximum graph traversal depth (default 2)"`
	EdgeTypes  []string  `json:"edge_types,omitempty" jsonschema:"Relationship types to follow (e.g. ['cites'])"`
	GraphType  string    `json:"graph_type,omitempty" jsonschema:"Either 'general' or 'ipld'. Detected from the query when empty"`
	Filter     string    `json:"filter,omitempty" jsonschema:"Metadata filter such as: type = 'paper'"`
}

type AddEntityArgs struct {
	EntityID         string         `json:"entity_id" jsonschema:"Unique ID of the entity"`
	Type             string         `json:"type,omitempty" jsonschema:"Entity type (e.g. 'paper', 'author')"`
	Text             string         `json:"text,omitempty" jsonschema:"Text to embed as the entity vector"`
	Vector           []float32      `json:"vector,omitempty" jsonschema:"Entity embedding, if already computed"`
	Properties       map[string]any `json:"properties,omitempty" jsonschema:"Arbitrary metadata"`
	ContentAddressed bool           `json:"content_addressed,omitempty" jsonschema:"Store as an immutable block identified by a CID"`
}

type ConnectArgs struct {
	SourceID string  `json:"source_id" jsonschema:"Start entity ID"`
	TargetID string  `json:"target_id" jsonschema:"End entity ID"`
	Relation string  `json:"relation" jsonschema:"Relationship type (e.g. 'cites', 'wrote')"`
	Weight   float64 `json:"weight,omitempty" jsonschema:"Edge weight in (0, 1]. Default 1"`
}

type DescribeArgs struct {
	EntityID string `json:"entity_id" jsonschema:"Entity to describe"`
}

type TopEntitiesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of entities (default 10)"`
}

// --- Tool Results ---

type ResultItem struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	Depth        int     `json:"depth"`
	Relationship string  `json:"relationship,omitempty"`
	Source       string  `json:"source,omitempty"`
	CID          string  `json:"cid,omitempty"`
	Seed         bool    `json:"seed,omitempty"`
	Importance   float64 `json:"importance,omitempty"`
}

type PlanResult struct {
	GraphType string `json:"graph_type"`
	Strategy  string `json:"strategy"`
	TopK      int    `json:"top_k"`
	MaxDepth  int    `json:"max_depth"`
	BatchSize int    `json:"batch_size,omitempty"`
	Summary   string `json:"summary"` // Formatted for the LLM
}

type ExecuteResult struct {
	QueryID         string       `json:"query_id"`
	State           string       `json:"state"`
	Results         []ResultItem `json:"results"`
	NodesVisited    int          `json:"nodes_visited"`
	BudgetExhausted bool         `json:"budget_exhausted"`
	Summary         string       `json:"summary"`
}

type AddEntityResult struct {
	EntityID string `json:"entity_id"`
	CID      string `json:"cid,omitempty"`
}

type ConnectResult struct {
	Status string `json:"status"`
}

type DescribeResult struct {
	Description string `json:"description"` // Textual description of connections
}

type TopEntitiesResult struct {
	Entities []string `json:"entities"` // "id (score)"
}
