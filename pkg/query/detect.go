package query

import "regexp"

// cidRegex matches a CIDv1 in one of the common base32 multibase forms
// (bafy… dag-cbor, bafk… raw, bafz…/bafr… other codecs) or a base58 CIDv0.
var cidRegex = regexp.MustCompile(`(?:^|[^A-Za-z0-9])(?:baf[ykzr][a-z2-7]{8,}|Qm[1-9A-HJ-NP-Za-km-z]{44})`)

// ipldTermRegex matches the IPLD vocabulary as whole words.
var ipldTermRegex = regexp.MustCompile(`(?i)\b(?:ipld|cids?|content-addressed|dags?)\b`)

// DetectGraphType infers the storage model a query targets. The first
// matching signal wins:
//
//  1. an explicit GraphType on the query
//  2. a filter that references a CID
//  3. IPLD vocabulary in the query text
//  4. GraphGeneral
//
// Detection is a pure function of q.
func DetectGraphType(q Query) GraphType {
	if q.GraphType != "" {
		return q.GraphType
	}
	if q.Filter != "" && cidRegex.MatchString(q.Filter) {
		return GraphIPLD
	}
	if q.QueryText != "" && ipldTermRegex.MatchString(q.QueryText) {
		return GraphIPLD
	}
	return GraphGeneral
}
