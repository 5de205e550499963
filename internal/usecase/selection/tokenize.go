// Package selection turns raw feed items into the ranked, capped set of
// articles a run feeds to the model: canonicalization, in-batch dedupe by
// content hash, topic clustering and a source-diversity cap. Dedupe against
// the per-newsletter seen set is done by the pipeline, not here.
package selection

import "strings"

// stopwords excluded from title token sets before similarity comparison.
var stopwords = map[string]struct{}{
	"THE": {}, "A": {}, "AN": {}, "OF": {}, "IN": {}, "ON": {}, "AND": {},
	"OR": {}, "TO": {}, "FOR": {}, "WITH": {}, "AT": {}, "BY": {}, "FROM": {},
	"ABOUT": {}, "OVER": {}, "AFTER": {}, "BEFORE": {}, "IS": {}, "ARE": {},
	"WAS": {}, "WERE": {}, "AS": {}, "NEW": {}, "US": {},
}

// tokenize uppercases, replaces non-alphanumerics with spaces, splits on
// whitespace and drops short tokens and stopwords. The result is the token
// set used for Jaccard similarity.
func tokenize(title string) map[string]struct{} {
	upper := strings.ToUpper(title)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}

// jaccard computes |a ∩ b| / |a ∪ b|. Two empty sets are not similar.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// unionFind is a flat parent array with path compression. Run sizes are a
// few hundred items, so the quadratic pairing in clusterSizes is fine.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// similarityThreshold is the title-Jaccard bound for joining a topic cluster.
const similarityThreshold = 0.4

// clusterSizes groups items whose title token sets reach the similarity
// threshold and returns each item's cluster size.
func clusterSizes(titles []string) []int {
	n := len(titles)
	tokens := make([]map[string]struct{}, n)
	for i, title := range titles {
		tokens[i] = tokenize(title)
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if jaccard(tokens[i], tokens[j]) >= similarityThreshold {
				uf.union(i, j)
			}
		}
	}

	counts := make(map[int]int, n)
	for i := 0; i < n; i++ {
		counts[uf.find(i)]++
	}
	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		sizes[i] = counts[uf.find(i)]
	}
	return sizes
}
