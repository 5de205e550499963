package selection

import (
	"sort"
	"time"

	"marketbrief/internal/pkg/canonical"
)

// RawItem is a parsed feed entry before normalization.
type RawItem struct {
	Title       string
	Link        string
	Description string
	PublishedAt *time.Time
}

// Item is a normalized, hashable article candidate.
type Item struct {
	Title        string
	TitleNorm    string
	CanonicalURL string
	Source       string
	Description  string
	ContentHash  string
	PublishedAt  *time.Time
}

// Normalize canonicalizes raw items and derives their content hashes.
// Items with unusable URLs are dropped. Duplicate hashes within the batch
// keep their first occurrence.
func Normalize(raw []RawItem) []Item {
	out := make([]Item, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		canonicalURL, host, ok := canonical.URL(r.Link)
		if !ok {
			continue
		}
		titleNorm := canonical.Title(r.Title)
		if titleNorm == "" {
			continue
		}
		hash := canonical.Hash(titleNorm, canonicalURL, r.PublishedAt, host)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		out = append(out, Item{
			Title:        r.Title,
			TitleNorm:    titleNorm,
			CanonicalURL: canonicalURL,
			Source:       host,
			Description:  r.Description,
			ContentHash:  hash,
			PublishedAt:  r.PublishedAt,
		})
	}
	return out
}

// Scored is an item with its total ranking score.
type Scored struct {
	Item  Item
	Score float64
}

// Config bounds the selection.
type Config struct {
	// MaxForAI is the selection budget for the prompt.
	MaxForAI int

	// PerSourceCap limits how many items a single hostname may contribute.
	PerSourceCap int
}

// DefaultConfig returns the standard selection bounds.
func DefaultConfig() Config {
	return Config{MaxForAI: 25, PerSourceCap: 10}
}

// Rank scores every item (recency plus cluster boost), sorts descending with
// insertion order as the tiebreak, then applies the per-source cap and the
// overall budget.
func Rank(items []Item, now time.Time, cfg Config) []Scored {
	if cfg.MaxForAI <= 0 {
		cfg.MaxForAI = 25
	}
	if cfg.PerSourceCap <= 0 {
		cfg.PerSourceCap = 10
	}

	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.Title
	}
	sizes := clusterSizes(titles)

	scored := make([]Scored, len(items))
	for i, it := range items {
		score := 0.0
		if it.PublishedAt != nil {
			h := now.Sub(*it.PublishedAt).Hours()
			if h < 0 {
				h = 0
			}
			if h < 12 {
				score += 2 * (12 - h)
			}
			if h < 24 {
				score += 24 - h
			}
		}
		if sizes[i] > 1 {
			score += 6 * float64(sizes[i]-1)
		}
		scored[i] = Scored{Item: it, Score: score}
	}

	// Stable keeps insertion order for equal scores.
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	perSource := make(map[string]int)
	selected := make([]Scored, 0, cfg.MaxForAI)
	for _, s := range scored {
		if len(selected) == cfg.MaxForAI {
			break
		}
		if perSource[s.Item.Source] >= cfg.PerSourceCap {
			continue
		}
		perSource[s.Item.Source]++
		selected = append(selected, s)
	}
	return selected
}
