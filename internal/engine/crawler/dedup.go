package crawler

import "github.com/serabi/poiscout/internal/model"

// Deduplicator is the single point of truth for "have we already recorded
// this POI anywhere in the crawl". Accepted places keep first-seen order
// across cells and pages.
type Deduplicator struct {
	seen   map[string]struct{}
	places []model.Place
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Offer accepts the place iff its identity is non-empty and unseen.
// Re-offering a seen place is a no-op and returns false.
func (d *Deduplicator) Offer(p model.Place) bool {
	id := p.Identity()
	if id == "" {
		return false
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	d.places = append(d.places, p)
	return true
}

// Count returns the number of accepted places so far.
func (d *Deduplicator) Count() int { return len(d.places) }

// Places returns the accepted places in first-seen order.
func (d *Deduplicator) Places() []model.Place { return d.places }
