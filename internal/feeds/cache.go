package feeds

import "time"

// CachedResource is an immutable snapshot of a loaded feed together with
// the validators needed for the next conditional fetch. Sources never
// mutate a snapshot; they build a new one and swap the pointer.
type CachedResource[T any] struct {
	Locator      string
	Value        T
	ETag         string
	LastModified string
	ModTime      time.Time
	FetchedAt    time.Time
}

// NewCachedResource returns a snapshot for locator holding value.
func NewCachedResource[T any](locator string, value T, v Validators, now time.Time) *CachedResource[T] {
	return &CachedResource[T]{
		Locator:      locator,
		Value:        value,
		ETag:         v.ETag,
		LastModified: v.LastModified,
		ModTime:      v.ModTime,
		FetchedAt:    now,
	}
}

// ShouldRefresh reports whether the refresh window has elapsed. A nil
// snapshot always needs a refresh.
func (c *CachedResource[T]) ShouldRefresh(now time.Time, interval time.Duration) bool {
	if c == nil {
		return true
	}
	return now.Sub(c.FetchedAt) >= interval
}

// Checked returns a copy with FetchedAt moved to now and the value kept.
// Used for 304s and for failures that fall back to the stale value.
func (c *CachedResource[T]) Checked(now time.Time) *CachedResource[T] {
	next := *c
	next.FetchedAt = now
	return &next
}

// Validators carries whatever the origin gave us to make the next fetch conditional.
type Validators struct {
	ETag         string
	LastModified string
	ModTime      time.Time
}

// FeedStatus summarizes a feed cache for health reporting.
type FeedStatus struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Locator   string    `json:"locator,omitempty"`
	Rows      int       `json:"rows"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

func statusOf(name, locator string, snap *CachedResource[*Table]) FeedStatus {
	st := FeedStatus{Name: name, Enabled: locator != "", Locator: locator}
	if snap != nil {
		st.Rows = snap.Value.Len()
		st.FetchedAt = snap.FetchedAt
	}
	return st
}
