package collector

import "sourcefetch/internal/pipeline"

// window picks the posts newer than cursor from a newest-first listing.
// When more than limit are new, the oldest limit of them are kept so the next
// fetch resumes where this one stopped. next is the newest kept post, or
// empty when nothing new was found.
func window(items []pipeline.FetchedPost, cursor string, limit int) (posts []pipeline.FetchedPost, next string, truncated bool) {
	fresh := items
	if cursor != "" {
		for i, it := range items {
			if it.ExternalID == cursor {
				fresh = items[:i]
				break
			}
		}
	}
	if limit > 0 && len(fresh) > limit {
		fresh = fresh[len(fresh)-limit:]
		truncated = true
	}
	if len(fresh) == 0 {
		return nil, "", truncated
	}
	return fresh, fresh[0].ExternalID, truncated
}
