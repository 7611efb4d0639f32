// Package pagination walks multi-request forum listings.
//
// Two shapes are supported. Offset pagination (topic posts) asks for the item
// after the last one received until the page reaches the high-water mark the
// forum reports. Cursor pagination (search, user activity) follows the
// forum's "more results" flag and stops when it turns false or the cursor
// stops moving.
//
// Example usage:
//
//	res, err := pagination.FetchOffset(ctx, pagination.Config{MaxPages: 50}, 1,
//		func(ctx context.Context, offset int) (pagination.OffsetPage[Post], error) {
//			return fetchPostsFrom(ctx, topicID, offset)
//		})
//
// Pages are fetched one at a time and items keep server order; nothing is
// sorted or de-duplicated. A failing page fails the whole walk with no items.
// A cancelled context stops before the next page and returns what was
// collected with Result.Partial set and an ErrCancelled error. More than
// MaxPages pages is ErrPaginationOverrun.
//
// BatchFetcher is separate: it runs independent lookups (for example the
// metadata of several topics) through a bounded worker pool.
package pagination
