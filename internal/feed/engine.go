package feed

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// Engine serves stable pages of posts for infinite scroll. Ordering is a
// strict total order over (created_at DESC, id ASC), so a page boundary is a
// point on an immutable axis: posts inserted or deleted concurrently can
// never push an already-returned item back into a later page.
type Engine struct {
	db              *gorm.DB
	defaultPageSize int
	maxPageSize     int
}

func NewEngine(db *gorm.DB, defaultPageSize, maxPageSize int) *Engine {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Engine{db: db, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

func (e *Engine) clamp(pageSize int) int {
	if pageSize <= 0 {
		return e.defaultPageSize
	}
	if pageSize > e.maxPageSize {
		return e.maxPageSize
	}
	return pageSize
}

// Page returns the next page after cur (nil cur means the head of the feed)
// and the cursor to resume from. A nil next cursor signals end-of-feed.
// Deleted posts ahead of the cursor are silently absent; that is the whole
// contract, not an error.
func (e *Engine) Page(ctx context.Context, cur *Cursor, pageSize int) ([]*model.Post, *Cursor, error) {
	pageSize = e.clamp(pageSize)

	q := e.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("hidden = ?", false)
	if cur != nil {
		t := cur.Time()
		q = q.Where("created_at < ? OR (created_at = ? AND id > ?)", t, t, cur.ID)
	}

	var posts []*model.Post
	if err := q.Order("created_at DESC, id ASC").Limit(pageSize).Find(&posts).Error; err != nil {
		return nil, nil, feederr.FromDB("feed page", err)
	}

	// A full page may have more behind it; a short page is the end. This can
	// hand out one trailing cursor that resolves to an empty page, which is
	// exactly what an infinite-scroll client expects.
	var next *Cursor
	if len(posts) == pageSize {
		last := posts[len(posts)-1]
		next = &Cursor{TS: last.CreatedAt.UnixNano(), ID: last.ID}
	}
	return posts, next, nil
}

// Search returns the newest posts matching query, for the search path only.
// It deliberately has no cursor: the coalescer renders a single result set.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]*model.Post, error) {
	if limit <= 0 {
		limit = e.defaultPageSize
	}
	var posts []*model.Post
	err := e.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("hidden = ?", false).
		Where("LOWER(content) LIKE LOWER(?)", "%"+query+"%").
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, feederr.FromDB("feed search", err)
	}
	return posts, nil
}

// TimelinePage pages one user's fanned-out timeline with the same cursor
// contract, keyed on (inbox.score DESC, inbox.post_id ASC). The inner join
// masks inbox rows whose post has since been deleted or hidden.
func (e *Engine) TimelinePage(ctx context.Context, userID string, cur *Cursor, pageSize int) ([]*model.Post, *Cursor, error) {
	pageSize = e.clamp(pageSize)

	q := e.db.WithContext(ctx).
		Table("inbox").
		Select("posts.*, inbox.score AS inbox_score").
		Joins("JOIN posts ON posts.id = inbox.post_id").
		Where("inbox.user_id = ? AND posts.hidden = ?", userID, false)
	if cur != nil {
		q = q.Where("inbox.score < ? OR (inbox.score = ? AND inbox.post_id > ?)", cur.TS, cur.TS, cur.ID)
	}

	type row struct {
		model.Post
		InboxScore int64
	}
	var rows []row
	if err := q.Order("inbox.score DESC, inbox.post_id ASC").Limit(pageSize).Scan(&rows).Error; err != nil {
		return nil, nil, feederr.FromDB("timeline page", err)
	}

	posts := make([]*model.Post, len(rows))
	for i := range rows {
		p := rows[i].Post
		posts[i] = &p
	}
	var next *Cursor
	if len(rows) == pageSize {
		last := rows[len(rows)-1]
		next = &Cursor{TS: last.InboxScore, ID: last.Post.ID}
	}
	return posts, next, nil
}
