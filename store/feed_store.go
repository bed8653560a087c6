package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/storage"
	"github.com/cppla/teamfeed/utils"
)

// AuthorSummary is the embedded author of posts and comments.
type AuthorSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

func summarize(u models.User) AuthorSummary {
	return AuthorSummary{ID: u.ID, Username: u.Username, Email: u.Email, Name: u.Name}
}

// AttachmentView describes an attachment without exposing its storage key.
type AttachmentView struct {
	ID           uint   `json:"id"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	IsImage      bool   `json:"is_image"`
	URL          string `json:"url"`
}

// AttachmentURL is the controlled download route for an attachment.
func AttachmentURL(id uint) string {
	return fmt.Sprintf("/api/v1/posts/attachments/%d/download", id)
}

func attachmentView(a models.PostAttachment) AttachmentView {
	return AttachmentView{
		ID:           a.ID,
		OriginalName: a.OriginalName,
		ContentType:  a.ContentType,
		Size:         a.Size,
		IsImage:      a.IsImage(),
		URL:          AttachmentURL(a.ID),
	}
}

// PostView is a post annotated for one viewer.
type PostView struct {
	ID             uint                   `json:"id"`
	Author         AuthorSummary          `json:"author"`
	Kind           string                 `json:"kind"`
	Content        string                 `json:"content"`
	Tags           string                 `json:"tags"`
	Meta           map[string]any         `json:"meta"`
	ChecklistItems []models.ChecklistItem `json:"checklist_items"`
	CreatedAt      time.Time              `json:"created_at"`
	LikeCount      int64                  `json:"like_count"`
	LikedByMe      bool                   `json:"liked_by_me"`
	CommentCount   int64                  `json:"comment_count"`
	Attachments    []AttachmentView       `json:"attachments"`
}

func postView(p models.Post) PostView {
	meta := map[string]any(p.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	items := []models.ChecklistItem(p.ChecklistItems)
	if items == nil {
		items = []models.ChecklistItem{}
	}
	atts := make([]AttachmentView, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		atts = append(atts, attachmentView(a))
	}
	return PostView{
		ID:             p.ID,
		Author:         summarize(p.Author),
		Kind:           p.Kind,
		Content:        p.Content,
		Tags:           p.Tags,
		Meta:           meta,
		ChecklistItems: items,
		CreatedAt:      p.CreatedAt,
		Attachments:    atts,
	}
}

// CreatePostInput is the raw client payload. Meta and ChecklistItems may be
// decoded JSON or JSON-encoded strings.
type CreatePostInput struct {
	Kind           string
	Content        string
	Tags           string
	Meta           any
	ChecklistItems any
	Uploads        []Upload
}

// LikeResult is the outcome of ToggleLike.
type LikeResult struct {
	PostID    uint  `json:"post_id"`
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

// CommentView is a comment with its author.
type CommentView struct {
	ID        uint          `json:"id"`
	PostID    uint          `json:"post"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	Author    AuthorSummary `json:"author"`
}

func commentView(c models.PostComment) CommentView {
	return CommentView{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		Author:    summarize(c.Author),
	}
}

// FeedStore owns posts, attachments, comments and likes.
type FeedStore struct {
	db     *gorm.DB
	blobs  storage.Storage
	policy UploadPolicy
}

func NewFeedStore(db *gorm.DB, blobs storage.Storage, policy UploadPolicy) *FeedStore {
	return &FeedStore{db: db, blobs: blobs, policy: policy}
}

// MaxRequestBytes is the largest create-post request worth reading.
func (s *FeedStore) MaxRequestBytes() int64 {
	return s.policy.MaxRequestBytes()
}

// CreatePost validates the payload, then writes the post, its attachment
// rows and blobs in one transaction. Blobs already written are removed when
// the transaction fails.
func (s *FeedStore) CreatePost(ctx context.Context, authorID uint, in CreatePostInput) (*PostView, error) {
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = models.PostKindText
	}
	if kind != models.PostKindText && kind != models.PostKindChecklist {
		return nil, Validation("kind", fmt.Sprintf("unsupported kind %q, expected text or checklist", in.Kind))
	}

	meta, ok := coerceObject(in.Meta)
	if !ok {
		return nil, Validation("meta", "must be a JSON object")
	}

	content := strings.TrimSpace(in.Content)
	var items []models.ChecklistItem
	switch kind {
	case models.PostKindText:
		code, _ := meta["code"].(string)
		if content == "" && strings.TrimSpace(code) == "" && len(in.Uploads) == 0 {
			return nil, Validation("content", "content/attachment/code: at least one required")
		}
		items = []models.ChecklistItem{}
	case models.PostKindChecklist:
		items = normalizeChecklist(in.ChecklistItems)
		if len(items) == 0 {
			return nil, Validation("checklist_items", "at least one valid item required")
		}
	}

	if err := s.policy.Check(in.Uploads); err != nil {
		return nil, err
	}

	post := models.Post{
		AuthorID:       authorID,
		Kind:           kind,
		Content:        content,
		Tags:           strings.TrimSpace(in.Tags),
		Meta:           datatypes.JSONMap(meta),
		ChecklistItems: datatypes.JSONSlice[models.ChecklistItem](items),
	}
	var written []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		for _, up := range in.Uploads {
			key := storage.NewKey(fmt.Sprintf("posts/%d", post.ID), up.Name)
			if err := s.putUpload(ctx, key, up); err != nil {
				return err
			}
			written = append(written, key)

			att := models.PostAttachment{
				PostID:       post.ID,
				StorageKey:   key,
				OriginalName: up.Name,
				ContentType:  normalizeMediaType(up.ContentType),
				Size:         up.Size,
			}
			if err := tx.Create(&att).Error; err != nil {
				return err
			}
			post.Attachments = append(post.Attachments, att)
		}
		return tx.First(&post.Author, authorID).Error
	})
	if err != nil {
		if len(written) > 0 {
			if rmErr := storage.RemoveAll(context.WithoutCancel(ctx), s.blobs, written); rmErr != nil {
				utils.Sugar.Warnf("orphaned blobs after failed post create: %v", rmErr)
			}
		}
		return nil, Internal(err, "create post")
	}
	invalidateStats(ctx, authorID)

	view := postView(post)
	// presentation only: no like row is written for the author
	view.LikedByMe = true
	return &view, nil
}

func (s *FeedStore) putUpload(ctx context.Context, key string, up Upload) error {
	rc, err := up.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", up.Name, err)
	}
	defer rc.Close()
	if err := s.blobs.Put(ctx, key, rc, up.Size, normalizeMediaType(up.ContentType)); err != nil {
		return fmt.Errorf("store upload %s: %w", up.Name, err)
	}
	return nil
}

type postCount struct {
	PostID uint
	N      int64
}

// ListFeed returns the viewer's own posts, newest first. An anonymous
// viewer (id 0) gets an empty list.
func (s *FeedStore) ListFeed(ctx context.Context, viewerID uint) ([]PostView, error) {
	out := []PostView{}
	if viewerID == 0 {
		return out, nil
	}

	db := s.db.WithContext(ctx)
	var posts []models.Post
	err := db.Preload("Author").
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Where("author_id = ?", viewerID).
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, Internal(err, "list feed")
	}
	if len(posts) == 0 {
		return out, nil
	}

	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	var likeRows, commentRows []postCount
	if err := db.Model(&models.PostLike{}).
		Select("post_id, COUNT(DISTINCT user_id) AS n").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&likeRows).Error; err != nil {
		return nil, Internal(err, "count likes")
	}
	if err := db.Model(&models.PostComment{}).
		Select("post_id, COUNT(DISTINCT id) AS n").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&commentRows).Error; err != nil {
		return nil, Internal(err, "count comments")
	}
	var likedIDs []uint
	if err := db.Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &likedIDs).Error; err != nil {
		return nil, Internal(err, "load likes")
	}

	likes := make(map[uint]int64, len(likeRows))
	for _, r := range likeRows {
		likes[r.PostID] = r.N
	}
	comments := make(map[uint]int64, len(commentRows))
	for _, r := range commentRows {
		comments[r.PostID] = r.N
	}
	liked := make(map[uint]bool, len(likedIDs))
	for _, id := range likedIDs {
		liked[id] = true
	}

	for _, p := range posts {
		v := postView(p)
		v.LikeCount = likes[p.ID]
		v.CommentCount = comments[p.ID]
		v.LikedByMe = liked[p.ID]
		out = append(out, v)
	}
	return out, nil
}

func (s *FeedStore) findPost(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("post not found")
		}
		return nil, Internal(err, "load post %d", postID)
	}
	return &post, nil
}

// ToggleLike removes the user's like if present, otherwise adds one. A
// concurrent insert that hits the unique index still counts as liked. The
// returned count is always re-read.
func (s *FeedStore) ToggleLike(ctx context.Context, postID, userID uint) (*LikeResult, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	res := db.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
	if res.Error != nil {
		return nil, Internal(res.Error, "unlike post %d", postID)
	}
	liked := false
	if res.RowsAffected == 0 {
		err := db.Create(&models.PostLike{PostID: postID, UserID: userID}).Error
		if err != nil && !isDuplicate(err) {
			return nil, Internal(err, "like post %d", postID)
		}
		liked = true
	}

	var count int64
	if err := db.Model(&models.PostLike{}).
		Where("post_id = ?", postID).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return nil, Internal(err, "count likes")
	}
	return &LikeResult{PostID: postID, Liked: liked, LikeCount: count}, nil
}

// ToggleChecklistItem flips item index of the actor's own checklist post
// and persists the whole array.
func (s *FeedStore) ToggleChecklistItem(ctx context.Context, postID, actorID uint, rawIndex any) ([]models.ChecklistItem, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, Forbidden("only the author can update this checklist")
	}
	if post.Kind != models.PostKindChecklist {
		return nil, Validation("kind", "post is not a checklist")
	}
	idx, ok := coerceIndex(rawIndex)
	if !ok {
		return nil, Validation("index", "must be an integer")
	}
	items := append([]models.ChecklistItem{}, post.ChecklistItems...)
	if idx < 0 || idx >= len(items) {
		return nil, Validation("index", fmt.Sprintf("out of range [0, %d)", len(items)))
	}
	items[idx].Done = !items[idx].Done

	err = s.db.WithContext(ctx).Model(&models.Post{ID: post.ID}).
		Update("checklist_items", datatypes.JSONSlice[models.ChecklistItem](items)).Error
	if err != nil {
		return nil, Internal(err, "save checklist for post %d", postID)
	}
	invalidateStats(ctx, actorID)
	return items, nil
}

// ListComments returns the comments of a post, newest first.
func (s *FeedStore) ListComments(ctx context.Context, postID uint) ([]CommentView, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	var rows []models.PostComment
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, Internal(err, "list comments")
	}
	out := make([]CommentView, 0, len(rows))
	for _, c := range rows {
		out = append(out, commentView(c))
	}
	return out, nil
}

// CreateComment appends a comment by authorID.
func (s *FeedStore) CreateComment(ctx context.Context, postID, authorID uint, content string) (*CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Validation("content", "comment must not be empty")
	}
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	c := models.PostComment{PostID: postID, AuthorID: authorID, Content: content}
	db := s.db.WithContext(ctx)
	if err := db.Create(&c).Error; err != nil {
		return nil, Internal(err, "create comment")
	}
	if err := db.Preload("Author").First(&c, c.ID).Error; err != nil {
		return nil, Internal(err, "reload comment")
	}
	v := commentView(c)
	return &v, nil
}

// DeletePost removes the actor's post with its attachments, comments and
// likes. Blob removal happens after commit and only logs failures.
func (s *FeedStore) DeletePost(ctx context.Context, postID, actorID uint) error {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actorID {
		return Forbidden("only the author can delete this post")
	}

	var keys []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PostAttachment{}).Where("post_id = ?", postID).Pluck("storage_key", &keys).Error; err != nil {
			return err
		}
		for _, m := range []any{&models.PostAttachment{}, &models.PostComment{}, &models.PostLike{}} {
			if err := tx.Where("post_id = ?", postID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Post{}, postID).Error
	})
	if err != nil {
		return Internal(err, "delete post %d", postID)
	}

	if err := storage.RemoveAll(ctx, s.blobs, keys); err != nil {
		utils.Sugar.Warnf("remove blobs of post %d: %v", postID, err)
	}
	invalidateStats(ctx, actorID)
	return nil
}

// OpenAttachment authorizes a download and opens the blob. Only the
// author of the owning post may download. The caller closes the reader.
func (s *FeedStore) OpenAttachment(ctx context.Context, attachmentID, actorID uint) (*models.PostAttachment, io.ReadCloser, error) {
	var att models.PostAttachment
	if err := s.db.WithContext(ctx).First(&att, attachmentID).Error; err != nil {
		if isNotFound(err) {
			return nil, nil, NotFound("attachment not found")
		}
		return nil, nil, Internal(err, "load attachment %d", attachmentID)
	}
	post, err := s.findPost(ctx, att.PostID)
	if err != nil {
		return nil, nil, err
	}
	if post.AuthorID != actorID {
		return nil, nil, Forbidden("only the post author can download this file")
	}
	rc, err := s.blobs.Open(ctx, att.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, NotFound("attachment file missing")
		}
		return nil, nil, Internal(err, "open attachment %d", attachmentID)
	}
	return &att, rc, nil
}
