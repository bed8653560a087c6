package controllers

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

// PostController exposes the personal feed: posts, likes, checklists,
// comments and attachment downloads.
type PostController struct {
	feed *store.FeedStore
}

// NewPostController creates a PostController.
func NewPostController(feed *store.FeedStore) *PostController {
	return &PostController{feed: feed}
}

type createPostRequest struct {
	Kind           string      `json:"kind"`
	Type           string      `json:"type"`
	Content        string      `json:"content"`
	Tags           string      `json:"tags"`
	Meta           interface{} `json:"meta"`
	ChecklistItems interface{} `json:"checklist_items"`
}

func (r createPostRequest) input() store.CreatePostInput {
	kind := r.Kind
	if kind == "" {
		kind = r.Type
	}
	return store.CreatePostInput{
		Kind:           kind,
		Content:        r.Content,
		Tags:           r.Tags,
		Meta:           r.Meta,
		ChecklistItems: r.ChecklistItems,
	}
}

// CreatePost accepts JSON, or multipart with attachments under "files".
// In multipart requests meta and checklist_items are JSON strings.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}

	var in store.CreatePostInput
	if isMultipart(ctx) {
		form, ok := multipartForm(ctx, p.feed.MaxRequestBytes())
		if !ok {
			return
		}
		uploads := formUploads(form, "files")
		req := createPostRequest{
			Kind:    ctx.PostForm("kind"),
			Type:    ctx.PostForm("type"),
			Content: ctx.PostForm("content"),
			Tags:    ctx.PostForm("tags"),
		}
		if v, ok := ctx.GetPostForm("meta"); ok {
			req.Meta = v
		}
		if v, ok := ctx.GetPostForm("checklist_items"); ok {
			req.ChecklistItems = v
		}
		in = req.input()
		in.Uploads = uploads
	} else {
		var req createPostRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, "invalid request payload")
			return
		}
		in = req.input()
	}

	post, err := p.feed.CreatePost(ctx.Request.Context(), userID, in)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, post)
}

// ListPosts returns the caller's own posts; anonymous callers get [].
func (p *PostController) ListPosts(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	posts, err := p.feed.ListFeed(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, posts)
}

// DeletePost removes a post owned by the caller.
func (p *PostController) DeletePost(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	postID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := p.feed.DeletePost(ctx.Request.Context(), postID, userID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ToggleLike likes or unlikes a post.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	postID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	res, err := p.feed.ToggleLike(ctx.Request.Context(), postID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// ToggleChecklistItem flips one item of a checklist post. Body: {index}.
func (p *PostController) ToggleChecklistItem(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	postID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Index interface{} `json:"index"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	items, err := p.feed.ToggleChecklistItem(ctx.Request.Context(), postID, userID, req.Index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"checklist_items": items})
}

// ListComments is public.
func (p *PostController) ListComments(ctx *gin.Context) {
	postID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	comments, err := p.feed.ListComments(ctx.Request.Context(), postID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, comments)
}

// CreateComment adds a comment to a post.
func (p *PostController) CreateComment(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	postID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	comment, err := p.feed.CreateComment(ctx.Request.Context(), postID, userID, req.Content)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, comment)
}

// DownloadAttachment streams an attachment to the author of its post.
// Images are shown inline, everything else is forced to download.
func (p *PostController) DownloadAttachment(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	attID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	att, rc, err := p.feed.OpenAttachment(ctx.Request.Context(), attID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	defer rc.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "attachment"
	if att.IsImage() {
		disposition = "inline"
	}
	ctx.DataFromReader(http.StatusOK, att.Size, contentType, rc, map[string]string{
		"Content-Disposition":    mime.FormatMediaType(disposition, map[string]string{"filename": att.OriginalName}),
		"X-Content-Type-Options": "nosniff",
	})
}
