package controller

import (
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/http/request"
	"codearena/internal/discuss/service"
	pkgrepo "codearena/pkg/repository"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// PostController handles discussion endpoints.
type PostController struct {
	postService *service.PostService
}

func NewPostController(postService *service.PostService) *PostController {
	return &PostController{postService: postService}
}

type CreatePostRequest struct {
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Tags    request.TagList `json:"tags"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

// List returns posts newest first. page and limit are optional.
func (h *PostController) List(c *gin.Context) {
	opts, err := pkgrepo.ParsePage(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	posts, total, err := h.postService.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !opts.Paged {
		response.Success(c, posts)
		return
	}
	response.SuccessWithPagination(c, posts, total, opts.Page(), opts.Limit)
}

func (h *PostController) Get(c *gin.Context) {
	post, err := h.postService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, post)
}

func (h *PostController) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	post, err := h.postService.Create(c.Request.Context(), service.CreatePostInput{
		UserID:  identity.UserID,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Post created successfully", post)
}

func (h *PostController) AddComment(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	post, err := h.postService.AddComment(c.Request.Context(), service.AddCommentInput{
		PostID: c.Param("id"),
		UserID: identity.UserID,
		Text:   req.Text,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Comment added successfully", post)
}
