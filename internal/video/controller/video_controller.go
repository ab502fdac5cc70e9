package controller

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	"codearena/internal/video/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// VideoController handles solution video endpoints. All routes are admin only.
type VideoController struct {
	videoService *service.VideoService
}

func NewVideoController(videoService *service.VideoService) *VideoController {
	return &VideoController{videoService: videoService}
}

type SaveVideoRequest struct {
	ProblemID    int64  `json:"problemId" binding:"required"`
	ObjectKey    string `json:"objectKey" binding:"required"`
	ThumbnailKey string `json:"thumbnailKey"`
	Duration     int    `json:"duration"`
}

func (h *VideoController) CreateUpload(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	ticket, err := h.videoService.CreateUpload(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ticket)
}

func (h *VideoController) Save(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req SaveVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Missing required fields")
		return
	}
	view, err := h.videoService.Save(c.Request.Context(), identity.UserID, service.SaveInput{
		ProblemID:    req.ProblemID,
		ObjectKey:    req.ObjectKey,
		ThumbnailKey: req.ThumbnailKey,
		Duration:     req.Duration,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Video saved successfully", view)
}

func (h *VideoController) Delete(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	if err := h.videoService.Delete(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Video deleted successfully", nil)
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("problemId"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}
