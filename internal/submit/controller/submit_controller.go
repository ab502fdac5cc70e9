package controller

import (
	"strconv"
	"strings"

	"codearena/internal/common/http/middleware"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// CodeRequest is the run and submit payload.
type CodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// Run judges code against the visible test cases.
func (h *SubmitController) Run(c *gin.Context) {
	input, ok := bindCode(c)
	if !ok {
		return
	}
	result, err := h.submitService.Run(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Submit handles submission requests.
func (h *SubmitController) Submit(c *gin.Context) {
	input, ok := bindCode(c)
	if !ok {
		return
	}
	input.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	result, err := h.submitService.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Submission judged", result)
}

// Get returns one submission to its owner or an admin.
func (h *SubmitController) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	submissionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || submissionID <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.Get(c.Request.Context(), identity.UserID, identity.IsAdmin(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// ListForProblem returns the caller's submissions for a problem.
func (h *SubmitController) ListForProblem(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	problemID, err := strconv.ParseInt(c.Param("pid"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	items, err := h.submitService.ListForProblem(c.Request.Context(), identity.UserID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(items) == 0 {
		response.SuccessWithMessage(c, "No Submission is present", items)
		return
	}
	response.Success(c, items)
}

func bindCode(c *gin.Context) (service.CodeInput, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return service.CodeInput{}, false
	}
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return service.CodeInput{}, false
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Some fields are missing")
		return service.CodeInput{}, false
	}
	return service.CodeInput{
		UserID:    identity.UserID,
		ProblemID: problemID,
		Code:      req.Code,
		Language:  req.Language,
	}, true
}
