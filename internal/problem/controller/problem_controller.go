package controller

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	"codearena/internal/common/http/request"
	"codearena/internal/problem/model"
	"codearena/internal/problem/service"
	pkgrepo "codearena/pkg/repository"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem catalogue endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	problem, err := h.problemService.Create(c.Request.Context(), identity.UserID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Problem Saved Successfully", gin.H{"_id": problem.ID})
}

// Update replaces a problem's content.
func (h *ProblemController) Update(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	problem, err := h.problemService.Update(c.Request.Context(), problemID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Problem Updated Successfully", gin.H{"_id": problem.ID})
}

// Delete handles problem deletion.
func (h *ProblemController) Delete(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	if err := h.problemService.Delete(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Problem Deleted Successfully", nil)
}

// GetByID returns the solver view of a problem.
func (h *ProblemController) GetByID(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	detail, err := h.problemService.Get(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// List returns every problem, or one page when page or limit is given.
// Both shapes carry the total and the problems.
func (h *ProblemController) List(c *gin.Context) {
	opts, err := pkgrepo.ParsePage(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, total, err := h.problemService.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !opts.Paged {
		response.Success(c, ProblemPage{Total: total, Problems: items})
		return
	}
	response.Success(c, ProblemPage{
		Total:      total,
		Page:       opts.Page(),
		Limit:      opts.Limit,
		TotalPages: pkgrepo.TotalPages(total, opts.Limit),
		Problems:   items,
	})
}

// SolvedByUser lists the caller's solved problems.
func (h *ProblemController) SolvedByUser(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	solved, err := h.problemService.SolvedByUser(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, solved)
}

// ProblemRequest is the create and update payload.
type ProblemRequest struct {
	Title             string                    `json:"title"`
	Description       string                    `json:"description"`
	Difficulty        string                    `json:"difficulty"`
	Constraints       string                    `json:"constraints"`
	Tags              request.TagList           `json:"tags"`
	VisibleTestCases  []model.VisibleTestCase   `json:"visibleTestCases"`
	HiddenTestCases   []model.HiddenTestCase    `json:"hiddenTestCases"`
	StartCode         []model.StartCode         `json:"startCode"`
	ReferenceSolution []model.ReferenceSolution `json:"referenceSolution"`
}

func (r ProblemRequest) toInput() service.ProblemInput {
	return service.ProblemInput{
		Title:             r.Title,
		Description:       r.Description,
		Difficulty:        model.Difficulty(r.Difficulty),
		Constraints:       r.Constraints,
		Tags:              r.Tags,
		VisibleTestCases:  r.VisibleTestCases,
		HiddenTestCases:   r.HiddenTestCases,
		StartCode:         r.StartCode,
		ReferenceSolution: r.ReferenceSolution,
	}
}

// ProblemPage is the list payload. Page fields are set only for paged requests.
type ProblemPage struct {
	Total      int64           `json:"total"`
	Page       int             `json:"page,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	TotalPages int             `json:"totalPages,omitempty"`
	Problems   []model.Summary `json:"problems"`
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		return 0, false
	}
	return problemID, true
}
