package controller

import (
	"strconv"

	"codearena/internal/common/http/middleware"
	"codearena/internal/sheet/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SheetController handles curated problem sheets.
type SheetController struct {
	sheetService *service.SheetService
}

func NewSheetController(sheetService *service.SheetService) *SheetController {
	return &SheetController{sheetService: sheetService}
}

type CreateSheetRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Problems    []int64 `json:"problems"`
	IsPublic    bool    `json:"isPublic"`
	Difficulty  string  `json:"difficulty"`
}

func (h *SheetController) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req CreateSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	sheet, err := h.sheetService.Create(c.Request.Context(), identity.UserID, service.CreateSheetInput{
		Title:       req.Title,
		Description: req.Description,
		Problems:    req.Problems,
		IsPublic:    req.IsPublic,
		Difficulty:  req.Difficulty,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Sheet created successfully", sheet)
}

func (h *SheetController) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	sheets, err := h.sheetService.List(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sheets)
}

func (h *SheetController) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	sheetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sheetID <= 0 {
		response.BadRequest(c, "Invalid sheet id")
		return
	}
	detail, err := h.sheetService.Get(c.Request.Context(), identity.UserID, identity.IsAdmin(), sheetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}
