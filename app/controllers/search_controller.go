package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/kalyuugh/backend-go/internal/errors"
	"github.com/kalyuugh/backend-go/internal/knowledge"
	"github.com/kalyuugh/backend-go/internal/services"
)

var validate = validator.New()

// searchRequest 检索请求体
type searchRequest struct {
	Query string `json:"query" validate:"required"`
}

// SearchController 语义检索控制器
type SearchController struct {
	BaseController
	searchService *services.SearchService
}

func (c *SearchController) Prepare() {
	c.searchService = services.GetSearchService()
}

// Post 按查询文本做语义检索，返回相似度降序的匹配列表
func (c *SearchController) Post() {
	var req searchRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if c.searchService == nil {
		c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to search"})
		return
	}

	matches, err := c.searchService.Search(c.Ctx.Request.Context(), req.Query)
	if err != nil {
		if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Code == apperrors.ErrCodeValidationFailed {
			c.JSON(http.StatusBadRequest, map[string]string{"error": appErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to search"})
		return
	}

	if matches == nil {
		matches = []knowledge.SearchMatch{}
	}
	c.JSON(http.StatusOK, matches)
}
