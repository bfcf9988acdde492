package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelog/internal/middleware"
	"github.com/user/cinelog/internal/repository"
	"github.com/user/cinelog/internal/service"
	"github.com/user/cinelog/internal/utils"
)

type createListRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	IsPublic    bool   `json:"is_public"`
}

// CreateList 创建片单：POST /api/lists
func (h *Handler) CreateList(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req createListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, bindingError(err))
		return
	}

	list, err := h.Repos.List.Create(userID, req.Name, req.Description, req.IsPublic)
	if errors.Is(err, repository.ErrDuplicateListName) {
		utils.BadRequest(c, "已有同名片单")
		return
	}
	if err != nil {
		log.Printf("[LIST] 创建片单失败 (user=%d): %v", userID, err)
		utils.BadRequest(c, err.Error())
		return
	}
	utils.Success(c, list)
}

// MyLists 我的片单：GET /api/lists
func (h *Handler) MyLists(c *gin.Context) {
	userID := middleware.GetUserID(c)

	lists, err := h.Repos.List.ListByUser(userID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"lists": lists})
}

// ListItems 片单条目：GET /api/lists/:listID/items
// 公开片单任何人可看，私有片单仅限所有者
func (h *Handler) ListItems(c *gin.Context) {
	listID, err := strconv.Atoi(c.Param("listID"))
	if err != nil || listID <= 0 {
		utils.BadRequest(c, "无效的片单 ID")
		return
	}

	list, err := h.Repos.List.FindByID(listID)
	if errors.Is(err, repository.ErrNotFound) {
		utils.NotFound(c, "片单不存在")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	if !list.IsPublic && list.UserID != middleware.GetUserID(c) {
		utils.Forbidden(c, "")
		return
	}

	items, err := h.Repos.List.Items(listID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	total, movies, shows, err := h.Repos.List.ItemCounts(listID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	utils.Success(c, gin.H{
		"list":  list,
		"items": items,
		"counts": gin.H{
			"total":  total,
			"movies": movies,
			"shows":  shows,
		},
	})
}

// AddListItem 向片单添加内容：POST /api/lists/:listID/items/:media/:id
func (h *Handler) AddListItem(c *gin.Context) {
	userID := middleware.GetUserID(c)
	listID, err := strconv.Atoi(c.Param("listID"))
	if err != nil || listID <= 0 {
		utils.BadRequest(c, "无效的片单 ID")
		return
	}
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	owned, err := h.Repos.List.OwnedBy(listID, userID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	if !owned {
		utils.Forbidden(c, "只能操作自己的片单")
		return
	}

	content, err := h.Content.EnsureContent(c.Request.Context(), mediaType, tmdbID, false)
	if errors.Is(err, service.ErrNotFound) {
		utils.NotFound(c, "")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	if _, err := h.Repos.List.AddItem(listID, content.ID); err != nil {
		log.Printf("[LIST] 添加条目失败 (list=%d content=%d): %v", listID, content.ID, err)
		utils.InternalServerError(c, "")
		return
	}

	stats, err := h.Repos.Content.GetStats(tmdbID, mediaType)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"list_count": stats.ListCount})
}

// RemoveListItem 从片单移除内容：DELETE /api/lists/:listID/items/:media/:id
func (h *Handler) RemoveListItem(c *gin.Context) {
	userID := middleware.GetUserID(c)
	listID, err := strconv.Atoi(c.Param("listID"))
	if err != nil || listID <= 0 {
		utils.BadRequest(c, "无效的片单 ID")
		return
	}
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	owned, err := h.Repos.List.OwnedBy(listID, userID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	if !owned {
		utils.Forbidden(c, "只能操作自己的片单")
		return
	}

	content, err := h.Repos.Content.FindByTMDB(tmdbID, mediaType)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Success(c, gin.H{"list_count": 0})
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	if err := h.Repos.List.RemoveItem(listID, content.ID); err != nil {
		if errors.Is(err, repository.ErrCounterConflict) {
			log.Printf("[LIST] 计数不变量被破坏: %v", err)
		}
		utils.InternalServerError(c, "")
		return
	}

	stats, err := h.Repos.Content.GetStats(tmdbID, mediaType)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"list_count": stats.ListCount})
}
