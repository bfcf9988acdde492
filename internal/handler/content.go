package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelog/internal/middleware"
	"github.com/user/cinelog/internal/model"
	"github.com/user/cinelog/internal/repository"
	"github.com/user/cinelog/internal/service"
	"github.com/user/cinelog/internal/utils"
)

// GoToContent 点击跳转：/go/:media/:id → 302 到规范详情地址。
// 远程抖动时由编排层用本地缓存兜底，这里只区分 404 与正常跳转。
func (h *Handler) GoToContent(c *gin.Context) {
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}
	force := c.Query("refresh") == "1"

	slug, err := h.Content.ResolveRedirect(c.Request.Context(), mediaType, tmdbID, force)
	if errors.Is(err, service.ErrNotFound) {
		utils.NotFound(c, "")
		return
	}
	if err != nil {
		log.Printf("[CONTENT] 重定向解析失败 (%s/%d): %v", mediaType, tmdbID, err)
		utils.InternalServerError(c, "")
		return
	}

	c.Redirect(http.StatusFound, "/"+mediaType+"/"+slug)
}

// ContentBySlug 按 slug 解析内容详情：/api/resolve/:media/:slug
func (h *Handler) ContentBySlug(c *gin.Context) {
	mediaType := c.Param("media")
	slug := c.Param("slug")
	if slug == "" {
		utils.BadRequest(c, "缺少 slug")
		return
	}
	if !model.ValidMediaType(mediaType) {
		utils.BadRequest(c, "媒体类型必须是 movie 或 tv")
		return
	}

	tmdbID, err := h.Resolver.Resolve(c.Request.Context(), mediaType, slug)
	if errors.Is(err, service.ErrNotFound) {
		utils.NotFound(c, "")
		return
	}
	if err != nil {
		log.Printf("[CONTENT] slug 解析失败 (%s/%s): %v", mediaType, slug, err)
		utils.InternalServerError(c, "")
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

	utils.Success(c, gin.H{
		"content": content,
		"slug":    service.SlugForContent(content),
	})
}

// ContentStats 内容统计：/api/content/:media/:id/stats，未见过的内容返回全零
func (h *Handler) ContentStats(c *gin.Context) {
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	stats, err := h.Repos.Content.GetStats(tmdbID, mediaType)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, stats)
}

// Similar 相似内容条带：/api/content/:media/:id/similar，失败时返回空列表
func (h *Handler) Similar(c *gin.Context) {
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	items := h.Content.Similar(c.Request.Context(), mediaType, tmdbID)
	utils.Success(c, gin.H{"items": items})
}

// Reviews 内容短评列表：/api/content/:media/:id/reviews
func (h *Handler) Reviews(c *gin.Context) {
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	content, err := h.Repos.Content.FindByTMDB(tmdbID, mediaType)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Success(c, gin.H{"reviews": []gin.H{}})
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	reviews, err := h.Repos.Interaction.ListReviews(content.ID, 50)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	out := make([]gin.H, 0, len(reviews))
	for _, r := range reviews {
		item := gin.H{
			"rating_id":   r.ID,
			"score":       r.Score,
			"review_text": r.ReviewText,
			"updated_at":  r.UpdatedAt,
		}
		if r.User != nil {
			item["user_id"] = r.User.ID
			item["username"] = r.User.Username
		}
		out = append(out, item)
	}
	utils.Success(c, gin.H{"reviews": out})
}

// MarkWatched 标记已看过：POST /api/watched/:media/:id，重复标记幂等成功
func (h *Handler) MarkWatched(c *gin.Context) {
	userID := middleware.GetUserID(c)
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
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

	if _, err := h.Repos.Interaction.MarkWatched(userID, content.ID); err != nil {
		log.Printf("[CONTENT] 标记已看过失败 (user=%d content=%d): %v", userID, content.ID, err)
		utils.InternalServerError(c, "")
		return
	}

	stats, err := h.Repos.Content.GetStats(tmdbID, mediaType)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"watched": true, "watched_count": stats.WatchedCount})
}

// Unwatch 取消已看过：DELETE /api/watched/:media/:id，未标记过为无操作
func (h *Handler) Unwatch(c *gin.Context) {
	userID := middleware.GetUserID(c)
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	content, err := h.Repos.Content.FindByTMDB(tmdbID, mediaType)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Success(c, gin.H{"watched": false, "watched_count": 0})
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	if err := h.Repos.Interaction.Unwatch(userID, content.ID); err != nil {
		if errors.Is(err, repository.ErrCounterConflict) {
			log.Printf("[CONTENT] 计数不变量被破坏: %v", err)
		}
		utils.InternalServerError(c, "")
		return
	}

	stats, err := h.Repos.Content.GetStats(tmdbID, mediaType)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"watched": false, "watched_count": stats.WatchedCount})
}

type ratingRequest struct {
	Score      int    `json:"score" binding:"gte=0,lte=100"`
	ReviewText string `json:"review_text" binding:"max=10000"`
}

// UpsertRating 新增/更新评分：POST /api/ratings/:media/:id
func (h *Handler) UpsertRating(c *gin.Context) {
	userID := middleware.GetUserID(c)
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, bindingError(err))
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

	stats, err := h.Repos.Interaction.UpsertRating(userID, content.ID, req.Score, req.ReviewText)
	if err != nil {
		log.Printf("[CONTENT] 评分失败 (user=%d content=%d): %v", userID, content.ID, err)
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, stats)
}

// RemoveRating 删除评分：DELETE /api/ratings/:media/:id，从未评分过为无操作
func (h *Handler) RemoveRating(c *gin.Context) {
	userID := middleware.GetUserID(c)
	mediaType, tmdbID, ok := parseContentRef(c)
	if !ok {
		return
	}

	content, err := h.Repos.Content.FindByTMDB(tmdbID, mediaType)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Success(c, &model.ContentStats{})
		return
	}
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}

	stats, err := h.Repos.Interaction.RemoveRating(userID, content.ID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, stats)
}
