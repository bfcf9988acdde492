package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelog/internal/config"
	"github.com/user/cinelog/internal/model"
	"github.com/user/cinelog/internal/repository"
	"github.com/user/cinelog/internal/service"
	"github.com/user/cinelog/internal/utils"
)

// Handler HTTP 处理器
type Handler struct {
	Repos    *repository.Repositories
	Config   *config.Config
	Content  *service.ContentService
	Resolver *service.SlugResolver
}

// NewHandler 创建处理器
func NewHandler(repos *repository.Repositories, cfg *config.Config) *Handler {
	// 远程元数据源客户端
	tmdb := service.NewTMDBClient(cfg)

	// 内容补数编排服务
	contentSvc := service.NewContentService(repos.Content, tmdb, cfg)

	// slug 反查
	resolver := service.NewSlugResolver(repos.Content, tmdb)

	return &Handler{
		Repos:    repos,
		Config:   cfg,
		Content:  contentSvc,
		Resolver: resolver,
	}
}

// parseContentRef 解析路径里的媒体类型与外部 ID，非法时直接回 400
func parseContentRef(c *gin.Context) (mediaType string, tmdbID int, ok bool) {
	mediaType = c.Param("media")
	if !model.ValidMediaType(mediaType) {
		utils.BadRequest(c, "媒体类型必须是 movie 或 tv")
		return "", 0, false
	}
	tmdbID, err := strconv.Atoi(c.Param("id"))
	if err != nil || tmdbID <= 0 {
		utils.BadRequest(c, "无效的内容 ID")
		return "", 0, false
	}
	return mediaType, tmdbID, true
}
