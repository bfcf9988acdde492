package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/user/cinelog/internal/config"
	"github.com/user/cinelog/internal/model"
	"github.com/user/cinelog/internal/repository"
	"github.com/user/cinelog/internal/utils"
	"golang.org/x/sync/singleflight"
)

// MetadataSource 远程元数据源的消费侧接口，TMDBClient 是生产实现
type MetadataSource interface {
	GetDetails(ctx context.Context, mediaType string, tmdbID int) (*ContentDetails, error)
	SearchByTitle(ctx context.Context, mediaType, title, year string) ([]SearchResult, error)
	GetRecommendations(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error)
	GetSimilar(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error)
	PosterURL(posterPath, size string) string
}

// ContentService 点击时按需编排：决定哪些请求本地即可服务、哪些需要远程补数，
// 并把远程结果合并回聚合存储。远程调用永远发生在存储事务之外。
type ContentService struct {
	contentRepo  *repository.ContentRepository
	source       MetadataSource
	cfg          *config.Config
	group        singleflight.Group
	similarCache *utils.TTLCache[[]model.ContentSummary]
}

func NewContentService(repo *repository.ContentRepository, source MetadataSource, cfg *config.Config) *ContentService {
	return &ContentService{
		contentRepo:  repo,
		source:       source,
		cfg:          cfg,
		similarCache: utils.NewTTLCache[[]model.ContentSummary](512, cfg.SimilarCacheTTL),
	}
}

// ResolveRedirect 点击路径：确保聚合记录存在，必要时补一次远程详情，
// 返回规范 slug。远程抖动或限流时用已有缓存字段兜底，
// 实在没有标题就退化为外部 ID 的数字 slug，导航永远有落点；
// 只有远程明确报告内容不存在且本地没有任何身份才是硬 NotFound。
func (s *ContentService) ResolveRedirect(ctx context.Context, mediaType string, tmdbID int, force bool) (string, error) {
	content, err := s.EnsureContent(ctx, mediaType, tmdbID, force)
	if err != nil {
		return "", err
	}
	return SlugForContent(content), nil
}

// EnsureContent 懒创建聚合记录，描述性缓存为空或强制刷新时尽力补一次远程详情。
// 远程明确报 404 且本地没有任何身份时返回 ErrNotFound；
// 瞬时失败（网络/限流）绝不让主操作失败，只记日志。
func (s *ContentService) EnsureContent(ctx context.Context, mediaType string, tmdbID int, force bool) (*model.Content, error) {
	content, err := s.contentRepo.GetOrCreate(tmdbID, mediaType)
	if err != nil {
		return nil, err
	}

	if content.Title != "" && !force {
		return content, nil
	}

	details, err := s.fetchDetails(ctx, mediaType, tmdbID)
	if errors.Is(err, ErrNotFound) && content.Title == "" {
		// 远程明确表示无此内容，本地又没有可用的身份
		return nil, ErrNotFound
	}
	if err != nil {
		// 兜底：继续用存量缓存字段（可能为空），导航路径不因远程抖动中断
		log.Printf("[CONTENT] 获取详情失败，使用本地缓存兜底 (%s/%d): %v", mediaType, tmdbID, err)
		return content, nil
	}

	if err := s.contentRepo.RefreshDescriptive(content.ID,
		details.Title, details.PosterPath, details.BackdropPath, details.ReleaseDate); err != nil {
		log.Printf("[CONTENT] 刷新描述缓存失败 (%s/%d): %v", mediaType, tmdbID, err)
	}

	// 内存中的记录同步补上，调用方不需要重读
	content.Title = details.Title
	content.PosterPath = details.PosterPath
	content.BackdropPath = details.BackdropPath
	content.ReleaseDate = details.ReleaseDate
	return content, nil
}

// fetchDetails 短 TTL 缓存 + singleflight，点击路径上对同一内容最多一次远程请求
func (s *ContentService) fetchDetails(ctx context.Context, mediaType string, tmdbID int) (*ContentDetails, error) {
	key := fmt.Sprintf("tmdb:details:%s:%d", mediaType, tmdbID)
	if cached, ok := utils.CacheGet(key); ok {
		return cached.(*ContentDetails), nil
	}

	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		// 飞行中的请求为并发同键调用共享，脱离首个调用者的取消信号；
		// 时长仍由 HTTP 客户端自身的超时约束
		details, err := s.source.GetDetails(context.WithoutCancel(ctx), mediaType, tmdbID)
		if err != nil {
			return nil, err
		}
		utils.CacheSet(key, details, 5*time.Minute)
		return details, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*ContentDetails), nil
}

// Similar 合并远程的推荐与相似两个列表：按外部 ID 去重、推荐优先、排除自身、
// 截断到配置上限。结果只做内存级短 TTL 记忆，不落库。
// 远程全挂时返回空列表而不是错误，这个接口背后是非关键 UI。
func (s *ContentService) Similar(ctx context.Context, mediaType string, tmdbID int) []model.ContentSummary {
	key := fmt.Sprintf("similar:%s:%d", mediaType, tmdbID)
	if cached, ok := s.similarCache.Get(key); ok {
		return cached
	}

	recs, errRec := s.relatedWithRetry(ctx, mediaType, tmdbID, s.source.GetRecommendations)
	sims, errSim := s.relatedWithRetry(ctx, mediaType, tmdbID, s.source.GetSimilar)
	if errRec != nil {
		log.Printf("[CONTENT] 获取推荐列表失败 (%s/%d): %v", mediaType, tmdbID, errRec)
	}
	if errSim != nil {
		log.Printf("[CONTENT] 获取相似列表失败 (%s/%d): %v", mediaType, tmdbID, errSim)
	}
	if errRec != nil && errSim != nil {
		return []model.ContentSummary{}
	}

	seen := map[int]bool{tmdbID: true} // 排除自身
	out := make([]model.ContentSummary, 0, s.cfg.SimilarLimit)
	for _, batch := range [][]RelatedContent{recs, sims} {
		for _, r := range batch {
			if r.TMDBID == 0 || seen[r.TMDBID] {
				continue
			}
			seen[r.TMDBID] = true
			out = append(out, model.ContentSummary{
				TMDBID:      r.TMDBID,
				MediaType:   mediaType,
				Title:       r.Title,
				PosterPath:  r.PosterPath,
				PosterURL:   s.source.PosterURL(r.PosterPath, ""),
				ReleaseDate: r.ReleaseDate,
				Popularity:  r.Popularity,
				GoURL:       fmt.Sprintf("/go/%s/%d", mediaType, r.TMDBID),
			})
		}
	}
	if len(out) > s.cfg.SimilarLimit {
		out = out[:s.cfg.SimilarLimit]
	}

	s.similarCache.Set(key, out)
	return out
}

type relatedFetch func(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error)

// relatedWithRetry 瞬时网络失败重试一次；限流不重试，避免火上浇油
func (s *ContentService) relatedWithRetry(ctx context.Context, mediaType string, tmdbID int, fetch relatedFetch) ([]RelatedContent, error) {
	result, err := fetch(ctx, mediaType, tmdbID)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, ErrRateLimited) || !errors.Is(err, ErrRemoteUnavailable) {
		return nil, err
	}
	return fetch(ctx, mediaType, tmdbID)
}
