package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/user/cinelog/internal/model"
	"github.com/user/cinelog/internal/repository"
)

// slug 是纯派生值：由标题+年份确定性计算，不单独落库。
// 同名不同年的内容靠年份后缀区分；真正的主键永远是 (tmdb_id, media_type)。
var (
	slugStripRe    = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	slugCollapseRe = regexp.MustCompile(`[-\s]+`)
	slugYearRe     = regexp.MustCompile(`^\d{4}$`)
)

// Slugify 由标题和年份生成规范 slug，year 为空时省略年份段
func Slugify(title, year string) string {
	slug := slugStripRe.ReplaceAllString(strings.ToLower(title), "")
	slug = slugCollapseRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if year == "" {
		return slug
	}
	if slug == "" {
		return year
	}
	return slug + "-" + year
}

// SlugForContent 从聚合记录计算规范 slug。
// 描述性缓存完全缺失时退化为外部 ID 的数字串，保证重定向永远有落点。
func SlugForContent(c *model.Content) string {
	if c.Title == "" {
		return strconv.Itoa(c.TMDBID)
	}
	return Slugify(c.Title, c.ReleaseYear())
}

// ParseSlug 反向拆出标题猜测与年份。
// 末段是四位数字时视为年份；标题段把连字符还原为空格。
func ParseSlug(slug string) (titleGuess, year string) {
	titleGuess = slug
	if idx := strings.LastIndex(slug, "-"); idx > 0 {
		if tail := slug[idx+1:]; slugYearRe.MatchString(tail) {
			titleGuess = slug[:idx]
			year = tail
		}
	}
	titleGuess = strings.ReplaceAll(titleGuess, "-", " ")
	return titleGuess, year
}

// SlugResolver slug → 外部 ID 的反查。
// 优先命中本地聚合记录；本地没有时对远程做一次尽力而为的标题搜索，
// 取首条结果，不做模糊打分。
type SlugResolver struct {
	contentRepo *repository.ContentRepository
	source      MetadataSource
}

func NewSlugResolver(repo *repository.ContentRepository, source MetadataSource) *SlugResolver {
	return &SlugResolver{contentRepo: repo, source: source}
}

// Resolve 由 slug 解析外部 ID。本地与远程都未命中时返回 ErrNotFound。
func (s *SlugResolver) Resolve(ctx context.Context, mediaType, slug string) (int, error) {
	titleGuess, year := ParseSlug(slug)

	local, err := s.contentRepo.FindByTitleYear(mediaType, titleGuess, year)
	if err == nil {
		return local.TMDBID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}

	// 本地没有，单次远程搜索兜底
	results, err := s.source.SearchByTitle(ctx, mediaType, titleGuess, year)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if len(results) == 0 {
		return 0, ErrNotFound
	}
	return results[0].TMDBID, nil
}
