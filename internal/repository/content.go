package repository

import (
	"errors"
	"strings"

	"github.com/user/cinelog/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 本地无记录
var ErrNotFound = errors.New("记录不存在")

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// GetOrCreate 按 (tmdb_id, media_type) 幂等获取或懒创建聚合记录。
// 并发首次引用依赖唯一索引 + DO NOTHING 消解，绝不读后写。
func (r *ContentRepository) GetOrCreate(tmdbID int, mediaType string) (*model.Content, error) {
	content := &model.Content{
		TMDBID:    tmdbID,
		MediaType: mediaType,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tmdb_id"}, {Name: "media_type"}},
		DoNothing: true,
	}).Create(content).Error
	if err != nil {
		return nil, err
	}

	// 冲突时 Create 不回填主键，统一再查一次拿到权威行
	var row model.Content
	if err := r.db.Where("tmdb_id = ? AND media_type = ?", tmdbID, mediaType).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByTMDB 按外部 ID 查找，不存在返回 ErrNotFound
func (r *ContentRepository) FindByTMDB(tmdbID int, mediaType string) (*model.Content, error) {
	var row model.Content
	err := r.db.Where("tmdb_id = ? AND media_type = ?", tmdbID, mediaType).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByTitleYear 按标题（不区分大小写）加年份查找本地聚合记录，slug 反解析用。
// year 为空时只按标题匹配，取最新创建的一条。
func (r *ContentRepository) FindByTitleYear(mediaType, title, year string) (*model.Content, error) {
	q := r.db.Where("media_type = ? AND LOWER(title) = ?", mediaType, strings.ToLower(title))
	if year != "" {
		q = q.Where("release_date LIKE ?", year+"%")
	}
	var row model.Content
	err := q.Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RefreshDescriptive 覆写描述性缓存字段，只写非空值，不触碰计数列
func (r *ContentRepository) RefreshDescriptive(contentID int, title, posterPath, backdropPath, releaseDate string) error {
	updates := map[string]interface{}{}
	if title != "" {
		updates["title"] = title
	}
	if posterPath != "" {
		updates["poster_path"] = posterPath
	}
	if backdropPath != "" {
		updates["backdrop_path"] = backdropPath
	}
	if releaseDate != "" {
		updates["release_date"] = releaseDate
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&model.Content{}).Where("id = ?", contentID).Updates(updates).Error
}

// GetStats 读取内容统计，未见过的内容返回全零
func (r *ContentRepository) GetStats(tmdbID int, mediaType string) (*model.ContentStats, error) {
	row, err := r.FindByTMDB(tmdbID, mediaType)
	if errors.Is(err, ErrNotFound) {
		return &model.ContentStats{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ContentStats{
		WatchedCount: row.WatchedCount,
		ListCount:    row.ListCount,
		AvgScore:     row.AvgScore,
		TotalScores:  row.TotalScores,
	}, nil
}
