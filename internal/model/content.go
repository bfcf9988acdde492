package model

import (
	"time"
)

// 媒体类型标签，跟随 TMDB 的取值
const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// ValidMediaType 校验媒体类型参数
func ValidMediaType(mt string) bool {
	return mt == MediaTypeMovie || mt == MediaTypeTV
}

// Content 内容聚合记录：描述性字段是 TMDB 的软缓存，计数字段由本地交互记录驱动。
// (tmdb_id, media_type) 唯一，首次被引用时懒创建，正常流程永不删除。
type Content struct {
	ID        int    `json:"id" gorm:"primaryKey"`
	TMDBID    int    `json:"tmdb_id" gorm:"column:tmdb_id;uniqueIndex:idx_content_tmdb,priority:1;not null"`
	MediaType string `json:"media_type" gorm:"uniqueIndex:idx_content_tmdb,priority:2;size:10;not null"`

	// 描述性缓存（可随时刷新，允许过期）
	Title        string `json:"title" gorm:"size:500"`
	PosterPath   string `json:"poster_path" gorm:"size:255"`
	BackdropPath string `json:"backdrop_path" gorm:"size:255"`
	ReleaseDate  string `json:"release_date" gorm:"size:10"`

	// 冗余计数（只允许与从属记录同事务变更）
	WatchedCount int     `json:"watched_count" gorm:"not null;default:0"`
	ListCount    int     `json:"list_count" gorm:"not null;default:0"`
	AvgScore     float64 `json:"avg_score" gorm:"type:numeric(5,2);not null;default:0"`
	TotalScores  int     `json:"total_scores" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Content) TableName() string { return "content" }

// ReleaseYear 从 release_date 提取年份，缺失时返回空串
func (c *Content) ReleaseYear() string {
	if len(c.ReleaseDate) >= 4 {
		return c.ReleaseDate[:4]
	}
	return ""
}

// UserWatched 用户"已看过"标记，(user_id, content_id) 唯一
type UserWatched struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	UserID    int       `json:"user_id" gorm:"uniqueIndex:idx_watched_user_content,priority:1;not null"`
	ContentID int       `json:"content_id" gorm:"uniqueIndex:idx_watched_user_content,priority:2;not null"`
	WatchedAt time.Time `json:"watched_at" gorm:"autoCreateTime"`

	User    *User    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Content *Content `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (UserWatched) TableName() string { return "user_watched" }

// UserRating 用户评分（0-100）与可选短评，(user_id, content_id) 唯一，重复评分原地更新
type UserRating struct {
	ID         int       `json:"id" gorm:"primaryKey"`
	UserID     int       `json:"user_id" gorm:"uniqueIndex:idx_rating_user_content,priority:1;not null"`
	ContentID  int       `json:"content_id" gorm:"uniqueIndex:idx_rating_user_content,priority:2;not null"`
	Score      int       `json:"score" gorm:"not null"`
	ReviewText string    `json:"review_text"`
	RatedAt    time.Time `json:"rated_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at"`

	User    *User    `json:"user,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Content *Content `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (UserRating) TableName() string { return "user_ratings" }

// UserList 用户片单，名称按用户内不区分大小写唯一（应用层校验）
type UserList struct {
	ID          int       `json:"id" gorm:"primaryKey"`
	UserID      int       `json:"user_id" gorm:"index;not null"`
	Name        string    `json:"name" gorm:"size:200;not null"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"is_public" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	User *User `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (UserList) TableName() string { return "user_lists" }

// ListItem 片单条目，(list_id, content_id) 唯一，按加入时间排序
type ListItem struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	ListID    int       `json:"list_id" gorm:"uniqueIndex:idx_item_list_content,priority:1;not null"`
	ContentID int       `json:"content_id" gorm:"uniqueIndex:idx_item_list_content,priority:2;not null"`
	AddedAt   time.Time `json:"added_at" gorm:"autoCreateTime"`

	List    *UserList `json:"-" gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
	Content *Content  `json:"content,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (ListItem) TableName() string { return "list_items" }

// ContentStats 对外暴露的内容统计快照
type ContentStats struct {
	WatchedCount int     `json:"watched_count"`
	ListCount    int     `json:"list_count"`
	AvgScore     float64 `json:"avg_score"`
	TotalScores  int     `json:"total_scores"`
}

// ContentSummary 相似内容等列表场景下的内容摘要
type ContentSummary struct {
	TMDBID      int     `json:"tmdb_id"`
	MediaType   string  `json:"media_type"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	PosterURL   string  `json:"poster_url,omitempty"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	GoURL       string  `json:"go_url"`
}
