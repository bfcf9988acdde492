package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/cinelog/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCounterConflict 计数不变量被破坏（例如递减出现负数）。
// 这类错误说明配对写入有 bug，不允许就地钳位掩盖。
var ErrCounterConflict = errors.New("内容计数状态冲突")

// InteractionRepository 用户与内容的交互记录（已看过 / 评分短评）。
// 每次从属记录变更都和所属 content 行的计数调整放在同一个事务里。
type InteractionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// MarkWatched 标记已看过。重复标记是幂等成功，不调整计数。
// 返回是否真正新增了标记。
func (r *InteractionRepository) MarkWatched(userID, contentID int) (bool, error) {
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).Create(&model.UserWatched{UserID: userID, ContentID: contentID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // 已存在，无事可做
		}
		created = true
		return tx.Model(&model.Content{}).Where("id = ?", contentID).
			UpdateColumn("watched_count", gorm.Expr("watched_count + 1")).Error
	})
	return created, err
}

// Unwatch 取消已看过标记。标记不存在时为无操作。
func (r *InteractionRepository) Unwatch(userID, contentID int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND content_id = ?", userID, contentID).
			Delete(&model.UserWatched{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		dec := tx.Model(&model.Content{}).
			Where("id = ? AND watched_count > 0", contentID).
			UpdateColumn("watched_count", gorm.Expr("watched_count - 1"))
		if dec.Error != nil {
			return dec.Error
		}
		if dec.RowsAffected == 0 {
			return fmt.Errorf("watched_count 递减失败 (content_id=%d): %w", contentID, ErrCounterConflict)
		}
		return nil
	})
}

// UpsertRating 新增或原地更新评分（0-100）与可选短评，
// 并在同一事务内按评分表重算 avg_score / total_scores。
func (r *InteractionRepository) UpsertRating(userID, contentID, score int, reviewText string) (*model.ContentStats, error) {
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("评分超出范围: %d", score)
	}
	var stats model.ContentStats
	err := r.db.Transaction(func(tx *gorm.DB) error {
		rating := &model.UserRating{
			UserID:     userID,
			ContentID:  contentID,
			Score:      score,
			ReviewText: reviewText,
			UpdatedAt:  time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "review_text", "updated_at"}),
		}).Create(rating).Error; err != nil {
			return err
		}
		if err := recomputeScore(tx, contentID); err != nil {
			return err
		}
		return loadStats(tx, contentID, &stats)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// RemoveRating 删除评分。从未评分过时为无操作。
func (r *InteractionRepository) RemoveRating(userID, contentID int) (*model.ContentStats, error) {
	var stats model.ContentStats
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND content_id = ?", userID, contentID).
			Delete(&model.UserRating{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if err := recomputeScore(tx, contentID); err != nil {
				return err
			}
		}
		return loadStats(tx, contentID, &stats)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// recomputeScore 以评分表为准重算均分与计数，天然不会漂移。
// 重复评分（原地更新）因此自动算对，不会被当成第二条样本。
func recomputeScore(tx *gorm.DB, contentID int) error {
	return tx.Model(&model.Content{}).Where("id = ?", contentID).Updates(map[string]interface{}{
		"avg_score":    gorm.Expr("COALESCE((SELECT AVG(score) FROM user_ratings WHERE content_id = ?), 0)", contentID),
		"total_scores": gorm.Expr("(SELECT COUNT(*) FROM user_ratings WHERE content_id = ?)", contentID),
	}).Error
}

func loadStats(tx *gorm.DB, contentID int, out *model.ContentStats) error {
	var row model.Content
	if err := tx.First(&row, contentID).Error; err != nil {
		return err
	}
	if row.TotalScores < 0 || row.WatchedCount < 0 || row.ListCount < 0 {
		return fmt.Errorf("计数出现负值 (content_id=%d): %w", contentID, ErrCounterConflict)
	}
	*out = model.ContentStats{
		WatchedCount: row.WatchedCount,
		ListCount:    row.ListCount,
		AvgScore:     row.AvgScore,
		TotalScores:  row.TotalScores,
	}
	return nil
}

// HasWatched 查询用户是否标记过已看过
func (r *InteractionRepository) HasWatched(userID, contentID int) (bool, error) {
	var count int64
	err := r.db.Model(&model.UserWatched{}).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Count(&count).Error
	return count > 0, err
}

// GetRating 查询用户对内容的评分，未评过返回 ErrNotFound
func (r *InteractionRepository) GetRating(userID, contentID int) (*model.UserRating, error) {
	var rec model.UserRating
	err := r.db.Where("user_id = ? AND content_id = ?", userID, contentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReviews 列出内容下带短评的评分，按更新时间倒序
func (r *InteractionRepository) ListReviews(contentID int, limit int) ([]*model.UserRating, error) {
	var records []*model.UserRating
	err := r.db.Preload("User").
		Where("content_id = ? AND review_text <> ''", contentID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
