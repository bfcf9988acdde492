package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/cinelog/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateListName 同一用户下片单名重复（不区分大小写）
var ErrDuplicateListName = errors.New("片单名称已存在")

type ListRepository struct {
	db *gorm.DB
}

func NewListRepository(db *gorm.DB) *ListRepository {
	return &ListRepository{db: db}
}

// Create 创建片单，名称按用户内不区分大小写唯一
func (r *ListRepository) Create(userID int, name, description string, isPublic bool) (*model.UserList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("片单名称不能为空")
	}
	if len(name) > 200 {
		return nil, errors.New("片单名称不能超过 200 字符")
	}

	var count int64
	if err := r.db.Model(&model.UserList{}).
		Where("user_id = ? AND LOWER(name) = ?", userID, strings.ToLower(name)).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateListName
	}

	list := &model.UserList{
		UserID:      userID,
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
	}
	if err := r.db.Create(list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListByUser 返回用户的全部片单，按更新时间倒序
func (r *ListRepository) ListByUser(userID int) ([]*model.UserList, error) {
	var lists []*model.UserList
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC, created_at DESC").
		Find(&lists).Error
	return lists, err
}

// FindByID 按 ID 查找片单
func (r *ListRepository) FindByID(listID int) (*model.UserList, error) {
	var list model.UserList
	err := r.db.First(&list, listID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// OwnedBy 校验片单归属
func (r *ListRepository) OwnedBy(listID, userID int) (bool, error) {
	var count int64
	err := r.db.Model(&model.UserList{}).
		Where("id = ? AND user_id = ?", listID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddItem 向片单添加内容，重复添加是幂等成功。
// 新增条目与所属内容 list_count +1 在同一事务完成。
func (r *ListRepository) AddItem(listID, contentID int) (bool, error) {
	added := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "list_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).Create(&model.ListItem{ListID: listID, ContentID: contentID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		if err := tx.Model(&model.Content{}).Where("id = ?", contentID).
			UpdateColumn("list_count", gorm.Expr("list_count + 1")).Error; err != nil {
			return err
		}
		return touchList(tx, listID)
	})
	return added, err
}

// RemoveItem 从片单移除内容，条目不存在时为无操作
func (r *ListRepository) RemoveItem(listID, contentID int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("list_id = ? AND content_id = ?", listID, contentID).
			Delete(&model.ListItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		dec := tx.Model(&model.Content{}).
			Where("id = ? AND list_count > 0", contentID).
			UpdateColumn("list_count", gorm.Expr("list_count - 1"))
		if dec.Error != nil {
			return dec.Error
		}
		if dec.RowsAffected == 0 {
			return fmt.Errorf("list_count 递减失败 (content_id=%d): %w", contentID, ErrCounterConflict)
		}
		return touchList(tx, listID)
	})
}

// touchList 条目变化时推进片单的 updated_at
func touchList(tx *gorm.DB, listID int) error {
	return tx.Model(&model.UserList{}).Where("id = ?", listID).
		UpdateColumn("updated_at", time.Now()).Error
}

// Items 返回片单条目（带内容），按加入时间倒序
func (r *ListRepository) Items(listID int) ([]*model.ListItem, error) {
	var items []*model.ListItem
	err := r.db.Preload("Content").
		Where("list_id = ?", listID).
		Order("added_at DESC, id DESC").
		Find(&items).Error
	return items, err
}

// ItemCounts 片单条目总数及按媒体类型拆分
func (r *ListRepository) ItemCounts(listID int) (total, movies, shows int, err error) {
	type row struct {
		MediaType string
		N         int
	}
	var rows []row
	err = r.db.Model(&model.ListItem{}).
		Select("content.media_type AS media_type, COUNT(*) AS n").
		Joins("JOIN content ON content.id = list_items.content_id").
		Where("list_items.list_id = ?", listID).
		Group("content.media_type").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, 0, err
	}
	for _, r := range rows {
		total += r.N
		switch r.MediaType {
		case model.MediaTypeMovie:
			movies += r.N
		case model.MediaTypeTV:
			shows += r.N
		}
	}
	return total, movies, shows, nil
}
