package repository

import (
	"fmt"

	"github.com/user/cinelog/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
func InitDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 同步表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Content{},
		&model.UserWatched{},
		&model.UserRating{},
		&model.UserList{},
		&model.ListItem{},
	)
}

// Repositories 仓库集合
type Repositories struct {
	DB          *gorm.DB
	User        *UserRepository
	Content     *ContentRepository
	Interaction *InteractionRepository
	List        *ListRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:          db,
		User:        NewUserRepository(db),
		Content:     NewContentRepository(db),
		Interaction: NewInteractionRepository(db),
		List:        NewListRepository(db),
	}
}
