package repository

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinelog/internal/model"
)

func TestMarkWatchedPairsCounter(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)
	user := newTestUser(t, db, "alice@example.com")

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	created, err := repo.MarkWatched(user.ID, content.ID)
	require.NoError(t, err)
	assert.True(t, created)

	stats, err := contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WatchedCount)

	// 重复标记幂等，不重复计数
	created, err = repo.MarkWatched(user.ID, content.ID)
	require.NoError(t, err)
	assert.False(t, created)

	stats, err = contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WatchedCount)

	watched, err := repo.HasWatched(user.ID, content.ID)
	require.NoError(t, err)
	assert.True(t, watched)
}

func TestUnwatchPairsCounter(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)
	user := newTestUser(t, db, "alice@example.com")

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	_, err = repo.MarkWatched(user.ID, content.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Unwatch(user.ID, content.ID))

	stats, err := contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Zero(t, stats.WatchedCount)

	// 再次取消是无操作，计数不会变负
	require.NoError(t, repo.Unwatch(user.ID, content.ID))
	stats, err = contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Zero(t, stats.WatchedCount)
}

func TestWatchedCountMatchesMarks(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	alice := newTestUser(t, db, "alice@example.com")
	bob := newTestUser(t, db, "bob@example.com")
	carol := newTestUser(t, db, "carol@example.com")

	for _, u := range []*model.User{alice, bob, carol} {
		_, err := repo.MarkWatched(u.ID, content.ID)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Unwatch(bob.ID, content.ID))

	var marks int64
	require.NoError(t, db.Model(&model.UserWatched{}).Where("content_id = ?", content.ID).Count(&marks).Error)

	stats, err := contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.EqualValues(t, marks, stats.WatchedCount)
	assert.Equal(t, 2, stats.WatchedCount)
}

func TestWatchedCountConcurrentMutations(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	const n = 6
	early := make([]*model.User, n)
	late := make([]*model.User, n)
	for i := 0; i < n; i++ {
		early[i] = newTestUser(t, db, fmt.Sprintf("early%d@example.com", i))
		late[i] = newTestUser(t, db, fmt.Sprintf("late%d@example.com", i))
	}
	for _, u := range early {
		_, err := repo.MarkWatched(u.ID, content.ID)
		require.NoError(t, err)
	}

	// 新标记与取消交错并发，计数事后仍须等于标记行数
	var wg sync.WaitGroup
	errs := make([]error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.MarkWatched(late[i].ID, content.ID)
		}(i)
		go func(i int) {
			defer wg.Done()
			errs[n+i] = repo.Unwatch(early[i].ID, content.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var marks int64
	require.NoError(t, db.Model(&model.UserWatched{}).Where("content_id = ?", content.ID).Count(&marks).Error)
	assert.EqualValues(t, n, marks)

	stats, err := contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.EqualValues(t, marks, stats.WatchedCount)
}

func TestUpsertRatingRecomputesAverage(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	alice := newTestUser(t, db, "alice@example.com")
	bob := newTestUser(t, db, "bob@example.com")

	stats, err := repo.UpsertRating(alice.ID, content.ID, 60, "不错")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalScores)
	assert.InDelta(t, 60, stats.AvgScore, 0.001)

	stats, err = repo.UpsertRating(bob.ID, content.ID, 90, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalScores)
	assert.InDelta(t, 75, stats.AvgScore, 0.001)
}

func TestReRatingUpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)
	user := newTestUser(t, db, "alice@example.com")

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	_, err = repo.UpsertRating(user.ID, content.ID, 40, "")
	require.NoError(t, err)

	// 重复评分是原地更新：旧分被替换而不是追加第二条样本
	stats, err := repo.UpsertRating(user.ID, content.ID, 80, "改观了")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalScores)
	assert.InDelta(t, 80, stats.AvgScore, 0.001)

	rating, err := repo.GetRating(user.ID, content.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, rating.Score)
	assert.Equal(t, "改观了", rating.ReviewText)
}

func TestRemoveRatingRecomputes(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	alice := newTestUser(t, db, "alice@example.com")
	bob := newTestUser(t, db, "bob@example.com")

	_, err = repo.UpsertRating(alice.ID, content.ID, 40, "")
	require.NoError(t, err)
	_, err = repo.UpsertRating(bob.ID, content.ID, 80, "")
	require.NoError(t, err)

	stats, err := repo.RemoveRating(alice.ID, content.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalScores)
	assert.InDelta(t, 80, stats.AvgScore, 0.001)

	stats, err = repo.RemoveRating(bob.ID, content.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScores)
	assert.Zero(t, stats.AvgScore)
}

func TestRemoveAbsentRatingIsNoop(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)
	user := newTestUser(t, db, "alice@example.com")

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	stats, err := repo.RemoveRating(user.ID, content.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScores)
	assert.Zero(t, stats.AvgScore)
}

func TestUpsertRatingRejectsOutOfRange(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)
	user := newTestUser(t, db, "alice@example.com")

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	_, err = repo.UpsertRating(user.ID, content.ID, 101, "")
	assert.Error(t, err)
	_, err = repo.UpsertRating(user.ID, content.ID, -1, "")
	assert.Error(t, err)

	stats, err := contentRepo.GetStats(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScores)
}

func TestListReviews(t *testing.T) {
	db := newTestDB(t)
	contentRepo := NewContentRepository(db)
	repo := NewInteractionRepository(db)

	content, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)

	alice := newTestUser(t, db, "alice@example.com")
	bob := newTestUser(t, db, "bob@example.com")

	_, err = repo.UpsertRating(alice.ID, content.ID, 95, "年度最佳")
	require.NoError(t, err)
	// 没有短评的评分不出现在短评列表里
	_, err = repo.UpsertRating(bob.ID, content.ID, 50, "")
	require.NoError(t, err)

	reviews, err := repo.ListReviews(content.ID, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "年度最佳", reviews[0].ReviewText)
	require.NotNil(t, reviews[0].User)
	assert.Equal(t, alice.Username, reviews[0].User.Username)
}
