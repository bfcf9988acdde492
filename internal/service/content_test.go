package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinelog/internal/config"
	"github.com/user/cinelog/internal/model"
	"github.com/user/cinelog/internal/repository"
	"github.com/user/cinelog/internal/utils"
	"gorm.io/gorm"
)

// fakeSource 可编排的远程元数据源替身，记录每类调用次数。
// recErrs/simErrs 是错误队列：每次调用弹出一个，队列空则成功。
type fakeSource struct {
	details       *ContentDetails
	detailsErr    error
	searchResults []SearchResult
	searchErr     error
	recs          []RelatedContent
	recErrs       []error
	sims          []RelatedContent
	simErrs       []error

	detailsCalls      int
	searchCalls       int
	recCalls          int
	simCalls          int
	lastSearchTitle   string
	lastSearchYear    string
	lastDetailsCtxErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{}
}

func (f *fakeSource) GetDetails(ctx context.Context, mediaType string, tmdbID int) (*ContentDetails, error) {
	f.detailsCalls++
	f.lastDetailsCtxErr = ctx.Err()
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details, nil
}

func (f *fakeSource) SearchByTitle(ctx context.Context, mediaType, title, year string) ([]SearchResult, error) {
	f.searchCalls++
	f.lastSearchTitle = title
	f.lastSearchYear = year
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeSource) GetRecommendations(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error) {
	f.recCalls++
	if len(f.recErrs) > 0 {
		err := f.recErrs[0]
		f.recErrs = f.recErrs[1:]
		return nil, err
	}
	return f.recs, nil
}

func (f *fakeSource) GetSimilar(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error) {
	f.simCalls++
	if len(f.simErrs) > 0 {
		err := f.simErrs[0]
		f.simErrs = f.simErrs[1:]
		return nil, err
	}
	return f.sims, nil
}

func (f *fakeSource) PosterURL(posterPath, size string) string {
	if posterPath == "" {
		return ""
	}
	return "https://img.test/w500" + posterPath
}

func newContentService(db *gorm.DB, source MetadataSource, similarLimit int) *ContentService {
	// 全局详情缓存按测试重置，避免跨用例串味
	utils.InitCache()
	cfg := &config.Config{
		SimilarLimit:    similarLimit,
		SimilarCacheTTL: time.Minute,
	}
	return NewContentService(repository.NewContentRepository(db), source, cfg)
}

func TestResolveRedirectFetchesAndPersists(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.details = &ContentDetails{
		TMDBID:      603,
		Title:       "The Matrix",
		ReleaseDate: "1999-03-31",
		PosterPath:  "/matrix.jpg",
	}
	svc := newContentService(db, source, 20)

	slug, err := svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 603, false)
	require.NoError(t, err)
	assert.Equal(t, "the-matrix-1999", slug)
	assert.Equal(t, 1, source.detailsCalls)

	// 详情已落库，后续跳转纯本地
	got, err := repository.NewContentRepository(db).FindByTMDB(603, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", got.Title)
	assert.Equal(t, "/matrix.jpg", got.PosterPath)

	slug, err = svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 603, false)
	require.NoError(t, err)
	assert.Equal(t, "the-matrix-1999", slug)
	assert.Equal(t, 1, source.detailsCalls)
}

func TestResolveRedirectFallsBackToCachedFields(t *testing.T) {
	db := newTestDB(t)
	contentRepo := repository.NewContentRepository(db)
	source := newFakeSource()
	source.detailsErr = ErrRemoteUnavailable
	svc := newContentService(db, source, 20)

	row, err := contentRepo.GetOrCreate(603, model.MediaTypeMovie)
	require.NoError(t, err)
	require.NoError(t, contentRepo.RefreshDescriptive(row.ID, "Example", "", "", "2020-01-01"))

	// 远程挂了但本地有缓存字段，跳转照常
	slug, err := svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 603, true)
	require.NoError(t, err)
	assert.Equal(t, "example-2020", slug)
}

func TestResolveRedirectNotFound(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.detailsErr = ErrNotFound
	svc := newContentService(db, source, 20)

	// 远程明确报告无此内容且本地没有任何身份，才是硬 404
	_, err := svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 42, false)
	assert.ErrorIs(t, err, ErrNotFound)

	// 聚合记录仍然懒创建了，计数能力不受影响
	got, err := repository.NewContentRepository(db).FindByTMDB(42, model.MediaTypeMovie)
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.Zero(t, got.WatchedCount)
}

func TestResolveRedirectNumericSlugFallback(t *testing.T) {
	db := newTestDB(t)
	contentRepo := repository.NewContentRepository(db)
	source := newFakeSource()
	source.detailsErr = ErrRemoteUnavailable
	svc := newContentService(db, source, 20)

	// 已有交互记录但描述缓存为空的聚合：远程抖动不许打断导航
	row, err := contentRepo.GetOrCreate(42, model.MediaTypeMovie)
	require.NoError(t, err)
	user, err := repository.NewUserRepository(db).Create("alice@example.com", "alice", "password-123")
	require.NoError(t, err)
	_, err = repository.NewInteractionRepository(db).MarkWatched(user.ID, row.ID)
	require.NoError(t, err)

	slug, err := svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 42, false)
	require.NoError(t, err)
	assert.Equal(t, "42", slug)

	// 首次引用 + 远程不可用同样退化为数字 slug，而不是 404
	slug, err = svc.ResolveRedirect(context.Background(), model.MediaTypeMovie, 7, false)
	require.NoError(t, err)
	assert.Equal(t, "7", slug)
}

func TestFetchDetailsDetachedFromCallerCancel(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.details = &ContentDetails{TMDBID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31"}
	svc := newContentService(db, source, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 首个调用者已离开

	// 飞行中的详情请求为并发同键调用共享，不继承单个调用者的取消
	content, err := svc.EnsureContent(ctx, model.MediaTypeMovie, 603, true)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", content.Title)
	assert.NoError(t, source.lastDetailsCtxErr)
}

func TestFetchDetailsMemoized(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.details = &ContentDetails{TMDBID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31"}
	svc := newContentService(db, source, 20)

	// 强制刷新两次，第二次命中短 TTL 详情缓存，远程仍只打一次
	_, err := svc.EnsureContent(context.Background(), model.MediaTypeMovie, 603, true)
	require.NoError(t, err)
	_, err = svc.EnsureContent(context.Background(), model.MediaTypeMovie, 603, true)
	require.NoError(t, err)
	assert.Equal(t, 1, source.detailsCalls)
}

func TestSimilarMergePrefersRecommendations(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.recs = []RelatedContent{
		{TMDBID: 1, Title: "A", PosterPath: "/a.jpg", Popularity: 9},
		{TMDBID: 2, Title: "B", Popularity: 8},
	}
	source.sims = []RelatedContent{
		{TMDBID: 2, Title: "B-similar"}, // 与推荐重复，推荐优先
		{TMDBID: 603, Title: "Self"},    // 自身被排除
		{TMDBID: 3, Title: "C"},
	}
	svc := newContentService(db, source, 20)

	items := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].TMDBID)
	assert.Equal(t, 2, items[1].TMDBID)
	assert.Equal(t, "B", items[1].Title)
	assert.Equal(t, 3, items[2].TMDBID)

	assert.Equal(t, "/go/movie/1", items[0].GoURL)
	assert.Equal(t, "https://img.test/w500/a.jpg", items[0].PosterURL)
	assert.Equal(t, model.MediaTypeMovie, items[0].MediaType)
}

func TestSimilarTruncates(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	for i := 1; i <= 5; i++ {
		source.recs = append(source.recs, RelatedContent{TMDBID: i, Title: "R"})
	}
	svc := newContentService(db, source, 3)

	items := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	assert.Len(t, items, 3)
}

func TestSimilarRetriesTransientFailure(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.recs = []RelatedContent{{TMDBID: 1, Title: "A"}}
	source.recErrs = []error{ErrRemoteUnavailable} // 第一次失败，重试成功
	svc := newContentService(db, source, 20)

	items := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].TMDBID)
	assert.Equal(t, 2, source.recCalls)
	assert.Equal(t, 1, source.simCalls)
}

func TestSimilarDoesNotRetryRateLimit(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.recErrs = []error{ErrRateLimited, ErrRateLimited}
	source.sims = []RelatedContent{{TMDBID: 7, Title: "S"}}
	svc := newContentService(db, source, 20)

	// 限流不重试，相似列表单边可用时照常出结果
	items := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].TMDBID)
	assert.Equal(t, 1, source.recCalls)
}

func TestSimilarBothFailReturnsEmpty(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.recErrs = []error{ErrRemoteUnavailable, ErrRemoteUnavailable}
	source.simErrs = []error{ErrRemoteUnavailable, ErrRemoteUnavailable}
	svc := newContentService(db, source, 20)

	items := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	// 每边各重试了一次
	assert.Equal(t, 2, source.recCalls)
	assert.Equal(t, 2, source.simCalls)
}

func TestSimilarMemoized(t *testing.T) {
	db := newTestDB(t)
	source := newFakeSource()
	source.recs = []RelatedContent{{TMDBID: 1, Title: "A"}}
	svc := newContentService(db, source, 20)

	first := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	second := svc.Similar(context.Background(), model.MediaTypeMovie, 603)
	assert.Equal(t, first, second)
	// 第二次命中内存缓存
	assert.Equal(t, 1, source.recCalls)
	assert.Equal(t, 1, source.simCalls)
}
