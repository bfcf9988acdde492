package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/user/cinelog/internal/config"
	"github.com/user/cinelog/internal/model"
)

// TMDBClient TMDB API 客户端。所有响应在解码处落到显式类型，
// 不允许裸 map 渗透到存储写路径。
type TMDBClient struct {
	token        string
	baseURL      string
	imageBaseURL string
	httpClient   *http.Client
}

func NewTMDBClient(cfg *config.Config) *TMDBClient {
	return &TMDBClient{
		token:        cfg.TMDBToken,
		baseURL:      cfg.TMDBBaseURL,
		imageBaseURL: cfg.TMDBImageBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.TMDBTimeout,
		},
	}
}

// ContentDetails 详情接口的归一化结果（电影/剧集字段差异在解码处抹平）
type ContentDetails struct {
	TMDBID       int
	Title        string
	ReleaseDate  string
	PosterPath   string
	BackdropPath string
}

// RelatedContent 推荐/相似接口的单条结果
type RelatedContent struct {
	TMDBID      int
	Title       string
	PosterPath  string
	ReleaseDate string
	Popularity  float64
}

// SearchResult 标题搜索的单条结果
type SearchResult struct {
	TMDBID      int
	Title       string
	ReleaseDate string
}

type tmdbDetailsResponse struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"` // 电视剧
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"` // 电视剧
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
}

type tmdbListResponse struct {
	Results []struct {
		ID           int     `json:"id"`
		Title        string  `json:"title"`
		Name         string  `json:"name"`
		ReleaseDate  string  `json:"release_date"`
		FirstAirDate string  `json:"first_air_date"`
		PosterPath   string  `json:"poster_path"`
		Popularity   float64 `json:"popularity"`
	} `json:"results"`
}

// GetDetails 获取内容详情
func (c *TMDBClient) GetDetails(ctx context.Context, mediaType string, tmdbID int) (*ContentDetails, error) {
	var result tmdbDetailsResponse
	endpoint := fmt.Sprintf("/%s/%d", mediaType, tmdbID)
	if err := c.getJSON(ctx, endpoint, nil, &result); err != nil {
		return nil, err
	}

	title := result.Title
	releaseDate := result.ReleaseDate
	if mediaType == model.MediaTypeTV {
		title = result.Name
		releaseDate = result.FirstAirDate
	}
	return &ContentDetails{
		TMDBID:       result.ID,
		Title:        title,
		ReleaseDate:  releaseDate,
		PosterPath:   result.PosterPath,
		BackdropPath: result.BackdropPath,
	}, nil
}

// SearchByTitle 按标题搜索，year 非空时作为年份过滤
func (c *TMDBClient) SearchByTitle(ctx context.Context, mediaType, title, year string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", title)
	if year != "" {
		if mediaType == model.MediaTypeTV {
			params.Set("first_air_date_year", year)
		} else {
			params.Set("primary_release_year", year)
		}
	}

	var result tmdbListResponse
	if err := c.getJSON(ctx, "/search/"+mediaType, params, &result); err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		title := r.Title
		date := r.ReleaseDate
		if mediaType == model.MediaTypeTV {
			title = r.Name
			date = r.FirstAirDate
		}
		out = append(out, SearchResult{TMDBID: r.ID, Title: title, ReleaseDate: date})
	}
	return out, nil
}

// GetRecommendations 获取推荐列表
func (c *TMDBClient) GetRecommendations(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error) {
	return c.getRelated(ctx, mediaType, tmdbID, "recommendations")
}

// GetSimilar 获取相似列表
func (c *TMDBClient) GetSimilar(ctx context.Context, mediaType string, tmdbID int) ([]RelatedContent, error) {
	return c.getRelated(ctx, mediaType, tmdbID, "similar")
}

func (c *TMDBClient) getRelated(ctx context.Context, mediaType string, tmdbID int, kind string) ([]RelatedContent, error) {
	var result tmdbListResponse
	endpoint := fmt.Sprintf("/%s/%d/%s", mediaType, tmdbID, kind)
	if err := c.getJSON(ctx, endpoint, nil, &result); err != nil {
		return nil, err
	}

	out := make([]RelatedContent, 0, len(result.Results))
	for _, r := range result.Results {
		title := r.Title
		date := r.ReleaseDate
		if mediaType == model.MediaTypeTV {
			title = r.Name
			date = r.FirstAirDate
		}
		out = append(out, RelatedContent{
			TMDBID:      r.ID,
			Title:       title,
			PosterPath:  r.PosterPath,
			ReleaseDate: date,
			Popularity:  r.Popularity,
		})
	}
	return out, nil
}

// getJSON 发起请求并解码。网络错误归为 ErrRemoteUnavailable，
// 429 归为 ErrRateLimited，由编排层决定兜底或重试。
func (c *TMDBClient) getJSON(ctx context.Context, endpoint string, params url.Values, target interface{}) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %v: %w", endpoint, err, ErrRemoteUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("远程无此内容 %s: %w", endpoint, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("请求 %s 被限流: %w", endpoint, ErrRateLimited)
	default:
		return fmt.Errorf("请求 %s 异常，状态码 %d: %w", endpoint, resp.StatusCode, ErrRemoteUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", endpoint, err)
	}
	return nil
}

// PosterURL 拼接海报图片地址
// 可选尺寸: w92, w154, w185, w342, w500, w780, original
func (c *TMDBClient) PosterURL(posterPath, size string) string {
	if posterPath == "" {
		return ""
	}
	if size == "" {
		size = "w500"
	}
	return c.imageBaseURL + "/" + size + posterPath
}

// BackdropURL 拼接背景图地址
// 可选尺寸: w300, w780, w1280, original
func (c *TMDBClient) BackdropURL(backdropPath, size string) string {
	if backdropPath == "" {
		return ""
	}
	if size == "" {
		size = "w1280"
	}
	return c.imageBaseURL + "/" + size + backdropPath
}
