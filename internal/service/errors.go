package service

import "errors"

// 错误分类：
// ErrNotFound 本地与远程都无法解析出内容身份，向调用方透传为 404。
// ErrRemoteUnavailable 远程元数据源网络错误/超时，只允许在编排层内部消化，
// 以本地缓存兜底，绝不冒泡到用户导航路径。
// ErrRateLimited 是 ErrRemoteUnavailable 的可重试变体（HTTP 429）。
var (
	ErrNotFound          = errors.New("内容不存在")
	ErrRemoteUnavailable = errors.New("远程元数据源不可用")
	ErrRateLimited       = errors.New("远程元数据源限流")
)
