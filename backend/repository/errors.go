package repository

import "errors"

// 通用仓储错误
var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("setting not found")

	// ErrInvalidData 数据无效
	ErrInvalidData = errors.New("invalid setting value")
)

// 订阅相关错误
var (
	// ErrSubscriptionURLMissing 未配置订阅地址
	ErrSubscriptionURLMissing = errors.New("subscription url is not configured")
)
