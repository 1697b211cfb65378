package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录或 key 不存在
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// 特定资源的错误
var (
	ErrCodeNotFound   = ErrNotFound
	ErrReportNotFound = ErrNotFound
)
