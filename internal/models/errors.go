package models

import "errors"

var (
	// ErrValidation 输入数据不合法，未写入任何数据
	ErrValidation = errors.New("validation failed")

	ErrAlertNotFound   = errors.New("alert not found")
	ErrTargetNotFound  = errors.New("production target not found")
	ErrSettingNotFound = errors.New("notification setting not found")

	// ErrAlertStateConflict 报警当前状态不允许该操作（例如重复确认、已解决）
	ErrAlertStateConflict = errors.New("alert state conflict")

	// ErrAmbiguousTarget 同一测量匹配到多个同等优先级的生产目标（配置错误）
	ErrAmbiguousTarget = errors.New("ambiguous production target")
)
