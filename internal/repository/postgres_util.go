package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// rowScanner *sql.Row 和 *sql.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// whereBuilder 拼接 $n 占位符的 WHERE 条件
type whereBuilder struct {
	where []string
	args  []interface{}
}

func (b *whereBuilder) add(expr string, arg interface{}) {
	b.args = append(b.args, arg)
	b.where = append(b.where, fmt.Sprintf(expr, len(b.args)))
}

func (b *whereBuilder) clause() string {
	if len(b.where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.where, " AND ")
}

// isUUID id 列为 UUID 类型；非法 id 直接按不存在处理，不下发到数据库（否则 22P02）
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// stringArg 可空字符串参数（nil 写入 NULL）
func stringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func floatArg(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
