package models

import (
	"strings"

	"github.com/spf13/cast"
)

// Track 曲目记录，字段由外部曲库决定，推荐引擎只读
type Track map[string]interface{}

// ID 曲目ID
func (t Track) ID() string {
	return t.String("id")
}

// Title 曲目标题
func (t Track) Title() string {
	return t.String("title")
}

// Artist 艺术家名
func (t Track) Artist() string {
	return t.String("artist")
}

// String 以字符串形式读取字段，非字符串返回空
func (t Track) String(key string) string {
	if t == nil {
		return ""
	}
	v, ok := t[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Float 以数字形式读取字段，支持数字字符串
func (t Track) Float(key string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t[key]
	if !ok || v == nil {
		return 0, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Strings 读取字符串列表字段，非字符串元素被丢弃
func (t Track) Strings(key string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	switch list := t[key].(type) {
	case []string:
		return append([]string(nil), list...), true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Key 标题+艺术家的大小写无关标识
func (t Track) Key() string {
	return strings.ToLower(t.Title()) + "-" + strings.ToLower(t.Artist())
}

// Clone 浅拷贝曲目字段
func (t Track) Clone() Track {
	out := make(Track, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
