package features

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nexttrack/internal/models"
)

// 伪标签前缀
const (
	PrefixArtist = "artist:"
	PrefixAlbum  = "album:"
	PrefixDecade = "decade:"
	PrefixYear   = "year:"
)

// nowFunc 当前时间，测试中可替换
var nowFunc = time.Now

// CurrentYear 当前年份
func CurrentYear() int {
	return nowFunc().Year()
}

// Record 曲目的规范化特征
type Record struct {
	Artist   string
	Album    string
	Title    string
	Year     *int
	Duration *float64 // 毫秒
	Tags     []string // 小写、去空白、去重，保持首次出现顺序
}

// HasYear 是否解析出有效年份
func (r Record) HasYear() bool {
	return r.Year != nil && *r.Year > 0
}

// YearValue 年份，未解析返回0
func (r Record) YearValue() int {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

// DurationValue 时长(毫秒)，未解析返回0
func (r Record) DurationValue() float64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}

// ArtistKey 小写去空白的艺术家名
func (r Record) ArtistKey() string {
	return strings.ToLower(strings.TrimSpace(r.Artist))
}

// PlainTags 去掉artist:/album:伪标签后的标签
func (r Record) PlainTags() []string {
	out := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		if strings.HasPrefix(tag, PrefixArtist) || strings.HasPrefix(tag, PrefixAlbum) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// CountPrefix 统计指定前缀的标签数量
func (r Record) CountPrefix(prefix string) int {
	n := 0
	for _, tag := range r.Tags {
		if strings.HasPrefix(tag, prefix) {
			n++
		}
	}
	return n
}

// Vector 时长/年代/标签类别组成的数值向量
//
// [时长/1e6, 归一化年份, artist标签数, album标签数, decade标签数]
func (r Record) Vector() []float64 {
	yearNormalized := 0.0
	if r.HasYear() {
		span := float64(CurrentYear() - 1900)
		if span > 0 {
			yearNormalized = float64(r.YearValue()-1900) / span
		}
		if yearNormalized < 0 {
			yearNormalized = 0
		}
		if yearNormalized > 1 {
			yearNormalized = 1
		}
	}
	return []float64{
		r.DurationValue() / 1e6,
		yearNormalized,
		float64(r.CountPrefix(PrefixArtist)),
		float64(r.CountPrefix(PrefixAlbum)),
		float64(r.CountPrefix(PrefixDecade)),
	}
}

// Extract 从任意形状的曲目记录中提取特征，永不失败
func Extract(track models.Track) Record {
	if len(track) == 0 {
		return Record{Tags: []string{}}
	}

	record := Record{
		Artist: track.Artist(),
		Album:  track.String("album"),
		Title:  track.Title(),
	}

	tags, ok := track.Strings("tags")
	if !ok {
		tags, _ = track.Strings("style")
	}
	raw := append([]string(nil), tags...)

	if record.Artist != "" {
		raw = append(raw, PrefixArtist+strings.ToLower(record.Artist))
	}
	if record.Album != "" {
		raw = append(raw, PrefixAlbum+strings.ToLower(record.Album))
	}

	if year, ok := ExtractYear(track); ok {
		record.Year = &year
		decade := (year / 10) * 10
		raw = append(raw, fmt.Sprintf("%s%ds", PrefixDecade, decade), fmt.Sprintf("%s%d", PrefixYear, year))
	}

	if duration, ok := ExtractDuration(track); ok {
		record.Duration = &duration
	}

	record.Tags = NormalizeTags(raw)
	return record
}

// ExtractAll 批量提取特征
func ExtractAll(tracks []models.Track) []Record {
	out := make([]Record, len(tracks))
	for i, track := range tracks {
		out[i] = Extract(track)
	}
	return out
}

// NormalizeTags 小写、去空白、去空项、按首次出现去重
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ExtractYear 按 year → release_year → release_date → date 的顺序解析年份
func ExtractYear(track models.Track) (int, bool) {
	for _, key := range []string{"year", "release_year"} {
		if v, ok := track.Float(key); ok && int(v) != 0 {
			return int(v), true
		}
	}

	if releaseDate := fieldString(track, "release_date"); releaseDate != "" {
		prefix := releaseDate
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
		if year, ok := leadingInt(prefix); ok && year > 1900 && year <= CurrentYear() {
			return year, true
		}
	}

	if date := fieldString(track, "date"); date != "" {
		if year, ok := parseDateYear(date); ok {
			return year, true
		}
	}

	return 0, false
}

// ExtractDuration 按 duration → length 的顺序解析非零时长
func ExtractDuration(track models.Track) (float64, bool) {
	for _, key := range []string{"duration", "length"} {
		if v, ok := track.Float(key); ok && v != 0 {
			return v, true
		}
	}
	return 0, false
}

func fieldString(track models.Track, key string) string {
	switch v := track[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006",
}

func parseDateYear(s string) (int, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) > 4 {
		return time.UnixMilli(ms).UTC().Year(), true
	}
	return 0, false
}
