// Package pagectx 将页面原始状态整理为有长度上限的文本摘要
package pagectx

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxHeadings  = 20
	MaxLinks     = 10
	MaxFields    = 10
	MaxBodyChars = 5000
	MaxChars     = 10000

	TruncationMarker = "\n\n[Content truncated...]"
)

// Heading 标题元素
type Heading struct {
	Level string `json:"level"` // 标签名，如 H1
	Text  string `json:"text"`
}

// Link 链接
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Field 表单控件
type Field struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Name        string `json:"name"`
	ID          string `json:"id"`
}

// Page 页面访问方提供的原始输入
type Page struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Headings    []Heading `json:"headings"`
	Links       []Link    `json:"links"`
	Fields      []Field   `json:"fields"`
	Main        string    `json:"main"`
	Article     string    `json:"article"`
	Body        string    `json:"body"`
}

// Build 生成页面摘要；纯函数
func Build(p Page) string {
	sections := make([]string, 0, 6)
	if t := strings.TrimSpace(p.Title); t != "" {
		sections = append(sections, "Title: "+t)
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		sections = append(sections, "Description: "+d)
	}
	if lines := HeadingLines(p.Headings); len(lines) > 0 {
		sections = append(sections, "Headings:\n"+strings.Join(lines, "\n"))
	}
	if lines := LinkLines(p.Links); len(lines) > 0 {
		sections = append(sections, "Links:\n"+strings.Join(lines, "\n"))
	}
	if lines := FieldLines(p.Fields); len(lines) > 0 {
		sections = append(sections, "Form Fields:\n"+strings.Join(lines, "\n"))
	}
	if body := BodyText(p); body != "" {
		sections = append(sections, "Content:\n"+body)
	}
	return Truncate(strings.Join(sections, "\n\n"))
}

// HeadingLines 最多 MaxHeadings 行 "<level>: <text>"
func HeadingLines(hs []Heading) []string {
	hs = hs[:min(len(hs), MaxHeadings)]
	lines := make([]string, 0, len(hs))
	for _, h := range hs {
		lines = append(lines, strings.ToUpper(h.Level)+": "+strings.TrimSpace(h.Text))
	}
	return lines
}

// LinkLines 最多 MaxLinks 行 "<text> (<href>)"
func LinkLines(ls []Link) []string {
	ls = ls[:min(len(ls), MaxLinks)]
	lines := make([]string, 0, len(ls))
	for _, l := range ls {
		lines = append(lines, strings.TrimSpace(l.Text)+" ("+l.Href+")")
	}
	return lines
}

// FieldLines 最多 MaxFields 行 "<tag> (<type>): <label>"
func FieldLines(fs []Field) []string {
	fs = fs[:min(len(fs), MaxFields)]
	lines := make([]string, 0, len(fs))
	for _, f := range fs {
		typ := f.Type
		if typ == "" {
			typ = "text"
		}
		lines = append(lines, strings.ToUpper(f.Tag)+" ("+typ+"): "+f.describe())
	}
	return lines
}

func (f Field) describe() string {
	for _, s := range []string{f.Label, f.Placeholder, f.Name, f.ID} {
		if s != "" {
			return s
		}
	}
	return ""
}

// BodyText 取 main、article、body 中第一个非空者，压缩空白并截断到 MaxBodyChars
func BodyText(p Page) string {
	raw := p.Main
	if raw == "" {
		raw = p.Article
	}
	if raw == "" {
		raw = p.Body
	}
	return cut(strings.Join(strings.Fields(raw), " "), MaxBodyChars)
}

// Truncate 超过 MaxChars 时截断并追加截断标记，结果总长不超过 MaxChars
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxChars {
		return s
	}
	return cut(s, MaxChars-utf8.RuneCountInString(TruncationMarker)) + TruncationMarker
}

// cut 按字符（码点）截断
func cut(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
