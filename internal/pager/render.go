package pager

import (
	"bytes"
	"html/template"
	"sync"
)

const (
	ClassPageNum = "page-num"
	ClassActive  = "page-active"
)

// Anchor is one page-number link.
type Anchor struct {
	Label  int    `json:"label"`
	Class  string `json:"class"`
	Active bool   `json:"active"`
}

func (a Anchor) Classes() string {
	if a.Active {
		return a.Class + " " + ClassActive
	}
	return a.Class
}

// NumPages is ceil(count/rows); zero for an empty result or a non-positive page size.
func NumPages(count, rows int) int {
	if count <= 0 || rows <= 0 {
		return 0
	}
	return (count + rows - 1) / rows
}

// StartOffset returns the zero-based offset of the first row on page.
func StartOffset(page, rows int) int {
	if page < 1 || rows < 1 {
		return 0
	}
	return (page - 1) * rows
}

// Render returns anchors 1..NumPages(count, rows) in ascending order with the
// anchor for current marked active. No anchor is active when current is out of range.
func Render(count, rows, current int) []Anchor {
	n := NumPages(count, rows)
	out := make([]Anchor, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Anchor{Label: i, Class: ClassPageNum, Active: i == current})
	}
	return out
}

// Container receives a rebuilt page list: one Reset followed by Appends in order.
type Container interface {
	Reset()
	Append(a Anchor)
}

// Replacer is implemented by containers that can swap the whole list at once,
// so readers never observe a half-built list.
type Replacer interface {
	Replace(anchors []Anchor)
}

// AnchorList is an in-memory Container.
type AnchorList struct {
	mu    sync.RWMutex
	items []Anchor
}

func NewAnchorList() *AnchorList { return &AnchorList{} }

func (l *AnchorList) Reset() {
	l.mu.Lock()
	l.items = l.items[:0]
	l.mu.Unlock()
}

func (l *AnchorList) Append(a Anchor) {
	l.mu.Lock()
	l.items = append(l.items, a)
	l.mu.Unlock()
}

func (l *AnchorList) Replace(anchors []Anchor) {
	items := make([]Anchor, len(anchors))
	copy(items, anchors)
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

// Anchors returns a snapshot of the current list.
func (l *AnchorList) Anchors() []Anchor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Anchor, len(l.items))
	copy(out, l.items)
	return out
}

var anchorsTmpl = template.Must(template.New("pages").Parse(
	`{{range .}}<a class="{{.Classes}}">{{.Label}}</a>{{end}}`))

// HTML renders the list as a sequence of anchor elements.
func (l *AnchorList) HTML() (string, error) {
	var buf bytes.Buffer
	if err := anchorsTmpl.Execute(&buf, l.Anchors()); err != nil {
		return "", err
	}
	return buf.String(), nil
}
