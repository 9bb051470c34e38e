package template

import "strings"

// Element is one lexed segment of a template. Plain and code elements
// alternate; Lines counts the newlines of the original text and is not
// affected by stripping.
type Element struct {
	Text  string
	Code  bool
	Lines int

	prev, next   *Element
	stripped     bool
	headStripped bool
}

// NewStream wraps the segments produced by SplitTags into linked elements.
func NewStream(segments []string) []*Element {
	out := make([]*Element, len(segments))
	for i, s := range segments {
		out[i] = &Element{
			Text:  s,
			Code:  i%2 == 1,
			Lines: strings.Count(s, "\n"),
		}
		if i > 0 {
			out[i].prev = out[i-1]
			out[i-1].next = out[i]
		}
	}
	return out
}

// Strip removes the line a code element stands on when nothing but
// whitespace shares that line with it. Calling it more than once is a no-op.
func (e *Element) Strip() {
	if !e.Code || e.stripped {
		return
	}
	e.stripped = true
	cut, ok := e.prev.lineTail()
	if !ok {
		return
	}
	skip, ok := e.next.lineHead()
	if !ok {
		return
	}
	if e.prev != nil {
		e.prev.Text = e.prev.Text[:cut]
	}
	if e.next != nil {
		e.next.Text = e.next.Text[skip:]
		e.next.headStripped = true
	}
}

// lineTail returns the offset where the trailing whitespace of a plain
// element begins, if that whitespace starts a line.
func (e *Element) lineTail() (int, bool) {
	if e == nil {
		return 0, true
	}
	idx := strings.LastIndexByte(e.Text, '\n')
	if idx < 0 {
		if (e.prev == nil || e.headStripped) && blank(e.Text) {
			return 0, true
		}
		return 0, false
	}
	if !blank(e.Text[idx+1:]) {
		return 0, false
	}
	return idx + 1, true
}

// lineHead returns how many bytes of a plain element belong to the line the
// preceding tag ends, newline included, if they are all whitespace.
func (e *Element) lineHead() (int, bool) {
	if e == nil {
		return 0, true
	}
	idx := strings.IndexByte(e.Text, '\n')
	if idx < 0 {
		if e.next == nil && blank(e.Text) {
			return len(e.Text), true
		}
		return 0, false
	}
	if !blank(e.Text[:idx]) {
		return 0, false
	}
	return idx + 1, true
}

func blank(s string) bool {
	return strings.Trim(s, " \r") == ""
}

// queue is the element list a scope consumes. Block scopes share their
// parent's queue; end replaces the closing scope's queue with an empty one.
type queue struct {
	items []*Element
}

func (q *queue) pop() (*Element, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func (q *queue) empty() bool { return len(q.items) == 0 }
