// Package chunking turns parsed markdown into embedded chunks.
package chunking

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	headingRegex = regexp.MustCompile(`^#{1,3}\s+\S`)
	fenceRegex   = regexp.MustCompile("^\\s*(```|~~~)")
)

// Section 按标题切分出的 markdown 段落，Heading 为空表示文档开头无标题的部分。
type Section struct {
	Heading string
	Content string
}

// Splitter markdown 分块器。
type Splitter struct {
	// MaxChunkSize 单个分块的最大字符数（rune）。
	MaxChunkSize int
	// Overlap 相邻窗口共享的字符数。
	Overlap int
	// MaxComponentSize 组件的最大字符数。
	MaxComponentSize int
}

// NewSplitter 创建分块器，参数越界时收敛到可用值。
func NewSplitter(maxChunkSize, overlap, maxComponentSize int) *Splitter {
	if maxChunkSize <= 0 {
		maxChunkSize = 8000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize - 1
	}
	if maxComponentSize <= 0 {
		maxComponentSize = maxChunkSize
	}
	return &Splitter{
		MaxChunkSize:     maxChunkSize,
		Overlap:          overlap,
		MaxComponentSize: maxComponentSize,
	}
}

// Split 将 markdown 切分为分块内容，顺序即 chunk_index。
func (s *Splitter) Split(markdown string) []string {
	var chunks []string
	for _, sec := range Sections(markdown) {
		chunks = append(chunks, window(sec.Content, s.MaxChunkSize, s.Overlap)...)
	}
	return chunks
}

// Components 将一个分块按段落切分为组件，段落合并到不超过 MaxComponentSize。
func (s *Splitter) Components(chunk string) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			out = append(out, text)
		}
		cur.Reset()
		n = 0
	}

	for _, para := range paragraphs(chunk) {
		size := len([]rune(para))
		if size > s.MaxComponentSize {
			flush()
			out = append(out, window(para, s.MaxComponentSize, 0)...)
			continue
		}
		if n > 0 && n+2+size > s.MaxComponentSize {
			flush()
		}
		if n > 0 {
			cur.WriteString("\n\n")
			n += 2
		}
		cur.WriteString(para)
		n += size
	}
	flush()
	return out
}

// Sections 按 #、##、### 标题切分 markdown。标题行保留在内容中，
// 首个标题之前的内容并入第一个标题段落，空段落被丢弃。代码块内的 # 不视为标题。
func Sections(markdown string) []Section {
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")

	var (
		sections []Section
		cur      Section
		body     []string
		inFence  bool
	)
	emit := func() {
		cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Content != "" {
			sections = append(sections, cur)
		}
		body = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		if fenceRegex.MatchString(line) {
			inFence = !inFence
		}
		if !inFence && headingRegex.MatchString(line) {
			emit()
			cur = Section{Heading: strings.TrimSpace(strings.TrimLeft(line, "#"))}
		}
		body = append(body, line)
	}
	emit()

	if len(sections) > 1 && sections[0].Heading == "" {
		sections[1].Content = sections[0].Content + "\n\n" + sections[1].Content
		sections = sections[1:]
	}
	return sections
}

// window 将文本切成不超过 size 个字符的窗口，相邻窗口共享 overlap 个字符。
// 切点优先落在段落边界，其次句子边界，最后是空白。
func window(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start+size/2, end)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint 在 runes[lo:hi] 中寻找最靠后的切点，返回切点之后的下标。
func breakPoint(runes []rune, lo, hi int) int {
	for i := hi - 1; i > lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := hi - 1; i > lo; i-- {
		if isSentenceEnd(runes[i-1]) && (unicode.IsSpace(runes[i]) || isCJKStop(runes[i-1])) {
			return i
		}
	}
	for i := hi - 1; i > lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return hi
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	}
	return isCJKStop(r)
}

func isCJKStop(r rune) bool {
	switch r {
	case '。', '！', '？', '；':
		return true
	}
	return false
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
