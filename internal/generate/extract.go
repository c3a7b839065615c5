package generate

import (
	"regexp"
	"strings"
)

// CodeBlock is a fenced block found in a markdown response.
type CodeBlock struct {
	Language string
	Content  string
}

var codeBlockRe = regexp.MustCompile("(?s)```([\\w+-]*)[ \\t]*\\r?\\n(.*?)```")

// CodeBlocks returns every fenced code block in text, in order.
func CodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	for _, m := range codeBlockRe.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, CodeBlock{
			Language: strings.ToLower(m[1]),
			Content:  strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// ExtractCode picks the Go source out of an LLM response: the first block
// tagged go or golang, else the first block containing a package clause,
// else the first block, else the whole response.
func ExtractCode(response string) string {
	blocks := CodeBlocks(response)
	for _, b := range blocks {
		if b.Language == "go" || b.Language == "golang" {
			return b.Content + "\n"
		}
	}
	for _, b := range blocks {
		if strings.HasPrefix(b.Content, "package ") || strings.Contains(b.Content, "\npackage ") {
			return b.Content + "\n"
		}
	}
	if len(blocks) > 0 {
		return blocks[0].Content + "\n"
	}
	return strings.TrimSpace(response) + "\n"
}
