package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// Option is a numbered choice offered in a reply.
type Option struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// CodeBlock is a fenced code block.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// Content is a reply split into the parts the overlay renders separately.
type Content struct {
	Text       string      `json:"text"`
	Options    []Option    `json:"options,omitempty"`
	CodeBlocks []CodeBlock `json:"codeBlocks,omitempty"`
}

var optionLine = regexp.MustCompile(`^\s*(\d{1,2})[.)]\s+(\S.*)$`)

// ParseContent extracts numbered options and fenced code blocks. Lines
// inside code blocks are never options. An unterminated fence runs to the
// end of the text.
func ParseContent(text string) Content {
	c := Content{Text: text}

	var (
		inCode bool
		lang   string
		code   []string
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				c.CodeBlocks = append(c.CodeBlocks, CodeBlock{Language: lang, Code: strings.Join(code, "\n")})
				inCode, lang, code = false, "", nil
			} else {
				inCode = true
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			}
			continue
		}
		if inCode {
			code = append(code, line)
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			c.Options = append(c.Options, Option{Number: n, Text: strings.TrimSpace(m[2])})
		}
	}
	if inCode {
		c.CodeBlocks = append(c.CodeBlocks, CodeBlock{Language: lang, Code: strings.Join(code, "\n")})
	}
	return c
}
