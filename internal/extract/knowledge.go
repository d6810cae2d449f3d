package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/source"
)

// KnowledgeExtractor turns one semi-structured text page into one
// fragment. Blocks are parsed for structure but concatenated back into a
// single body; the structure shows up as tags and as edges for wiki-style
// links.
type KnowledgeExtractor struct {
	orgID string
}

// NewKnowledgeExtractor creates a new KnowledgeExtractor instance
func NewKnowledgeExtractor(orgID string) *KnowledgeExtractor {
	return &KnowledgeExtractor{orgID: orgID}
}

type knowledgeBlock struct {
	kind string // heading, paragraph, list, quote, code
	lang string
	text string
}

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// Extract parses the page into blocks, derives the title from the first
// level-1/2 heading (unit name otherwise), and emits one fragment plus a
// references edge per distinct [[Other Title]] link.
func (e *KnowledgeExtractor) Extract(unit source.Unit) ([]domain.Fragment, []domain.RelationshipEdge, error) {
	blocks := parseBlocks(string(unit.Content))
	if len(blocks) == 0 {
		return nil, nil, domain.NewDomainError(domain.ErrCodeParse,
			fmt.Sprintf("page %s is empty", unit.Ref))
	}

	title := unit.Name
	titleFound := false
	var bodyParts []string
	var tags []string
	var linkTitles []string

	for _, b := range blocks {
		bodyParts = append(bodyParts, b.text)
		switch b.kind {
		case "heading":
			if h, level := headingText(b.text); !titleFound && level <= 2 && h != "" {
				title = h
				titleFound = true
			}
		case "code":
			tags = append(tags, "has_code")
			if b.lang != "" {
				tags = append(tags, "lang:"+b.lang)
			}
		case "list":
			tags = append(tags, "has_list")
		case "quote":
			tags = append(tags, "has_quote")
		}
		if b.kind != "code" {
			for _, m := range wikiLinkPattern.FindAllStringSubmatch(b.text, -1) {
				linkTitles = append(linkTitles, strings.TrimSpace(m[1]))
			}
		}
	}
	if title == "" {
		title = unit.Name
	}

	id := domain.KnowledgeIdentity(e.orgID, title)
	f := domain.NewFragment(
		id, e.orgID, "",
		domain.FragmentTypeKnowledge,
		title, strings.Join(bodyParts, "\n\n"),
		tags,
		domain.SourceTypeKnowledgePage,
		unit.Ref,
	)
	f.ConfidenceScore = knowledgeConfidence

	var edges []domain.RelationshipEdge
	seen := make(map[string]bool)
	for _, link := range linkTitles {
		if link == "" || link == title {
			continue
		}
		toID := domain.KnowledgeIdentity(e.orgID, link)
		if seen[toID] {
			continue
		}
		seen[toID] = true
		edges = append(edges, *domain.NewRelationshipEdge(id, toID, domain.EdgeKindReferences))
	}

	return []domain.Fragment{*f}, edges, nil
}

// parseBlocks splits a page into ordered blocks: fenced code, headings
// (levels 1-3), list runs, quote runs, and blank-line-separated
// paragraphs. Fences keep their markers so code reads as code after
// reassembly.
func parseBlocks(content string) []knowledgeBlock {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var blocks []knowledgeBlock
	var para []string
	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, knowledgeBlock{kind: "paragraph", text: strings.Join(para, "\n")})
			para = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushPara()

		case isFence(trimmed):
			flushPara()
			lang := strings.TrimSpace(trimmed[3:])
			fence := []string{line}
			for i++; i < len(lines); i++ {
				fence = append(fence, lines[i])
				if isFence(strings.TrimSpace(lines[i])) {
					break
				}
			}
			blocks = append(blocks, knowledgeBlock{kind: "code", lang: lang, text: strings.Join(fence, "\n")})

		case headingLevel(trimmed) > 0:
			flushPara()
			blocks = append(blocks, knowledgeBlock{kind: "heading", text: trimmed})

		case isListItem(trimmed):
			flushPara()
			items := []string{line}
			for i+1 < len(lines) && isListItem(strings.TrimSpace(lines[i+1])) {
				i++
				items = append(items, lines[i])
			}
			blocks = append(blocks, knowledgeBlock{kind: "list", text: strings.Join(items, "\n")})

		case strings.HasPrefix(trimmed, ">"):
			flushPara()
			quote := []string{line}
			for i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), ">") {
				i++
				quote = append(quote, lines[i])
			}
			blocks = append(blocks, knowledgeBlock{kind: "quote", text: strings.Join(quote, "\n")})

		default:
			para = append(para, line)
		}
	}
	flushPara()
	return blocks
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

// headingLevel returns 1-3 for heading lines, 0 otherwise. Deeper
// headings read as paragraph text.
func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 3 {
		return 0
	}
	if level == len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

func headingText(line string) (string, int) {
	level := headingLevel(line)
	if level == 0 {
		return "", 0
	}
	return strings.TrimSpace(line[level:]), level
}

var listItemPattern = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)

func isListItem(line string) bool {
	return listItemPattern.MatchString(line)
}
