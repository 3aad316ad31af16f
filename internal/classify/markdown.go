package classify

import "strings"

// Draft is an issue extracted from free text, not yet created.
type Draft struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Classification string `json:"classification"`
}

// ParseMarkdown extracts numbered and bulleted items as drafts. Sub-items
// such as "1.1 text" carry their parent line in the description. Headings
// reset the parent. Classifications come from Keywords.
func ParseMarkdown(content string) []Draft {
	var drafts []Draft
	lastParentLine := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "#") {
			lastParentLine = ""
			continue
		}

		if subTitle, ok := parseSubItemNumber(line); ok {
			desc := ""
			if lastParentLine != "" {
				desc = lastParentLine
			}
			drafts = append(drafts, Draft{
				Title:          subTitle,
				Description:    desc,
				Classification: string(Keywords(subTitle, desc)),
			})
			continue
		}

		title := listItemTitle(line)
		if title == "" {
			continue
		}
		// Only numbered items can be parents.
		if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "* ") {
			lastParentLine = line
		}
		drafts = append(drafts, Draft{
			Title:          title,
			Classification: string(Keywords(title, "")),
		})
	}
	return drafts
}

// listItemTitle returns the text of "1. text", "- text" or "* text".
func listItemTitle(line string) string {
	if len(line) <= 2 {
		return ""
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:])
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:])
	}
	return ""
}

// parseSubItemNumber checks if a line starts with a sub-item number like "1.1"
// or "2.3." and returns the text after it.
func parseSubItemNumber(line string) (title string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // plain "1. text"
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	return title, title != ""
}
