package provider

import "strings"

// ExtractCommand reduces model output to a single command line. Markdown
// code fences are unwrapped, surrounding backticks and a leading "$ "
// prompt are removed, and the first non-empty line is kept.
func ExtractCommand(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	if start := fenceStart(lines); start >= 0 {
		lines = lines[start+1:]
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				lines = lines[:i]
				break
			}
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) >= 2 && strings.HasPrefix(line, "`") && strings.HasSuffix(line, "`") {
			line = strings.TrimSpace(strings.Trim(line, "`"))
		}
		line = strings.TrimPrefix(line, "$ ")
		if line != "" {
			return line
		}
	}
	return ""
}

func fenceStart(lines []string) int {
	for i, line := range lines {
		line = strings.TrimSpace(line)
		// "```sh" opens a block; "```ls```" is an inline span.
		if strings.HasPrefix(line, "```") && !strings.Contains(line[3:], "`") {
			return i
		}
	}
	return -1
}
