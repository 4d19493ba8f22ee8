package orchestration

import (
	"regexp"
	"strings"
	"unicode"
)

// commandPattern matches a whole reply token against a command. Commands are
// case-insensitive regular expressions anchored on both ends. Surrounding
// punctuation is trimmed the way reply tokens are, so "ok." matches "OK!". A
// command that does not compile either way is matched literally.
type commandPattern struct {
	raw string
	re  *regexp.Regexp
}

func compileCommand(command string) commandPattern {
	command = strings.TrimSpace(command)
	trimmed := trimToken(command)
	for _, expr := range []string{trimmed, command} {
		if expr == "" {
			continue
		}
		if re, err := regexp.Compile(`^(?i:` + expr + `)$`); err == nil {
			return commandPattern{raw: command, re: re}
		}
	}
	return commandPattern{raw: command, re: regexp.MustCompile(`^(?i:` + regexp.QuoteMeta(trimmed) + `)$`)}
}

func (p commandPattern) matches(token string) bool {
	if p.re == nil || token == "" {
		return false
	}
	return p.re.MatchString(token)
}

// firstToken returns the first whitespace separated word of an utterance,
// lowercased and trimmed of surrounding punctuation.
func firstToken(utterance string) string {
	fields := strings.Fields(utterance)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(trimToken(fields[0]))
}

func trimToken(token string) string {
	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
