package sed

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"
)

// command is a parsed s/regex/replacement/flags [user] line.
type command struct {
	re          *regexp.Regexp
	replacement string
	global      bool
	transforms  []transform
	target      string
}

type transform func(string) string

// transformOrder is the order flags are applied in, whatever order they
// were written in.
var transformOrder = []struct {
	flag rune
	fn   transform
}{
	{'r', reverse},
	{'U', strings.ToUpper},
	{'l', strings.ToLower},
	{'t', strings.TrimSpace},
	{'c', capitalize},
	{'C', capwords},
	{'S', shuffle},
	{'R', rot13},
}

// parse reads "/regex/replacement/flags user" with the first rune as the
// delimiter. A missing closing delimiter ends the part at end of input.
func parse(input string) (command, error) {
	runes := []rune(input)
	if len(runes) == 0 {
		return command{}, errors.New("empty expression")
	}

	delim := runes[0]
	if delim == '\\' || unicode.IsSpace(delim) || unicode.IsLetter(delim) || unicode.IsDigit(delim) {
		return command{}, fmt.Errorf("invalid delimiter %q", delim)
	}

	pattern, pos := readPart(runes, 1, delim)
	if pattern == "" {
		return command{}, errors.New("empty pattern")
	}
	replacement, pos := readPart(runes, pos, delim)

	cmd := command{replacement: convertReplacement(replacement)}
	var inline string

	rest := string(runes[pos:])
	flags, target, _ := strings.Cut(rest, " ")
	for _, flag := range flags {
		switch flag {
		case 'i', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case 'g':
			cmd.global = true
		}
	}
	for _, entry := range transformOrder {
		if strings.ContainsRune(flags, entry.flag) {
			cmd.transforms = append(cmd.transforms, entry.fn)
		}
	}
	cmd.target = strings.ToLower(strings.TrimSpace(target))

	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return command{}, fmt.Errorf("compile pattern: %w", err)
	}
	cmd.re = re

	return cmd, nil
}

func readPart(runes []rune, pos int, delim rune) (string, int) {
	var b strings.Builder
	for pos < len(runes) {
		r := runes[pos]
		pos++

		if r == delim {
			return b.String(), pos
		}
		if r == '\\' && pos < len(runes) {
			next := runes[pos]
			pos++
			if next != delim {
				b.WriteRune(r)
			}
			b.WriteRune(next)
			continue
		}
		b.WriteRune(r)
	}

	return b.String(), pos
}

// convertReplacement turns \1 and \g<name> group references into the
// ${1} and ${name} form regexp.Expand understands; a literal $ is escaped.
func convertReplacement(input string) string {
	var b strings.Builder
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(input):
			next := input[i+1]
			switch {
			case next >= '0' && next <= '9':
				b.WriteString("${" + string(next) + "}")
				i++
			case next == '\\':
				b.WriteByte('\\')
				i++
			case next == 'g' && strings.HasPrefix(input[i+2:], "<"):
				end := strings.IndexByte(input[i+3:], '>')
				if end < 0 {
					b.WriteByte(c)
					continue
				}
				b.WriteString("${" + input[i+3:i+3+end] + "}")
				i += 3 + end
			default:
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// apply runs the substitution on text. It reports false when the pattern
// does not match.
func (c command) apply(text string) (string, bool) {
	var out string
	if c.global {
		if !c.re.MatchString(text) {
			return "", false
		}
		out = c.re.ReplaceAllString(text, c.replacement)
	} else {
		loc := c.re.FindStringSubmatchIndex(text)
		if loc == nil {
			return "", false
		}
		expanded := c.re.ExpandString(nil, c.replacement, text, loc)
		out = text[:loc[0]] + string(expanded) + text[loc[1]:]
	}

	out = truncate(out, maxLineLength)
	for _, fn := range c.transforms {
		out = fn(out)
	}
	return out, true
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func reverse(text string) string {
	runes := []rune(text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func capitalize(text string) string {
	runes := []rune(strings.ToLower(text))
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

func capwords(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		words[i] = capitalize(word)
	}
	return strings.Join(words, " ")
}

func shuffle(text string) string {
	runes := []rune(text)
	rand.Shuffle(len(runes), func(i, j int) {
		runes[i], runes[j] = runes[j], runes[i]
	})
	return string(runes)
}

func rot13(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		default:
			return r
		}
	}, text)
}
