package emailpattern

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenAnyRun
	tokenAnyOne
	tokenClass
)

type runeRange struct {
	lo, hi rune
}

type token struct {
	kind    tokenKind
	char    rune
	negated bool
	ranges  []runeRange
}

func (t token) matches(r rune) bool {
	switch t.kind {
	case tokenAnyOne:
		return true
	case tokenLiteral:
		return t.char == r
	case tokenClass:
		in := false
		for _, rng := range t.ranges {
			if r >= rng.lo && r <= rng.hi {
				in = true
				break
			}
		}
		return in != t.negated
	}
	return false
}

// Pattern is a compiled shell-style glob. It matches the whole candidate string.
type Pattern struct {
	source string
	tokens []token
}

// Compile translates a glob into a matcher.
//
// Supported syntax: "*" matches any run of characters (including none), "?" matches
// exactly one character, "[...]" and "[!...]" match a character (not) in the class,
// with ranges written as "a-z". A backslash makes the next character literal, inside
// and outside of classes. An unterminated class is read as a literal "[".
func Compile(glob string) *Pattern {
	src := []rune(glob)
	p := &Pattern{source: glob}

	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\\':
			if i+1 < len(src) {
				i++
			}
			p.tokens = append(p.tokens, token{kind: tokenLiteral, char: src[i]})
		case '*':
			if n := len(p.tokens); n > 0 && p.tokens[n-1].kind == tokenAnyRun {
				continue
			}
			p.tokens = append(p.tokens, token{kind: tokenAnyRun})
		case '?':
			p.tokens = append(p.tokens, token{kind: tokenAnyOne})
		case '[':
			class, next, ok := parseClass(src, i+1)
			if !ok {
				p.tokens = append(p.tokens, token{kind: tokenLiteral, char: c})
				continue
			}
			p.tokens = append(p.tokens, class)
			i = next
		default:
			p.tokens = append(p.tokens, token{kind: tokenLiteral, char: c})
		}
	}

	return p
}

// parseClass reads a character class starting right after the opening bracket.
// It returns the class token and the index of the closing bracket.
func parseClass(src []rune, start int) (token, int, bool) {
	class := token{kind: tokenClass}
	i := start
	if i < len(src) && (src[i] == '!' || src[i] == '^') {
		class.negated = true
		i++
	}

	first := true
	for i < len(src) {
		c := src[i]
		if c == ']' && !first {
			return class, i, true
		}
		first = false

		if c == '\\' && i+1 < len(src) {
			i++
			c = src[i]
		}

		lo, hi := c, c
		if i+2 < len(src) && src[i+1] == '-' && src[i+2] != ']' {
			i += 2
			hi = src[i]
			if hi == '\\' && i+1 < len(src) {
				i++
				hi = src[i]
			}
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		class.ranges = append(class.ranges, runeRange{lo: lo, hi: hi})
		i++
	}

	return token{}, 0, false
}

// String returns the glob the pattern was compiled from.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Match reports whether the entire candidate matches the pattern.
func (p *Pattern) Match(candidate string) bool {
	if p == nil {
		return false
	}

	subject := []rune(candidate)
	ti, si := 0, 0
	starTi, starSi := -1, 0

	for si < len(subject) {
		if ti < len(p.tokens) {
			tok := p.tokens[ti]
			if tok.kind == tokenAnyRun {
				starTi, starSi = ti, si
				ti++
				continue
			}
			if tok.matches(subject[si]) {
				ti++
				si++
				continue
			}
		}
		if starTi < 0 {
			return false
		}
		// retry with the last star swallowing one more character
		starSi++
		si = starSi
		ti = starTi + 1
	}

	for ti < len(p.tokens) && p.tokens[ti].kind == tokenAnyRun {
		ti++
	}
	return ti == len(p.tokens)
}
