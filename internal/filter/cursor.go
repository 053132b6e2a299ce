package filter

// cursor reads the query one rune at a time and can step back one rune.
type cursor struct {
	runes []rune
	pos   int
}

func newCursor(input string) *cursor {
	return &cursor{runes: []rune(input)}
}

// next returns the rune under the cursor and advances past it. ok is false
// once the input is exhausted.
func (c *cursor) next() (r rune, ok bool) {
	if c.pos >= len(c.runes) {
		return 0, false
	}
	r = c.runes[c.pos]
	c.pos++
	return r, true
}

// rewind steps back one rune; it never moves before the start.
func (c *cursor) rewind() {
	if c.pos > 0 {
		c.pos--
	}
}

// tokenCursor is the token-level counterpart of cursor, shared by the
// predicate parser and the list builder.
type tokenCursor struct {
	tokens []Token
	pos    int
}

func (c *tokenCursor) next() (Token, bool) {
	if c.pos >= len(c.tokens) {
		return Token{}, false
	}
	t := c.tokens[c.pos]
	c.pos++
	return t, true
}

func (c *tokenCursor) rewind() {
	if c.pos > 0 {
		c.pos--
	}
}
