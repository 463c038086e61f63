package core

import (
	"bufio"
	"bytes"
	"io"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenComment
	TokenKeyword     // true, false, null, obj, endobj, stream, endstream
	TokenInteger     // 42, -17
	TokenReal        // 3.14, -.5
	TokenString      // (literal) with escapes already applied
	TokenHexString   // <48656C6C6F> raw hex digits, whitespace stripped
	TokenName        // /Type with #xx escapes already applied
	TokenArrayStart  // [
	TokenArrayEnd    // ]
	TokenDictStart   // <<
	TokenDictEnd     // >>
	TokenIndirectRef // a bare R keyword
)

// Token is one lexical token with its starting byte position.
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64
}

// Lexer tokenizes PDF object syntax. The binary payload of streams is not
// tokenized; the parser reads it through ReadBytes after SkipStreamEOL.
type Lexer struct {
	reader *bufio.Reader
	pos    int64
}

// NewLexer creates a lexer over r.
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{reader: bufio.NewReader(r)}
}

// NextToken returns the next token, skipping whitespace. At end of input a
// TokenEOF token is returned with a nil error.
func (l *Lexer) NextToken() (*Token, error) {
	l.skipWhitespace()

	b, err := l.peek()
	if err == io.EOF {
		return &Token{Type: TokenEOF, Pos: l.pos}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case b == '%':
		return l.readComment()
	case b == '[':
		l.readByte()
		return &Token{Type: TokenArrayStart, Value: []byte{'['}, Pos: l.pos - 1}, nil
	case b == ']':
		l.readByte()
		return &Token{Type: TokenArrayEnd, Value: []byte{']'}, Pos: l.pos - 1}, nil
	case b == '(':
		return l.readLiteralString()
	case b == '<':
		if next, err := l.reader.Peek(2); err == nil && len(next) == 2 && next[1] == '<' {
			l.readByte()
			l.readByte()
			return &Token{Type: TokenDictStart, Value: []byte("<<"), Pos: l.pos - 2}, nil
		}
		return l.readHexString()
	case b == '>':
		if next, err := l.reader.Peek(2); err == nil && len(next) == 2 && next[1] == '>' {
			l.readByte()
			l.readByte()
			return &Token{Type: TokenDictEnd, Value: []byte(">>"), Pos: l.pos - 2}, nil
		}
		return nil, &ParseError{Pos: l.pos, Err: malformed("unexpected '>'")}
	case b == '/':
		return l.readName()
	case isDigit(b) || b == '-' || b == '+' || b == '.':
		return l.readNumber()
	case isRegular(b):
		return l.readKeyword()
	}

	return nil, &ParseError{Pos: l.pos, Err: malformed("unexpected character %q", b)}
}

// SkipStreamEOL consumes the end-of-line sequence that follows the
// "stream" keyword: a single LF or a CR LF pair. A lone CR is also
// accepted since damaged writers produce it.
func (l *Lexer) SkipStreamEOL() error {
	b, err := l.peek()
	if err != nil {
		return err
	}
	if b == '\n' {
		_, err = l.readByte()
		return err
	}
	if b == '\r' {
		l.readByte()
		if next, err := l.peek(); err == nil && next == '\n' {
			l.readByte()
		}
	}
	return nil
}

// ReadBytes reads exactly n bytes of raw data from the current position.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	read, err := io.ReadFull(l.reader, data)
	l.pos += int64(read)
	if err != nil {
		return data[:read], malformed("stream data truncated: wanted %d bytes, got %d", n, read)
	}
	return data, nil
}

// SkipBytes skips exactly n bytes of raw data.
func (l *Lexer) SkipBytes(n int) error {
	skipped, err := l.reader.Discard(n)
	l.pos += int64(skipped)
	return err
}

// Peek returns the next byte without consuming it.
func (l *Lexer) Peek() (byte, error) { return l.peek() }

// ReadByte consumes and returns the next byte.
func (l *Lexer) ReadByte() (byte, error) { return l.readByte() }

// Pos returns the number of bytes consumed so far.
func (l *Lexer) Pos() int64 { return l.pos }

func (l *Lexer) readByte() (byte, error) {
	b, err := l.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	l.pos++
	return b, nil
}

func (l *Lexer) peek() (byte, error) {
	buf, err := l.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (l *Lexer) skipWhitespace() {
	for {
		b, err := l.peek()
		if err != nil || !isWhitespace(b) {
			return
		}
		l.readByte()
	}
}

// readComment reads from '%' to end of line. The comment text excludes the
// line terminator.
func (l *Lexer) readComment() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer

	b, _ := l.readByte()
	buf.WriteByte(b)

	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if b == '\r' || b == '\n' {
			l.readByte()
			if b == '\r' {
				if next, err := l.peek(); err == nil && next == '\n' {
					l.readByte()
				}
			}
			break
		}
		b, _ = l.readByte()
		buf.WriteByte(b)
	}

	return &Token{Type: TokenComment, Value: buf.Bytes(), Pos: startPos}, nil
}

// readLiteralString reads a (string), applying escape sequences, octal
// escapes, line continuations and balanced parenthesis nesting.
func (l *Lexer) readLiteralString() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer

	l.readByte() // opening (

	depth := 1
	for depth > 0 {
		b, err := l.readByte()
		if err != nil {
			return nil, &ParseError{Pos: l.pos, Err: malformed("unterminated literal string")}
		}

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			if err := l.readStringEscape(&buf); err != nil {
				return nil, err
			}
		default:
			buf.WriteByte(b)
		}
	}

	return &Token{Type: TokenString, Value: buf.Bytes(), Pos: startPos}, nil
}

// readStringEscape handles the character after a backslash in a literal
// string.
func (l *Lexer) readStringEscape(buf *bytes.Buffer) error {
	next, err := l.readByte()
	if err != nil {
		return &ParseError{Pos: l.pos, Err: malformed("unterminated escape in literal string")}
	}

	switch next {
	case 'n':
		buf.WriteByte('\n')
	case 'r':
		buf.WriteByte('\r')
	case 't':
		buf.WriteByte('\t')
	case 'b':
		buf.WriteByte('\b')
	case 'f':
		buf.WriteByte('\f')
	case '(', ')', '\\':
		buf.WriteByte(next)
	case '\r', '\n':
		// Line continuation: the backslash and the EOL vanish.
		if next == '\r' {
			if p, err := l.peek(); err == nil && p == '\n' {
				l.readByte()
			}
		}
	case '0', '1', '2', '3', '4', '5', '6', '7':
		val := next - '0'
		for i := 0; i < 2; i++ {
			p, err := l.peek()
			if err != nil || !isOctalDigit(p) {
				break
			}
			d, _ := l.readByte()
			val = val*8 + (d - '0')
		}
		buf.WriteByte(val)
	default:
		// Unknown escape: the backslash is dropped, the byte kept.
		buf.WriteByte(next)
	}
	return nil
}

// readHexString reads a <hex> string, returning the raw digits with
// whitespace removed. Conversion to bytes happens in the parser.
func (l *Lexer) readHexString() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer

	l.readByte() // opening <

	for {
		b, err := l.readByte()
		if err != nil {
			return nil, &ParseError{Pos: l.pos, Err: malformed("unterminated hex string")}
		}
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return nil, &ParseError{Pos: l.pos - 1, Err: malformed("invalid hex digit %q", b)}
		}
		buf.WriteByte(b)
	}

	return &Token{Type: TokenHexString, Value: buf.Bytes(), Pos: startPos}, nil
}

// readName reads a /Name, decoding #xx escapes.
func (l *Lexer) readName() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer

	l.readByte() // the /

	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}

		b, _ = l.readByte()
		if b == '#' {
			h1, err1 := l.readByte()
			h2, err2 := l.readByte()
			if err1 != nil || err2 != nil || !isHexDigit(h1) || !isHexDigit(h2) {
				return nil, &ParseError{Pos: l.pos, Err: malformed("invalid #xx escape in name")}
			}
			buf.WriteByte(hexNibble(h1)<<4 | hexNibble(h2))
			continue
		}
		buf.WriteByte(b)
	}

	return &Token{Type: TokenName, Value: buf.Bytes(), Pos: startPos}, nil
}

// readNumber reads an integer or real. Signs are only valid as the first
// character; a second '.' terminates the number.
func (l *Lexer) readNumber() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer
	hasDecimal := false

	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if b == '.' {
			if hasDecimal {
				break
			}
			hasDecimal = true
		} else if !isDigit(b) && !(buf.Len() == 0 && (b == '-' || b == '+')) {
			break
		}
		b, _ = l.readByte()
		buf.WriteByte(b)
	}

	tokenType := TokenInteger
	if hasDecimal {
		tokenType = TokenReal
	}
	return &Token{Type: tokenType, Value: buf.Bytes(), Pos: startPos}, nil
}

// readKeyword reads a bare keyword such as obj, endobj, stream, true. A
// lone R is classified as TokenIndirectRef.
func (l *Lexer) readKeyword() (*Token, error) {
	startPos := l.pos
	var buf bytes.Buffer

	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		b, _ = l.readByte()
		buf.WriteByte(b)
	}

	value := buf.Bytes()
	if len(value) == 1 && value[0] == 'R' {
		return &Token{Type: TokenIndirectRef, Value: value, Pos: startPos}, nil
	}
	return &Token{Type: TokenKeyword, Value: value, Pos: startPos}, nil
}

// Character classes per the PDF syntax rules.

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// isRegular reports whether b is neither whitespace nor a delimiter.
func isRegular(b byte) bool {
	return !isWhitespace(b) && !isDelimiter(b)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexNibble(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
