package core

import (
	"fmt"
	"io"
	"strconv"
)

// ReferenceResolver resolves indirect references during parsing. The
// parser needs it only for stream /Length entries given as references.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from a reader using two tokens of lookahead.
// The lookahead is what distinguishes "1 2 R" (a reference) from the
// integer sequence "1 2" inside an array.
type Parser struct {
	lexer        *Lexer
	currentToken *Token
	peekToken    *Token
	resolver     ReferenceResolver
	lexErr       error
}

// NewParser creates a parser over r and primes the lookahead.
func NewParser(r io.Reader) *Parser {
	p := &Parser{lexer: NewLexer(r)}
	p.nextToken()
	p.nextToken()
	return p
}

// SetReferenceResolver installs the resolver used for indirect stream
// lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// nextToken shifts the lookahead window forward by one token. When the
// token just shifted in is the stream keyword the lexer stops, because
// what follows is binary payload, not tokens.
func (p *Parser) nextToken() {
	p.currentToken = p.peekToken

	if p.currentToken != nil &&
		p.currentToken.Type == TokenKeyword &&
		string(p.currentToken.Value) == "stream" {
		p.peekToken = nil
		return
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		p.peekToken = nil
		if p.lexErr == nil {
			p.lexErr = err
		}
		return
	}
	p.peekToken = token
}

// skipComments advances past consecutive comment tokens.
func (p *Parser) skipComments() {
	for p.currentToken != nil && p.currentToken.Type == TokenComment {
		p.nextToken()
	}
}

// ParseObject parses the next object: null, boolean, number, string,
// name, array, dictionary or indirect reference. io.EOF is returned at
// clean end of input.
func (p *Parser) ParseObject() (Object, error) {
	p.skipComments()

	if p.currentToken == nil {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		return nil, malformed("unexpected end of input")
	}

	switch p.currentToken.Type {
	case TokenEOF:
		return nil, io.EOF

	case TokenKeyword:
		keyword := string(p.currentToken.Value)
		switch keyword {
		case "null":
			p.nextToken()
			return Null{}, nil
		case "true":
			p.nextToken()
			return Bool(true), nil
		case "false":
			p.nextToken()
			return Bool(false), nil
		default:
			return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("unexpected keyword %q", keyword)}
		}

	case TokenInteger:
		return p.parseNumber()

	case TokenReal:
		val, err := strconv.ParseFloat(string(p.currentToken.Value), 64)
		if err != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("invalid real number %q", p.currentToken.Value)}
		}
		p.nextToken()
		return Real(val), nil

	case TokenString:
		val := string(p.currentToken.Value)
		p.nextToken()
		return String(val), nil

	case TokenHexString:
		val, err := decodeHexToken(p.currentToken.Value)
		if err != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Err: err}
		}
		p.nextToken()
		return String(val), nil

	case TokenName:
		val := string(p.currentToken.Value)
		p.nextToken()
		return Name(val), nil

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDict()

	default:
		return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("unexpected token type %v", p.currentToken.Type)}
	}
}

// decodeHexToken converts raw hex digits to bytes. An odd digit count is
// padded with a trailing zero.
func decodeHexToken(digits []byte) ([]byte, error) {
	result := make([]byte, (len(digits)+1)/2)
	for i, d := range digits {
		if !isHexDigit(d) {
			return nil, malformed("invalid hex string digit %q", d)
		}
		v := hexNibble(d)
		if i%2 == 0 {
			result[i/2] = v << 4
		} else {
			result[i/2] |= v
		}
	}
	return result, nil
}

// parseNumber parses an integer, or an indirect reference when the next
// two tokens form "gen R".
func (p *Parser) parseNumber() (Object, error) {
	first, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(p.currentToken.Value), 64)
		if ferr != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("invalid number %q", p.currentToken.Value)}
		}
		p.nextToken()
		return Real(f), nil
	}

	if p.peekToken != nil && p.peekToken.Type == TokenInteger {
		second, err := strconv.ParseInt(string(p.peekToken.Value), 10, 64)
		if err == nil {
			p.nextToken() // at the second integer
			if p.peekToken != nil && p.peekToken.Type == TokenIndirectRef {
				p.nextToken() // at R
				p.nextToken() // past R
				return IndirectRef{Number: int(first), Generation: int(second)}, nil
			}
			// Not a reference. We already consumed the shift, so the
			// second integer is now current and first is complete.
			return Int(first), nil
		}
	}

	p.nextToken()
	return Int(first), nil
}

// parseArray parses "[ obj ... ]".
func (p *Parser) parseArray() (Object, error) {
	startPos := p.currentToken.Pos
	p.nextToken()

	arr := Array{}
	for {
		p.skipComments()

		if p.currentToken == nil {
			return nil, &ParseError{Pos: startPos, Err: malformed("unterminated array")}
		}
		if p.currentToken.Type == TokenArrayEnd {
			p.nextToken()
			return arr, nil
		}
		if p.currentToken.Type == TokenEOF {
			return nil, &ParseError{Pos: startPos, Err: malformed("unterminated array")}
		}

		obj, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", len(arr), err)
		}
		arr = append(arr, obj)
	}
}

// parseDict parses "<< /Key value ... >>".
func (p *Parser) parseDict() (Object, error) {
	startPos := p.currentToken.Pos
	p.nextToken()

	dict := make(Dict)
	for {
		p.skipComments()

		if p.currentToken == nil {
			return nil, &ParseError{Pos: startPos, Err: malformed("unterminated dictionary")}
		}
		if p.currentToken.Type == TokenDictEnd {
			p.nextToken()
			return dict, nil
		}
		if p.currentToken.Type == TokenEOF {
			return nil, &ParseError{Pos: startPos, Err: malformed("unterminated dictionary")}
		}

		if p.currentToken.Type != TokenName {
			return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("dictionary key must be a name, got %v", p.currentToken.Type)}
		}
		key := string(p.currentToken.Value)
		p.nextToken()

		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("dictionary value for /%s: %w", key, err)
		}
		dict[key] = value
	}
}

// ParseIndirectObject parses "N G obj <object> endobj", including stream
// objects whose dictionary is followed by the stream keyword.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	p.skipComments()

	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		return nil, malformed("expected object number")
	}
	num, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("invalid object number %q", p.currentToken.Value)}
	}
	p.nextToken()

	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		return nil, malformed("expected generation number")
	}
	gen, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		return nil, &ParseError{Pos: p.currentToken.Pos, Err: malformed("invalid generation number %q", p.currentToken.Value)}
	}
	p.nextToken()

	if p.currentToken == nil || p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "obj" {
		return nil, malformed("expected obj keyword")
	}
	p.nextToken()

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
	}

	if p.currentToken != nil && p.currentToken.Type == TokenKeyword && string(p.currentToken.Value) == "stream" {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, malformed("stream keyword after %s, want dictionary", obj.Type())
		}
		stream, err := p.parseStream(dict)
		if err != nil {
			return nil, fmt.Errorf("object %d %d stream: %w", num, gen, err)
		}
		obj = stream
	}

	if p.currentToken == nil || p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "endobj" {
		// A missing endobj after a complete object body is tolerated;
		// damaged files drop it routinely.
		return &IndirectObject{
			Ref:    IndirectRef{Number: int(num), Generation: int(gen)},
			Object: obj,
		}, nil
	}
	p.nextToken()

	return &IndirectObject{
		Ref:    IndirectRef{Number: int(num), Generation: int(gen)},
		Object: obj,
	}, nil
}

// parseStream captures the raw payload after the stream keyword. The
// declared /Length is resolved through the reference resolver when it is
// indirect, since the byte count is needed before parsing can continue.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	length, err := p.streamLength(dict)
	if err != nil {
		return nil, err
	}

	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, malformed("missing data after stream keyword")
	}

	data, err := p.lexer.ReadBytes(length)
	if err != nil {
		return nil, err
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		return nil, fmt.Errorf("after stream data: %w", err)
	}
	if token.Type != TokenKeyword || string(token.Value) != "endstream" {
		return nil, &ParseError{Pos: token.Pos, Err: malformed("expected endstream, got %q", token.Value)}
	}

	// Reload the lookahead so the caller can continue at endobj.
	p.currentToken = nil
	p.peekToken = nil
	p.nextToken()
	p.nextToken()

	return &Stream{Dict: dict, Data: data}, nil
}

// streamLength extracts /Length from the stream dictionary, resolving an
// indirect reference if needed.
func (p *Parser) streamLength(dict Dict) (int, error) {
	lengthObj := dict.Get("Length")
	if lengthObj == nil {
		return 0, malformed("stream dictionary missing /Length")
	}

	var length int
	switch v := lengthObj.(type) {
	case Int:
		length = int(v)
	case IndirectRef:
		if p.resolver == nil {
			return 0, fmt.Errorf("%w: stream /Length %s needs a reference resolver", ErrUnresolvedReference, v)
		}
		resolved, err := p.resolver.ResolveReference(v)
		if err != nil {
			return 0, fmt.Errorf("%w: stream /Length %s: %v", ErrUnresolvedReference, v, err)
		}
		n, ok := resolved.(Int)
		if !ok {
			return 0, fmt.Errorf("%w: stream /Length %s resolved to %s, want integer", ErrUnresolvedReference, v, resolved.Type())
		}
		length = int(n)
	default:
		return 0, malformed("stream /Length has type %s", lengthObj.Type())
	}

	if length < 0 {
		return 0, malformed("negative stream /Length %d", length)
	}
	return length, nil
}
