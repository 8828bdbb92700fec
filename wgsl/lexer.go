package wgsl

import (
	"unicode"
	"unicode/utf8"

	"github.com/gogpu/wgslc/ir"
)

// Lexer tokenizes WGSL source code.
type Lexer struct {
	source string
	pos    int
	start  int
	tokens []Token
	errors SourceErrors
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source string) *Lexer {
	est := len(source) / 6
	if est < 16 {
		est = 16
	}

	return &Lexer{
		source: source,
		tokens: make([]Token, 0, est),
	}
}

// Tokenize returns all tokens from the source, terminated by TokenEOF.
// Invalid characters and unterminated comments are reported together.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipTrivia()
		if l.isAtEnd() {
			break
		}

		l.start = l.pos
		l.scanToken()
	}

	l.start = l.pos
	l.addToken(TokenEOF)

	if l.errors.HasErrors() {
		return l.tokens, l.errors
	}

	return l.tokens, nil
}

func (l *Lexer) skipTrivia() {
	for !l.isAtEnd() {
		switch r := l.peek(); {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			l.advance()
		case r == '/' && l.peekNext() == '/':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		case r == '/' && l.peekNext() == '*':
			l.start = l.pos
			l.blockComment()
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	l.advance()
	l.advance()

	for depth := 1; depth > 0; {
		if l.isAtEnd() {
			l.errors.AddError("unterminated block comment", l.span(), l.source)
			return
		}

		switch {
		case l.peek() == '/' && l.peekNext() == '*':
			l.advance()
			l.advance()
			depth++
		case l.peek() == '*' && l.peekNext() == '/':
			l.advance()
			l.advance()
			depth--
		default:
			l.advance()
		}
	}
}

//nolint:gocyclo,cyclop // operator table
func (l *Lexer) scanToken() {
	r := l.advance()

	switch r {
	case '(':
		l.addToken(TokenLeftParen)
	case ')':
		l.addToken(TokenRightParen)
	case '{':
		l.addToken(TokenLeftBrace)
	case '}':
		l.addToken(TokenRightBrace)
	case '[':
		l.addToken(TokenLeftBracket)
	case ']':
		l.addToken(TokenRightBracket)
	case ',':
		l.addToken(TokenComma)
	case ':':
		l.addToken(TokenColon)
	case ';':
		l.addToken(TokenSemicolon)
	case '@':
		l.addToken(TokenAt)
	case '~':
		l.addToken(TokenTilde)
	case '.':
		if isDigit(l.peek()) {
			l.number()
			return
		}
		l.addToken(TokenDot)
	case '%':
		l.addToken(l.pick('=', TokenPercentEqual, TokenPercent))
	case '^':
		l.addToken(l.pick('=', TokenCaretEqual, TokenCaret))
	case '*':
		l.addToken(l.pick('=', TokenStarEqual, TokenStar))
	case '/':
		l.addToken(l.pick('=', TokenSlashEqual, TokenSlash))
	case '=':
		l.addToken(l.pick('=', TokenEqualEqual, TokenEqual))
	case '!':
		l.addToken(l.pick('=', TokenBangEqual, TokenBang))
	case '+':
		switch {
		case l.match('+'):
			l.addToken(TokenPlusPlus)
		case l.match('='):
			l.addToken(TokenPlusEqual)
		default:
			l.addToken(TokenPlus)
		}
	case '-':
		switch {
		case l.match('-'):
			l.addToken(TokenMinusMinus)
		case l.match('='):
			l.addToken(TokenMinusEqual)
		case l.match('>'):
			l.addToken(TokenArrow)
		default:
			l.addToken(TokenMinus)
		}
	case '<':
		switch {
		case l.match('<'):
			l.addToken(l.pick('=', TokenLessLessEqual, TokenLessLess))
		case l.match('='):
			l.addToken(TokenLessEqual)
		default:
			l.addToken(TokenLess)
		}
	case '>':
		switch {
		case l.match('>'):
			l.addToken(l.pick('=', TokenGreaterGreaterEqual, TokenGreaterGreater))
		case l.match('='):
			l.addToken(TokenGreaterEqual)
		default:
			l.addToken(TokenGreater)
		}
	case '&':
		switch {
		case l.match('&'):
			l.addToken(TokenAmpAmp)
		case l.match('='):
			l.addToken(TokenAmpEqual)
		default:
			l.addToken(TokenAmpersand)
		}
	case '|':
		switch {
		case l.match('|'):
			l.addToken(TokenPipePipe)
		case l.match('='):
			l.addToken(TokenPipeEqual)
		default:
			l.addToken(TokenPipe)
		}
	default:
		switch {
		case isDigit(r):
			l.number()
		case isIdentStart(r):
			l.identifier()
		default:
			l.addToken(TokenError)
			l.errors.AddError("invalid character "+quoteRune(r), l.span(), l.source)
		}
	}
}

// number scans decimal and hexadecimal literals with their suffixes.
// "1.x" is an integer followed by member access.
func (l *Lexer) number() {
	if l.source[l.start] == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == 'i' || l.peek() == 'u' {
			l.advance()
		}
		l.addToken(TokenIntLiteral)
		return
	}

	float := l.source[l.start] == '.'

	for isDigit(l.peek()) {
		l.advance()
	}

	if !float && l.peek() == '.' && !isIdentStart(l.peekNext()) {
		float = true
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	if l.peek() == 'e' || l.peek() == 'E' {
		float = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	switch {
	case l.peek() == 'f' || l.peek() == 'h':
		l.advance()
		l.addToken(TokenFloatLiteral)
	case float:
		l.addToken(TokenFloatLiteral)
	case l.peek() == 'i' || l.peek() == 'u':
		l.advance()
		l.addToken(TokenIntLiteral)
	default:
		l.addToken(TokenIntLiteral)
	}
}

var keywords = map[string]TokenKind{
	"alias":        TokenAlias,
	"break":        TokenBreak,
	"case":         TokenCase,
	"const":        TokenConst,
	"const_assert": TokenConstAssert,
	"continue":     TokenContinue,
	"continuing":   TokenContinuing,
	"default":      TokenDefault,
	"diagnostic":   TokenDiagnostic,
	"discard":      TokenDiscard,
	"else":         TokenElse,
	"enable":       TokenEnable,
	"false":        TokenFalse,
	"fn":           TokenFn,
	"for":          TokenFor,
	"if":           TokenIf,
	"let":          TokenLet,
	"loop":         TokenLoop,
	"override":     TokenOverride,
	"requires":     TokenRequires,
	"return":       TokenReturn,
	"struct":       TokenStruct,
	"switch":       TokenSwitch,
	"true":         TokenTrue,
	"var":          TokenVar,
	"while":        TokenWhile,
}

// identifier scans an identifier or keyword.
// Type names are ordinary identifiers resolved during lowering.
func (l *Lexer) identifier() {
	for isIdentPart(l.peek()) {
		l.advance()
	}

	text := l.source[l.start:l.pos]

	switch kind, ok := keywords[text]; {
	case ok:
		l.addToken(kind)
	case text == "_":
		l.addToken(TokenUnderscore)
	default:
		l.addToken(TokenIdent)
	}
}

func (l *Lexer) addToken(kind TokenKind) {
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Lexeme: l.source[l.start:l.pos],
		Span:   l.span(),
	})
}

func (l *Lexer) span() ir.Span {
	return ir.Span{Start: uint32(l.start), End: uint32(l.pos)}
}

func (l *Lexer) pick(next rune, yes, no TokenKind) TokenKind {
	if l.match(next) {
		return yes
	}

	return no
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.source[l.pos:])
	l.pos += size

	return r
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.source[l.pos:])

	return r
}

func (l *Lexer) peekNext() rune {
	if l.isAtEnd() {
		return 0
	}

	_, size := utf8.DecodeRuneInString(l.source[l.pos:])
	if l.pos+size >= len(l.source) {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.source[l.pos+size:])

	return r
}

func (l *Lexer) match(expected rune) bool {
	if l.peek() != expected || l.isAtEnd() {
		return false
	}

	l.advance()

	return true
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r) || unicode.IsDigit(r)
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
