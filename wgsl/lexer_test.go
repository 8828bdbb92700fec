package wgsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(t *testing.T, src string) []TokenKind {
	t.Helper()

	tokens, err := NewLexer(src).Tokenize()
	require.NoError(t, err)

	out := make([]TokenKind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}

	return out
}

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenKind
	}{
		{"+ - * /", []TokenKind{TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenEOF}},
		{"( ) { }", []TokenKind{TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace, TokenEOF}},
		{"[ ] , .", []TokenKind{TokenLeftBracket, TokenRightBracket, TokenComma, TokenDot, TokenEOF}},
		{": ; @ _", []TokenKind{TokenColon, TokenSemicolon, TokenAt, TokenUnderscore, TokenEOF}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, kinds(t, tt.input), tt.input)
	}
}

func TestLexerOperators(t *testing.T) {
	assert.Equal(t, []TokenKind{
		TokenEqualEqual, TokenBangEqual, TokenLessEqual, TokenGreaterEqual,
		TokenAmpAmp, TokenPipePipe, TokenLessLess, TokenGreaterGreater,
		TokenArrow, TokenPlusPlus, TokenMinusMinus, TokenEOF,
	}, kinds(t, "== != <= >= && || << >> -> ++ --"))

	assert.Equal(t, []TokenKind{
		TokenPlusEqual, TokenMinusEqual, TokenStarEqual, TokenSlashEqual, TokenPercentEqual,
		TokenAmpEqual, TokenPipeEqual, TokenCaretEqual, TokenLessLessEqual, TokenGreaterGreaterEqual, TokenEOF,
	}, kinds(t, "+= -= *= /= %= &= |= ^= <<= >>="))
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		kind  TokenKind
	}{
		{"42", TokenIntLiteral},
		{"42u", TokenIntLiteral},
		{"42i", TokenIntLiteral},
		{"0x1F", TokenIntLiteral},
		{"0xffu", TokenIntLiteral},
		{"1.5", TokenFloatLiteral},
		{".5", TokenFloatLiteral},
		{"1.", TokenFloatLiteral},
		{"1e3", TokenFloatLiteral},
		{"2.5e-3", TokenFloatLiteral},
		{"1f", TokenFloatLiteral},
		{"1h", TokenFloatLiteral},
	}

	for _, tt := range tests {
		tokens, err := NewLexer(tt.input).Tokenize()
		require.NoError(t, err, tt.input)
		require.Len(t, tokens, 2, tt.input)
		assert.Equal(t, tt.kind, tokens[0].Kind, tt.input)
		assert.Equal(t, tt.input, tokens[0].Lexeme)
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	assert.Equal(t, []TokenKind{
		TokenFn, TokenIdent, TokenVar, TokenLet, TokenConst, TokenConstAssert,
		TokenLoop, TokenContinuing, TokenIdent, TokenIdent, TokenEOF,
	}, kinds(t, "fn main var let const const_assert loop continuing vec4 f32"))
}

func TestLexerComments(t *testing.T) {
	src := `// line comment
	a /* block /* nested */ still comment */ b`

	tokens, err := NewLexer(src).Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "a", tokens[0].Lexeme)
	assert.Equal(t, "b", tokens[1].Lexeme)
}

func TestLexerSpans(t *testing.T) {
	tokens, err := NewLexer("let x = 10;").Tokenize()
	require.NoError(t, err)

	x := tokens[1]
	assert.Equal(t, uint32(4), x.Span.Start)
	assert.Equal(t, uint32(5), x.Span.End)

	ten := tokens[3]
	assert.Equal(t, "10", ten.Lexeme)
	assert.Equal(t, uint32(8), ten.Span.Start)
}

func TestLexerMemberAccessOnInteger(t *testing.T) {
	// 1.x is an integer followed by a member access
	assert.Equal(t, []TokenKind{TokenIntLiteral, TokenDot, TokenIdent, TokenEOF}, kinds(t, "1.x"))
}

func TestLexerErrors(t *testing.T) {
	t.Run("invalid characters are all reported", func(t *testing.T) {
		_, err := NewLexer("a $ b #").Tokenize()
		require.Error(t, err)

		var errs SourceErrors
		require.ErrorAs(t, err, &errs)
		assert.Len(t, errs, 2)
	})

	t.Run("unterminated block comment", func(t *testing.T) {
		_, err := NewLexer("a /* b").Tokenize()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unterminated block comment")
	})
}
