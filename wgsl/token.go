package wgsl

import "github.com/gogpu/wgslc/ir"

// TokenKind represents the type of token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenError

	TokenIdent
	TokenIntLiteral
	TokenFloatLiteral

	TokenPlus                // +
	TokenMinus               // -
	TokenStar                // *
	TokenSlash               // /
	TokenPercent             // %
	TokenAmpersand           // &
	TokenPipe                // |
	TokenCaret               // ^
	TokenTilde               // ~
	TokenBang                // !
	TokenEqual               // =
	TokenLess                // <
	TokenGreater             // >
	TokenDot                 // .
	TokenComma               // ,
	TokenColon               // :
	TokenSemicolon           // ;
	TokenAt                  // @
	TokenArrow               // ->
	TokenUnderscore          // _
	TokenPlusPlus            // ++
	TokenMinusMinus          // --
	TokenEqualEqual          // ==
	TokenBangEqual           // !=
	TokenLessEqual           // <=
	TokenGreaterEqual        // >=
	TokenAmpAmp              // &&
	TokenPipePipe            // ||
	TokenLessLess            // <<
	TokenGreaterGreater      // >>
	TokenPlusEqual           // +=
	TokenMinusEqual          // -=
	TokenStarEqual           // *=
	TokenSlashEqual          // /=
	TokenPercentEqual        // %=
	TokenAmpEqual            // &=
	TokenPipeEqual           // |=
	TokenCaretEqual          // ^=
	TokenLessLessEqual       // <<=
	TokenGreaterGreaterEqual // >>=

	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBrace    // {
	TokenRightBrace   // }
	TokenLeftBracket  // [
	TokenRightBracket // ]

	TokenAlias
	TokenBreak
	TokenCase
	TokenConst
	TokenConstAssert
	TokenContinue
	TokenContinuing
	TokenDefault
	TokenDiagnostic
	TokenDiscard
	TokenElse
	TokenEnable
	TokenFalse
	TokenFn
	TokenFor
	TokenIf
	TokenLet
	TokenLoop
	TokenOverride
	TokenRequires
	TokenReturn
	TokenStruct
	TokenSwitch
	TokenTrue
	TokenVar
	TokenWhile

	tokenKindCount
)

var tokenNames = [tokenKindCount]string{
	TokenEOF:          "end of file",
	TokenError:        "invalid character",
	TokenIdent:        "identifier",
	TokenIntLiteral:   "integer literal",
	TokenFloatLiteral: "float literal",

	TokenPlus:                "+",
	TokenMinus:               "-",
	TokenStar:                "*",
	TokenSlash:               "/",
	TokenPercent:             "%",
	TokenAmpersand:           "&",
	TokenPipe:                "|",
	TokenCaret:               "^",
	TokenTilde:               "~",
	TokenBang:                "!",
	TokenEqual:               "=",
	TokenLess:                "<",
	TokenGreater:             ">",
	TokenDot:                 ".",
	TokenComma:               ",",
	TokenColon:               ":",
	TokenSemicolon:           ";",
	TokenAt:                  "@",
	TokenArrow:               "->",
	TokenUnderscore:          "_",
	TokenPlusPlus:            "++",
	TokenMinusMinus:          "--",
	TokenEqualEqual:          "==",
	TokenBangEqual:           "!=",
	TokenLessEqual:           "<=",
	TokenGreaterEqual:        ">=",
	TokenAmpAmp:              "&&",
	TokenPipePipe:            "||",
	TokenLessLess:            "<<",
	TokenGreaterGreater:      ">>",
	TokenPlusEqual:           "+=",
	TokenMinusEqual:          "-=",
	TokenStarEqual:           "*=",
	TokenSlashEqual:          "/=",
	TokenPercentEqual:        "%=",
	TokenAmpEqual:            "&=",
	TokenPipeEqual:           "|=",
	TokenCaretEqual:          "^=",
	TokenLessLessEqual:       "<<=",
	TokenGreaterGreaterEqual: ">>=",

	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
	TokenLeftBracket:  "[",
	TokenRightBracket: "]",

	TokenAlias:       "alias",
	TokenBreak:       "break",
	TokenCase:        "case",
	TokenConst:       "const",
	TokenConstAssert: "const_assert",
	TokenContinue:    "continue",
	TokenContinuing:  "continuing",
	TokenDefault:     "default",
	TokenDiagnostic:  "diagnostic",
	TokenDiscard:     "discard",
	TokenElse:        "else",
	TokenEnable:      "enable",
	TokenFalse:       "false",
	TokenFn:          "fn",
	TokenFor:         "for",
	TokenIf:          "if",
	TokenLet:         "let",
	TokenLoop:        "loop",
	TokenOverride:    "override",
	TokenRequires:    "requires",
	TokenReturn:      "return",
	TokenStruct:      "struct",
	TokenSwitch:      "switch",
	TokenTrue:        "true",
	TokenVar:         "var",
	TokenWhile:       "while",
}

// String returns the source form of the token kind.
func (k TokenKind) String() string {
	if k < tokenKindCount && tokenNames[k] != "" {
		return tokenNames[k]
	}

	return "token"
}

// Token represents a lexical token.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Span   ir.Span
}
