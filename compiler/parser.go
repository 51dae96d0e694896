package compiler

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Parser: token gating and error recovery
// ---------------------------------------------------------------------------

// Parser holds the token window over the lexer plus error state. The
// first error in a syntactic unit enters panic mode, which suppresses
// further reports until synchronize reaches a statement boundary.
type Parser struct {
	lexer      *Lexer
	current    Token
	previous   Token
	errorCount int
	panicMode  bool
	errOut     io.Writer
}

// NewParser creates a parser over src, reporting errors to errOut, and
// primes the token window.
func NewParser(src string, errOut io.Writer) *Parser {
	p := &Parser{lexer: NewLexer(src), errOut: errOut}
	p.advance()
	return p
}

// ErrorCount returns the number of reported errors.
func (p *Parser) ErrorCount() int { return p.errorCount }

// hadError reports whether any error has been seen.
func (p *Parser) hadError() bool { return p.errorCount > 0 }

// advance moves to the next token, reporting and skipping error tokens.
func (p *Parser) advance() {
	p.previous = p.current

	for {
		p.current = p.lexer.NextToken()
		if p.current.Type != TokenError {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

// check reports whether the current token has the given type.
func (p *Parser) check(t TokenType) bool {
	return p.current.Type == t
}

// match consumes the current token if it has the given type.
func (p *Parser) match(t TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

// consume requires the current token to have the given type, reporting
// msg otherwise.
func (p *Parser) consume(t TokenType, msg string) {
	if p.check(t) {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

// errorAt reports an error at a token unless panic mode is active.
func (p *Parser) errorAt(token Token, msg string) {
	if p.panicMode {
		return
	}

	fmt.Fprintf(p.errOut, "[line %d] Error", token.Line)
	if token.Type == TokenEOF {
		fmt.Fprintf(p.errOut, " at end")
	} else if token.Type == TokenError {
		// Nothing.
	} else {
		fmt.Fprintf(p.errOut, " at '%s'", token.Lexeme)
	}
	fmt.Fprintf(p.errOut, ": %s\n", msg)

	p.panicMode = true
	p.errorCount++
}

// errorAtPrevious reports an error at the just-consumed token.
func (p *Parser) errorAtPrevious(msg string) {
	p.errorAt(p.previous, msg)
}

// errorAtCurrent reports an error at the lookahead token.
func (p *Parser) errorAtCurrent(msg string) {
	p.errorAt(p.current, msg)
}

// synchronize leaves panic mode by skipping to the next statement
// boundary: just past a semicolon, or just before a statement keyword.
func (p *Parser) synchronize() {
	if !p.panicMode {
		return
	}
	p.panicMode = false

	for p.current.Type != TokenEOF {
		if p.previous.Type == TokenSemicolon {
			return
		}
		switch p.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor,
			TokenIf, TokenWhile, TokenPrint, TokenReturn:
			return
		}
		p.advance()
	}
}
