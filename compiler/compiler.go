package compiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/ringtail/vm"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt compiler emitting bytecode directly
// ---------------------------------------------------------------------------

const (
	// maxLocals and maxUpvalues fit a 15-bit index plus the local/upvalue
	// high bit used in OP_CLOSURE descriptors.
	maxLocals    = 32767
	maxUpvalues  = 32767
	maxConstants = 1<<24 - 1
	maxBreaks    = 64
)

// CompileError reports how many compile errors were seen. The individual
// diagnostics have already been written to the error writer.
type CompileError struct {
	Count int
}

func (e *CompileError) Error() string {
	if e.Count == 1 {
		return "compile error"
	}
	return fmt.Sprintf("%d compile errors", e.Count)
}

// funcKind classifies the function a compiler context is building.
type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
	kindAnonymous
)

// local is a declared local variable. depth is -1 between declaration
// and definition, which blocks self-reference in the initializer.
type local struct {
	name       Token
	depth      int
	isCaptured bool
}

// upvalue describes one captured variable: an index into the enclosing
// function's locals (isLocal) or upvalues.
type upvalue struct {
	index   int
	isLocal bool
}

// loopContext tracks the innermost enclosing loop for break/continue.
type loopContext struct {
	enclosing  *loopContext
	start      int
	scopeDepth int
	breaks     []int
}

// funcCompiler is the per-function compiler context.
type funcCompiler struct {
	enclosing  *funcCompiler
	fn         *vm.ObjFunction
	kind       funcKind
	locals     []local
	upvalues   []upvalue
	scopeDepth int
	loop       *loopContext

	// lastOp tracks the most recently emitted opcode byte, as opposed to
	// operand bytes, so a trailing OP_RETURN can be detected without
	// misreading an operand that happens to share its value.
	lastOp    vm.Opcode
	hasLastOp bool

	// patchedEnd is the code length at the most recent jump patch. A
	// jump that targets the current end of code forbids dropping the
	// implicit return.
	patchedEnd int
}

// classCompiler tracks the innermost enclosing class for this/super.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// state threads the parser, the VM handle, and the compiler context
// stacks through every parse rule.
type state struct {
	p            *Parser
	machine      *vm.VM
	current      *funcCompiler
	currentClass *classCompiler
}

// Compile compiles source to a top-level function on the given VM.
// Diagnostics go to the VM's error writer; a non-nil error means no
// function was produced.
func Compile(source string, machine *vm.VM) (*vm.ObjFunction, error) {
	s := &state{
		p:       NewParser(source, machine.Stderr()),
		machine: machine,
	}
	s.beginCompiler(kindScript, "")

	for !s.p.match(TokenEOF) {
		s.declaration()
	}

	fn, _ := s.endCompiler()
	if s.p.hadError() {
		return nil, &CompileError{Count: s.p.ErrorCount()}
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Compiler contexts
// ---------------------------------------------------------------------------

// beginCompiler pushes a fresh context. The function under construction
// is pinned as a GC root until endCompiler.
func (s *state) beginCompiler(kind funcKind, name string) {
	c := &funcCompiler{
		enclosing:  s.current,
		kind:       kind,
		patchedEnd: -1,
	}
	c.fn = s.machine.NewFunction()
	s.machine.PushRoot(vm.ObjectValue(&c.fn.Obj))
	if kind != kindScript {
		c.fn.Name = s.machine.InternString(name)
	}

	// Slot zero belongs to the callee; methods see it as "this".
	slotZero := local{depth: 0}
	if kind == kindMethod || kind == kindInitializer {
		slotZero.name = Token{Type: TokenThis, Lexeme: "this"}
	}
	c.locals = append(c.locals, slotZero)

	s.current = c
}

// endCompiler finishes the current function and pops its context,
// returning the function and its upvalue descriptors.
func (s *state) endCompiler() (*vm.ObjFunction, []upvalue) {
	c := s.current

	// The implicit return is dropped only when the last instruction was
	// already a return and no patched jump lands on the code's end.
	if !(c.hasLastOp && c.lastOp == vm.OpReturn && c.patchedEnd != len(c.fn.Chunk.Code)) {
		s.emitReturn()
	}

	s.current = c.enclosing
	s.machine.PopRoot()
	return c.fn, c.upvalues
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (s *state) chunk() *vm.Chunk {
	return &s.current.fn.Chunk
}

func (s *state) codeLen() int {
	return len(s.current.fn.Chunk.Code)
}

func (s *state) emitByte(b byte) {
	s.chunk().Write(b, s.p.previous.Line)
}

func (s *state) emitOp(op vm.Opcode) {
	s.emitByte(byte(op))
	s.current.lastOp = op
	s.current.hasLastOp = true
}

func (s *state) emitVarOp(base vm.Opcode, index int) {
	s.chunk().WriteVarOp(base, index, s.p.previous.Line)
	s.current.lastOp = base
	s.current.hasLastOp = true
}

func (s *state) emitReturn() {
	if s.current.kind == kindInitializer {
		// an initializer always returns this
		s.emitVarOp(vm.OpGetLocal, 0)
	} else {
		s.emitOp(vm.OpNil)
	}
	s.emitOp(vm.OpReturn)
}

func (s *state) makeConstant(v vm.Value) int {
	index := s.chunk().AddConstant(v)
	if index > maxConstants {
		s.p.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return index
}

func (s *state) emitConstant(v vm.Value) {
	s.emitVarOp(vm.OpConstant, s.makeConstant(v))
}

// emitJump writes op with a placeholder displacement and returns the
// placeholder offset.
func (s *state) emitJump(op vm.Opcode) int {
	offset := s.chunk().EmitJump(op, s.p.previous.Line)
	s.current.lastOp = op
	s.current.hasLastOp = true
	return offset
}

// patchJump points the placeholder at the current end of code.
func (s *state) patchJump(placeholderOffset int) {
	displacement := s.codeLen() - (placeholderOffset + 2)
	if displacement > math.MaxInt16 {
		s.p.errorAtPrevious("Too much code to jump over.")
		return
	}
	s.chunk().PatchJump16(placeholderOffset, int16(displacement))
	s.current.patchedEnd = s.codeLen()
}

// emitLoop writes a backward jump to loopStart.
func (s *state) emitLoop(loopStart int) {
	displacement := loopStart - (s.codeLen() + 3)
	if displacement < math.MinInt16 {
		s.p.errorAtPrevious("Loop body too large.")
		return
	}
	s.emitOp(vm.OpJump)
	s.emitByte(byte(uint16(int16(displacement))))
	s.emitByte(byte(uint16(int16(displacement)) >> 8))
}

// emitPops drops count stack slots, batching through OP_POPN.
func (s *state) emitPops(count int) {
	for count >= 2 {
		n := count
		if n > 255 {
			n = 255
		}
		s.emitOp(vm.OpPopN)
		s.emitByte(byte(n))
		count -= n
	}
	if count == 1 {
		s.emitOp(vm.OpPop)
	}
}

// ---------------------------------------------------------------------------
// Scopes and variables
// ---------------------------------------------------------------------------

func (s *state) beginScope() {
	s.current.scopeDepth++
}

func (s *state) endScope() {
	c := s.current
	c.scopeDepth--

	pending := 0
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			s.emitPops(pending)
			pending = 0
			s.emitOp(vm.OpCloseUpvalue)
		} else {
			pending++
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
	s.emitPops(pending)
}

// discardLocals emits the pops and upvalue closes for every local above
// depth without changing the compiler's own bookkeeping. Used by break
// and continue, which leave the scope structure intact.
func (s *state) discardLocals(depth int) {
	c := s.current
	pending := 0
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth > depth; i-- {
		if c.locals[i].isCaptured {
			s.emitPops(pending)
			pending = 0
			s.emitOp(vm.OpCloseUpvalue)
		} else {
			pending++
		}
	}
	s.emitPops(pending)
}

func identifiersEqual(a, b Token) bool {
	return a.Lexeme == b.Lexeme
}

func (s *state) identifierConstant(name Token) int {
	str := s.machine.InternString(name.Lexeme)
	return s.makeConstant(vm.ObjectValue(&str.Obj))
}

func (s *state) addLocal(name Token) {
	c := s.current
	if len(c.locals) > maxLocals {
		s.p.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (s *state) declareVariable() {
	if s.current.scopeDepth == 0 {
		return
	}
	name := s.p.previous

	c := s.current
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			s.p.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}

	s.addLocal(name)
}

func (s *state) parseVariable(msg string) int {
	s.p.consume(TokenIdentifier, msg)
	s.declareVariable()
	if s.current.scopeDepth > 0 {
		return 0
	}
	return s.identifierConstant(s.p.previous)
}

func (s *state) markInitialized() {
	if s.current.scopeDepth == 0 {
		return
	}
	s.current.locals[len(s.current.locals)-1].depth = s.current.scopeDepth
}

func (s *state) defineVariable(global int) {
	if s.current.scopeDepth > 0 {
		s.markInitialized()
		return
	}
	s.emitVarOp(vm.OpDefineGlobal, global)
}

func (s *state) resolveLocal(c *funcCompiler, name Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				s.p.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (s *state) addUpvalue(c *funcCompiler, index int, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}

	if len(c.upvalues) >= maxUpvalues {
		s.p.errorAtPrevious("Too many closure variables in function.")
		return 0
	}

	c.upvalues = append(c.upvalues, upvalue{index: index, isLocal: isLocal})
	c.fn.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

// resolveUpvalue resolves name as a capture from an enclosing function.
// The owning local is flagged as captured before descriptor dedup, so
// the flag sticks even when the descriptor already exists.
func (s *state) resolveUpvalue(c *funcCompiler, name Token) int {
	if c.enclosing == nil {
		return -1
	}

	if localIndex := s.resolveLocal(c.enclosing, name); localIndex != -1 {
		c.enclosing.locals[localIndex].isCaptured = true
		return s.addUpvalue(c, localIndex, true)
	}

	if upvalueIndex := s.resolveUpvalue(c.enclosing, name); upvalueIndex != -1 {
		return s.addUpvalue(c, upvalueIndex, false)
	}

	return -1
}

// namedVariable compiles a read of name, or a write when an '=' follows
// in lvalue position. Resolution order: local, upvalue, global.
func (s *state) namedVariable(name Token, canAssign bool) {
	var getBase, setBase vm.Opcode

	arg := s.resolveLocal(s.current, name)
	if arg != -1 {
		getBase, setBase = vm.OpGetLocal, vm.OpSetLocal
	} else if arg = s.resolveUpvalue(s.current, name); arg != -1 {
		getBase, setBase = vm.OpGetUpvalue, vm.OpSetUpvalue
	} else {
		arg = s.identifierConstant(name)
		getBase, setBase = vm.OpGetGlobal, vm.OpSetGlobal
	}

	if canAssign && s.p.match(TokenEqual) {
		s.expression()
		s.emitVarOp(setBase, arg)
	} else {
		s.emitVarOp(getBase, arg)
	}
}

func syntheticToken(lexeme string) Token {
	return Token{Type: TokenIdentifier, Lexeme: lexeme}
}

// ---------------------------------------------------------------------------
// Pratt table
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(s *state, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is installed in init to break the initialization cycle between
// the table and the rule functions.
var rules [tokenTypeCount]parseRule

func init() {
	rules[TokenLeftParen] = parseRule{grouping, call, precCall}
	rules[TokenDot] = parseRule{nil, dot, precCall}
	rules[TokenMinus] = parseRule{unary, binary, precTerm}
	rules[TokenPlus] = parseRule{unary, binary, precTerm}
	rules[TokenSlash] = parseRule{nil, binary, precFactor}
	rules[TokenStar] = parseRule{nil, binary, precFactor}
	rules[TokenBang] = parseRule{unary, nil, precNone}
	rules[TokenBangEqual] = parseRule{nil, binary, precEquality}
	rules[TokenEqualEqual] = parseRule{nil, binary, precEquality}
	rules[TokenGreater] = parseRule{nil, binary, precComparison}
	rules[TokenGreaterEqual] = parseRule{nil, binary, precComparison}
	rules[TokenLess] = parseRule{nil, binary, precComparison}
	rules[TokenLessEqual] = parseRule{nil, binary, precComparison}
	rules[TokenIdentifier] = parseRule{variable, nil, precNone}
	rules[TokenString] = parseRule{stringLiteral, nil, precNone}
	rules[TokenNumber] = parseRule{number, nil, precNone}
	rules[TokenAnd] = parseRule{nil, and_, precAnd}
	rules[TokenOr] = parseRule{nil, or_, precOr}
	rules[TokenFalse] = parseRule{literal, nil, precNone}
	rules[TokenNil] = parseRule{literal, nil, precNone}
	rules[TokenTrue] = parseRule{literal, nil, precNone}
	rules[TokenFun] = parseRule{funExpression, nil, precNone}
	rules[TokenThis] = parseRule{this_, nil, precNone}
	rules[TokenSuper] = parseRule{super_, nil, precNone}
}

// parsePrecedence parses expressions at or above the given level. The
// canAssign flag reaches only the shallowest target position, so deeper
// positions report '=' as an invalid assignment target.
func (s *state) parsePrecedence(prec precedence) {
	s.p.advance()
	prefix := rules[s.p.previous.Type].prefix
	if prefix == nil {
		s.p.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(s, canAssign)

	for prec <= rules[s.p.current.Type].prec {
		s.p.advance()
		rules[s.p.previous.Type].infix(s, canAssign)
	}

	if canAssign && s.p.match(TokenEqual) {
		s.p.errorAtPrevious("Invalid assignment target.")
	}
}

func (s *state) expression() {
	s.parsePrecedence(precAssignment)
}

// ---------------------------------------------------------------------------
// Expression rules
// ---------------------------------------------------------------------------

func number(s *state, canAssign bool) {
	value, _ := strconv.ParseFloat(s.p.previous.Lexeme, 64)
	s.emitConstant(vm.NumberValue(value))
}

func stringLiteral(s *state, canAssign bool) {
	lexeme := s.p.previous.Lexeme
	str := s.machine.InternString(lexeme[1 : len(lexeme)-1])
	if str == nil {
		s.p.errorAtPrevious("String too long.")
		return
	}
	s.emitConstant(vm.ObjectValue(&str.Obj))
}

func literal(s *state, canAssign bool) {
	switch s.p.previous.Type {
	case TokenNil:
		s.emitOp(vm.OpNil)
	case TokenTrue:
		s.emitOp(vm.OpTrue)
	case TokenFalse:
		s.emitOp(vm.OpFalse)
	}
}

func grouping(s *state, canAssign bool) {
	s.expression()
	s.p.consume(TokenRightParen, "Expect ')' after expression.")
}

func unary(s *state, canAssign bool) {
	operator := s.p.previous.Type
	s.parsePrecedence(precUnary)

	switch operator {
	case TokenMinus:
		s.emitOp(vm.OpNegate)
	case TokenBang:
		s.emitOp(vm.OpNot)
	case TokenPlus:
		// prefix + is a no-op
	}
}

func binary(s *state, canAssign bool) {
	operator := s.p.previous.Type
	s.parsePrecedence(rules[operator].prec + 1)

	switch operator {
	case TokenPlus:
		s.emitOp(vm.OpAdd)
	case TokenMinus:
		s.emitOp(vm.OpSubtract)
	case TokenStar:
		s.emitOp(vm.OpMultiply)
	case TokenSlash:
		s.emitOp(vm.OpDivide)
	case TokenEqualEqual:
		s.emitOp(vm.OpEqual)
	case TokenBangEqual:
		s.emitOp(vm.OpEqual)
		s.emitOp(vm.OpNot)
	case TokenLess:
		s.emitOp(vm.OpLess)
	case TokenLessEqual:
		s.emitOp(vm.OpGreater)
		s.emitOp(vm.OpNot)
	case TokenGreater:
		s.emitOp(vm.OpGreater)
	case TokenGreaterEqual:
		s.emitOp(vm.OpLess)
		s.emitOp(vm.OpNot)
	}
}

func and_(s *state, canAssign bool) {
	endJump := s.emitJump(vm.OpJumpIfFalse)
	s.emitOp(vm.OpPop)
	s.parsePrecedence(precAnd)
	s.patchJump(endJump)
}

func or_(s *state, canAssign bool) {
	endJump := s.emitJump(vm.OpJumpIfTrue)
	s.emitOp(vm.OpPop)
	s.parsePrecedence(precOr)
	s.patchJump(endJump)
}

func variable(s *state, canAssign bool) {
	s.namedVariable(s.p.previous, canAssign)
}

func call(s *state, canAssign bool) {
	argCount := s.argumentList()
	s.emitOp(vm.OpCall)
	s.emitByte(byte(argCount))
}

func dot(s *state, canAssign bool) {
	s.p.consume(TokenIdentifier, "Expect property name after '.'.")
	name := s.identifierConstant(s.p.previous)

	if canAssign && s.p.match(TokenEqual) {
		s.expression()
		s.emitVarOp(vm.OpSetProperty, name)
	} else if s.p.match(TokenLeftParen) {
		argCount := s.argumentList()
		s.emitVarOp(vm.OpInvoke, name)
		s.emitByte(byte(argCount))
	} else {
		s.emitVarOp(vm.OpGetProperty, name)
	}
}

func this_(s *state, canAssign bool) {
	if s.currentClass == nil {
		s.p.errorAtPrevious("Can't use 'this' outside of a class.")
		return
	}
	s.namedVariable(s.p.previous, false)
}

func super_(s *state, canAssign bool) {
	if s.currentClass == nil {
		s.p.errorAtPrevious("Can't use 'super' outside of a class.")
	} else if !s.currentClass.hasSuperclass {
		s.p.errorAtPrevious("Can't use 'super' in a class with no superclass.")
	}

	s.p.consume(TokenDot, "Expect '.' after 'super'.")
	s.p.consume(TokenIdentifier, "Expect superclass method name.")
	name := s.identifierConstant(s.p.previous)

	s.namedVariable(syntheticToken("this"), false)
	s.namedVariable(syntheticToken("super"), false)
	s.emitVarOp(vm.OpGetSuper, name)
}

func funExpression(s *state, canAssign bool) {
	s.function(kindAnonymous, "anonymous")
}

func (s *state) argumentList() int {
	argCount := 0
	if !s.p.check(TokenRightParen) {
		for {
			s.expression()
			if argCount == 255 {
				s.p.errorAtPrevious("Can't have more than 255 arguments.")
			}
			argCount++
			if !s.p.match(TokenComma) {
				break
			}
		}
	}
	s.p.consume(TokenRightParen, "Expect ')' after arguments.")
	return argCount
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (s *state) declaration() {
	switch {
	case s.p.match(TokenClass):
		s.classDeclaration()
	case s.p.check(TokenFun) && s.p.checkNext(TokenIdentifier):
		s.p.advance()
		s.funDeclaration()
	case s.p.match(TokenVar):
		s.varDeclaration()
	default:
		s.statement()
	}

	s.p.synchronize()
}

// checkNext peeks one token past the lookahead without consuming
// anything; the lexer copy makes the probe side-effect free.
func (p *Parser) checkNext(t TokenType) bool {
	lexer := *p.lexer
	return lexer.NextToken().Type == t
}

func (s *state) varDeclaration() {
	global := s.parseVariable("Expect variable name.")

	if s.p.match(TokenEqual) {
		s.expression()
	} else {
		s.emitOp(vm.OpNil)
	}
	s.p.consume(TokenSemicolon, "Expect ';' after variable declaration.")

	s.defineVariable(global)
}

func (s *state) funDeclaration() {
	global := s.parseVariable("Expect function name.")
	name := s.p.previous.Lexeme
	// a function may refer to itself, so it is initialized up front
	s.markInitialized()
	s.function(kindFunction, name)
	s.defineVariable(global)
}

// function compiles a parameter list and body in a fresh context, then
// loads the result: zero-upvalue functions as a plain constant, others
// through OP_CLOSURE with one 16-bit descriptor per upvalue.
func (s *state) function(kind funcKind, name string) {
	s.beginCompiler(kind, name)
	s.beginScope()

	s.p.consume(TokenLeftParen, "Expect '(' after function name.")
	if !s.p.check(TokenRightParen) {
		for {
			s.current.fn.Arity++
			if s.current.fn.Arity > 255 {
				s.p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := s.parseVariable("Expect parameter name.")
			s.defineVariable(constant)
			if !s.p.match(TokenComma) {
				break
			}
		}
	}
	s.p.consume(TokenRightParen, "Expect ')' after parameters.")
	s.p.consume(TokenLeftBrace, "Expect '{' before function body.")
	s.block()

	fn, upvalues := s.endCompiler()

	if fn.UpvalueCount == 0 {
		s.emitVarOp(vm.OpConstant, s.makeConstant(vm.ObjectValue(&fn.Obj)))
		return
	}

	s.emitVarOp(vm.OpClosure, s.makeConstant(vm.ObjectValue(&fn.Obj)))
	for _, uv := range upvalues {
		descriptor := uv.index
		if uv.isLocal {
			descriptor |= 0x8000
		}
		s.emitByte(byte(descriptor))
		s.emitByte(byte(descriptor >> 8))
	}
}

func (s *state) method() {
	s.p.consume(TokenIdentifier, "Expect method name.")
	name := s.identifierConstant(s.p.previous)

	kind := kindMethod
	if s.p.previous.Lexeme == "init" {
		kind = kindInitializer
	}
	s.function(kind, s.p.previous.Lexeme)

	s.emitVarOp(vm.OpMethod, name)
}

func (s *state) classDeclaration() {
	s.p.consume(TokenIdentifier, "Expect class name.")
	className := s.p.previous
	nameConstant := s.identifierConstant(className)
	s.declareVariable()

	s.emitVarOp(vm.OpClass, nameConstant)
	s.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: s.currentClass}
	s.currentClass = cc

	if s.p.match(TokenLess) {
		s.p.consume(TokenIdentifier, "Expect superclass name.")
		variable(s, false)

		if identifiersEqual(className, s.p.previous) {
			s.p.errorAtPrevious("A class can't inherit from itself.")
		}

		// "super" becomes an ordinary scoped local holding the
		// superclass, resolvable from methods like any other variable.
		s.beginScope()
		s.addLocal(syntheticToken("super"))
		s.defineVariable(0)

		s.namedVariable(className, false)
		s.emitOp(vm.OpInherit)
		cc.hasSuperclass = true
	}

	s.namedVariable(className, false)
	s.p.consume(TokenLeftBrace, "Expect '{' before class body.")
	for !s.p.check(TokenRightBrace) && !s.p.check(TokenEOF) {
		s.method()
	}
	s.p.consume(TokenRightBrace, "Expect '}' after class body.")
	s.emitOp(vm.OpPop)

	if cc.hasSuperclass {
		s.endScope()
	}
	s.currentClass = cc.enclosing
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (s *state) statement() {
	switch {
	case s.p.match(TokenPrint):
		s.printStatement()
	case s.p.match(TokenIf):
		s.ifStatement()
	case s.p.match(TokenWhile):
		s.whileStatement()
	case s.p.match(TokenFor):
		s.forStatement()
	case s.p.match(TokenReturn):
		s.returnStatement()
	case s.p.match(TokenBreak):
		s.breakStatement()
	case s.p.match(TokenContinue):
		s.continueStatement()
	case s.p.match(TokenLeftBrace):
		s.beginScope()
		s.block()
		s.endScope()
	default:
		s.expressionStatement()
	}
}

func (s *state) block() {
	for !s.p.check(TokenRightBrace) && !s.p.check(TokenEOF) {
		s.declaration()
	}
	s.p.consume(TokenRightBrace, "Expect '}' after block.")
}

func (s *state) printStatement() {
	s.expression()
	s.p.consume(TokenSemicolon, "Expect ';' after value.")
	s.emitOp(vm.OpPrint)
}

func (s *state) expressionStatement() {
	s.expression()
	s.p.consume(TokenSemicolon, "Expect ';' after expression.")
	s.emitOp(vm.OpPop)
}

func (s *state) ifStatement() {
	s.p.consume(TokenLeftParen, "Expect '(' after 'if'.")
	s.expression()
	s.p.consume(TokenRightParen, "Expect ')' after condition.")

	thenJump := s.emitJump(vm.OpJumpIfFalse)
	s.emitOp(vm.OpPop)
	s.statement()

	elseJump := s.emitJump(vm.OpJump)
	s.patchJump(thenJump)
	s.emitOp(vm.OpPop)

	if s.p.match(TokenElse) {
		s.statement()
	}
	s.patchJump(elseJump)
}

func (s *state) whileStatement() {
	loopStart := s.codeLen()

	s.p.consume(TokenLeftParen, "Expect '(' after 'while'.")
	s.expression()
	s.p.consume(TokenRightParen, "Expect ')' after condition.")

	exitJump := s.emitJump(vm.OpJumpIfFalse)
	s.emitOp(vm.OpPop)

	loop := &loopContext{
		enclosing:  s.current.loop,
		start:      loopStart,
		scopeDepth: s.current.scopeDepth,
	}
	s.current.loop = loop

	s.statement()
	s.emitLoop(loopStart)

	s.patchJump(exitJump)
	s.emitOp(vm.OpPop)

	for _, breakJump := range loop.breaks {
		s.patchJump(breakJump)
	}
	s.current.loop = loop.enclosing
}

func (s *state) forStatement() {
	s.beginScope()
	s.p.consume(TokenLeftParen, "Expect '(' after 'for'.")

	if s.p.match(TokenSemicolon) {
		// no initializer
	} else if s.p.match(TokenVar) {
		s.varDeclaration()
	} else {
		s.expressionStatement()
	}

	loopStart := s.codeLen()

	exitJump := -1
	if !s.p.match(TokenSemicolon) {
		s.expression()
		s.p.consume(TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = s.emitJump(vm.OpJumpIfFalse)
		s.emitOp(vm.OpPop)
	}

	if !s.p.match(TokenRightParen) {
		// the increment runs after the body, so continue targets it
		bodyJump := s.emitJump(vm.OpJump)
		incrementStart := s.codeLen()
		s.expression()
		s.emitOp(vm.OpPop)
		s.p.consume(TokenRightParen, "Expect ')' after for clauses.")

		s.emitLoop(loopStart)
		loopStart = incrementStart
		s.patchJump(bodyJump)
	}

	loop := &loopContext{
		enclosing:  s.current.loop,
		start:      loopStart,
		scopeDepth: s.current.scopeDepth,
	}
	s.current.loop = loop

	s.statement()
	s.emitLoop(loopStart)

	if exitJump != -1 {
		s.patchJump(exitJump)
		s.emitOp(vm.OpPop)
	}

	for _, breakJump := range loop.breaks {
		s.patchJump(breakJump)
	}
	s.current.loop = loop.enclosing

	s.endScope()
}

func (s *state) returnStatement() {
	if s.current.kind == kindScript {
		s.p.errorAtPrevious("Can't return from top-level code.")
	}

	if s.p.match(TokenSemicolon) {
		s.emitReturn()
		return
	}

	if s.current.kind == kindInitializer {
		s.p.errorAtPrevious("Can't return a value from an initializer.")
	}
	s.expression()
	s.p.consume(TokenSemicolon, "Expect ';' after return value.")
	s.emitOp(vm.OpReturn)
}

func (s *state) breakStatement() {
	loop := s.current.loop
	if loop == nil {
		s.p.errorAtPrevious("Can't use 'break' outside of a loop.")
	}
	s.p.consume(TokenSemicolon, "Expect ';' after 'break'.")
	if loop == nil {
		return
	}

	if len(loop.breaks) == maxBreaks {
		s.p.errorAtPrevious("Too many 'break' statements in one loop.")
		return
	}

	s.discardLocals(loop.scopeDepth)
	loop.breaks = append(loop.breaks, s.emitJump(vm.OpJump))
}

func (s *state) continueStatement() {
	loop := s.current.loop
	if loop == nil {
		s.p.errorAtPrevious("Can't use 'continue' outside of a loop.")
	}
	s.p.consume(TokenSemicolon, "Expect ';' after 'continue'.")
	if loop == nil {
		return
	}

	s.discardLocals(loop.scopeDepth)
	s.emitLoop(loop.start)
}
