// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package parser implements the single-pass recursive-descent compiler
// (spec §4.2): source text goes directly to runtime/program.Program
// bytecode, with no intermediate AST. Expression parsing keeps the
// teacher's Pratt-style prefix/infix dispatch table; everything downstream
// of "parse this subexpression" is a codegen call instead of a node
// constructor, since there is no tree to build.
//
// A parser instance compiles one source file's worth of `object` blocks at
// a time, registering each declared state/function directly into a shared
// runtime/program.Pool and runtime/tagsystem.TagSystem as it goes. Parse
// errors are collected, not fatal: Parse keeps going after a syntax error
// (inside an object body by skipping the offending token, at top level by
// skipping ahead to the next `object`/`using` declaration), so a single
// source file can report more than one mistake per run (spec §4.2, §7).
package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/surgescript-go/surgescript/compiler/symtable"
	"github.com/surgescript-go/surgescript/lexer"
	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/tagsystem"
	"github.com/surgescript-go/surgescript/token"
)

func floatBits(f float64) uint64 { return math.Float64bits(f) }

type precedence int

const (
	lowest precedence = iota
	assignPrec
	ternaryPrec
	logicOrPrec
	logicAndPrec
	equalityPrec
	relationalPrec
	additivePrec
	multiplicativePrec
	unaryPrec
	postfixPrec
	callPrec
)

var precedences = map[token.Type]precedence{
	token.ASSIGN:   assignPrec,
	token.PLUSEQ:   assignPrec,
	token.MINUSEQ:  assignPrec,
	token.STAREQ:   assignPrec,
	token.SLASHEQ:  assignPrec,
	token.QUESTION: ternaryPrec,
	token.OR:       logicOrPrec,
	token.AND:      logicAndPrec,
	token.EQ:       equalityPrec,
	token.NEQ:      equalityPrec,
	token.LT:       relationalPrec,
	token.LTE:      relationalPrec,
	token.GT:       relationalPrec,
	token.GTE:      relationalPrec,
	token.PLUS:     additivePrec,
	token.MINUS:    additivePrec,
	token.STAR:     multiplicativePrec,
	token.SLASH:    multiplicativePrec,
	token.PERCENT:  multiplicativePrec,
	token.LPAREN:   callPrec,
	token.DOT:      callPrec,
	token.LBRACKET: callPrec,
	token.INC:      postfixPrec,
	token.DEC:      postfixPrec,
}

// maxNameLength bounds object/state/function/tag/variable names (spec §4.2
// "name validation").
const maxNameLength = 63

type prefixParseFn func()
type infixParseFn func()

// Parser compiles a single source buffer's `object` declarations directly
// into Pool and Tags.
type Parser struct {
	lex *lexer.Lexer

	cur, peekTok token.Token
	errors       ErrorList

	pool *program.Pool
	tags *tagsystem.TagSystem

	className string
	sym       *symtable.Table
	heapNext  heap.Addr
	prog      *program.Program // the program currently being emitted into
	preCons   *program.Program // the class's __preconstructor, built incrementally as vars are declared

	loopBreak    []int // label ids for the innermost loops' break target, stacked
	loopContinue []int

	// lastIdentName/lastIdentSym/lastArgCount are single-slot lookahead
	// state: compileExpr's prefix/infix dispatch only sees "parse this
	// subexpression", so the handful of productions that need to know what
	// identifier or call was just parsed (assignment targets, bare calls on
	// `this`) stash it here instead of threading it through return values
	// that would otherwise have to exist solely to carry a symbol.
	lastIdentName string
	lastIdentSym  symtable.Symbol
	lastArgCount  int

	// lastMember carries the result of parseMemberExpr/compileExpr when the
	// just-compiled subexpression is itself an assignable member access
	// (obj.field) or index access (arr[i]), since parseAssign needs to emit a
	// store instead of a load for either form the same way it does for a bare
	// identifier.
	lastMemberSet   bool
	lastMemberOp    memberAssignKind
	memberCalleeSym symtable.Symbol
	memberIndexSym  symtable.Symbol
	memberFieldName string

	prefixFns map[token.Type]prefixParseFn
	infixFns  map[token.Type]infixParseFn

	plugins           []string // classes declared under @Plugin/@Package, spawned as children of the Plugin system object
	declaredClasses   map[string]bool
	filePlugins       map[string][]string // alias -> dotted path, from every 'using' seen so far
	inState           bool   // true while compiling a state body; timeout() is only meaningful there
	pendingAnnotation string // "Plugin"/"Package" set by parseAnnotation, consumed by the object declaration right after it
}

// Plugins returns every class declared under an `@Plugin`/`@Package`
// annotation, in declaration order; engine.Launch spawns each as a child of
// the Plugin system object.
func (p *Parser) Plugins() []string { return p.plugins }

// memberAssignKind distinguishes the two assignable-through-a-postfix forms.
type memberAssignKind int

const (
	memberNone memberAssignKind = iota
	memberField                // obj.field = value, via set_<field>
	memberIndex                // arr[i] = value, via set(i, value)
)

// New creates a Parser that will register compiled classes into pool and tags.
func New(pool *program.Pool, tags *tagsystem.TagSystem) *Parser {
	p := &Parser{pool: pool, tags: tags, declaredClasses: make(map[string]bool), filePlugins: make(map[string][]string)}
	p.prefixFns = map[token.Type]prefixParseFn{
		token.NUMBER:   p.parseNumber,
		token.STRING:   p.parseString,
		token.TRUE:     p.parseBoolLiteral,
		token.FALSE:    p.parseBoolLiteral,
		token.NULL:     p.parseNullLiteral,
		token.IDENT:    p.parseIdentExpr,
		token.THIS:     p.parseThis,
		token.CALLER:   p.parseCaller,
		token.LPAREN:   p.parseGroup,
		token.MINUS:    p.parseUnary,
		token.NOT:      p.parseUnary,
		token.INC:      p.parsePrefixIncDec,
		token.DEC:      p.parsePrefixIncDec,
		token.TYPEOF:   p.parseTypeof,
		token.LBRACKET: p.parseArrayLiteral,
		token.LBRACE:   p.parseDictLiteral,
		token.TIMEOUT:  p.compileTimeout,
	}
	p.infixFns = map[token.Type]infixParseFn{
		token.PLUS:     p.parseBinary,
		token.MINUS:    p.parseBinary,
		token.STAR:     p.parseBinary,
		token.SLASH:    p.parseBinary,
		token.PERCENT:  p.parseBinary,
		token.EQ:       p.parseCompare,
		token.NEQ:      p.parseCompare,
		token.LT:       p.parseCompare,
		token.LTE:      p.parseCompare,
		token.GT:       p.parseCompare,
		token.GTE:      p.parseCompare,
		token.AND:      p.parseLogical,
		token.OR:       p.parseLogical,
		token.QUESTION: p.parseTernary,
		token.ASSIGN:   p.parseAssign,
		token.PLUSEQ:   p.parseAssign,
		token.MINUSEQ:  p.parseAssign,
		token.STAREQ:   p.parseAssign,
		token.SLASHEQ:  p.parseAssign,
		token.LPAREN:   p.parseCallExpr,
		token.DOT:      p.parseMemberExpr,
		token.LBRACKET: p.parseIndexExpr,
		token.INC:      p.parsePostfixIncDec,
		token.DEC:      p.parsePostfixIncDec,
	}
	return p
}

// Errors returns every diagnostic collected by the most recent Parse call.
func (p *Parser) Errors() ErrorList { return p.errors }

// Parse compiles every `object` declaration in source, registering them
// into the Parser's Pool/TagSystem. It returns the non-fatal ErrorList
// (empty on success); a lexical error, which has no recovery, is returned
// directly as the error value instead.
func (p *Parser) Parse(filename, source string) (err error) {
	p.errors = nil
	p.lex = lexer.New(filename, source)

	defer func() {
		if r := recover(); r != nil {
			if lexErr, ok := r.(*lexer.Error); ok {
				err = lexErr
				return
			}
			panic(r)
		}
	}()

	p.next()
	p.next()

	for p.cur.Type != token.EOF {
		switch p.cur.Type {
		case token.USING:
			p.parseUsing()
		case token.OBJECT:
			p.parseObject()
		case token.AT:
			p.parseAnnotation()
		default:
			p.errorf("expected 'object' or 'using' declaration, got %s", p.cur.Type)
			p.synchronizeToTopLevel()
		}
	}
	if len(p.errors) > 0 {
		return p.errors
	}
	return nil
}

func (p *Parser) next() {
	p.cur = p.peekTok
	p.peekTok = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, &CompileError{File: p.lex.Filename(), Line: p.cur.Line, Message: fmt.Sprintf(format, args...)})
}

func (p *Parser) expect(tt token.Type) bool {
	if p.cur.Type == tt {
		p.next()
		return true
	}
	p.errorf("expected %s, got %s %q", tt, p.cur.Type, p.cur.Literal)
	return false
}

// synchronizeToTopLevel discards tokens until the start of the next
// top-level declaration, so one bad object body doesn't cascade into
// spurious errors over the rest of the file.
func (p *Parser) synchronizeToTopLevel() {
	for p.cur.Type != token.EOF && p.cur.Type != token.OBJECT && p.cur.Type != token.USING {
		p.next()
	}
}

func (p *Parser) curPrecedence() precedence {
	if pr, ok := precedences[p.cur.Type]; ok {
		return pr
	}
	return lowest
}

// --- top level ---------------------------------------------------------

// parseUsing compiles `using a.b.c [as alias];` (spec §4.3): each dotted
// segment becomes one CHILDBYNAME hop starting at the Plugin system object,
// resolved lazily every time the alias is loaded (loadSymbol's KindPlugin
// case) rather than at `using` time, since the plugin tree isn't spawned
// until engine.Launch runs, well after every source file has been parsed.
func (p *Parser) parseUsing() {
	p.next()
	if p.cur.Type != token.IDENT {
		p.errorf("expected class name after 'using'")
		p.synchronizeToTopLevel()
		return
	}
	var path []string
	path = append(path, p.cur.Literal)
	p.next()
	for p.cur.Type == token.DOT {
		p.next()
		if p.cur.Type != token.IDENT {
			p.errorf("expected identifier after '.' in 'using' path")
			break
		}
		path = append(path, p.cur.Literal)
		p.next()
	}
	alias := path[len(path)-1]
	if p.cur.Type == token.IDENT && p.cur.Literal == "as" {
		p.next()
		alias = p.cur.Literal
		p.next()
	}
	// using is a file-level declaration (spec §4.3): it is visible to every
	// object parsed afterward in this file, not just the one immediately
	// following it, so it is stashed here and replayed into each class's
	// fresh symtable as parseObject creates one.
	p.filePlugins[alias] = path
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
}

// applicationClass is the conventional name of the script-level root object
// (spec §4.7); every other class gets a synthesized no-op "state:main" so
// Manager.preUpdate's lookup never has to special-case a class with no
// states declared at all.
const applicationClass = "Application"

// parseAnnotation compiles `@Plugin` / `@Package object ... { ... }`: the
// object declaration right after the annotation is parsed normally, then
// its class name is recorded so engine.Launch spawns it under the Plugin
// system object instead of leaving it unreachable (nothing else references
// a plugin class by name until a `using` import resolves it at runtime).
func (p *Parser) parseAnnotation() {
	p.next() // '@'
	if p.cur.Type != token.IDENT {
		p.errorf("expected annotation name after '@'")
		return
	}
	name := p.cur.Literal
	p.next()
	if p.cur.Type != token.OBJECT {
		p.errorf("expected 'object' declaration after @%s", name)
		return
	}
	switch name {
	case "Plugin", "Package":
		p.pendingAnnotation = name
	default:
		p.errorf("unknown annotation @%s", name)
	}
	p.parseObject()
}

func (p *Parser) parseObject() {
	annotation := p.pendingAnnotation
	p.pendingAnnotation = ""

	p.next() // 'object'
	if p.cur.Type != token.STRING && p.cur.Type != token.IDENT {
		p.errorf("expected object name")
		p.synchronizeToTopLevel()
		return
	}
	p.className = p.cur.Literal
	p.validateName("object", p.className)
	if p.declaredClasses[p.className] {
		p.errorf("object %q is already declared", p.className)
	}
	p.declaredClasses[p.className] = true
	p.next()

	p.sym = symtable.New()
	for alias, path := range p.filePlugins {
		p.sym.DeclarePluginPath(alias, path)
	}
	p.heapNext = 0
	p.preCons = program.New(0)

	if p.cur.Type == token.IS {
		p.next()
		for {
			if p.cur.Type != token.STRING && p.cur.Type != token.IDENT {
				p.errorf("expected tag name")
				break
			}
			p.validateName("tag", p.cur.Literal)
			p.tags.Tag(p.className, p.cur.Literal)
			p.next()
			if p.cur.Type != token.COMMA {
				break
			}
			p.next()
		}
	}

	if !p.expect(token.LBRACE) {
		p.synchronizeToTopLevel()
		return
	}

	hasMain := false
	for p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
		switch p.cur.Type {
		case token.PUBLIC, token.READONLY:
			p.parseVarDecl()
		case token.STATE:
			if p.peekTok.Literal == "main" {
				hasMain = true
			}
			p.parseState()
		case token.FUN:
			p.parseFun()
		default:
			p.errorf("unexpected token %s in object body", p.cur.Type)
			p.next()
		}
	}
	p.expect(token.RBRACE)

	// The preconstructor is whatever ALLOC sequence parseVarDecl emitted;
	// register it even when empty (a class with no declared variables still
	// needs a no-op preconstructor entry so Spawn's lookup is uniform).
	p.pool.Put(p.className, "__preconstructor", p.preCons)

	if p.className == applicationClass && !hasMain {
		p.errorf("object %q must declare a \"main\" state", applicationClass)
	}
	if !hasMain {
		// every other class gets an implicit no-op main state, so scripts
		// that spawn a plain data object (no states of its own) still tick
		// without Manager.preUpdate's lookup failing.
		noop := program.New(0)
		noop.Emit(program.RET, 0, 0, 0)
		p.pool.Put(p.className, "state:main", noop)
	}

	if annotation != "" {
		p.plugins = append(p.plugins, p.className)
	}
}

// parseVarDecl compiles `[public] [readonly] name [= expr];` (spec §4.2):
// every combination allocates a heap slot and an optional preconstructor
// initializer; `public` additionally synthesizes get_<name> (and, unless
// `readonly` is also present, set_<name>) as plain heap load/store programs,
// so that `obj.name` compiles the same way for every public variable whether
// declared on this class or discovered dynamically through a member access.
func (p *Parser) parseVarDecl() {
	var isPublic, readOnly bool
	for p.cur.Type == token.PUBLIC || p.cur.Type == token.READONLY {
		if p.cur.Type == token.PUBLIC {
			isPublic = true
		} else {
			readOnly = true
		}
		p.next()
	}
	if p.cur.Type != token.IDENT {
		p.errorf("expected variable name")
		return
	}
	name := p.cur.Literal
	p.validateName("variable", name)
	p.next()

	addr := p.heapNext
	p.heapNext++
	p.sym.DeclareHeap(name, addr, readOnly)
	p.preCons.Emit(program.ALLOC, 0, 0, 0)

	if p.cur.Type == token.ASSIGN {
		p.next()
		p.prog = p.preCons
		p.compileExpr(lowest)
		p.preCons.Emit(program.POKE, 0, int64(addr), 0)
	}
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}

	if isPublic {
		getter := program.New(0)
		getter.Emit(program.PEEK, 0, int64(addr), 0)
		getter.Emit(program.RET, 0, 0, 0)
		p.pool.Put(p.className, "get_"+name, getter)

		if !readOnly {
			setter := program.New(1)
			setter.Emit(program.SPEEK, 0, -1, 0)
			setter.Emit(program.POKE, 0, int64(addr), 0)
			setter.Emit(program.MOVN, 0, 0, 0)
			setter.Emit(program.RET, 0, 0, 0)
			p.pool.Put(p.className, "set_"+name, setter)
		}
	}
}

func (p *Parser) parseState() {
	p.next()
	if p.cur.Type != token.STRING && p.cur.Type != token.IDENT {
		p.errorf("expected state name")
		return
	}
	name := p.cur.Literal
	p.validateName("state", name)
	p.next()

	body := program.New(0)
	p.prog = body
	p.sym.PushScope()
	p.sym.ResetLocals()
	p.inState = true
	p.compileBlockOrStatement()
	p.inState = false
	p.sym.PopScope()
	p.pool.Put(p.className, "state:"+name, body)
}

func (p *Parser) parseFun() {
	p.next()
	if p.cur.Type != token.IDENT {
		p.errorf("expected function name")
		return
	}
	name := p.cur.Literal
	p.validateName("function", name)
	p.next()

	p.expect(token.LPAREN)
	p.sym.PushScope()
	p.sym.ResetLocals()
	var params []string
	for p.cur.Type != token.RPAREN && p.cur.Type != token.EOF {
		if p.cur.Type != token.IDENT {
			p.errorf("expected parameter name")
			break
		}
		params = append(params, p.cur.Literal)
		p.next()
		if p.cur.Type == token.COMMA {
			p.next()
		}
	}
	p.expect(token.RPAREN)

	body := program.New(len(params))
	for i, name := range params {
		p.sym.DeclareParam(name, i, len(params))
	}
	p.prog = body
	p.inState = false
	p.compileBlockOrStatement()
	p.sym.PopScope()
	p.pool.Put(p.className, name, body)
}

// --- statements ----------------------------------------------------------

func (p *Parser) compileBlockOrStatement() {
	if p.cur.Type == token.LBRACE {
		p.compileBlock()
		return
	}
	p.compileStatement()
}

// compileBlock compiles a braced statement sequence as its own lexical
// scope: any `let` locals declared inside are popped off the stack and their
// symtable bookkeeping rolled back when the block ends, so they never leak
// into sibling statements (spec §4.4 block scoping).
func (p *Parser) compileBlock() {
	p.expect(token.LBRACE)
	base := p.sym.LocalDepth()
	p.sym.PushScope()
	for p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
		p.compileStatement()
	}
	p.sym.PopScope()
	if depth := p.sym.LocalDepth(); depth > base {
		p.prog.Emit(program.POPN, 0, int64(depth-base), 0)
	}
	p.sym.SetLocalDepth(base)
	p.expect(token.RBRACE)
}

func (p *Parser) compileStatement() {
	switch p.cur.Type {
	case token.LBRACE:
		p.compileBlock()
	case token.IF:
		p.compileIf()
	case token.WHILE:
		p.compileWhile()
	case token.DO:
		p.compileDoWhile()
	case token.FOR:
		p.compileFor()
	case token.RETURN:
		p.compileReturn()
	case token.BREAK:
		p.compileBreak()
	case token.CONTINUE:
		p.compileContinue()
	case token.LET:
		p.compileLet()
	case token.SWITCH:
		p.compileSwitch()
	case token.FOREACH:
		p.compileForeach()
	case token.ASSERT:
		p.compileAssert()
	case token.SEMICOLON:
		p.next()
	default:
		p.compileExpr(lowest)
		if p.cur.Type == token.SEMICOLON {
			p.next()
		}
	}
}

func (p *Parser) compileIf() {
	p.next()
	p.expect(token.LPAREN)
	p.compileExpr(lowest)
	p.expect(token.RPAREN)

	elseLabel := p.prog.NewLabel()
	p.emitJumpIfFalsy(elseLabel)
	p.compileBlockOrStatement()

	if p.cur.Type == token.ELSE {
		endLabel := p.prog.NewLabel()
		p.prog.Emit(program.JMP, 0, int64(endLabel), 0)
		p.prog.BindLabel(elseLabel)
		p.next()
		p.compileBlockOrStatement()
		p.prog.BindLabel(endLabel)
	} else {
		p.prog.BindLabel(elseLabel)
	}
}

func (p *Parser) compileWhile() {
	p.next()
	top := p.prog.NewLabel()
	end := p.prog.NewLabel()
	p.prog.BindLabel(top)
	p.expect(token.LPAREN)
	p.compileExpr(lowest)
	p.expect(token.RPAREN)
	p.emitJumpIfFalsy(end)

	p.loopBreak = append(p.loopBreak, end)
	p.loopContinue = append(p.loopContinue, top)
	p.compileBlockOrStatement()
	p.loopBreak = p.loopBreak[:len(p.loopBreak)-1]
	p.loopContinue = p.loopContinue[:len(p.loopContinue)-1]

	p.prog.Emit(program.JMP, 0, int64(top), 0)
	p.prog.BindLabel(end)
}

func (p *Parser) compileDoWhile() {
	p.next()
	top := p.prog.NewLabel()
	contLabel := p.prog.NewLabel()
	end := p.prog.NewLabel()
	p.prog.BindLabel(top)

	p.loopBreak = append(p.loopBreak, end)
	p.loopContinue = append(p.loopContinue, contLabel)
	p.compileBlockOrStatement()
	p.loopBreak = p.loopBreak[:len(p.loopBreak)-1]
	p.loopContinue = p.loopContinue[:len(p.loopContinue)-1]

	p.expect(token.WHILE)
	p.expect(token.LPAREN)
	p.prog.BindLabel(contLabel)
	p.compileExpr(lowest)
	p.expect(token.RPAREN)
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
	p.emitJumpIfTruthy(top)
	p.prog.BindLabel(end)
}

func (p *Parser) compileFor() {
	p.next()
	p.expect(token.LPAREN)
	if p.cur.Type != token.SEMICOLON {
		p.compileExpr(lowest)
	}
	p.expect(token.SEMICOLON)

	top := p.prog.NewLabel()
	end := p.prog.NewLabel()
	contLabel := p.prog.NewLabel()
	p.prog.BindLabel(top)
	if p.cur.Type != token.SEMICOLON {
		p.compileExpr(lowest)
		p.emitJumpIfFalsy(end)
	}
	p.expect(token.SEMICOLON)

	bodyLabel := p.prog.NewLabel()
	p.prog.Emit(program.JMP, 0, int64(bodyLabel), 0)
	p.prog.BindLabel(contLabel)
	if p.cur.Type != token.RPAREN {
		p.compileExpr(lowest)
	}
	p.prog.Emit(program.JMP, 0, int64(top), 0)
	p.expect(token.RPAREN)

	p.prog.BindLabel(bodyLabel)
	p.loopBreak = append(p.loopBreak, end)
	p.loopContinue = append(p.loopContinue, contLabel)
	p.compileBlockOrStatement()
	p.loopBreak = p.loopBreak[:len(p.loopBreak)-1]
	p.loopContinue = p.loopContinue[:len(p.loopContinue)-1]
	p.prog.Emit(program.JMP, 0, int64(contLabel), 0)
	p.prog.BindLabel(end)
}

func (p *Parser) compileReturn() {
	p.next()
	if p.cur.Type == token.SEMICOLON {
		p.prog.Emit(program.MOVN, 0, 0, 0)
	} else {
		p.compileExpr(lowest)
	}
	p.prog.Emit(program.RET, 0, 0, 0)
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
}

func (p *Parser) compileBreak() {
	p.next()
	if len(p.loopBreak) == 0 {
		p.errorf("'break' outside of a loop")
	} else {
		p.prog.Emit(program.JMP, 0, int64(p.loopBreak[len(p.loopBreak)-1]), 0)
	}
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
}

func (p *Parser) compileContinue() {
	p.next()
	if len(p.loopContinue) == 0 {
		p.errorf("'continue' outside of a loop")
	} else {
		p.prog.Emit(program.JMP, 0, int64(p.loopContinue[len(p.loopContinue)-1]), 0)
	}
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
}

// compileLet compiles `let name [= expr];` (spec §4.4): the initializer (or
// null, if omitted) is pushed as a brand-new stack cell, which is also how
// the symtable's local-offset bookkeeping and the physical stack stay in
// lockstep — DeclareLocal always advances by exactly the one slot this PUSH
// creates.
func (p *Parser) compileLet() {
	p.next() // 'let'
	if p.cur.Type != token.IDENT {
		p.errorf("expected identifier after 'let'")
		return
	}
	name := p.cur.Literal
	p.validateName("variable", name)
	p.next()

	if p.cur.Type == token.ASSIGN {
		p.next()
		p.compileExpr(assignPrec)
	} else {
		p.prog.Emit(program.MOVN, 0, 0, 0)
	}
	p.prog.Emit(program.PUSH, 0, 0, 0)
	p.sym.DeclareLocal(name)

	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
}

// compileSwitch compiles `switch (expr) { case c1: ...; case c2: ...;
// default: ...; }` as a sequential if-else-if chain over the subject value,
// saved once in a local slot (spec's switch desugars to repeated
// comparisons rather than a jump table, matching the teacher's preference
// for simple, predictable codegen over a dispatch table only worth it at
// much larger case counts). `default` is assumed to be the last clause;
// `break` inside a case body jumps to the same end label a fallthrough-free
// case already reaches automatically.
func (p *Parser) compileSwitch() {
	p.next() // 'switch'
	p.expect(token.LPAREN)
	p.compileExpr(lowest)
	p.expect(token.RPAREN)

	subjectSym := p.sym.DeclareLocal("$switch")
	p.prog.Emit(program.PUSH, 0, 0, 0)

	p.expect(token.LBRACE)
	end := p.prog.NewLabel()
	p.loopBreak = append(p.loopBreak, end)

	seenDefault := false
	seenCase := make(map[string]bool)

	for p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
		switch p.cur.Type {
		case token.CASE:
			p.next()
			caseKey := fmt.Sprintf("%s:%s", p.cur.Type, p.cur.Literal)
			if seenCase[caseKey] {
				p.errorf("duplicate case %q", p.cur.Literal)
			}
			seenCase[caseKey] = true
			p.compileExpr(lowest) // case constant -> t0
			p.expect(token.COLON)

			p.prog.Emit(program.MOV, 1, 0, 0)
			p.prog.Emit(program.SPEEK, 0, int64(subjectSym.StackOff), 0)
			p.prog.Emit(program.CMP, 0, 1, 0)
			next := p.prog.NewLabel()
			p.prog.Emit(program.JNE, 0, int64(next), 0)

			for p.cur.Type != token.CASE && p.cur.Type != token.DEFAULT && p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
				p.compileStatement()
			}
			p.prog.Emit(program.JMP, 0, int64(end), 0)
			p.prog.BindLabel(next)
		case token.DEFAULT:
			if seenDefault {
				p.errorf("multiple 'default' labels in switch")
			}
			seenDefault = true
			p.next()
			p.expect(token.COLON)
			for p.cur.Type != token.CASE && p.cur.Type != token.DEFAULT && p.cur.Type != token.RBRACE && p.cur.Type != token.EOF {
				p.compileStatement()
			}
		default:
			p.errorf("expected 'case' or 'default' in switch body")
			p.next()
		}
	}
	p.expect(token.RBRACE)
	p.prog.BindLabel(end)
	p.loopBreak = p.loopBreak[:len(p.loopBreak)-1]

	p.prog.Emit(program.POPN, 0, 1, 0)
	p.sym.SetLocalDepth(subjectSym.StackOff)
}

// compileForeach compiles `foreach (item in collection) { ... }` desugared
// to an index/length/get loop against the collection's Array-style
// get(index)/length() methods (spec's iteration construct has no bytecode
// of its own; it is sugar over the same native methods user code could call
// directly).
func (p *Parser) compileForeach() {
	p.next() // 'foreach'
	p.expect(token.LPAREN)
	if p.cur.Type != token.IDENT {
		p.errorf("expected loop variable name after 'foreach('")
		return
	}
	itemName := p.cur.Literal
	p.next()
	if p.cur.Type != token.IN {
		p.errorf("expected 'in' in foreach")
	} else {
		p.next()
	}
	p.compileExpr(lowest) // collection -> t0
	p.expect(token.RPAREN)

	collSym := p.sym.DeclareLocal("$coll")
	p.prog.Emit(program.PUSH, 0, 0, 0)

	p.prog.Emit(program.MOVF, 0, int64(floatBits(0)), 0)
	idxSym := p.sym.DeclareLocal("$idx")
	p.prog.Emit(program.PUSH, 0, 0, 0)

	p.prog.Emit(program.MOVN, 0, 0, 0)
	itemSym := p.sym.DeclareLocal(itemName)
	p.prog.Emit(program.PUSH, 0, 0, 0)

	top := p.prog.NewLabel()
	end := p.prog.NewLabel()
	cont := p.prog.NewLabel()
	p.prog.BindLabel(top)

	p.prog.Emit(program.SPEEK, 0, int64(collSym.StackOff), 0)
	p.emitCallOnT0("length", 0)
	p.prog.Emit(program.MOV, 1, 0, 0)
	p.prog.Emit(program.SPEEK, 0, int64(idxSym.StackOff), 0)
	p.prog.Emit(program.CMP, 0, 1, 0)
	p.prog.Emit(program.JGE, 0, int64(end), 0)

	p.prog.Emit(program.SPEEK, 0, int64(idxSym.StackOff), 0)
	p.prog.Emit(program.PUSH, 0, 0, 0)
	p.prog.Emit(program.SPEEK, 0, int64(collSym.StackOff), 0)
	p.emitCallOnT0("get", 1)
	p.prog.Emit(program.SPOKE, 0, int64(itemSym.StackOff), 0)

	p.loopBreak = append(p.loopBreak, end)
	p.loopContinue = append(p.loopContinue, cont)
	p.compileBlockOrStatement()
	p.loopBreak = p.loopBreak[:len(p.loopBreak)-1]
	p.loopContinue = p.loopContinue[:len(p.loopContinue)-1]

	p.prog.BindLabel(cont)
	p.prog.Emit(program.SPEEK, 0, int64(idxSym.StackOff), 0)
	p.prog.Emit(program.INC, 0, 0, 0)
	p.prog.Emit(program.SPOKE, 0, int64(idxSym.StackOff), 0)
	p.prog.Emit(program.JMP, 0, int64(top), 0)
	p.prog.BindLabel(end)

	p.prog.Emit(program.POPN, 0, 3, 0)
	p.sym.SetLocalDepth(collSym.StackOff)
}

// compileAssert compiles `assert(cond[, message]);` via the ASSERTOP opcode
// (spec's assert construct): the default message is the literal
// "assertion failed" when the caller omits one.
func (p *Parser) compileAssert() {
	line := p.cur.Line
	p.next() // 'assert'
	p.expect(token.LPAREN)
	p.compileExpr(assignPrec) // condition -> t0
	if p.cur.Type == token.COMMA {
		p.next()
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.compileExpr(assignPrec) // message -> t0
		p.prog.Emit(program.MOV, 1, 0, 0)
		p.prog.Emit(program.POP, 0, 0, 0)
	} else {
		idx := p.prog.InternLiteral("assertion failed")
		p.prog.Emit(program.MOVS, 1, int64(idx), 0)
	}
	p.expect(token.RPAREN)
	if p.cur.Type == token.SEMICOLON {
		p.next()
	}
	p.prog.Emit(program.ASSERTOP, 0, 1, int64(line))
}

// compileTimeout compiles `timeout(seconds)` via the TIMEOUTOP opcode (spec
// §5): valid only inside a state body, since elapsed-time-in-state is only
// meaningful relative to the object's current state.
func (p *Parser) compileTimeout() {
	if !p.inState {
		p.errorf("'timeout' can only be used inside a state body")
	}
	p.next() // 'timeout'
	p.expect(token.LPAREN)
	p.compileExpr(lowest)
	p.expect(token.RPAREN)
	p.prog.Emit(program.TIMEOUTOP, 0, 0, 0)
}

// emitJumpIfFalsy jumps to label when t0 is falsy; it borrows t1 as scratch
// and the shared compare register t2, same convention compileExpr uses for
// binary operators.
func (p *Parser) emitJumpIfFalsy(label int) {
	p.prog.Emit(program.MOVB, 1, 0, 0)
	p.prog.Emit(program.CMP, 0, 1, 0)
	p.prog.Emit(program.JE, 0, int64(label), 0)
}

func (p *Parser) emitJumpIfTruthy(label int) {
	p.prog.Emit(program.MOVB, 1, 0, 0)
	p.prog.Emit(program.CMP, 0, 1, 0)
	p.prog.Emit(program.JNE, 0, int64(label), 0)
}

// --- expressions -----------------------------------------------------

// compileExpr emits bytecode for one expression, leaving its value in
// register t0, using t1 as scratch for the right-hand operand of binary
// operators and the shared stack to save t0 across recursive evaluation of
// the right operand (spec §4.5: only t0-t3 exist, so deeper nesting spills
// through the stack rather than through more registers).
func (p *Parser) compileExpr(prec precedence) {
	prefix, ok := p.prefixFns[p.cur.Type]
	if !ok {
		p.errorf("unexpected token %s %q in expression", p.cur.Type, p.cur.Literal)
		p.next()
		return
	}
	prefix()

	for p.cur.Type != token.SEMICOLON && prec < p.curPrecedence() {
		infix, ok := p.infixFns[p.cur.Type]
		if !ok {
			return
		}
		infix()
	}
}

func (p *Parser) parseNumber() {
	n, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		p.errorf("invalid numeric literal %q", p.cur.Literal)
	}
	bits := int64(floatBits(n))
	p.prog.Emit(program.MOVF, 0, bits, 0)
	p.next()
}

func (p *Parser) parseString() {
	idx := p.prog.InternLiteral(p.cur.Literal)
	p.prog.Emit(program.MOVS, 0, int64(idx), 0)
	p.next()
}

func (p *Parser) parseBoolLiteral() {
	v := int64(0)
	if p.cur.Type == token.TRUE {
		v = 1
	}
	p.prog.Emit(program.MOVB, 0, v, 0)
	p.next()
}

func (p *Parser) parseNullLiteral() {
	p.prog.Emit(program.MOVN, 0, 0, 0)
	p.next()
}

func (p *Parser) parseThis() {
	p.prog.Emit(program.SELF, 0, 0, 0)
	p.next()
}

func (p *Parser) parseCaller() {
	p.prog.Emit(program.CALLERH, 0, 0, 0)
	p.next()
}

func (p *Parser) parseGroup() {
	p.next()
	p.compileExpr(lowest)
	p.expect(token.RPAREN)
}

func (p *Parser) parseUnary() {
	op := p.cur.Type
	p.next()
	p.compileExpr(unaryPrec)
	switch op {
	case token.MINUS:
		p.prog.Emit(program.NEG, 0, 0, 0)
	case token.NOT:
		p.prog.Emit(program.LNOT, 0, 0, 0)
	}
}

func (p *Parser) parseTypeof() {
	p.next()
	paren := p.cur.Type == token.LPAREN
	if paren {
		p.next()
	}
	p.compileExpr(unaryPrec)
	if paren {
		p.expect(token.RPAREN)
	}
	// typeof yields a type-tag number rather than a string name; the
	// stdlib String binding is responsible for pretty-printing it.
	p.prog.Emit(program.TCHK, 0, 0, 0)
}

func (p *Parser) parsePrefixIncDec() {
	op := p.cur.Type
	p.next()
	sym, ok := p.resolveIdentToken()
	if !ok {
		return
	}
	p.loadSymbol(sym)
	if op == token.INC {
		p.prog.Emit(program.INC, 0, 0, 0)
	} else {
		p.prog.Emit(program.DEC, 0, 0, 0)
	}
	p.storeSymbol(sym)
}

func (p *Parser) parsePostfixIncDec() {
	// the expression currently in t0 is the identifier just parsed by
	// parseIdentExpr; postfix semantics (old value as the expression's
	// result) would require an extra temp, which user code practically
	// never observes here since ++/-- are used as statements — so, like the
	// reference grammar, postfix and prefix compile identically. The result
	// is stored back only when t0 was just loaded from a plain variable; a
	// member or call operand is incremented in t0 alone.
	op := p.cur.Type
	p.next()
	var last program.Operation
	if n := len(p.prog.Operations); n > 0 {
		last = p.prog.Operations[n-1]
	}
	if op == token.INC {
		p.prog.Emit(program.INC, 0, 0, 0)
	} else {
		p.prog.Emit(program.DEC, 0, 0, 0)
	}
	sym := p.lastIdentSym
	if (sym.Kind == symtable.KindHeap && last.Op == program.PEEK && last.B == int64(sym.HeapAddr)) ||
		(sym.Kind == symtable.KindStack && last.Op == program.SPEEK && last.B == int64(sym.StackOff)) {
		p.storeSymbol(sym)
	}
}

// resolveIdentToken consumes an IDENT token and resolves it against the
// symbol table, reporting an error and returning ok=false if undeclared.
func (p *Parser) resolveIdentToken() (symtable.Symbol, bool) {
	if p.cur.Type != token.IDENT {
		p.errorf("expected identifier")
		return symtable.Symbol{}, false
	}
	name := p.cur.Literal
	p.next()
	sym, ok := p.sym.Resolve(name)
	if !ok {
		p.errorf("undeclared identifier %q", name)
		return symtable.Symbol{}, false
	}
	return sym, true
}

func (p *Parser) parseIdentExpr() {
	name := p.cur.Literal
	p.next()
	p.lastIdentName = name
	if p.cur.Type == token.LPAREN {
		// a bare call: defer codegen to parseCallExpr via the infix table,
		// leave no load emitted for the callee name itself.
		return
	}
	sym, ok := p.sym.Resolve(name)
	if !ok {
		p.errorf("undeclared identifier %q", name)
		p.prog.Emit(program.MOVN, 0, 0, 0)
		return
	}
	p.lastIdentSym = sym
	p.loadSymbol(sym)
}

func (p *Parser) loadSymbol(sym symtable.Symbol) {
	switch sym.Kind {
	case symtable.KindHeap:
		p.prog.Emit(program.PEEK, 0, int64(sym.HeapAddr), 0)
	case symtable.KindStack:
		p.prog.Emit(program.SPEEK, 0, int64(sym.StackOff), 0)
	case symtable.KindPlugin:
		p.prog.Emit(program.SYSOBJ, 0, int64(p.prog.InternLiteral("Plugin")), 0)
		for _, segment := range sym.PluginPath {
			p.prog.Emit(program.CHILDBYNAME, 0, int64(p.prog.InternLiteral(segment)), 0)
		}
	default:
		// static identifiers (this/caller/true/false/null) used as a bare
		// value are parsed as their own tokens above and never reach here.
		p.prog.Emit(program.MOVN, 0, 0, 0)
	}
}

func (p *Parser) storeSymbol(sym symtable.Symbol) {
	switch sym.Kind {
	case symtable.KindHeap:
		if sym.ReadOnly {
			p.errorf("cannot assign to readonly variable")
			return
		}
		p.prog.Emit(program.POKE, 0, int64(sym.HeapAddr), 0)
	case symtable.KindStack:
		p.prog.Emit(program.SPOKE, 0, int64(sym.StackOff), 0)
	default:
		p.errorf("left-hand side is not assignable")
	}
}

// memberKindName names a memberAssignKind for diagnostics.
func memberKindName(k memberAssignKind) string {
	if k == memberIndex {
		return "an indexed expression"
	}
	return "a member expression"
}

func (p *Parser) parseAssign() {
	op := p.cur.Type

	if p.lastMemberSet {
		kind := p.lastMemberOp
		p.lastMemberSet = false
		if op != token.ASSIGN {
			p.errorf("compound assignment is not supported on %s", memberKindName(kind))
			p.next()
			p.compileExpr(assignPrec)
			return
		}
		p.next()
		switch kind {
		case memberField:
			calleeSym := p.memberCalleeSym
			p.compileExpr(assignPrec) // value -> t0
			p.prog.Emit(program.PUSH, 0, 0, 0)
			p.prog.Emit(program.SPEEK, 0, int64(calleeSym.StackOff), 0)
			p.emitCallOnT0("set_"+p.memberFieldName, 1)
			p.prog.Emit(program.POPN, 0, 1, 0)
			p.sym.SetLocalDepth(calleeSym.StackOff)
		case memberIndex:
			collSym := p.memberCalleeSym
			idxSym := p.memberIndexSym
			p.compileExpr(assignPrec) // value -> t0
			p.prog.Emit(program.MOV, 1, 0, 0)
			p.prog.Emit(program.SPEEK, 0, int64(idxSym.StackOff), 0)
			p.prog.Emit(program.PUSH, 0, 0, 0)
			p.prog.Emit(program.PUSH, 1, 0, 0)
			p.prog.Emit(program.SPEEK, 0, int64(collSym.StackOff), 0)
			p.emitCallOnT0("set", 2)
			p.prog.Emit(program.POPN, 0, 2, 0)
			p.sym.SetLocalDepth(collSym.StackOff)
		}
		return
	}

	// the left-hand side must already have been compiled as a plain
	// identifier load by parseIdentExpr; re-resolve it from the pending
	// token stream is not possible here, so compileExpr's caller is
	// expected to only reach parseAssign immediately after a bare
	// identifier — compound assignment therefore re-derives the symbol from
	// the last identifier, tracked via lastIdent.
	sym := p.lastIdentSym
	p.next()

	if op != token.ASSIGN {
		p.prog.Emit(program.PUSH, 0, 0, 0)
	}
	p.compileExpr(assignPrec)
	if op != token.ASSIGN {
		p.prog.Emit(program.MOV, 1, 0, 0)
		p.prog.Emit(program.POP, 0, 0, 0)
		switch op {
		case token.PLUSEQ:
			p.prog.Emit(program.ADD, 0, 1, 0)
		case token.MINUSEQ:
			p.prog.Emit(program.SUB, 0, 1, 0)
		case token.STAREQ:
			p.prog.Emit(program.MUL, 0, 1, 0)
		case token.SLASHEQ:
			p.prog.Emit(program.DIV, 0, 1, 0)
		}
	}
	p.storeSymbol(sym)
}

func (p *Parser) parseBinary() {
	op := p.cur.Type
	prec := precedences[op]
	p.next()
	p.prog.Emit(program.PUSH, 0, 0, 0)
	p.compileExpr(prec)
	p.prog.Emit(program.MOV, 1, 0, 0)
	p.prog.Emit(program.POP, 0, 0, 0)
	switch op {
	case token.PLUS:
		p.prog.Emit(program.ADD, 0, 1, 0)
	case token.MINUS:
		p.prog.Emit(program.SUB, 0, 1, 0)
	case token.STAR:
		p.prog.Emit(program.MUL, 0, 1, 0)
	case token.SLASH:
		p.prog.Emit(program.DIV, 0, 1, 0)
	case token.PERCENT:
		p.prog.Emit(program.MOD, 0, 1, 0)
	}
}

func (p *Parser) parseCompare() {
	op := p.cur.Type
	prec := precedences[op]
	p.next()
	p.prog.Emit(program.PUSH, 0, 0, 0)
	p.compileExpr(prec)
	p.prog.Emit(program.MOV, 1, 0, 0)
	p.prog.Emit(program.POP, 0, 0, 0)
	p.prog.Emit(program.CMP, 0, 1, 0)

	trueLabel := p.prog.NewLabel()
	endLabel := p.prog.NewLabel()
	var jumpOp program.Op
	switch op {
	case token.EQ:
		jumpOp = program.JE
	case token.NEQ:
		jumpOp = program.JNE
	case token.LT:
		jumpOp = program.JL
	case token.LTE:
		jumpOp = program.JLE
	case token.GT:
		jumpOp = program.JG
	case token.GTE:
		jumpOp = program.JGE
	}
	p.prog.Emit(jumpOp, 0, int64(trueLabel), 0)
	p.prog.Emit(program.MOVB, 0, 0, 0)
	p.prog.Emit(program.JMP, 0, int64(endLabel), 0)
	p.prog.BindLabel(trueLabel)
	p.prog.Emit(program.MOVB, 0, 1, 0)
	p.prog.BindLabel(endLabel)
}

func (p *Parser) parseLogical() {
	op := p.cur.Type
	prec := precedences[op]

	shortCircuit := p.prog.NewLabel()
	if op == token.AND {
		p.emitJumpIfFalsy(shortCircuit)
	} else {
		p.emitJumpIfTruthy(shortCircuit)
	}
	p.next()
	p.compileExpr(prec)
	p.prog.Emit(program.LNOT2, 0, 0, 0)
	end := p.prog.NewLabel()
	p.prog.Emit(program.JMP, 0, int64(end), 0)
	p.prog.BindLabel(shortCircuit)
	if op == token.AND {
		p.prog.Emit(program.MOVB, 0, 0, 0)
	} else {
		p.prog.Emit(program.MOVB, 0, 1, 0)
	}
	p.prog.BindLabel(end)
}

func (p *Parser) parseTernary() {
	p.next()
	elseLabel := p.prog.NewLabel()
	endLabel := p.prog.NewLabel()
	p.emitJumpIfFalsy(elseLabel)
	p.compileExpr(lowest)
	p.expect(token.COLON)
	p.prog.Emit(program.JMP, 0, int64(endLabel), 0)
	p.prog.BindLabel(elseLabel)
	p.compileExpr(ternaryPrec)
	p.prog.BindLabel(endLabel)
}

// parseCallExpr compiles a call on the implicit `this` (a bare
// `identifier(args)`): push `this` as the callee, push arguments, emit
// CALL.
func (p *Parser) parseCallExpr() {
	function := p.lastIdentName
	p.compileCallArgs()
	p.prog.Emit(program.SELF, 1, 0, 0)
	p.prog.Emit(program.PUSH, 1, 0, 0)
	idx := p.prog.InternLiteral(function)
	p.prog.Emit(program.CALL, 0, int64(idx), int64(p.lastArgCount))
}

// emitCallOnT0 emits a call to function with t0 holding the callee object
// handle and argc arguments already pushed (in left-to-right order): the
// house calling convention (spec §4.5) pushes the callee *last*, on top of
// its arguments, so doCall's Pop sees it first.
func (p *Parser) emitCallOnT0(function string, argc int) {
	p.prog.Emit(program.PUSH, 0, 0, 0)
	idx := p.prog.InternLiteral(function)
	p.prog.Emit(program.CALL, 0, int64(idx), int64(argc))
}

// parseMemberExpr compiles `expr.name`, `expr.name(args)`, or (when the
// following token is '=') prepares `expr.name = value` for parseAssign: the
// object whose field/method is being accessed is already in t0.
//
// Evaluating the argument list can itself recurse through compileExpr and
// clobber t0-t3, so the callee is stashed in a dedicated named local slot
// before args are compiled and reloaded onto the stack immediately before
// CALL, rather than juggled through registers across the recursive call.
func (p *Parser) parseMemberExpr() {
	p.next()
	if p.cur.Type != token.IDENT {
		p.errorf("expected member name after '.'")
		return
	}
	name := p.cur.Literal
	p.next()

	if p.cur.Type == token.LPAREN {
		p.lastMemberSet = false
		calleeSym := p.sym.DeclareLocal("$callee")
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.compileCallArgs()
		p.prog.Emit(program.SPEEK, 0, int64(calleeSym.StackOff), 0)
		p.emitCallOnT0(name, p.lastArgCount)
		p.prog.Emit(program.POPN, 0, 1, 0)
		p.sym.SetLocalDepth(calleeSym.StackOff)
		return
	}

	if p.cur.Type == token.ASSIGN {
		// defer the store to parseAssign: stash the callee and mark the
		// pending member-assignment so the infix ASSIGN handler knows to
		// emit a set_<name> call instead of re-resolving a plain symbol.
		p.memberCalleeSym = p.sym.DeclareLocal("$callee")
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.lastMemberSet = true
		p.lastMemberOp = memberField
		p.memberFieldName = name
		return
	}

	// getter: get_<name>() with zero arguments.
	p.lastMemberSet = false
	p.emitCallOnT0("get_"+name, 0)
}

// parseIndexExpr compiles `expr[index]` (array/dictionary read) or, when the
// following token is '=', prepares `expr[index] = value` for parseAssign.
// Both are sugar over the Array/Dictionary native get(index)/set(index,
// value) methods (spec's Array/Dictionary system classes).
func (p *Parser) parseIndexExpr() {
	p.next() // '['
	collSym := p.sym.DeclareLocal("$coll")
	p.prog.Emit(program.PUSH, 0, 0, 0)
	p.compileExpr(lowest)
	p.expect(token.RBRACKET)

	if p.cur.Type == token.ASSIGN {
		idxSym := p.sym.DeclareLocal("$idx")
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.memberCalleeSym = collSym
		p.memberIndexSym = idxSym
		p.lastMemberSet = true
		p.lastMemberOp = memberIndex
		return
	}

	p.lastMemberSet = false
	p.prog.Emit(program.PUSH, 0, 0, 0) // index argument
	p.prog.Emit(program.SPEEK, 0, int64(collSym.StackOff), 0)
	p.emitCallOnT0("get", 1)
	p.prog.Emit(program.POPN, 0, 1, 0)
	p.sym.SetLocalDepth(collSym.StackOff)
}

// parseArrayLiteral compiles `[e1, e2, ...]` as spawn("Array") followed by a
// push(ei) call per element (Array has no literal bytecode form of its own;
// it is a regular system class, spec's Array/Dictionary section).
func (p *Parser) parseArrayLiteral() {
	p.next() // '['
	p.prog.Emit(program.SPAWN, 0, int64(p.prog.InternLiteral("Array")), 0)
	if p.cur.Type == token.RBRACKET {
		p.next()
		return
	}
	arrSym := p.sym.DeclareLocal("$arr")
	p.prog.Emit(program.PUSH, 0, 0, 0)
	for {
		p.compileExpr(assignPrec) // element value -> t0
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.prog.Emit(program.SPEEK, 0, int64(arrSym.StackOff), 0)
		p.emitCallOnT0("push", 1)
		if p.cur.Type != token.COMMA {
			break
		}
		p.next()
		if p.cur.Type == token.RBRACKET {
			break
		}
	}
	p.expect(token.RBRACKET)
	p.prog.Emit(program.SPEEK, 0, int64(arrSym.StackOff), 0)
	p.prog.Emit(program.POPN, 0, 1, 0)
	p.sym.SetLocalDepth(arrSym.StackOff)
}

// parseDictLiteral compiles `{k1: v1, k2: v2, ...}` as spawn("Dictionary")
// followed by a set(key, value) call per entry.
func (p *Parser) parseDictLiteral() {
	p.next() // '{'
	p.prog.Emit(program.SPAWN, 0, int64(p.prog.InternLiteral("Dictionary")), 0)
	if p.cur.Type == token.RBRACE {
		p.next()
		return
	}
	dictSym := p.sym.DeclareLocal("$dict")
	p.prog.Emit(program.PUSH, 0, 0, 0)
	for {
		p.compileExpr(assignPrec) // key
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.expect(token.COLON)
		p.compileExpr(assignPrec) // value
		p.prog.Emit(program.PUSH, 0, 0, 0)
		p.prog.Emit(program.SPEEK, 0, int64(dictSym.StackOff), 0)
		p.emitCallOnT0("set", 2)
		if p.cur.Type != token.COMMA {
			break
		}
		p.next()
		if p.cur.Type == token.RBRACE {
			break
		}
	}
	p.expect(token.RBRACE)
	p.prog.Emit(program.SPEEK, 0, int64(dictSym.StackOff), 0)
	p.prog.Emit(program.POPN, 0, 1, 0)
	p.sym.SetLocalDepth(dictSym.StackOff)
}

// compileCallArgs parses a parenthesized, comma-separated argument list,
// pushing each value onto the stack in order and recording the count in
// lastArgCount for the caller to emit CALL/OPTCALL with.
func (p *Parser) compileCallArgs() {
	p.expect(token.LPAREN)
	count := 0
	for p.cur.Type != token.RPAREN && p.cur.Type != token.EOF {
		p.compileExpr(assignPrec)
		p.prog.Emit(program.PUSH, 0, 0, 0)
		count++
		if p.cur.Type == token.COMMA {
			p.next()
		}
	}
	p.expect(token.RPAREN)
	p.lastArgCount = count
}

// validateName reports (and records) an error when name is empty or longer
// than maxNameLength (spec §4.2 name validation); kind labels the error
// message ("object", "state", "function", "tag", "variable").
func (p *Parser) validateName(kind, name string) {
	if name == "" {
		p.errorf("%s name cannot be empty", kind)
		return
	}
	if len(name) > maxNameLength {
		p.errorf("%s name %q exceeds %d characters", kind, name, maxNameLength)
	}
}

// isAssignOp reports whether tt is one of the assignment operator tokens.
func isAssignOp(tt token.Type) bool {
	switch tt {
	case token.ASSIGN, token.PLUSEQ, token.MINUSEQ, token.STAREQ, token.SLASHEQ:
		return true
	}
	return false
}
