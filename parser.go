package etch

// Parser is a recursive-descent parser over a pre-lexed token buffer: one
// parseX method per grammar production, a token cursor, and a structured
// CompileError on failure rather than a panic.
type Parser struct {
	file string
	toks []Token
	pos  int
}

func NewParser(file string, toks []Token) *Parser {
	return &Parser{file: file, toks: toks}
}

// ParseModule parses a whole source file into a Module.
func ParseModule(file string, src []byte) (*Module, error) {
	toks, err := Tokenize(file, src)
	if err != nil {
		return nil, err
	}
	p := NewParser(file, toks)
	return p.parseModule()
}

func (p *Parser) cur() Token { return p.toks[p.pos] }
func (p *Parser) peekN(n int) Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) at(k TokenKind) bool { return p.cur().Kind == k }

func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if !p.at(k) {
		return Token{}, newCompileError(ErrParse, p.cur().Pos, "expected %s, got %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) errf(format string, args ...any) error {
	return newCompileError(ErrParse, p.cur().Pos, format, args...)
}

func (p *Parser) parseModule() (*Module, error) {
	mod := &Module{File: p.file}
	for !p.at(TokEOF) {
		d, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		mod.Decls = append(mod.Decls, d)
	}
	return mod, nil
}

func (p *Parser) parseDecl() (Decl, error) {
	exported := false
	if p.at(TokExport) {
		p.advance()
		exported = true
	}
	switch p.cur().Kind {
	case TokFn:
		return p.parseFnDecl(exported)
	case TokVar, TokLet:
		return p.parseGlobalVarDecl(exported)
	case TokType:
		return p.parseTypeDecl(exported)
	case TokImport:
		return p.parseImportDecl()
	default:
		return nil, p.errf("expected a declaration, got %q", p.cur().Text)
	}
}

func (p *Parser) parseFnDecl(exported bool) (*FnDecl, error) {
	start := p.cur().Pos
	if _, err := p.expect(TokFn, "'fn'"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "function name")
	if err != nil {
		return nil, err
	}
	var generics []string
	if p.at(TokLt) {
		p.advance()
		for !p.at(TokGt) {
			id, err := p.expect(TokIdent, "generic parameter")
			if err != nil {
				return nil, err
			}
			generics = append(generics, id.Text)
			if p.at(TokComma) {
				p.advance()
			}
		}
		p.advance() // '>'
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	var ret *TypeExpr
	if p.at(TokArrow) {
		p.advance()
		ret, err = p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FnDecl{
		sp: NewSpan(start, body.Span().End), Name: name.Text, Exported: exported,
		Generics: generics, Params: params, Ret: ret, Body: body,
	}, nil
}

func (p *Parser) parseParamList() ([]Param, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []Param
	for !p.at(TokRParen) {
		name, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		te, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		param := Param{Name: name.Text, TypeHint: te}
		if p.at(TokAssign) {
			p.advance()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if p.at(TokComma) {
			p.advance()
		}
	}
	p.advance() // ')'
	return params, nil
}

func (p *Parser) parseGlobalVarDecl(exported bool) (*GlobalVarDecl, error) {
	start := p.cur().Pos
	mutable := p.at(TokVar)
	p.advance() // var|let
	name, err := p.expect(TokIdent, "variable name")
	if err != nil {
		return nil, err
	}
	var th *TypeExpr
	if p.at(TokColon) {
		p.advance()
		th, err = p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
	}
	var init Expr
	if p.at(TokAssign) {
		p.advance()
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	end := p.cur().Pos
	if p.at(TokSemi) {
		p.advance()
	}
	return &GlobalVarDecl{sp: NewSpan(start, end), Name: name.Text, Mutable: mutable, Exported: exported, TypeHint: th, Init: init}, nil
}

func (p *Parser) parseTypeDecl(exported bool) (*TypeDecl, error) {
	start := p.cur().Pos
	p.advance() // 'type'
	name, err := p.expect(TokIdent, "type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokAssign, "'='"); err != nil {
		return nil, err
	}
	switch p.cur().Kind {
	case TokObject:
		p.advance()
		if _, err := p.expect(TokLBrace, "'{'"); err != nil {
			return nil, err
		}
		var fields []ObjectField
		for !p.at(TokRBrace) {
			fexp := false
			if p.at(TokExport) {
				p.advance()
				fexp = true
			}
			fname, err := p.expect(TokIdent, "field name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokColon, "':'"); err != nil {
				return nil, err
			}
			fte, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			field := ObjectField{Name: fname.Text, TypeHint: fte, Exported: fexp}
			if p.at(TokAssign) {
				p.advance()
				def, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				field.Default = def
			}
			fields = append(fields, field)
			if p.at(TokComma) {
				p.advance()
			}
		}
		end := p.cur().Pos
		p.advance() // '}'
		return &TypeDecl{sp: NewSpan(start, end), Name: name.Text, Kind: TypeDeclObject, Exported: exported, Fields: fields}, nil

	case TokEnum:
		p.advance()
		if _, err := p.expect(TokLBrace, "'{'"); err != nil {
			return nil, err
		}
		var members []EnumMember
		next := int64(0)
		for !p.at(TokRBrace) {
			mname, err := p.expect(TokIdent, "enum member")
			if err != nil {
				return nil, err
			}
			m := EnumMember{Name: mname.Text, IntVal: next, StrVal: mname.Text}
			if p.at(TokAssign) {
				p.advance()
				v, err := p.expect(TokInt, "enum value")
				if err != nil {
					return nil, err
				}
				m.IntVal = v.IVal
			}
			next = m.IntVal + 1
			members = append(members, m)
			if p.at(TokComma) {
				p.advance()
			}
		}
		end := p.cur().Pos
		p.advance() // '}'
		return &TypeDecl{sp: NewSpan(start, end), Name: name.Text, Kind: TypeDeclEnum, Exported: exported, Members: members}, nil

	case TokDistinct:
		p.advance()
		base, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		return &TypeDecl{sp: NewSpan(start, base.Span().End), Name: name.Text, Kind: TypeDeclDistinct, Exported: exported, Aliased: base}, nil

	case TokUnion:
		p.advance()
		var variants []*TypeExpr
		for {
			te, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			variants = append(variants, te)
			if p.at(TokOr) {
				p.advance()
				continue
			}
			break
		}
		return &TypeDecl{sp: NewSpan(start, variants[len(variants)-1].Span().End), Name: name.Text, Kind: TypeDeclUnion, Exported: exported, Variants: variants}, nil

	default:
		te, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		return &TypeDecl{sp: NewSpan(start, te.Span().End), Name: name.Text, Kind: TypeDeclAlias, Exported: exported, Aliased: te}, nil
	}
}

func (p *Parser) parseImportDecl() (*ImportDecl, error) {
	start := p.cur().Pos
	p.advance() // 'import'
	if p.at(TokFFI) {
		p.advance()
		libName, err := p.expect(TokIdent, "ffi library name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokLBrace, "'{'"); err != nil {
			return nil, err
		}
		var fns []FFIFuncSig
		for !p.at(TokRBrace) {
			if _, err := p.expect(TokFn, "'fn'"); err != nil {
				return nil, err
			}
			fname, err := p.expect(TokIdent, "ffi function name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokLParen, "'('"); err != nil {
				return nil, err
			}
			var params []*TypeExpr
			for !p.at(TokRParen) {
				te, err := p.parseTypeExpr()
				if err != nil {
					return nil, err
				}
				params = append(params, te)
				if p.at(TokComma) {
					p.advance()
				}
			}
			p.advance() // ')'
			var ret *TypeExpr
			if p.at(TokArrow) {
				p.advance()
				ret, err = p.parseTypeExpr()
				if err != nil {
					return nil, err
				}
			} else {
				ret = &TypeExpr{Name: "void"}
			}
			fns = append(fns, FFIFuncSig{Name: fname.Text, Params: params, Ret: ret})
			if p.at(TokSemi) {
				p.advance()
			}
		}
		end := p.cur().Pos
		p.advance() // '}'
		return &ImportDecl{sp: NewSpan(start, end), Kind: ImportFFI, Path: libName.Text, FFIFns: fns}, nil
	}
	modName, err := p.expect(TokIdent, "module name")
	if err != nil {
		return nil, err
	}
	end := modName.Pos
	if p.at(TokSemi) {
		p.advance()
	}
	return &ImportDecl{sp: NewSpan(start, end), Kind: ImportModule, Path: modName.Text}, nil
}

// ---- Types ----

func (p *Parser) parseTypeExpr() (*TypeExpr, error) {
	start := p.cur().Pos
	name := p.cur().Text
	switch p.cur().Kind {
	case TokKwVoid, TokKwBool, TokKwChar, TokKwInt, TokKwFloat, TokKwString:
		p.advance()
		return &TypeExpr{sp: NewSpan(start, start), Name: name}, nil
	case TokKwOption, TokKwResult, TokKwRef, TokKwWeak, TokKwCoroutine, TokKwChannel:
		p.advance()
		if _, err := p.expect(TokLBracket, "'['"); err != nil {
			return nil, err
		}
		inner, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur().Pos
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return nil, err
		}
		return &TypeExpr{sp: NewSpan(start, end), Name: name, Args: []*TypeExpr{inner}}, nil
	case TokLBracket:
		p.advance()
		inner, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur().Pos
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return nil, err
		}
		return &TypeExpr{sp: NewSpan(start, end), Name: "array", Args: []*TypeExpr{inner}}, nil
	case TokLParen:
		p.advance()
		var elems []*TypeExpr
		for !p.at(TokRParen) {
			te, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, te)
			if p.at(TokComma) {
				p.advance()
			}
		}
		end := p.cur().Pos
		p.advance() // ')'
		return &TypeExpr{sp: NewSpan(start, end), Name: "tuple", Args: elems}, nil
	case TokIdent:
		p.advance()
		te := &TypeExpr{sp: NewSpan(start, start), Name: name}
		if p.at(TokLt) {
			p.advance()
			for !p.at(TokGt) {
				arg, err := p.parseTypeExpr()
				if err != nil {
					return nil, err
				}
				te.Args = append(te.Args, arg)
				if p.at(TokComma) {
					p.advance()
				}
			}
			p.advance() // '>'
		}
		return te, nil
	default:
		return nil, p.errf("expected a type, got %q", p.cur().Text)
	}
}

// ---- Statements ----

func (p *Parser) parseBlock() (*BlockStmt, error) {
	start := p.cur().Pos
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.at(TokRBrace) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	end := p.cur().Pos
	p.advance() // '}'
	return &BlockStmt{sp: NewSpan(start, end), Stmts: stmts}, nil
}

func (p *Parser) parseStmt() (Stmt, error) {
	switch p.cur().Kind {
	case TokVar, TokLet:
		return p.parseVarDeclStmt()
	case TokIf:
		return p.parseIfStmt()
	case TokWhile:
		return p.parseWhileStmt()
	case TokFor:
		return p.parseForStmt()
	case TokBreak:
		s := p.cur().Pos
		p.advance()
		if p.at(TokSemi) {
			p.advance()
		}
		return &BreakStmt{sp: NewSpan(s, s)}, nil
	case TokContinue:
		s := p.cur().Pos
		p.advance()
		if p.at(TokSemi) {
			p.advance()
		}
		return &ContinueStmt{sp: NewSpan(s, s)}, nil
	case TokReturn:
		start := p.cur().Pos
		p.advance()
		var val Expr
		if !p.at(TokSemi) && !p.at(TokRBrace) {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			val = v
		}
		end := p.cur().Pos
		if p.at(TokSemi) {
			p.advance()
		}
		return &ReturnStmt{sp: NewSpan(start, end), Value: val}, nil
	case TokDefer:
		start := p.cur().Pos
		p.advance()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &DeferStmt{sp: NewSpan(start, body.Span().End), Body: body}, nil
	case TokMatch:
		return p.parseMatchStmt()
	case TokYield:
		start := p.cur().Pos
		p.advance()
		var val Expr
		if !p.at(TokSemi) && !p.at(TokRBrace) {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			val = v
		}
		end := start
		if val != nil {
			end = val.Span().End
		}
		if p.at(TokSemi) {
			p.advance()
		}
		return &ExprStmt{sp: NewSpan(start, end), X: &UnaryExpr{baseExpr: baseExpr{span: NewSpan(start, end)}, Op: TokYield, X: val}}, nil
	default:
		return p.parseSimpleStmt()
	}
}

func (p *Parser) parseVarDeclStmt() (*VarDeclStmt, error) {
	start := p.cur().Pos
	mutable := p.at(TokVar)
	p.advance() // var|let
	name, err := p.expect(TokIdent, "variable name")
	if err != nil {
		return nil, err
	}
	var th *TypeExpr
	if p.at(TokColon) {
		p.advance()
		th, err = p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
	}
	var init Expr
	if p.at(TokAssign) {
		p.advance()
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	end := p.cur().Pos
	if p.at(TokSemi) {
		p.advance()
	}
	return &VarDeclStmt{sp: NewSpan(start, end), Name: name.Text, Mutable: mutable, TypeHint: th, Init: init}, nil
}

func (p *Parser) parseIfStmt() (*IfStmt, error) {
	start := p.cur().Pos
	p.advance() // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{sp: NewSpan(start, then.Span().End), Cond: cond, Then: then}
	for p.at(TokElif) {
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Elifs = append(stmt.Elifs, ElifClause{Cond: c, Body: b})
		stmt.sp.End = b.Span().End
	}
	if p.at(TokElse) {
		p.advance()
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = b
		stmt.sp.End = b.Span().End
	}
	return stmt, nil
}

func (p *Parser) parseWhileStmt() (*WhileStmt, error) {
	start := p.cur().Pos
	p.advance() // 'while'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{sp: NewSpan(start, body.Span().End), Cond: cond, Body: body}, nil
}

func (p *Parser) parseForStmt() (*ForStmt, error) {
	start := p.cur().Pos
	p.advance() // 'for'
	name, err := p.expect(TokIdent, "loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokIn, "'in'"); err != nil {
		return nil, err
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fs := &ForStmt{VarName: name.Text}
	if p.at(TokColon) {
		p.advance()
		hi, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fs.IsRange, fs.Lo, fs.Hi = true, first, hi
		if p.at(TokColon) {
			p.advance()
			step, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fs.Step = step
		}
	} else {
		fs.Iterable = first
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fs.sp = NewSpan(start, body.Span().End)
	fs.Body = body
	return fs, nil
}

func (p *Parser) parseMatchStmt() (*MatchStmt, error) {
	start := p.cur().Pos
	p.advance() // 'match'
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var arms []MatchStmtArm
	for !p.at(TokRBrace) {
		pat, err := p.expect(TokIdent, "match pattern")
		if err != nil {
			return nil, err
		}
		arm := MatchStmtArm{Pattern: pat.Text}
		if p.at(TokLParen) {
			p.advance()
			if !p.at(TokRParen) {
				bind, err := p.expect(TokIdent, "binding name")
				if err != nil {
					return nil, err
				}
				arm.Bind = bind.Text
			}
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokArrow, "'=>'"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		arm.Body = body
		arms = append(arms, arm)
		if p.at(TokComma) {
			p.advance()
		}
	}
	end := p.cur().Pos
	p.advance() // '}'
	return &MatchStmt{sp: NewSpan(start, end), Subject: subject, Arms: arms}, nil
}

func (p *Parser) parseSimpleStmt() (Stmt, error) {
	start := p.cur().Pos
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(TokAssign) {
		p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur().Pos
		if p.at(TokSemi) {
			p.advance()
		}
		return &AssignStmt{sp: NewSpan(start, end), Lhs: x, Rhs: rhs}, nil
	}
	end := p.cur().Pos
	if p.at(TokSemi) {
		p.advance()
	}
	return &ExprStmt{sp: NewSpan(start, end), X: x}, nil
}

// ---- Expressions (precedence climbing) ----

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokOr) {
		p.advance()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: TokOr, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(TokAnd) {
		p.advance()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: TokAnd, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.at(TokNot) {
		start := p.cur().Pos
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{baseExpr: baseExpr{span: NewSpan(start, x.Span().End)}, Op: TokNot, X: x}, nil
	}
	return p.parseComparison()
}

var cmpOps = map[TokenKind]bool{TokEq: true, TokNe: true, TokLt: true, TokLe: true, TokGt: true, TokGe: true}

func (p *Parser) parseComparison() (Expr, error) {
	l, err := p.parseInExpr()
	if err != nil {
		return nil, err
	}
	for cmpOps[p.cur().Kind] {
		op := p.advance().Kind
		r, err := p.parseInExpr()
		if err != nil {
			return nil, err
		}
		l = &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseInExpr() (Expr, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	not := false
	if p.at(TokNot) && p.peekN(1).Kind == TokIn {
		p.advance()
		not = true
	}
	if p.at(TokIn) {
		p.advance()
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &InExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, X: l, Set: r, Not: not}, nil
	}
	return l, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		op := p.advance().Kind
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) || p.at(TokPercent) {
		op := p.advance().Kind
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur().Kind {
	case TokMinus, TokBang:
		start := p.cur().Pos
		op := p.advance().Kind
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{baseExpr: baseExpr{span: NewSpan(start, x.Span().End)}, Op: op, X: x}, nil
	case TokHash:
		start := p.cur().Pos
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &LenExpr{baseExpr: baseExpr{span: NewSpan(start, x.Span().End)}, X: x}, nil
	case TokAt:
		start := p.cur().Pos
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &DerefExpr{baseExpr: baseExpr{span: NewSpan(start, x.Span().End)}, X: x}, nil
	default:
		return p.parsePower()
	}
}

func (p *Parser) parsePower() (Expr, error) {
	l, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.at(TokPow) {
		p.advance()
		r, err := p.parseUnary() // right-associative
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{baseExpr: baseExpr{span: NewSpan(l.Span().Start, r.Span().End)}, Op: TokPow, L: l, R: r}, nil
	}
	return l, nil
}

func (p *Parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case TokDot:
			p.advance()
			field, err := p.expect(TokIdent, "field name")
			if err != nil {
				return nil, err
			}
			x = &FieldExpr{baseExpr: baseExpr{span: NewSpan(x.Span().Start, field.Pos)}, X: x, Field: field.Text}
		case TokLBracket:
			p.advance()
			var lo Expr
			if !p.at(TokColon) {
				lo, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			if p.at(TokColon) {
				p.advance()
				var hi Expr
				if !p.at(TokRBracket) {
					hi, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				end := p.cur().Pos
				if _, err := p.expect(TokRBracket, "']'"); err != nil {
					return nil, err
				}
				x = &SliceExpr{baseExpr: baseExpr{span: NewSpan(x.Span().Start, end)}, X: x, Lo: lo, Hi: hi}
				continue
			}
			end := p.cur().Pos
			if _, err := p.expect(TokRBracket, "']'"); err != nil {
				return nil, err
			}
			x = &IndexExpr{baseExpr: baseExpr{span: NewSpan(x.Span().Start, end)}, X: x, Index: lo}
		case TokLParen:
			args, end, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			x = &CallExpr{baseExpr: baseExpr{span: NewSpan(x.Span().Start, end)}, Callee: x, Args: args}
		case TokQuestion:
			end := p.cur().Pos
			p.advance()
			x = &PropagateExpr{baseExpr: baseExpr{span: NewSpan(x.Span().Start, end)}, X: x}
		case TokLBrace:
			if id, ok := x.(*Ident); ok && p.looksLikeObjectLit() {
				lit, err := p.parseObjectLitBody(id.Name, x.Span().Start)
				if err != nil {
					return nil, err
				}
				x = lit
				continue
			}
			return x, nil
		default:
			return x, nil
		}
	}
}

// looksLikeObjectLit disambiguates `Type{...}` literals from a following
// block (e.g. an if-condition expression followed by `{`).  A two-token
// lookahead past the `{` suffices: `{ ident :` or `{}` signal an object
// literal.
func (p *Parser) looksLikeObjectLit() bool {
	n1 := p.peekN(1)
	if n1.Kind == TokRBrace {
		return true
	}
	return n1.Kind == TokIdent && p.peekN(2).Kind == TokColon
}

func (p *Parser) parseArgList() ([]Expr, Position, error) {
	p.advance() // '('
	var args []Expr
	for !p.at(TokRParen) {
		a, err := p.parseExpr()
		if err != nil {
			return nil, Position{}, err
		}
		args = append(args, a)
		if p.at(TokComma) {
			p.advance()
		}
	}
	end := p.cur().Pos
	p.advance() // ')'
	return args, end, nil
}

func (p *Parser) parseObjectLitBody(name string, start Position) (*ObjectLit, error) {
	p.advance() // '{'
	var fields []ObjectLitField
	for !p.at(TokRBrace) {
		fname, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ObjectLitField{Name: fname.Text, Value: val})
		if p.at(TokComma) {
			p.advance()
		}
	}
	end := p.cur().Pos
	p.advance() // '}'
	return &ObjectLit{baseExpr: baseExpr{span: NewSpan(start, end)}, TypeName: name, Fields: fields}, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokInt:
		p.advance()
		return &IntLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Value: tok.IVal}, nil
	case TokFloat:
		p.advance()
		return &FloatLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Value: tok.FVal}, nil
	case TokChar:
		p.advance()
		return &CharLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Value: tok.CVal}, nil
	case TokString:
		p.advance()
		return &StringLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Value: tok.Text}, nil
	case TokTrue, TokFalse:
		p.advance()
		return &BoolLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Value: tok.Kind == TokTrue}, nil
	case TokNil:
		p.advance()
		return &NilLit{baseExpr{span: NewSpan(tok.Pos, tok.Pos)}}, nil
	case TokIdent:
		p.advance()
		return &Ident{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}, Name: tok.Text}, nil
	case TokLParen:
		p.advance()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(TokComma) {
			elems := []Expr{first}
			for p.at(TokComma) {
				p.advance()
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			end := p.cur().Pos
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
			return &TupleLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, end)}, Elems: elems}, nil
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return first, nil
	case TokLBracket:
		p.advance()
		var elems []Expr
		for !p.at(TokRBracket) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.at(TokComma) {
				p.advance()
			}
		}
		end := p.cur().Pos
		p.advance() // ']'
		return &ArrayLit{baseExpr: baseExpr{span: NewSpan(tok.Pos, end)}, Elems: elems}, nil
	case TokNew:
		p.advance()
		ne := &NewExpr{baseExpr: baseExpr{span: NewSpan(tok.Pos, tok.Pos)}}
		if p.at(TokLt) {
			p.advance()
			te, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			ne.TypeHint = te
			if _, err := p.expect(TokGt, "'>'"); err != nil {
				return nil, err
			}
		}
		if p.at(TokLParen) {
			p.advance()
			if !p.at(TokRParen) {
				init, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				ne.Init = init
			}
			end := p.cur().Pos
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
			ne.span.End = end
		}
		return ne, nil
	case TokFn:
		return p.parseLambda()
	case TokMatch:
		return p.parseMatchExpr()
	case TokSpawn:
		p.advance()
		callee, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		call, ok := callee.(*CallExpr)
		if !ok {
			return nil, newCompileError(ErrParse, tok.Pos, "spawn requires a call expression")
		}
		return &SpawnExpr{baseExpr: baseExpr{span: NewSpan(tok.Pos, call.Span().End)}, Callee: call.Callee, Args: call.Args}, nil
	case TokResume:
		p.advance()
		if _, err := p.expect(TokLParen, "'('"); err != nil {
			return nil, err
		}
		coro, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur().Pos
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ResumeExpr{baseExpr: baseExpr{span: NewSpan(tok.Pos, end)}, Coro: coro}, nil
	case TokComptime:
		p.advance()
		if _, err := p.expect(TokLParen, "'('"); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur().Pos
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ComptimeExpr{baseExpr: baseExpr{span: NewSpan(tok.Pos, end)}, Body: body}, nil
	default:
		return nil, newCompileError(ErrParse, tok.Pos, "unexpected token %q in expression", tok.Text)
	}
}

func (p *Parser) parseLambda() (Expr, error) {
	start := p.cur().Pos
	p.advance() // 'fn'
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	var ret *TypeExpr
	if p.at(TokArrow) {
		p.advance()
		ret, err = p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &LambdaExpr{baseExpr: baseExpr{span: NewSpan(start, body.Span().End)}, Params: params, Ret: ret, Body: body}, nil
}

func (p *Parser) parseMatchExpr() (Expr, error) {
	start := p.cur().Pos
	p.advance() // 'match'
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var arms []MatchArm
	for !p.at(TokRBrace) {
		pat, err := p.expect(TokIdent, "match pattern")
		if err != nil {
			return nil, err
		}
		arm := MatchArm{Pattern: pat.Text}
		if p.at(TokLParen) {
			p.advance()
			if !p.at(TokRParen) {
				bind, err := p.expect(TokIdent, "binding name")
				if err != nil {
					return nil, err
				}
				arm.Bind = bind.Text
			}
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokArrow, "'=>'"); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arm.Body = body
		arms = append(arms, arm)
		if p.at(TokComma) {
			p.advance()
		}
	}
	end := p.cur().Pos
	p.advance() // '}'
	return &MatchExpr{baseExpr: baseExpr{span: NewSpan(start, end)}, Subject: subject, Arms: arms}, nil
}
