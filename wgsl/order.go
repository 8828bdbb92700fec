package wgsl

// orderDecls returns the module declarations sorted so that every
// declaration follows the ones it references. Source order is kept
// where dependencies allow. Cycles, including recursion, are errors.
func orderDecls(decls []Decl) ([]Decl, error) {
	byName := make(map[string]int, len(decls))

	for i, d := range decls {
		name := d.DeclName()
		if name == "" {
			continue
		}

		if prev, ok := byName[name]; ok {
			return nil, newRelatedError(ErrRedefinition, d.Pos(), decls[prev].Pos(), "%s is declared twice", name)
		}
		byName[name] = i
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make([]uint8, len(decls))
	out := make([]Decl, 0, len(decls))

	var visit func(i int, path []int) error
	visit = func(i int, path []int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			from := decls[path[len(path)-1]]
			return newRelatedError(ErrCyclicDeclaration, from.Pos(), decls[i].Pos(),
				"%s depends on itself through %s", decls[i].DeclName(), from.DeclName())
		}

		state[i] = visiting
		path = append(path, i)

		for _, name := range declDeps(decls[i]) {
			j, ok := byName[name]
			if !ok {
				continue
			}
			if err := visit(j, path); err != nil {
				return err
			}
		}

		state[i] = visited
		out = append(out, decls[i])

		return nil
	}

	for i := range decls {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// declDeps lists the free names a declaration references, in order of appearance.
func declDeps(d Decl) []string {
	c := depCollector{seen: make(map[string]bool)}
	c.push()

	switch d := d.(type) {
	case *StructDecl:
		for _, m := range d.Members {
			c.typ(m.Type)
			c.attrs(m.Attributes)
		}
	case *AliasDecl:
		c.typ(d.Type)
	case *ConstDecl:
		c.typ(d.Type)
		c.expr(d.Init)
	case *OverrideDecl:
		c.typ(d.Type)
		c.expr(d.Init)
		c.attrs(d.Attributes)
	case *VarDecl:
		c.typ(d.Type)
		c.expr(d.Init)
		c.attrs(d.Attributes)
	case *ConstAssertDecl:
		c.expr(d.Cond)
	case *FunctionDecl:
		c.attrs(d.Attributes)
		c.attrs(d.ReturnAttrs)
		c.typ(d.ReturnType)
		for _, p := range d.Params {
			c.typ(p.Type)
			c.attrs(p.Attributes)
		}
		c.push()
		for _, p := range d.Params {
			c.bind(p.Name)
		}
		c.block(d.Body)
		c.pop()
	}

	return c.names
}

type depCollector struct {
	scopes []map[string]bool
	seen   map[string]bool
	names  []string
}

func (c *depCollector) push() { c.scopes = append(c.scopes, map[string]bool{}) }
func (c *depCollector) pop()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *depCollector) bind(name string) { c.scopes[len(c.scopes)-1][name] = true }

func (c *depCollector) use(name string) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if c.scopes[i][name] {
			return
		}
	}

	if !c.seen[name] {
		c.seen[name] = true
		c.names = append(c.names, name)
	}
}

func (c *depCollector) attrs(attrs []Attribute) {
	for _, a := range attrs {
		// builtin and interpolate take enumerants, not references
		if a.Name == "builtin" || a.Name == "interpolate" {
			continue
		}
		for _, arg := range a.Args {
			c.expr(arg)
		}
	}
}

func (c *depCollector) typ(t *TypeExpr) {
	if t == nil {
		return
	}

	c.use(t.Name)
	for _, p := range t.Params {
		c.expr(p)
	}
}

func (c *depCollector) expr(e Expr) {
	switch e := e.(type) {
	case nil:
	case *Ident:
		c.use(e.Name)
	case *TypeExpr:
		c.typ(e)
	case *BinaryExpr:
		c.expr(e.Left)
		c.expr(e.Right)
	case *UnaryExpr:
		c.expr(e.Operand)
	case *CallExpr:
		c.typ(e.Callee)
		for _, a := range e.Args {
			c.expr(a)
		}
	case *IndexExpr:
		c.expr(e.Base)
		c.expr(e.Index)
	case *MemberExpr:
		c.expr(e.Base)
	case *ParenExpr:
		c.expr(e.Inner)
	}
}

func (c *depCollector) block(b *BlockStmt) {
	if b == nil {
		return
	}

	c.push()
	for _, s := range b.Statements {
		c.stmt(s)
	}
	c.pop()
}

func (c *depCollector) stmt(s Stmt) {
	switch s := s.(type) {
	case nil:
	case *BlockStmt:
		c.block(s)
	case *ReturnStmt:
		c.expr(s.Value)
	case *IfStmt:
		c.expr(s.Condition)
		c.block(s.Body)
		c.stmt(s.Else)
	case *SwitchStmt:
		c.expr(s.Selector)
		for _, cl := range s.Cases {
			for _, sel := range cl.Selectors {
				c.expr(sel)
			}
			c.block(cl.Body)
		}
	case *LoopStmt:
		// continuing sees the body's declarations
		c.push()
		if s.Body != nil {
			for _, st := range s.Body.Statements {
				c.stmt(st)
			}
		}
		c.block(s.Continuing)
		c.expr(s.BreakIf)
		c.pop()
	case *ForStmt:
		c.push()
		c.stmt(s.Init)
		c.expr(s.Condition)
		c.stmt(s.Update)
		c.block(s.Body)
		c.pop()
	case *WhileStmt:
		c.expr(s.Condition)
		c.block(s.Body)
	case *LetStmt:
		c.typ(s.Type)
		c.expr(s.Init)
		c.bind(s.Name)
	case *DeclStmt:
		switch d := s.Decl.(type) {
		case *VarDecl:
			c.typ(d.Type)
			c.expr(d.Init)
			c.bind(d.Name)
		case *ConstDecl:
			c.typ(d.Type)
			c.expr(d.Init)
			c.bind(d.Name)
		}
	case *AssignStmt:
		c.expr(s.Left)
		c.expr(s.Right)
	case *IncDecStmt:
		c.expr(s.Target)
	case *CallStmt:
		c.expr(s.Call)
	case *ConstAssertStmt:
		c.expr(s.Cond)
	}
}
