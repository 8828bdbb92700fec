package ir

// ExpressionOperands calls f for every expression handle kind reads.
//
//nolint:gocyclo,cyclop // one case per expression kind
func ExpressionOperands(kind ExpressionKind, f func(ExpressionHandle)) {
	opt := func(h *ExpressionHandle) {
		if h != nil {
			f(*h)
		}
	}

	switch k := kind.(type) {
	case ExprCompose:
		for _, c := range k.Components {
			f(c)
		}
	case ExprAccess:
		f(k.Base)
		f(k.Index)
	case ExprAccessIndex:
		f(k.Base)
	case ExprSplat:
		f(k.Value)
	case ExprSwizzle:
		f(k.Vector)
	case ExprLoad:
		f(k.Pointer)
	case ExprImageSample:
		f(k.Image)
		f(k.Sampler)
		f(k.Coordinate)
		opt(k.ArrayIndex)
		opt(k.DepthRef)
		switch l := k.Level.(type) {
		case SampleLevelExact:
			f(l.Level)
		case SampleLevelBias:
			f(l.Bias)
		case SampleLevelGradient:
			f(l.X)
			f(l.Y)
		}
	case ExprImageLoad:
		f(k.Image)
		f(k.Coordinate)
		opt(k.ArrayIndex)
		opt(k.Sample)
		opt(k.Level)
	case ExprImageQuery:
		f(k.Image)
		if q, ok := k.Query.(ImageQuerySize); ok {
			opt(q.Level)
		}
	case ExprUnary:
		f(k.Expr)
	case ExprBinary:
		f(k.Left)
		f(k.Right)
	case ExprSelect:
		f(k.Condition)
		f(k.Accept)
		f(k.Reject)
	case ExprDerivative:
		f(k.Expr)
	case ExprRelational:
		f(k.Argument)
	case ExprMath:
		f(k.Arg)
		opt(k.Arg1)
		opt(k.Arg2)
		opt(k.Arg3)
	case ExprAs:
		f(k.Expr)
	case ExprArrayLength:
		f(k.Array)
	}
}

// StatementOperands calls f for every expression handle the statement itself
// reads or defines, not counting nested blocks or emitted ranges.
func StatementOperands(kind StatementKind, f func(ExpressionHandle)) {
	opt := func(h *ExpressionHandle) {
		if h != nil {
			f(*h)
		}
	}

	switch s := kind.(type) {
	case StmtIf:
		f(s.Condition)
	case StmtSwitch:
		f(s.Selector)
	case StmtLoop:
		opt(s.BreakIf)
	case StmtReturn:
		opt(s.Value)
	case StmtStore:
		f(s.Pointer)
		f(s.Value)
	case StmtImageStore:
		f(s.Image)
		f(s.Coordinate)
		opt(s.ArrayIndex)
		f(s.Value)
	case StmtAtomic:
		f(s.Pointer)
		f(s.Value)
		if x, ok := s.Fun.(AtomicExchange); ok {
			opt(x.Compare)
		}
	case StmtWorkGroupUniformLoad:
		f(s.Pointer)
	case StmtCall:
		for _, a := range s.Arguments {
			f(a)
		}
	case StmtRayQuery:
		f(s.Query)
		if init, ok := s.Fun.(RayQueryInitialize); ok {
			f(init.AccelerationStructure)
			f(init.Descriptor)
		}
	case StmtSubgroupBallot:
		opt(s.Predicate)
	}
}

// StatementResult returns the result placeholder a statement defines, if any.
func StatementResult(kind StatementKind) (ExpressionHandle, bool) {
	switch s := kind.(type) {
	case StmtAtomic:
		if s.Result != nil {
			return *s.Result, true
		}
	case StmtWorkGroupUniformLoad:
		return s.Result, true
	case StmtCall:
		if s.Result != nil {
			return *s.Result, true
		}
	case StmtRayQuery:
		if p, ok := s.Fun.(RayQueryProceed); ok {
			return p.Result, true
		}
	case StmtSubgroupBallot:
		return s.Result, true
	}

	return 0, false
}

// WalkBlock calls f for every statement of b in order, descending into nested blocks.
// Returning false from f skips the statement's children.
func WalkBlock(b Block, f func(*Statement) bool) {
	for i := range b {
		st := &b[i]
		if !f(st) {
			continue
		}

		switch s := st.Kind.(type) {
		case StmtBlock:
			WalkBlock(s.Block, f)
		case StmtIf:
			WalkBlock(s.Accept, f)
			WalkBlock(s.Reject, f)
		case StmtSwitch:
			for _, c := range s.Cases {
				WalkBlock(c.Body, f)
			}
		case StmtLoop:
			WalkBlock(s.Body, f)
			WalkBlock(s.Continuing, f)
		}
	}
}

// ReferenceCounts counts, for each expression, how many other expressions
// and statements read it. Local variable initializers count as reads.
func ReferenceCounts(fn *Function) []int {
	counts := make([]int, len(fn.Expressions))
	inc := func(h ExpressionHandle) {
		if int(h) < len(counts) {
			counts[h]++
		}
	}

	for _, e := range fn.Expressions {
		ExpressionOperands(e.Kind, inc)
	}

	for _, lv := range fn.LocalVars {
		if lv.Init != nil {
			inc(*lv.Init)
		}
	}

	WalkBlock(fn.Body, func(st *Statement) bool {
		StatementOperands(st.Kind, inc)
		return true
	})

	return counts
}

// LiveExpressions marks the expressions whose value is observable: those read
// by a statement, a local initializer or another live expression, and those
// bound to a name. Operands precede their users, so one backward pass suffices.
func LiveExpressions(fn *Function) []bool {
	live := make([]bool, len(fn.Expressions))
	mark := func(h ExpressionHandle) {
		if int(h) < len(live) {
			live[h] = true
		}
	}

	for h := range fn.NamedExpressions {
		mark(h)
	}

	for _, lv := range fn.LocalVars {
		if lv.Init != nil {
			mark(*lv.Init)
		}
	}

	WalkBlock(fn.Body, func(st *Statement) bool {
		StatementOperands(st.Kind, mark)
		return true
	})

	for h := len(live) - 1; h >= 0; h-- {
		if live[h] {
			ExpressionOperands(fn.Expressions[h].Kind, mark)
		}
	}

	return live
}
