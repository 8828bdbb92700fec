package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// LoopContext holds the branch targets of the innermost breakable construct.
// Zero means the target is not available.
type LoopContext struct {
	ContinuingID uint32
	BreakID      uint32
}

// BlockExit is how a block ends when its statements do not terminate it.
type BlockExit interface {
	blockExit()
}

type (
	exitReturn struct{}

	exitBranch struct {
		target uint32
	}

	// exitBreakIf ends a loop's continuing block.
	exitBreakIf struct {
		condition ir.ExpressionHandle
		merge     uint32
		preamble  uint32
	}
)

func (exitReturn) blockExit()  {}
func (exitBranch) blockExit()  {}
func (exitBreakIf) blockExit() {}

// writeBlock writes stmts into a new block labelled label.
func (c *blockContext) writeBlock(label uint32, stmts ir.Block, exit BlockExit, lc LoopContext) error {
	block := Block{Label: label}

	terminated, err := c.writeStatements(&block, stmts, lc)
	if err != nil {
		return err
	}

	if terminated {
		return nil
	}

	return c.writeExit(&block, exit, lc)
}

func (c *blockContext) writeExit(block *Block, exit BlockExit, _ LoopContext) error {
	switch e := exit.(type) {
	case exitReturn:
		switch {
		case c.fn.Result != nil:
			// only reachable when every path returned earlier
			c.f.consume(block, Instruction{Opcode: OpUnreachable})
		case c.entry != nil:
			return c.writeEntryReturn(block, 0)
		default:
			c.f.consume(block, Instruction{Opcode: OpReturn})
		}

	case exitBranch:
		c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{e.target}})

	case exitBreakIf:
		cond, err := c.expr(e.condition)
		if err != nil {
			return err
		}

		c.f.consume(block, Instruction{Opcode: OpBranchConditional, Words: []uint32{cond, e.merge, e.preamble}})

	default:
		return internalf("unknown block exit %T", exit)
	}

	return nil
}

// writeStatements appends stmts to block. It reports whether the block was
// terminated; statements after a terminator are unreachable and skipped.
//
//nolint:gocyclo,cyclop // one case per statement
func (c *blockContext) writeStatements(block *Block, stmts ir.Block, lc LoopContext) (bool, error) {
	for i := range stmts {
		var err error

		switch s := stmts[i].Kind.(type) {
		case ir.StmtEmit:
			for h := s.Range.Start; h < s.Range.End; h++ {
				if err = c.cacheExpression(block, h); err != nil {
					break
				}
			}

		case ir.StmtBlock:
			var terminated bool

			terminated, err = c.writeStatements(block, s.Block, lc)
			if err == nil && terminated {
				return true, nil
			}

		case ir.StmtIf:
			err = c.writeIf(block, s, lc)

		case ir.StmtSwitch:
			err = c.writeSwitch(block, s, lc)

		case ir.StmtLoop:
			err = c.writeLoop(block, s)

		case ir.StmtBreak:
			if lc.BreakID == 0 {
				return false, internalf("break outside of a loop or switch")
			}

			c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{lc.BreakID}})

			return true, nil

		case ir.StmtContinue:
			if lc.ContinuingID == 0 {
				return false, internalf("continue outside of a loop")
			}

			c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{lc.ContinuingID}})

			return true, nil

		case ir.StmtReturn:
			return true, c.writeReturn(block, s)

		case ir.StmtKill:
			c.f.consume(block, Instruction{Opcode: OpKill})

			return true, nil

		case ir.StmtBarrier:
			c.writeBarrier(block, s.Flags)

		case ir.StmtStore:
			err = c.writeStore(block, s)

		case ir.StmtImageStore:
			err = c.writeImageStore(block, s)

		case ir.StmtAtomic:
			err = c.writeAtomic(block, s)

		case ir.StmtWorkGroupUniformLoad:
			err = c.writeWorkGroupUniformLoad(block, s)

		case ir.StmtCall:
			err = c.writeCall(block, s)

		case ir.StmtSubgroupBallot:
			err = c.writeSubgroupBallot(block, s)

		case ir.StmtRayQuery:
			err = unimplementedf("ray queries")

		default:
			err = internalf("unknown statement %T", s)
		}

		if err != nil {
			return false, err
		}
	}

	return false, nil
}

func (c *blockContext) writeIf(block *Block, s ir.StmtIf, lc LoopContext) error {
	cond, err := c.expr(s.Condition)
	if err != nil {
		return err
	}

	merge := c.label()
	accept, reject := merge, merge

	if len(s.Accept) != 0 {
		accept = c.label()
	}

	if len(s.Reject) != 0 {
		reject = c.label()
	}

	block.push(OpSelectionMerge, merge, uint32(SelectionControlNone))
	c.f.consume(block, Instruction{Opcode: OpBranchConditional, Words: []uint32{cond, accept, reject}})

	if len(s.Accept) != 0 {
		if err := c.writeBlock(accept, s.Accept, exitBranch{target: merge}, lc); err != nil {
			return err
		}
	}

	if len(s.Reject) != 0 {
		if err := c.writeBlock(reject, s.Reject, exitBranch{target: merge}, lc); err != nil {
			return err
		}
	}

	*block = Block{Label: merge}

	return nil
}

func (c *blockContext) writeSwitch(block *Block, s ir.StmtSwitch, lc LoopContext) error {
	sel, err := c.expr(s.Selector)
	if err != nil {
		return err
	}

	merge := c.label()

	// empty cases that fall through share the label of the next case
	labels := make([]uint32, len(s.Cases))
	for i := len(s.Cases) - 1; i >= 0; i-- {
		cs := s.Cases[i]
		if cs.FallThrough && len(cs.Body) == 0 && i+1 < len(s.Cases) {
			labels[i] = labels[i+1]
		} else {
			labels[i] = c.label()
		}
	}

	def := merge
	words := []uint32{sel, 0}

	for i, cs := range s.Cases {
		switch v := cs.Value.(type) {
		case ir.SwitchValueI32:
			words = append(words, uint32(v), labels[i])
		case ir.SwitchValueU32:
			words = append(words, uint32(v), labels[i])
		case ir.SwitchValueDefault:
			def = labels[i]
		}
	}

	words[1] = def

	block.push(OpSelectionMerge, merge, uint32(SelectionControlNone))
	c.f.consume(block, Instruction{Opcode: OpSwitch, Words: words})

	inner := LoopContext{ContinuingID: lc.ContinuingID, BreakID: merge}

	for i, cs := range s.Cases {
		if i+1 < len(s.Cases) && labels[i] == labels[i+1] {
			continue
		}

		exit := exitBranch{target: merge}
		if cs.FallThrough && i+1 < len(s.Cases) {
			exit.target = labels[i+1]
		}

		if err := c.writeBlock(labels[i], cs.Body, exit, inner); err != nil {
			return err
		}
	}

	*block = Block{Label: merge}

	return nil
}

func (c *blockContext) writeLoop(block *Block, s ir.StmtLoop) error {
	preamble := c.label()
	body := c.label()
	continuing := c.label()
	merge := c.label()

	c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{preamble}})

	header := Block{Label: preamble}
	header.push(OpLoopMerge, merge, continuing, uint32(LoopControlNone))
	c.f.consume(&header, Instruction{Opcode: OpBranch, Words: []uint32{body}})

	lc := LoopContext{ContinuingID: continuing, BreakID: merge}

	bodyBlock := Block{Label: body}
	if c.b.options.ForceLoopBounding {
		c.writeLoopBound(&bodyBlock, merge)
	}

	terminated, err := c.writeStatements(&bodyBlock, s.Body, lc)
	if err != nil {
		return err
	}

	if !terminated {
		c.f.consume(&bodyBlock, Instruction{Opcode: OpBranch, Words: []uint32{continuing}})
	}

	var exit BlockExit = exitBranch{target: preamble}
	if s.BreakIf != nil {
		exit = exitBreakIf{condition: *s.BreakIf, merge: merge, preamble: preamble}
	}

	if err := c.writeBlock(continuing, s.Continuing, exit, LoopContext{}); err != nil {
		return err
	}

	*block = Block{Label: merge}

	return nil
}

// writeLoopBound makes the loop leave after 2^64 iterations.
// The counter is a vec2<u32> holding the low word in x.
func (c *blockContext) writeLoopBound(block *Block, merge uint32) {
	b := c.b

	u32 := b.u32TypeID()
	vec2u := b.vectorTypeID(ir.U32, ir.Vec2)
	bool2 := b.vectorTypeID(ir.Bool, ir.Vec2)
	maxU32 := b.constU32(^uint32(0))

	counter := b.builder.AllocID()
	c.f.variables = append(c.f.variables, Instruction{
		Opcode: OpVariable,
		Words: []uint32{b.pointerTypeID(vec2u, StorageClassFunction), counter, uint32(StorageClassFunction),
			b.compositeConstant(vec2u, []uint32{maxU32, maxU32})},
	})

	value := c.op(block, OpLoad, vec2u, counter)
	zero := c.op(block, OpIEqual, bool2, value, b.nullConstant(vec2u))
	done := c.op(block, OpAll, b.boolTypeID(), zero)

	exit := c.label()
	next := c.label()

	block.push(OpSelectionMerge, next, uint32(SelectionControlNone))
	c.f.consume(block, Instruction{Opcode: OpBranchConditional, Words: []uint32{done, exit, next}})

	brk := Block{Label: exit}
	c.f.consume(&brk, Instruction{Opcode: OpBranch, Words: []uint32{merge}})

	*block = Block{Label: next}

	one := b.constU32(1)
	low := c.op(block, OpCompositeExtract, u32, value, 0)
	high := c.op(block, OpCompositeExtract, u32, value, 1)
	borrowing := c.op(block, OpIEqual, b.boolTypeID(), low, b.constU32(0))
	borrow := c.op(block, OpSelect, u32, borrowing, one, b.constU32(0))
	low = c.op(block, OpISub, u32, low, one)
	high = c.op(block, OpISub, u32, high, borrow)
	value = c.op(block, OpCompositeConstruct, vec2u, low, high)
	block.push(OpStore, counter, value)
}

func (c *blockContext) writeReturn(block *Block, s ir.StmtReturn) error {
	var value uint32

	if s.Value != nil {
		var err error
		if value, err = c.expr(*s.Value); err != nil {
			return err
		}
	}

	switch {
	case c.entry != nil:
		return c.writeEntryReturn(block, value)
	case s.Value != nil:
		c.f.consume(block, Instruction{Opcode: OpReturnValue, Words: []uint32{value}})
	default:
		c.f.consume(block, Instruction{Opcode: OpReturn})
	}

	return nil
}

func (c *blockContext) writeBarrier(block *Block, flags ir.BarrierFlags) {
	memory := ScopeWorkgroup
	semantics := SemanticsAcquireRelease

	if flags&ir.BarrierStorage != 0 {
		memory = ScopeDevice
		semantics |= SemanticsUniformMemory
	}

	if flags&ir.BarrierWorkGroup != 0 {
		semantics |= SemanticsWorkgroupMemory
	}

	if flags&ir.BarrierSubGroup != 0 {
		semantics |= SemanticsSubgroupMemory
	}

	if flags&ir.BarrierTexture != 0 {
		memory = ScopeDevice
		semantics |= SemanticsImageMemory
	}

	b := c.b
	block.push(OpControlBarrier, b.constU32(uint32(ScopeWorkgroup)), b.constU32(uint32(memory)), b.constU32(semantics))
}

func (c *blockContext) writeStore(block *Block, s ir.StmtStore) error {
	value, err := c.expr(s.Value)
	if err != nil {
		return err
	}

	ch, err := c.chain(block, s.Pointer, false)
	if err != nil {
		return err
	}

	atomic := c.pointsToAtomic(s.Pointer)

	store := func(blk *Block) error {
		ptr := c.emitChain(blk, ch)

		if atomic {
			scope, semantics := c.atomicScope(ch.class)
			blk.push(OpAtomicStore, ptr, scope, semantics, value)

			return nil
		}

		blk.push(OpStore, ptr, value)

		return nil
	}

	if ch.cond == 0 {
		return store(block)
	}

	return c.guard(block, ch.cond, store)
}

func (c *blockContext) writeCall(block *Block, s ir.StmtCall) error {
	b := c.b

	if int(s.Function) >= len(b.module.Functions) {
		return internalf("call to function %d out of range", s.Function)
	}

	callee := &b.module.Functions[s.Function]

	args := make([]uint32, len(s.Arguments))
	for i, a := range s.Arguments {
		var err error

		if ir.IsPointer(c.inner(a)) {
			args[i], err = c.pointer(block, a)
		} else {
			args[i], err = c.expr(a)
		}

		if err != nil {
			return err
		}
	}

	result := b.voidTypeID()
	if callee.Result != nil {
		var err error
		if result, err = b.typeID(callee.Result.Type); err != nil {
			return err
		}
	}

	words := append([]uint32{b.functionIDs[s.Function]}, args...)
	id := c.op(block, OpFunctionCall, result, words...)

	if s.Result != nil {
		c.cached[*s.Result] = id
	}

	return nil
}

func (c *blockContext) writeWorkGroupUniformLoad(block *Block, s ir.StmtWorkGroupUniformLoad) error {
	ty, err := c.resultType(s.Result)
	if err != nil {
		return err
	}

	c.writeBarrier(block, ir.BarrierWorkGroup)

	ptr, err := c.pointer(block, s.Pointer)
	if err != nil {
		return err
	}

	c.cached[s.Result] = c.op(block, OpLoad, ty, ptr)

	c.writeBarrier(block, ir.BarrierWorkGroup)

	return nil
}

func (c *blockContext) writeSubgroupBallot(block *Block, s ir.StmtSubgroupBallot) error {
	b := c.b

	if err := b.require(CapabilityGroupNonUniformBallot, "subgroupBallot"); err != nil {
		return err
	}

	pred := b.constBool(true)
	if s.Predicate != nil {
		var err error
		if pred, err = c.expr(*s.Predicate); err != nil {
			return err
		}
	}

	c.cached[s.Result] = c.op(block, OpGroupNonUniformBallot, b.vectorTypeID(ir.U32, ir.Vec4),
		b.constU32(uint32(ScopeSubgroup)), pred)

	return nil
}

// guard runs body only when cond holds.
func (c *blockContext) guard(block *Block, cond uint32, body func(*Block) error) error {
	inner := c.label()
	merge := c.label()

	block.push(OpSelectionMerge, merge, uint32(SelectionControlNone))
	c.f.consume(block, Instruction{Opcode: OpBranchConditional, Words: []uint32{cond, inner, merge}})

	*block = Block{Label: inner}
	if err := body(block); err != nil {
		return err
	}

	c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{merge}})
	*block = Block{Label: merge}

	return nil
}

// guardedValue evaluates body only when cond holds; otherwise the value is zero.
func (c *blockContext) guardedValue(block *Block, cond, resultType uint32, body func(*Block) (uint32, error)) (uint32, error) {
	from := block.Label
	inner := c.label()
	merge := c.label()

	block.push(OpSelectionMerge, merge, uint32(SelectionControlNone))
	c.f.consume(block, Instruction{Opcode: OpBranchConditional, Words: []uint32{cond, inner, merge}})

	*block = Block{Label: inner}

	v, err := body(block)
	if err != nil {
		return 0, err
	}

	innerEnd := block.Label
	c.f.consume(block, Instruction{Opcode: OpBranch, Words: []uint32{merge}})
	*block = Block{Label: merge}

	return c.op(block, OpPhi, resultType, v, innerEnd, c.b.nullConstant(resultType), from), nil
}
