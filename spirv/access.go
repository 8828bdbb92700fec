package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// accessChain is a pointer expression flattened into a root variable and
// the indices leading from it. Nothing is emitted until emitChain.
type accessChain struct {
	root    uint32
	class   StorageClass
	indices []uint32
	typeID  uint32 // pointer type of the result

	// cond is a bool that holds when every checked index is in range,
	// or zero when the access needs no guard.
	cond uint32
}

// chain flattens pointer expression h. Index checks are emitted into block
// as they are needed. With forceRestrict set, the index policy is always
// Restrict, for pointers that escape to a callee.
//
//nolint:gocyclo,cyclop // walks and checks every access step
func (c *blockContext) chain(block *Block, h ir.ExpressionHandle, forceRestrict bool) (*accessChain, error) {
	b := c.b

	var steps []ir.ExpressionHandle

	cur := h

walk:
	for {
		switch k := c.fn.Expressions[cur].Kind.(type) {
		case ir.ExprAccess:
			steps = append(steps, cur)
			cur = k.Base
		case ir.ExprAccessIndex:
			steps = append(steps, cur)
			cur = k.Base
		default:
			break walk
		}
	}

	ch := &accessChain{}

	switch k := c.fn.Expressions[cur].Kind.(type) {
	case ir.ExprGlobalVariable:
		g := b.globals[k.Variable]
		ch.root, ch.class = g.id, g.class

		if g.wrapped {
			ch.indices = append(ch.indices, b.constU32(0))
		}
	case ir.ExprLocalVariable:
		ch.root, ch.class = c.locals[k.Variable], StorageClassFunction
	case ir.ExprFunctionArgument:
		space, ok := ir.PointerSpace(c.inner(cur))
		if !ok {
			return nil, internalf("argument %d is not a pointer", k.Index)
		}

		ch.root, ch.class = c.args[k.Index], b.storageClass(space)
	default:
		return nil, internalf("pointer expression %d has root %T", h, k)
	}

	policy := b.options.BoundsChecks.policyFor(ch.class)
	if forceRestrict && policy != BoundsCheckUnchecked {
		policy = BoundsCheckRestrict
	}

	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]

		var (
			base   ir.ExpressionHandle
			index  uint32
			static = -1
		)

		switch k := c.fn.Expressions[step].Kind.(type) {
		case ir.ExprAccess:
			base = k.Base

			v, err := c.expr(k.Index)
			if err != nil {
				return nil, err
			}

			index = c.asU32Index(block, k.Index, v)
			static = c.staticIndex(k.Index)
		case ir.ExprAccessIndex:
			base = k.Base
			index = b.constU32(k.Index)
			static = int(k.Index)
		}

		pointee, ok := ir.Pointee(b.module.Types, c.inner(base))
		if !ok {
			return nil, internalf("access through non-pointer %d", base)
		}

		length, dynamic, checked := indexable(pointee.Inner(b.module.Types))

		if checked && policy != BoundsCheckUnchecked && !(static >= 0 && !dynamic && static < int(length)) {
			var lengthID uint32

			if dynamic {
				var err error
				if lengthID, err = c.arrayLength(block, base); err != nil {
					return nil, err
				}
			} else {
				lengthID = b.constU32(length)
			}

			switch policy {
			case BoundsCheckRestrict:
				last := b.constU32(length - 1)
				if dynamic {
					last = c.op(block, OpISub, b.u32TypeID(), lengthID, b.constU32(1))
				}

				index = c.ext(block, b.u32TypeID(), GLSLUMin, index, last)

			case BoundsCheckReadZeroSkipWrite:
				in := c.op(block, OpULessThan, b.boolTypeID(), index, lengthID)
				if ch.cond != 0 {
					in = c.op(block, OpLogicalAnd, b.boolTypeID(), ch.cond, in)
				}

				ch.cond = in
			}
		}

		ch.indices = append(ch.indices, index)
	}

	ty, err := c.resultType(h)
	if err != nil {
		return nil, err
	}

	ch.typeID = ty

	return ch, nil
}

// indexable returns the element count of an indexable type.
// Struct members are always in range and need no check.
func indexable(inner ir.TypeInner) (length uint32, dynamic, checked bool) {
	switch t := inner.(type) {
	case ir.ArrayType:
		if t.Size.IsDynamic() {
			return 0, true, true
		}

		return t.Size.Constant, false, true
	case ir.VectorType:
		return uint32(t.Size), false, true
	case ir.MatrixType:
		return uint32(t.Columns), false, true
	default:
		return 0, false, false
	}
}

func (c *blockContext) emitChain(block *Block, ch *accessChain) uint32 {
	if len(ch.indices) == 0 {
		return ch.root
	}

	return c.op(block, OpAccessChain, ch.typeID, append([]uint32{ch.root}, ch.indices...)...)
}

// pointer emits pointer expression h with out-of-range indices clamped.
func (c *blockContext) pointer(block *Block, h ir.ExpressionHandle) (uint32, error) {
	ch, err := c.chain(block, h, true)
	if err != nil {
		return 0, err
	}

	return c.emitChain(block, ch), nil
}

// arrayLength returns the element count of the runtime-sized array h points to.
func (c *blockContext) arrayLength(block *Block, h ir.ExpressionHandle) (uint32, error) {
	b := c.b

	switch k := c.fn.Expressions[h].Kind.(type) {
	case ir.ExprAccessIndex:
		st, err := c.pointer(block, k.Base)
		if err != nil {
			return 0, err
		}

		return c.op(block, OpArrayLength, b.u32TypeID(), st, k.Index), nil

	case ir.ExprGlobalVariable:
		g := b.globals[k.Variable]
		if !g.wrapped {
			return 0, internalf("runtime array global %d is not wrapped", k.Variable)
		}

		return c.op(block, OpArrayLength, b.u32TypeID(), g.id, 0), nil

	default:
		return 0, internalf("cannot take the length of runtime array %d (%T)", h, k)
	}
}

// staticIndex returns the value of a constant index expression, or -1.
func (c *blockContext) staticIndex(h ir.ExpressionHandle) int {
	switch k := c.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		switch v := k.Value.(type) {
		case ir.LiteralU32:
			return int(v)
		case ir.LiteralI32:
			if v >= 0 {
				return int(v)
			}
		}
	case ir.ExprConstant:
		cst := c.b.module.Constants[k.Constant]
		if v, ok := cst.Value.(ir.ScalarValue); ok && (v.Kind == ir.ScalarUint || v.Kind == ir.ScalarSint) {
			if int32(uint32(v.Bits)) >= 0 || v.Kind == ir.ScalarUint {
				return int(uint32(v.Bits))
			}
		}
	}

	return -1
}

// asU32Index reinterprets a signed index as unsigned, so a negative index
// compares above every length.
func (c *blockContext) asU32Index(block *Block, h ir.ExpressionHandle, v uint32) uint32 {
	if s, ok := ir.ScalarOf(c.inner(h)); ok && s.Kind == ir.ScalarSint {
		return c.op(block, OpBitcast, c.b.u32TypeID(), v)
	}

	return v
}

// Values

// writeLoad loads through pointer expression p.
func (c *blockContext) writeLoad(block *Block, h, p ir.ExpressionHandle) (uint32, error) {
	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	ch, err := c.chain(block, p, false)
	if err != nil {
		return 0, err
	}

	atomic := c.pointsToAtomic(p)

	load := func(blk *Block) (uint32, error) {
		ptr := c.emitChain(blk, ch)

		if atomic {
			scope, semantics := c.atomicScope(ch.class)
			return c.op(blk, OpAtomicLoad, ty, ptr, scope, semantics), nil
		}

		return c.op(blk, OpLoad, ty, ptr), nil
	}

	if ch.cond == 0 {
		return load(block)
	}

	return c.guardedValue(block, ch.cond, ty, load)
}

// writeAccess indexes a value that is not behind a pointer.
func (c *blockContext) writeAccess(block *Block, h ir.ExpressionHandle, k ir.ExprAccess) (uint32, error) {
	b := c.b

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	base, err := c.expr(k.Base)
	if err != nil {
		return 0, err
	}

	baseInner := c.inner(k.Base)
	length, _, _ := indexable(baseInner)

	if static := c.staticIndex(k.Index); static >= 0 && static < int(length) {
		return c.op(block, OpCompositeExtract, ty, base, uint32(static)), nil
	}

	index, err := c.expr(k.Index)
	if err != nil {
		return 0, err
	}

	index = c.asU32Index(block, k.Index, index)
	policy := b.options.BoundsChecks.policyFor(StorageClassFunction)

	var cond uint32

	switch policy {
	case BoundsCheckRestrict:
		index = c.ext(block, b.u32TypeID(), GLSLUMin, index, b.constU32(length-1))
	case BoundsCheckReadZeroSkipWrite:
		cond = c.op(block, OpULessThan, b.boolTypeID(), index, b.constU32(length))
	}

	if _, ok := baseInner.(ir.VectorType); ok {
		v := c.op(block, OpVectorExtractDynamic, ty, base, index)
		if cond != 0 {
			v = c.op(block, OpSelect, ty, cond, v, b.nullConstant(ty))
		}

		return v, nil
	}

	// arrays and matrices can be indexed dynamically only through a pointer
	spill, err := c.spill(block, k.Base, base)
	if err != nil {
		return 0, err
	}

	load := func(blk *Block) (uint32, error) {
		ptr := c.op(blk, OpAccessChain, b.pointerTypeID(ty, StorageClassFunction), spill, index)
		return c.op(blk, OpLoad, ty, ptr), nil
	}

	if cond == 0 {
		return load(block)
	}

	return c.guardedValue(block, cond, ty, load)
}

// spill stores value h into a function variable and returns the variable.
// The store is repeated at every access so it sees the current value.
func (c *blockContext) spill(block *Block, h ir.ExpressionHandle, value uint32) (uint32, error) {
	v, ok := c.spills[h]
	if !ok {
		ty, err := c.resultType(h)
		if err != nil {
			return 0, err
		}

		v = c.b.builder.AllocID()
		c.f.variables = append(c.f.variables, Instruction{
			Opcode: OpVariable,
			Words:  []uint32{c.b.pointerTypeID(ty, StorageClassFunction), v, uint32(StorageClassFunction)},
		})

		c.spills[h] = v
	}

	block.push(OpStore, v, value)

	return v, nil
}

func (c *blockContext) pointsToAtomic(p ir.ExpressionHandle) bool {
	pointee, ok := ir.Pointee(c.b.module.Types, c.inner(p))
	if !ok {
		return false
	}

	_, ok = pointee.Inner(c.b.module.Types).(ir.AtomicType)

	return ok
}
