package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// atomicScope returns the scope and memory semantics constants of an
// atomic access to storage class class.
func (c *blockContext) atomicScope(class StorageClass) (scope, semantics uint32) {
	b := c.b

	if class == StorageClassWorkgroup {
		return b.constU32(uint32(ScopeWorkgroup)), b.constU32(SemanticsWorkgroupMemory)
	}

	return b.constU32(uint32(ScopeDevice)), b.constU32(SemanticsUniformMemory)
}

//nolint:gocyclo,cyclop // one case per atomic function
func (c *blockContext) writeAtomic(block *Block, s ir.StmtAtomic) error {
	b := c.b

	pointee, ok := ir.Pointee(b.module.Types, c.inner(s.Pointer))
	if !ok {
		return internalf("atomic through non-pointer %d", s.Pointer)
	}

	at, ok := pointee.Inner(b.module.Types).(ir.AtomicType)
	if !ok {
		return internalf("atomic on non-atomic %v", ir.TypeName(b.module.Types, pointee.Inner(b.module.Types)))
	}

	scalar := at.Scalar
	scalarType := b.scalarTypeID(scalar)

	value, err := c.expr(s.Value)
	if err != nil {
		return err
	}

	resultType := scalarType
	if s.Result != nil {
		if resultType, err = c.resultType(*s.Result); err != nil {
			return err
		}
	}

	float := scalar.Kind == ir.ScalarFloat
	signed := scalar.Kind == ir.ScalarSint

	var op OpCode

	switch fun := s.Fun.(type) {
	case ir.AtomicAdd, ir.AtomicSubtract:
		switch {
		case float:
			if err := b.require(CapabilityAtomicFloat32AddEXT, "atomic float add"); err != nil {
				return err
			}

			b.extensions[ExtAtomicFloatAdd] = struct{}{}
			op = OpAtomicFAddEXT

			if _, sub := fun.(ir.AtomicSubtract); sub {
				value = c.op(block, OpFNegate, scalarType, value)
			}
		case isSubtract(fun):
			op = OpAtomicISub
		default:
			op = OpAtomicIAdd
		}
	case ir.AtomicAnd:
		op = OpAtomicAnd
	case ir.AtomicExclusiveOr:
		op = OpAtomicXor
	case ir.AtomicInclusiveOr:
		op = OpAtomicOr
	case ir.AtomicMin:
		op = OpAtomicUMin
		if signed {
			op = OpAtomicSMin
		}
	case ir.AtomicMax:
		op = OpAtomicUMax
		if signed {
			op = OpAtomicSMax
		}
	case ir.AtomicExchange:
		op = OpAtomicExchange
		if fun.Compare != nil {
			return c.writeCompareExchange(block, s, *fun.Compare, scalarType, resultType, value)
		}
	default:
		return unimplementedf("atomic function %T", fun)
	}

	ch, err := c.chain(block, s.Pointer, false)
	if err != nil {
		return err
	}

	run := func(blk *Block) (uint32, error) {
		ptr := c.emitChain(blk, ch)
		scope, semantics := c.atomicScope(ch.class)

		return c.op(blk, op, scalarType, ptr, scope, semantics, value), nil
	}

	var id uint32

	if ch.cond == 0 {
		id, err = run(block)
	} else {
		id, err = c.guardedValue(block, ch.cond, scalarType, run)
	}

	if err != nil {
		return err
	}

	if s.Result != nil {
		c.cached[*s.Result] = id
	}

	return nil
}

func isSubtract(fun ir.AtomicFunction) bool {
	_, ok := fun.(ir.AtomicSubtract)
	return ok
}

// writeCompareExchange produces the {old_value, exchanged} result struct.
func (c *blockContext) writeCompareExchange(block *Block, s ir.StmtAtomic, compare ir.ExpressionHandle, scalarType, resultType, value uint32) error {
	b := c.b

	cmp, err := c.expr(compare)
	if err != nil {
		return err
	}

	ch, err := c.chain(block, s.Pointer, false)
	if err != nil {
		return err
	}

	run := func(blk *Block) (uint32, error) {
		ptr := c.emitChain(blk, ch)
		scope, semantics := c.atomicScope(ch.class)

		old := c.op(blk, OpAtomicCompareExchange, scalarType, ptr, scope, semantics, semantics, value, cmp)
		exchanged := c.op(blk, OpIEqual, b.boolTypeID(), old, cmp)

		return c.op(blk, OpCompositeConstruct, resultType, old, exchanged), nil
	}

	var id uint32

	if ch.cond == 0 {
		id, err = run(block)
	} else {
		id, err = c.guardedValue(block, ch.cond, resultType, run)
	}

	if err != nil {
		return err
	}

	if s.Result != nil {
		c.cached[*s.Result] = id
	}

	return nil
}
