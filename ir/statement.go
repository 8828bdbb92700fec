package ir

// Statement represents a statement in the IR paired with its source span.
// Statements carry side effects and structured control flow but produce no values.
type Statement struct {
	Kind StatementKind
	Span Span
}

// StatementKind is the closed set of statement variants.
type StatementKind interface {
	statementKind()
}

// Block is a sequence of statements executed in order.
type Block []Statement

// Range is a half-open range of expression handles.
type Range struct {
	Start ExpressionHandle
	End   ExpressionHandle // exclusive
}

// Len returns the number of handles in the range.
func (r Range) Len() int { return int(r.End) - int(r.Start) }

// StmtEmit evaluates a range of expressions at this point in control flow.
type StmtEmit struct {
	Range Range
}

func (StmtEmit) statementKind() {}

// StmtBlock contains a nested sequence of statements.
type StmtBlock struct {
	Block Block
}

func (StmtBlock) statementKind() {}

// StmtIf conditionally executes one of two blocks.
// There are no phi nodes: values leaving a branch go through a local variable.
type StmtIf struct {
	Condition ExpressionHandle
	Accept    Block
	Reject    Block
}

func (StmtIf) statementKind() {}

// StmtSwitch executes the case matching the selector.
// Exactly one case is SwitchValueDefault.
type StmtSwitch struct {
	Selector ExpressionHandle
	Cases    []SwitchCase
}

func (StmtSwitch) statementKind() {}

// SwitchCase represents a case in a switch statement.
type SwitchCase struct {
	Value       SwitchValue
	Body        Block
	FallThrough bool // control continues into the next case
}

// SwitchValue represents the value that triggers a switch case.
type SwitchValue interface {
	switchValue()
}

type (
	SwitchValueI32     int32
	SwitchValueU32     uint32
	SwitchValueDefault struct{}
)

func (SwitchValueI32) switchValue()     {}
func (SwitchValueU32) switchValue()     {}
func (SwitchValueDefault) switchValue() {}

// StmtLoop executes Body then Continuing repeatedly.
// BreakIf, when set, is evaluated after Continuing and exits the loop when true.
type StmtLoop struct {
	Body       Block
	Continuing Block
	BreakIf    *ExpressionHandle
}

func (StmtLoop) statementKind() {}

// StmtBreak exits the innermost enclosing Loop or Switch.
type StmtBreak struct{}

func (StmtBreak) statementKind() {}

// StmtContinue jumps to the continuing block of the innermost Loop.
type StmtContinue struct{}

func (StmtContinue) statementKind() {}

// StmtReturn returns from the function, possibly with a value.
type StmtReturn struct {
	Value *ExpressionHandle
}

func (StmtReturn) statementKind() {}

// StmtKill discards the current fragment.
type StmtKill struct{}

func (StmtKill) statementKind() {}

// StmtBarrier synchronizes invocations within the work group.
type StmtBarrier struct {
	Flags BarrierFlags
}

func (StmtBarrier) statementKind() {}

// BarrierFlags selects the memory a barrier orders.
type BarrierFlags uint32

const (
	BarrierStorage BarrierFlags = 1 << iota
	BarrierWorkGroup
	BarrierSubGroup
	BarrierTexture
)

// StmtStore stores a value through a pointer. Storing to an atomic is an atomic store.
type StmtStore struct {
	Pointer ExpressionHandle
	Value   ExpressionHandle
}

func (StmtStore) statementKind() {}

// StmtImageStore writes a texel to a storage image.
type StmtImageStore struct {
	Image      ExpressionHandle
	Coordinate ExpressionHandle
	ArrayIndex *ExpressionHandle
	Value      ExpressionHandle
}

func (StmtImageStore) statementKind() {}

// StmtAtomic performs a read-modify-write on an atomic.
type StmtAtomic struct {
	Pointer ExpressionHandle
	Fun     AtomicFunction
	Value   ExpressionHandle
	Result  *ExpressionHandle // an ExprAtomicResult
}

func (StmtAtomic) statementKind() {}

// AtomicFunction represents atomic operations.
type AtomicFunction interface {
	atomicFunction()
}

type (
	AtomicAdd         struct{}
	AtomicSubtract    struct{}
	AtomicAnd         struct{}
	AtomicExclusiveOr struct{}
	AtomicInclusiveOr struct{}
	AtomicMin         struct{}
	AtomicMax         struct{}

	// AtomicExchange with Compare set is compare-and-exchange.
	AtomicExchange struct {
		Compare *ExpressionHandle
	}
)

func (AtomicAdd) atomicFunction()         {}
func (AtomicSubtract) atomicFunction()    {}
func (AtomicAnd) atomicFunction()         {}
func (AtomicExclusiveOr) atomicFunction() {}
func (AtomicInclusiveOr) atomicFunction() {}
func (AtomicMin) atomicFunction()         {}
func (AtomicMax) atomicFunction()         {}
func (AtomicExchange) atomicFunction()    {}

// StmtWorkGroupUniformLoad loads a workgroup value uniformly, with barriers around it.
type StmtWorkGroupUniformLoad struct {
	Pointer ExpressionHandle
	Result  ExpressionHandle
}

func (StmtWorkGroupUniformLoad) statementKind() {}

// StmtCall calls a function. Result, if set, is an ExprCallResult.
type StmtCall struct {
	Function  FunctionHandle
	Arguments []ExpressionHandle
	Result    *ExpressionHandle
}

func (StmtCall) statementKind() {}

// StmtRayQuery performs a ray query operation.
type StmtRayQuery struct {
	Query ExpressionHandle
	Fun   RayQueryFunction
}

func (StmtRayQuery) statementKind() {}

// RayQueryFunction represents ray query operations.
type RayQueryFunction interface {
	rayQueryFunction()
}

type (
	RayQueryInitialize struct {
		AccelerationStructure ExpressionHandle
		Descriptor            ExpressionHandle
	}

	RayQueryProceed struct {
		Result ExpressionHandle
	}

	RayQueryTerminate struct{}
)

func (RayQueryInitialize) rayQueryFunction() {}
func (RayQueryProceed) rayQueryFunction()    {}
func (RayQueryTerminate) rayQueryFunction()  {}

// StmtSubgroupBallot computes a bitmask of invocations whose predicate is true.
// A nil predicate counts every active invocation.
type StmtSubgroupBallot struct {
	Result    ExpressionHandle
	Predicate *ExpressionHandle
}

func (StmtSubgroupBallot) statementKind() {}
