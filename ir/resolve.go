package ir

import "tlog.app/go/errors"

// resolveKind computes the type of one expression, resolving operands through t.
//
//nolint:gocyclo,cyclop // one case per expression kind
func (t *Typifier) resolveKind(ctx *ResolveContext, h ExpressionHandle, kind ExpressionKind) (TypeResolution, error) {
	module, fn := ctx.Module, ctx.Function

	operand := func(op ExpressionHandle) (TypeInner, error) {
		if op >= h {
			return nil, errors.New("expression %d refers forward to %d", h, op)
		}

		return t.Inner(ctx, op)
	}

	switch k := kind.(type) {
	case Literal:
		return ResolutionValue(k.Value.Scalar()), nil

	case ExprConstant:
		if int(k.Constant) >= len(module.Constants) {
			return TypeResolution{}, errors.New("constant %d out of range", k.Constant)
		}
		return ResolutionHandle(module.Constants[k.Constant].Type), nil

	case ExprOverride:
		if int(k.Override) >= len(module.Overrides) {
			return TypeResolution{}, errors.New("override %d out of range", k.Override)
		}
		return ResolutionHandle(module.Overrides[k.Override].Type), nil

	case ExprZeroValue:
		return ResolutionHandle(k.Type), nil

	case ExprCompose:
		return ResolutionHandle(k.Type), nil

	case ExprAccess:
		base, err := operand(k.Base)
		if err != nil {
			return TypeResolution{}, errors.Wrap(err, "access base")
		}
		return resolveElement(module.Types, base, nil)

	case ExprAccessIndex:
		base, err := operand(k.Base)
		if err != nil {
			return TypeResolution{}, errors.Wrap(err, "access base")
		}
		index := k.Index
		return resolveElement(module.Types, base, &index)

	case ExprSplat:
		value, err := operand(k.Value)
		if err != nil {
			return TypeResolution{}, err
		}
		scalar, ok := value.(ScalarType)
		if !ok {
			return TypeResolution{}, errors.New("splat of non-scalar %v", TypeName(module.Types, value))
		}
		return ResolutionValue(VectorType{Size: k.Size, Scalar: scalar}), nil

	case ExprSwizzle:
		vector, err := operand(k.Vector)
		if err != nil {
			return TypeResolution{}, err
		}
		vec, ok := vector.(VectorType)
		if !ok {
			return TypeResolution{}, errors.New("swizzle of non-vector %v", TypeName(module.Types, vector))
		}
		return ResolutionValue(VectorType{Size: k.Size, Scalar: vec.Scalar}), nil

	case ExprFunctionArgument:
		if int(k.Index) >= len(fn.Arguments) {
			return TypeResolution{}, errors.New("function argument %d out of range", k.Index)
		}
		return ResolutionHandle(fn.Arguments[k.Index].Type), nil

	case ExprGlobalVariable:
		if int(k.Variable) >= len(module.GlobalVariables) {
			return TypeResolution{}, errors.New("global variable %d out of range", k.Variable)
		}
		gv := module.GlobalVariables[k.Variable]
		if gv.Space == SpaceHandle {
			return ResolutionHandle(gv.Type), nil
		}
		return ResolutionValue(PointerType{Base: gv.Type, Space: gv.Space}), nil

	case ExprLocalVariable:
		if int(k.Variable) >= len(fn.LocalVars) {
			return TypeResolution{}, errors.New("local variable %d out of range", k.Variable)
		}
		return ResolutionValue(PointerType{Base: fn.LocalVars[k.Variable].Type, Space: SpaceFunction}), nil

	case ExprLoad:
		ptr, err := operand(k.Pointer)
		if err != nil {
			return TypeResolution{}, err
		}
		pointee, ok := Pointee(module.Types, ptr)
		if !ok {
			return TypeResolution{}, errors.New("load through non-pointer %v", TypeName(module.Types, ptr))
		}
		if atomic, ok := pointee.Inner(module.Types).(AtomicType); ok {
			return ResolutionValue(atomic.Scalar), nil
		}
		return pointee, nil

	case ExprImageSample:
		image, err := operand(k.Image)
		if err != nil {
			return TypeResolution{}, err
		}
		img, ok := image.(ImageType)
		if !ok {
			return TypeResolution{}, errors.New("sample of non-image")
		}
		if img.Class == ImageClassDepth {
			return ResolutionValue(F32), nil
		}
		return ResolutionValue(VectorType{Size: Vec4, Scalar: ScalarType{Kind: img.SampledKind, Width: 4}}), nil

	case ExprImageLoad:
		image, err := operand(k.Image)
		if err != nil {
			return TypeResolution{}, err
		}
		img, ok := image.(ImageType)
		if !ok {
			return TypeResolution{}, errors.New("load of non-image")
		}
		switch img.Class {
		case ImageClassDepth:
			return ResolutionValue(F32), nil
		case ImageClassStorage:
			return ResolutionValue(VectorType{Size: Vec4, Scalar: StorageFormatScalar(img.StorageFormat)}), nil
		default:
			return ResolutionValue(VectorType{Size: Vec4, Scalar: ScalarType{Kind: img.SampledKind, Width: 4}}), nil
		}

	case ExprImageQuery:
		image, err := operand(k.Image)
		if err != nil {
			return TypeResolution{}, err
		}
		img, ok := image.(ImageType)
		if !ok {
			return TypeResolution{}, errors.New("query of non-image")
		}
		if _, ok := k.Query.(ImageQuerySize); !ok {
			return ResolutionValue(U32), nil
		}
		switch img.Dim {
		case Dim1D:
			return ResolutionValue(U32), nil
		case Dim3D:
			return ResolutionValue(VectorType{Size: Vec3, Scalar: U32}), nil
		default:
			return ResolutionValue(VectorType{Size: Vec2, Scalar: U32}), nil
		}

	case ExprUnary:
		if k.Expr >= h {
			return TypeResolution{}, errors.New("expression %d refers forward to %d", h, k.Expr)
		}
		return t.Resolve(ctx, k.Expr)

	case ExprBinary:
		left, err := operand(k.Left)
		if err != nil {
			return TypeResolution{}, errors.Wrap(err, "binary left")
		}
		right, err := operand(k.Right)
		if err != nil {
			return TypeResolution{}, errors.Wrap(err, "binary right")
		}
		return resolveBinary(k.Op, left, right, t.resolutions[k.Left])

	case ExprSelect:
		if k.Accept >= h {
			return TypeResolution{}, errors.New("expression %d refers forward to %d", h, k.Accept)
		}
		return t.Resolve(ctx, k.Accept)

	case ExprDerivative:
		if k.Expr >= h {
			return TypeResolution{}, errors.New("expression %d refers forward to %d", h, k.Expr)
		}
		return t.Resolve(ctx, k.Expr)

	case ExprRelational:
		arg, err := operand(k.Argument)
		if err != nil {
			return TypeResolution{}, err
		}
		if vec, ok := arg.(VectorType); ok && (k.Fun == RelationalIsNan || k.Fun == RelationalIsInf) {
			return ResolutionValue(VectorType{Size: vec.Size, Scalar: Bool}), nil
		}
		return ResolutionValue(Bool), nil

	case ExprMath:
		arg, err := operand(k.Arg)
		if err != nil {
			return TypeResolution{}, errors.Wrap(err, "math argument")
		}
		if r, ok := resolveMath(k.Fun, arg); ok {
			return r, nil
		}
		return t.Resolve(ctx, k.Arg)

	case ExprAs:
		value, err := operand(k.Expr)
		if err != nil {
			return TypeResolution{}, err
		}
		return resolveAs(module.Types, k, value)

	case ExprCallResult:
		if int(k.Function) >= len(module.Functions) {
			return TypeResolution{}, errors.New("function %d out of range", k.Function)
		}
		result := module.Functions[k.Function].Result
		if result == nil {
			return TypeResolution{}, errors.New("function %v has no result", module.Functions[k.Function].Name)
		}
		return ResolutionHandle(result.Type), nil

	case ExprAtomicResult:
		return ResolutionHandle(k.Type), nil

	case ExprWorkGroupUniformLoadResult:
		return ResolutionHandle(k.Type), nil

	case ExprArrayLength:
		return ResolutionValue(U32), nil

	case ExprSubgroupBallotResult:
		return ResolutionValue(VectorType{Size: Vec4, Scalar: U32}), nil

	case ExprRayQueryProceedResult:
		return ResolutionValue(Bool), nil

	default:
		return TypeResolution{}, errors.New("unsupported expression kind %T", kind)
	}
}

// resolveElement gives the type of base[index]; index is nil for dynamic access.
func resolveElement(types []Type, base TypeInner, index *uint32) (TypeResolution, error) {
	switch b := base.(type) {
	case VectorType:
		return ResolutionValue(b.Scalar), nil
	case MatrixType:
		return ResolutionValue(VectorType{Size: b.Rows, Scalar: b.Scalar}), nil
	case ArrayType:
		return ResolutionHandle(b.Base), nil
	case StructType:
		if index == nil {
			return TypeResolution{}, errors.New("dynamic index into struct")
		}
		if int(*index) >= len(b.Members) {
			return TypeResolution{}, errors.New("struct member %d out of range", *index)
		}
		return ResolutionHandle(b.Members[*index].Type), nil
	case ValuePointerType:
		if b.Size == 0 {
			return TypeResolution{}, errors.New("index into pointer to scalar")
		}
		return ResolutionValue(ValuePointerType{Scalar: b.Scalar, Space: b.Space}), nil
	case PointerType:
		if int(b.Base) >= len(types) {
			return TypeResolution{}, errors.New("type %d out of range", b.Base)
		}
		switch pointee := types[b.Base].Inner.(type) {
		case VectorType:
			return ResolutionValue(ValuePointerType{Scalar: pointee.Scalar, Space: b.Space}), nil
		case MatrixType:
			return ResolutionValue(ValuePointerType{Size: pointee.Rows, Scalar: pointee.Scalar, Space: b.Space}), nil
		case ArrayType:
			return ResolutionValue(PointerType{Base: pointee.Base, Space: b.Space}), nil
		case StructType:
			if index == nil {
				return TypeResolution{}, errors.New("dynamic index into struct")
			}
			if int(*index) >= len(pointee.Members) {
				return TypeResolution{}, errors.New("struct member %d out of range", *index)
			}
			return ResolutionValue(PointerType{Base: pointee.Members[*index].Type, Space: b.Space}), nil
		default:
			return TypeResolution{}, errors.New("index into pointer to %v", TypeName(types, pointee))
		}
	default:
		return TypeResolution{}, errors.New("cannot index %v", TypeName(types, base))
	}
}

func resolveBinary(op BinaryOperator, left, right TypeInner, leftRes TypeResolution) (TypeResolution, error) {
	switch {
	case op.IsComparison():
		if vec, ok := left.(VectorType); ok {
			return ResolutionValue(VectorType{Size: vec.Size, Scalar: Bool}), nil
		}
		return ResolutionValue(Bool), nil

	case op == BinaryLogicalAnd || op == BinaryLogicalOr:
		return ResolutionValue(Bool), nil

	case op == BinaryMultiply:
		lm, leftMat := left.(MatrixType)
		rm, rightMat := right.(MatrixType)
		_, leftScalar := left.(ScalarType)
		rv, rightVec := right.(VectorType)
		lv, leftVec := left.(VectorType)

		switch {
		case leftMat && rightMat:
			return ResolutionValue(MatrixType{Columns: rm.Columns, Rows: lm.Rows, Scalar: lm.Scalar}), nil
		case leftMat && rightVec:
			return ResolutionValue(VectorType{Size: lm.Rows, Scalar: lm.Scalar}), nil
		case leftVec && rightMat:
			return ResolutionValue(VectorType{Size: rm.Columns, Scalar: lv.Scalar}), nil
		case leftScalar && (rightVec || rightMat):
			if rightVec {
				return ResolutionValue(rv), nil
			}
			return ResolutionValue(rm), nil
		}
	}

	if _, ok := left.(ScalarType); ok {
		if vec, ok := right.(VectorType); ok && op != BinaryShiftLeft && op != BinaryShiftRight {
			return ResolutionValue(vec), nil
		}
	}

	if leftRes.IsZero() {
		return ResolutionValue(left), nil
	}

	return leftRes, nil
}

func resolveMath(fun MathFunction, arg TypeInner) (TypeResolution, bool) {
	vec4 := func(s ScalarType) TypeResolution { return ResolutionValue(VectorType{Size: Vec4, Scalar: s}) }
	vec2 := func(s ScalarType) TypeResolution { return ResolutionValue(VectorType{Size: Vec2, Scalar: s}) }

	switch fun {
	case MathDot, MathLength, MathDistance:
		if s, ok := ScalarOf(arg); ok {
			return ResolutionValue(s), true
		}
	case MathDeterminant:
		if m, ok := arg.(MatrixType); ok {
			return ResolutionValue(m.Scalar), true
		}
	case MathTranspose:
		if m, ok := arg.(MatrixType); ok {
			return ResolutionValue(MatrixType{Columns: m.Rows, Rows: m.Columns, Scalar: m.Scalar}), true
		}
	case MathPack4x8snorm, MathPack4x8unorm, MathPack2x16snorm, MathPack2x16unorm,
		MathPack2x16float, MathPack4xI8, MathPack4xU8:
		return ResolutionValue(U32), true
	case MathUnpack4x8snorm, MathUnpack4x8unorm:
		return vec4(F32), true
	case MathUnpack2x16snorm, MathUnpack2x16unorm, MathUnpack2x16float:
		return vec2(F32), true
	case MathUnpack4xI8:
		return vec4(I32), true
	case MathUnpack4xU8:
		return vec4(U32), true
	}

	return TypeResolution{}, false
}

func resolveAs(types []Type, as ExprAs, value TypeInner) (TypeResolution, error) {
	scalar, ok := ScalarOf(value)
	if !ok {
		return TypeResolution{}, errors.New("cast of %v", TypeName(types, value))
	}

	target := ScalarType{Kind: as.Kind, Width: scalar.Width}
	if as.Convert != nil {
		target.Width = *as.Convert
	}
	if target.Kind == ScalarBool {
		target.Width = 1
	}

	inner, ok := WithScalar(value, target)
	if !ok {
		return TypeResolution{}, errors.New("cast of %v", TypeName(types, value))
	}

	return ResolutionValue(inner), nil
}

// StorageFormatScalar is the scalar a storage image texel is read as.
func StorageFormatScalar(f StorageFormat) ScalarType {
	switch f {
	case StorageFormatRgba8Uint, StorageFormatR32Uint, StorageFormatRgba32Uint:
		return U32
	case StorageFormatRgba8Sint, StorageFormatR32Sint, StorageFormatRgba32Sint:
		return I32
	default:
		return F32
	}
}
