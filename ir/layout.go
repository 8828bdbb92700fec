package ir

// TypeLayout is the size and alignment of a host-shareable type.
type TypeLayout struct {
	Size  uint32
	Align uint32
}

// RoundUp rounds v up to a multiple of align, which must be a power of two.
func RoundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}

	return (v + align - 1) &^ (align - 1)
}

// Layouter computes memory layouts of arena types, one entry per type.
// Types only refer to earlier handles, so Update can be called after
// each append.
type Layouter struct {
	layouts []TypeLayout
}

// Update computes layouts for the types not seen yet.
func (l *Layouter) Update(types []Type) {
	for h := len(l.layouts); h < len(types); h++ {
		l.layouts = append(l.layouts, l.compute(types[h].Inner))
	}
}

// Layout returns the layout of h. Update must have seen h.
func (l *Layouter) Layout(h TypeHandle) TypeLayout {
	if int(h) >= len(l.layouts) {
		return TypeLayout{}
	}

	return l.layouts[h]
}

// InnerLayout computes the layout of a type that may not be in the arena.
func (l *Layouter) InnerLayout(inner TypeInner) TypeLayout {
	return l.compute(inner)
}

func (l *Layouter) compute(inner TypeInner) TypeLayout {
	switch t := inner.(type) {
	case ScalarType:
		w := uint32(t.Width)
		return TypeLayout{Size: w, Align: w}
	case AtomicType:
		w := uint32(t.Scalar.Width)
		return TypeLayout{Size: w, Align: w}
	case VectorType:
		return vectorLayout(t.Size, t.Scalar)
	case MatrixType:
		col := vectorLayout(t.Rows, t.Scalar)
		stride := RoundUp(col.Size, col.Align)

		return TypeLayout{Size: stride * uint32(t.Columns), Align: col.Align}
	case ArrayType:
		elem := l.Layout(t.Base)
		stride := t.Stride
		if stride == 0 {
			stride = RoundUp(elem.Size, elem.Align)
		}

		return TypeLayout{Size: stride * t.Size.Constant, Align: elem.Align}
	case StructType:
		align := uint32(1)
		for _, m := range t.Members {
			if a := l.Layout(m.Type).Align; a > align {
				align = a
			}
		}

		return TypeLayout{Size: t.Span, Align: align}
	default:
		return TypeLayout{Size: 0, Align: 1}
	}
}

func vectorLayout(size VectorSize, s ScalarType) TypeLayout {
	w := uint32(s.Width)
	n := uint32(size)

	align := w * 4
	if size == Vec2 {
		align = w * 2
	}

	return TypeLayout{Size: w * n, Align: align}
}
