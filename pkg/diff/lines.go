package diff

// LineOpType classifies a line in an edit script.
type LineOpType int

const (
	Equal  LineOpType = iota // Line is in both a and b.
	Insert                   // Line is only in b.
	Delete                   // Line is only in a.
)

// LineOp is one step of an edit script.
type LineOp struct {
	Type LineOpType
	Line string
}

// Lines returns a shortest edit script turning a into b (Myers, O((N+M)D)).
func Lines(a, b []string) []LineOp {
	n, m := len(a), len(b)
	if n+m == 0 {
		return nil
	}
	off := n + m
	v := make([]int, 2*off+2)

	// frontiers[d] is v as it was before step d.
	var frontiers [][]int
	for d := 0; d <= n+m; d++ {
		frontiers = append(frontiers, append([]int(nil), v...))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[off+k] = x
			if x >= n && y >= m {
				return unwind(frontiers, a, b, off)
			}
		}
	}
	return nil
}

// unwind walks the recorded frontiers back from (len(a), len(b)) to the
// origin and returns the edit script in forward order.
func unwind(frontiers [][]int, a, b []string, off int) []LineOp {
	x, y := len(a), len(b)
	var rev []LineOp
	for d := len(frontiers) - 1; d > 0; d-- {
		v := frontiers[d]
		k := x - y
		prevK := k - 1
		if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
			prevK = k + 1
		}
		prevX := v[off+prevK]
		prevY := prevX - prevK
		for x > prevX && y > prevY {
			x--
			y--
			rev = append(rev, LineOp{Type: Equal, Line: a[x]})
		}
		if x == prevX {
			y--
			rev = append(rev, LineOp{Type: Insert, Line: b[y]})
		} else {
			x--
			rev = append(rev, LineOp{Type: Delete, Line: a[x]})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		rev = append(rev, LineOp{Type: Equal, Line: a[x]})
	}

	ops := make([]LineOp, len(rev))
	for i, op := range rev {
		ops[len(rev)-1-i] = op
	}
	return ops
}
