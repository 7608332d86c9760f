package diff

import "strings"

// LineType classifies a line of a line diff.
type LineType int

const (
	Equal  LineType = iota // present on both sides
	Insert                 // after only
	Delete                 // before only
)

// Line is one line of a line diff.
type Line struct {
	Type    LineType
	Content string
}

// LineDiff computes a line diff between two renderings of a document.
func LineDiff(before, after []byte) []Line {
	return myers(splitLines(string(before)), splitLines(string(after)))
}

// splitLines drops the empty element a trailing newline would produce.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// myers returns the shortest edit script turning a into b, in
// O((N+M)*D) time for an edit distance of D.
func myers(a, b []string) []Line {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return uniform(Insert, b)
	case m == 0:
		return uniform(Delete, a)
	}

	offset := n + m
	v := make([]int, 2*offset+1)
	var trace [][]int
	for d := 0; d <= offset; d++ {
		for k := -d; k <= d; k += 2 {
			x := nextX(v, k, d, offset)
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[k+offset] = x
			if x >= n && y >= m {
				trace = append(trace, append([]int(nil), v...))
				return backtrack(trace, a, b)
			}
		}
		trace = append(trace, append([]int(nil), v...))
	}
	return nil
}

// nextX picks the furthest reaching path on diagonal k: down from k+1 is an
// insertion, right from k-1 a deletion.
func nextX(v []int, k, d, offset int) int {
	if k == -d || (k != d && v[k-1+offset] < v[k+1+offset]) {
		return v[k+1+offset]
	}
	return v[k-1+offset] + 1
}

func backtrack(trace [][]int, a, b []string) []Line {
	offset := len(a) + len(b)
	x, y := len(a), len(b)
	var out []Line
	for d := len(trace) - 1; d > 0; d-- {
		prev := trace[d-1]
		k := x - y
		prevK := k - 1
		if k == -d || (k != d && prev[k-1+offset] < prev[k+1+offset]) {
			prevK = k + 1
		}
		prevX := prev[prevK+offset]
		prevY := prevX - prevK
		for x > prevX && y > prevY {
			x--
			y--
			out = append(out, Line{Type: Equal, Content: a[x]})
		}
		if prevK == k-1 {
			x--
			out = append(out, Line{Type: Delete, Content: a[x]})
		} else {
			y--
			out = append(out, Line{Type: Insert, Content: b[y]})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		out = append(out, Line{Type: Equal, Content: a[x]})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func uniform(t LineType, lines []string) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{Type: t, Content: l}
	}
	return out
}
