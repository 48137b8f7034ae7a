package contract

import (
	"fmt"
	"sort"
)

// 校验库函数（纯函数，无 I/O）：
// - SortEdits:     按 Start 升序、End 升序、Replacement 字节序排序（返回副本）
// - ValidateGroup: 对已排序的编辑做区间合法性与非重叠校验
func SortEdits(edits []Edit) []Edit {
	out := make([]Edit, len(edits))
	copy(out, edits)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Replacement < b.Replacement
	})
	return out
}

// ValidateGroup 要求：0 <= Start <= End <= size，且相邻编辑 edits[i].End <= edits[i+1].Start。
// 同一位置的多次插入（Start == End）互不重叠，允许共存。
func ValidateGroup(sorted []Edit, size int) error {
	prevEnd := 0
	for i, e := range sorted {
		if e.Start < 0 || e.End < e.Start {
			return fmt.Errorf("%w: edit %d range [%d,%d)", ErrMalformedEditGroup, i, e.Start, e.End)
		}
		if e.End > size {
			return fmt.Errorf("%w: edit %d end %d beyond %d bytes", ErrMalformedEditGroup, i, e.End, size)
		}
		if i > 0 && e.Start < prevEnd {
			return fmt.Errorf("%w: edit %d starts at %d before previous end %d", ErrMalformedEditGroup, i, e.Start, prevEnd)
		}
		prevEnd = e.End
	}
	return nil
}
