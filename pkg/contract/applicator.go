package contract

// Applicator: 将一个编辑组作用于 clean 句子，产出 corrupted 句子。
// 约束：
//  1. 纯计算，不做 I/O，不修改入参；
//  2. 相同输入（与组内顺序无关）产出字节级一致的结果；
//  3. 组非法返回 ErrMalformedEditGroup，结果非法 UTF-8 返回 ErrInvalidBoundary；
//  4. 空组为恒等变换。
type Applicator interface {
	Apply(clean string, edits []Edit) (string, error)
}
