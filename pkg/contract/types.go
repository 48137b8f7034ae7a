package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Hash: 句子内容标识（128 bit，32 位十六进制，统一小写）。
// 用于在独立产出的句子流与编辑流之间做连接。
type Hash string

// Edit: 针对 clean 句子 UTF-8 字节表示的一次区间替换。
// 约束：
// - Start >= 0 且 End >= Start（违例在组校验时报 ErrMalformedEditGroup）；
// - 偏移以字节计，而非字符/码点；
// - Start == End 且 Replacement 非空为纯插入；区间非空且 Replacement 为空为纯删除。
type Edit struct {
	Hash        Hash
	Start       int
	End         int
	Replacement string
}

// EditGroup: 同一 Hash 的全部编辑（多对一指向同一句子）。
// 组内区间排序后必须两两不重叠。
type EditGroup struct {
	Hash  Hash
	Edits []Edit
}

// SentenceRecord: 语料抽取得到的 clean 句子；同一 Hash 以首次出现为准。
type SentenceRecord struct {
	Hash Hash
	Text string
}

// SentencePair: 最终输出单元；构造一次后原样写出，不再修改。
type SentencePair struct {
	Corrupted string
	Clean     string
}
