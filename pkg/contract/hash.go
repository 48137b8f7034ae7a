package contract

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// HashLen: 128 bit 十六进制编码长度。
const HashLen = 32

// ParseHash 校验并规范化 Hash（大小写不敏感，输出小写）。
// 长度不为 32 或含非十六进制字符时返回 ErrMalformedLine。
func ParseHash(s string) (Hash, error) {
	if len(s) != HashLen {
		return "", ErrMalformedLine
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return "", ErrMalformedLine
		}
	}
	return Hash(strings.ToLower(s)), nil
}

// HashOf 计算句子文本的内容标识：UTF-8 字节的 MD5 十六进制摘要。
func HashOf(text string) Hash {
	sum := md5.Sum([]byte(text))
	return Hash(hex.EncodeToString(sum[:]))
}
