package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// weiPerCoin 账本基础单位，1币 = 10^18 wei
var weiPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ToSafeInt 将账本的256位整数安全转换为int64
// 超出范围或为nil时返回 (0, false)，永不panic；是否致命由调用方决定
func ToSafeInt(raw *big.Int) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	if !raw.IsInt64() {
		return 0, false
	}
	return raw.Int64(), true
}

// ToSafeUint 将账本整数安全转换为uint64，超出范围返回 (0, false)
func ToSafeUint(raw *big.Int) (uint64, bool) {
	if raw == nil {
		return 0, false
	}
	if !raw.IsUint64() {
		return 0, false
	}
	return raw.Uint64(), true
}

// ToDecimalString 将wei金额转换为十进制字符串（定点除以10^18，不经过浮点数）
func ToDecimalString(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}

	abs := new(big.Int).Abs(wei)
	quo, rem := new(big.Int).QuoRem(abs, weiPerCoin, new(big.Int))

	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}

	if rem.Sign() == 0 {
		return sign + quo.String()
	}

	// 小数部分补齐18位后去掉尾部的零
	frac := fmt.Sprintf("%018s", rem.String())
	frac = strings.TrimRight(frac, "0")

	return sign + quo.String() + "." + frac
}

// FromDecimalString 将十进制字符串解析为wei金额（ToDecimalString的逆操作）
func FromDecimalString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("金额不能为空")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if idx := strings.Index(s, "."); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 18 {
		return nil, fmt.Errorf("金额精度超过18位小数: %s", s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("无效的金额: %s", s)
	}

	wei := new(big.Int).Mul(whole, weiPerCoin)

	if fracPart != "" {
		// 小数部分右侧补零到18位
		padded := fracPart + strings.Repeat("0", 18-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("无效的金额: %s", s)
		}
		wei.Add(wei, frac)
	}

	if neg {
		wei.Neg(wei)
	}
	return wei, nil
}
