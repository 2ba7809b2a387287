package chain

import (
	"encoding/hex"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/chain-game/internal/errors"
)

// errorStringSelector 标准字符串回滚 Error(string) 的4字节选择器
const errorStringSelector = "08c379a0"

// dataError go-ethereum的rpc错误携带结构化回滚数据时实现此接口
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// ClassifySendError 将发送阶段的错误归类为规范错误
// 回滚错误携带解码原因；签名者拒绝归为良性取消；其余原样上抛，不做分类
func ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	if IsUserRejectedError(err) {
		return errors.Wrap(err, errors.ErrUserRejected)
	}
	if reason, ok := ExtractRevertReason(err); ok {
		return errors.Reverted(reason).WithCause(err)
	}
	return err
}

// IsRateLimitError 判断错误是否为限流（HTTP 429经RPC传输层透出）
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "request limit")
}

// IsUserRejectedError 判断错误是否为签名者拒绝
func IsUserRejectedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "rejected by user")
}

// ExtractRevertReason 分层提取回滚原因
// 优先读取RPC错误的结构化数据字段，失败时从错误文本中手工解码ABI回滚载荷
func ExtractRevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	// 第一层：结构化数据字段
	if de, ok := err.(dataError); ok {
		if reason, ok := decodeErrorData(de.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()

	// 第二层：传输层附带的明文原因
	const prefix = "execution reverted"
	if idx := strings.Index(strings.ToLower(msg), prefix); idx >= 0 {
		rest := strings.TrimSpace(msg[idx+len(prefix):])
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSpace(rest)
		if rest != "" && !strings.HasPrefix(rest, "0x") {
			return rest, true
		}
	}

	// 第三层：错误文本中的裸十六进制载荷
	if idx := strings.Index(msg, "0x"+errorStringSelector); idx >= 0 {
		hexPayload := msg[idx+2:]
		if end := strings.IndexFunc(hexPayload, func(r rune) bool {
			return !isHexChar(r)
		}); end > 0 {
			hexPayload = hexPayload[:end]
		}
		if data, decErr := hex.DecodeString(hexPayload); decErr == nil {
			return DecodeRevertPayload(data)
		}
	}

	if strings.Contains(strings.ToLower(msg), "revert") {
		return "", true
	}
	return "", false
}

// DecodeRevertPayload 手工解码标准ABI字符串回滚载荷
// 布局：4字节选择器 + 32字节偏移 + 32字节长度 + UTF-8字符串
func DecodeRevertPayload(data []byte) (string, bool) {
	if len(data) < 4+32+32 {
		return "", false
	}
	if hex.EncodeToString(data[:4]) != errorStringSelector {
		return "", false
	}

	offset, ok := ToSafeUint(new(big.Int).SetBytes(data[4 : 4+32]))
	if !ok || offset != 32 {
		return "", false
	}

	length, ok := ToSafeUint(new(big.Int).SetBytes(data[4+32 : 4+64]))
	if !ok || uint64(len(data)) < 4+64+length {
		return "", false
	}

	reason := string(data[4+64 : 4+64+length])
	if !utf8.ValidString(reason) {
		return "", false
	}
	return reason, true
}

// decodeErrorData 解码RPC错误的结构化数据字段
func decodeErrorData(data interface{}) (string, bool) {
	switch v := data.(type) {
	case string:
		s := strings.TrimPrefix(v, "0x")
		raw, err := hex.DecodeString(s)
		if err != nil {
			return "", false
		}
		return DecodeRevertPayload(raw)
	case []byte:
		return DecodeRevertPayload(v)
	default:
		return "", false
	}
}

func isHexChar(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// revertGuidance 已知回滚原因到可操作提示的映射
// 未匹配的原因原样展示（解码后的文本作为兜底）
var revertGuidance = []struct {
	phrase   string
	guidance string
}{
	{"insufficient stake", "入场押金不足，请按游戏要求的押金金额重新提交"},
	{"incorrect stake", "押金金额与游戏要求不一致，请核对后重试"},
	{"game is full", "该游戏人数已满，请选择其他游戏"},
	{"wrong player count", "玩家人数不符合游戏要求"},
	{"already joined", "你已加入该游戏，无需重复加入"},
	{"not a player", "你尚未加入该游戏，请先加入"},
	{"not joinable", "该游戏当前不可加入（可能已开始或已结束）"},
	{"wrong password", "游戏密码错误"},
	{"randomness not fulfilled", "随机数尚未就绪，请稍后再试"},
	{"vrf not fulfilled", "随机数尚未就绪，请稍后再试"},
	{"hash mismatch", "揭示的分数或盐值与提交记录不符，本地提交状态可能已丢失"},
	{"commit mismatch", "揭示的分数或盐值与提交记录不符，本地提交状态可能已丢失"},
	{"already completed", "该游戏已结束，无法再提交"},
	{"already committed", "你已提交过分数承诺，请直接揭示"},
	{"not creator", "只有游戏创建者可以执行此操作"},
}

// RewriteRevertReason 将已知回滚原因改写为可操作的提示
func RewriteRevertReason(reason string) string {
	if reason == "" {
		return "合约拒绝了该操作"
	}
	lower := strings.ToLower(reason)
	for _, entry := range revertGuidance {
		if strings.Contains(lower, entry.phrase) {
			return entry.guidance
		}
	}
	return reason
}
