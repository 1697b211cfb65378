package gateway

import (
	"encoding/json"
	"strings"
)

// Command 是帧的命令
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandDisconnect  Command = "DISCONNECT"

	CommandConnected Command = "CONNECTED"
	CommandMessage   Command = "MESSAGE"
	CommandReceipt   Command = "RECEIPT"
	CommandError     Command = "ERROR"
)

// Frame 是实时连接上传输的 JSON 帧。
type Frame struct {
	Command     Command           `json:"command"`
	ID          string            `json:"id,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// BearerToken 从帧头中提取 bearer 凭证，头名不区分大小写。
func (f Frame) BearerToken() string {
	for name, value := range f.Headers {
		if strings.EqualFold(name, "Authorization") {
			return ParseBearer(value)
		}
	}
	return ""
}

// ParseBearer 解析 "Bearer <token>"；格式不对时返回空字符串。
func ParseBearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// ErrorBody 是 ERROR 帧的内容
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessageFrame 构造一条 MESSAGE 帧。
func NewMessageFrame(destination string, payload json.RawMessage) Frame {
	return Frame{Command: CommandMessage, Destination: destination, Body: payload}
}

// NewErrorFrame 构造 ERROR 帧；id 为触发错误的客户端帧 id。
func NewErrorFrame(id, code, message string) Frame {
	body, _ := json.Marshal(ErrorBody{Code: code, Message: message})
	return Frame{Command: CommandError, ID: id, Body: body}
}
