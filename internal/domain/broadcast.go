package domain

import "encoding/json"

// Broadcast 是发往某个订阅目的地的一条消息，在实例间通过 pub/sub 转发。
type Broadcast struct {
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}
