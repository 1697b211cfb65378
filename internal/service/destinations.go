package service

import "context"

// Broadcaster 把消息发布到订阅目的地。发布是 fire-and-forget 的。
type Broadcaster interface {
	Broadcast(ctx context.Context, destination string, payload interface{}) error
}

// 广播目的地
func PublicTopic(roomID string) string { return "/topic/p/" + roomID + "/public" }
func PresenterTopic(roomID string) string { return "/topic/p/" + roomID + "/presenter" }

func presentationTopic(roomID, name string) string {
	return "/topic/presentation/" + roomID + "/" + name
}

func ReactionsTopic(roomID string) string { return presentationTopic(roomID, "reactions") }
func LiveFeedbackTopic(roomID string) string { return presentationTopic(roomID, "liveFeedback") }
func PageChangeTopic(roomID string) string { return presentationTopic(roomID, "pageChange") }
func FocusOnTopic(roomID string) string { return presentationTopic(roomID, "focusOn") }
func UnlockTopic(roomID string) string { return presentationTopic(roomID, "option/unlock") }
