package redisstate

import (
	"fmt"
	"strconv"
	"strings"
)

// Key 格式与已部署的客户端共享，不能改动。

func codeKey(code string) string { return "code:" + code }

func roomPrefix(roomID string) string { return "room:" + roomID + ":" }

func roomCodeKey(roomID string) string { return roomPrefix(roomID) + "code" }
func sessionStatusKey(roomID string) string { return roomPrefix(roomID) + "session:status" }
func deckIDKey(roomID string) string { return roomPrefix(roomID) + "deckId" }
func totalPageKey(roomID string) string { return roomPrefix(roomID) + "totalPage" }
func presenterPageKey(roomID string) string { return roomPrefix(roomID) + "presenterPage" }
func maxSlideKey(roomID string) string { return roomPrefix(roomID) + "maxSlide" }
func slideUnlockKey(roomID string) string { return roomPrefix(roomID) + "option:slideUnlock" }
func presenterKeyHashKey(roomID string) string { return roomPrefix(roomID) + "presenterKeyHash" }
func enterAudienceKey(roomID string) string { return roomPrefix(roomID) + "enterAudienceCount" }
func audienceOnlineKey(roomID string) string { return roomPrefix(roomID) + "audience:online" }
func questionCountKey(roomID string) string { return roomPrefix(roomID) + "questionCount" }
func roomQuestionsKey(roomID string) string { return roomPrefix(roomID) + "questions" }
func stickersKey(roomID string) string { return roomPrefix(roomID) + "stickers" }
func questionEventsKey(roomID string) string { return "stream:question:events:" + roomID }
func rateKey(roomID, actorID, action string) string {
	return fmt.Sprintf("rate:%s:%s:%s", roomID, actorID, action)
}

func questionKey(roomID, id string) string {
	return roomPrefix(roomID) + "question:" + id
}

func pageQuestionsKey(roomID string, slide int) string {
	return fmt.Sprintf("%spage:%d:questions", roomPrefix(roomID), slide)
}

func slideAudienceKey(roomID string, slide int) string {
	return fmt.Sprintf("%sslide:%d", roomPrefix(roomID), slide)
}

func revisitKey(roomID string, slide int) string {
	return fmt.Sprintf("%srevisit:%d", roomPrefix(roomID), slide)
}

func revisitUserKey(roomID string, slide int, audienceID string) string {
	return fmt.Sprintf("%srevisit:user:%d:%s", roomPrefix(roomID), slide, audienceID)
}

func revisitUsersKey(roomID string, slide int) string {
	return fmt.Sprintf("%srevisit:users:%d", roomPrefix(roomID), slide)
}

func feedbackKey(roomID string, slide int) string {
	return fmt.Sprintf("%sliveFeedback:slide:%d", roomPrefix(roomID), slide)
}

func feedbackReactorsKey(roomID string, slide, emoji int) string {
	return fmt.Sprintf("%s:emoji:%d:audience", feedbackKey(roomID, slide), emoji)
}

func feedbackCountsKey(roomID string, slide int) string {
	return feedbackKey(roomID, slide) + ":emoji:counts"
}

func feedbackOrderKey(roomID string, slide int) string {
	return feedbackKey(roomID, slide) + ":emoji:order"
}

func emojiField(emoji int) string { return "emoji:" + strconv.Itoa(emoji) }

func parseEmojiField(field string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(field, "emoji:"))
	return n, err == nil
}

// slideFromPageQuestionsKey 解析 room:<roomId>:page:<n>:questions 中的 n。
func slideFromPageQuestionsKey(roomID, key string) (int, bool) {
	rest := strings.TrimPrefix(key, roomPrefix(roomID)+"page:")
	if rest == key || !strings.HasSuffix(rest, ":questions") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, ":questions"))
	return n, err == nil
}
