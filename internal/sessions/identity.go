// Package sessions derives conversation identities from chat coordinates.
//
// Every independent conversation stream is addressed by one Identity:
//
//	Private chat: private:{userId}
//	Group topic:  group:{chatId}:{topicId}
//
// Non-forum groups use topic 0. Examples:
//
//	private:386246614
//	group:-100123456:0
//	group:-100123456:99
package sessions

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerKind distinguishes private chats from group topics.
type PeerKind string

const (
	PeerPrivate PeerKind = "private"
	PeerGroup   PeerKind = "group"
)

// DefaultTopicID is used for groups without forum topics.
const DefaultTopicID = 0

// Identity is immutable once derived from an inbound message.
type Identity struct {
	Kind    PeerKind
	ChatID  string
	TopicID int
}

// Private builds the identity of a one-to-one chat with userID.
func Private(userID string) Identity {
	return Identity{Kind: PeerPrivate, ChatID: userID}
}

// GroupTopic builds the identity of one topic inside a group.
func GroupTopic(chatID string, topicID int) Identity {
	return Identity{Kind: PeerGroup, ChatID: chatID, TopicID: topicID}
}

func (id Identity) IsGroup() bool { return id.Kind == PeerGroup }

// GroupKey returns the parent group's key, or "" for private identities.
func (id Identity) GroupKey() string {
	if id.Kind != PeerGroup {
		return ""
	}
	return id.ChatID
}

func (id Identity) String() string {
	if id.Kind == PeerGroup {
		return fmt.Sprintf("group:%s:%d", id.ChatID, id.TopicID)
	}
	return "private:" + id.ChatID
}

// ParseIdentity is the inverse of Identity.String.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] == string(PeerPrivate) && parts[1] != "":
		return Private(parts[1]), nil
	case len(parts) == 3 && parts[0] == string(PeerGroup) && parts[1] != "":
		topic, err := strconv.Atoi(parts[2])
		if err != nil || topic < 0 {
			return Identity{}, fmt.Errorf("invalid topic in identity %q", s)
		}
		return GroupTopic(parts[1], topic), nil
	}
	return Identity{}, fmt.Errorf("invalid identity %q", s)
}
