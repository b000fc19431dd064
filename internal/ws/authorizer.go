package ws

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"messaging-service/internal/repositories"
)

// ChannelAuthorizer maps channel names to their access predicates:
// chat.{userId} admits only its owner, presence.chat admits any
// authenticated user, and group.{groupId} admits current members.
type ChannelAuthorizer struct {
	groups repositories.GroupRepository
}

// NewChannelAuthorizer builds the authorizer over the group repository.
func NewChannelAuthorizer(groups repositories.GroupRepository) *ChannelAuthorizer {
	return &ChannelAuthorizer{groups: groups}
}

// Authorize implements channels.Authorizer.
func (a *ChannelAuthorizer) Authorize(ctx context.Context, userID int, channel string) (bool, error) {
	if userID <= 0 {
		return false, nil
	}

	switch {
	case channel == "presence.chat":
		return true, nil
	case strings.HasPrefix(channel, "chat."):
		owner, err := strconv.Atoi(strings.TrimPrefix(channel, "chat."))
		if err != nil {
			return false, nil
		}
		return owner == userID, nil
	case strings.HasPrefix(channel, "group."):
		groupID, err := strconv.Atoi(strings.TrimPrefix(channel, "group."))
		if err != nil {
			return false, nil
		}
		_, err = a.groups.GetMember(ctx, groupID, userID)
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}
