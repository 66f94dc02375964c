// Package membership decides who may read and write a channel: a user may
// if they belong to the group that owns it.
package membership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/repository"
)

type Oracle struct {
	channels repository.ChannelRepository
	groups   repository.GroupRepository
	members  repository.MembershipRepository
}

func NewOracle(
	channels repository.ChannelRepository,
	groups repository.GroupRepository,
	members repository.MembershipRepository,
) *Oracle {
	return &Oracle{channels: channels, groups: groups, members: members}
}

// ResolveChannelGroup returns the group owning channelID.
func (o *Oracle) ResolveChannelGroup(ctx context.Context, channelID string) (uuid.UUID, error) {
	id, err := uuid.Parse(channelID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("channel id %q: %w", channelID, apperr.ErrInvalidArgument)
	}
	ch, err := o.channel(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return ch.GroupID, nil
}

func (o *Oracle) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	ok, err := o.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("membership of %s in %s: %w", userID, groupID, err)
	}
	return ok, nil
}

// AuthorizeChannel loads the channel and checks userID belongs to its group.
// It fails with apperr.ErrNotFound or apperr.ErrForbidden.
func (o *Oracle) AuthorizeChannel(ctx context.Context, userID, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := o.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	ok, err := o.IsMember(ctx, userID, ch.GroupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s in channel %s: %w", userID, channelID, apperr.ErrForbidden)
	}
	return ch, nil
}

// GroupOwner returns the owner of the group that owns channelID.
func (o *Oracle) GroupOwner(ctx context.Context, channelID uuid.UUID) (uuid.UUID, error) {
	ch, err := o.channel(ctx, channelID)
	if err != nil {
		return uuid.Nil, err
	}
	g, err := o.groups.GetByID(ctx, ch.GroupID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load group: %w", err)
	}
	if g == nil {
		return uuid.Nil, fmt.Errorf("group %s: %w", ch.GroupID, apperr.ErrNotFound)
	}
	return g.OwnerID, nil
}

func (o *Oracle) channel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := o.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, apperr.ErrNotFound)
	}
	return ch, nil
}
