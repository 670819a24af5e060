package leverage

import (
	"context"
	"errors"
	"log/slog"

	"tmcore/internal/logging"
	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/snapstore"
)

// ResourceHandle identifies the current version of a source resource.
type ResourceHandle struct {
	Channel  string
	RID      string
	Modified int64
}

// TranslatedSegment is one segment of a translated resource.
type TranslatedSegment struct {
	SID  string
	NSrc nstring.String
	NTgt nstring.String
}

// TranslatedResource is the last known translated version of a resource.
type TranslatedResource struct {
	RID string
	// Modified is the resource modification time in Unix milliseconds.
	Modified int64
	Segments []TranslatedSegment
}

// ChannelSource resolves resources and their prior translations. Both methods
// return nil without error when nothing is known.
type ChannelSource interface {
	GetResourceHandle(ctx context.Context, channel, rid string) (*ResourceHandle, error)
	GetExistingTranslatedResource(ctx context.Context, handle *ResourceHandle, targetLang string) (*TranslatedResource, error)
}

// SnapshotChannels serves ChannelSource from a snapshot store. Source
// resources live in their channel; translated resources for a language live
// in the channel "<channel>/<lang>" with ntgt set on their segments.
type SnapshotChannels struct {
	store  *snapstore.Store
	logger *slog.Logger
}

// NewSnapshotChannels wraps store.
func NewSnapshotChannels(store *snapstore.Store, logger *slog.Logger) *SnapshotChannels {
	return &SnapshotChannels{
		store:  store,
		logger: logging.NewComponentLogger(logger, "channels"),
	}
}

// TranslatedChannel names the channel holding translations of channel into
// lang.
func TranslatedChannel(channel, lang string) string {
	return channel + "/" + lang
}

func (c *SnapshotChannels) GetResourceHandle(ctx context.Context, channel, rid string) (*ResourceHandle, error) {
	res, ok, err := c.latestResource(ctx, channel, rid)
	if err != nil || !ok {
		return nil, err
	}
	return &ResourceHandle{Channel: channel, RID: res.RID, Modified: res.Modified}, nil
}

func (c *SnapshotChannels) GetExistingTranslatedResource(ctx context.Context, handle *ResourceHandle, targetLang string) (*TranslatedResource, error) {
	if handle == nil {
		return nil, nil
	}
	channel := TranslatedChannel(handle.Channel, targetLang)
	ts, ok, err := c.store.LatestTimestamp(ctx, channel)
	if err != nil || !ok {
		return nil, err
	}
	res, err := c.store.GetResource(ctx, ts, channel, handle.RID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	segments, err := c.store.ResourceSegments(ctx, ts, channel, handle.RID)
	if err != nil {
		return nil, err
	}
	out := &TranslatedResource{RID: res.RID, Modified: res.Modified}
	for _, seg := range segments {
		if seg.NTgt == nil {
			continue
		}
		out.Segments = append(out.Segments, TranslatedSegment{SID: seg.SID, NSrc: seg.NSrc, NTgt: seg.NTgt})
	}
	c.logger.Debug("translated resource loaded",
		logging.Channel(channel),
		logging.RID(handle.RID),
		logging.Int("segments", len(out.Segments)),
	)
	return out, nil
}

func (c *SnapshotChannels) latestResource(ctx context.Context, channel, rid string) (snapstore.Resource, bool, error) {
	ts, ok, err := c.store.LatestTimestamp(ctx, channel)
	if err != nil || !ok {
		return snapstore.Resource{}, false, err
	}
	res, err := c.store.GetResource(ctx, ts, channel, rid)
	if errors.Is(err, services.ErrNotFound) {
		return snapstore.Resource{}, false, nil
	}
	if err != nil {
		return snapstore.Resource{}, false, err
	}
	return res, true, nil
}
