package domain

import "time"

// AssetUpdatesChannel is the pub/sub channel carrying AssetUpdated events.
const AssetUpdatesChannel = "pricesync:asset_updated"

// EventAssetUpdated is the Type of an AssetUpdated event.
const EventAssetUpdated = "asset_updated"

// AssetUpdated is published after an asset's sync commit.
type AssetUpdated struct {
	Type  string       `json:"type"`
	Asset TrackedAsset `json:"asset"`
	At    time.Time    `json:"at"`
}
