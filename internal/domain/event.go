package domain

// EventName identifies a domain event delivered to subscribers.
type EventName string

const (
	EventAssetTrash     EventName = "AssetTrash"
	EventAssetCreate    EventName = "AssetCreate"
	EventAssetReplace   EventName = "AssetReplace"
	EventDuplicateMerge EventName = "DuplicateMerge"
)

// AssetEvent is the payload for asset lifecycle events.
type AssetEvent struct {
	AssetID string `json:"asset_id"`
	UserID  string `json:"user_id"`
}

// DuplicateMergeEvent is emitted after a cluster merge lands.
type DuplicateMergeEvent struct {
	TargetID  string   `json:"target_id"`
	AssetIDs  []string `json:"asset_ids"`
	SourceIDs []string `json:"source_ids,omitempty"`
}
