package domain

// DuplicateSearch is a nearest-neighbour query for one asset.
type DuplicateSearch struct {
	AssetID     string
	Embedding   []float32
	MaxDistance float64
	Type        AssetType
	OwnerIDs    []string
}

// DuplicateHit is one neighbour found within the distance threshold.
type DuplicateHit struct {
	AssetID     string  `json:"asset_id"`
	Distance    float64 `json:"distance"`
	DuplicateID *string `json:"duplicate_id,omitempty"`
}

// DuplicateMerge moves AssetIDs, and every member of the SourceIDs clusters, onto TargetID.
type DuplicateMerge struct {
	AssetIDs  []string `json:"asset_ids"`
	TargetID  string   `json:"target_id"`
	SourceIDs []string `json:"source_ids"`
}

// DuplicateGroup is one cluster of at least two assets.
type DuplicateGroup struct {
	DuplicateID string   `json:"duplicate_id"`
	AssetIDs    []string `json:"asset_ids"`
	Assets      []Asset  `json:"assets,omitempty"`
}
