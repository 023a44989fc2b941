package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/repository"
)

// AccessChecker decides whether a caller may perform an operation.
// Denials wrap domain.ErrForbidden.
type AccessChecker interface {
	CheckUpload(ctx context.Context, auth Auth) error
	CheckAssetUpdate(ctx context.Context, auth Auth, assetID string) error
}

// OwnerAccess grants uploads to known users and updates to an asset's owner.
type OwnerAccess struct {
	users  UserRepository
	assets AssetRepository
}

func NewOwnerAccess(users UserRepository, assets AssetRepository) *OwnerAccess {
	return &OwnerAccess{users: users, assets: assets}
}

func (a *OwnerAccess) CheckUpload(ctx context.Context, auth Auth) error {
	if auth.UserID == "" {
		return fmt.Errorf("upload: %w", domain.ErrForbidden)
	}
	if _, err := a.users.GetByID(ctx, auth.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("upload for unknown user %s: %w", auth.UserID, domain.ErrForbidden)
		}
		return err
	}
	return nil
}

// CheckAssetUpdate hides whether the asset exists from callers who do not own it.
func (a *OwnerAccess) CheckAssetUpdate(ctx context.Context, auth Auth, assetID string) error {
	asset, err := a.assets.GetByID(ctx, assetID, repository.AssetInclude{})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("asset %s: %w", assetID, domain.ErrForbidden)
		}
		return err
	}
	if asset.OwnerID != auth.UserID {
		return fmt.Errorf("asset %s: %w", assetID, domain.ErrForbidden)
	}
	return nil
}
