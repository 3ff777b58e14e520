package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/repo"
)

// Critical data is the minimal reference set without which the system must
// not run: the system and admin actors, the baseline asset type, and the
// installation marker.
const (
	SystemActorID = 1
	AdminActorID  = 2

	BaselineAssetType = "Vehicle"
	InstalledMarker   = "system-initialized"
)

// ErrCriticalDataUnavailable is fatal: the caller is expected to abort
// startup when it sees this.
var ErrCriticalDataUnavailable = errors.New("critical data unavailable")

// Critical verifies and installs the critical reference set.
type Critical struct {
	Repo repo.Repo
	Log  *zap.Logger
	Now  func() time.Time
}

func (c Critical) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Verify confirms every critical row is present. Any gap is reported as
// ErrCriticalDataUnavailable with the missing pieces named.
func (c Critical) Verify(ctx context.Context) error {
	var missing []string
	for _, check := range []struct {
		name string
		ok   func() (bool, error)
	}{
		{"system actor", func() (bool, error) { return c.Repo.ActorExists(ctx, SystemActorID) }},
		{"admin actor", func() (bool, error) { return c.Repo.ActorExists(ctx, AdminActorID) }},
		{"baseline asset type", func() (bool, error) {
			_, err := c.Repo.GetAssetTypeByName(ctx, BaselineAssetType)
			if err == repo.ErrNotFound {
				return false, nil
			}
			return err == nil, err
		}},
		{"installation marker", func() (bool, error) {
			_, err := c.Repo.GetMarker(ctx, InstalledMarker)
			if err == repo.ErrNotFound {
				return false, nil
			}
			return err == nil, err
		}},
	} {
		ok, err := check.ok()
		if err != nil {
			return fmt.Errorf("verify %s: %w", check.name, err)
		}
		if !ok {
			missing = append(missing, check.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrCriticalDataUnavailable, missing)
	}
	return nil
}

// Insert installs any missing critical rows. It is idempotent; existing rows
// are left untouched.
func (c Critical) Insert(ctx context.Context) error {
	tx, err := c.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := c.now()
	for _, a := range []domain.Actor{
		{ID: SystemActorID, Username: "system", DisplayName: "System", Role: "system"},
		{ID: AdminActorID, Username: "admin", DisplayName: "Administrator", Role: "admin"},
	} {
		actor, created, err := c.Repo.FindOrCreateActorTx(ctx, tx, a, now)
		if err != nil {
			return fmt.Errorf("critical actor %s: %w", a.Username, err)
		}
		if created && c.Log != nil {
			c.Log.Info("critical actor installed", zap.String("username", actor.Username), zap.Int64("id", actor.ID))
		}
	}

	if _, _, err := c.Repo.FindOrCreateAssetTypeTx(ctx, tx, domain.AssetType{
		ID:          1,
		Name:        BaselineAssetType,
		Description: "Road-going fleet vehicle",
	}); err != nil {
		return fmt.Errorf("critical asset type: %w", err)
	}

	if err := c.Repo.SetMarkerTx(ctx, tx, InstalledMarker, "critical reference data installed", now); err != nil {
		return fmt.Errorf("installation marker: %w", err)
	}
	return tx.Commit()
}
