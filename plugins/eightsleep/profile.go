package eightsleep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshp123/gobed/internal/statefile"
)

const profileStateName = "eightsleep-profile"

// ProfileClient is the slice of the API client the resolver needs.
type ProfileClient interface {
	Profile(ctx context.Context) (DeviceProfile, error)
}

// ResolveProfile loads the device profile from disk, falling back to the
// vendor API on a miss. The fetched profile is persisted so later starts
// skip the network round trip. A stale or invalid cached profile is erased
// before refetching.
func ResolveProfile(ctx context.Context, files *statefile.Store, client ProfileClient) (DeviceProfile, error) {
	var cached DeviceProfile
	err := files.Load(profileStateName, &cached)
	switch {
	case err == nil:
		if verr := cached.Validate(); verr == nil {
			slog.Debug("eightsleep profile loaded from disk",
				"device_id", cached.DeviceID, "side", cached.Side)
			return cached, nil
		}
		slog.Warn("eightsleep cached profile is invalid; refetching")
		if eerr := files.Erase(profileStateName); eerr != nil {
			return DeviceProfile{}, fmt.Errorf("erase stale profile: %w", eerr)
		}
	case errors.Is(err, statefile.ErrNotFound):
		// First run, or the cached copy was unreadable.
	default:
		return DeviceProfile{}, fmt.Errorf("load cached profile: %w", err)
	}

	profile, err := client.Profile(ctx)
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("resolve device profile: %w", err)
	}

	if err := files.Write(profileStateName, profile); err != nil {
		slog.Warn("persist device profile failed", "error", err)
	}
	slog.Info("eightsleep profile resolved",
		"device_id", profile.DeviceID, "side", profile.Side, "owner", profile.Owner)
	return profile, nil
}
