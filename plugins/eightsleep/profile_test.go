package eightsleep

import (
	"context"
	"fmt"
	"testing"

	"github.com/joshp123/gobed/internal/statefile"
)

type stubProfileClient struct {
	calls   int
	profile DeviceProfile
	err     error
}

func (s *stubProfileClient) Profile(ctx context.Context) (DeviceProfile, error) {
	s.calls++
	return s.profile, s.err
}

func newProfileStore(t *testing.T) *statefile.Store {
	t.Helper()
	files, err := statefile.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return files
}

func TestResolveProfileFetchesAndPersists(t *testing.T) {
	files := newProfileStore(t)
	client := &stubProfileClient{profile: DeviceProfile{DeviceID: "device-1", Side: SideLeft, Owner: true}}

	profile, err := ResolveProfile(context.Background(), files, client)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.DeviceID != "device-1" || profile.Side != SideLeft {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if client.calls != 1 {
		t.Fatalf("profile calls = %d, want 1", client.calls)
	}

	// Second resolve comes from disk.
	again, err := ResolveProfile(context.Background(), files, client)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again != profile {
		t.Fatalf("cached profile %+v != %+v", again, profile)
	}
	if client.calls != 1 {
		t.Fatalf("profile calls after cached resolve = %d, want 1", client.calls)
	}
}

func TestResolveProfileRefetchesInvalidCache(t *testing.T) {
	files := newProfileStore(t)
	if err := files.Write(profileStateName, DeviceProfile{Side: "nonsense"}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	client := &stubProfileClient{profile: DeviceProfile{DeviceID: "device-2", Side: SideSolo}}
	profile, err := ResolveProfile(context.Background(), files, client)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.DeviceID != "device-2" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if client.calls != 1 {
		t.Fatalf("profile calls = %d, want 1", client.calls)
	}
}

func TestResolveProfileErrorIsFatal(t *testing.T) {
	files := newProfileStore(t)
	client := &stubProfileClient{err: fmt.Errorf("no session")}

	if _, err := ResolveProfile(context.Background(), files, client); err == nil {
		t.Fatal("expected error when the fetch fails")
	}
}
