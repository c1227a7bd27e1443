package bisync_test

import (
	"context"
	"testing"

	"github.com/cjnaz/rclonesync-go/bisync"
	"github.com/cjnaz/rclonesync-go/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanNewOnPath2CopiesToPath1(t *testing.T) {
	prior1 := bisync.NewListing()
	now1 := bisync.NewListing()
	prior2 := bisync.NewListing()
	now2 := listingOf(bisync.Entry{Path: "new.txt", Size: 1, MTime: 100})

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, "new.txt", actions[0].Path)
	assert.Equal(t, bisync.ActionCopyP2ToP1, actions[0].Kind)
}

func TestPlanNewOnBothSidesConflictPreserves(t *testing.T) {
	prior1 := bisync.NewListing()
	now1 := listingOf(bisync.Entry{Path: "dup.txt", Size: 1, MTime: 100})
	prior2 := bisync.NewListing()
	now2 := listingOf(bisync.Entry{Path: "dup.txt", Size: 2, MTime: 100})

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, bisync.ActionConflictPreserve, actions[0].Kind)
}

func TestPlanNewerOnPath2UnchangedOnPath1ForceCopies(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 100})
	now1 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 100})
	prior2 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 100})
	now2 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 200})

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, bisync.ActionForceCopyP2ToP1, actions[0].Kind)
}

func TestPlanNewerOnBothSidesConflictPreserves(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 100})
	now1 := listingOf(bisync.Entry{Path: "f", Size: 9, MTime: 150})
	prior2 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 100})
	now2 := listingOf(bisync.Entry{Path: "f", Size: 1, MTime: 200})

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, bisync.ActionConflictPreserve, actions[0].Kind)
}

func TestPlanDeletedOnPath2UnchangedOnPath1Deletes(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "gone", Size: 1, MTime: 100})
	now1 := listingOf(bisync.Entry{Path: "gone", Size: 1, MTime: 100})
	prior2 := listingOf(bisync.Entry{Path: "gone", Size: 1, MTime: 100})
	now2 := bisync.NewListing()

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, bisync.ActionDeleteOnP1, actions[0].Kind)
}

func TestPlanDeletedOnPath2ButPath1AlsoChangedDoesNothingPerPath(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "edited", Size: 1, MTime: 100})
	now1 := listingOf(bisync.Entry{Path: "edited", Size: 2, MTime: 200})
	prior2 := listingOf(bisync.Entry{Path: "edited", Size: 1, MTime: 100})
	now2 := bisync.NewListing()

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	assert.Empty(t, actions)
}

func TestPlanDeletedOnPath1ButSurvivingOnPath2Resurrects(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "r", Size: 1, MTime: 100})
	now1 := bisync.NewListing()
	prior2 := listingOf(bisync.Entry{Path: "r", Size: 1, MTime: 100})
	now2 := listingOf(bisync.Entry{Path: "r", Size: 1, MTime: 200})

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 1)
	assert.Equal(t, "r", actions[0].Path)
	assert.Equal(t, bisync.ActionCopyP2ToP1, actions[0].Kind)
}

func TestPlanDeletedOnBothSidesProducesNoAction(t *testing.T) {
	prior1 := listingOf(bisync.Entry{Path: "both-gone", Size: 1, MTime: 100})
	now1 := bisync.NewListing()
	prior2 := listingOf(bisync.Entry{Path: "both-gone", Size: 1, MTime: 100})
	now2 := bisync.NewListing()

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	assert.Empty(t, actions)
}

func TestPlanOrderingIsLexicographic(t *testing.T) {
	prior1 := bisync.NewListing()
	now1 := bisync.NewListing()
	prior2 := bisync.NewListing()
	now2 := listingOf(
		bisync.Entry{Path: "zebra.txt", Size: 1, MTime: 100},
		bisync.Entry{Path: "apple.txt", Size: 1, MTime: 100},
		bisync.Entry{Path: "mango.txt", Size: 1, MTime: 100},
	)

	sd1 := bisync.ComputeDelta(prior1, now1)
	sd2 := bisync.ComputeDelta(prior2, now2)

	actions := bisync.Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	require.Len(t, actions, 3)
	assert.Equal(t, "apple.txt", actions[0].Path)
	assert.Equal(t, "mango.txt", actions[1].Path)
	assert.Equal(t, "zebra.txt", actions[2].Path)
}

func recordingRunner(calls *[]string) transport.Runner {
	return func(ctx context.Context, bin string, args []string) ([]byte, error) {
		*calls = append(*calls, args[0])
		if args[0] == "lsl" {
			return []byte(""), nil
		}
		return nil, nil
	}
}

func TestExecuteRunsPlannedActionsThenMirrorSyncThenRefreshesBaselines(t *testing.T) {
	var calls []string
	adapter := transport.New(transport.Options{Bin: "rclone"})
	adapter.Runner = recordingRunner(&calls)

	store := bisync.NewStore(t.TempDir(), "/p1", "/p2", false)
	actions := []bisync.PlannedAction{
		{Path: "a.txt", Kind: bisync.ActionCopyP2ToP1},
		{Path: "b.txt", Kind: bisync.ActionDeleteOnP1},
	}

	err := bisync.Execute(context.Background(), adapter, store, "/p1", "/p2", actions, nil, false)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, "copyto", calls[0])
	assert.Equal(t, "delete", calls[1])
	assert.Equal(t, "sync", calls[2])

	assert.True(t, store.HasBaseline(bisync.Path1))
	assert.True(t, store.HasBaseline(bisync.Path2))
}

func TestExecuteRunsRmdirsOnBothSidesWhenRequested(t *testing.T) {
	var calls []string
	adapter := transport.New(transport.Options{Bin: "rclone"})
	adapter.Runner = recordingRunner(&calls)
	store := bisync.NewStore(t.TempDir(), "/p1", "/p2", false)

	err := bisync.Execute(context.Background(), adapter, store, "/p1", "/p2", nil, nil, true)
	require.NoError(t, err)

	count := 0
	for _, c := range calls {
		if c == "rmdirs" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestRunFirstSyncCopiesOnlyMissingFromPath2(t *testing.T) {
	adapter := transport.New(transport.Options{Bin: "rclone"})
	store := bisync.NewStore(t.TempDir(), "/p1", "/p2", false)

	var copied []string
	adapter.Runner = func(ctx context.Context, bin string, args []string) ([]byte, error) {
		switch args[0] {
		case "lsl":
			if args[len(args)-1] == "/p1" {
				return []byte("1 2020-01-01 00:00:00.0 existing.txt\n"), nil
			}
			return []byte("1 2020-01-01 00:00:00.0 existing.txt\n1 2020-01-01 00:00:00.0 missing.txt\n"), nil
		case "copyto":
			copied = append(copied, args[1])
			return nil, nil
		}
		return nil, nil
	}

	err := bisync.RunFirstSync(context.Background(), adapter, store, "/p1", "/p2", nil)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Contains(t, copied[0], "missing.txt")
}
