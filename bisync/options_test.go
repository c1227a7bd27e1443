package bisync_test

import (
	"testing"

	"github.com/cjnaz/rclonesync-go/bisync"
	"github.com/cjnaz/rclonesync-go/internal/rclog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opt := bisync.DefaultOptions()
	assert.Equal(t, bisync.DefaultCheckFilename, opt.CheckFilename)
	assert.Equal(t, bisync.DefaultMaxDeletePercent, opt.MaxDeletePercent)
	assert.Equal(t, "rclone", opt.RCloneBin)
	assert.NotEmpty(t, opt.Workdir)
}

func TestBindFlagsRoundTrip(t *testing.T) {
	opt := bisync.DefaultOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bisync.BindFlags(fs, &opt)

	err := fs.Parse([]string{"--first-sync", "--max-deletes", "25", "-vv"})
	assert.NoError(t, err)
	assert.True(t, opt.FirstSync)
	assert.Equal(t, 25, opt.MaxDeletePercent)
	assert.Equal(t, 2, opt.Verbose)
}

func TestSplitRcloneArgsSlurpsRemainderVerbatim(t *testing.T) {
	rest, rcloneArgs := bisync.SplitRcloneArgs([]string{
		"/p1", "/p2", "--dry-run", "--rclone-args", "--fast-list", "--progress", "-v",
	})
	assert.Equal(t, []string{"/p1", "/p2", "--dry-run"}, rest)
	assert.Equal(t, []string{"--fast-list", "--progress", "-v"}, rcloneArgs)
}

func TestSplitRcloneArgsAbsent(t *testing.T) {
	rest, rcloneArgs := bisync.SplitRcloneArgs([]string{"/p1", "/p2"})
	assert.Equal(t, []string{"/p1", "/p2"}, rest)
	assert.Nil(t, rcloneArgs)
}

func TestRCloneArgsExtraAppendsVerboseFlags(t *testing.T) {
	opt := bisync.DefaultOptions()
	opt.RCloneArgs = []string{"--progress"}
	opt.RCVerbose = 2
	assert.Equal(t, []string{"--progress", "-v", "-v"}, opt.RCloneArgsExtra())
}

func TestLogLevelFromVerboseCount(t *testing.T) {
	opt := bisync.DefaultOptions()
	assert.Equal(t, rclog.Notice, opt.LogLevel())
	opt.Verbose = 1
	assert.Equal(t, rclog.Info, opt.LogLevel())
	opt.Verbose = 2
	assert.Equal(t, rclog.Debug, opt.LogLevel())
}
