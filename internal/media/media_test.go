package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/ffmpeg/ffmpegtest"
	"github.com/maauso/mediacompose/internal/graph"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/probe"
	"github.com/maauso/mediacompose/internal/retry"
	"github.com/maauso/mediacompose/internal/workspace"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a short test pattern video with a tone using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, fps int) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc2=s=320x240:r=%d:d=%g", fps, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=f=440:r=48000:d=%g", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

type fakeProber struct {
	descs map[string]*probe.MediaDescriptor
}

func (f *fakeProber) Probe(_ context.Context, path string) (*probe.MediaDescriptor, error) {
	d, ok := f.descs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mediaerr.ErrUnprobeableMedia, path)
	}
	return d, nil
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	d, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return d.Duration, nil
}

type recordingDiagnostics struct {
	mu     sync.Mutex
	levels []slog.Level
}

func (d *recordingDiagnostics) Log(_ context.Context, level slog.Level, _ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels = append(d.levels, level)
}

func noSleep(context.Context, time.Duration) error { return nil }

// fixture creates n on-disk segments of 5s at 24fps, all known to the prober.
func fixture(t *testing.T, n int) (dir string, segments []string, prober *fakeProber) {
	t.Helper()
	dir = t.TempDir()
	prober = &fakeProber{descs: map[string]*probe.MediaDescriptor{}}
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("part%d.mp4", i))
		require.NoError(t, ffmpegtest.WriteFile(p, 2000))
		prober.descs[p] = &probe.MediaDescriptor{Path: p, Width: 1280, Height: 720, FrameRate: 24, Duration: 5, HasAudio: true, CodecFamily: "h264"}
		segments = append(segments, p)
	}
	return dir, segments, prober
}

func newConcatenator(t *testing.T, runner *ffmpegtest.Runner, prober probe.Prober, kind string, opts ...ConcatOption) *Concatenator {
	t.Helper()
	profiles, err := ffmpeg.ProfilesFor(kind)
	require.NoError(t, err)
	engine := ffmpeg.NewEngine("", ffmpeg.WithRunner(runner))
	enc := NewSegmentEncoder(engine, prober, profiles)
	opts = append([]ConcatOption{WithRetryOptions(retry.WithSleep(noSleep))}, opts...)
	return NewConcatenator(engine, enc, opts...)
}

func isConcat(c ffmpegtest.Call) bool {
	return c.Value("-f") == "concat"
}

func TestTrimTarget(t *testing.T) {
	d := &probe.MediaDescriptor{Duration: 5, FrameRate: 24}

	assert.InDelta(t, 5-1.0/24, TrimTarget(d, false), 1e-12)
	assert.Zero(t, TrimTarget(d, true))

	tiny := &probe.MediaDescriptor{Duration: 0.01, FrameRate: 24}
	assert.Equal(t, 0.001, TrimTarget(tiny, false))

	unknownRate := &probe.MediaDescriptor{Duration: 5}
	assert.Zero(t, TrimTarget(unknownRate, false))
}

func TestTrimTarget_TotalDurationProperty(t *testing.T) {
	segs := []*probe.MediaDescriptor{
		{Duration: 5, FrameRate: 24},
		{Duration: 5, FrameRate: 24},
		{Duration: 5, FrameRate: 24},
	}
	total := 0.0
	for i, s := range segs {
		if trim := TrimTarget(s, i == len(segs)-1); trim > 0 {
			total += trim
		} else {
			total += s.Duration
		}
	}
	assert.InDelta(t, 15-2.0/24, total, 1.0/24)
}

func TestConcatenate_Success(t *testing.T) {
	dir, segments, prober := fixture(t, 3)
	out := filepath.Join(dir, "final.mp4")

	var manifest string
	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			data, err := os.ReadFile(call.Value("-i"))
			require.NoError(t, err)
			manifest = string(data)
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

	require.NoError(t, c.Concatenate(context.Background(), segments, out))

	calls := runner.CallsTo("ffmpeg")
	require.Len(t, calls, 4)

	trim := graph.Num(5 - 1.0/24)
	assert.Equal(t, segments[0], calls[0].Value("-i"))
	assert.Equal(t, trim, calls[0].Value("-t"))
	assert.Equal(t, trim, calls[1].Value("-t"))
	assert.False(t, calls[2].Has("-t"), "last segment keeps its full length")
	assert.Equal(t, "h264_nvenc", calls[0].Value("-c:v"))
	assert.Equal(t, "yuv420p", calls[0].Value("-pix_fmt"))
	assert.Equal(t, "aac", calls[0].Value("-c:a"))

	concat := calls[3]
	require.True(t, isConcat(concat))
	assert.Equal(t, "0", concat.Value("-safe"))
	assert.Equal(t, "copy", concat.Value("-c"))
	assert.Equal(t, "aac_adtstoasc", concat.Value("-bsf:a"))
	assert.Equal(t, out, concat.Output())

	wsDir := filepath.Dir(concat.Value("-i"))
	assert.Equal(t, fmt.Sprintf("file '%s'\nfile '%s'\nfile '%s'\n",
		filepath.Join(wsDir, "seg_000.mp4"),
		filepath.Join(wsDir, "seg_001.mp4"),
		filepath.Join(wsDir, "seg_002.mp4"),
	), manifest)

	assert.FileExists(t, out)
	assert.NoDirExists(t, wsDir)
	assert.NoFileExists(t, out+".lock")
}

func TestConcatenate_RetriesWithCleanWorkspace(t *testing.T) {
	dir, segments, prober := fixture(t, 2)
	out := filepath.Join(dir, "final.mp4")

	concatAttempts := 0
	var leftovers []int
	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			concatAttempts++
			if concatAttempts < 3 {
				require.NoError(t, ffmpegtest.WriteOutput(call, 50))
				return errors.New("exit status 1")
			}
			return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
		}
		// The first segment of every attempt must start from an empty workspace.
		if filepath.Base(call.Output()) == "seg_000.mp4" {
			entries, err := os.ReadDir(filepath.Dir(call.Output()))
			require.NoError(t, err)
			leftovers = append(leftovers, len(entries))
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	diag := &recordingDiagnostics{}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC, WithDiagnostics(diag))

	require.NoError(t, c.Concatenate(context.Background(), segments, out))

	assert.Equal(t, 3, concatAttempts)
	assert.Len(t, runner.CallsTo("ffmpeg"), 9)
	assert.Equal(t, []int{0, 0, 0}, leftovers)
	assert.Equal(t, []slog.Level{slog.LevelDebug, slog.LevelWarn}, diag.levels)
	assert.FileExists(t, out)
}

func TestConcatenate_SoftwareEncoderSkipsHardwareDiagnostics(t *testing.T) {
	dir, segments, prober := fixture(t, 2)
	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			return errors.New("exit status 1")
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	diag := &recordingDiagnostics{}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderX264, WithDiagnostics(diag))

	err := c.Concatenate(context.Background(), segments, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Equal(t, []slog.Level{slog.LevelDebug}, diag.levels)
}

func TestConcatenate_ExhaustedLeavesNoOutput(t *testing.T) {
	dir, segments, prober := fixture(t, 2)
	out := filepath.Join(dir, "final.mp4")

	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			require.NoError(t, ffmpegtest.WriteOutput(call, 500))
			return errors.New("exit status 1")
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

	err := c.Concatenate(context.Background(), segments, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, mediaerr.ErrEncodeFailure)
	assert.Len(t, runner.CallsTo("ffmpeg"), 9)
	assert.NoFileExists(t, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the input segments remain")
}

func TestConcatenate_UndersizedOutputIsRetried(t *testing.T) {
	dir, segments, prober := fixture(t, 1)
	out := filepath.Join(dir, "final.mp4")

	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			return ffmpegtest.WriteOutput(call, 9999)
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC, WithRetryPolicy(retry.Linear(2, time.Second)))

	err := c.Concatenate(context.Background(), segments, out)
	assert.ErrorIs(t, err, mediaerr.ErrOutputValidation)
	assert.Len(t, runner.CallsTo("ffmpeg"), 4)
	assert.NoFileExists(t, out)
}

func TestConcatenate_UndersizedSegmentEncodeIsRetried(t *testing.T) {
	dir, segments, prober := fixture(t, 1)
	out := filepath.Join(dir, "final.mp4")

	encodes := 0
	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if !isConcat(call) {
			encodes++
			if encodes == 1 {
				return ffmpegtest.WriteOutput(call, 10)
			}
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

	require.NoError(t, c.Concatenate(context.Background(), segments, out))
	assert.Equal(t, 2, encodes)
}

func TestConcatenate_InvalidInputsAreNotRetried(t *testing.T) {
	t.Run("missing segment", func(t *testing.T) {
		dir, segments, prober := fixture(t, 2)
		segments = append(segments, filepath.Join(dir, "ghost.mp4"))
		runner := &ffmpegtest.Runner{}
		c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

		err := c.Concatenate(context.Background(), segments, filepath.Join(dir, "final.mp4"))
		assert.ErrorIs(t, err, mediaerr.ErrInputMissing)
		assert.Empty(t, runner.Calls())
	})

	t.Run("undersized segment", func(t *testing.T) {
		dir, segments, prober := fixture(t, 1)
		small := filepath.Join(dir, "small.mp4")
		require.NoError(t, ffmpegtest.WriteFile(small, 999))
		runner := &ffmpegtest.Runner{}
		c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

		err := c.Concatenate(context.Background(), append(segments, small), filepath.Join(dir, "final.mp4"))
		assert.ErrorIs(t, err, mediaerr.ErrInputMissing)
		assert.Empty(t, runner.Calls())
	})

	t.Run("unprobeable segment", func(t *testing.T) {
		dir, segments, prober := fixture(t, 1)
		junk := filepath.Join(dir, "junk.mp4")
		require.NoError(t, ffmpegtest.WriteFile(junk, 5000))
		runner := &ffmpegtest.Runner{}
		c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

		err := c.Concatenate(context.Background(), append(segments, junk), filepath.Join(dir, "final.mp4"))
		assert.ErrorIs(t, err, mediaerr.ErrUnprobeableMedia)
		assert.Empty(t, runner.Calls())
	})

	t.Run("no segments", func(t *testing.T) {
		c := newConcatenator(t, &ffmpegtest.Runner{}, &fakeProber{}, ffmpeg.EncoderNVENC)
		assert.ErrorIs(t, c.Concatenate(context.Background(), nil, "out.mp4"), ErrNoSegments)
	})
}

func TestConcatenate_OutputAliasingASegmentIsRejected(t *testing.T) {
	dir, segments, prober := fixture(t, 3)

	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(call ffmpegtest.Call, _ func(string)) error {
		if isConcat(call) {
			return errors.New("exit status 1")
		}
		return ffmpegtest.WriteOutput(call, ffmpegtest.DefaultOutputSize)
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderX264)

	for _, out := range []string{segments[0], filepath.Join(dir, ".", "part2.mp4")} {
		err := c.Concatenate(context.Background(), segments, out)
		require.ErrorIs(t, err, ErrSameInputOutput)
		assert.Equal(t, mediaerr.CodeSameInputOutput, mediaerr.Code(err))
	}
	assert.Empty(t, runner.Calls())

	for _, seg := range segments {
		info, err := os.Stat(seg)
		require.NoError(t, err, "segment %s must survive", seg)
		assert.EqualValues(t, 2000, info.Size())
	}
}

func TestConcatenate_OutputLocked(t *testing.T) {
	dir, segments, prober := fixture(t, 1)
	out := filepath.Join(dir, "final.mp4")

	ws, err := workspace.Open(out, nil)
	require.NoError(t, err)
	defer ws.Close()

	runner := &ffmpegtest.Runner{}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

	err = c.Concatenate(context.Background(), segments, out)
	assert.ErrorIs(t, err, workspace.ErrBusy)
	assert.Empty(t, runner.CallsTo("ffmpeg"))
}

func TestConcatenate_CancelledStopsRetrying(t *testing.T) {
	dir, segments, prober := fixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &ffmpegtest.Runner{}
	runner.StreamFunc = func(ffmpegtest.Call, func(string)) error {
		cancel()
		return errors.New("signal: killed")
	}
	c := newConcatenator(t, runner, prober, ffmpeg.EncoderNVENC)

	err := c.Concatenate(ctx, segments, filepath.Join(dir, "final.mp4"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, runner.CallsTo("ffmpeg"), 1)
}

func TestReencodeToReference(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mov")
	ref := filepath.Join(dir, "ref.mp4")
	out := filepath.Join(dir, "matched.mp4")
	prober := &fakeProber{descs: map[string]*probe.MediaDescriptor{
		in:  {Path: in, Width: 640, Height: 480, FrameRate: 25, Duration: 3, HasAudio: true},
		ref: {Path: ref, Width: 1920, Height: 1080, FrameRate: 29.97, Duration: 10, HasAudio: true, CodecFamily: "hevc"},
	}}
	runner := &ffmpegtest.Runner{}
	profiles, err := ffmpeg.ProfilesFor(ffmpeg.EncoderNVENC)
	require.NoError(t, err)
	enc := NewSegmentEncoder(ffmpeg.NewEngine("", ffmpeg.WithRunner(runner)), prober, profiles)

	require.NoError(t, enc.ReencodeToReference(context.Background(), in, ref, out))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t,
		"scale=w=1920:h=1080:force_original_aspect_ratio=decrease,"+
			"pad=w=1920:h=1080:x=(ow-iw)/2:y=(oh-ih)/2:color=black,setsar=1,fps=fps=30",
		c.Value("-vf"))
	assert.Equal(t, "hevc_nvenc", c.Value("-c:v"))
	assert.Equal(t, "160k", c.Value("-b:a"))
	assert.Equal(t, "cfr", c.Value("-fps_mode"))
	assert.Equal(t, "+faststart", c.Value("-movflags"))
	assert.FileExists(t, out)
}

func TestReencodeToReference_DropsAudioWhenReferenceHasNone(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mp4")
	ref := filepath.Join(dir, "ref.mkv")
	prober := &fakeProber{descs: map[string]*probe.MediaDescriptor{
		in:  {Path: in, Width: 640, Height: 480, FrameRate: 25, HasAudio: true},
		ref: {Path: ref, Width: 1280, Height: 720, CodecFamily: "h264"},
	}}
	runner := &ffmpegtest.Runner{}
	profiles, err := ffmpeg.ProfilesFor(ffmpeg.EncoderX264)
	require.NoError(t, err)
	enc := NewSegmentEncoder(ffmpeg.NewEngine("", ffmpeg.WithRunner(runner)), prober, profiles)

	require.NoError(t, enc.ReencodeToReference(context.Background(), in, ref, filepath.Join(dir, "out.mkv")))

	c := runner.Calls()[0]
	assert.True(t, c.Has("-an"))
	assert.Equal(t, "libx264", c.Value("-c:v"))
	assert.Equal(t, "vfr", c.Value("-fps_mode"))
	assert.False(t, c.Has("-movflags"))
}

func TestReencodeToReference_RejectsInPlace(t *testing.T) {
	enc := NewSegmentEncoder(ffmpeg.NewEngine(""), &fakeProber{}, ffmpeg.Profiles{})
	err := enc.ReencodeToReference(context.Background(), "a.mp4", "ref.mp4", "./a.mp4")
	assert.ErrorIs(t, err, ErrSameInputOutput)

	err = enc.ReencodeToReference(context.Background(), "a.mp4", "ref.mp4", "ref.mp4")
	assert.ErrorIs(t, err, ErrSameInputOutput)
}

func TestConcatenate_RealFFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	var segments []string
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, fmt.Sprintf("seg%d.mp4", i))
		createTestVideo(t, p, 2, 24)
		segments = append(segments, p)
	}

	profiles, err := ffmpeg.ProfilesFor(ffmpeg.EncoderX264)
	require.NoError(t, err)
	engine := ffmpeg.NewEngine("")
	prober := probe.NewFFprobe("", nil, nil)
	c := NewConcatenator(engine, NewSegmentEncoder(engine, prober, profiles))

	out := filepath.Join(dir, "joined.mp4")
	require.NoError(t, c.Concatenate(context.Background(), segments, out))

	d, err := prober.Probe(context.Background(), out)
	require.NoError(t, err)
	assert.InDelta(t, 6-2.0/24, d.Duration, 0.1)
	assert.True(t, d.HasAudio)
}
