package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encoder kinds selectable through configuration.
const (
	EncoderNVENC = "nvenc"
	EncoderX264  = "x264"
)

// ErrUnknownEncoder is returned for an encoder kind other than nvenc or x264.
var ErrUnknownEncoder = errors.New("unknown encoder kind")

// EncodeProfile is the target codec and quality policy of an encode.
// It is a plain value and is never mutated after construction.
type EncodeProfile struct {
	VideoCodec  string
	Preset      string
	RateControl string
	// QualityFlag is "-cq" for NVENC and "-crf" for software encoders.
	QualityFlag string
	Quality     int
	MaxRate     string
	BufSize     string
	// GOPSeconds sets -g to this many seconds of frames; 0 keeps the encoder default.
	GOPSeconds  float64
	BFrames     int
	PixelFormat string

	AudioCodec      string
	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int

	FastStart bool
}

// VideoArgs returns the video encoder options. fps is needed for the GOP size.
func (p EncodeProfile) VideoArgs(fps float64) []string {
	var args []string
	if p.VideoCodec != "" {
		args = append(args, "-c:v", p.VideoCodec)
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	if p.RateControl != "" {
		args = append(args, "-rc", p.RateControl)
	}
	if p.QualityFlag != "" {
		args = append(args, p.QualityFlag, strconv.Itoa(p.Quality))
	}
	if p.MaxRate != "" {
		args = append(args, "-maxrate", p.MaxRate)
	}
	if p.BufSize != "" {
		args = append(args, "-bufsize", p.BufSize)
	}
	if p.GOPSeconds > 0 && fps > 0 {
		args = append(args, "-g", strconv.Itoa(p.GOP(fps)))
	}
	if p.BFrames > 0 {
		args = append(args, "-bf", strconv.Itoa(p.BFrames))
	}
	if p.PixelFormat != "" {
		args = append(args, "-pix_fmt", p.PixelFormat)
	}
	return args
}

// GOP returns the keyframe interval in frames for fps.
func (p EncodeProfile) GOP(fps float64) int {
	return int(math.Max(1, math.Round(fps*p.GOPSeconds)))
}

// AudioArgs returns the audio encoder options.
func (p EncodeProfile) AudioArgs() []string {
	var args []string
	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
	}
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}
	if p.AudioSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.AudioSampleRate))
	}
	if p.AudioChannels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.AudioChannels))
	}
	return args
}

// ContainerArgs returns muxer options.
func (p EncodeProfile) ContainerArgs() []string {
	if p.FastStart {
		return []string{"-movflags", "+faststart"}
	}
	return nil
}

// Args returns video, audio and container options in that order.
func (p EncodeProfile) Args(fps float64) []string {
	args := p.VideoArgs(fps)
	args = append(args, p.AudioArgs()...)
	return append(args, p.ContainerArgs()...)
}

// Hardware reports whether the video encoder runs on a GPU device.
func (p EncodeProfile) Hardware() bool {
	for _, suffix := range []string{"_nvenc", "_qsv", "_vaapi", "_videotoolbox", "_amf"} {
		if strings.HasSuffix(p.VideoCodec, suffix) {
			return true
		}
	}
	return false
}

// Profiles bundles the encode targets used by the pipelines.
type Profiles struct {
	Kind string
	// Overlay is used for overlay composites.
	Overlay EncodeProfile
	// Segment is the uniform target concat segments are re-encoded to.
	Segment EncodeProfile
}

// ProfilesFor returns the profile set for an encoder kind.
func ProfilesFor(kind string) (Profiles, error) {
	switch strings.ToLower(kind) {
	case EncoderNVENC, "":
		return Profiles{Kind: EncoderNVENC, Overlay: overlayNVENC(), Segment: segmentNVENC()}, nil
	case EncoderX264:
		return Profiles{Kind: EncoderX264, Overlay: overlayX264(), Segment: segmentX264()}, nil
	default:
		return Profiles{}, fmt.Errorf("%w: %q", ErrUnknownEncoder, kind)
	}
}

// EncoderForFamily returns the video encoder producing codec family fam
// (h264, hevc, av1) for the given encoder kind. Unknown families fall back to h264.
func EncoderForFamily(fam, kind string) string {
	hw := strings.ToLower(kind) != EncoderX264
	switch fam {
	case "hevc":
		if hw {
			return "hevc_nvenc"
		}
		return "libx265"
	case "av1":
		if hw {
			return "av1_nvenc"
		}
		return "libsvtav1"
	default:
		if hw {
			return "h264_nvenc"
		}
		return "libx264"
	}
}

func overlayNVENC() EncodeProfile {
	return EncodeProfile{
		VideoCodec:      "h264_nvenc",
		Preset:          "p5",
		RateControl:     "vbr_hq",
		QualityFlag:     "-cq",
		Quality:         28,
		MaxRate:         "2200k",
		BufSize:         "4400k",
		GOPSeconds:      2,
		BFrames:         3,
		PixelFormat:     "yuv420p",
		AudioCodec:      "aac",
		AudioBitrate:    "192k",
		AudioSampleRate: 48000,
		FastStart:       true,
	}
}

func overlayX264() EncodeProfile {
	return EncodeProfile{
		VideoCodec:      "libx264",
		Preset:          "fast",
		QualityFlag:     "-crf",
		Quality:         23,
		MaxRate:         "2200k",
		BufSize:         "4400k",
		GOPSeconds:      2,
		BFrames:         3,
		PixelFormat:     "yuv420p",
		AudioCodec:      "aac",
		AudioBitrate:    "192k",
		AudioSampleRate: 48000,
		FastStart:       true,
	}
}

func segmentNVENC() EncodeProfile {
	return EncodeProfile{
		VideoCodec:  "h264_nvenc",
		Preset:      "p5",
		RateControl: "vbr",
		QualityFlag: "-cq",
		Quality:     23,
		PixelFormat: "yuv420p",
		AudioCodec:  "aac",
		FastStart:   true,
	}
}

func segmentX264() EncodeProfile {
	return EncodeProfile{
		VideoCodec:  "libx264",
		Preset:      "fast",
		QualityFlag: "-crf",
		Quality:     23,
		PixelFormat: "yuv420p",
		AudioCodec:  "aac",
		FastStart:   true,
	}
}
