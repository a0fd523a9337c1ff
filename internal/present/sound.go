package present

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/amrut/notifydesk/internal/model"
)

// ErrNoAsset is returned when no sound file exists for a type and no
// default.wav is available either.
var ErrNoAsset = errors.New("no sound asset")

// ErrNoPlayer is returned when the player command is blank.
var ErrNoPlayer = errors.New("no player command")

const defaultCue = "default"

// Fallback tone: 800 Hz sine for 300ms with an exponential fade.
const (
	toneFrequency  = 800.0
	toneDuration   = 0.3
	toneSampleRate = 22050
)

// SoundPlayer plays the audible cue for a notification type.
type SoundPlayer interface {
	Play(ctx context.Context, typ model.NotificationType) error
}

// Sound selects and plays per-type cues. When no asset or player is
// available, or playback fails, it falls back to a synthesized tone and
// finally to the terminal bell.
type Sound struct {
	dir    string
	player string

	mu      gosync.Mutex
	enabled bool
	volume  float64

	bell io.Writer
	run  func(ctx context.Context, name string, args ...string) error
}

// NewSound creates a Sound from presenter preferences.
func NewSound(cfg model.PresenterConfig) *Sound {
	return &Sound{
		dir:     cfg.SoundDir,
		player:  strings.TrimSpace(cfg.Player),
		enabled: cfg.SoundEnabled,
		volume:  clampVolume(cfg.SoundVolume),
		bell:    os.Stderr,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func clampVolume(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// SetVolume sets the playback volume, clamped to [0,1].
func (s *Sound) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(v)
}

// Volume returns the current playback volume.
func (s *Sound) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetEnabled turns cues on or off.
func (s *Sound) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Enabled reports whether cues are played.
func (s *Sound) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Play plays the cue for typ. Failures of the asset path are logged and
// replaced by the fallback; only a failing fallback is returned.
func (s *Sound) Play(ctx context.Context, typ model.NotificationType) error {
	if !s.Enabled() || s.Volume() == 0 {
		return nil
	}

	if s.player != "" {
		path, err := s.asset(typ)
		if err == nil {
			if err = s.playFile(ctx, path); err == nil {
				return nil
			}
		}
		log.Printf("[Sound] could not play cue for %s: %v", typ, err)
	}
	return s.fallback(ctx)
}

// asset returns <dir>/<type>.wav, then <dir>/default.wav.
func (s *Sound) asset(typ model.NotificationType) (string, error) {
	if s.dir == "" {
		return "", ErrNoAsset
	}
	for _, name := range []string{string(typ), defaultCue} {
		if name == "" {
			continue
		}
		path := filepath.Join(s.dir, name+".wav")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNoAsset
}

func (s *Sound) playFile(ctx context.Context, path string) error {
	fields := strings.Fields(s.player)
	if len(fields) == 0 {
		return ErrNoPlayer
	}
	args := append(fields[1:], volumeArgs(fields[0], s.Volume())...)
	args = append(args, path)
	return s.run(ctx, fields[0], args...)
}

// volumeArgs maps the volume onto the flags of the players we know.
func volumeArgs(player string, volume float64) []string {
	switch filepath.Base(player) {
	case "paplay":
		return []string{"--volume", strconv.Itoa(int(volume * 65536))}
	case "afplay":
		return []string{"-v", strconv.FormatFloat(volume, 'f', 2, 64)}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", strconv.Itoa(int(volume * 100))}
	default:
		return nil
	}
}

// fallback plays the synthesized tone through the player when one is
// configured, otherwise rings the terminal bell.
func (s *Sound) fallback(ctx context.Context) error {
	if s.player != "" {
		err := s.playTone(ctx)
		if err == nil {
			return nil
		}
		log.Printf("[Sound] synthesized tone failed, ringing bell: %v", err)
	}
	if s.bell == nil {
		return nil
	}
	if _, err := io.WriteString(s.bell, "\a"); err != nil {
		return fmt.Errorf("ringing bell: %w", err)
	}
	return nil
}

func (s *Sound) playTone(ctx context.Context) error {
	f, err := os.CreateTemp("", "notifydesk-tone-*.wav")
	if err != nil {
		return fmt.Errorf("creating tone file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(synthesizeTone(s.Volume())); err != nil {
		f.Close()
		return fmt.Errorf("writing tone file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing tone file: %w", err)
	}
	return s.playFile(ctx, f.Name())
}

// synthesizeTone renders the fallback cue as a mono 16-bit PCM WAV.
func synthesizeTone(volume float64) []byte {
	n := int(toneSampleRate * toneDuration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / toneSampleRate
		// 0.3 -> 0.01 over the duration, as a gain envelope.
		gain := 0.3 * math.Pow(0.01/0.3, t/toneDuration)
		v := math.Sin(2*math.Pi*toneFrequency*t) * gain * volume
		samples[i] = int16(v * math.MaxInt16)
	}

	dataLen := uint32(n * 2)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(toneSampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(toneSampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
