package cue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"fpbridge/internal/bridge"
	"fpbridge/internal/common/fsutil"
)

// Sounds maps cues to audio files.
type Sounds map[bridge.Cue]string

var soundExts = []string{".wav", ".ogg", ".oga", ".mp3", ".flac"}

// LoadDir scans dir for place_finger.* and captured.* audio files.
// Missing files are not an error; that cue is silent.
func LoadDir(dir string) (Sounds, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	out := Sounds{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isSound(ext) {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		for _, c := range []bridge.Cue{bridge.CuePlaceFinger, bridge.CueCaptured} {
			if stem == c.String() {
				if _, dup := out[c]; !dup {
					out[c] = filepath.Join(abs, name)
				}
			}
		}
	}
	return out, nil
}

func isSound(ext string) bool {
	for _, s := range soundExts {
		if ext == s {
			return true
		}
	}
	return false
}

// Player plays cue sounds with an external program (aplay, paplay, ...)
// and waits for it to finish.
type Player struct {
	Command string
	Args    []string
	Sounds  Sounds

	run func(ctx context.Context, name string, args ...string) error
}

// NewPlayer returns a Player running command with the sound file appended.
func NewPlayer(command string, args []string, sounds Sounds) *Player {
	return &Player{Command: command, Args: args, Sounds: sounds, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *Player) Notify(ctx context.Context, c bridge.Cue) error {
	file, ok := p.Sounds[c]
	if !ok || file == "" {
		return nil
	}
	args := append(append([]string(nil), p.Args...), file)
	if err := p.run(ctx, p.Command, args...); err != nil {
		return fmt.Errorf("play %s: %w", c, err)
	}
	return nil
}
