// Package fhe defines the scalar quantities of the CKKS-style leveled
// scheme the compiler targets: levels, log-scales, the per-ciphertext
// LevelInfo, the bootstrapping precision and the program context.
package fhe

import (
	"fmt"

	"github.com/tuneinsight/tensorc/serial"
)

// MinLevel is the smallest level a live ciphertext may hold.
const MinLevel = Level(1)

// Level counts the remaining multiplicative depth of a ciphertext.
type Level int

// NewLevel returns a Level; panics on negative values.
func NewLevel(v int) Level {
	if v < 0 {
		panic(fmt.Sprintf("fhe: negative level %d", v))
	}
	return Level(v)
}

// Value returns the level as an int.
func (l Level) Value() int {
	return int(l)
}

// LogScale is the log2 of the scale factor applied to encoded plaintexts.
type LogScale int

// NewLogScale returns a LogScale; panics on negative values.
func NewLogScale(v int) LogScale {
	if v < 0 {
		panic(fmt.Sprintf("fhe: negative log scale %d", v))
	}
	return LogScale(v)
}

// Value returns the log scale as an int.
func (s LogScale) Value() int {
	return int(s)
}

// LevelInfo is the (level, log scale) pair attached to every leveled
// operand.
type LevelInfo struct {
	Level    Level
	LogScale LogScale
}

// Write serialises the level info as "<level> <log_scale>".
func (li LevelInfo) Write(w *serial.Writer) {
	w.WriteInt(li.Level.Value())
	w.WriteInt(li.LogScale.Value())
}

// ReadLevelInfo parses a level info written by Write.
func ReadLevelInfo(s *serial.Scanner) (LevelInfo, error) {
	level := s.Int()
	logScale := s.Int()
	if s.Err() != nil {
		return LevelInfo{}, s.Err()
	}
	if level < 0 || logScale < 0 {
		return LevelInfo{}, fmt.Errorf("fhe: invalid level info (%d, %d)", level, logScale)
	}
	return LevelInfo{Level: Level(level), LogScale: LogScale(logScale)}, nil
}

func (li LevelInfo) String() string {
	return fmt.Sprintf("(L%d, S%d)", li.Level, li.LogScale)
}
