package stress

// Level classifies the process into a stress state. Levels are totally
// ordered by severity and change only through the score mapping.
type Level int

const (
	LevelNormal Level = iota
	LevelElevated
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelElevated:
		return "ELEVATED"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// LevelForScore maps a stress score to a level. Bounds are non-strict:
// exactly 1.0 is already ELEVATED.
func LevelForScore(score float64) Level {
	switch {
	case score >= 1.5:
		return LevelCritical
	case score >= 1.2:
		return LevelHigh
	case score >= 1.0:
		return LevelElevated
	default:
		return LevelNormal
	}
}
