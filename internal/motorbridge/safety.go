package motorbridge

import "time"

// VetoReason names why a forward command was refused, used to build
// the esp32.blocked{reason} payload.
type VetoReason string

const (
	VetoNone           VetoReason = ""
	VetoObstacle       VetoReason = "obstacle_detected"
	VetoWarning        VetoReason = "warning_zone"
	VetoBelowThreshold VetoReason = "below_stop_threshold"
	VetoStaleFrame     VetoReason = "sensor_frame_stale"
	VetoNoFrame        VetoReason = "no_sensor_frame"
)

// SafetyConfig bundles the thresholds the veto layer checks against.
type SafetyConfig struct {
	Thresholds       SafetyThresholds
	FreshnessWindow  time.Duration // default 2s
}

func (c SafetyConfig) withDefaults() SafetyConfig {
	c.Thresholds = c.Thresholds.withDefaults()
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 2 * time.Second
	}
	return c
}

// Evaluate applies spec §4.3's software safety layer. Directions other
// than Forward are always permitted; hasFrame/frame/frameAge describe
// the most recently parsed SensorFrame, or hasFrame=false if none has
// ever been parsed.
func Evaluate(direction Direction, hasFrame bool, frame SensorFrame, frameAge time.Duration, cfg SafetyConfig) (permit bool, reason VetoReason) {
	if direction != Forward {
		return true, VetoNone
	}
	cfg = cfg.withDefaults()

	if !hasFrame {
		return false, VetoNoFrame
	}
	if frameAge > cfg.FreshnessWindow {
		return false, VetoStaleFrame
	}
	if frame.Obstacle {
		return false, VetoObstacle
	}
	if frame.Warning {
		return false, VetoWarning
	}
	if frame.MinDistance < cfg.Thresholds.StopDistanceCM {
		return false, VetoBelowThreshold
	}
	return true, VetoNone
}
