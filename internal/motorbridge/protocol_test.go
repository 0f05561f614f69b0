package motorbridge

import "testing"

func TestParseDataLineRoundTrip(t *testing.T) {
	line := "DATA:S1:15,S2:-1,S3:40,MQ2:120,SERVO:90,LMOTOR:80,RMOTOR:80,OBSTACLE:0,WARNING:0\n"
	f, err := ParseDataLine(line, SafetyThresholds{})
	if err != nil {
		t.Fatalf("ParseDataLine: %v", err)
	}
	if got := EncodeDataLine(f); got != line {
		t.Errorf("EncodeDataLine(ParseDataLine(line)) = %q, want %q", got, line)
	}
}

func TestParseDataLineComputesMinDistanceIgnoringUnknown(t *testing.T) {
	line := "DATA:S1:-1,S2:25,S3:30,MQ2:0,SERVO:90,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0"
	f, err := ParseDataLine(line, SafetyThresholds{StopDistanceCM: 10, WarningDistanceCM: 20})
	if err != nil {
		t.Fatalf("ParseDataLine: %v", err)
	}
	if f.MinDistance != 25 {
		t.Errorf("MinDistance = %d, want 25", f.MinDistance)
	}
	if f.Obstacle {
		t.Error("Obstacle = true, want false (single -1, others above threshold)")
	}
}

func TestParseDataLineAllUnknownYieldsMinusOne(t *testing.T) {
	line := "DATA:S1:-1,S2:-1,S3:-1,MQ2:0,SERVO:90,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0"
	f, err := ParseDataLine(line, SafetyThresholds{})
	if err != nil {
		t.Fatalf("ParseDataLine: %v", err)
	}
	if f.MinDistance != -1 {
		t.Errorf("MinDistance = %d, want -1", f.MinDistance)
	}
}

func TestParseDataLineRejectsNonIntegerValue(t *testing.T) {
	_, err := ParseDataLine("DATA:S1:NaN,S2:12,S3:30,MQ2:0,SERVO:0,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0", SafetyThresholds{})
	if err == nil {
		t.Fatal("expected an error for a non-integer field, got nil")
	}
}

func TestParseDataLineRejectsMissingField(t *testing.T) {
	_, err := ParseDataLine("DATA:S1:1,S2:2,S3:3", SafetyThresholds{})
	if err == nil {
		t.Fatal("expected an error for a line missing required fields, got nil")
	}
}

func TestEncodeCommandAlwaysNewlineTerminated(t *testing.T) {
	for _, d := range []Direction{Forward, Backward, Left, Right, Stop, Scan} {
		line, ok := EncodeCommand(d, nil)
		if !ok {
			t.Fatalf("EncodeCommand(%s): not ok", d)
		}
		if line[len(line)-1] != '\n' {
			t.Errorf("EncodeCommand(%s) = %q, missing trailing newline", d, line)
		}
	}
}

func TestEncodeCommandUnknownDirection(t *testing.T) {
	if _, ok := EncodeCommand(Direction("sideways"), nil); ok {
		t.Fatal("EncodeCommand(unknown direction) = ok, want not ok")
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]LinePrefix{
		"DATA:S1:1,S2:2,S3:3":              PrefixData,
		"ACK:FORWARD:OK":                   PrefixAckOK,
		"ACK:FORWARD:BLOCKED:too_close":    PrefixAckBlocked,
		"ALERT:COLLISION:front":            PrefixAlertCollision,
		"SCAN:START":                       PrefixScanStart,
		"SCAN:POS:10,S1:1,S2:2,S3:3":       PrefixScanPos,
		"SCAN:BEST:90,DIST:30":             PrefixScanBest,
		"SCAN:COMPLETE":                    PrefixScanComplete,
		"GARBAGE":                          PrefixUnknown,
	}
	for line, want := range cases {
		if got := Classify(line); got != want {
			t.Errorf("Classify(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestBlockedReason(t *testing.T) {
	if got := BlockedReason("ACK:FORWARD:BLOCKED:too_close"); got != "too_close" {
		t.Errorf("BlockedReason = %q, want too_close", got)
	}
	if got := BlockedReason("ACK:FORWARD:OK"); got != "" {
		t.Errorf("BlockedReason(no reason) = %q, want empty", got)
	}
}
