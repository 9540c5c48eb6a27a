package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetup_Levels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if got := Setup(tt.in, &buf); got != tt.want {
			t.Errorf("Setup(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_WritesToWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Setup("info", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("topic_id", "t1").Msg("topic started")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "topic started") || !strings.Contains(out, "topic_id=t1") {
		t.Errorf("output = %q, want topic started with topic_id=t1", out)
	}
}
