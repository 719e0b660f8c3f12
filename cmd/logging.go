package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

var levelNames = []string{"debug", "info", "warn", "error"}

var logLevels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// levelWriter drops log lines whose [LEVEL] tag is below min. Untagged lines count as info.
type levelWriter struct {
	out      io.Writer
	min      int
	jsonMode bool
	now      func() time.Time
}

func configureLogging(out io.Writer, level string, jsonLogs bool) error {
	min, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("invalid log level %q (want debug, info, warn or error)", level)
	}

	if jsonLogs {
		log.SetFlags(0)
	} else {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	log.SetOutput(&levelWriter{out: out, min: min, jsonMode: jsonLogs, now: time.Now})
	return nil
}

func (w *levelWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	level, msg := splitLevel(line)
	if logLevels[level] < w.min {
		return len(p), nil
	}

	if !w.jsonMode {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	data, err := json.Marshal(map[string]string{
		"time":  w.now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	})
	if err != nil {
		return 0, err
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return 0, err
	}
	return len(p), nil
}

// splitLevel finds the first [LEVEL] tag and returns the level and the line without it
func splitLevel(line string) (string, string) {
	for _, name := range levelNames {
		tag := "[" + strings.ToUpper(name) + "] "
		if i := strings.Index(line, tag); i >= 0 {
			return name, line[:i] + line[i+len(tag):]
		}
	}
	return "info", line
}
