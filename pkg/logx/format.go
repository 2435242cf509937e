package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorWhite  = "\033[97m"
	colorDebug  = "\033[1;36m"
	colorInfo   = "\033[1;32m"
	colorWarn   = "\033[1;33m"
	colorFailed = "\033[1;31m"
)

func levelColor(l Level) string {
	switch l {
	case LevelDebug:
		return colorDebug
	case LevelInfo:
		return colorInfo
	case LevelWarn:
		return colorWarn
	default:
		return colorFailed
	}
}

func paint(b *strings.Builder, on bool, color, s string) {
	if on {
		b.WriteString(color)
		b.WriteString(s)
		b.WriteString(colorReset)
		return
	}
	b.WriteString(s)
}

// encodeConsole renders `time [LEVEL] message k=v k=v` with fields sorted by key.
func encodeConsole(r record, colors bool, timeFormat string) []byte {
	var b strings.Builder

	paint(&b, colors, colorGray, r.Time.Format(timeFormat))
	b.WriteByte(' ')
	paint(&b, colors, levelColor(r.Level), fmt.Sprintf("[%-5s]", r.Level.String()))
	b.WriteByte(' ')
	paint(&b, colors, colorWhite, r.Message)

	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			if k == "error" && r.Err != nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, r.Fields[k])
		}
		if len(pairs) > 0 {
			b.WriteByte(' ')
			paint(&b, colors, colorCyan, strings.Join(pairs, " "))
		}
	}

	if r.Err != nil {
		b.WriteString("\n")
		paint(&b, colors, colorRed, "  ╰─→ error: "+r.Err.Error())
	}

	b.WriteByte('\n')
	return []byte(b.String())
}

func encodeJSON(r record) []byte {
	data := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		data[k] = v
	}
	data["level"] = r.Level.String()
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)
	if r.Err != nil {
		data["error"] = r.Err.Error()
	}

	out, err := json.Marshal(data)
	if err != nil {
		out, _ = json.Marshal(map[string]any{
			"level":   r.Level.String(),
			"message": r.Message,
			"error":   "logx: unencodable fields: " + err.Error(),
		})
	}
	return append(out, '\n')
}
