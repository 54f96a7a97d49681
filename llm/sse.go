package llm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// readSSE reads a server-sent event stream and calls fn for every event with
// a data payload. fn returns false to stop reading.
func readSSE(r io.Reader, fn func(event, data string) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var event string
	var data strings.Builder
	flush := func() (bool, error) {
		if data.Len() == 0 {
			event = ""
			return true, nil
		}
		payload := data.String()
		data.Reset()
		ev := event
		event = ""
		if payload == "[DONE]" {
			return false, nil
		}
		return fn(ev, payload)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ok, err := flush(); !ok || err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	_, err := flush()
	return err
}
