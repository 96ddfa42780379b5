package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"healthbot/internal/domain"
)

const reminderPromptTemplate = `Extract the reminder from the user's message.
The current date and time is %s (%s).
Reply with only a JSON object of the form {"task": "...", "date": "YYYY-MM-DD", "time": "HH:MM"}.
"task" is what to be reminded about, without the time words. "time" uses the 24-hour clock.
If no date is given, use the nearest date on which that time is still in the future.

Message: %s`

type reminderJSON struct {
	Task string `json:"task"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// ParseReminder asks the generator to structure a free-text reminder. When the
// model's answer is unusable it returns the original text due at now together
// with an error wrapping domain.ErrReminderParse; callers keep the result.
func (g *Generator) ParseReminder(ctx context.Context, text string, now time.Time) (domain.ParsedReminder, error) {
	fallback := domain.ParsedReminder{Task: strings.TrimSpace(text), At: now}

	prompt := fmt.Sprintf(reminderPromptTemplate,
		now.Format("2006-01-02 15:04"), now.Format("Monday"), text)
	out, err := g.complete(ctx, prompt, 0)
	if err != nil {
		return fallback, fmt.Errorf("%w: %w", domain.ErrReminderParse, err)
	}

	parsed, err := decodeReminder(out, text, now)
	if err != nil {
		g.logger.Warn("reminder parse fell back to now", "error", err, "output", out)
		return fallback, err
	}
	return parsed, nil
}

// decodeReminder validates the generator's JSON answer relative to now.
func decodeReminder(output, original string, now time.Time) (domain.ParsedReminder, error) {
	start, end := findJSONBounds(output)
	if start < 0 {
		return domain.ParsedReminder{}, fmt.Errorf("%w: no JSON object in output", domain.ErrReminderParse)
	}
	var r reminderJSON
	if err := json.Unmarshal([]byte(output[start:end]), &r); err != nil {
		return domain.ParsedReminder{}, fmt.Errorf("%w: %w", domain.ErrReminderParse, err)
	}

	clock, err := time.Parse("15:04", strings.TrimSpace(r.Time))
	if err != nil {
		return domain.ParsedReminder{}, fmt.Errorf("%w: time %q: %w", domain.ErrReminderParse, r.Time, err)
	}

	loc := now.Location()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	explicitDate := strings.TrimSpace(r.Date) != ""
	if explicitDate {
		day, err = time.ParseInLocation("2006-01-02", strings.TrimSpace(r.Date), loc)
		if err != nil {
			return domain.ParsedReminder{}, fmt.Errorf("%w: date %q: %w", domain.ErrReminderParse, r.Date, err)
		}
	}

	at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	// A time already past today means the next occurrence.
	if at.Before(now) && sameDay(at, now) {
		at = at.AddDate(0, 0, 1)
	}

	task := strings.TrimSpace(r.Task)
	if task == "" {
		task = strings.TrimSpace(original)
	}
	return domain.ParsedReminder{Task: task, At: at}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([]) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}
