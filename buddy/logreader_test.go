package buddy

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, in string, opts LogReadOptions) ([]LogEntry, error) {
	t.Helper()
	var got []LogEntry
	n, err := ReadLog(context.Background(), strings.NewReader(in), opts, func(e LogEntry) error {
		got = append(got, e)
		return nil
	})
	if n != len(got) {
		t.Fatalf("n=%d, callbacks=%d", n, len(got))
	}
	return got, err
}

func TestReadLog_Array(t *testing.T) {
	t.Parallel()

	got, err := collect(t, `[
  {"user_message": "hi", "emotion": "joy", "intent": "greeting", "chatbot_response": "Hello!"},
  {"user_message": "exam", "emotion": "stress", "intent": "academic", "chatbot_response": "You got this", "extra": 1}
]`, LogReadOptions{})
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(got) != 2 || got[0].UserMessage != "hi" || got[1].Intent != "academic" {
		t.Fatalf("entries=%+v", got)
	}
}

func TestReadLog_ObjectWithArrayField(t *testing.T) {
	t.Parallel()

	in := `{"meta": {"source": "pilot", "tags": ["a", "b"]}, "logs": [{"user_message": "hi"}], "count": 1}`
	got, err := collect(t, in, LogReadOptions{ArrayField: "logs"})
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(got) != 1 || got[0].UserMessage != "hi" {
		t.Fatalf("entries=%+v", got)
	}

	if _, err := collect(t, in, LogReadOptions{ArrayField: "records"}); err == nil {
		t.Fatalf("expected error for missing array field")
	}
	if _, err := collect(t, `{"logs": {"user_message": "hi"}}`, LogReadOptions{ArrayField: "logs"}); err == nil {
		t.Fatalf("expected error for non-array field")
	}
}

func TestReadLog_JSONLines(t *testing.T) {
	t.Parallel()

	in := "\xEF\xBB\xBF{\"user_message\": \"one\"}\n\n{\"user_message\": \"two\"}\n{\"user_message\": \"three\"}\n"
	got, err := collect(t, in, LogReadOptions{})
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(got) != 3 || got[2].UserMessage != "three" {
		t.Fatalf("entries=%+v", got)
	}

	if _, err := collect(t, "{\"user_message\": \"one\"}\n{broken\n", LogReadOptions{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReadLog_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	got, err := collect(t, "  \n", LogReadOptions{})
	if err != nil || len(got) != 0 {
		t.Fatalf("empty input: entries=%d err=%v", len(got), err)
	}
	if _, err := collect(t, `"just a string"`, LogReadOptions{}); err == nil {
		t.Fatalf("expected error for scalar top-level value")
	}
}

func TestReadLog_StopsOnCallbackError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	calls := 0
	n, err := ReadLog(context.Background(), strings.NewReader(`[{}, {}, {}]`), LogReadOptions{}, func(LogEntry) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 1 || calls != 2 {
		t.Fatalf("n=%d calls=%d err=%v", n, calls, err)
	}
}

func TestReadLog_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadLog(ctx, strings.NewReader(`[{}, {}]`), LogReadOptions{}, func(LogEntry) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
