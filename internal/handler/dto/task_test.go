package dto

import (
	"encoding/json"
	"strings"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/validate"
)

func TestDecodeTaskChanges_Valid(t *testing.T) {
	t.Parallel()

	body := `{"due":"2024-05-01","title":"test","body":"This is a test task","completed":true,"owner":"mallory"}`

	changes, err := DecodeTaskChanges(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeTaskChanges() unexpected error: %v", err)
	}

	want := civil.Date{Year: 2024, Month: 5, Day: 1}
	if !changes.DueSet || changes.Due == nil || *changes.Due != want {
		t.Errorf("Due = %v (set=%v), want %v", changes.Due, changes.DueSet, want)
	}
	if changes.Title == nil || *changes.Title != "test" {
		t.Errorf("Title = %v, want test", changes.Title)
	}
	if changes.Body == nil || *changes.Body != "This is a test task" {
		t.Errorf("Body = %v", changes.Body)
	}
	if changes.Completed == nil || !*changes.Completed {
		t.Errorf("Completed = %v, want true", changes.Completed)
	}
}

func TestDecodeTaskChanges_EmptyBody(t *testing.T) {
	t.Parallel()

	changes, err := DecodeTaskChanges(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty body should decode, got %v", err)
	}
	if changes.DueSet || changes.Title != nil || changes.Body != nil || changes.Completed != nil {
		t.Errorf("expected no fields set, got %+v", changes)
	}
}

func TestDecodeTaskChanges_NullDue(t *testing.T) {
	t.Parallel()

	changes, err := DecodeTaskChanges(strings.NewReader(`{"due":null}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changes.DueSet || changes.Due != nil {
		t.Errorf("explicit null should clear due, got %+v", changes)
	}
}

func TestDecodeTaskChanges_FieldErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"invalid calendar date", `{"due":"2019-13-01"}`, "due"},
		{"due not a string", `{"due":20190101}`, "due"},
		{"title too long", `{"title":"` + strings.Repeat("x", model.TaskTitleMaxLength+1) + `"}`, "title"},
		{"body too long", `{"body":"` + strings.Repeat("x", model.TaskBodyMaxLength+1) + `"}`, "body"},
		{"title null", `{"title":null}`, "title"},
		{"title number", `{"title":42}`, "title"},
		{"completed string", `{"completed":"yes"}`, "completed"},
		{"completed null", `{"completed":null}`, "completed"},
		{"malformed json", `{"title":`, validate.NonFieldKey},
		{"not an object", `["title"]`, validate.NonFieldKey},
		{"trailing data", `{"title":"x"} garbage`, validate.NonFieldKey},
		{"second object", `{"title":"x"}{"title":"y"}`, validate.NonFieldKey},
		{"title null character", `{"title":"a\u0000b"}`, "title"},
		{"body null character", `{"body":"\u0000"}`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeTaskChanges(strings.NewReader(tt.body))
			fieldErrs, ok := validate.AsErrors(err)
			if !ok {
				t.Fatalf("expected validate.Errors, got %v", err)
			}
			if len(fieldErrs[tt.wantField]) == 0 {
				t.Errorf("expected error on %q, got %v", tt.wantField, fieldErrs)
			}
		})
	}
}

func TestDecodeTaskChanges_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantTitle string
		wantBody  string
	}{
		{"surrounding spaces", `{"title":"  test ","body":"\tbody\n"}`, "test", "body"},
		{"inner spaces kept", `{"title":"a  b","body":" x y "}`, "a  b", "x y"},
		{"trailing whitespace after object", "{\"title\":\"t\",\"body\":\"b\"}\n\t ", "t", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			changes, err := DecodeTaskChanges(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if changes.Title == nil || *changes.Title != tt.wantTitle {
				t.Errorf("Title = %v, want %q", changes.Title, tt.wantTitle)
			}
			if changes.Body == nil || *changes.Body != tt.wantBody {
				t.Errorf("Body = %v, want %q", changes.Body, tt.wantBody)
			}
		})
	}
}

func TestDecodeTaskChanges_NullCharacterMessage(t *testing.T) {
	t.Parallel()

	_, err := DecodeTaskChanges(strings.NewReader(`{"title":"a\u0000"}`))
	fieldErrs, ok := validate.AsErrors(err)
	if !ok {
		t.Fatalf("expected validate.Errors, got %v", err)
	}
	if got := fieldErrs["title"]; len(got) != 1 || got[0] != validate.MsgNullChar {
		t.Errorf("title errors = %v, want [%q]", got, validate.MsgNullChar)
	}
}

func TestDecodeTaskChanges_CollectsAllFields(t *testing.T) {
	t.Parallel()

	_, err := DecodeTaskChanges(strings.NewReader(`{"due":"nope","completed":"nope"}`))
	fieldErrs, ok := validate.AsErrors(err)
	if !ok {
		t.Fatalf("expected validate.Errors, got %v", err)
	}
	if len(fieldErrs) != 2 {
		t.Errorf("expected 2 field errors, got %v", fieldErrs)
	}
}

func TestDecodeTaskChanges_MaxLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("é", model.TaskTitleMaxLength)
	_, err := DecodeTaskChanges(strings.NewReader(`{"title":"` + title + `"}`))
	if err != nil {
		t.Errorf("multi-byte title at the limit should be valid, got %v", err)
	}
}

func TestTaskResponse_JSON(t *testing.T) {
	t.Parallel()

	due := civil.Date{Year: 2024, Month: 5, Day: 1}
	task := &model.Task{
		ID:            3,
		Due:           &due,
		Title:         "test",
		Body:          "b",
		OwnerUsername: "basic",
	}

	data, err := json.Marshal(ToTaskResponse(task))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"due":"2024-05-01","body":"b","title":"test","owner":"basic","completed":false}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	task.Due = nil
	data, _ = json.Marshal(ToTaskResponse(task))
	if !strings.HasPrefix(string(data), `{"due":null`) {
		t.Errorf("nil due should encode as null, got %s", data)
	}
}
