package dto

import (
	"encoding/json"
	"io"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/validate"
)

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	Due       *civil.Date `json:"due"`
	Body      string      `json:"body"`
	Title     string      `json:"title"`
	Owner     string      `json:"owner"`
	Completed bool        `json:"completed"`
}

// taskConstraints holds the length limits checked after decoding.
type taskConstraints struct {
	Title *string `json:"title" validate:"omitempty,max=100"`
	Body  *string `json:"body" validate:"omitempty,max=4096"`
}

// ToTaskResponse converts a Task model to its wire form.
func ToTaskResponse(task *model.Task) TaskResponse {
	return TaskResponse{
		Due:       task.Due,
		Body:      task.Body,
		Title:     task.Title,
		Owner:     task.OwnerUsername,
		Completed: task.Completed,
	}
}

// ToTaskListResponse converts tasks to wire form, preserving order.
func ToTaskListResponse(tasks []*model.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		out[i] = ToTaskResponse(task)
	}
	return out
}

// DecodeTaskChanges reads a task payload. Every field is optional; "owner"
// and unknown fields are ignored. Title and body are trimmed of surrounding
// whitespace. Problems are reported per field as validate.Errors.
func DecodeTaskChanges(r io.Reader) (model.TaskChanges, error) {
	var changes model.TaskChanges

	raw, err := decodeObject(r)
	if err != nil {
		return changes, err
	}

	errs := validate.Errors{}

	if v, ok := raw["due"]; ok {
		changes.DueSet = true
		if !isNull(v) {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				errs.Add("due", validate.MsgDate)
			} else if d, err := civil.ParseDate(s); err != nil {
				errs.Add("due", validate.MsgDate)
			} else {
				changes.Due = &d
			}
		}
	}

	changes.Title = decodeString(raw, "title", errs)
	changes.Body = decodeString(raw, "body", errs)

	if v, ok := raw["completed"]; ok {
		var b bool
		switch {
		case isNull(v):
			errs.Add("completed", validate.MsgNotNull)
		case json.Unmarshal(v, &b) != nil:
			errs.Add("completed", validate.MsgBoolean)
		default:
			changes.Completed = &b
		}
	}

	if err := validate.Struct(taskConstraints{Title: changes.Title, Body: changes.Body}); err != nil {
		fieldErrs, ok := validate.AsErrors(err)
		if !ok {
			return changes, err
		}
		errs.Merge(fieldErrs)
	}

	return changes, errs.OrNil()
}

func decodeString(raw map[string]json.RawMessage, field string, errs validate.Errors) *string {
	v, ok := raw[field]
	if !ok {
		return nil
	}
	if isNull(v) {
		errs.Add(field, validate.MsgNotNull)
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		errs.Add(field, validate.MsgString)
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.ContainsRune(s, 0) {
		errs.Add(field, validate.MsgNullChar)
		return nil
	}
	return &s
}
