package dto

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/validate"
)

// CreateUserRequest is the body of POST /users/.
// Tasks is accepted for symmetry with the response but never applied.
type CreateUserRequest struct {
	Username string  `json:"username" validate:"required,max=150,username"`
	Tasks    []int64 `json:"tasks,omitempty"`
}

// UserResponse is the wire form of a user.
type UserResponse struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Tasks    []int64 `json:"tasks"`
}

// UserPageResponse is one page of the user list.
type UserPageResponse struct {
	Count    int64          `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []UserResponse `json:"results"`
}

// ToUserResponse converts a User model to its wire form.
func ToUserResponse(user *model.User) UserResponse {
	tasks := user.TaskIDs
	if tasks == nil {
		tasks = []int64{}
	}
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Tasks:    tasks,
	}
}

// ToUserPageResponse builds a page envelope. Empty links become null.
func ToUserPageResponse(users []*model.User, count int64, next, previous string) UserPageResponse {
	results := make([]UserResponse, len(users))
	for i, user := range users {
		results[i] = ToUserResponse(user)
	}
	return UserPageResponse{
		Count:    count,
		Next:     optional(next),
		Previous: optional(previous),
		Results:  results,
	}
}

// DecodeCreateUser reads and validates a user payload.
func DecodeCreateUser(r io.Reader) (string, error) {
	raw, err := decodeObject(r)
	if err != nil {
		return "", err
	}

	var req CreateUserRequest
	errs := validate.Errors{}

	if v, ok := raw["username"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.Username); err != nil {
			errs.Add("username", validate.MsgString)
			return "", errs
		}
		req.Username = strings.TrimSpace(req.Username)
		if strings.ContainsRune(req.Username, 0) {
			errs.Add("username", validate.MsgNullChar)
			return "", errs
		}
	}

	if err := validate.Struct(req); err != nil {
		fieldErrs, ok := validate.AsErrors(err)
		if !ok {
			return "", err
		}
		errs.Merge(fieldErrs)
	}

	if err := errs.OrNil(); err != nil {
		return "", err
	}
	return req.Username, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
