package persistence

import "errors"

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrLeadNotFound     = errors.New("lead not found")
	ErrTaskNotFound     = errors.New("task not found")
)

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
