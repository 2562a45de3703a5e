package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedResponse indicates the grader output did not match the task schema.
var ErrMalformedResponse = errors.New("malformed grading response")

const gradingSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["task_number", "points_earned", "max_points"],
    "properties": {
      "task_number": {"type": "integer", "minimum": 1},
      "points_earned": {"type": "number", "minimum": 0},
      "max_points": {"type": "number", "exclusiveMinimum": 0},
      "comment": {"type": "string"}
    }
  }
}`

var taskSchema = jsonschema.MustCompileString("grading_tasks.json", gradingSchema)

// ParseGradingResponse validates the model output against the task schema and decodes it.
// Anything other than a non-empty array of task objects is rejected.
func ParseGradingResponse(content string) ([]TaskResult, error) {
	payload := stripCodeFence(content)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := taskSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var tasks []TaskResult
	if err := json.Unmarshal([]byte(payload), &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	seen := make(map[int]struct{}, len(tasks))
	for _, task := range tasks {
		if task.PointsEarned > task.MaxPoints {
			return nil, fmt.Errorf("%w: task %d earns more than max points", ErrMalformedResponse, task.TaskNumber)
		}
		if _, dup := seen[task.TaskNumber]; dup {
			return nil, fmt.Errorf("%w: duplicate task number %d", ErrMalformedResponse, task.TaskNumber)
		}
		seen[task.TaskNumber] = struct{}{}
	}

	return tasks, nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
