package event

import "encoding/json"

// envelope is the minimal shape every event frame must carry before we
// commit to a concrete type.
type envelope struct {
	Type   Type   `json:"type"`
	TaskID string `json:"task_id"`
}

// Decode parses a raw inbound frame into one of Progress, Completion or
// Error. The second return value is false when the frame should be
// ignored: not JSON, unknown type, missing task_id, a task_id that does
// not match the channel's bound task (stale frames from a superseded
// connection), or an out-of-range progress value. Decode never fails
// harder than that; wire-format fragility stops here.
func Decode(boundTaskID string, frame []byte) (interface{}, bool) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, false
	}
	if env.TaskID == "" || env.TaskID != boundTaskID {
		return nil, false
	}

	switch env.Type {
	case TypeProgress:
		var ev Progress
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, false
		}
		if ev.Progress < 0 || ev.Progress > 100 {
			return nil, false
		}
		return ev, true
	case TypeCompletion:
		var ev Completion
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, false
		}
		return ev, true
	case TypeError:
		var ev Error
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, false
		}
		return ev, true
	}
	return nil, false
}
