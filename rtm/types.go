package rtm

import (
	"encoding/json"
	"strconv"
	"time"
)

// User identifies the account a credential authenticates.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Fullname string `json:"fullname" yaml:"fullname"`
}

// Credential is the long-lived token obtained from a completed handshake
// together with the identity it authenticates. It is never mutated, only
// replaced wholesale on re-authentication. Serializable so an external
// store (keyring, config) can persist it; the client never touches disk.
type Credential struct {
	Token string `json:"token" yaml:"token"`
	Perms string `json:"perms" yaml:"perms"`
	User  User   `json:"user" yaml:"user"`
}

// List is a task list's metadata. Tasks are fetched separately.
type List struct {
	ID   string
	Name string
}

// TaskRef addresses a single task on the service. The service scopes a
// task id by its series and list, so all three parts are required for
// any mutation.
type TaskRef struct {
	ListID   string
	SeriesID string
	TaskID   string
}

// Task is one to-do item, flattened from the service's series/instance
// wire shape. ID is unique within its series; SeriesID within its list.
type Task struct {
	ID         string
	SeriesID   string
	ListID     string
	Name       string
	Due        *time.Time
	HasDueTime bool
	Priority   string // "N" or "1".."3"
	Added      *time.Time
	Completed  *time.Time
	Tags       []string
}

// Ref returns the full service address of the task.
func (t *Task) Ref() TaskRef {
	return TaskRef{ListID: t.ListID, SeriesID: t.SeriesID, TaskID: t.ID}
}

// IsComplete reports whether the service considers the task done.
func (t *Task) IsComplete() bool { return t.Completed != nil }

// Transaction identifies a mutating call on the server side. Undoable
// transactions can be reversed with Client.UndoTransaction.
type Transaction struct {
	ID       string
	Undoable bool
}

// ----------------------------------------------------------------------
// Wire decoding. The service wraps every response in {"rsp":{...}} with a
// "stat" of ok/fail, renders booleans as "0"/"1", empty optionals as ""
// and tags as either a bare array or {"tag":[...]}.
// ----------------------------------------------------------------------

type envelope struct {
	Rsp json.RawMessage `json:"rsp"`
}

type rspStatus struct {
	Stat string   `json:"stat"`
	Err  *wireErr `json:"err"`
}

type wireErr struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (w *wireErr) toServiceError() *ServiceError {
	code, _ := strconv.Atoi(w.Code)
	return &ServiceError{Code: code, Msg: w.Msg}
}

// wireTime decodes the service's timestamps, where "" means absent.
type wireTime struct {
	t *time.Time
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		w.t = nil
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	w.t = &parsed
	return nil
}

// wireFlag decodes "0"/"1" booleans.
type wireFlag bool

func (w *wireFlag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*w = s == "1"
	return nil
}

// wireTags decodes the tag field, which is [] when empty and
// {"tag":["a","b"]} otherwise.
type wireTags []string

func (w *wireTags) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		// Empty-list form; the service never puts strings here.
		*w = nil
		return nil
	}
	var obj struct {
		Tag []string `json:"tag"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*w = obj.Tag
	return nil
}

type frobRsp struct {
	Frob string `json:"frob"`
}

type authRsp struct {
	Auth struct {
		Token string `json:"token"`
		Perms string `json:"perms"`
		User  User   `json:"user"`
	} `json:"auth"`
}

type listsRsp struct {
	Lists struct {
		List []wireList `json:"list"`
	} `json:"lists"`
}

type wireList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type timelineRsp struct {
	Timeline string `json:"timeline"`
}

type tasksRsp struct {
	Tasks struct {
		List []wireTaskList `json:"list"`
	} `json:"tasks"`
}

type wireTaskList struct {
	ID         string           `json:"id"`
	TaskSeries []wireTaskSeries `json:"taskseries"`
}

type wireTaskSeries struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Tags wireTags   `json:"tags"`
	Task []wireTask `json:"task"`
}

type wireTask struct {
	ID         string   `json:"id"`
	Due        wireTime `json:"due"`
	HasDueTime wireFlag `json:"has_due_time"`
	Added      wireTime `json:"added"`
	Completed  wireTime `json:"completed"`
	Deleted    wireTime `json:"deleted"`
	Priority   string   `json:"priority"`
}

type transactionRsp struct {
	Transaction struct {
		ID       string   `json:"id"`
		Undoable wireFlag `json:"undoable"`
	} `json:"transaction"`
}

// taskMutationRsp is shared by add/complete/uncomplete responses, which
// carry the transaction plus the affected list fragment.
type taskMutationRsp struct {
	Transaction struct {
		ID       string   `json:"id"`
		Undoable wireFlag `json:"undoable"`
	} `json:"transaction"`
	List wireTaskList `json:"list"`
}

// flattenTasks converts the nested list/series/instance wire shape into
// flat tasks, skipping instances the service reports as deleted.
func flattenTasks(lists []wireTaskList) []Task {
	var out []Task
	for _, l := range lists {
		for _, s := range l.TaskSeries {
			for _, t := range s.Task {
				if t.Deleted.t != nil {
					continue
				}
				out = append(out, Task{
					ID:         t.ID,
					SeriesID:   s.ID,
					ListID:     l.ID,
					Name:       s.Name,
					Due:        t.Due.t,
					HasDueTime: bool(t.HasDueTime),
					Priority:   t.Priority,
					Added:      t.Added.t,
					Completed:  t.Completed.t,
					Tags:       []string(s.Tags),
				})
			}
		}
	}
	return out
}
