package openiap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// WorkitemState is the processing state of a work item.
type WorkitemState string

const (
	WorkitemNew        WorkitemState = "new"
	WorkitemProcessing WorkitemState = "processing"
	WorkitemSuccessful WorkitemState = "successful"
	WorkitemFailed     WorkitemState = "failed"
	// WorkitemRetry asks the server to requeue the item, or to fail it once
	// the queue's retry budget is spent.
	WorkitemRetry WorkitemState = "retry"
)

func (s WorkitemState) valid() bool {
	switch s {
	case WorkitemNew, WorkitemProcessing, WorkitemSuccessful, WorkitemFailed, WorkitemRetry:
		return true
	}
	return false
}

// DefaultPriority is used when a pushed work item has no priority.
const DefaultPriority = 2

// WorkitemFile is a file attached to a work item.
//
// When pushing or updating, Filename is the local path to upload, or just a
// name when Content is set. Files read back from the server carry metadata
// only; their bytes are written to the pop's download folder.
type WorkitemFile struct {
	Filename   string
	ID         string
	Compressed bool
	Content    []byte
}

// Workitem is a unit of work in a work item queue.
type Workitem struct {
	ID           string
	Name         string
	Payload      string
	Priority     int
	NextRun      time.Time
	LastRun      time.Time
	Files        []WorkitemFile
	State        WorkitemState
	Wiq          string
	WiqID        string
	Retries      int
	Username     string
	SuccessWiqID string
	FailedWiqID  string
	SuccessWiq   string
	FailedWiq    string
	ErrorMessage string
	ErrorSource  string
	ErrorType    string
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() <= 0 {
		return 0
	}
	return uint64(t.Unix())
}

func fromUnixSeconds(s uint64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0).UTC()
}

func encodeFiles(a *native.Arena, files []WorkitemFile) (**native.WorkitemFile, int32) {
	if len(files) == 0 {
		return nil, 0
	}
	items := make([]*native.WorkitemFile, len(files))
	for i, f := range files {
		items[i] = &native.WorkitemFile{
			Filename:   a.CString(f.Filename),
			ID:         a.CString(f.ID),
			Compressed: f.Compressed,
		}
	}
	return native.PinArray(a, items), int32(len(files))
}

func encodeWorkitem(a *native.Arena, w *Workitem) *native.Workitem {
	files, n := encodeFiles(a, w.Files)
	return native.Pin(a, &native.Workitem{
		ID:           a.CString(w.ID),
		Name:         a.CString(w.Name),
		Payload:      a.CString(w.Payload),
		Priority:     int32(w.Priority),
		NextRun:      unixSeconds(w.NextRun),
		LastRun:      unixSeconds(w.LastRun),
		Files:        files,
		FilesLen:     n,
		State:        a.CString(string(w.State)),
		Wiq:          a.CString(w.Wiq),
		WiqID:        a.CString(w.WiqID),
		Retries:      int32(w.Retries),
		Username:     a.CString(w.Username),
		SuccessWiqID: a.CString(w.SuccessWiqID),
		FailedWiqID:  a.CString(w.FailedWiqID),
		SuccessWiq:   a.CString(w.SuccessWiq),
		FailedWiq:    a.CString(w.FailedWiq),
		ErrorMessage: a.CString(w.ErrorMessage),
		ErrorSource:  a.CString(w.ErrorSource),
		ErrorType:    a.CString(w.ErrorType),
	})
}

func workitemFromNative(p *native.Workitem) (*Workitem, error) {
	files, err := native.Elements(p.Files, p.FilesLen)
	if err != nil {
		return nil, err
	}
	w := &Workitem{
		ID:           native.GoString(p.ID),
		Name:         native.GoString(p.Name),
		Payload:      native.GoString(p.Payload),
		Priority:     int(p.Priority),
		NextRun:      fromUnixSeconds(p.NextRun),
		LastRun:      fromUnixSeconds(p.LastRun),
		State:        WorkitemState(native.GoString(p.State)),
		Wiq:          native.GoString(p.Wiq),
		WiqID:        native.GoString(p.WiqID),
		Retries:      int(p.Retries),
		Username:     native.GoString(p.Username),
		SuccessWiqID: native.GoString(p.SuccessWiqID),
		FailedWiqID:  native.GoString(p.FailedWiqID),
		SuccessWiq:   native.GoString(p.SuccessWiq),
		FailedWiq:    native.GoString(p.FailedWiq),
		ErrorMessage: native.GoString(p.ErrorMessage),
		ErrorSource:  native.GoString(p.ErrorSource),
		ErrorType:    native.GoString(p.ErrorType),
	}
	for _, f := range files {
		w.Files = append(w.Files, WorkitemFile{
			Filename:   native.GoString(f.Filename),
			ID:         native.GoString(f.ID),
			Compressed: f.Compressed,
		})
	}
	return w, nil
}

// stageFiles writes files given with inline Content to a private directory
// and returns the list the core should read from disk. cleanup removes the
// directory.
func stageFiles(op string, files []WorkitemFile) ([]WorkitemFile, func(), error) {
	var dir string
	cleanup := func() {
		if dir != "" {
			os.RemoveAll(dir)
		}
	}
	out := make([]WorkitemFile, 0, len(files))
	for _, f := range files {
		if f.Filename == "" {
			cleanup()
			return nil, nil, invalid(op, "files.filename", "is required")
		}
		if f.Content == nil {
			out = append(out, WorkitemFile{Filename: f.Filename, Compressed: f.Compressed})
			continue
		}
		if dir == "" {
			d, err := os.MkdirTemp("", "openiap-workitem-*")
			if err != nil {
				return nil, nil, fmt.Errorf("stage files: %w", err)
			}
			dir = d
		}
		path := filepath.Join(dir, filepath.Base(f.Filename))
		if err := os.WriteFile(path, f.Content, 0o600); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("stage %s: %w", f.Filename, err)
		}
		out = append(out, WorkitemFile{Filename: path, Compressed: f.Compressed})
	}
	return out, cleanup, nil
}

// PushWorkitemRequest adds a work item to a queue.
type PushWorkitemRequest struct {
	// Wiq or WiqID names the queue.
	Wiq   string
	WiqID string
	Name  string
	// Payload is a JSON object. Default: "{}"
	Payload string
	// NextRun delays the item. Zero runs it immediately.
	NextRun      time.Time
	SuccessWiqID string
	FailedWiqID  string
	SuccessWiq   string
	FailedWiq    string
	// Priority orders items; lower runs first. Default: DefaultPriority
	Priority int
	Files    []WorkitemFile
}

func (r *PushWorkitemRequest) validate() error {
	if r.Wiq == "" && r.WiqID == "" {
		return invalid("push_workitem", "wiq", "wiq or wiqid is required")
	}
	if r.Payload == "" {
		r.Payload = "{}"
	}
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	return checkJSON("push_workitem", "payload", r.Payload)
}

func pushWorkitemCall(req PushWorkitemRequest) (call[*Workitem], error) {
	if err := req.validate(); err != nil {
		return call[*Workitem]{}, err
	}
	files, cleanup, err := stageFiles("push_workitem", req.Files)
	if err != nil {
		return call[*Workitem]{}, err
	}
	return call[*Workitem]{
		op:      "push_workitem",
		fn:      "push_workitem",
		async:   "push_workitem_async",
		free:    "free_push_workitem_response",
		cleanup: cleanup,
		encode: func(a *native.Arena, id int32) []uintptr {
			arr, n := encodeFiles(a, files)
			return []uintptr{native.Addr(native.Pin(a, &native.PushWorkitemRequest{
				Wiq:          a.CString(req.Wiq),
				WiqID:        a.CString(req.WiqID),
				Name:         a.CString(req.Name),
				Payload:      a.CString(req.Payload),
				NextRun:      unixSeconds(req.NextRun),
				SuccessWiqID: a.CString(req.SuccessWiqID),
				FailedWiqID:  a.CString(req.FailedWiqID),
				SuccessWiq:   a.CString(req.SuccessWiq),
				FailedWiq:    a.CString(req.FailedWiq),
				Priority:     int32(req.Priority),
				Files:        arr,
				FilesLen:     n,
				RequestID:    id,
			}))}
		},
		decode: decodeWorkitem("push_workitem"),
	}, nil
}

// PushWorkitem adds a work item and returns it as stored.
func (c *Client) PushWorkitem(req PushWorkitemRequest) (*Workitem, error) {
	cl, err := pushWorkitemCall(req)
	if err != nil {
		return nil, err
	}
	return cl.run(c)
}

// PushWorkitemAsync is the asynchronous form of PushWorkitem.
func (c *Client) PushWorkitemAsync(req PushWorkitemRequest) *Future[*Workitem] {
	cl, err := pushWorkitemCall(req)
	if err != nil {
		return bridge.Failed[*Workitem](err)
	}
	return cl.start(c)
}

// PopWorkitemRequest takes the next runnable item from a queue.
type PopWorkitemRequest struct {
	Wiq   string
	WiqID string
	// DownloadFolder receives the item's files. Empty leaves them on the
	// server.
	DownloadFolder string
}

func (r PopWorkitemRequest) validate() error {
	if r.Wiq == "" && r.WiqID == "" {
		return invalid("pop_workitem", "wiq", "wiq or wiqid is required")
	}
	return nil
}

func popWorkitemCall(req PopWorkitemRequest) call[*Workitem] {
	return call[*Workitem]{
		op:    "pop_workitem",
		fn:    "pop_workitem",
		async: "pop_workitem_async",
		free:  "free_pop_workitem_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{
				native.Addr(native.Pin(a, &native.PopWorkitemRequest{
					Wiq:       a.CString(req.Wiq),
					WiqID:     a.CString(req.WiqID),
					RequestID: id,
				})),
				native.Addr(a.CString(req.DownloadFolder)),
			}
		},
		decode: decodeWorkitem("pop_workitem"),
	}
}

// PopWorkitem returns the next item, now in state processing, or nil when
// the queue has nothing runnable.
func (c *Client) PopWorkitem(req PopWorkitemRequest) (*Workitem, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return popWorkitemCall(req).run(c)
}

// PopWorkitemAsync is the asynchronous form of PopWorkitem.
func (c *Client) PopWorkitemAsync(req PopWorkitemRequest) *Future[*Workitem] {
	if err := req.validate(); err != nil {
		return bridge.Failed[*Workitem](err)
	}
	return popWorkitemCall(req).start(c)
}

// UpdateWorkitemRequest saves a work item, typically with a new State.
type UpdateWorkitemRequest struct {
	Workitem *Workitem
	// Files are uploaded and attached to the item.
	Files []WorkitemFile
	// IgnoreMaxRetries lets a retry requeue the item past the queue's
	// retry budget.
	IgnoreMaxRetries bool
}

func (r UpdateWorkitemRequest) validate() error {
	if r.Workitem == nil {
		return invalid("update_workitem", "workitem", "is required")
	}
	if r.Workitem.ID == "" {
		return invalid("update_workitem", "workitem.id", "is required")
	}
	if !r.Workitem.State.valid() {
		return invalid("update_workitem", "workitem.state", fmt.Sprintf("unknown state %q", r.Workitem.State))
	}
	return checkJSON("update_workitem", "workitem.payload", r.Workitem.Payload)
}

func updateWorkitemCall(req UpdateWorkitemRequest) (call[*Workitem], error) {
	if err := req.validate(); err != nil {
		return call[*Workitem]{}, err
	}
	files, cleanup, err := stageFiles("update_workitem", req.Files)
	if err != nil {
		return call[*Workitem]{}, err
	}
	w := *req.Workitem
	return call[*Workitem]{
		op:      "update_workitem",
		fn:      "update_workitem",
		async:   "update_workitem_async",
		free:    "free_update_workitem_response",
		cleanup: cleanup,
		encode: func(a *native.Arena, id int32) []uintptr {
			arr, n := encodeFiles(a, files)
			return []uintptr{native.Addr(native.Pin(a, &native.UpdateWorkitemRequest{
				Workitem:         encodeWorkitem(a, &w),
				IgnoreMaxRetries: req.IgnoreMaxRetries,
				Files:            arr,
				FilesLen:         n,
				RequestID:        id,
			}))}
		},
		decode: decodeWorkitem("update_workitem"),
	}, nil
}

// UpdateWorkitem saves the item and returns it as stored. Moving an item
// out of a terminal state fails; the error is never retried.
func (c *Client) UpdateWorkitem(req UpdateWorkitemRequest) (*Workitem, error) {
	cl, err := updateWorkitemCall(req)
	if err != nil {
		return nil, err
	}
	return cl.run(c)
}

// UpdateWorkitemAsync is the asynchronous form of UpdateWorkitem.
func (c *Client) UpdateWorkitemAsync(req UpdateWorkitemRequest) *Future[*Workitem] {
	cl, err := updateWorkitemCall(req)
	if err != nil {
		return bridge.Failed[*Workitem](err)
	}
	return cl.start(c)
}

// The core wraps a failed delete as "Delete workitem failed: <server error>",
// and the server reports an unknown id as `Workitem <id> not found`.
const (
	deleteWorkitemFailed = "Delete workitem failed: "
	workitemNotFound     = "not found"
)

func workitemMissing(msg string) bool {
	return strings.HasPrefix(msg, deleteWorkitemFailed) &&
		strings.Contains(strings.ToLower(msg[len(deleteWorkitemFailed):]), workitemNotFound)
}

func deleteWorkitemCall(id string) call[struct{}] {
	return call[struct{}]{
		op:    "delete_workitem",
		fn:    "delete_workitem",
		async: "delete_workitem_async",
		free:  "free_delete_workitem_response",
		encode: func(a *native.Arena, reqID int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.DeleteWorkitemRequest{
				ID:        a.CString(id),
				RequestID: reqID,
			}))}
		},
		decode: func(b *native.Block) (struct{}, error) {
			r := native.View[native.StatusResponse](b)
			if r.Success {
				return struct{}{}, nil
			}
			msg := native.GoString(r.Error)
			err := &RequestFailedError{Op: "delete_workitem", Message: msg}
			if workitemMissing(msg) {
				err.Err = ErrNotFound
			}
			return struct{}{}, err
		},
	}
}

// DeleteWorkitem removes a work item. An unknown id yields an error
// matching ErrNotFound.
func (c *Client) DeleteWorkitem(id string) error {
	if id == "" {
		return invalid("delete_workitem", "id", "is required")
	}
	return deleteWorkitemCall(id).exec(c)()
}

// DeleteWorkitemAsync is the asynchronous form of DeleteWorkitem.
func (c *Client) DeleteWorkitemAsync(id string) *Future[struct{}] {
	if id == "" {
		return bridge.Failed[struct{}](invalid("delete_workitem", "id", "is required"))
	}
	return deleteWorkitemCall(id).start(c)
}
