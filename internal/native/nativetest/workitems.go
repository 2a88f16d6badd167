package nativetest

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/openiap/openiap-go/internal/native"
)

// maxRetries is the retry budget of a work item queue before an item moving
// to "retry" is failed instead.
const maxRetries = 3

func (a *allocation) workitem(rec *workitemRecord) *native.Workitem {
	w := &native.Workitem{
		ID:           a.str(rec.id),
		Name:         a.str(rec.name),
		Payload:      a.str(rec.payload),
		Priority:     rec.priority,
		NextRun:      rec.nextrun,
		LastRun:      rec.lastrun,
		State:        a.str(rec.state),
		Wiq:          a.str(rec.wiq),
		WiqID:        a.str(rec.wiqid),
		Retries:      rec.retries,
		Username:     a.str(rec.username),
		SuccessWiqID: a.str(rec.successWiqID),
		FailedWiqID:  a.str(rec.failedWiqID),
		SuccessWiq:   a.str(rec.successWiq),
		FailedWiq:    a.str(rec.failedWiq),
		ErrorMessage: a.str(rec.errorMessage),
		ErrorSource:  a.str(rec.errorSource),
		ErrorType:    a.str(rec.errorType),
	}
	if len(rec.files) > 0 {
		files := make([]*native.WorkitemFile, len(rec.files)+1)
		for i, f := range rec.files {
			files[i] = &native.WorkitemFile{
				Filename:   a.str(f.filename),
				ID:         a.str(f.id),
				Compressed: f.compressed,
			}
		}
		a.keep = append(a.keep, files)
		w.Files = &files[0]
		w.FilesLen = int32(len(rec.files))
	}
	return w
}

// nativeFiles reads a counted file array and checks it also carries the NULL
// terminator the binding promises.
func nativeFiles(p **native.WorkitemFile, n int32) ([]fileRecord, error) {
	files, err := native.Elements(p, n)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		slot := *(**native.WorkitemFile)(unsafe.Add(unsafe.Pointer(p), uintptr(n)*unsafe.Sizeof(p)))
		if slot != nil {
			return nil, errors.New("files array is not NULL-terminated")
		}
	}
	out := make([]fileRecord, 0, len(files))
	for _, f := range files {
		out = append(out, fileRecord{filename: native.GoString(f.Filename), compressed: f.Compressed})
	}
	return out, nil
}

func opPushWorkitem(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.PushWorkitemRequest](args[1])
	var rec *workitemRecord
	err := c.exec("push_workitem", args[0], func(st *clientState) error {
		wiq, wiqid := native.GoString(req.Wiq), native.GoString(req.WiqID)
		if wiq == "" && wiqid == "" {
			return errors.New("wiq or wiqid is required")
		}
		paths, err := nativeFiles(req.Files, req.FilesLen)
		if err != nil {
			return err
		}
		files, err := readFiles(paths)
		if err != nil {
			return err
		}
		rec = &workitemRecord{
			name:         native.GoString(req.Name),
			payload:      native.GoString(req.Payload),
			wiq:          wiq,
			wiqid:        wiqid,
			successWiqID: native.GoString(req.SuccessWiqID),
			failedWiqID:  native.GoString(req.FailedWiqID),
			successWiq:   native.GoString(req.SuccessWiq),
			failedWiq:    native.GoString(req.FailedWiq),
			priority:     req.Priority,
			nextrun:      req.NextRun,
			files:        files,
		}
		if st.user != nil {
			rec.username = st.user.username
		}
		c.pushWorkitem(rec)
		return nil
	})
	return c.workitemBlock("free_push_workitem_response", pickID(req.RequestID, idArg), rec, err)
}

func opPopWorkitem(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.PopWorkitemRequest](args[1])
	var rec *workitemRecord
	err := c.exec("pop_workitem", args[0], func(*clientState) error {
		wiq, wiqid := native.GoString(req.Wiq), native.GoString(req.WiqID)
		if wiq == "" && wiqid == "" {
			return errors.New("wiq or wiqid is required")
		}
		rec = c.popWorkitem(wiq, wiqid)
		if rec == nil {
			return nil
		}
		return writeFiles(str(args[2]), rec.files)
	})
	return c.workitemBlock("free_pop_workitem_response", pickID(req.RequestID, idArg), rec, err)
}

func opUpdateWorkitem(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.UpdateWorkitemRequest](args[1])
	var rec *workitemRecord
	err := c.exec("update_workitem", args[0], func(*clientState) error {
		w := req.Workitem
		if w == nil {
			return errors.New("workitem is required")
		}
		id := native.GoString(w.ID)
		found, ok := c.workitems[id]
		if !ok {
			return fmt.Errorf("workitem %s not found", id)
		}
		if found.state == "successful" || found.state == "failed" {
			return fmt.Errorf("workitem %s is already in state %s", id, found.state)
		}
		paths, err := nativeFiles(req.Files, req.FilesLen)
		if err != nil {
			return err
		}
		files, err := readFiles(paths)
		if err != nil {
			return err
		}
		found.name = native.GoString(w.Name)
		found.payload = native.GoString(w.Payload)
		found.priority = w.Priority
		found.nextrun = w.NextRun
		found.errorMessage = native.GoString(w.ErrorMessage)
		found.errorSource = native.GoString(w.ErrorSource)
		found.errorType = native.GoString(w.ErrorType)
		found.files = append(found.files, files...)
		switch state := native.GoString(w.State); state {
		case "retry":
			found.retries++
			if found.retries > maxRetries && !req.IgnoreMaxRetries {
				found.state = "failed"
			} else {
				found.state = "new"
			}
		case "new", "processing", "successful", "failed":
			found.state = state
		default:
			return fmt.Errorf("invalid state %q", state)
		}
		rec = found
		return nil
	})
	return c.workitemBlock("free_update_workitem_response", pickID(req.RequestID, idArg), rec, err)
}

func opDeleteWorkitem(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.DeleteWorkitemRequest](args[1])
	err := c.exec("delete_workitem", args[0], func(*clientState) error {
		id := native.GoString(req.ID)
		if _, ok := c.workitems[id]; !ok {
			return fmt.Errorf(`Delete workitem failed: ServerError("Workitem %s not found")`, id)
		}
		delete(c.workitems, id)
		return nil
	})
	return c.statusBlock("free_delete_workitem_response", pickID(req.RequestID, idArg), err)
}

// WorkitemState returns the state of the work item id, or "" if unknown.
func (c *Core) WorkitemState(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.workitems[id]; ok {
		return rec.state
	}
	return ""
}

// EmitWatchEvent queues an event for watchid whether or not the watch is
// still registered.
func (c *Core) EmitWatchEvent(watchid, operation, doc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchEvents[watchid] = append(c.watchEvents[watchid], watchEvent{id: watchid, operation: operation, document: doc})
}

// EmitQueueEvent queues a message on queue whether or not it is registered.
func (c *Core) EmitQueueEvent(queue, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueEvents[queue] = append(c.queueEvents[queue], queueEvent{queue: queue, data: data})
}

// EmitClientEvent queues a lifecycle event for every client event
// subscription.
func (c *Core) EmitClientEvent(event, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitClientEvent(0, event, reason)
}

// Watching reports whether watchid is registered.
func (c *Core) Watching(watchid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watches[watchid]
	return ok
}

// QueueRegistered reports whether queue is registered.
func (c *Core) QueueRegistered(queue string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queues[queue]
}
