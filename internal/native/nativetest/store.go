package nativetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errNotFound = errors.New("item not found")

type document = map[string]any

type collection struct {
	name    string
	kind    string
	docs    []document
	indexes []document
}

type fileRecord struct {
	id         string
	filename   string
	compressed bool
	content    []byte
}

type workitemRecord struct {
	id, name, payload, state  string
	wiq, wiqid, username      string
	successWiqID, failedWiqID string
	successWiq, failedWiq     string
	errorMessage, errorSource string
	errorType                 string
	priority, retries         int32
	nextrun, lastrun          uint64
	files                     []fileRecord
	seq                       int
}

type watchEvent struct {
	id, operation, document string
}

type queueEvent struct {
	queue, correlationID, replyTo, routingKey, exchange, data string
}

type exchange struct {
	algorithm  string
	routingKey string
	queues     []string
}

type clientEvent struct {
	event, reason string
}

type eventSub struct {
	client uintptr
	events []clientEvent
}

// store holds the fake server state. Every method expects Core.mu held.
type store struct {
	collections map[string]*collection
	files       map[string]fileRecord

	workitems  map[string]*workitemRecord
	workitemNo int

	watches     map[string]string
	watchEvents map[string][]watchEvent

	queues      map[string]bool
	queueEvents map[string][]queueEvent
	exchanges   map[string]*exchange

	eventSubs map[string]*eventSub
}

func (s *store) init() {
	s.collections = make(map[string]*collection)
	s.files = make(map[string]fileRecord)
	s.workitems = make(map[string]*workitemRecord)
	s.watches = make(map[string]string)
	s.watchEvents = make(map[string][]watchEvent)
	s.queues = make(map[string]bool)
	s.queueEvents = make(map[string][]queueEvent)
	s.exchanges = make(map[string]*exchange)
	s.eventSubs = make(map[string]*eventSub)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func parseObject(raw string) (document, error) {
	if strings.TrimSpace(raw) == "" {
		return document{}, nil
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return doc, nil
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *store) coll(name string, create bool) *collection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &collection{
			name:    name,
			kind:    "collection",
			indexes: []document{{"name": "_id_", "key": document{"_id": 1.0}}},
		}
		s.collections[name] = c
	}
	return c
}

func matches(doc, filter document) bool {
	for k, want := range filter {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

func (s *store) find(collection string, filter document) []document {
	c := s.coll(collection, false)
	if c == nil {
		return nil
	}
	var out []document
	for _, d := range c.docs {
		if matches(d, filter) {
			out = append(out, d)
		}
	}
	return out
}

func less(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	}
	return false
}

func (s *store) query(collection, query, projection, orderby string, skip, top int) (string, error) {
	filter, err := parseObject(query)
	if err != nil {
		return "", err
	}
	docs := s.find(collection, filter)
	if order, err := parseObject(orderby); err == nil && len(order) == 1 {
		for key, dir := range order {
			desc := dir == -1.0
			sort.SliceStable(docs, func(i, j int) bool {
				if desc {
					return less(docs[j][key], docs[i][key])
				}
				return less(docs[i][key], docs[j][key])
			})
		}
	}
	if skip > len(docs) {
		skip = len(docs)
	}
	docs = docs[skip:]
	if top > 0 && top < len(docs) {
		docs = docs[:top]
	}
	proj, err := parseObject(projection)
	if err != nil {
		return "", err
	}
	out := make([]document, 0, len(docs))
	for _, d := range docs {
		if len(proj) == 0 {
			out = append(out, d)
			continue
		}
		p := document{"_id": d["_id"]}
		for k := range proj {
			if v, ok := d[k]; ok {
				p[k] = v
			}
		}
		out = append(out, p)
	}
	return toJSON(out), nil
}

func (s *store) aggregate(collection, pipeline string) (string, error) {
	var stages []document
	if err := json.Unmarshal([]byte(pipeline), &stages); err != nil {
		return "", fmt.Errorf("invalid pipeline: %w", err)
	}
	filter := document{}
	for _, st := range stages {
		if m, ok := st["$match"].(map[string]any); ok {
			for k, v := range m {
				filter[k] = v
			}
		}
	}
	docs := s.find(collection, filter)
	if docs == nil {
		docs = []document{}
	}
	return toJSON(docs), nil
}

func (s *store) count(collection, query string) (int, error) {
	filter, err := parseObject(query)
	if err != nil {
		return 0, err
	}
	return len(s.find(collection, filter)), nil
}

func (s *store) distinct(collection, field, query string) ([]string, error) {
	filter, err := parseObject(query)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, d := range s.find(collection, filter) {
		v, ok := d[field]
		if !ok {
			continue
		}
		str, isStr := v.(string)
		if !isStr {
			str = toJSON(v)
		}
		if !seen[str] {
			seen[str] = true
			out = append(out, str)
		}
	}
	return out, nil
}

func (s *store) insert(collection string, doc document) document {
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = newID()
	}
	c := s.coll(collection, true)
	c.docs = append(c.docs, doc)
	s.notify(collection, "insert", doc)
	return doc
}

func (s *store) replace(collection string, doc document) (document, error) {
	c := s.coll(collection, false)
	if c == nil {
		return nil, errNotFound
	}
	for i, d := range c.docs {
		if d["_id"] == doc["_id"] {
			c.docs[i] = doc
			s.notify(collection, "replace", doc)
			return doc, nil
		}
	}
	return nil, errNotFound
}

func (s *store) upsert(collection, uniqueness string, doc document) document {
	keys := []string{"_id"}
	if uniqueness != "" {
		keys = strings.Split(uniqueness, ",")
	}
	filter := document{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if v, ok := doc[k]; ok {
			filter[k] = v
		}
	}
	if len(filter) > 0 {
		if found := s.find(collection, filter); len(found) > 0 {
			doc["_id"] = found[0]["_id"]
			out, _ := s.replace(collection, doc)
			return out
		}
	}
	return s.insert(collection, doc)
}

func (s *store) remove(collection string, pred func(document) bool) int {
	c := s.coll(collection, false)
	if c == nil {
		return 0
	}
	kept := c.docs[:0]
	n := 0
	for _, d := range c.docs {
		if pred(d) {
			n++
			s.notify(collection, "delete", d)
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return n
}

func (s *store) notify(collection, operation string, doc document) {
	for id, coll := range s.watches {
		if coll == collection {
			s.watchEvents[id] = append(s.watchEvents[id], watchEvent{id: id, operation: operation, document: toJSON(doc)})
		}
	}
}

func (s *store) listCollections() string {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]document, 0, len(names))
	for _, n := range names {
		out = append(out, document{"name": n, "type": s.collections[n].kind})
	}
	return toJSON(out)
}

func (s *store) upload(path, filename, mimetype, metadata, collection string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	if collection == "" {
		collection = "fs"
	}
	id := newID()
	s.files[id] = fileRecord{id: id, filename: filename, content: content}
	meta, _ := parseObject(metadata)
	s.insert(collection+".files", document{
		"_id":         id,
		"filename":    filename,
		"contentType": mimetype,
		"length":      float64(len(content)),
		"metadata":    meta,
	})
	return id, nil
}

func (s *store) download(id, folder, filename string) (string, error) {
	f, ok := s.files[id]
	if !ok {
		return "", errNotFound
	}
	if filename == "" {
		filename = f.filename
	}
	if err := os.WriteFile(filepath.Join(folder, filename), f.content, 0o600); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *store) pushWorkitem(rec *workitemRecord) {
	s.workitemNo++
	rec.seq = s.workitemNo
	rec.id = newID()
	rec.state = "new"
	s.workitems[rec.id] = rec
}

func (s *store) popWorkitem(wiq, wiqid string) *workitemRecord {
	now := uint64(time.Now().Unix())
	var best *workitemRecord
	for _, rec := range s.workitems {
		if rec.state != "new" || rec.nextrun > now {
			continue
		}
		if (wiq != "" && rec.wiq != wiq) || (wiqid != "" && rec.wiqid != wiqid) {
			continue
		}
		if best == nil || rec.priority < best.priority ||
			(rec.priority == best.priority && rec.seq < best.seq) {
			best = rec
		}
	}
	if best != nil {
		best.state = "processing"
		best.lastrun = now
	}
	return best
}

func readFiles(paths []fileRecord) ([]fileRecord, error) {
	out := make([]fileRecord, 0, len(paths))
	for _, f := range paths {
		content, err := os.ReadFile(f.filename)
		if err != nil {
			return nil, err
		}
		out = append(out, fileRecord{
			id:         newID(),
			filename:   filepath.Base(f.filename),
			compressed: f.compressed,
			content:    content,
		})
	}
	return out, nil
}

func writeFiles(folder string, files []fileRecord) error {
	if folder == "" {
		return nil
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(folder, f.filename), f.content, 0o600); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) queueMessage(queue, exchangeName, routingKey string, ev queueEvent) {
	if exchangeName != "" {
		ex, ok := s.exchanges[exchangeName]
		if !ok {
			return
		}
		for _, q := range ex.queues {
			if ex.algorithm == "direct" && ex.routingKey != routingKey {
				continue
			}
			e := ev
			e.queue = q
			s.queueEvents[q] = append(s.queueEvents[q], e)
		}
		return
	}
	if s.queues[queue] {
		ev.queue = queue
		s.queueEvents[queue] = append(s.queueEvents[queue], ev)
	}
}

func (s *store) emitClientEvent(client uintptr, event, reason string) {
	for _, sub := range s.eventSubs {
		if client == 0 || sub.client == client {
			sub.events = append(sub.events, clientEvent{event: event, reason: reason})
		}
	}
}
