// Copyright 2025 OpenIAP ApS (https://openiap.io)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package native

// Pure-Go mirrors of the structs declared in clib_openiap.h. Field order and
// types must match the C declarations exactly; const char* is *byte, arrays of
// pointers are **T. Several C structs share a layout and are mirrored once.

// ClientWrapper is the prefix of the native client handle. The trailing
// Option<Client> is opaque and never read from Go.
type ClientWrapper struct {
	Success bool
	Error   *byte
}

// StatusResponse mirrors ConnectResponseWrapper, CreateCollectionResponseWrapper,
// DropCollectionResponseWrapper, CreateIndexResponseWrapper,
// DropIndexResponseWrapper, UnWatchResponseWrapper and
// DeleteWorkitemResponseWrapper.
type StatusResponse struct {
	Success   bool
	Error     *byte
	RequestID int32
}

// ResultResponse mirrors every response carrying one string payload ahead of
// the error: query, aggregate, signin (jwt), list_collections, get_indexes,
// insert_one, insert_many, update_one, insert_or_update_one, download
// (filename), upload (id), watch (watchid), register_queue and
// register_exchange (queuename), custom_command, rpc and invoke_openrpa.
type ResultResponse struct {
	Success   bool
	Result    *byte
	Error     *byte
	RequestID int32
}

// CountResponse mirrors CountResponseWrapper, DeleteOneResponseWrapper and
// DeleteManyResponseWrapper.
type CountResponse struct {
	Success   bool
	Result    int32
	Error     *byte
	RequestID int32
}

// DistinctResponse mirrors DistinctResponseWrapper.
type DistinctResponse struct {
	Success    bool
	Results    **byte
	Error      *byte
	ResultsLen int32
	RequestID  int32
}

// WorkitemResponse mirrors the push, pop and update workitem responses.
type WorkitemResponse struct {
	Success   bool
	Error     *byte
	Workitem  *Workitem
	RequestID int32
}

// PlainResponse mirrors QueueMessageResponseWrapper,
// UnRegisterQueueResponseWrapper and OffClientEventResponseWrapper, which
// carry no request id.
type PlainResponse struct {
	Success bool
	Error   *byte
}

// EventResponse mirrors ClientEventResponseWrapper.
type EventResponse struct {
	Success bool
	EventID *byte
	Error   *byte
}

// User mirrors UserWrapper.
type User struct {
	ID       *byte
	Name     *byte
	Username *byte
	Email    *byte
	Roles    **byte
	RolesLen int32
}

// WatchEvent mirrors WatchEventWrapper. A nil or empty ID marks an empty queue.
type WatchEvent struct {
	ID        *byte
	Operation *byte
	Document  *byte
	RequestID int32
}

// QueueEvent mirrors QueueEventWrapper. A nil or empty QueueName marks an
// empty queue.
type QueueEvent struct {
	QueueName     *byte
	CorrelationID *byte
	ReplyTo       *byte
	RoutingKey    *byte
	ExchangeName  *byte
	Data          *byte
	RequestID     int32
}

// ClientEvent mirrors ClientEventWrapper. A nil or empty Event marks an empty
// queue.
type ClientEvent struct {
	Event  *byte
	Reason *byte
}

// WorkitemFile mirrors WorkitemFileWrapper.
type WorkitemFile struct {
	Filename   *byte
	ID         *byte
	Compressed bool
}

// Workitem mirrors WorkitemWrapper. NextRun and LastRun are POSIX seconds,
// zero meaning unset.
type Workitem struct {
	ID           *byte
	Name         *byte
	Payload      *byte
	Priority     int32
	NextRun      uint64
	LastRun      uint64
	Files        **WorkitemFile
	FilesLen     int32
	State        *byte
	Wiq          *byte
	WiqID        *byte
	Retries      int32
	Username     *byte
	SuccessWiqID *byte
	FailedWiqID  *byte
	SuccessWiq   *byte
	FailedWiq    *byte
	ErrorMessage *byte
	ErrorSource  *byte
	ErrorType    *byte
}

// SigninRequest mirrors SigninRequestWrapper.
type SigninRequest struct {
	Username     *byte
	Password     *byte
	JWT          *byte
	Agent        *byte
	Version      *byte
	LongToken    bool
	ValidateOnly bool
	Ping         bool
	RequestID    int32
}

// QueryRequest mirrors QueryRequestWrapper.
type QueryRequest struct {
	CollectionName *byte
	Query          *byte
	Projection     *byte
	OrderBy        *byte
	QueryAs        *byte
	Explain        bool
	Skip           int32
	Top            int32
	RequestID      int32
}

// AggregateRequest mirrors AggregateRequestWrapper.
type AggregateRequest struct {
	CollectionName *byte
	Aggregates     *byte
	QueryAs        *byte
	Hint           *byte
	Explain        bool
	RequestID      int32
}

// CountRequest mirrors CountRequestWrapper.
type CountRequest struct {
	CollectionName *byte
	Query          *byte
	QueryAs        *byte
	Explain        bool
	RequestID      int32
}

// DistinctRequest mirrors DistinctRequestWrapper.
type DistinctRequest struct {
	CollectionName *byte
	Field          *byte
	Query          *byte
	QueryAs        *byte
	Explain        bool
	RequestID      int32
}

// InsertOneRequest mirrors InsertOneRequestWrapper and UpdateOneRequestWrapper.
type InsertOneRequest struct {
	CollectionName *byte
	Item           *byte
	W              int32
	J              bool
	RequestID      int32
}

// InsertManyRequest mirrors InsertManyRequestWrapper.
type InsertManyRequest struct {
	CollectionName *byte
	Items          *byte
	W              int32
	J              bool
	SkipResults    bool
	RequestID      int32
}

// InsertOrUpdateOneRequest mirrors InsertOrUpdateOneRequestWrapper.
type InsertOrUpdateOneRequest struct {
	CollectionName *byte
	Uniqueness     *byte
	Item           *byte
	W              int32
	J              bool
	RequestID      int32
}

// DeleteOneRequest mirrors DeleteOneRequestWrapper.
type DeleteOneRequest struct {
	CollectionName *byte
	ID             *byte
	Recursive      bool
	RequestID      int32
}

// DeleteManyRequest mirrors DeleteManyRequestWrapper. IDs has no length field
// in the ABI and is NULL-terminated.
type DeleteManyRequest struct {
	CollectionName *byte
	Query          *byte
	Recursive      bool
	IDs            **byte
	RequestID      int32
}

// DownloadRequest mirrors DownloadRequestWrapper.
type DownloadRequest struct {
	CollectionName *byte
	ID             *byte
	Folder         *byte
	Filename       *byte
	RequestID      int32
}

// UploadRequest mirrors UploadRequestWrapper.
type UploadRequest struct {
	FilePath       *byte
	Filename       *byte
	MimeType       *byte
	Metadata       *byte
	CollectionName *byte
	RequestID      int32
}

// Collation mirrors ColCollationWrapper.
type Collation struct {
	Locale          *byte
	CaseLevel       bool
	CaseFirst       *byte
	Strength        int32
	NumericOrdering bool
	Alternate       *byte
	MaxVariable     *byte
	Backwards       bool
}

// Timeseries mirrors ColTimeseriesWrapper.
type Timeseries struct {
	TimeField   *byte
	MetaField   *byte
	Granularity *byte
}

// CreateCollectionRequest mirrors CreateCollectionRequestWrapper.
type CreateCollectionRequest struct {
	CollectionName               *byte
	Collation                    *Collation
	Timeseries                   *Timeseries
	ExpireAfterSeconds           int32
	ChangeStreamPreAndPostImages bool
	Capped                       bool
	Max                          int32
	Size                         int32
	RequestID                    int32
}

// CreateIndexRequest mirrors CreateIndexRequestWrapper.
type CreateIndexRequest struct {
	CollectionName *byte
	Index          *byte
	Options        *byte
	Name           *byte
	RequestID      int32
}

// WatchRequest mirrors WatchRequestWrapper.
type WatchRequest struct {
	CollectionName *byte
	Paths          *byte
	RequestID      int32
}

// RegisterQueueRequest mirrors RegisterQueueRequestWrapper.
type RegisterQueueRequest struct {
	QueueName *byte
	RequestID int32
}

// RegisterExchangeRequest mirrors RegisterExchangeRequestWrapper.
type RegisterExchangeRequest struct {
	ExchangeName *byte
	Algorithm    *byte
	RoutingKey   *byte
	AddQueue     bool
	RequestID    int32
}

// QueueMessageRequest mirrors QueueMessageRequestWrapper, also used by rpc.
type QueueMessageRequest struct {
	QueueName     *byte
	CorrelationID *byte
	ReplyTo       *byte
	RoutingKey    *byte
	ExchangeName  *byte
	Data          *byte
	StripToken    bool
	Expiration    int32
	RequestID     int32
}

// CustomCommandRequest mirrors CustomCommandRequestWrapper.
type CustomCommandRequest struct {
	Command   *byte
	ID        *byte
	Name      *byte
	Data      *byte
	RequestID int32
}

// PushWorkitemRequest mirrors PushWorkitemRequestWrapper.
type PushWorkitemRequest struct {
	Wiq          *byte
	WiqID        *byte
	Name         *byte
	Payload      *byte
	NextRun      uint64
	SuccessWiqID *byte
	FailedWiqID  *byte
	SuccessWiq   *byte
	FailedWiq    *byte
	Priority     int32
	Files        **WorkitemFile
	FilesLen     int32
	RequestID    int32
}

// PopWorkitemRequest mirrors PopWorkitemRequestWrapper.
type PopWorkitemRequest struct {
	Wiq       *byte
	WiqID     *byte
	RequestID int32
}

// UpdateWorkitemRequest mirrors UpdateWorkitemRequestWrapper.
type UpdateWorkitemRequest struct {
	Workitem         *Workitem
	IgnoreMaxRetries bool
	Files            **WorkitemFile
	FilesLen         int32
	RequestID        int32
}

// DeleteWorkitemRequest mirrors DeleteWorkitemRequestWrapper.
type DeleteWorkitemRequest struct {
	ID        *byte
	RequestID int32
}

// InvokeOpenRPARequest mirrors InvokeOpenRPARequestWrapper.
type InvokeOpenRPARequest struct {
	RobotID    *byte
	WorkflowID *byte
	Payload    *byte
	RPC        bool
	RequestID  int32
}
