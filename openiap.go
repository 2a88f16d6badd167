// Package openiap provides a Go SDK for the OpenIAP platform.
//
// The SDK is a thin binding over the OpenIAP native core
// (libopeniap-<os>-<arch>), loaded at runtime without cgo. Every operation
// is available as a blocking call and as an asynchronous call returning a
// Future; change streams, queues and client lifecycle events are delivered
// to Go callbacks by per-subscription pumps.
//
// Example:
//
//	import "github.com/openiap/openiap-go"
//
//	client, err := openiap.Connect("grpc://localhost:50051")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	docs, err := client.Query(openiap.QueryRequest{
//	    Collection: "entities",
//	    Query:      `{"_type":"test"}`,
//	})
//
// Example (async):
//
//	f := client.CountAsync(openiap.CountRequest{Collection: "entities"})
//	n, err := f.Await(ctx)
//
// Example (work items):
//
//	wi, err := client.PopWorkitem(openiap.PopWorkitemRequest{Wiq: "q2", DownloadFolder: "."})
//	if err == nil && wi != nil {
//	    wi.State = openiap.WorkitemSuccessful
//	    _, err = client.UpdateWorkitem(openiap.UpdateWorkitemRequest{Workitem: wi})
//	}
package openiap

import "github.com/openiap/openiap-go/internal/bridge"

// Version is the current SDK version.
const Version = "0.0.39"

// Future is the pending result of an asynchronous operation.
type Future[T any] = bridge.Future[T]
