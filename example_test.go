package openiap_test

import (
	"errors"
	"fmt"

	"github.com/openiap/openiap-go"
	"github.com/openiap/openiap-go/internal/native/nativetest"
)

func exampleConfig() *openiap.Config {
	cfg := openiap.DefaultConfig()
	cfg.Library = nativetest.New()
	return cfg
}

func Example_connectionError() {
	_, err := openiap.ConnectWithConfig("grpc://unreachable.invalid:50051", exampleConfig())
	var cerr *openiap.ConnectionError
	if errors.As(err, &cerr) {
		fmt.Println("connection refused:", cerr.URL)
	}
	// Output: connection refused: grpc://unreachable.invalid:50051
}

func ExampleClient_Count() {
	client, err := openiap.ConnectWithConfig("grpc://localhost:50051", exampleConfig())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer client.Close()

	_, _ = client.InsertMany(openiap.InsertManyRequest{
		Collection: "entities",
		Items:      `[{"kind":"robot"},{"kind":"robot"},{"kind":"human"}]`,
	})
	n, _ := client.Count(openiap.CountRequest{Collection: "entities", Query: `{"kind":"robot"}`})
	fmt.Println(n)
	// Output: 2
}

func ExampleClient_PopWorkitem() {
	client, err := openiap.ConnectWithConfig("grpc://localhost:50051", exampleConfig())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer client.Close()

	_, _ = client.PushWorkitem(openiap.PushWorkitemRequest{Wiq: "invoices", Name: "invoice 1"})
	wi, _ := client.PopWorkitem(openiap.PopWorkitemRequest{Wiq: "invoices"})
	fmt.Println(wi.Name, wi.State)

	wi.State = openiap.WorkitemSuccessful
	wi, _ = client.UpdateWorkitem(openiap.UpdateWorkitemRequest{Workitem: wi})
	fmt.Println(wi.Name, wi.State)
	// Output:
	// invoice 1 processing
	// invoice 1 successful
}
