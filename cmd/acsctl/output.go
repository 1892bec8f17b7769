package main

import (
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/protobuf/types/known/structpb"
)

// printResult writes a Submit response as indented JSON to stdout as it
// came; bare scalar results (ids, booleans) keep the {"value": ...}
// envelope encodeResult puts around them.
func printResult(resp *structpb.Struct) error {
	m := resp.AsMap()
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
