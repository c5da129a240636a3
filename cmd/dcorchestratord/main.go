// Command dcorchestratord runs the distributed cloud control plane:
// the subcloud audit engine, the resource sync engine, and one strategy
// orchestrator Engine per strategy kind, all sharing a single in-process
// store.Gateway and rpc.Hub.
package main

import (
	"os"

	"github.com/riddopic/distcloud/cmd/dcorchestratord/serve"
)

func main() {
	if err := serve.Command().Execute(); err != nil {
		os.Exit(1)
	}
}
