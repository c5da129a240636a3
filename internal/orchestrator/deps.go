package orchestrator

import (
	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/internal/store"
)

// Deps is the set of collaborators a StepExecutor drives. One Deps is
// shared by every step worker in a kind's Engine.
type Deps struct {
	Gateway  store.Gateway
	Sysinv   driver.SysinvClient
	Patching driver.PatchingClient
	Vim      driver.VimClient
	Firmware driver.FirmwareClient
	RootCA   driver.KubeRootCAClient
	Cfg      appconfig.OrchestratorConfig

	// Hub, if set, receives step and strategy transition events. Nil is
	// a valid zero value; no events are published.
	Hub *rpc.Hub
}
