package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/riddopic/distcloud/internal/driver"
)

// runVimStrategy drives the VIM strategy sub-loop shared by patch,
// upgrade, kubernetes, and firmware step executors (§4.3): create,
// poll until ready-to-apply or build-failed, apply, poll until applied
// or apply-failed, delete.
func runVimStrategy(ctx context.Context, deps *Deps, region string, opts map[string]string) error {
	if err := deps.Vim.CreateStrategy(ctx, region, opts); err != nil {
		return fmt.Errorf("vim create strategy: %w", err)
	}

	if err := pollVim(ctx, deps, region, driver.VimReadyToApply, driver.VimBuildFailed); err != nil {
		return fmt.Errorf("vim build: %w", err)
	}

	if err := deps.Vim.ApplyStrategy(ctx, region); err != nil {
		return fmt.Errorf("vim apply strategy: %w", err)
	}

	if err := pollVim(ctx, deps, region, driver.VimApplied, driver.VimApplyFailed); err != nil {
		return fmt.Errorf("vim apply: %w", err)
	}

	return deps.Vim.DeleteStrategy(ctx, region)
}

func pollVim(ctx context.Context, deps *Deps, region string, want, failState driver.VimStrategyState) error {
	interval := deps.Cfg.VimPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxAttempts := deps.Cfg.VimPollMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		state, err := deps.Vim.QueryStrategy(ctx, region)
		if err != nil {
			return err
		}
		if state == failState {
			return fmt.Errorf("vim strategy reached %s", failState)
		}
		if state == want {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("vim strategy stuck waiting for %s", want)
}
