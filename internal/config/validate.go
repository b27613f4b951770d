// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package config

import (
	"fmt"

	"github.com/tomtom215/accessguard/internal/validation"
)

// Validate checks struct tags then cross-field rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if _, err := c.Detection.Location(); err != nil {
		return err
	}
	if c.Batch.Enabled && c.Batch.Window < c.Batch.Interval {
		return fmt.Errorf("batch.window (%s) must cover batch.interval (%s)", c.Batch.Window, c.Batch.Interval)
	}
	if c.Redis.Enabled && c.Alerting.EscalationCooldown == 0 {
		return fmt.Errorf("redis escalation gate requires alerting.escalation_cooldown > 0")
	}
	return nil
}
