/*
 * Copyright 2020 Guardtime, Inc.
 *
 * This file is part of the Guardtime client SDK.
 *
 * Licensed under the Apache License, Version 2.0 (the "License").
 * You may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES, CONDITIONS, OR OTHER LICENSES OF ANY KIND, either
 * express or implied. See the License for the specific language governing
 * permissions and limitations under the License.
 * "Guardtime" and "KSI" are trademarks or registered trademarks of
 * Guardtime, Inc., and no license to trademarks is granted; Guardtime
 * reserves and retains all trademark rights.
 */

package engine

import (
	"fmt"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/tag"
)

// Config is the session configuration. It is copied at session construction and can not be changed afterwards.
type Config struct {
	// KeyInterval is the TESLA key disclosure interval (tag lifetime) in seconds.
	KeyInterval int64
	// PartialMACK enables the extraction of tags before the subframe is complete.
	PartialMACK bool
	// CrossSatellite enables the reuse of keys verified on other satellites (COP-IOD).
	CrossSatellite bool
	// KeyRegen enables the derivation of lost keys from a newer verified key.
	KeyRegen bool
	// ReedSolomon enables the recovery of missing DSM blocks.
	ReedSolomon bool
	// DualFrequency enables the E5b-I pipeline.
	DualFrequency bool
	// PendingExpiry is the pending tag window in seconds.
	PendingExpiry int64
	// MinFields is the field set each satellite needs for a fix.
	MinFields auth.Field
	// MinSatellites is the number of satellites needed for a fix.
	MinSatellites int
	// MaxChainSteps limits the one-way function applications per key verification. Zero means no limit.
	MaxChainSteps uint32
	// CacheSize is the size of the cross satellite key cache.
	CacheSize int
	// ADKD lists the tag classes that are verified. Tags of other classes are ignored.
	ADKD []uint8
}

// DefaultConfig returns the nominal configuration.
func DefaultConfig() Config {
	return Config{
		KeyInterval:    gst.SubframeSeconds,
		PartialMACK:    false,
		CrossSatellite: true,
		KeyRegen:       true,
		ReedSolomon:    true,
		DualFrequency:  false,
		PendingExpiry:  tag.DefaultExpiry,
		MinFields:      auth.FixFields,
		MinSatellites:  4,
		MaxChainSteps:  0,
		CacheSize:      256,
		ADKD:           []uint8{auth.ADKDEphemeris, auth.ADKDTiming, auth.ADKDSlowMAC},
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.KeyInterval <= 0 || c.KeyInterval%gst.SubframeSeconds != 0 {
		return errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Key interval must be a positive multiple of %d s.", gst.SubframeSeconds))
	}
	if c.PendingExpiry <= 0 {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid pending tag window.")
	}
	if c.MinFields == auth.NoFields {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Empty fix field set.")
	}
	if c.MinSatellites < 1 {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid number of fix satellites.")
	}
	if c.CrossSatellite && c.CacheSize <= 0 {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid key cache size.")
	}
	for _, a := range c.ADKD {
		if auth.FieldsOf(a) == auth.NoFields {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage(fmt.Sprintf("Unsupported ADKD: %d.", a))
		}
	}
	return nil
}
