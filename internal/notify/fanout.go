// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// Named pairs a notifier with the name used in errors.
type Named struct {
	Name     string
	Notifier lookalike.Notifier
}

// Fanout delivers a completion to every configured notifier. One failing
// channel does not stop the others.
type Fanout struct {
	targets []Named
}

// NewFanout returns a Fanout over the non-nil notifiers.
func NewFanout(targets ...Named) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t.Notifier != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Len returns the number of active notifiers.
func (f *Fanout) Len() int { return len(f.targets) }

// NotifyCompleted implements lookalike.Notifier.
func (f *Fanout) NotifyCompleted(ctx context.Context, c lookalike.Completion) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Notifier.NotifyCompleted(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
