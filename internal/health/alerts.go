/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package health

import (
	"sync"
	"time"
)

// Alert records one threshold breach episode.
type Alert struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	Score        int       `json:"score"`
	Errors       int64     `json:"errors"`
	RaisedAt     time.Time `json:"raisedAt"`
	Acknowledged bool      `json:"acknowledged"`
}

// alertRing keeps the most recent N alerts. Old entries fall off the
// front; acknowledgement mutates in place.
type alertRing struct {
	mu     sync.Mutex
	max    int
	alerts []Alert
}

func newAlertRing(max int) *alertRing {
	return &alertRing{max: max}
}

func (r *alertRing) add(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	if len(r.alerts) > r.max {
		r.alerts = r.alerts[len(r.alerts)-r.max:]
	}
}

func (r *alertRing) list() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func (r *alertRing) acknowledge(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			r.alerts[i].Acknowledged = true
			return true
		}
	}
	return false
}
