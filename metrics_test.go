// Copyright 2025 The micro-modbus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbus

import (
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	var c Counter
	c.Add(5)
	c.Add(3)
	if got := c.Value(); got != 8 {
		t.Errorf("expected 8, got %d", got)
	}
	c.Reset()
	if got := c.Value(); got != 0 {
		t.Errorf("expected 0 after reset, got %d", got)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := c.Value(); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
}

func TestLatencyHistogram(t *testing.T) {
	h := NewLatencyHistogram()
	h.Observe(500 * time.Microsecond)
	h.Observe(3 * time.Millisecond)
	h.Observe(120 * time.Millisecond)

	stats := h.Stats()
	if stats.Count != 3 {
		t.Errorf("count: expected 3, got %d", stats.Count)
	}
	if stats.Min != 0.5 {
		t.Errorf("min: expected 0.5ms, got %v", stats.Min)
	}
	if stats.Max != 120 {
		t.Errorf("max: expected 120ms, got %v", stats.Max)
	}
	if stats.Buckets["1ms"] != 1 {
		t.Errorf("1ms bucket: expected 1, got %d", stats.Buckets["1ms"])
	}
	if stats.Buckets["5ms"] != 1 {
		t.Errorf("5ms bucket: expected 1, got %d", stats.Buckets["5ms"])
	}
	if stats.Buckets["250ms"] != 1 {
		t.Errorf("250ms bucket: expected 1, got %d", stats.Buckets["250ms"])
	}

	h.Reset()
	if stats := h.Stats(); stats.Count != 0 {
		t.Errorf("count after reset: expected 0, got %d", stats.Count)
	}
}

func TestServerMetrics_Reset(t *testing.T) {
	m := NewServerMetrics()
	m.RequestsTotal.Add(3)
	m.TotalConns.Add(2)
	m.Latency.Observe(time.Millisecond)

	m.Reset()
	if got := m.RequestsTotal.Value(); got != 0 {
		t.Errorf("RequestsTotal: expected 0 after reset, got %d", got)
	}
	if got := m.TotalConns.Value(); got != 0 {
		t.Errorf("TotalConns: expected 0 after reset, got %d", got)
	}
	if stats := m.Latency.Stats(); stats.Count != 0 {
		t.Errorf("latency count: expected 0 after reset, got %d", stats.Count)
	}
}
