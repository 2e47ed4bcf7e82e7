// Package pool owns the device population: the port-to-device-type map,
// lazy creation on first request, capacity and idle eviction, and the
// background jobs that keep the population tiered by activity.
package pool

import (
	"errors"
	"fmt"
	"sort"
)

// maxAssignedPorts caps the total mapped port count. The limit exists to
// catch configs that would exhaust file descriptors long before the OS
// says so.
const maxAssignedPorts = 100000

var (
	ErrInvalidRange      = errors.New("pool: invalid port range")
	ErrOverlappingRanges = errors.New("pool: overlapping port ranges")
	ErrTooManyPorts      = errors.New("pool: too many assigned ports")
	ErrNoDeviceTypes     = errors.New("pool: no device types assigned")
	ErrUnknownPortRange  = errors.New("pool: port not in any assigned range")
)

// Range is an inclusive port span.
type Range struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

type typedRange struct {
	Range
	deviceType string
}

// Assignments resolves which device type owns a port. Immutable once
// built, so lookups need no locking.
type Assignments struct {
	ranges []typedRange // sorted by Start, non-overlapping
	byType map[string][]Range
	total  int
}

// NewAssignments validates and indexes a port map.
func NewAssignments(byType map[string][]Range) (*Assignments, error) {
	if len(byType) == 0 {
		return nil, ErrNoDeviceTypes
	}

	var all []typedRange
	kept := make(map[string][]Range, len(byType))
	total := 0
	for deviceType, ranges := range byType {
		if deviceType == "" {
			return nil, fmt.Errorf("%w: empty device type", ErrInvalidRange)
		}
		if len(ranges) == 0 {
			return nil, fmt.Errorf("%w: device type %q has no ranges", ErrInvalidRange, deviceType)
		}
		for _, r := range ranges {
			if r.Start < 1 || r.End > 65535 || r.End < r.Start {
				return nil, fmt.Errorf("%w: %s %d-%d", ErrInvalidRange, deviceType, r.Start, r.End)
			}
			total += r.End - r.Start + 1
			all = append(all, typedRange{Range: r, deviceType: deviceType})
		}
		kept[deviceType] = append([]Range(nil), ranges...)
	}
	if total > maxAssignedPorts {
		return nil, fmt.Errorf("%w: %d assigned, limit %d", ErrTooManyPorts, total, maxAssignedPorts)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	for i := 1; i < len(all); i++ {
		if all[i].Start <= all[i-1].End {
			return nil, fmt.Errorf("%w: %s %d-%d and %s %d-%d",
				ErrOverlappingRanges,
				all[i-1].deviceType, all[i-1].Start, all[i-1].End,
				all[i].deviceType, all[i].Start, all[i].End)
		}
	}

	return &Assignments{ranges: all, byType: kept, total: total}, nil
}

// DefaultAssignments is the stock cable-plant port map. 39900-39949 is
// deliberately unassigned; requests there answer nothing, which makes a
// handy dead zone for poller testing.
func DefaultAssignments() *Assignments {
	a, err := NewAssignments(map[string][]Range{
		"cable_modem": {{Start: 30000, End: 37999}},
		"mta":         {{Start: 38000, End: 38499}},
		"server":      {{Start: 38500, End: 38999}},
		"router":      {{Start: 39000, End: 39499}},
		"switch":      {{Start: 39500, End: 39899}},
		"cmts":        {{Start: 39950, End: 39999}},
	})
	if err != nil {
		panic(err)
	}
	return a
}

// DeviceTypeFor resolves the device type that owns port.
func (a *Assignments) DeviceTypeFor(port int) (string, error) {
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].End >= port })
	if i < len(a.ranges) && a.ranges[i].Start <= port {
		return a.ranges[i].deviceType, nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownPortRange, port)
}

// DeviceTypes lists the assigned types, sorted.
func (a *Assignments) DeviceTypes() []string {
	out := make([]string, 0, len(a.byType))
	for t := range a.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RangesFor returns the spans assigned to one device type. Callers get
// their own copy.
func (a *Assignments) RangesFor(deviceType string) []Range {
	rs, ok := a.byType[deviceType]
	if !ok {
		return nil
	}
	return append([]Range(nil), rs...)
}

// TotalPorts is the number of mapped ports across all types.
func (a *Assignments) TotalPorts() int { return a.total }
