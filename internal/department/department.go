// Package department models the role-specific counters a team attaches to a
// metric record. Detail is a closed set of variants selected by Department.
package department

import (
	"encoding/json"
	"fmt"
	"strings"

	"funnelmetrics/internal/distribution"
	"funnelmetrics/internal/metrics"
)

// Department discriminates the Detail variants.
type Department string

const (
	None            Department = ""
	SDR             Department = "sdr"
	Closer          Department = "closer"
	SocialSeller    Department = "social_seller"
	CustomerSuccess Department = "customer_success"
)

// All lists every department with a detail variant.
var All = []Department{SDR, Closer, SocialSeller, CustomerSuccess}

// Parse accepts a department name. An empty string parses to None.
func Parse(s string) (Department, error) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case None, SDR, Closer, SocialSeller, CustomerSuccess:
		return d, nil
	}
	return None, fmt.Errorf("unknown department %q", s)
}

// Detail is one department's counters for a record.
type Detail interface {
	Department() Department
	fields() []field
}

type field struct {
	name  string
	value *int64
}

// SDRDetail tracks outbound prospecting.
type SDRDetail struct {
	Calls          int64 `json:"calls"`
	Connections    int64 `json:"connections"`
	MeetingsBooked int64 `json:"meetings_booked"`
	MeetingsHeld   int64 `json:"meetings_held"`
}

func (SDRDetail) Department() Department { return SDR }

func (d *SDRDetail) fields() []field {
	return []field{
		{"calls", &d.Calls},
		{"connections", &d.Connections},
		{"meetings_booked", &d.MeetingsBooked},
		{"meetings_held", &d.MeetingsHeld},
	}
}

// CloserDetail tracks sales calls through to closed deals.
type CloserDetail struct {
	CallsTaken  int64 `json:"calls_taken"`
	NoShows     int64 `json:"no_shows"`
	Proposals   int64 `json:"proposals"`
	DealsClosed int64 `json:"deals_closed"`
}

func (CloserDetail) Department() Department { return Closer }

func (d *CloserDetail) fields() []field {
	return []field{
		{"calls_taken", &d.CallsTaken},
		{"no_shows", &d.NoShows},
		{"proposals", &d.Proposals},
		{"deals_closed", &d.DealsClosed},
	}
}

// SocialSellerDetail tracks conversations started on social channels.
type SocialSellerDetail struct {
	Conversations int64 `json:"conversations"`
	FollowUps     int64 `json:"follow_ups"`
	Appointments  int64 `json:"appointments"`
	Conversions   int64 `json:"conversions"`
}

func (SocialSellerDetail) Department() Department { return SocialSeller }

func (d *SocialSellerDetail) fields() []field {
	return []field{
		{"conversations", &d.Conversations},
		{"follow_ups", &d.FollowUps},
		{"appointments", &d.Appointments},
		{"conversions", &d.Conversions},
	}
}

// CustomerSuccessDetail tracks post-sale account activity.
type CustomerSuccessDetail struct {
	Onboardings int64 `json:"onboardings"`
	Renewals    int64 `json:"renewals"`
	Upsells     int64 `json:"upsells"`
	Churned     int64 `json:"churned"`
}

func (CustomerSuccessDetail) Department() Department { return CustomerSuccess }

func (d *CustomerSuccessDetail) fields() []field {
	return []field{
		{"onboardings", &d.Onboardings},
		{"renewals", &d.Renewals},
		{"upsells", &d.Upsells},
		{"churned", &d.Churned},
	}
}

// Validate rejects negative counters in any variant.
func Validate(d Detail) error {
	if d == nil {
		return nil
	}
	for _, f := range d.fields() {
		if *f.value < 0 {
			return &metrics.CounterError{Field: string(d.Department()) + "." + f.name, Value: fmt.Sprint(*f.value)}
		}
	}
	return nil
}

// Split distributes every counter of d across n days.
func Split(d Detail, n int) ([]Detail, error) {
	switch v := d.(type) {
	case *SDRDetail:
		return splitInto(*v, n)
	case *CloserDetail:
		return splitInto(*v, n)
	case *SocialSellerDetail:
		return splitInto(*v, n)
	case *CustomerSuccessDetail:
		return splitInto(*v, n)
	case nil:
		return make([]Detail, n), nil
	}
	return nil, fmt.Errorf("unsupported department detail %T", d)
}

type variant[T any] interface {
	*T
	Detail
}

func splitInto[T any, P variant[T]](v T, n int) ([]Detail, error) {
	if err := Validate(P(&v)); err != nil {
		return nil, err
	}

	days := make([]T, n)
	for i, f := range P(&v).fields() {
		values, err := distribution.SplitInt(*f.value, n)
		if err != nil {
			return nil, err
		}
		for day := range days {
			*P(&days[day]).fields()[i].value = values[day]
		}
	}

	out := make([]Detail, n)
	for i := range days {
		out[i] = P(&days[i])
	}
	return out, nil
}

// New returns an empty detail for dept, or nil for None.
func New(dept Department) (Detail, error) {
	switch dept {
	case SDR:
		return &SDRDetail{}, nil
	case Closer:
		return &CloserDetail{}, nil
	case SocialSeller:
		return &SocialSellerDetail{}, nil
	case CustomerSuccess:
		return &CustomerSuccessDetail{}, nil
	case None:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown department %q", dept)
}

// Decode unmarshals a detail payload for the given department.
func Decode(dept Department, raw []byte) (Detail, error) {
	d, err := New(dept)
	if err != nil || d == nil {
		return d, err
	}
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", dept, err)
	}
	return d, nil
}

// Encode marshals d and returns its discriminant.
func Encode(d Detail) (Department, []byte, error) {
	if d == nil {
		return None, nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return None, nil, fmt.Errorf("encode %s detail: %w", d.Department(), err)
	}
	return d.Department(), raw, nil
}

// Payload is the wire form of a detail: a discriminant plus its counters.
type Payload struct {
	Department Department      `json:"department"`
	Detail     json.RawMessage `json:"detail"`
}

// Decode returns the payload as its variant.
func (p Payload) Decode() (Detail, error) {
	return Decode(p.Department, p.Detail)
}
