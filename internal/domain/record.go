package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RawRepeaterRecord is one element of the upstream "rptrs" array.
// Fields not listed here are kept in Extra.
type RawRepeaterRecord struct {
	ID          Scalar
	Callsign    Scalar
	City        Scalar
	State       Scalar
	Country     Scalar
	Status      Scalar
	Frequency   Scalar
	Offset      Scalar
	ColorCode   Scalar
	TSLinked    Scalar
	Locator     Scalar
	Trustee     Scalar
	Map         Scalar
	MapInfo     Scalar
	IPSCNetwork Scalar
	Assigned    Scalar

	Extra map[string]json.RawMessage
}

func (r *RawRepeaterRecord) fields() map[string]*Scalar {
	return map[string]*Scalar{
		"id":           &r.ID,
		"callsign":     &r.Callsign,
		"city":         &r.City,
		"state":        &r.State,
		"country":      &r.Country,
		"status":       &r.Status,
		"frequency":    &r.Frequency,
		"offset":       &r.Offset,
		"color_code":   &r.ColorCode,
		"ts_linked":    &r.TSLinked,
		"locator":      &r.Locator,
		"trustee":      &r.Trustee,
		"map":          &r.Map,
		"map_info":     &r.MapInfo,
		"ipsc_network": &r.IPSCNetwork,
		"assigned":     &r.Assigned,
	}
}

// UnmarshalJSON decodes known keys as scalars and keeps the rest verbatim.
func (r *RawRepeaterRecord) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode repeater record: %w", err)
	}
	*r = RawRepeaterRecord{}
	known := r.fields()
	for k, v := range obj {
		if dst, ok := known[k]; ok {
			if err := dst.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// MarshalJSON writes the record back in upstream shape.
func (r RawRepeaterRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+16)
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range r.fields() {
		if v.Set {
			out[k] = *v
		}
	}
	return json.Marshal(out)
}

// Dataset is the upstream document.
type Dataset struct {
	Rptrs []RawRepeaterRecord `json:"rptrs"`

	// Malformed holds one ErrMalformedRecord per element that could not be
	// decoded. Those elements are not in Rptrs.
	Malformed []error `json:"-"`
}

// Total is the number of elements in the upstream array.
func (d Dataset) Total() int {
	return len(d.Rptrs) + len(d.Malformed)
}

// ErrInvalidDataset is returned when the document is not an object with an
// "rptrs" array.
var ErrInvalidDataset = errors.New(`invalid dataset: expected object with "rptrs" array`)

// ErrMalformedRecord marks a single array element that could not be decoded.
var ErrMalformedRecord = errors.New("malformed repeater record")

// ParseDataset validates the top-level shape and decodes every record.
// Only the shape is fatal: elements that fail to decode are collected in
// Malformed and the rest are kept.
func ParseDataset(data []byte) (Dataset, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	raw, ok := top["rptrs"]
	if !ok || !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return Dataset{}, ErrInvalidDataset
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	ds := Dataset{Rptrs: make([]RawRepeaterRecord, 0, len(elems))}
	for i, elem := range elems {
		var rec RawRepeaterRecord
		if err := json.Unmarshal(elem, &rec); err != nil {
			ds.Malformed = append(ds.Malformed, fmt.Errorf("%w: element %d: %w", ErrMalformedRecord, i, err))
			continue
		}
		ds.Rptrs = append(ds.Rptrs, rec)
	}
	return ds, nil
}

// Location is the identity of a normalized record: state code, city and a
// duplicate index that is 0 for the first record of a city.
type Location struct {
	State string
	City  string
	Index int
}

// Key is the duplicate-counter key, "{state}:{city}".
func (l Location) Key() string {
	return l.State + ":" + l.City
}

// MarshalJSON encodes ["SP","Campinas"] or ["SP","Campinas",1].
func (l Location) MarshalJSON() ([]byte, error) {
	tuple := []any{strings.ToUpper(l.State), l.City}
	if l.Index > 0 {
		tuple = append(tuple, l.Index)
	}
	return json.Marshal(tuple)
}

// UnmarshalJSON decodes the tuple form.
func (l *Location) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	if len(tuple) < 2 || len(tuple) > 3 {
		return fmt.Errorf("decode location: expected 2 or 3 elements, got %d", len(tuple))
	}
	*l = Location{}
	if err := json.Unmarshal(tuple[0], &l.State); err != nil {
		return fmt.Errorf("decode location state: %w", err)
	}
	l.State = strings.ToLower(l.State)
	if err := json.Unmarshal(tuple[1], &l.City); err != nil {
		return fmt.Errorf("decode location city: %w", err)
	}
	if len(tuple) == 3 {
		if err := json.Unmarshal(tuple[2], &l.Index); err != nil {
			return fmt.Errorf("decode location index: %w", err)
		}
	}
	return nil
}

// Info holds operator metadata. Values are kept as received.
type Info struct {
	DMRID    *float64
	Callsign Scalar
	IPSC     Scalar
	Assigned Scalar
	Locator  Scalar
	Trustee  Scalar
	Map      Scalar
	MapInfo  Scalar
	Tone     Scalar
	Altitude Scalar
}

func (i *Info) fields() map[string]*Scalar {
	return map[string]*Scalar{
		"callsign": &i.Callsign,
		"ipsc":     &i.IPSC,
		"assigned": &i.Assigned,
		"locator":  &i.Locator,
		"trustee":  &i.Trustee,
		"map":      &i.Map,
		"map_info": &i.MapInfo,
		"tone":     &i.Tone,
		"altitude": &i.Altitude,
	}
}

// MarshalJSON emits only the fields that were present upstream.
func (i Info) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if i.DMRID != nil {
		out["dmr_id"] = *i.DMRID
	}
	for k, v := range i.fields() {
		if v.Set {
			out[k] = *v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the object written by MarshalJSON.
func (i *Info) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode info: %w", err)
	}
	*i = Info{}
	known := i.fields()
	for k, v := range obj {
		if k == "dmr_id" {
			var id Scalar
			if err := id.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("info dmr_id: %w", err)
			}
			if id.Set {
				f := id.Float()
				i.DMRID = &f
			}
			continue
		}
		if dst, ok := known[k]; ok {
			if err := dst.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("info %s: %w", k, err)
			}
		}
	}
	return nil
}

// NormalizedRecord is a repeater after normalization. Pointer fields are nil
// when the upstream field was absent; Timeslot is nil when ts_linked was.
type NormalizedRecord struct {
	RX       *float64
	TX       *float64
	Offset   *float64
	Color    *float64
	Timeslot []int
	Info     Info
	Location Location

	// Extra carries unrecognized upstream fields, string values capitalized.
	Extra map[string]json.RawMessage
}

// State returns the lowercase state code.
func (r NormalizedRecord) State() string { return r.Location.State }

// City returns the resolved city name.
func (r NormalizedRecord) City() string { return r.Location.City }

// MarshalJSON writes the flat published form.
func (r NormalizedRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+7)
	for k, v := range r.Extra {
		out[k] = v
	}
	if r.RX != nil {
		out["rx"] = *r.RX
	}
	if r.TX != nil {
		out["tx"] = *r.TX
	}
	if r.Offset != nil {
		out["offset"] = *r.Offset
	}
	if r.Color != nil {
		out["color"] = *r.Color
	}
	if r.Timeslot != nil {
		out["timeslot"] = r.Timeslot
	}
	out["info"] = r.Info
	out["location"] = r.Location
	return json.Marshal(out)
}

// UnmarshalJSON reads records written by MarshalJSON, e.g. a previously
// published per-state file.
func (r *NormalizedRecord) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	*r = NormalizedRecord{}
	floats := map[string]**float64{"rx": &r.RX, "tx": &r.TX, "offset": &r.Offset, "color": &r.Color}
	for k, v := range obj {
		if dst, ok := floats[k]; ok {
			var s Scalar
			if err := s.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			if s.Set {
				f := s.Float()
				*dst = &f
			}
			continue
		}
		var err error
		switch k {
		case "timeslot":
			r.Timeslot = []int{}
			err = json.Unmarshal(v, &r.Timeslot)
		case "info":
			err = r.Info.UnmarshalJSON(v)
		case "location":
			err = r.Location.UnmarshalJSON(v)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}
	return nil
}
