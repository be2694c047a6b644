package model

import (
	"slices"
	"strconv"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// RT4D is the Radtel RT-4D channel import layout.
var RT4D = register(Model{
	Name: "rt4d",
	Columns: []string{
		"CH", "RX Freq", "TX Freq", "CH Mode", "RX/TX Limit", "TX Power", "TOT",
		"Scan Add", "CH Alias", "ID Type", "CH ID", "Dual Slot", "Time Slot",
		"Color Code", "Promiscuous", "TX Politely", "TX Contacts", "RX TG List",
		"DMR Encryption", "RX CTC DCS", "TX CTC DCS", "CTC DCS Type", "Mute Code",
		"Busy Lock", "Demodulation", "Tail Tone", "Scrambler", "Bandwidth", "Offset",
	},
	Delimiter: ",",
	Extension: "csv",
	row:       rt4dRow,
})

func rt4dRow(ch int, r domain.NormalizedRecord, alias *Template) []string {
	timeslots := r.Timeslot
	if timeslots == nil {
		timeslots = []int{1}
	}
	dualSlot := "Off"
	if slices.Contains(timeslots, 2) {
		dualSlot = "On"
	}
	slot := 1
	if len(timeslots) > 0 && timeslots[0] != 0 {
		slot = timeslots[0]
	}

	chID := ""
	if r.Info.DMRID != nil && *r.Info.DMRID != 0 {
		chID = number(*r.Info.DMRID)
	}
	color := "1"
	if r.Color != nil && *r.Color != 0 {
		color = number(*r.Color)
	}
	offset := value(r.Offset)
	if offset == 0 {
		offset = value(r.TX) - value(r.RX)
	}

	return []string{
		strconv.Itoa(ch),
		freq(r.RX),
		freq(r.TX),
		"Digital",
		"RX+TX",
		"High",
		"60",
		"Add",
		alias.Render(AliasValues(r)),
		"Channel ID",
		chID,
		dualSlot,
		strconv.Itoa(slot),
		color,
		"Off",
		"Allow TX",
		"All Call",
		"None",
		"None",
		"None",
		"None",
		"Normal",
		"0",
		"Allow TX",
		"FM",
		"Off",
		"Off",
		"Wide",
		strconv.FormatFloat(offset, 'f', 5, 64),
	}
}
