package interval

import (
	"fmt"
	"strconv"
	"strings"
)

// Region is a parsed region string.
type Region struct {
	RefID string
	// Start and End are 0-based, half-open.  They are meaningful only when
	// Bounded is true.
	Start, End int
	// Bounded is false for a bare "chr" region, which denotes the whole
	// sequence.
	Bounded bool
}

// ParseRegion parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  Thousands
// separators ("1,000") are allowed in positions.
func ParseRegion(region string) (result Region, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.RefID = region
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty contig ID")
		return
	}
	result.RefID = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int
		if pos1, err = strconv.Atoi(rangeStr); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", rangeStr)
			return
		}
		result.Start = pos1 - 1
		result.End = pos1
		result.Bounded = true
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", start1Str)
		return
	}
	var end int
	if end, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end < start1 {
		err = fmt.Errorf("interval.ParseRegion: invalid range string %v", rangeStr)
		return
	}
	result.Start = start1 - 1
	result.End = end
	result.Bounded = true
	return
}

// String formats r in the 1-based form accepted by ParseRegion.
func (r Region) String() string {
	if !r.Bounded {
		return r.RefID
	}
	return fmt.Sprintf("%s:%d-%d", r.RefID, r.Start+1, r.End)
}
