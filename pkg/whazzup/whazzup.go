// Package whazzup parses the text files published by online flight
// simulation networks: the "status" descriptor that points at the data
// files, the "whazzup" snapshot of connected clients and the optional
// server list. Two wire formats are supported, the VATSIM legacy format
// and the IVAO whazzup format. Both are line based with colon separated
// client rows; they differ in the meaning of the trailing columns.
package whazzup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
)

// Format identifies the wire format of a whazzup file.
type Format int

const (
	// FormatUnknown is used when the network selection carries no format hint
	FormatUnknown Format = iota

	// FormatVATSIM is the VATSIM legacy whazzup format (version 8)
	FormatVATSIM

	// FormatIVAO is the IVAO whazzup format
	FormatIVAO
)

// String returns the configuration name of the format.
func (f Format) String() string {
	switch f {
	case FormatVATSIM:
		return "vatsim"
	case FormatIVAO:
		return "ivao"
	}
	return "unknown"
}

// ParseFormat converts a configuration value into a Format.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vatsim":
		return FormatVATSIM
	case "ivao":
		return FormatIVAO
	}
	return FormatUnknown
}

// updateTimeLayout is the timestamp layout of the UPDATE field in the
// !GENERAL section, e.g. "20180322164247". Times are UTC.
const updateTimeLayout = "20060102150405"

// Status holds the URLs and operator message extracted from a status file.
type Status struct {
	// WhazzupURL is the URL of the whazzup data file. When the status file
	// advertises a gzip URL that one is preferred and WhazzupGzipped is set.
	WhazzupURL string

	// WhazzupGzipped indicates that WhazzupURL serves gzip compressed data
	WhazzupGzipped bool

	// VoiceURL is the URL of the voice/server list file, if any
	VoiceURL string

	// MetarURL is the URL of the METAR service, if any
	MetarURL string

	// Message is an optional operator message to show to the user
	Message string
}

// ParseStatus extracts URLs and the operator message from a status file.
// Unknown keys are ignored; the format is the same for all networks.
func ParseStatus(text string) Status {
	var st Status
	var plainURL string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch key {
		case "url0":
			plainURL = value
		case "gzurl0":
			st.WhazzupURL = value
			st.WhazzupGzipped = true
		case "voice0", "url1":
			if st.VoiceURL == "" {
				st.VoiceURL = value
			}
		case "metar0":
			st.MetarURL = value
		case "msg0":
			st.Message = value
		}
	}

	// Fall back to the uncompressed URL if no gzip URL was advertised.
	if st.WhazzupURL == "" {
		st.WhazzupURL = plainURL
		st.WhazzupGzipped = false
	}
	return st
}

// General holds the !GENERAL section of a whazzup file.
type General struct {
	// Version is the whazzup format version
	Version int

	// ReloadMinutes is the reload interval advised by the network
	ReloadMinutes int

	// Update is the UTC timestamp of the snapshot
	Update time.Time

	// ConnectedClients is the client count reported by the network
	ConnectedClients int

	// ConnectedServers is the server count reported by the network
	ConnectedServers int
}

// Client is one row of the !CLIENTS section. Pilots and ATC share the
// leading columns; position fields are zero for clients without one.
type Client struct {
	// Callsign doubles as the aircraft registration for pilots
	Callsign string

	// CID is the network member id
	CID string

	// Name is the real name field
	Name string

	// ClientType is "PILOT" or "ATC"
	ClientType string

	// Frequency is the primary frequency for ATC clients
	Frequency string

	// Pos is the reported position
	Pos geo.Pos

	// Altitude in feet
	Altitude int

	// GroundSpeed in knots
	GroundSpeed int

	// Heading in degrees, when the format carries one
	Heading int

	// Transponder code, when the format carries one
	Transponder string

	// AircraftType is the filed aircraft type for pilots
	AircraftType string

	// Departure and Destination are the filed airports for pilots
	Departure   string
	Destination string
}

// Server is one row of the !SERVERS or voice server section.
type Server struct {
	Ident          string
	Hostname       string
	Location       string
	Name           string
	ClientsAllowed bool
}

// File is a fully parsed whazzup file.
type File struct {
	General General
	Clients []Client
	Servers []Server
}

// Column indexes that differ between the two formats. The leading nine
// columns (callsign through groundspeed) are shared.
const (
	vatsimAircraftCol    = 9
	vatsimDepartureCol   = 11
	vatsimDestinationCol = 13
	vatsimTransponderCol = 17
	vatsimHeadingCol     = 38

	ivaoAircraftCol    = 9
	ivaoDepartureCol   = 11
	ivaoDestinationCol = 13
	ivaoTransponderCol = 17
	ivaoHeadingCol     = 45
)

// Parse reads a whazzup file in the given format. Client rows that fail
// to parse are skipped; an error is only returned when the file has no
// usable !GENERAL section.
func Parse(text string, format Format) (File, error) {
	var f File
	section := ""
	haveGeneral := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		if strings.HasPrefix(trimmed, "!") {
			section = strings.ToUpper(strings.TrimSuffix(strings.TrimPrefix(trimmed, "!"), ":"))
			continue
		}

		switch section {
		case "GENERAL":
			if parseGeneralLine(&f.General, trimmed) {
				haveGeneral = true
			}
		case "CLIENTS":
			if c, ok := parseClientLine(trimmed, format); ok {
				f.Clients = append(f.Clients, c)
			}
		case "SERVERS":
			if s, ok := parseServerLine(trimmed); ok {
				f.Servers = append(f.Servers, s)
			}
		}
	}

	if !haveGeneral {
		return File{}, fmt.Errorf("whazzup: no !GENERAL section")
	}
	return f, nil
}

// ParseServers reads a standalone server list file. Files with section
// markers are parsed like a whazzup file; bare files are treated as one
// server row per line.
func ParseServers(text string, format Format) []Server {
	if strings.Contains(text, "!GENERAL") || strings.Contains(text, "!SERVERS") {
		f, err := Parse(text, format)
		if err == nil {
			return f.Servers
		}
	}

	var servers []Server
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "!") {
			continue
		}
		if s, ok := parseServerLine(line); ok {
			servers = append(servers, s)
		}
	}
	return servers
}

func parseGeneralLine(g *General, line string) bool {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "VERSION":
		g.Version, _ = strconv.Atoi(value)
	case "RELOAD":
		g.ReloadMinutes, _ = strconv.Atoi(value)
	case "UPDATE":
		if t, err := time.ParseInLocation(updateTimeLayout, value, time.UTC); err == nil {
			g.Update = t
		}
	case "CONNECTED CLIENTS":
		g.ConnectedClients, _ = strconv.Atoi(value)
	case "CONNECTED SERVERS":
		g.ConnectedServers, _ = strconv.Atoi(value)
	default:
		return false
	}
	return true
}

func parseClientLine(line string, format Format) (Client, bool) {
	cols := strings.Split(line, ":")
	if len(cols) < 9 {
		return Client{}, false
	}

	c := Client{
		Callsign:   strings.TrimSpace(cols[0]),
		CID:        strings.TrimSpace(cols[1]),
		Name:       strings.TrimSpace(cols[2]),
		ClientType: strings.ToUpper(strings.TrimSpace(cols[3])),
		Frequency:  strings.TrimSpace(cols[4]),
	}
	if c.Callsign == "" {
		return Client{}, false
	}

	c.Pos.Lat, _ = strconv.ParseFloat(strings.TrimSpace(cols[5]), 64)
	c.Pos.Lon, _ = strconv.ParseFloat(strings.TrimSpace(cols[6]), 64)
	c.Altitude, _ = strconv.Atoi(strings.TrimSpace(cols[7]))
	c.GroundSpeed, _ = strconv.Atoi(strings.TrimSpace(cols[8]))

	aircraftCol, depCol, destCol, xpdrCol, hdgCol :=
		vatsimAircraftCol, vatsimDepartureCol, vatsimDestinationCol, vatsimTransponderCol, vatsimHeadingCol
	if format == FormatIVAO {
		aircraftCol, depCol, destCol, xpdrCol, hdgCol =
			ivaoAircraftCol, ivaoDepartureCol, ivaoDestinationCol, ivaoTransponderCol, ivaoHeadingCol
	}

	c.AircraftType = colAt(cols, aircraftCol)
	c.Departure = colAt(cols, depCol)
	c.Destination = colAt(cols, destCol)
	c.Transponder = colAt(cols, xpdrCol)
	if h := colAt(cols, hdgCol); h != "" {
		c.Heading, _ = strconv.Atoi(h)
	}

	return c, true
}

func parseServerLine(line string) (Server, bool) {
	cols := strings.Split(line, ":")
	if len(cols) < 4 {
		return Server{}, false
	}
	s := Server{
		Ident:    strings.TrimSpace(cols[0]),
		Hostname: strings.TrimSpace(cols[1]),
		Location: strings.TrimSpace(cols[2]),
		Name:     strings.TrimSpace(cols[3]),
	}
	if s.Ident == "" || s.Hostname == "" {
		return Server{}, false
	}
	if len(cols) > 4 {
		s.ClientsAllowed = strings.TrimSpace(cols[4]) == "1"
	}
	return s, true
}

// colAt returns the trimmed column at index i or "" when the row is short.
func colAt(cols []string, i int) string {
	if i < 0 || i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}
