package whazzup

import (
	"strings"
	"testing"
	"time"
)

// TestParseStatus verifies URL extraction from a status file.
func TestParseStatus(t *testing.T) {
	t.Run("Gzip URL preferred", func(t *testing.T) {
		text := strings.Join([]string{
			"; IVAO status file",
			"url0=http://example.com/whazzup.txt",
			"gzurl0=http://example.com/whazzup.txt.gz",
			"url1=http://example.com/servers.txt",
			"metar0=http://example.com/metar",
			"msg0=Scheduled maintenance tonight",
		}, "\n")

		st := ParseStatus(text)
		if st.WhazzupURL != "http://example.com/whazzup.txt.gz" {
			t.Errorf("Expected gzip URL, got %s", st.WhazzupURL)
		}
		if !st.WhazzupGzipped {
			t.Error("Expected gzip flag set")
		}
		if st.VoiceURL != "http://example.com/servers.txt" {
			t.Errorf("Expected voice URL, got %s", st.VoiceURL)
		}
		if st.MetarURL != "http://example.com/metar" {
			t.Errorf("Expected METAR URL, got %s", st.MetarURL)
		}
		if st.Message != "Scheduled maintenance tonight" {
			t.Errorf("Expected operator message, got %q", st.Message)
		}
	})

	t.Run("Plain URL fallback", func(t *testing.T) {
		st := ParseStatus("url0=http://example.com/whazzup.txt\n")
		if st.WhazzupURL != "http://example.com/whazzup.txt" {
			t.Errorf("Expected plain URL, got %s", st.WhazzupURL)
		}
		if st.WhazzupGzipped {
			t.Error("Expected gzip flag unset for plain URL")
		}
	})

	t.Run("Comments and unknown keys ignored", func(t *testing.T) {
		text := "; comment\n# another\nbogus0=value\nurl0=http://example.com/w.txt\n"
		st := ParseStatus(text)
		if st.WhazzupURL != "http://example.com/w.txt" {
			t.Errorf("Expected URL despite noise, got %s", st.WhazzupURL)
		}
	})

	t.Run("Empty file", func(t *testing.T) {
		st := ParseStatus("")
		if st.WhazzupURL != "" || st.VoiceURL != "" {
			t.Errorf("Expected empty status, got %+v", st)
		}
	})
}

// TestParseFormat verifies format name round-tripping.
func TestParseFormat(t *testing.T) {
	if f := ParseFormat("vatsim"); f != FormatVATSIM {
		t.Errorf("Expected FormatVATSIM, got %v", f)
	}
	if f := ParseFormat(" IVAO "); f != FormatIVAO {
		t.Errorf("Expected FormatIVAO, got %v", f)
	}
	if f := ParseFormat("something"); f != FormatUnknown {
		t.Errorf("Expected FormatUnknown, got %v", f)
	}
	if s := FormatIVAO.String(); s != "ivao" {
		t.Errorf("Expected format name ivao, got %s", s)
	}
}

// vatsimSample is a minimal VATSIM format whazzup file with one pilot,
// one ATC client and one server.
const vatsimSample = `; created at 2018-03-22
!GENERAL:
VERSION = 8
RELOAD = 2
UPDATE = 20180322164247
CONNECTED CLIENTS = 2
CONNECTED SERVERS = 1
!CLIENTS:
DLH123:1234567:John Doe EDDF:PILOT::50.05:8.57:35000:450:B744:420:EDDF:FL350:KJFK:SRV:1:3:7000:::::::::::::::::::::180
EDDF_TWR:7654321:Jane Doe:ATC:118.700:50.03:8.55:0:0:
!SERVERS:
SRV:server.example.com:Frankfurt:Main FSD Server:1
`

// TestParseVATSIM verifies parsing of the VATSIM legacy format.
func TestParseVATSIM(t *testing.T) {
	f, err := Parse(vatsimSample, FormatVATSIM)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	t.Run("General section", func(t *testing.T) {
		if f.General.Version != 8 {
			t.Errorf("Expected version 8, got %d", f.General.Version)
		}
		if f.General.ReloadMinutes != 2 {
			t.Errorf("Expected reload 2, got %d", f.General.ReloadMinutes)
		}
		want := time.Date(2018, 3, 22, 16, 42, 47, 0, time.UTC)
		if !f.General.Update.Equal(want) {
			t.Errorf("Expected update %v, got %v", want, f.General.Update)
		}
		if f.General.ConnectedClients != 2 {
			t.Errorf("Expected 2 connected clients, got %d", f.General.ConnectedClients)
		}
	})

	t.Run("Pilot row", func(t *testing.T) {
		if len(f.Clients) != 2 {
			t.Fatalf("Expected 2 clients, got %d", len(f.Clients))
		}
		p := f.Clients[0]
		if p.Callsign != "DLH123" {
			t.Errorf("Expected callsign DLH123, got %s", p.Callsign)
		}
		if p.ClientType != "PILOT" {
			t.Errorf("Expected PILOT, got %s", p.ClientType)
		}
		if p.Pos.Lat != 50.05 || p.Pos.Lon != 8.57 {
			t.Errorf("Expected position 50.05/8.57, got %f/%f", p.Pos.Lat, p.Pos.Lon)
		}
		if p.Altitude != 35000 || p.GroundSpeed != 450 {
			t.Errorf("Expected 35000 ft / 450 kts, got %d / %d", p.Altitude, p.GroundSpeed)
		}
		if p.AircraftType != "B744" {
			t.Errorf("Expected aircraft type B744, got %s", p.AircraftType)
		}
		if p.Departure != "EDDF" || p.Destination != "KJFK" {
			t.Errorf("Expected route EDDF-KJFK, got %s-%s", p.Departure, p.Destination)
		}
		if p.Transponder != "7000" {
			t.Errorf("Expected transponder 7000, got %s", p.Transponder)
		}
		if p.Heading != 180 {
			t.Errorf("Expected heading 180, got %d", p.Heading)
		}
	})

	t.Run("ATC row", func(t *testing.T) {
		a := f.Clients[1]
		if a.ClientType != "ATC" {
			t.Errorf("Expected ATC, got %s", a.ClientType)
		}
		if a.Frequency != "118.700" {
			t.Errorf("Expected frequency 118.700, got %s", a.Frequency)
		}
	})

	t.Run("Server row", func(t *testing.T) {
		if len(f.Servers) != 1 {
			t.Fatalf("Expected 1 server, got %d", len(f.Servers))
		}
		s := f.Servers[0]
		if s.Ident != "SRV" || s.Hostname != "server.example.com" {
			t.Errorf("Unexpected server row: %+v", s)
		}
		if !s.ClientsAllowed {
			t.Error("Expected clients allowed")
		}
	})
}

// TestParseIVAOHeadingColumn verifies that the IVAO format reads the
// heading from its own column position.
func TestParseIVAOHeadingColumn(t *testing.T) {
	cols := make([]string, 46)
	cols[0] = "FAD123"
	cols[1] = "111222"
	cols[2] = "Pilot Name"
	cols[3] = "PILOT"
	cols[5] = "-26.13"
	cols[6] = "28.23"
	cols[7] = "5000"
	cols[8] = "120"
	cols[9] = "C172"
	cols[11] = "FAOR"
	cols[13] = "FALA"
	cols[17] = "2000"
	cols[45] = "275"
	text := "!GENERAL:\nUPDATE = 20240101120000\n!CLIENTS:\n" + strings.Join(cols, ":") + "\n"

	f, err := Parse(text, FormatIVAO)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(f.Clients) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(f.Clients))
	}
	if f.Clients[0].Heading != 275 {
		t.Errorf("Expected heading 275 from IVAO column, got %d", f.Clients[0].Heading)
	}

	// The same row read as VATSIM format takes the heading from column 38,
	// which is empty here.
	f, err = Parse(text, FormatVATSIM)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Clients[0].Heading != 0 {
		t.Errorf("Expected heading 0 for VATSIM column, got %d", f.Clients[0].Heading)
	}
}

// TestParseErrors verifies malformed input handling.
func TestParseErrors(t *testing.T) {
	t.Run("Missing general section", func(t *testing.T) {
		if _, err := Parse("!CLIENTS:\nDLH123:1:N:PILOT::1:2:3:4\n", FormatVATSIM); err == nil {
			t.Error("Expected error for file without !GENERAL")
		}
	})

	t.Run("Short client rows skipped", func(t *testing.T) {
		text := "!GENERAL:\nUPDATE = 20240101120000\n!CLIENTS:\nshort:row\nDLH123:1:N:PILOT::1:2:3:4\n"
		f, err := Parse(text, FormatVATSIM)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(f.Clients) != 1 {
			t.Errorf("Expected 1 client after skipping short row, got %d", len(f.Clients))
		}
	})

	t.Run("Empty callsign skipped", func(t *testing.T) {
		text := "!GENERAL:\nUPDATE = 20240101120000\n!CLIENTS:\n:1:N:PILOT::1:2:3:4\n"
		f, err := Parse(text, FormatVATSIM)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(f.Clients) != 0 {
			t.Errorf("Expected no clients, got %d", len(f.Clients))
		}
	})

	t.Run("Windows line endings", func(t *testing.T) {
		text := "!GENERAL:\r\nUPDATE = 20240101120000\r\n!CLIENTS:\r\nDLH123:1:N:PILOT::1:2:3:4\r\n"
		f, err := Parse(text, FormatVATSIM)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(f.Clients) != 1 {
			t.Errorf("Expected 1 client with CRLF input, got %d", len(f.Clients))
		}
	})
}

// TestParseServers verifies standalone server list parsing.
func TestParseServers(t *testing.T) {
	t.Run("Bare server list", func(t *testing.T) {
		text := "; voice servers\nSRV1:one.example.com:Frankfurt:Server One:1\nSRV2:two.example.com:London:Server Two:0\n"
		servers := ParseServers(text, FormatVATSIM)
		if len(servers) != 2 {
			t.Fatalf("Expected 2 servers, got %d", len(servers))
		}
		if servers[0].Ident != "SRV1" || servers[1].Ident != "SRV2" {
			t.Errorf("Unexpected idents: %s, %s", servers[0].Ident, servers[1].Ident)
		}
		if servers[1].ClientsAllowed {
			t.Error("Expected clients not allowed on second server")
		}
	})

	t.Run("Sectioned file", func(t *testing.T) {
		servers := ParseServers(vatsimSample, FormatVATSIM)
		if len(servers) != 1 {
			t.Fatalf("Expected 1 server from sectioned file, got %d", len(servers))
		}
		if servers[0].Hostname != "server.example.com" {
			t.Errorf("Unexpected hostname: %s", servers[0].Hostname)
		}
	})
}
